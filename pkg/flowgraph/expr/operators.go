package expr

import (
	"fmt"
	"strings"
)

// BinaryOp compares two values.
type BinaryOp func(left, right any) bool

var builtins = map[string]BinaryOp{
	"==":       compareEquals,
	"!=":       compareNotEquals,
	"<":        compareLT,
	">":        compareGT,
	"<=":       compareLTE,
	">=":       compareGTE,
	"contains": compareContains,
}

// Compare compares two values using the specified operator.
// Returns an error for unknown operators.
func Compare(left, right any, op string) (bool, error) {
	fn, ok := builtins[op]
	if !ok {
		return false, fmt.Errorf("unknown operator: %s", op)
	}
	return fn(left, right), nil
}

func compareEquals(left, right any) bool {
	return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right)
}

func compareNotEquals(left, right any) bool {
	return !compareEquals(left, right)
}

func compareLT(left, right any) bool {
	return ToFloat64(left) < ToFloat64(right)
}

func compareGT(left, right any) bool {
	return ToFloat64(left) > ToFloat64(right)
}

func compareLTE(left, right any) bool {
	return ToFloat64(left) <= ToFloat64(right)
}

func compareGTE(left, right any) bool {
	return ToFloat64(left) >= ToFloat64(right)
}

// compareContains checks if left contains right as a substring.
func compareContains(left, right any) bool {
	if left == nil {
		return false
	}
	return strings.Contains(fmt.Sprintf("%v", left), fmt.Sprintf("%v", right))
}
