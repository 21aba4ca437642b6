package expr

import (
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/randalmurphal/flowhost/pkg/flowgraph/document"
)

func TestEval_Operators(t *testing.T) {
	vars := Map{
		"status":  "active",
		"count":   int64(5),
		"ratio":   0.5,
		"message": "disk error on node-3",
		"enabled": true,
		"empty":   "",
	}
	tests := []struct {
		expr string
		want bool
	}{
		{"status == 'active'", true},
		{`status == "active"`, true},
		{"status == 'inactive'", false},
		{"status != 'inactive'", true},
		{"count == 5", true},
		{"count == '5'", true},
		{"count > 4", true},
		{"count >= 5", true},
		{"count < 5", false},
		{"count <= 5", true},
		{"ratio < 1", true},
		{"ratio > -1", true},
		{"message contains 'error'", true},
		{"message contains 'warning'", false},
		{"missing contains 'x'", false},
		{"missing == null", true},
		{"missing", false},
		{"enabled", true},
		{"empty", false},
		{"count", true},
		{"'literal'", true},
		{"0", false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Eval(tt.expr, vars)
			if err != nil {
				t.Fatalf("Eval(%q) error = %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Eval(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEval_Logical(t *testing.T) {
	vars := Map{"a": true, "b": false, "n": int64(3)}
	tests := []struct {
		expr string
		want bool
	}{
		{"a and b", false},
		{"a or b", true},
		{"not b", true},
		{"!a", false},
		{"! a", false},
		{"not not a", true},
		{"b or a and b", false},
		{"(b or a) and n > 2", true},
		{"b or n == 3 and a", true},
		{"not (a and b)", true},
		{"!(n < 1) and a", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Eval(tt.expr, vars)
			if err != nil {
				t.Fatalf("Eval(%q) error = %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Eval(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEval_Document(t *testing.T) {
	doc := document.FromMap(map[string]any{
		"order": map[string]any{"total": 150, "status": "paid"},
		"items": []any{"a", "b"},
	})
	x, err := Compile("order.total > 100 and order.status == 'paid'")
	if err != nil {
		t.Fatal(err)
	}
	if !x.Eval(doc) {
		t.Errorf("Eval(%s) = false, want true", x)
	}
	if err := doc.Put("order.status", "refunded"); err != nil {
		t.Fatal(err)
	}
	if x.Eval(doc) {
		t.Errorf("Eval(%s) after update = true, want false", x)
	}
	if x.Eval(nil) {
		t.Error("Eval(nil) = true, want false")
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		expr string
		msg  string
		pos  int
	}{
		{"", "empty expression", 0},
		{"   ", "empty expression", 0},
		{"status == 'open", "unterminated string", 10},
		{"status = 'open'", "unexpected '=', use '=='", 7},
		{"a and", "unexpected end of expression", 5},
		{"(a or b", "expected ')', got end of expression", 7},
		{"a b", `unexpected "b"`, 2},
		{"a == == b", `unexpected "=="`, 5},
		{"contains x", `unexpected "contains"`, 0},
		{"a )", `unexpected ")"`, 2},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := Compile(tt.expr)
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("Compile(%q) error = %v, want *SyntaxError", tt.expr, err)
			}
			if se.Msg != tt.msg || se.Pos != tt.pos {
				t.Errorf("Compile(%q) = %q at %d, want %q at %d", tt.expr, se.Msg, se.Pos, tt.msg, tt.pos)
			}
		})
	}
}

func TestEvaluator_WithCustomOperator(t *testing.T) {
	e := New(WithCustomOperator("matches", func(left, right any) bool {
		ok, _ := regexp.MatchString(fmt.Sprint(right), fmt.Sprint(left))
		return ok
	}))

	x, err := e.Compile("name matches '^test' and not (name matches 'skip')")
	if err != nil {
		t.Fatal(err)
	}
	for name, want := range map[string]bool{"test-1": true, "test-skip": false, "prod": false} {
		if got := x.Eval(Map{"name": name}); got != want {
			t.Errorf("Eval(name=%q) = %v, want %v", name, got, want)
		}
	}

	if _, err := Compile("name matches 'x'"); err == nil {
		t.Error("default evaluator accepted a custom operator")
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		left, right any
		op          string
		want        bool
	}{
		{"a", "a", "==", true},
		{int64(1), 1.0, "==", true},
		{1, 2, "<", true},
		{"10", 9, ">", true},
		{"abc", "b", "contains", true},
		{nil, "", "contains", false},
	}
	for _, tt := range tests {
		got, err := Compare(tt.left, tt.right, tt.op)
		if err != nil {
			t.Fatalf("Compare(%v, %v, %s) error = %v", tt.left, tt.right, tt.op, err)
		}
		if got != tt.want {
			t.Errorf("Compare(%v, %v, %s) = %v, want %v", tt.left, tt.right, tt.op, got, tt.want)
		}
	}
	if _, err := Compare(1, 2, "~"); err == nil {
		t.Error("Compare with unknown operator returned nil error")
	}
}

func TestIsTruthy(t *testing.T) {
	tests := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{true, true},
		{false, false},
		{"", false},
		{"x", true},
		{0, false},
		{int64(2), true},
		{0.0, false},
		{map[string]any{}, true},
	}
	for _, tt := range tests {
		if got := IsTruthy(tt.v); got != tt.want {
			t.Errorf("IsTruthy(%#v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestToFloat64(t *testing.T) {
	tests := []struct {
		v    any
		want float64
	}{
		{3, 3},
		{int64(4), 4},
		{float32(1.5), 1.5},
		{"2.5", 2.5},
		{"abc", 0},
		{true, 0},
	}
	for _, tt := range tests {
		if got := ToFloat64(tt.v); got != tt.want {
			t.Errorf("ToFloat64(%#v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}
