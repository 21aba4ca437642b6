package expr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Vars supplies values for paths. *document.Document satisfies it.
type Vars interface {
	Get(path string) (any, bool)
}

// Map adapts a plain map to Vars. Keys are matched verbatim.
type Map map[string]any

// Get implements Vars.
func (m Map) Get(path string) (any, bool) {
	v, ok := m[path]
	return v, ok
}

// literalValue interprets a bare word. ok is false for paths.
func literalValue(word string) (v any, ok bool) {
	switch strings.ToLower(word) {
	case "true":
		return true, true
	case "false":
		return false, true
	case "null", "nil":
		return nil, true
	}

	var num json.Number
	if err := json.Unmarshal([]byte(word), &num); err == nil {
		if i, err := num.Int64(); err == nil {
			return i, true
		}
		if f, err := num.Float64(); err == nil {
			return f, true
		}
	}
	return nil, false
}

// IsTruthy returns whether a value is truthy.
// nil is false, bools return their value, empty strings are false,
// zero numbers are false, everything else is true.
func IsTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case int32:
		return val != 0
	case float64:
		return val != 0
	case float32:
		return val != 0
	default:
		return true
	}
}

// ToFloat64 converts a value to float64 for numeric comparison.
// Returns 0 for values that cannot be converted.
func ToFloat64(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case string:
		var f float64
		_, _ = fmt.Sscanf(val, "%f", &f)
		return f
	default:
		return 0
	}
}
