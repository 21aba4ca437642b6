package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	bracePattern  = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z0-9_]+)*)\}`)
	dollarPattern = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_]*)(?:\b|$)`)
)

// Vars supplies values for placeholders. *document.Document satisfies it.
type Vars interface {
	Get(path string) (any, bool)
}

// Map adapts a plain map to Vars.
type Map map[string]any

// Get implements Vars.
func (m Map) Get(path string) (any, bool) {
	v, ok := m[path]
	return v, ok
}

// Expander expands placeholders in strings.
type Expander struct {
	missingAction MissingAction
	braceStyle    bool
	dollarStyle   bool
}

// NewExpander creates an Expander. By default both placeholder styles
// are enabled and missing values are kept.
func NewExpander(opts ...Option) *Expander {
	e := &Expander{
		missingAction: MissingKeep,
		braceStyle:    true,
		dollarStyle:   true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand replaces the placeholders in s with values from vars. It only
// fails when the MissingAction is MissingError.
func (e *Expander) Expand(s string, vars Vars) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	replace := func(match, name string) string {
		if vars != nil {
			if val, ok := vars.Get(name); ok {
				return format(val)
			}
		}
		switch e.missingAction {
		case MissingEmpty:
			return ""
		case MissingError:
			missing = append(missing, name)
		}
		return match
	}

	result := s
	if e.braceStyle {
		result = bracePattern.ReplaceAllStringFunc(result, func(match string) string {
			return replace(match, match[2:len(match)-1])
		})
	}
	if e.dollarStyle {
		result = dollarPattern.ReplaceAllStringFunc(result, func(match string) string {
			return replace(match, match[1:])
		})
	}

	if len(missing) > 0 {
		return result, &UndefinedVariableError{Names: missing}
	}
	return result, nil
}

// Names returns the placeholder names in s in order of appearance.
func (e *Expander) Names(s string) []string {
	var names []string
	if e.braceStyle {
		for _, m := range bracePattern.FindAllStringSubmatch(s, -1) {
			names = append(names, m[1])
		}
		s = bracePattern.ReplaceAllString(s, "")
	}
	if e.dollarStyle {
		for _, m := range dollarPattern.FindAllStringSubmatch(s, -1) {
			names = append(names, m[1])
		}
	}
	return names
}

func format(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// UndefinedVariableError is returned when MissingError is set and
// one or more variables are not found.
type UndefinedVariableError struct {
	Names []string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}

var defaultExpander = NewExpander()

// Expand expands s with the default expander, keeping missing
// placeholders.
func Expand(s string, vars Vars) string {
	result, _ := defaultExpander.Expand(s, vars)
	return result
}
