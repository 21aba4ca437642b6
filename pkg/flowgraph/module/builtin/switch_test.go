package builtin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
)

// TestSwitch tests routing on the first matching condition.
func TestSwitch(t *testing.T) {
	app := configure(t, `
flows:
  main:
    - switch:
        cases:
          - {when: "order.total >= 1000 and not order.trusted", route: review}
          - {when: "order.total >= 100", route: large}
        default: small
        routes:
          review: [{put: {values: {lane: review}}}]
          large: [{put: {values: {lane: large}}}]
          small: [{put: {values: {lane: small}}}]
  strict:
    - switch:
        cases: [{when: "kind == 'a'", route: a}]
        routes:
          a: [{put: {values: {picked: a}}}]
`)
	lane := func(total any, trusted bool) string {
		doc := app.ok("main", map[string]any{"order": map[string]any{"total": total, "trusted": trusted}})
		s, _ := doc.GetString("lane")
		return s
	}
	assert.Equal(t, "review", lane(5000, false))
	assert.Equal(t, "large", lane(5000, true))
	assert.Equal(t, "large", lane(150.5, false))
	assert.Equal(t, "small", lane(3, false))

	picked, _ := app.ok("strict", map[string]any{"kind": "a"}).GetString("picked")
	assert.Equal(t, "a", picked)
	assert.Equal(t, flowgraph.OutcomeHalted, app.run("strict", map[string]any{"kind": "b"}).Kind)
}

// TestSwitch_ConfigErrors tests validation of switch bodies.
func TestSwitch_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"no cases", "flows: {main: [{switch: {routes: {a: []}}}]}", "cases is required"},
		{"case without when", "flows: {main: [{switch: {cases: [{route: a}], routes: {a: []}}}]}", "case 0: when is required"},
		{"bad expression", `flows: {main: [{switch: {cases: [{when: "x = 1", route: a}], routes: {a: []}}}]}`, "use '=='"},
		{"undeclared route", `flows: {main: [{switch: {cases: [{when: x, route: b}], routes: {a: []}}}]}`, `route "b" has no branch`},
		{"bad default", `flows: {main: [{switch: {cases: [{when: x, route: a}], default: d, routes: {a: []}}}]}`, `default route "d" has no branch`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorContains(t, configureErr(t, tt.src), tt.want)
		})
	}
}

// TestFormat tests template expansion into the document and log messages.
func TestFormat(t *testing.T) {
	app := configure(t, `
flows:
  main:
    - format: {template: "order ${order.id} for $name", out: summary}
    - log: {message: "formatted ${summary}"}
  strict:
    - format: {template: "hello ${missing}", out: greeting, strict: true}
`)
	doc := app.ok("main", map[string]any{"order": map[string]any{"id": "A-7"}, "name": "ada"})
	summary, _ := doc.GetString("summary")
	assert.Equal(t, "order A-7 for ada", summary)

	out := app.run("strict", nil)
	require.Equal(t, flowgraph.OutcomeError, out.Kind)
	assert.ErrorContains(t, out.Err, "undefined variable: missing")

	assert.ErrorContains(t, configureErr(t, "flows: {main: [{format: {out: x}}]}"), "template is required")
}
