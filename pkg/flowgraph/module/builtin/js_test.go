package builtin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
)

// TestJS_Script tests reading and writing the document from a script.
func TestJS_Script(t *testing.T) {
	app := configure(t, `
use: [js]
flows:
  main:
    - js:
        script: |
          data.total = data.price * data.qty;
          data.label = "order " + data.id;
          log("computed");
          data.total > 10
        out: big
  replace:
    - js: {script: "data = {fresh: true}"}
`)
	doc := app.ok("main", map[string]any{"price": 4, "qty": 3, "id": "a1"})

	total, _ := doc.GetInt("total")
	assert.Equal(t, int64(12), total)
	label, _ := doc.GetString("label")
	assert.Equal(t, "order a1", label)
	big, _ := doc.GetBool("big")
	assert.True(t, big)

	doc = app.ok("replace", map[string]any{"old": 1})
	assert.False(t, doc.Has("old"))
	fresh, _ := doc.GetBool("fresh")
	assert.True(t, fresh)
}

// TestJS_ScriptError tests that thrown errors fail the run.
func TestJS_ScriptError(t *testing.T) {
	app := configure(t, `
use: [js]
flows:
  main: [{js: {script: "throw new Error('bad input')"}}]
  nulled: [{js: {script: "data = null"}}]
`)
	out := app.run("main", nil)
	require.Equal(t, flowgraph.OutcomeError, out.Kind)
	assert.ErrorContains(t, out.Err, "bad input")

	out = app.run("nulled", nil)
	require.Equal(t, flowgraph.OutcomeError, out.Kind)
	assert.ErrorContains(t, out.Err, "non-object")
}

// TestJS_Route tests routing on a script's value.
func TestJS_Route(t *testing.T) {
	app := configure(t, `
use: [js]
flows:
  main:
    - js.route:
        script: "data.n % 2 === 0 ? 'even' : 'odd'"
        routes:
          even: [{put: {values: {parity: even}}}]
          odd: [{put: {values: {parity: odd}}}]
`)
	for n, want := range map[int]string{2: "even", 7: "odd"} {
		parity, _ := app.ok("main", map[string]any{"n": n}).GetString("parity")
		assert.Equal(t, want, parity)
	}
}

// TestJS_CompileError tests that syntax errors fail configuration.
func TestJS_CompileError(t *testing.T) {
	err := configureErr(t, "use: [js]\nflows: {main: [{js: {script: 'data.x = ('}}]}")
	assert.ErrorContains(t, err, "compile script")
}
