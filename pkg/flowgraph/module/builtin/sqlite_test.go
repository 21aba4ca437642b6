package builtin_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module/builtin"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/registry"
)

const sqliteApp = `
use:
  - sqlite:
      path: shop.db
      init:
        - CREATE TABLE IF NOT EXISTS items (sku TEXT PRIMARY KEY, qty INTEGER NOT NULL)
flows:
  add:
    - sqlite.exec:
        sql: INSERT INTO items (sku, qty) VALUES (?, ?)
        args: [sku, qty]
        out: inserted
  list:
    - sqlite.query: {sql: "SELECT sku, qty FROM items ORDER BY sku", out: items}
  one:
    - sqlite.query: {sql: "SELECT qty FROM items WHERE sku = ?", args: [sku], out: item, single: true}
`

// TestSQLite tests the initializer, statements and the undeploy hook.
func TestSQLite(t *testing.T) {
	dir := t.TempDir()
	app := configure(t, sqliteApp, module.WithBaseDir(dir))
	assert.FileExists(t, filepath.Join(dir, "shop.db"))

	for sku, qty := range map[string]int{"b": 2, "a": 1} {
		doc := app.ok("add", map[string]any{"sku": sku, "qty": qty})
		n, _ := doc.GetInt("inserted")
		assert.Equal(t, int64(1), n)
	}

	doc := app.ok("list", nil)
	items, ok := doc.Get("items")
	require.True(t, ok)
	require.Len(t, items, 2)
	sku, _ := doc.GetString("items.0.sku")
	assert.Equal(t, "a", sku)
	qty, _ := doc.GetInt("items.1.qty")
	assert.Equal(t, int64(2), qty)

	doc = app.ok("one", map[string]any{"sku": "b"})
	qty, _ = doc.GetInt("item.qty")
	assert.Equal(t, int64(2), qty)

	doc = app.ok("one", map[string]any{"sku": "zz"})
	assert.False(t, doc.Has("item"))

	out := app.run("add", map[string]any{"sku": "a", "qty": 5})
	require.Equal(t, flowgraph.OutcomeError, out.Kind)
	assert.ErrorContains(t, out.Err, "UNIQUE")

	db, ok := registry.Get(app.def.Store, builtin.SQLiteDB)
	require.True(t, ok)
	require.Len(t, app.def.Hooks.Undeploy, 1)
	require.NoError(t, app.def.Hooks.Undeploy[0](context.Background()))
	assert.Error(t, db.Ping())
	_, ok = registry.Get(app.def.Store, builtin.SQLiteDB)
	assert.False(t, ok)
}

// TestSQLite_Memory tests an in-memory database.
func TestSQLite_Memory(t *testing.T) {
	app := configure(t, `
use: [{sqlite: {path: ":memory:", init: ["CREATE TABLE t (v INTEGER)", "INSERT INTO t VALUES (41)"]}}]
flows:
  main: [{sqlite.query: {sql: "SELECT v + 1 AS v FROM t", out: row, single: true}}]
`)
	v, _ := app.ok("main", nil).GetInt("row.v")
	assert.Equal(t, int64(42), v)
}

// TestSQLite_NotInitialized tests running before the initializer.
func TestSQLite_NotInitialized(t *testing.T) {
	reg, err := builtin.NewRegistry()
	require.NoError(t, err)
	def, err := module.ConfigureSource("app.yaml", []byte(sqliteApp), reg, module.WithBaseDir(t.TempDir()))
	require.NoError(t, err)

	rt := flowgraph.NewRuntime()
	defer rt.Close()
	list, _ := def.Flows.Flow("list")
	out := list.Await(context.Background(), rt, nil)
	require.Equal(t, flowgraph.OutcomeError, out.Kind)
	assert.ErrorContains(t, out.Err, "not open")
}

// TestSQLite_Settings tests settings validation.
func TestSQLite_Settings(t *testing.T) {
	err := configureErr(t, "use: [sqlite]\nflows: {main: [{sqlite.query: {sql: 'select 1', out: x}}]}")
	assert.ErrorContains(t, err, "path is required")

	err = configureErr(t, "use: [{sqlite: {path: x.db}}]\nflows: {main: [{sqlite.query: {sql: 'select 1'}}]}")
	assert.ErrorContains(t, err, "out is required")
}
