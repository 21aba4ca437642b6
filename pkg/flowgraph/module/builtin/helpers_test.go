package builtin_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/document"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module/builtin"
)

type testApp struct {
	t   *testing.T
	def *module.Definition
	rt  *flowgraph.Runtime
}

// configure builds src with every built-in module, runs its initializer
// and undeploy hooks at cleanup.
func configure(t *testing.T, src string, opts ...module.Option) *testApp {
	t.Helper()
	reg, err := builtin.NewRegistry()
	require.NoError(t, err)

	def, err := module.ConfigureSource("app.yaml", []byte(src), reg, opts...)
	require.NoError(t, err)

	rt := flowgraph.NewRuntime()
	app := &testApp{t: t, def: def, rt: rt}
	t.Cleanup(func() {
		for _, h := range def.Hooks.Undeploy {
			_ = h(context.Background())
		}
		rt.Close()
	})

	if def.Initializer != nil {
		out := app.await(def.Initializer, nil)
		require.Equal(t, flowgraph.OutcomeOK, out.Kind, "initializer: %v", out.Err)
	}
	return app
}

func configureErr(t *testing.T, src string) error {
	t.Helper()
	reg, err := builtin.NewRegistry()
	require.NoError(t, err)
	_, err = module.ConfigureSource("app.yaml", []byte(src), reg)
	require.Error(t, err)
	return err
}

func (a *testApp) await(f *flowgraph.Flow, doc *document.Document) flowgraph.Outcome {
	a.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := f.Await(ctx, a.rt, doc)
	require.NoError(a.t, ctx.Err())
	return out
}

func (a *testApp) run(flow string, doc map[string]any) flowgraph.Outcome {
	a.t.Helper()
	f, ok := a.def.Flows.Flow(flow)
	require.True(a.t, ok, "flow %s", flow)
	var d *document.Document
	if doc != nil {
		d = document.FromMap(doc)
	}
	return a.await(f, d)
}

func (a *testApp) ok(flow string, doc map[string]any) *document.Document {
	a.t.Helper()
	out := a.run(flow, doc)
	require.Equal(a.t, flowgraph.OutcomeOK, out.Kind, "error: %v", out.Err)
	return out.Document
}
