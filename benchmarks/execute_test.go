package benchmarks

import (
	"context"
	"fmt"
	"testing"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/document"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module/builtin"
)

func runAll(b *testing.B, f *flowgraph.Flow, rt *flowgraph.Runtime, doc func() *document.Document) {
	b.Helper()
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out := f.Await(ctx, rt, doc())
		if out.Kind != flowgraph.OutcomeOK {
			b.Fatalf("run ended %s: %v", out.Kind, out.Err)
		}
	}
}

// BenchmarkRun_Linear measures sequential node overhead.
func BenchmarkRun_Linear(b *testing.B) {
	rt := flowgraph.NewRuntime()
	defer rt.Close()
	for _, n := range []int{5, 10, 50, 100} {
		f := mustCompile(b, linear(n))
		b.Run(fmt.Sprint(n), func(b *testing.B) {
			runAll(b, f, rt, document.New)
		})
	}
}

// BenchmarkRun_Parallel measures fan-out and join.
func BenchmarkRun_Parallel(b *testing.B) {
	rt := flowgraph.NewRuntime()
	defer rt.Close()
	for _, w := range []int{2, 8, 32} {
		f := mustCompile(b, fanOut(w))
		b.Run(fmt.Sprint(w), func(b *testing.B) {
			runAll(b, f, rt, document.New)
		})
	}
}

// BenchmarkRun_Router measures routing between two branches.
func BenchmarkRun_Router(b *testing.B) {
	rt := flowgraph.NewRuntime()
	defer rt.Close()
	router := flowgraph.RouterFunc([]string{"even", "odd"}, func(_ flowgraph.Context, doc *document.Document) (string, error) {
		n, _ := doc.GetInt("n")
		if n%2 == 0 {
			return "even", nil
		}
		return "odd", nil
	})
	f := mustCompile(b, flowgraph.RouterNode("parity", router,
		flowgraph.When("even", flowgraph.Func("even", noop)),
		flowgraph.When("odd", flowgraph.Func("odd", noop)),
	))
	n := 0
	runAll(b, f, rt, func() *document.Document {
		n++
		return document.FromMap(map[string]any{"n": n})
	})
}

// BenchmarkRun_Application measures a flow built from configuration.
func BenchmarkRun_Application(b *testing.B) {
	reg, err := builtin.NewRegistry()
	if err != nil {
		b.Fatal(err)
	}
	def, err := module.ConfigureSource("bench.yaml", []byte(appSource), reg)
	if err != nil {
		b.Fatal(err)
	}
	rt := flowgraph.NewRuntime()
	defer rt.Close()
	f, _ := def.Flows.Flow("main")
	runAll(b, f, rt, document.New)
}

// BenchmarkRun_Concurrent measures throughput with many runs in flight.
func BenchmarkRun_Concurrent(b *testing.B) {
	rt := flowgraph.NewRuntime()
	defer rt.Close()
	f := mustCompile(b, fanOut(4))
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			f.Await(ctx, rt, nil)
		}
	})
}
