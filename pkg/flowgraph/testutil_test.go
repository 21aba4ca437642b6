package flowgraph

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowhost/pkg/flowgraph/document"
)

// newTestRuntime creates a small runtime closed at test cleanup.
func newTestRuntime(t *testing.T, opts ...RuntimeOption) *Runtime {
	t.Helper()
	base := []RuntimeOption{WithOperationWorkers(4), WithCoordinationWorkers(2)}
	rt := NewRuntime(append(base, opts...)...)
	t.Cleanup(rt.Close)
	return rt
}

// await runs flow and fails the test if no outcome arrives in time.
func await(t *testing.T, rt *Runtime, flow *Flow, doc *document.Document) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := flow.Await(ctx, rt, doc)
	require.NoError(t, ctx.Err(), "run did not finish in time")
	return out
}

// mustCompile compiles seg as a flow named name.
func mustCompile(t *testing.T, name string, seg Segment, opts ...CompileOption) *Flow {
	t.Helper()
	f, _, err := Compile(name, seg, opts...)
	require.NoError(t, err)
	return f
}

// put returns a node writing value at path.
func put(path string, value any) Segment {
	return Func("put "+path, func(_ Context, doc *document.Document) error {
		return doc.Put(path, value)
	})
}

// sumInto returns a node adding the integer fields into out.
func sumInto(out string, fields ...string) Segment {
	return Func("sum", func(_ Context, doc *document.Document) error {
		var total int64
		for _, f := range fields {
			n, _ := doc.GetInt(f)
			total += n
		}
		return doc.Put(out, total)
	})
}

// failing returns a node that fails with err.
func failing(name string, err error) Segment {
	return Func(name, func(Context, *document.Document) error {
		return err
	})
}

// recorder counts terminal callbacks.
type recorder struct {
	mu       sync.Mutex
	outcomes []Outcome
	first    chan struct{}
	once     sync.Once
}

func newRecorder() *recorder {
	return &recorder{first: make(chan struct{})}
}

func (r *recorder) add(o Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
	r.once.Do(func() { close(r.first) })
}

func (r *recorder) OK(doc *document.Document) { r.add(Outcome{Kind: OutcomeOK, Document: doc}) }
func (r *recorder) Halted()                   { r.add(Outcome{Kind: OutcomeHalted}) }
func (r *recorder) Error(doc *document.Document, err error) {
	r.add(Outcome{Kind: OutcomeError, Document: doc, Err: err})
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.first:
	case <-time.After(5 * time.Second):
		t.Fatal("no outcome received")
	}
}

func (r *recorder) all() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}
