package flowgraph

import (
	"context"
	"sync/atomic"

	"github.com/randalmurphal/flowhost/pkg/flowgraph/document"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/observability"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/registry"
)

// Flow is a compiled, immutable flow. It is safe to run concurrently; each
// run gets its own FlowContext.
type Flow struct {
	name  string
	entry actionHandler
	store *registry.Store
	nodes int
	stats FlowStats
}

// Name returns the flow name.
func (f *Flow) Name() string { return f.name }

// NodeCount returns the number of compiled nodes, including start and end.
func (f *Flow) NodeCount() int { return f.nodes }

// Stats returns the flow's live counters.
func (f *Flow) Stats() *FlowStats { return &f.stats }

// Run starts a run of the flow on doc and returns immediately.
// sub receives exactly one terminal callback on the operation executor.
//
// Cancelling ctx fails the run with a *CancellationError at the next node
// boundary. Operations see ctx through their Context.
func (f *Flow) Run(ctx context.Context, rt *Runtime, doc *document.Document, sub Subscriber) {
	if ctx == nil {
		ctx = context.Background()
	}
	if doc == nil {
		doc = document.New()
	}
	c := newFlowContext(ctx, f, rt, sub)
	f.stats.requests.Add(1)
	observability.LogRunStart(rt.logger, f.name, c.id)
	c.continueWith(f.entry, doc)
}

// Await runs the flow and waits for its outcome. If ctx ends first, Await
// returns an error outcome without waiting for the run to notice.
// A nil ctx is treated as context.Background.
func (f *Flow) Await(ctx context.Context, rt *Runtime, doc *document.Document) Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	ch := make(chan Outcome, 1)
	f.Run(ctx, rt, doc, OutcomeFunc(func(o Outcome) { ch <- o }))
	select {
	case o := <-ch:
		return o
	case <-ctx.Done():
		return Outcome{Kind: OutcomeError, Document: doc, Err: &CancellationError{Flow: f.name, Cause: ctx.Err()}}
	}
}

// FlowStats counts runs of a flow. Completed, Errors and Halts together
// never exceed Requests.
type FlowStats struct {
	requests  atomic.Int64
	completed atomic.Int64
	errors    atomic.Int64
	halts     atomic.Int64
}

// StatsSnapshot is a point-in-time copy of FlowStats.
type StatsSnapshot struct {
	Requests  int64 `json:"requests"`
	Completed int64 `json:"completed"`
	Errors    int64 `json:"errors"`
	Halts     int64 `json:"halts"`
}

// InFlight returns the runs started but not finished at snapshot time.
func (s StatsSnapshot) InFlight() int64 {
	return s.Requests - s.Completed - s.Errors - s.Halts
}

// Snapshot reads the counters. Terminal counters are read before requests,
// which only grows, so the snapshot keeps the invariant.
func (s *FlowStats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Completed: s.completed.Load(),
		Errors:    s.errors.Load(),
		Halts:     s.halts.Load(),
	}
	snap.Requests = s.requests.Load()
	return snap
}

// Flows is a set of compiled flows with their visualizers.
type Flows struct {
	order []string
	flows map[string]*Flow
	vis   map[string]*Visualizer
}

func newFlows() *Flows {
	return &Flows{
		flows: make(map[string]*Flow),
		vis:   make(map[string]*Visualizer),
	}
}

func (fs *Flows) add(f *Flow, v *Visualizer) {
	fs.order = append(fs.order, f.name)
	fs.flows[f.name] = f
	fs.vis[f.name] = v
}

// Flow returns the flow with the given name.
func (fs *Flows) Flow(name string) (*Flow, bool) {
	if fs == nil {
		return nil, false
	}
	f, ok := fs.flows[name]
	return f, ok
}

// Visualizer returns the visualizer of the named flow.
func (fs *Flows) Visualizer(name string) (*Visualizer, bool) {
	if fs == nil {
		return nil, false
	}
	v, ok := fs.vis[name]
	return v, ok
}

// Names returns flow names in registration order.
func (fs *Flows) Names() []string {
	if fs == nil {
		return nil
	}
	return append([]string(nil), fs.order...)
}

// Len returns the number of flows.
func (fs *Flows) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.order)
}
