package flowgraph

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/flowhost/pkg/flowgraph/document"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/observability"
)

// NodeState is per-run mutable state of one node, such as the arrival count
// of a join. It is only reachable from coordination work.
type NodeState struct {
	Arrivals int
	Value    any
}

// FlowContext is the coordination-side state of one run.
//
// Every method that reads or writes node state or terminal status runs on
// the run's strand over the coordination executor, so no locks are needed.
// Operation code only ever sees a Context.
type FlowContext struct {
	ctx     context.Context
	id      string
	flow    *Flow
	rt      *Runtime
	strand  *strand
	started time.Time
	logger  *slog.Logger
	span    trace.Span
	sub     Subscriber

	states map[int]*NodeState
	done   bool
}

func newFlowContext(ctx context.Context, f *Flow, rt *Runtime, sub Subscriber) *FlowContext {
	id := uuid.New().String()
	c := &FlowContext{
		id:      id,
		flow:    f,
		rt:      rt,
		strand:  newStrand(rt.coordination),
		started: time.Now(),
		logger:  rt.logger.With(slog.String("flow", f.name), slog.String("run_id", id)),
		sub:     sub,
		states:  make(map[int]*NodeState),
	}
	c.ctx, c.span = rt.spans.StartRunSpan(ctx, f.name, id)
	return c
}

// ID returns the run identifier.
func (c *FlowContext) ID() string { return c.id }

// Flow returns the flow being run.
func (c *FlowContext) Flow() *Flow { return c.flow }

// Elapsed returns the monotonic time since the run started.
func (c *FlowContext) Elapsed() time.Duration { return time.Since(c.started) }

// StateFor returns the state of node id, creating it on first use.
// Panics when called outside the run's coordination strand.
func (c *FlowContext) StateFor(id int) *NodeState {
	c.mustCoordinate("StateFor")
	st, ok := c.states[id]
	if !ok {
		st = &NodeState{}
		c.states[id] = st
	}
	return st
}

// Done reports whether the run has reached a terminal state.
func (c *FlowContext) Done() bool {
	c.mustCoordinate("Done")
	return c.done
}

func (c *FlowContext) mustCoordinate(op string) {
	if !c.strand.draining() {
		panic(fmt.Sprintf("flowgraph: %s called outside coordination of run %s", op, c.id))
	}
}

// dispatch schedules fn on the strand. Signals arriving after the run ended
// are dropped.
func (c *FlowContext) dispatch(signal string, doc *document.Document, fn func()) {
	c.strand.submit(func() {
		if c.done {
			observability.LogLateSignal(c.logger, c.id, signal)
			return
		}
		defer func() {
			if r := recover(); r != nil {
				c.fail(doc, &PanicError{Node: signal, Value: r, Stack: string(debug.Stack())})
			}
		}()
		fn()
	})
}

// continueWith re-enters coordination to run next, failing the run first if
// its context has ended.
func (c *FlowContext) continueWith(next actionHandler, doc *document.Document) {
	c.dispatch("action", doc, func() {
		if err := c.ctx.Err(); err != nil {
			c.fail(doc, &CancellationError{Flow: c.flow.name, Node: next.nodeName(), Cause: err})
			return
		}
		next.call(doc, c)
	})
}

func (c *FlowContext) raise(onErr errorHandler, doc *document.Document, err error) {
	c.dispatch("error", doc, func() {
		onErr.fail(doc, c, err)
	})
}

func (c *FlowContext) haltWith(h haltedHandler) {
	c.dispatch("halted", nil, func() {
		h.halted(c)
	})
}

// end, fail and halt are the terminal transitions. Only the first has effect.

func (c *FlowContext) end(doc *document.Document) {
	if !c.finish(OutcomeOK, nil) {
		return
	}
	c.flow.stats.completed.Add(1)
	c.deliver(func() { c.sub.OK(doc) })
}

func (c *FlowContext) fail(doc *document.Document, err error) {
	if !c.finish(OutcomeError, err) {
		return
	}
	c.flow.stats.errors.Add(1)
	c.deliver(func() { c.sub.Error(doc, err) })
}

func (c *FlowContext) halt() {
	if !c.finish(OutcomeHalted, nil) {
		return
	}
	c.flow.stats.halts.Add(1)
	c.deliver(func() { c.sub.Halted() })
}

func (c *FlowContext) finish(kind OutcomeKind, err error) bool {
	c.mustCoordinate("finish")
	if c.done {
		observability.LogLateSignal(c.logger, c.id, kind.String())
		return false
	}
	c.done = true

	elapsed := c.Elapsed()
	durationMs := float64(elapsed.Microseconds()) / 1000
	c.rt.metrics.RecordFlowRun(c.ctx, c.flow.name, kind.String(), elapsed)
	if err != nil {
		observability.LogRunError(c.rt.logger, c.flow.name, c.id, err, durationMs)
	} else {
		observability.LogRunComplete(c.rt.logger, c.flow.name, c.id, kind.String(), durationMs)
	}
	if kind == OutcomeHalted {
		c.rt.spans.AddSpanEvent(c.ctx, "halted")
	}
	c.rt.spans.EndSpanWithError(c.span, err)
	return true
}

// deliver runs a subscriber callback on the operation executor.
func (c *FlowContext) deliver(fn func()) {
	if c.sub == nil {
		return
	}
	c.rt.operations.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("subscriber panicked", slog.String("panic", fmt.Sprint(r)))
			}
		}()
		fn()
	})
}

// operationContext builds the Context handed to an operation.
func (c *FlowContext) operationContext(ctx context.Context, node string) *executionContext {
	return &executionContext{
		Context: ctx,
		logger:  c.logger.With(slog.String("node", node)),
		store:   c.flow.store,
		runID:   c.id,
		flow:    c.flow.name,
		nodeID:  node,
	}
}

// invoke calls a synchronous piece of operation code with span, metrics
// and panic recovery.
func (c *FlowContext) invoke(node *nodeSpec, call func(ctx Context) error) (err error) {
	spanCtx, span := c.rt.spans.StartNodeSpan(c.ctx, node.name)
	ctx := c.operationContext(spanCtx, node.name)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Node: node.name, Value: r, Stack: string(debug.Stack())}
		}
		c.rt.metrics.RecordNodeExecution(spanCtx, c.flow.name, node.name, time.Since(start), err)
		c.rt.spans.EndSpanWithError(span, err)
		if err != nil {
			observability.LogNodeError(ctx.logger, node.name, err)
		}
	}()
	return call(ctx)
}
