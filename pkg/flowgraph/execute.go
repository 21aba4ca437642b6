package flowgraph

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/randalmurphal/flowhost/pkg/flowgraph/document"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/observability"
)

// actionHandler is a compiled node's entry point. call always runs on the
// run's coordination strand.
type actionHandler interface {
	call(doc *document.Document, c *FlowContext)
	nodeName() string
}

type errorHandler interface {
	fail(doc *document.Document, c *FlowContext, err error)
}

type haltedHandler interface {
	halted(c *FlowContext)
}

// nodeErrorHandler wraps errors with the failing node and fails the run.
type nodeErrorHandler struct {
	node *nodeSpec
}

func (h *nodeErrorHandler) fail(doc *document.Document, c *FlowContext, err error) {
	c.fail(doc, &NodeError{Flow: c.flow.name, Node: h.node.name, Kind: h.node.kind, Err: err})
}

type haltRun struct{}

func (haltRun) halted(c *FlowContext) {
	c.halt()
}

type startAction struct {
	next actionHandler
}

func (a *startAction) nodeName() string { return "start" }

func (a *startAction) call(doc *document.Document, c *FlowContext) {
	a.next.call(doc, c)
}

type endAction struct{}

func (endAction) nodeName() string { return "end" }

func (endAction) call(doc *document.Document, c *FlowContext) {
	c.end(doc)
}

// operationAction runs a synchronous operation on the operation executor
// and re-enters coordination with its successor or error handler.
type operationAction struct {
	node  *nodeSpec
	op    Operation
	next  actionHandler
	onErr errorHandler
}

func (a *operationAction) nodeName() string { return a.node.name }

func (a *operationAction) call(doc *document.Document, c *FlowContext) {
	c.rt.operations.Submit(func() {
		err := c.invoke(a.node, func(ctx Context) error {
			return a.op.Call(ctx, doc)
		})
		if err != nil {
			c.raise(a.onErr, doc, err)
			return
		}
		c.continueWith(a.next, doc)
	})
}

// asyncAction starts a background operation that completes through an
// OperationResult.
type asyncAction struct {
	node  *nodeSpec
	op    AsyncOperation
	next  actionHandler
	onErr errorHandler
}

func (a *asyncAction) nodeName() string { return a.node.name }

func (a *asyncAction) call(doc *document.Document, c *FlowContext) {
	c.rt.operations.Submit(func() {
		spanCtx, span := c.rt.spans.StartNodeSpan(c.ctx, a.node.name)
		ctx := c.operationContext(spanCtx, a.node.name)
		res := &operationResult{
			start: time.Now(),
			complete: func(err error, elapsed time.Duration) {
				c.rt.metrics.RecordNodeExecution(spanCtx, c.flow.name, a.node.name, elapsed, err)
				c.rt.spans.EndSpanWithError(span, err)
				if err != nil {
					observability.LogNodeError(ctx.logger, a.node.name, err)
					c.raise(a.onErr, doc, err)
					return
				}
				c.continueWith(a.next, doc)
			},
		}
		defer func() {
			if r := recover(); r != nil {
				res.Error(&PanicError{Node: a.node.name, Value: r, Stack: string(debug.Stack())})
			}
		}()
		a.op.Call(ctx, doc, res)
	})
}

type operationResult struct {
	once     sync.Once
	start    time.Time
	complete func(err error, elapsed time.Duration)
}

func (r *operationResult) Done() {
	r.once.Do(func() { r.complete(nil, time.Since(r.start)) })
}

func (r *operationResult) Error(err error) {
	if err == nil {
		err = fmt.Errorf("async operation reported a nil error")
	}
	r.once.Do(func() { r.complete(err, time.Since(r.start)) })
}

// routerAction asks a router for a route name on the operation executor.
// Names without a configured branch halt the run.
type routerAction struct {
	node   *nodeSpec
	router RouterOperation
	routes map[string]actionHandler
	onErr  errorHandler
	halt   haltedHandler
}

func (a *routerAction) nodeName() string { return a.node.name }

func (a *routerAction) call(doc *document.Document, c *FlowContext) {
	c.rt.operations.Submit(func() {
		var route string
		err := c.invoke(a.node, func(ctx Context) error {
			var err error
			route, err = a.router.Route(ctx, doc)
			if err == nil && route == "" {
				err = ErrEmptyRoute
			}
			return err
		})
		if err != nil {
			c.raise(a.onErr, doc, err)
			return
		}
		next, ok := a.routes[route]
		if !ok {
			c.logger.Debug("no branch for route, halting",
				"node", a.node.name, "route", route)
			c.haltWith(a.halt)
			return
		}
		c.continueWith(next, doc)
	})
}

// embedAction runs another flow as a nested run sharing this run's
// document and runtime, then maps its outcome onto this node's handlers.
type embedAction struct {
	node  *nodeSpec
	flow  *Flow
	next  actionHandler
	onErr errorHandler
	halt  haltedHandler
}

func (a *embedAction) nodeName() string { return a.node.name }

func (a *embedAction) call(doc *document.Document, c *FlowContext) {
	a.flow.Run(c.ctx, c.rt, doc, SubscriberFuncs{
		OnOK: func(out *document.Document) {
			c.continueWith(a.next, out)
		},
		OnHalted: func() {
			c.haltWith(a.halt)
		},
		OnError: func(out *document.Document, err error) {
			c.raise(a.onErr, out, err)
		},
	})
}
