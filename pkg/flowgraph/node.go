package flowgraph

import (
	"github.com/randalmurphal/flowhost/pkg/flowgraph/document"
)

// Operation is a synchronous unit of work on the run document.
// A nil error continues the flow; a non-nil error fails the run.
//
// Operations run on the operation executor and may block.
type Operation interface {
	Call(ctx Context, doc *document.Document) error
}

// OperationFunc adapts a function to Operation.
//
// Example:
//
//	double := flowgraph.OperationFunc(func(ctx flowgraph.Context, doc *document.Document) error {
//	    n, _ := doc.GetInt("n")
//	    return doc.Put("n", n*2)
//	})
type OperationFunc func(ctx Context, doc *document.Document) error

// Call implements Operation.
func (f OperationFunc) Call(ctx Context, doc *document.Document) error {
	return f(ctx, doc)
}

// OperationResult completes an asynchronous operation.
// Only the first call to Done or Error has any effect.
type OperationResult interface {
	Done()
	Error(err error)
}

// AsyncOperation starts work and reports completion through res, possibly
// from another goroutine and after Call has returned.
type AsyncOperation interface {
	Call(ctx Context, doc *document.Document, res OperationResult)
}

// AsyncOperationFunc adapts a function to AsyncOperation.
type AsyncOperationFunc func(ctx Context, doc *document.Document, res OperationResult)

// Call implements AsyncOperation.
func (f AsyncOperationFunc) Call(ctx Context, doc *document.Document, res OperationResult) {
	f(ctx, doc, res)
}

// RouterOperation picks one of a fixed set of named exits.
//
// Routes lists every name Route may return. Returning a name that has no
// configured branch halts the run.
type RouterOperation interface {
	Routes() []string
	Route(ctx Context, doc *document.Document) (string, error)
}

// HaltRoute is a route name no branch can be configured under. Routers
// return it to halt the run explicitly.
const HaltRoute = "\x00halt"

type routerFunc struct {
	routes []string
	fn     func(ctx Context, doc *document.Document) (string, error)
}

// RouterFunc builds a RouterOperation from its declared routes and a function.
func RouterFunc(routes []string, fn func(ctx Context, doc *document.Document) (string, error)) RouterOperation {
	return &routerFunc{routes: append([]string(nil), routes...), fn: fn}
}

func (r *routerFunc) Routes() []string {
	return append([]string(nil), r.routes...)
}

func (r *routerFunc) Route(ctx Context, doc *document.Document) (string, error) {
	return r.fn(ctx, doc)
}
