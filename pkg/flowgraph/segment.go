package flowgraph

import "fmt"

// NodeKind identifies the role of a compiled node.
type NodeKind int

const (
	KindStart NodeKind = iota
	KindEnd
	KindOperation
	KindAsync
	KindRouter
	KindEmbed
	KindSplit
	KindJoin
)

// String returns the kind name used in logs and visualizations.
func (k NodeKind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindEnd:
		return "end"
	case KindOperation:
		return "operation"
	case KindAsync:
		return "async"
	case KindRouter:
		return "router"
	case KindEmbed:
		return "embed"
	case KindSplit:
		return "parallel"
	case KindJoin:
		return "join"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Segment is a declarative piece of a flow. Segments are immutable and may
// be shared; every occurrence compiles to its own nodes.
//
// Build segments with Node, AsyncNode, RouterNode, Embed, Sequence,
// Parallel and Label.
type Segment interface {
	segment()
}

// Route is a named exit of a router node. A nil Segment continues with
// whatever follows the router.
type Route struct {
	Name    string
	Segment Segment
}

// When is shorthand for Route{Name: name, Segment: seg}.
func When(name string, seg Segment) Route {
	return Route{Name: name, Segment: seg}
}

type nodeSegment struct {
	name   string
	kind   NodeKind
	op     Operation
	async  AsyncOperation
	router RouterOperation
	routes []Route
	flow   string
}

type sequenceSegment struct {
	children []Segment
}

type parallelSegment struct {
	children []Segment
}

type labelSegment struct {
	name  string
	child Segment
}

func (*nodeSegment) segment()     {}
func (*sequenceSegment) segment() {}
func (*parallelSegment) segment() {}
func (*labelSegment) segment()    {}

// Node returns a segment running a synchronous operation.
// Panics if op is nil.
func Node(name string, op Operation) Segment {
	if op == nil {
		panic("flowgraph: nil operation for node " + name)
	}
	return &nodeSegment{name: name, kind: KindOperation, op: op}
}

// Func is shorthand for Node(name, OperationFunc(fn)).
func Func(name string, fn OperationFunc) Segment {
	if fn == nil {
		panic("flowgraph: nil operation for node " + name)
	}
	return Node(name, fn)
}

// AsyncNode returns a segment running an asynchronous operation.
// Panics if op is nil.
func AsyncNode(name string, op AsyncOperation) Segment {
	if op == nil {
		panic("flowgraph: nil async operation for node " + name)
	}
	return &nodeSegment{name: name, kind: KindAsync, async: op}
}

// RouterNode returns a segment whose router picks one of routes.
// Every route name must be declared by router.Routes(); this is checked at
// compile time. Panics if router is nil.
func RouterNode(name string, router RouterOperation, routes ...Route) Segment {
	if router == nil {
		panic("flowgraph: nil router for node " + name)
	}
	return &nodeSegment{
		name:   name,
		kind:   KindRouter,
		router: router,
		routes: append([]Route(nil), routes...),
	}
}

// Embed returns a segment that runs the flow named flowName as a nested run.
// Panics if flowName is empty.
func Embed(name, flowName string) Segment {
	if flowName == "" {
		panic("flowgraph: embed " + name + " has no flow name")
	}
	if name == "" {
		name = flowName
	}
	return &nodeSegment{name: name, kind: KindEmbed, flow: flowName}
}

// Sequence runs children one after another. An empty sequence passes the
// document straight through.
func Sequence(children ...Segment) Segment {
	return &sequenceSegment{children: checkChildren("sequence", children)}
}

// Parallel runs children concurrently on the same document and continues
// once every child has finished. An empty parallel passes straight through.
func Parallel(children ...Segment) Segment {
	return &parallelSegment{children: checkChildren("parallel", children)}
}

// Label groups child under name for visualization. It adds no nodes.
func Label(name string, child Segment) Segment {
	if child == nil {
		panic("flowgraph: label " + name + " has nil child")
	}
	return &labelSegment{name: name, child: child}
}

func checkChildren(kind string, children []Segment) []Segment {
	for i, c := range children {
		if c == nil {
			panic(fmt.Sprintf("flowgraph: %s child %d is nil", kind, i))
		}
	}
	return append([]Segment(nil), children...)
}
