/*
Package flowgraph compiles declarative flow segments into executable flows
and runs them asynchronously on injected executors.

# Overview

A flow is described as a tree of segments: operation nodes, routers,
embedded flows, sequences, parallel groups and labels. Compiling the tree
produces an immutable Flow and a Visualizer. Each Run of a Flow carries a
document.Document through the nodes and reports exactly one outcome to its
Subscriber: ok, halted or error.

# Basic Usage

	seg := flowgraph.Sequence(
	    flowgraph.Func("greet", func(ctx flowgraph.Context, doc *document.Document) error {
	        return doc.Put("greeting", "hello")
	    }),
	    flowgraph.Parallel(
	        flowgraph.Func("a", setA),
	        flowgraph.Func("b", setB),
	    ),
	)

	flow, vis, err := flowgraph.Compile("main", seg)
	if err != nil {
	    log.Fatal(err)
	}

	rt := flowgraph.NewRuntime()
	defer rt.Close()

	out := flow.Await(context.Background(), rt, document.New())
	fmt.Println(out.Kind, out.Document)
	fmt.Println(vis.DOT())

# Routing

Routers declare their exits up front. Configuring an undeclared exit is a
compile error; returning a name with no configured branch at run time halts
the run, which is a normal outcome and not an error:

	route := flowgraph.RouterFunc([]string{"small", "large"}, pickSize)
	seg := flowgraph.RouterNode("size", route,
	    flowgraph.When("large", flowgraph.Func("split", splitOrder)),
	)

# Execution Model

A Runtime holds two executors. Operation code, router decisions and
subscriber callbacks run on the operation executor. Every other step of a
run (dispatching to the next node, counting join arrivals, deciding the
terminal outcome) runs on a per-run strand over the coordination executor,
so run state needs no locks. Operations receive a Context and never the
FlowContext, which keeps the two sides apart.

Parallel branches share the run's document. The document is safe for
concurrent use, but branches writing the same path race and the last
writer wins.

# Error Handling

Compilation returns errors joined with errors.Join. Runtime failures reach
the subscriber wrapped in *NodeError; panics in operations become
*PanicError, and a cancelled context becomes *CancellationError.
*/
package flowgraph
