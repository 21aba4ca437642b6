package flowgraph

import "github.com/randalmurphal/flowhost/pkg/flowgraph/document"

// splitAction starts every branch of a parallel segment. Each branch
// dispatches its first operation to the operation executor, so the
// branches run concurrently on the shared document.
type splitAction struct {
	node     *nodeSpec
	branches []actionHandler
}

func (a *splitAction) nodeName() string { return a.node.name }

func (a *splitAction) call(doc *document.Document, c *FlowContext) {
	for _, b := range a.branches {
		if c.done {
			return
		}
		b.call(doc, c)
	}
}

// joinAction counts branch arrivals and continues once all have arrived.
// The first error or halt in any branch ends the run, after which later
// arrivals are dropped by the strand.
type joinAction struct {
	node     *nodeSpec
	expected int
	next     actionHandler
}

func (a *joinAction) nodeName() string { return a.node.name }

func (a *joinAction) call(doc *document.Document, c *FlowContext) {
	st := c.StateFor(a.node.id)
	st.Arrivals++
	if st.Arrivals < a.expected {
		return
	}
	a.next.call(doc, c)
}
