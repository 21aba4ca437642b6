package flowgraph

import "github.com/randalmurphal/flowhost/pkg/flowgraph/document"

// Subscriber receives exactly one terminal callback per run.
// Callbacks are invoked on the operation executor.
type Subscriber interface {
	OK(doc *document.Document)
	Halted()
	Error(doc *document.Document, err error)
}

// SubscriberFuncs adapts functions to Subscriber. Nil fields are ignored.
type SubscriberFuncs struct {
	OnOK     func(doc *document.Document)
	OnHalted func()
	OnError  func(doc *document.Document, err error)
}

// OK implements Subscriber.
func (s SubscriberFuncs) OK(doc *document.Document) {
	if s.OnOK != nil {
		s.OnOK(doc)
	}
}

// Halted implements Subscriber.
func (s SubscriberFuncs) Halted() {
	if s.OnHalted != nil {
		s.OnHalted()
	}
}

// Error implements Subscriber.
func (s SubscriberFuncs) Error(doc *document.Document, err error) {
	if s.OnError != nil {
		s.OnError(doc, err)
	}
}

// OutcomeKind is the terminal state of a run.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeHalted
	OutcomeError
)

// String returns "ok", "halted" or "error".
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeHalted:
		return "halted"
	default:
		return "error"
	}
}

// Outcome is the terminal result of a run as a value.
// A halt is not an error: Err is nil and Document is nil.
type Outcome struct {
	Kind     OutcomeKind
	Document *document.Document
	Err      error
}

// OutcomeFunc adapts a function receiving an Outcome to Subscriber.
type OutcomeFunc func(Outcome)

// OK implements Subscriber.
func (f OutcomeFunc) OK(doc *document.Document) {
	f(Outcome{Kind: OutcomeOK, Document: doc})
}

// Halted implements Subscriber.
func (f OutcomeFunc) Halted() {
	f(Outcome{Kind: OutcomeHalted})
}

// Error implements Subscriber.
func (f OutcomeFunc) Error(doc *document.Document, err error) {
	f(Outcome{Kind: OutcomeError, Document: doc, Err: err})
}
