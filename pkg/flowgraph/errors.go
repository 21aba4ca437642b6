package flowgraph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for compilation.
var (
	// ErrFlowNotFound indicates a reference to a flow that does not exist.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrAmbiguousFlow indicates an embed reference matching several flows by suffix.
	ErrAmbiguousFlow = errors.New("ambiguous flow reference")

	// ErrDuplicateFlow indicates two flows registered under one name.
	ErrDuplicateFlow = errors.New("duplicate flow")

	// ErrInvalidFlowName indicates an empty flow name.
	ErrInvalidFlowName = errors.New("invalid flow name")

	// ErrEmbedCycle indicates flows that embed each other.
	ErrEmbedCycle = errors.New("embedded flow cycle")

	// ErrUnknownRoute indicates a configured route the router does not declare.
	ErrUnknownRoute = errors.New("route not declared by router")
)

// Sentinel errors for execution.
var (
	// ErrEmptyRoute indicates a router returned an empty route name.
	ErrEmptyRoute = errors.New("router returned empty route")
)

// CompileError wraps a compilation failure with the flow it occurred in.
type CompileError struct {
	Flow string
	Err  error
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	return fmt.Sprintf("compile flow %s: %v", e.Flow, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CompileError) Unwrap() error {
	return e.Err
}

// EmbedCycleError lists the flows forming an embedding cycle, starting and
// ending with the same flow.
type EmbedCycleError struct {
	Path []string
}

// Error implements the error interface.
func (e *EmbedCycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrEmbedCycle, strings.Join(e.Path, " -> "))
}

// Unwrap returns ErrEmbedCycle.
func (e *EmbedCycleError) Unwrap() error {
	return ErrEmbedCycle
}

// RouteError reports a configured route that the router does not declare.
type RouteError struct {
	Node     string
	Route    string
	Declared []string
}

// Error implements the error interface.
func (e *RouteError) Error() string {
	return fmt.Sprintf("router %s: route %q not in %v", e.Node, e.Route, e.Declared)
}

// Unwrap returns ErrUnknownRoute.
func (e *RouteError) Unwrap() error {
	return ErrUnknownRoute
}

// NodeError wraps an error with the node it came from.
type NodeError struct {
	Flow string
	Node string
	Kind NodeKind
	Err  error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("flow %s: %s node %s: %v", e.Flow, e.Kind, e.Node, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised by an operation.
type PanicError struct {
	Node  string
	Value any
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.Node, e.Value)
}

// CancellationError reports a run stopped because its context ended.
type CancellationError struct {
	Flow  string
	Node  string
	Cause error
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("flow %s cancelled: %v", e.Flow, e.Cause)
	}
	return fmt.Sprintf("flow %s cancelled before node %s: %v", e.Flow, e.Node, e.Cause)
}

// Unwrap returns the context error.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}
