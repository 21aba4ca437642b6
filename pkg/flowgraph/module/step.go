package module

import (
	"fmt"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/config"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/registry"
)

// Step is one operation entry in a flow's steps.
type Step struct {
	// Op is the operation name the step used.
	Op string

	// Body is the operation's configuration; a null node when absent.
	Body *config.Node

	// Key locates the operation name in the source.
	Key *config.Node

	b *builder
}

// Store returns the application's shared store.
func (s *Step) Store() *registry.Store { return s.b.store }

// Steps builds a nested list of steps, such as a route's branch.
// Problems are recorded with the application's other configuration errors.
func (s *Step) Steps(n *config.Node) flowgraph.Segment {
	return s.b.steps(n)
}

// Routes builds the branches under the body's "routes" key.
func (s *Step) Routes() ([]flowgraph.Route, error) {
	n, ok := s.Body.Get("routes")
	if !ok {
		return nil, nil
	}
	if n.Kind() != config.KindMap {
		return nil, n.Errorf("routes must be a map of route name to steps")
	}
	pairs := n.Pairs()
	routes := make([]flowgraph.Route, 0, len(pairs))
	for _, p := range pairs {
		routes = append(routes, flowgraph.When(p.Key, s.b.steps(p.Value)))
	}
	return routes, nil
}

// RouteNames returns the keys under the body's "routes" key.
func (s *Step) RouteNames() []string {
	n, ok := s.Body.Get("routes")
	if !ok {
		return nil
	}
	var names []string
	for _, p := range n.Pairs() {
		names = append(names, p.Key)
	}
	return names
}

// Errorf returns an error positioned at the step body.
func (s *Step) Errorf(format string, args ...any) error {
	return s.Body.Errorf("%s: %s", s.Op, fmt.Sprintf(format, args...))
}

// Typed decodes body into a T and runs its Validate method if it has one.
// Keys T does not declare are configuration errors.
func Typed[T any](body *config.Node) (T, error) {
	return typed[T](body)
}

func typed[T any](body *config.Node, allow ...string) (T, error) {
	var v T
	if err := body.DecodeAllowing(&v, allow...); err != nil {
		return v, err
	}
	return v, nil
}

// Op returns a factory for a synchronous operation configured by a T.
func Op[T any](build func(cfg T, s *Step) (flowgraph.Operation, error)) OperationFactory {
	return func(s *Step) (flowgraph.Segment, error) {
		cfg, err := Typed[T](s.Body)
		if err != nil {
			return nil, err
		}
		op, err := build(cfg, s)
		if err != nil {
			return nil, s.Body.Wrap(err, s.Op)
		}
		return flowgraph.Node(s.Op, op), nil
	}
}

// AsyncOp returns a factory for an asynchronous operation configured by a T.
func AsyncOp[T any](build func(cfg T, s *Step) (flowgraph.AsyncOperation, error)) OperationFactory {
	return func(s *Step) (flowgraph.Segment, error) {
		cfg, err := Typed[T](s.Body)
		if err != nil {
			return nil, err
		}
		op, err := build(cfg, s)
		if err != nil {
			return nil, s.Body.Wrap(err, s.Op)
		}
		return flowgraph.AsyncNode(s.Op, op), nil
	}
}

// Router returns a factory for a router configured by a T. The body's
// "routes" key maps route names to steps.
func Router[T any](build func(cfg T, s *Step) (flowgraph.RouterOperation, error)) OperationFactory {
	return func(s *Step) (flowgraph.Segment, error) {
		cfg, err := typed[T](s.Body, "routes")
		if err != nil {
			return nil, err
		}
		router, err := build(cfg, s)
		if err != nil {
			return nil, s.Body.Wrap(err, s.Op)
		}
		routes, err := s.Routes()
		if err != nil {
			return nil, err
		}
		return flowgraph.RouterNode(s.Op, router, routes...), nil
	}
}
