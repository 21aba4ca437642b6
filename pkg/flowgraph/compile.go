package flowgraph

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/randalmurphal/flowhost/pkg/flowgraph/registry"
)

// nodeSpec is the wiring record of one node. Specs live in a per-flow
// arena and refer to each other by index.
type nodeSpec struct {
	id     int
	name   string
	kind   NodeKind
	next   int
	group  []string
	op     Operation
	async  AsyncOperation
	router RouterOperation
	routes []routeSpec
	// branches are the entry nodes of a split.
	branches []int
	// expected is the number of arrivals a join waits for.
	expected int
	embed    *Flow
}

type routeSpec struct {
	name  string
	entry int
}

// FlowsBuilder collects named segments and compiles them together so they
// can embed one another by name.
//
// Example:
//
//	flows, err := flowgraph.NewFlowsBuilder().
//	    Add("main", flowgraph.Sequence(
//	        flowgraph.Func("load", load),
//	        flowgraph.Embed("", "enrich"),
//	    )).
//	    Add("enrich", flowgraph.Func("lookup", lookup)).
//	    Build()
type FlowsBuilder struct {
	names    []string
	segments map[string]Segment
	errs     []error
}

// NewFlowsBuilder creates an empty builder.
func NewFlowsBuilder() *FlowsBuilder {
	return &FlowsBuilder{segments: make(map[string]Segment)}
}

// Add registers a flow. Problems are reported by Build.
func (b *FlowsBuilder) Add(name string, seg Segment) *FlowsBuilder {
	switch {
	case strings.TrimSpace(name) == "":
		b.errs = append(b.errs, fmt.Errorf("%w: empty name", ErrInvalidFlowName))
	case seg == nil:
		b.errs = append(b.errs, fmt.Errorf("%w: flow %s has no segment", ErrInvalidFlowName, name))
	case b.segments[name] != nil:
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrDuplicateFlow, name))
	default:
		b.names = append(b.names, name)
		b.segments[name] = seg
	}
	return b
}

// Build compiles every registered flow. Embedded flows are compiled before
// the flows that embed them; cycles are rejected.
func (b *FlowsBuilder) Build(opts ...CompileOption) (*Flows, error) {
	cfg := compileConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.store == nil {
		cfg.store = registry.NewStore()
	}
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	order, err := b.embedOrder(cfg.external)
	if err != nil {
		return nil, err
	}

	flows := newFlows()
	var errs []error
	for _, idx := range order {
		name := b.names[idx]
		fc := &flowCompiler{
			flow:  name,
			store: cfg.store,
			resolve: func(ref string) (*Flow, error) {
				return resolveFlow(ref, flows, cfg.external)
			},
		}
		f, vis, err := fc.compile(b.segments[name])
		if err != nil {
			errs = append(errs, &CompileError{Flow: name, Err: err})
			continue
		}
		flows.add(f, vis)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	flows.order = slices.Clone(b.names)
	return flows, nil
}

// Compile compiles a single flow.
func Compile(name string, seg Segment, opts ...CompileOption) (*Flow, *Visualizer, error) {
	flows, err := NewFlowsBuilder().Add(name, seg).Build(opts...)
	if err != nil {
		return nil, nil, err
	}
	f, _ := flows.Flow(name)
	vis, _ := flows.Visualizer(name)
	return f, vis, nil
}

// embedOrder returns flow indices ordered so that every flow comes after
// the flows it embeds.
func (b *FlowsBuilder) embedOrder(external *Flows) ([]int, error) {
	index := make(map[string]int, len(b.names))
	for i, n := range b.names {
		index[n] = i
	}

	deps := make([][]int, len(b.names))
	var errs []error
	for i, n := range b.names {
		for _, ref := range embedRefs(b.segments[n]) {
			target, err := matchName(ref, b.names)
			if err != nil {
				if errors.Is(err, ErrFlowNotFound) && external != nil {
					if _, extErr := resolveFlow(ref, nil, external); extErr == nil {
						continue
					}
				}
				errs = append(errs, &CompileError{Flow: n, Err: err})
				continue
			}
			deps[i] = append(deps[i], index[target])
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make([]int, len(b.names))
	order := make([]int, 0, len(b.names))
	var stack []int

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case visited:
			return nil
		case visiting:
			start := slices.Index(stack, i)
			path := make([]string, 0, len(stack)-start+1)
			for _, s := range stack[start:] {
				path = append(path, b.names[s])
			}
			return &EmbedCycleError{Path: append(path, b.names[i])}
		}
		state[i] = visiting
		stack = append(stack, i)
		for _, d := range deps[i] {
			if err := visit(d); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = visited
		order = append(order, i)
		return nil
	}

	for i := range b.names {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func embedRefs(seg Segment) []string {
	var refs []string
	var walk func(Segment)
	walk = func(s Segment) {
		switch v := s.(type) {
		case *nodeSegment:
			if v.kind == KindEmbed {
				refs = append(refs, v.flow)
			}
			for _, r := range v.routes {
				if r.Segment != nil {
					walk(r.Segment)
				}
			}
		case *sequenceSegment:
			for _, c := range v.children {
				walk(c)
			}
		case *parallelSegment:
			for _, c := range v.children {
				walk(c)
			}
		case *labelSegment:
			walk(v.child)
		}
	}
	walk(seg)
	return refs
}

// matchName resolves ref against names: an exact match wins, otherwise a
// single name ending in "/ref" or ".ref".
func matchName(ref string, names []string) (string, error) {
	if slices.Contains(names, ref) {
		return ref, nil
	}
	var found []string
	for _, n := range names {
		if strings.HasSuffix(n, "/"+ref) || strings.HasSuffix(n, "."+ref) {
			found = append(found, n)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrFlowNotFound, ref)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w: %s matches %v", ErrAmbiguousFlow, ref, found)
	}
}

func resolveFlow(ref string, local, external *Flows) (*Flow, error) {
	var lastErr error
	for _, fs := range []*Flows{local, external} {
		if fs == nil {
			continue
		}
		name, err := matchName(ref, fs.Names())
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrFlowNotFound) {
				continue
			}
			return nil, err
		}
		f, _ := fs.Flow(name)
		return f, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: %s", ErrFlowNotFound, ref)
	}
	return nil, lastErr
}

// flowCompiler wires one flow's segments into a node arena and then
// builds handlers from it.
type flowCompiler struct {
	flow    string
	store   *registry.Store
	resolve func(ref string) (*Flow, error)

	specs  []*nodeSpec
	groups []string
	errs   []error
}

func (fc *flowCompiler) compile(seg Segment) (*Flow, *Visualizer, error) {
	end := fc.add(&nodeSpec{name: "end", kind: KindEnd, next: -1})
	entry := fc.wire(seg, end)
	start := fc.add(&nodeSpec{name: "start", kind: KindStart, next: entry})
	if len(fc.errs) > 0 {
		return nil, nil, errors.Join(fc.errs...)
	}

	f := &Flow{name: fc.flow, store: fc.store, nodes: len(fc.specs)}
	factory := &nodeFactory{specs: fc.specs, built: make([]actionHandler, len(fc.specs))}
	f.entry = factory.get(start)
	return f, newVisualizer(fc.flow, fc.specs, start), nil
}

func (fc *flowCompiler) add(spec *nodeSpec) int {
	spec.id = len(fc.specs)
	spec.group = slices.Clone(fc.groups)
	fc.specs = append(fc.specs, spec)
	return spec.id
}

// wire adds the nodes of seg, connecting its exit to next, and returns the
// id of its entry node.
func (fc *flowCompiler) wire(seg Segment, next int) int {
	switch s := seg.(type) {
	case *sequenceSegment:
		for i := len(s.children) - 1; i >= 0; i-- {
			next = fc.wire(s.children[i], next)
		}
		return next

	case *parallelSegment:
		if len(s.children) == 0 {
			return next
		}
		join := fc.add(&nodeSpec{name: "join", kind: KindJoin, next: next, expected: len(s.children)})
		branches := make([]int, len(s.children))
		for i, child := range s.children {
			branches[i] = fc.wire(child, join)
		}
		return fc.add(&nodeSpec{name: "parallel", kind: KindSplit, next: join, branches: branches})

	case *labelSegment:
		fc.groups = append(fc.groups, s.name)
		entry := fc.wire(s.child, next)
		fc.groups = fc.groups[:len(fc.groups)-1]
		return entry

	case *nodeSegment:
		return fc.wireNode(s, next)
	}
	fc.errs = append(fc.errs, fmt.Errorf("unsupported segment %T", seg))
	return next
}

func (fc *flowCompiler) wireNode(s *nodeSegment, next int) int {
	spec := &nodeSpec{name: s.name, kind: s.kind, next: next, op: s.op, async: s.async, router: s.router}
	if spec.name == "" {
		spec.name = s.kind.String()
	}

	switch s.kind {
	case KindEmbed:
		f, err := fc.resolve(s.flow)
		if err != nil {
			fc.errs = append(fc.errs, fmt.Errorf("embed %s: %w", spec.name, err))
			return next
		}
		spec.embed = f

	case KindRouter:
		declared := s.router.Routes()
		seen := make(map[string]bool, len(s.routes))
		for _, r := range s.routes {
			if !slices.Contains(declared, r.Name) {
				fc.errs = append(fc.errs, &RouteError{Node: spec.name, Route: r.Name, Declared: declared})
				continue
			}
			if seen[r.Name] {
				fc.errs = append(fc.errs, fmt.Errorf("router %s: route %q configured twice", spec.name, r.Name))
				continue
			}
			seen[r.Name] = true
			entry := next
			if r.Segment != nil {
				entry = fc.wire(r.Segment, next)
			}
			spec.routes = append(spec.routes, routeSpec{name: r.Name, entry: entry})
		}
	}
	return fc.add(spec)
}

// nodeFactory builds handlers from specs, memoized per id so nodes with
// several predecessors are built once.
type nodeFactory struct {
	specs []*nodeSpec
	built []actionHandler
}

func (nf *nodeFactory) get(id int) actionHandler {
	if h := nf.built[id]; h != nil {
		return h
	}
	h := nf.build(nf.specs[id])
	nf.built[id] = h
	return h
}

func (nf *nodeFactory) build(spec *nodeSpec) actionHandler {
	onErr := &nodeErrorHandler{node: spec}
	switch spec.kind {
	case KindStart:
		return &startAction{next: nf.get(spec.next)}
	case KindEnd:
		return endAction{}
	case KindOperation:
		return &operationAction{node: spec, op: spec.op, next: nf.get(spec.next), onErr: onErr}
	case KindAsync:
		return &asyncAction{node: spec, op: spec.async, next: nf.get(spec.next), onErr: onErr}
	case KindRouter:
		routes := make(map[string]actionHandler, len(spec.routes))
		for _, r := range spec.routes {
			routes[r.name] = nf.get(r.entry)
		}
		return &routerAction{node: spec, router: spec.router, routes: routes, onErr: onErr, halt: haltRun{}}
	case KindEmbed:
		return &embedAction{node: spec, flow: spec.embed, next: nf.get(spec.next), onErr: onErr, halt: haltRun{}}
	case KindSplit:
		branches := make([]actionHandler, len(spec.branches))
		for i, b := range spec.branches {
			branches[i] = nf.get(b)
		}
		return &splitAction{node: spec, branches: branches}
	case KindJoin:
		return &joinAction{node: spec, expected: spec.expected, next: nf.get(spec.next)}
	}
	panic(fmt.Sprintf("flowgraph: no handler for node kind %s", spec.kind))
}
