package module

import (
	"fmt"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/config"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/registry"
)

// InitializerFlow names the initializer flow in visualizations.
const InitializerFlow = "__initializer__"

// Definition is a configured application, ready to deploy.
type Definition struct {
	// Name is the display name; it may be empty.
	Name string

	// Modules lists the configured modules in configuration order.
	Modules []string

	Flows *flowgraph.Flows

	// Initializer is nil when no module contributed initializer segments.
	Initializer           *flowgraph.Flow
	InitializerVisualizer *flowgraph.Visualizer

	Network []config.Network
	Hooks   Hooks
	Store   *registry.Store
}

// Option configures Configure.
type Option func(*options)

type options struct {
	baseDir string
}

// WithBaseDir sets the directory relative paths in module settings are
// resolved against.
func WithBaseDir(dir string) Option {
	return func(o *options) { o.baseDir = dir }
}

// Configure builds a Definition from a parsed application. It reports
// every configuration error it finds, not just the first.
func Configure(app *config.Application, reg *Registry, opts ...Option) (*Definition, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var errs config.Collector
	uses := make(map[string]config.ModuleUse)
	names := reg.Defaults()
	for _, u := range app.Use {
		if _, dup := uses[u.Name]; dup {
			errs.Errorf(u.Node, "module %s used twice", u.Name)
			continue
		}
		uses[u.Name] = u
		names = append(names, u.Name)
	}

	mods, err := reg.Resolve(names)
	if err != nil {
		errs.Add(app.Root.Wrap(err, "use"))
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	def := &Definition{
		Name:    app.Name,
		Network: append([]config.Network(nil), app.Network...),
		Store:   registry.NewStore(),
	}
	ops := registry.New[string, OperationFactory]()
	var inits []flowgraph.Segment

	for _, m := range mods {
		u, ok := uses[m.Name()]
		node := app.Root
		if ok {
			node = u.Node
		}
		settings := node.Null()
		if ok && u.Settings != nil {
			settings = u.Settings
		}
		s := &Setup{
			module:  m.Name(),
			node:    node,
			def:     def,
			ops:     ops,
			errs:    &errs,
			inits:   &inits,
			baseDir: o.baseDir,
		}
		if err := m.Configure(settings, s); err != nil {
			errs.Add(settings.Wrap(err, "module "+m.Name()))
		}
		def.Modules = append(def.Modules, m.Name())
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	b := &builder{ops: ops, errs: &errs, store: def.Store}
	fb := flowgraph.NewFlowsBuilder()
	for _, f := range app.Flows {
		fb.Add(f.Name, b.steps(f.Steps))
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	def.Flows, err = fb.Build(flowgraph.WithStore(def.Store))
	if err != nil {
		return nil, err
	}

	if len(inits) > 0 {
		def.Initializer, def.InitializerVisualizer, err = flowgraph.Compile(
			InitializerFlow,
			flowgraph.Sequence(inits...),
			flowgraph.WithStore(def.Store),
			flowgraph.WithExternalFlows(def.Flows),
		)
		if err != nil {
			return nil, err
		}
	}
	return def, nil
}

// ConfigureSource parses data and configures it.
func ConfigureSource(source string, data []byte, reg *Registry, opts ...Option) (*Definition, error) {
	app, err := config.ParseApplication(source, data)
	if err != nil {
		return nil, err
	}
	return Configure(app, reg, opts...)
}

// Structural step keys.
const (
	keySequence = "sequence"
	keyParallel = "parallel"
	keyLabel    = "label"
	keyRun      = "run"
)

type builder struct {
	ops   *registry.Registry[string, OperationFactory]
	errs  *config.Collector
	store *registry.Store
}

func (b *builder) steps(n *config.Node) flowgraph.Segment {
	switch n.Kind() {
	case config.KindNull:
		return flowgraph.Sequence()
	case config.KindList:
		items := n.Items()
		segs := make([]flowgraph.Segment, 0, len(items))
		for _, item := range items {
			segs = append(segs, b.step(item))
		}
		return flowgraph.Sequence(segs...)
	default:
		return b.step(n)
	}
}

func (b *builder) step(n *config.Node) flowgraph.Segment {
	switch n.Kind() {
	case config.KindScalar:
		return b.operation(n.Value(), n, n.Null())
	case config.KindList:
		return b.steps(n)
	case config.KindMap:
	default:
		return b.fail(n.Errorf("empty step"))
	}

	pairs := n.Pairs()
	if len(pairs) != 1 {
		return b.fail(n.Errorf("step must have exactly one key, got %d", len(pairs)))
	}
	p := pairs[0]

	switch p.Key {
	case keySequence:
		return b.steps(p.Value)

	case keyParallel:
		if p.Value.Kind() != config.KindList {
			return b.fail(p.Value.Errorf("parallel takes a list of steps"))
		}
		items := p.Value.Items()
		segs := make([]flowgraph.Segment, 0, len(items))
		for _, item := range items {
			segs = append(segs, b.step(item))
		}
		return flowgraph.Parallel(segs...)

	case keyLabel:
		name, ok := p.Value.Get("name")
		if !ok || name.Kind() != config.KindScalar || name.Value() == "" {
			return b.fail(p.Value.Errorf("label requires a name"))
		}
		do, ok := p.Value.Get("do")
		if !ok {
			return b.fail(p.Value.Errorf("label %s requires do", name.Value()))
		}
		return flowgraph.Label(name.Value(), b.steps(do))

	case keyRun:
		if p.Value.Kind() != config.KindScalar || p.Value.Value() == "" {
			return b.fail(p.Value.Errorf("run takes a flow name"))
		}
		return flowgraph.Embed("", p.Value.Value())

	default:
		return b.operation(p.Key, p.KeyNode, p.Value)
	}
}

func (b *builder) operation(name string, key, body *config.Node) flowgraph.Segment {
	f, ok := b.ops.Get(name)
	if !ok {
		return b.fail(key.Wrap(fmt.Errorf("%w %q", ErrUnknownOperation, name), "step"))
	}
	seg, err := f(&Step{Op: name, Body: body, Key: key, b: b})
	if err != nil {
		return b.fail(body.Wrap(err, name))
	}
	if seg == nil {
		return b.fail(key.Errorf("operation %s built no segment", name))
	}
	return seg
}

// fail records err and returns a placeholder so building can continue.
func (b *builder) fail(err error) flowgraph.Segment {
	b.errs.Add(err)
	return flowgraph.Sequence()
}
