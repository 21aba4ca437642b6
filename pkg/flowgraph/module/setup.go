package module

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/config"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/registry"
)

// Hook runs at an application lifecycle transition.
type Hook func(ctx context.Context) error

// Hooks are the lifecycle hooks collected from every module, in module
// order.
type Hooks struct {
	Undeploy []Hook
	Pause    []Hook
	Resume   []Hook
}

// OperationFactory builds the segment for one step.
type OperationFactory func(s *Step) (flowgraph.Segment, error)

// Setup receives one module's contributions during Configure.
type Setup struct {
	module  string
	node    *config.Node
	def     *Definition
	ops     *registry.Registry[string, OperationFactory]
	errs    *config.Collector
	inits   *[]flowgraph.Segment
	baseDir string
}

// Module returns the name of the module being configured.
func (s *Setup) Module() string { return s.module }

// Store returns the application's shared store. Values put here during
// Configure are visible to every operation through Context.Store.
func (s *Setup) Store() *registry.Store { return s.def.Store }

// Path resolves p against the application's base directory.
func (s *Setup) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || s.baseDir == "" {
		return p
	}
	return filepath.Join(s.baseDir, p)
}

// Operation registers an operation under name.
func (s *Setup) Operation(name string, f OperationFactory) {
	if f == nil {
		s.Errorf("operation %q has no factory", name)
		return
	}
	if !s.ops.RegisterUnique(name, f) {
		s.errs.Add(s.node.Wrap(fmt.Errorf("%w: %s", ErrDuplicateOperation, name), "module "+s.module))
	}
}

// Initializer adds a segment to the initializer flow. Initializer
// segments run once per deploy, in module order, before the application
// is installed. A failing initializer fails the deploy.
func (s *Setup) Initializer(seg flowgraph.Segment) {
	*s.inits = append(*s.inits, seg)
}

// Network declares a network binding.
func (s *Setup) Network(n config.Network) {
	if err := n.Validate(); err != nil {
		s.errs.Add(s.node.Wrap(err, "module "+s.module+" network"))
		return
	}
	s.def.Network = append(s.def.Network, n)
}

// OnUndeploy registers a hook run when the application is undeployed.
func (s *Setup) OnUndeploy(h Hook) { s.def.Hooks.Undeploy = append(s.def.Hooks.Undeploy, h) }

// OnPause registers a hook run when the application is paused.
func (s *Setup) OnPause(h Hook) { s.def.Hooks.Pause = append(s.def.Hooks.Pause, h) }

// OnResume registers a hook run when the application is resumed.
func (s *Setup) OnResume(h Hook) { s.def.Hooks.Resume = append(s.def.Hooks.Resume, h) }

// Errorf records a configuration error positioned at the module's use entry.
func (s *Setup) Errorf(format string, args ...any) {
	s.errs.Add(s.node.Errorf("module %s: %s", s.module, fmt.Sprintf(format, args...)))
}
