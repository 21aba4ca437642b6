package module

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/randalmurphal/flowhost/pkg/flowgraph/config"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/registry"
)

// Sentinel errors for module resolution and configuration.
var (
	// ErrUnknownModule indicates a use or requires entry naming no module.
	ErrUnknownModule = errors.New("unknown module")

	// ErrDuplicateModule indicates two modules registered under one name.
	ErrDuplicateModule = errors.New("duplicate module")

	// ErrModuleCycle indicates modules that require each other.
	ErrModuleCycle = errors.New("module dependency cycle")

	// ErrUnknownOperation indicates a step naming no registered operation.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrDuplicateOperation indicates two modules registering one operation.
	ErrDuplicateOperation = errors.New("duplicate operation")
)

// Module contributes operations and lifecycle hooks to applications that
// use it.
type Module interface {
	// Name is the key applications use to enable the module.
	Name() string

	// Requires names modules that must be configured first.
	Requires() []string

	// Configure registers the module's contributions. settings is the
	// module's entry under "use" and is a null node when absent.
	Configure(settings *config.Node, s *Setup) error
}

// Registry holds the modules available to applications.
type Registry struct {
	modules  *registry.Registry[string, Module]
	defaults []string
}

// NewRegistry creates a registry holding mods.
func NewRegistry(mods ...Module) (*Registry, error) {
	r := &Registry{modules: registry.New[string, Module]()}
	var errs []error
	for _, m := range mods {
		errs = append(errs, r.Register(m))
	}
	return r, errors.Join(errs...)
}

// Register adds a module.
func (r *Registry) Register(m Module) error {
	if m == nil || strings.TrimSpace(m.Name()) == "" {
		return fmt.Errorf("%w: module has no name", ErrUnknownModule)
	}
	if !r.modules.RegisterUnique(m.Name(), m) {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, m.Name())
	}
	return nil
}

// RegisterDefault adds a module that every application uses implicitly.
func (r *Registry) RegisterDefault(m Module) error {
	if err := r.Register(m); err != nil {
		return err
	}
	r.defaults = append(r.defaults, m.Name())
	return nil
}

// Get returns the module registered under name.
func (r *Registry) Get(name string) (Module, bool) {
	return r.modules.Get(name)
}

// Names returns the registered module names, sorted.
func (r *Registry) Names() []string {
	return registry.SortedKeys(r.modules)
}

// Defaults returns the names of implicitly used modules.
func (r *Registry) Defaults() []string {
	return slices.Clone(r.defaults)
}

// Resolve returns the modules named, plus everything they require, ordered
// so that each module comes after its requirements. Ties keep the order
// in which modules were first named.
func (r *Registry) Resolve(names []string) ([]Module, error) {
	var (
		mods  []Module
		deps  [][]int
		index = make(map[string]int)
		errs  []error
	)

	var add func(name, requiredBy string) int
	add = func(name, requiredBy string) int {
		if i, ok := index[name]; ok {
			return i
		}
		m, ok := r.modules.Get(name)
		if !ok {
			if requiredBy != "" {
				errs = append(errs, fmt.Errorf("%w: %s (required by %s)", ErrUnknownModule, name, requiredBy))
			} else {
				errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownModule, name))
			}
			return -1
		}
		i := len(mods)
		index[name] = i
		mods = append(mods, m)
		deps = append(deps, nil)
		for _, req := range m.Requires() {
			if j := add(req, name); j >= 0 {
				deps[i] = append(deps[i], j)
			}
		}
		return i
	}
	for _, name := range names {
		add(name, "")
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make([]int, len(mods))
	order := make([]Module, 0, len(mods))
	var stack []int

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case visited:
			return nil
		case visiting:
			start := slices.Index(stack, i)
			path := make([]string, 0, len(stack)-start+1)
			for _, j := range stack[start:] {
				path = append(path, mods[j].Name())
			}
			path = append(path, mods[i].Name())
			return fmt.Errorf("%w: %s", ErrModuleCycle, strings.Join(path, " -> "))
		}
		state[i] = visiting
		stack = append(stack, i)
		for _, j := range deps[i] {
			if err := visit(j); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = visited
		order = append(order, mods[i])
		return nil
	}
	for i := range mods {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return order, nil
}
