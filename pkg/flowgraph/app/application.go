package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/config"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/document"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module"
)

// Application is one deployed version of an application.
//
// Runs are admitted while the application is live. Pause holds new runs
// until Resume or Undeploy; runs already admitted are unaffected.
type Application struct {
	identity   string
	version    int
	def        *module.Definition
	source     Source
	rt         *flowgraph.Runtime
	logger     *slog.Logger
	deployedAt time.Time

	mu         sync.Mutex
	paused     bool
	undeployed bool
	resumed    chan struct{} // closed on resume or undeploy
	inflight   sync.WaitGroup

	undeployOnce sync.Once
	undeployErr  error
}

func newApplication(identity string, version int, def *module.Definition, src Source, rt *flowgraph.Runtime, logger *slog.Logger) *Application {
	return &Application{
		identity:   identity,
		version:    version,
		def:        def,
		source:     src,
		rt:         rt,
		logger:     logger.With("identity", identity, "version", version),
		deployedAt: time.Now(),
	}
}

// Identity returns the identity the application is deployed under.
func (a *Application) Identity() string { return a.identity }

// Version returns the application's version number.
func (a *Application) Version() int { return a.version }

// Name returns the display name, falling back to the identity.
func (a *Application) Name() string {
	if a.def.Name != "" {
		return a.def.Name
	}
	return a.identity
}

// Source returns the source the application was built from.
func (a *Application) Source() Source { return a.source }

// DeployedAt returns when the version was built.
func (a *Application) DeployedAt() time.Time { return a.deployedAt }

// Flows returns the application's compiled flows.
func (a *Application) Flows() *flowgraph.Flows { return a.def.Flows }

// Modules returns the names of the configured modules.
func (a *Application) Modules() []string { return slices.Clone(a.def.Modules) }

// Network returns the application's network bindings.
func (a *Application) Network() []config.Network { return slices.Clone(a.def.Network) }

// Visualizer returns the visualizer for a flow. module.InitializerFlow
// names the initializer.
func (a *Application) Visualizer(flow string) (*flowgraph.Visualizer, bool) {
	if flow == module.InitializerFlow {
		return a.def.InitializerVisualizer, a.def.InitializerVisualizer != nil
	}
	return a.def.Flows.Visualizer(flow)
}

// Stats returns a snapshot of every flow's counters.
func (a *Application) Stats() map[string]flowgraph.StatsSnapshot {
	out := make(map[string]flowgraph.StatsSnapshot, a.def.Flows.Len())
	for _, name := range a.def.Flows.Names() {
		f, _ := a.def.Flows.Flow(name)
		out[name] = f.Stats().Snapshot()
	}
	return out
}

// Paused reports whether the application is holding new runs.
func (a *Application) Paused() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paused
}

// initialize runs the initializer flow, if any.
func (a *Application) initialize(ctx context.Context) error {
	if a.def.Initializer == nil {
		return nil
	}
	out := a.def.Initializer.Await(ctx, a.rt, document.New())
	switch out.Kind {
	case flowgraph.OutcomeOK:
		return nil
	case flowgraph.OutcomeHalted:
		return errors.New("initializer halted")
	default:
		return out.Err
	}
}

// Run starts a run of flow. It waits while the application is paused and
// returns ErrApplicationUndeployed if the application is undeployed
// first. On a nil error sub receives exactly one terminal callback.
func (a *Application) Run(ctx context.Context, flow string, doc *document.Document, sub flowgraph.Subscriber) error {
	f, ok := a.def.Flows.Flow(flow)
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrFlowNotFound, flow, a.identity)
	}
	if err := a.admit(ctx); err != nil {
		return err
	}
	f.Run(ctx, a.rt, doc, flowgraph.SubscriberFuncs{
		OnOK: func(d *document.Document) {
			defer a.inflight.Done()
			sub.OK(d)
		},
		OnHalted: func() {
			defer a.inflight.Done()
			sub.Halted()
		},
		OnError: func(d *document.Document, err error) {
			defer a.inflight.Done()
			sub.Error(d, err)
		},
	})
	return nil
}

func (a *Application) admit(ctx context.Context) error {
	for {
		a.mu.Lock()
		if a.undeployed {
			a.mu.Unlock()
			return ErrApplicationUndeployed
		}
		if !a.paused {
			a.inflight.Add(1)
			a.mu.Unlock()
			return nil
		}
		wait := a.resumed
		a.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pause stops admitting new runs and runs the pause hooks. Pausing a
// paused or undeployed application does nothing.
func (a *Application) Pause(ctx context.Context) error {
	a.mu.Lock()
	if a.paused || a.undeployed {
		a.mu.Unlock()
		return nil
	}
	a.paused = true
	a.resumed = make(chan struct{})
	a.mu.Unlock()

	return a.runHooks(ctx, "pause", a.def.Hooks.Pause, false)
}

// Resume re-admits runs and runs the resume hooks.
func (a *Application) Resume(ctx context.Context) error {
	a.mu.Lock()
	if !a.paused || a.undeployed {
		a.mu.Unlock()
		return nil
	}
	a.paused = false
	close(a.resumed)
	a.mu.Unlock()

	return a.runHooks(ctx, "resume", a.def.Hooks.Resume, false)
}

// Undeploy stops admitting runs, waits for admitted runs to finish and
// runs the undeploy hooks in reverse module order. Runs waiting on a
// paused application get ErrApplicationUndeployed. Only the first call
// does anything; later calls return its result.
//
// If ctx ends before in-flight runs finish, the hooks run anyway.
func (a *Application) Undeploy(ctx context.Context) error {
	a.undeployOnce.Do(func() {
		a.mu.Lock()
		a.undeployed = true
		if a.paused {
			close(a.resumed)
		}
		a.mu.Unlock()

		drained := make(chan struct{})
		go func() {
			a.inflight.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			a.logger.Warn("undeploying with runs in flight", "error", ctx.Err())
		}

		a.undeployErr = a.runHooks(context.WithoutCancel(ctx), "undeploy", a.def.Hooks.Undeploy, true)
	})
	return a.undeployErr
}

func (a *Application) runHooks(ctx context.Context, phase string, hooks []module.Hook, reverse bool) error {
	if reverse {
		hooks = slices.Clone(hooks)
		slices.Reverse(hooks)
	}
	var errs []error
	for _, h := range hooks {
		if err := h(ctx); err != nil {
			a.logger.Warn("lifecycle hook failed", "phase", phase, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s hooks: %w", phase, errors.Join(errs...))
	}
	return nil
}
