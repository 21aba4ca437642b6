package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/document"
	fgerrors "github.com/randalmurphal/flowhost/pkg/flowgraph/errors"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/event"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/observability"
)

// Manager deploys applications and routes runs to their live versions.
type Manager struct {
	dataDir  string
	tmpDir   string
	registry *module.Registry
	rt       *flowgraph.Runtime
	state    StateStore
	bus      event.Bus
	logger   *slog.Logger
	ownsRT   bool
	ownsBus  bool

	mu       sync.RWMutex
	apps     map[string]*Application
	versions map[string]int
	sources  map[string]Source // persisted sources by identity

	work      chan request
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

type request struct {
	ctx    context.Context
	fn     func(ctx context.Context) error
	result chan error
}

// NewManager creates a manager and starts its deployment worker. It fails
// if the data directory is not writable or the tmp directory cannot be
// created.
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{
		apps:     make(map[string]*Application),
		versions: make(map[string]int),
		sources:  make(map[string]Source),
		work:     make(chan request),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.registry == nil {
		return nil, errors.New("app: module registry is required")
	}
	if err := checkDirs(m); err != nil {
		return nil, err
	}
	if m.rt == nil {
		var rtOpts []flowgraph.RuntimeOption
		if m.logger != nil {
			rtOpts = append(rtOpts, flowgraph.WithLogger(m.logger))
		}
		m.rt = flowgraph.NewRuntime(rtOpts...)
		m.ownsRT = true
	}
	if m.logger == nil {
		m.logger = m.rt.Logger()
	}
	if m.state == nil {
		m.state = NewFileStateStore(filepath.Join(m.dataDir, DefaultStateFile), m.logger)
	}
	if m.bus == nil {
		m.bus = event.NewBus(event.BusConfig{
			OnError: func(evt event.Event, sub string, err error) {
				m.logger.Warn("event handler failed", "event", evt.Type(), "subscriber", sub, "error", err)
			},
		})
		m.ownsBus = true
	}

	go m.loop()
	return m, nil
}

func checkDirs(m *Manager) error {
	if m.dataDir == "" {
		return errors.New("app: data directory is required")
	}
	if err := os.MkdirAll(m.dataDir, 0o755); err != nil {
		return fmt.Errorf("app: data directory: %w", err)
	}
	probe, err := os.CreateTemp(m.dataDir, ".probe-*")
	if err != nil {
		return fmt.Errorf("app: data directory %s is not writable: %w", m.dataDir, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	if m.tmpDir == "" {
		m.tmpDir = filepath.Join(m.dataDir, "tmp")
	}
	if err := os.MkdirAll(m.tmpDir, 0o755); err != nil {
		return fmt.Errorf("app: tmp directory: %w", err)
	}
	return nil
}

// DataDir returns the data directory.
func (m *Manager) DataDir() string { return m.dataDir }

// TmpDir returns the scratch directory.
func (m *Manager) TmpDir() string { return m.tmpDir }

// Bus returns the bus lifecycle events are published on.
func (m *Manager) Bus() event.Bus { return m.bus }

// Runtime returns the runtime applications run on.
func (m *Manager) Runtime() *flowgraph.Runtime { return m.rt }

func (m *Manager) loop() {
	defer close(m.stopped)
	for {
		select {
		case req := <-m.work:
			req.result <- req.fn(req.ctx)
		case <-m.done:
			return
		}
	}
}

// do runs fn on the deployment worker and waits for its result.
func (m *Manager) do(ctx context.Context, fn func(ctx context.Context) error) error {
	req := request{ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case m.work <- req:
	case <-m.done:
		return ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.result
}

// Deploy builds src and installs it under identity, replacing any live
// version. File sources are persisted.
func (m *Manager) Deploy(ctx context.Context, identity string, src Source) (*Application, error) {
	var a *Application
	err := m.do(ctx, func(ctx context.Context) error {
		var err error
		a, err = m.deploy(ctx, identity, src, src.Path() != "")
		return err
	})
	return a, err
}

// DeployTransient is Deploy without persistence. It also removes any
// persisted source for identity.
func (m *Manager) DeployTransient(ctx context.Context, identity string, src Source) (*Application, error) {
	var a *Application
	err := m.do(ctx, func(ctx context.Context) error {
		var err error
		a, err = m.deploy(ctx, identity, src, false)
		return err
	})
	return a, err
}

// Redeploy rebuilds identity by rereading the file its live version came
// from. Content sources cannot be redeployed.
func (m *Manager) Redeploy(ctx context.Context, identity string) (*Application, error) {
	var a *Application
	err := m.do(ctx, func(ctx context.Context) error {
		m.mu.RLock()
		live, ok := m.apps[identity]
		m.mu.RUnlock()
		if !ok {
			return fmt.Errorf("%w: %s", ErrApplicationNotFound, identity)
		}
		src := live.Source()
		if !hasFile(src) {
			return fmt.Errorf("%w: %s", ErrNoSource, src.Name())
		}
		var err error
		a, err = m.deploy(ctx, identity, src, m.HasSource(identity))
		return err
	})
	return a, err
}

// Undeploy undeploys identity's live version and forgets its source. The
// version counter is kept.
func (m *Manager) Undeploy(ctx context.Context, identity string) error {
	return m.do(ctx, func(ctx context.Context) error {
		m.mu.Lock()
		a, ok := m.apps[identity]
		if ok {
			delete(m.apps, identity)
		}
		_, persisted := m.sources[identity]
		delete(m.sources, identity)
		m.mu.Unlock()
		if !ok {
			return fmt.Errorf("%w: %s", ErrApplicationNotFound, identity)
		}

		err := m.retire(ctx, a)
		if persisted {
			err = errors.Join(err, m.persist(ctx))
		}
		return err
	})
}

// Validate checks src without deploying it or taking a version.
func (m *Manager) Validate(ctx context.Context, src Source) error {
	return m.do(ctx, func(context.Context) error {
		_, err := m.configure(src)
		return err
	})
}

func validIdentity(identity string) error {
	if strings.TrimSpace(identity) == "" || strings.ContainsAny(identity, ":\n\r/") {
		return fmt.Errorf("%w: %q", ErrInvalidIdentity, identity)
	}
	return nil
}

func (m *Manager) configure(src Source) (*module.Definition, error) {
	data, err := src.Read()
	if err != nil {
		return nil, fgerrors.NotFound(err, "read source")
	}
	baseDir := src.BaseDir()
	if baseDir == "" {
		baseDir = m.dataDir
	}
	return module.ConfigureSource(src.Name(), data, m.registry, module.WithBaseDir(baseDir))
}

// deploy runs on the worker.
func (m *Manager) deploy(ctx context.Context, identity string, src Source, persist bool) (*Application, error) {
	if err := validIdentity(identity); err != nil {
		return nil, err
	}
	elapsed := observability.TimedOperation()

	def, err := m.configure(src)
	if err != nil {
		return nil, &DeployError{Identity: identity, Err: err}
	}

	m.mu.Lock()
	m.versions[identity]++
	version := m.versions[identity]
	prev := m.apps[identity]
	m.mu.Unlock()

	ctx, span := m.rt.Spans().StartDeploySpan(ctx, identity, version)
	defer span.End()
	correlation := event.WithCorrelationID(fmt.Sprintf("%s/%d", identity, version))

	if prev != nil {
		if err := prev.Pause(ctx); err != nil {
			m.logger.Warn("pause hooks failed", "identity", identity, "version", prev.version, "error", err)
		}
		m.publish(ctx, event.TypePaused, prev, nil, correlation)
	}

	a := newApplication(identity, version, def, src, m.rt, m.logger)
	if err := a.initialize(ctx); err != nil {
		err = &DeployError{Identity: identity, Version: version, Err: fgerrors.Deploy(err, "initialize")}
		// Release whatever the initializer acquired before it failed.
		if uerr := a.Undeploy(ctx); uerr != nil {
			m.logger.Warn("cleanup after failed deploy", "identity", identity, "version", version, "error", uerr)
		}
		if prev != nil {
			if rerr := prev.Resume(ctx); rerr != nil {
				m.logger.Warn("resume hooks failed", "identity", identity, "version", prev.version, "error", rerr)
			}
			m.publish(ctx, event.TypeResumed, prev, nil, correlation)
		}
		m.rt.Metrics().RecordDeploy(ctx, identity, false, time.Duration(elapsed()*float64(time.Millisecond)))
		m.rt.Spans().EndSpanWithError(span, err)
		observability.LogDeployError(m.logger, identity, version, err)
		m.publish(ctx, event.TypeDeployFailed, a, err, correlation)
		return nil, err
	}

	m.mu.Lock()
	m.apps[identity] = a
	_, wasPersisted := m.sources[identity]
	if persist {
		m.sources[identity] = src
	} else {
		delete(m.sources, identity)
	}
	m.mu.Unlock()

	var errs []error
	if prev != nil {
		if err := m.retire(ctx, prev); err != nil {
			errs = append(errs, err)
		}
	}
	if persist || wasPersisted {
		errs = append(errs, m.persist(ctx))
	}

	ms := elapsed()
	m.rt.Metrics().RecordDeploy(ctx, identity, true, time.Duration(ms*float64(time.Millisecond)))
	observability.LogDeploy(m.logger, identity, version, ms)
	m.publish(ctx, event.TypeDeployed, a, nil, correlation)

	if err := errors.Join(errs...); err != nil {
		m.logger.Warn("deployed with errors", "identity", identity, "version", version, "error", err)
	}
	return a, nil
}

// retire undeploys a version that has already been removed or replaced.
func (m *Manager) retire(ctx context.Context, a *Application) error {
	err := a.Undeploy(ctx)
	observability.LogUndeploy(m.logger, a.identity, a.version)
	m.publish(ctx, event.TypeUndeployed, a, err)
	return err
}

func (m *Manager) persist(ctx context.Context) error {
	m.mu.RLock()
	entries := make([]StateEntry, 0, len(m.sources))
	for id, src := range m.sources {
		entries = append(entries, StateEntry{Identity: id, Path: src.Path()})
	}
	m.mu.RUnlock()
	slices.SortFunc(entries, func(a, b StateEntry) int { return strings.Compare(a.Identity, b.Identity) })

	if err := m.state.Save(ctx, entries); err != nil {
		m.logger.Error("failed to persist state", "error", err)
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

func (m *Manager) publish(ctx context.Context, typ string, a *Application, err error, opts ...event.EventOption) {
	evt := event.NewLifecycle(typ, a.identity, a.version, err, opts...)
	if perr := m.bus.Publish(ctx, evt); perr != nil {
		m.logger.Debug("lifecycle event not published", "event", typ, "error", perr)
	}
}

// Get returns identity's live version.
func (m *Manager) Get(identity string) (*Application, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.apps[identity]
	return a, ok
}

// List returns the live applications sorted by identity.
func (m *Manager) List() []*Application {
	m.mu.RLock()
	apps := make([]*Application, 0, len(m.apps))
	for _, a := range m.apps {
		apps = append(apps, a)
	}
	m.mu.RUnlock()
	slices.SortFunc(apps, func(a, b *Application) int { return strings.Compare(a.identity, b.identity) })
	return apps
}

// Version returns the last version number taken for identity, or 0.
func (m *Manager) Version(identity string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[identity]
}

// HasSource reports whether identity has a persisted source.
func (m *Manager) HasSource(identity string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sources[identity]
	return ok
}

// Visualize returns the visualizer for one of identity's flows.
func (m *Manager) Visualize(identity, flow string) (*flowgraph.Visualizer, error) {
	a, ok := m.Get(identity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrApplicationNotFound, identity)
	}
	vis, ok := a.Visualizer(flow)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrFlowNotFound, flow, identity)
	}
	return vis, nil
}

// Run starts a run of flow on identity's live version. If that version
// is replaced while the run waits for admission, the run moves to the
// replacement.
func (m *Manager) Run(ctx context.Context, identity, flow string, doc *document.Document, sub flowgraph.Subscriber) error {
	var last *Application
	for {
		a, ok := m.Get(identity)
		if !ok || a == last {
			return fmt.Errorf("%w: %s", ErrApplicationNotFound, identity)
		}
		err := a.Run(ctx, flow, doc, sub)
		if !errors.Is(err, ErrApplicationUndeployed) {
			return err
		}
		last = a
	}
}

// Await runs flow and waits for its outcome.
func (m *Manager) Await(ctx context.Context, identity, flow string, doc *document.Document) (flowgraph.Outcome, error) {
	ch := make(chan flowgraph.Outcome, 1)
	if err := m.Run(ctx, identity, flow, doc, flowgraph.OutcomeFunc(func(o flowgraph.Outcome) { ch <- o })); err != nil {
		return flowgraph.Outcome{}, err
	}
	select {
	case o := <-ch:
		return o, nil
	case <-ctx.Done():
		return flowgraph.Outcome{}, ctx.Err()
	}
}

// Restore deploys every persisted source. Sources that fail to deploy are
// logged and skipped. It returns the number of applications deployed.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	entries, err := m.state.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load state: %w", err)
	}
	restored := 0
	for _, e := range entries {
		src, err := FileSource(e.Path)
		if err == nil {
			_, err = m.Deploy(ctx, e.Identity, src)
		}
		if err != nil {
			m.logger.Warn("skipping application during restore", "identity", e.Identity, "path", e.Path, "error", err)
			continue
		}
		restored++
	}
	return restored, nil
}

// Close stops the deployment worker and undeploys every live application.
// Persisted state is left in place for Restore.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	m.closeOnce.Do(func() {
		close(m.done)
		<-m.stopped

		for _, a := range m.List() {
			if err := a.Undeploy(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		m.mu.Lock()
		clear(m.apps)
		m.mu.Unlock()

		if m.ownsBus {
			errs = append(errs, m.bus.Close())
		}
		errs = append(errs, m.state.Close())
		if m.ownsRT {
			m.rt.Close()
		}
	})
	return errors.Join(errs...)
}
