package flowgraph

import (
	"log/slog"
	"runtime"

	"github.com/randalmurphal/flowhost/pkg/flowgraph/observability"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/registry"
)

// Runtime holds the execution contexts and observability shared by runs.
// Runs never create executors of their own; everything is injected here.
type Runtime struct {
	operations   Executor
	coordination Executor
	owned        []*Pool

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	operationWorkers    int
	coordinationWorkers int
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithOperationExecutor sets the executor running operation code and
// subscriber callbacks.
func WithOperationExecutor(e Executor) RuntimeOption {
	return func(r *Runtime) {
		r.operations = e
	}
}

// WithCoordinationExecutor sets the executor running coordination work.
func WithCoordinationExecutor(e Executor) RuntimeOption {
	return func(r *Runtime) {
		r.coordination = e
	}
}

// WithOperationWorkers sizes the default operation pool.
func WithOperationWorkers(n int) RuntimeOption {
	return func(r *Runtime) {
		r.operationWorkers = n
	}
}

// WithCoordinationWorkers sizes the default coordination pool.
func WithCoordinationWorkers(n int) RuntimeOption {
	return func(r *Runtime) {
		r.coordinationWorkers = n
	}
}

// WithLogger sets the logger used for run logging.
func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithMetrics enables or disables OpenTelemetry metrics.
func WithMetrics(enabled bool) RuntimeOption {
	return func(r *Runtime) {
		if enabled {
			r.metrics = observability.NewMetricsRecorder()
		} else {
			r.metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables or disables OpenTelemetry tracing.
func WithTracing(enabled bool) RuntimeOption {
	return func(r *Runtime) {
		if enabled {
			r.spans = observability.NewSpanManager()
		} else {
			r.spans = observability.NoopSpanManager{}
		}
	}
}

// NewRuntime creates a runtime. Executors not supplied are created as pools
// owned by the runtime and stopped by Close.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		logger:              slog.Default(),
		metrics:             observability.NoopMetrics{},
		spans:               observability.NoopSpanManager{},
		operationWorkers:    runtime.GOMAXPROCS(0) * 4,
		coordinationWorkers: max(2, runtime.GOMAXPROCS(0)/2),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.operations == nil {
		p := NewPool("operations", r.operationWorkers, r.logger)
		r.operations = p
		r.owned = append(r.owned, p)
	}
	if r.coordination == nil {
		p := NewPool("coordination", r.coordinationWorkers, r.logger)
		r.coordination = p
		r.owned = append(r.owned, p)
	}
	return r
}

// Logger returns the runtime logger.
func (r *Runtime) Logger() *slog.Logger {
	return r.logger
}

// Metrics returns the runtime metrics recorder.
func (r *Runtime) Metrics() observability.MetricsRecorder {
	return r.metrics
}

// Spans returns the runtime span manager.
func (r *Runtime) Spans() observability.SpanManager {
	return r.spans
}

// Close stops the pools created by NewRuntime.
func (r *Runtime) Close() {
	for _, p := range r.owned {
		p.Close()
	}
}

// CompileOption configures compilation.
type CompileOption func(*compileConfig)

type compileConfig struct {
	store    *registry.Store
	external *Flows
}

// WithStore sets the store handed to operations through Context.Store.
func WithStore(store *registry.Store) CompileOption {
	return func(c *compileConfig) {
		c.store = store
	}
}

// WithExternalFlows lets embed references resolve against flows compiled
// earlier, such as an application's flows from its initializer.
func WithExternalFlows(flows *Flows) CompileOption {
	return func(c *compileConfig) {
		c.external = flows
	}
}
