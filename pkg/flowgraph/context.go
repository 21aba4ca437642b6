package flowgraph

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/registry"
)

// Context is what operations see of a run.
// It extends context.Context with the run's logger, the application store
// and identifying metadata. Operations never receive the coordination-side
// FlowContext, so they cannot touch per-node run state.
type Context interface {
	context.Context

	// Logger returns a logger enriched with flow, run and node fields.
	// Never returns nil.
	Logger() *slog.Logger

	// Store returns the typed store supplied at compile time.
	// Never returns nil.
	Store() *registry.Store

	// RunID returns the unique identifier of the current run.
	RunID() string

	// FlowName returns the name of the flow being run.
	FlowName() string

	// NodeID returns the name of the node being executed.
	NodeID() string
}

type executionContext struct {
	context.Context

	logger *slog.Logger
	store  *registry.Store
	runID  string
	flow   string
	nodeID string
}

func (c *executionContext) Logger() *slog.Logger   { return c.logger }
func (c *executionContext) Store() *registry.Store { return c.store }
func (c *executionContext) RunID() string          { return c.runID }
func (c *executionContext) FlowName() string       { return c.flow }
func (c *executionContext) NodeID() string         { return c.nodeID }

// ContextOption configures a Context built with NewContext.
type ContextOption func(*executionContext)

// WithContextLogger sets the logger.
func WithContextLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		c.logger = logger
	}
}

// WithContextStore sets the store.
func WithContextStore(store *registry.Store) ContextOption {
	return func(c *executionContext) {
		c.store = store
	}
}

// WithContextRunID sets the run identifier. A UUID is generated otherwise.
func WithContextRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// WithContextNode sets the flow and node names.
func WithContextNode(flow, node string) ContextOption {
	return func(c *executionContext) {
		c.flow = flow
		c.nodeID = node
	}
}

// NewContext wraps ctx for calling operations outside a run, mostly in tests.
//
// Example:
//
//	ctx := flowgraph.NewContext(context.Background(),
//	    flowgraph.WithContextRunID("run-123"))
//	err := op.Call(ctx, document.New())
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.New().String(),
	}
	for _, opt := range opts {
		opt(ec)
	}
	if ec.store == nil {
		ec.store = registry.NewStore()
	}
	return ec
}
