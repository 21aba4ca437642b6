package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Lifecycle event types.
const (
	TypeDeployed     = "app.deployed"
	TypeDeployFailed = "app.deploy_failed"
	TypeUndeployed   = "app.undeployed"
	TypePaused       = "app.paused"
	TypeResumed      = "app.resumed"
)

// LifecycleTypes lists every lifecycle event type.
var LifecycleTypes = []string{TypeDeployed, TypeDeployFailed, TypeUndeployed, TypePaused, TypeResumed}

// Event is a published event. Events are immutable once created.
type Event interface {
	ID() string     // Unique event identifier
	Type() string   // Event type (e.g., "app.deployed")
	Source() string // Event source (e.g., "manager")

	// CorrelationID groups related events, such as the pause, deploy and
	// resume of one redeploy.
	CorrelationID() string
	Timestamp() time.Time

	Data() any
}

// Metadata contains common event metadata fields.
type Metadata struct {
	EventID       string    `json:"id"`
	EventType     string    `json:"type"`
	EventSource   string    `json:"source"`
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// BaseEvent provides a generic event implementation.
// T is the payload type for type-safe access.
type BaseEvent[T any] struct {
	Meta    Metadata `json:"metadata"`
	Payload T        `json:"payload"`
}

// ID returns the unique event identifier.
func (e *BaseEvent[T]) ID() string { return e.Meta.EventID }

// Type returns the event type.
func (e *BaseEvent[T]) Type() string { return e.Meta.EventType }

// Source returns the event source.
func (e *BaseEvent[T]) Source() string { return e.Meta.EventSource }

// CorrelationID returns the correlation identifier.
func (e *BaseEvent[T]) CorrelationID() string { return e.Meta.CorrelationID }

// Timestamp returns when the event occurred.
func (e *BaseEvent[T]) Timestamp() time.Time { return e.Meta.Timestamp }

// Data returns the payload.
func (e *BaseEvent[T]) Data() any { return e.Payload }

// TypedData returns the payload with its static type.
func (e *BaseEvent[T]) TypedData() T { return e.Payload }

// Lifecycle is the payload of every lifecycle event.
type Lifecycle struct {
	Identity string `json:"identity"`
	Version  int    `json:"version"`
	Error    string `json:"error,omitempty"`
}

// EventOption configures event creation.
type EventOption func(*eventConfig)

type eventConfig struct {
	id            string
	correlationID string
	timestamp     time.Time
}

// WithEventID sets a specific event ID (default: auto-generated UUID).
func WithEventID(id string) EventOption {
	return func(cfg *eventConfig) {
		cfg.id = id
	}
}

// WithCorrelationID sets the correlation ID.
func WithCorrelationID(id string) EventOption {
	return func(cfg *eventConfig) {
		cfg.correlationID = id
	}
}

// WithTimestamp sets a specific timestamp (default: time.Now()).
func WithTimestamp(t time.Time) EventOption {
	return func(cfg *eventConfig) {
		cfg.timestamp = t
	}
}

// New creates a new event with the given type, source, and payload.
func New[T any](eventType, source string, payload T, opts ...EventOption) *BaseEvent[T] {
	cfg := &eventConfig{
		id:        uuid.New().String(),
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	// If no correlation ID, use event ID as the root
	if cfg.correlationID == "" {
		cfg.correlationID = cfg.id
	}

	return &BaseEvent[T]{
		Meta: Metadata{
			EventID:       cfg.id,
			EventType:     eventType,
			EventSource:   source,
			CorrelationID: cfg.correlationID,
			Timestamp:     cfg.timestamp,
		},
		Payload: payload,
	}
}

// NewLifecycle creates a lifecycle event.
func NewLifecycle(eventType, identity string, version int, err error, opts ...EventOption) *BaseEvent[Lifecycle] {
	l := Lifecycle{Identity: identity, Version: version}
	if err != nil {
		l.Error = err.Error()
	}
	return New(eventType, "manager", l, opts...)
}

// Handler processes events.
type Handler interface {
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// TypedHandler wraps a function handling a specific payload type.
// Payloads decoded from JSON (map[string]any) are converted.
func TypedHandler[T any](fn func(ctx context.Context, payload T, meta Metadata) error) Handler {
	return HandlerFunc(func(ctx context.Context, evt Event) error {
		var payload T

		switch d := evt.Data().(type) {
		case T:
			payload = d
		case map[string]any:
			bytes, err := json.Marshal(d)
			if err != nil {
				return &EventError{Event: evt, Message: "failed to marshal event data", Err: err}
			}
			if err := json.Unmarshal(bytes, &payload); err != nil {
				return &EventError{Event: evt, Message: "failed to unmarshal event data to expected type", Err: err}
			}
		default:
			return &EventError{Event: evt, Message: fmt.Sprintf("unexpected payload type %T", d)}
		}

		return fn(ctx, payload, Metadata{
			EventID:       evt.ID(),
			EventType:     evt.Type(),
			EventSource:   evt.Source(),
			CorrelationID: evt.CorrelationID(),
			Timestamp:     evt.Timestamp(),
		})
	})
}

// EventError represents an error during event processing.
type EventError struct {
	Event   Event
	Message string
	Err     error
}

// Error implements error interface.
func (e *EventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("event %s: %s: %v", e.Event.ID(), e.Message, e.Err)
	}
	return fmt.Sprintf("event %s: %s", e.Event.ID(), e.Message)
}

// Unwrap returns the underlying error.
func (e *EventError) Unwrap() error {
	return e.Err
}
