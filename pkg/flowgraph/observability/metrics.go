package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records flowhost metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records an operation call with its duration and error status.
	RecordNodeExecution(ctx context.Context, flow, node string, duration time.Duration, err error)

	// RecordFlowRun records a flow run reaching its terminal outcome.
	RecordFlowRun(ctx context.Context, flow, outcome string, duration time.Duration)

	// RecordDeploy records a deployment attempt.
	RecordDeploy(ctx context.Context, identity string, success bool, duration time.Duration)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	flowRuns       metric.Int64Counter
	flowLatency    metric.Float64Histogram
	deploys        metric.Int64Counter
	deployLatency  metric.Float64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("flowhost")

	nodeExecutions, err := meter.Int64Counter("flowhost.node.executions",
		metric.WithDescription("Number of operation calls"),
	)
	if err != nil {
		return nil, err
	}

	nodeLatency, err := meter.Float64Histogram("flowhost.node.latency_ms",
		metric.WithDescription("Operation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	nodeErrors, err := meter.Int64Counter("flowhost.node.errors",
		metric.WithDescription("Number of failed operation calls"),
	)
	if err != nil {
		return nil, err
	}

	flowRuns, err := meter.Int64Counter("flowhost.flow.runs",
		metric.WithDescription("Number of flow runs by outcome"),
	)
	if err != nil {
		return nil, err
	}

	flowLatency, err := meter.Float64Histogram("flowhost.flow.latency_ms",
		metric.WithDescription("Flow run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	deploys, err := meter.Int64Counter("flowhost.deploy.attempts",
		metric.WithDescription("Number of deployment attempts"),
	)
	if err != nil {
		return nil, err
	}

	deployLatency, err := meter.Float64Histogram("flowhost.deploy.latency_ms",
		metric.WithDescription("Deployment build latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		nodeExecutions: nodeExecutions,
		nodeLatency:    nodeLatency,
		nodeErrors:     nodeErrors,
		flowRuns:       flowRuns,
		flowLatency:    flowLatency,
		deploys:        deploys,
		deployLatency:  deployLatency,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordNodeExecution records an operation call.
func (m *otelMetrics) RecordNodeExecution(ctx context.Context, flow, node string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("node", node),
	)

	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)

	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

// RecordFlowRun records a flow run.
func (m *otelMetrics) RecordFlowRun(ctx context.Context, flow, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("outcome", outcome),
	)
	m.flowRuns.Add(ctx, 1, attrs)
	m.flowLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordDeploy records a deployment attempt.
func (m *otelMetrics) RecordDeploy(ctx context.Context, identity string, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("identity", identity),
		attribute.Bool("success", success),
	)
	m.deploys.Add(ctx, 1, attrs)
	m.deployLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}
