// Package observability provides structured logging, metrics, and tracing
// helpers for flowhost.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds run context to a logger.
// Returns a new logger with flow, run_id, and node fields.
func EnrichLogger(logger *slog.Logger, flow, runID, node string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("flow", flow),
		slog.String("run_id", runID),
		slog.String("node", node),
	)
}

// LogRunStart logs the start of a flow run.
func LogRunStart(logger *slog.Logger, flow, runID string) {
	if logger == nil {
		return
	}
	logger.Debug("flow run starting",
		slog.String("flow", flow),
		slog.String("run_id", runID),
	)
}

// LogRunComplete logs the terminal outcome of a flow run.
// Halted runs are not failures and log at the same level as successful ones.
func LogRunComplete(logger *slog.Logger, flow, runID, outcome string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("flow run completed",
		slog.String("flow", flow),
		slog.String("run_id", runID),
		slog.String("outcome", outcome),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogRunError logs flow run failure.
func LogRunError(logger *slog.Logger, flow, runID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("flow run failed",
		slog.String("flow", flow),
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs an operation failure inside a run.
func LogNodeError(logger *slog.Logger, node string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("node failed",
		slog.String("node", node),
		slog.String("error", err.Error()),
	)
}

// LogLateSignal logs a coordination signal that arrived after the run ended.
func LogLateSignal(logger *slog.Logger, runID, signal string) {
	if logger == nil {
		return
	}
	logger.Debug("ignoring signal for finished run",
		slog.String("run_id", runID),
		slog.String("signal", signal),
	)
}

// LogDeploy logs a successful deployment.
func LogDeploy(logger *slog.Logger, identity string, version int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("application deployed",
		slog.String("identity", identity),
		slog.Int("version", version),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogDeployError logs a failed deployment attempt.
func LogDeployError(logger *slog.Logger, identity string, version int, err error) {
	if logger == nil {
		return
	}
	logger.Error("application deploy failed",
		slog.String("identity", identity),
		slog.Int("version", version),
		slog.String("error", err.Error()),
	)
}

// LogUndeploy logs removal of an application version.
func LogUndeploy(logger *slog.Logger, identity string, version int) {
	if logger == nil {
		return
	}
	logger.Info("application undeployed",
		slog.String("identity", identity),
		slog.Int("version", version),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
