package app

import (
	"log/slog"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/event"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module"
)

// Option configures a Manager.
type Option func(*Manager)

// WithDataDir sets the directory holding manager state. Required.
func WithDataDir(dir string) Option {
	return func(m *Manager) {
		m.dataDir = dir
	}
}

// WithTmpDir sets the scratch directory. Defaults to <datadir>/tmp.
func WithTmpDir(dir string) Option {
	return func(m *Manager) {
		m.tmpDir = dir
	}
}

// WithRegistry sets the modules available to applications. Required.
func WithRegistry(reg *module.Registry) Option {
	return func(m *Manager) {
		m.registry = reg
	}
}

// WithRuntime sets the runtime applications run on. By default the
// manager creates one and closes it in Close.
func WithRuntime(rt *flowgraph.Runtime) Option {
	return func(m *Manager) {
		m.rt = rt
	}
}

// WithStateStore sets where deployed sources are persisted. Defaults to a
// FileStateStore at <datadir>/.flowhost.
func WithStateStore(store StateStore) Option {
	return func(m *Manager) {
		m.state = store
	}
}

// WithBus sets the bus lifecycle events are published on. By default the
// manager creates one and closes it in Close.
func WithBus(bus event.Bus) Option {
	return func(m *Manager) {
		m.bus = bus
	}
}

// WithLogger sets the logger. Defaults to the runtime's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}
