package app_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/app"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/config"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/document"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module/builtin"
)

// recorder counts lifecycle hook calls per probe tag.
type recorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRecorder() *recorder { return &recorder{counts: make(map[string]int)} }

func (r *recorder) hook(key string) module.Hook {
	return func(context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.counts[key]++
		return nil
	}
}

func (r *recorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

type probeSettings struct {
	Tag  string `yaml:"tag"`
	Fail bool   `yaml:"fail"`
}

// probeModule records its hooks and can fail its initializer.
type probeModule struct{ rec *recorder }

func (probeModule) Name() string       { return "probe" }
func (probeModule) Requires() []string { return nil }

func (m probeModule) Configure(settings *config.Node, s *module.Setup) error {
	cfg, err := module.Typed[probeSettings](settings)
	if err != nil {
		return err
	}
	s.Initializer(flowgraph.Func("probe.init", func(flowgraph.Context, *document.Document) error {
		if cfg.Fail {
			return errors.New("probe refused to start")
		}
		return nil
	}))
	s.OnUndeploy(m.rec.hook(cfg.Tag + ":undeploy"))
	s.OnPause(m.rec.hook(cfg.Tag + ":pause"))
	s.OnResume(m.rec.hook(cfg.Tag + ":resume"))
	return nil
}

func probeSource(tag string, fail bool) string {
	return fmt.Sprintf(`
use:
  - probe: {tag: %s, fail: %t}
flows:
  main:
    - put: {values: {tag: %s}}
`, tag, fail, tag)
}

func newManager(t *testing.T, opts ...app.Option) (*app.Manager, *recorder) {
	t.Helper()
	rec := newRecorder()
	reg, err := builtin.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, reg.Register(probeModule{rec: rec}))

	base := []app.Option{app.WithDataDir(t.TempDir()), app.WithRegistry(reg)}
	m, err := app.NewManager(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m, rec
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
