package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/app"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/config"
	fgerrors "github.com/randalmurphal/flowhost/pkg/flowgraph/errors"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/event"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module"
)

// TestManager_DeployAndRun verifies a content deploy serves runs.
func TestManager_DeployAndRun(t *testing.T) {
	m, _ := newManager(t)
	ctx := testContext(t)

	a, err := m.Deploy(ctx, "shop", app.ContentSource("shop.yaml", []byte(probeSource("a", false))))
	require.NoError(t, err)
	assert.Equal(t, 1, a.Version())
	assert.Equal(t, "shop", a.Name())
	assert.Equal(t, []string{"core", "probe"}, a.Modules())

	out, err := m.Await(ctx, "shop", "main", nil)
	require.NoError(t, err)
	require.Equal(t, flowgraph.OutcomeOK, out.Kind, "%v", out.Err)
	tag, _ := out.Document.GetString("tag")
	assert.Equal(t, "a", tag)

	assert.False(t, m.HasSource("shop"), "content sources are not persisted")
	assert.Equal(t, []*app.Application{a}, m.List())
}

// TestManager_RedeploySuccess verifies the old version is undeployed once
// and the version increments.
func TestManager_RedeploySuccess(t *testing.T) {
	m, rec := newManager(t)
	ctx := testContext(t)

	_, err := m.Deploy(ctx, "shop", app.ContentSource("v1", []byte(probeSource("a", false))))
	require.NoError(t, err)
	a, err := m.Deploy(ctx, "shop", app.ContentSource("v2", []byte(probeSource("b", false))))
	require.NoError(t, err)

	assert.Equal(t, 2, a.Version())
	assert.Equal(t, 1, rec.count("a:pause"))
	assert.Equal(t, 1, rec.count("a:undeploy"))
	assert.Equal(t, 0, rec.count("a:resume"))
	assert.Equal(t, 0, rec.count("b:undeploy"))

	out, err := m.Await(ctx, "shop", "main", nil)
	require.NoError(t, err)
	tag, _ := out.Document.GetString("tag")
	assert.Equal(t, "b", tag)
}

// TestManager_RedeployFailureKeepsPrevious verifies a failing build leaves
// the previous version live and untouched by undeploy hooks.
func TestManager_RedeployFailureKeepsPrevious(t *testing.T) {
	m, rec := newManager(t)
	ctx := testContext(t)

	_, err := m.Deploy(ctx, "shop", app.ContentSource("v1", []byte(probeSource("a", false))))
	require.NoError(t, err)

	_, err = m.Deploy(ctx, "shop", app.ContentSource("v2", []byte(probeSource("b", true))))
	require.Error(t, err)
	var de *app.DeployError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 2, de.Version)
	assert.Equal(t, fgerrors.CategoryDeploy, fgerrors.Categorize(err))
	assert.Contains(t, err.Error(), "probe refused to start")

	live, ok := m.Get("shop")
	require.True(t, ok)
	assert.Equal(t, 1, live.Version())
	assert.False(t, live.Paused())
	assert.Equal(t, 2, m.Version("shop"), "failed builds still take a version")

	assert.Equal(t, 1, rec.count("a:pause"))
	assert.Equal(t, 1, rec.count("a:resume"))
	assert.Equal(t, 0, rec.count("a:undeploy"))
	assert.Equal(t, 1, rec.count("b:undeploy"), "failed build releases its own resources")

	out, err := m.Await(ctx, "shop", "main", nil)
	require.NoError(t, err)
	tag, _ := out.Document.GetString("tag")
	assert.Equal(t, "a", tag)
}

// TestManager_ValidationFailureTakesNoVersion verifies sources that do not
// configure never reach the version counter.
func TestManager_ValidationFailureTakesNoVersion(t *testing.T) {
	m, _ := newManager(t)
	ctx := testContext(t)

	_, err := m.Deploy(ctx, "shop", app.ContentSource("bad.yaml", []byte("flows:\n  main:\n    - nosuchop: {}\n")))
	require.Error(t, err)
	var de *app.DeployError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 0, de.Version)
	assert.ErrorIs(t, err, module.ErrUnknownOperation)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Equal(t, 0, m.Version("shop"))

	_, ok := m.Get("shop")
	assert.False(t, ok)

	err = m.Validate(ctx, app.ContentSource("bad.yaml", []byte("flows: {}\n")))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.NoError(t, m.Validate(ctx, app.ContentSource("ok.yaml", []byte(probeSource("a", false)))))
	assert.Equal(t, 0, m.Version("shop"))
}

// TestManager_ValidateRejectsUnknownFields verifies misspelled operation
// and module settings fail validation instead of decoding to zero values.
func TestManager_ValidateRejectsUnknownFields(t *testing.T) {
	m, _ := newManager(t)
	ctx := testContext(t)

	src := "flows: {main: [{sleep: {duration: 5s}}, {put: {valuez: {x: 1}}}]}\n"
	err := m.Validate(ctx, app.ContentSource("typo.yaml", []byte(src)))
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.ErrorContains(t, err, `typo.yaml:1:25: unknown field "duration"`)
	assert.ErrorContains(t, err, `unknown field "valuez"`)

	err = m.Validate(ctx, app.ContentSource("probe.yaml", []byte("use: [{probe: {tga: a}}]\nflows: {main: [{log: {}}]}\n")))
	assert.ErrorContains(t, err, `unknown field "tga"`)

	_, err = m.Deploy(ctx, "shop", app.ContentSource("typo.yaml", []byte(src)))
	require.Error(t, err)
	assert.Equal(t, 0, m.Version("shop"))
}

// TestManager_InvalidIdentity verifies identities that cannot be persisted
// are rejected.
func TestManager_InvalidIdentity(t *testing.T) {
	m, _ := newManager(t)
	src := app.ContentSource("ok", []byte(probeSource("a", false)))

	for _, id := range []string{"", "  ", "a:b", "a\nb", "a/b"} {
		_, err := m.Deploy(testContext(t), id, src)
		assert.ErrorIs(t, err, app.ErrInvalidIdentity, "identity %q", id)
	}
}

// TestManager_Undeploy verifies undeploy keeps the version counter.
func TestManager_Undeploy(t *testing.T) {
	m, rec := newManager(t)
	ctx := testContext(t)

	assert.ErrorIs(t, m.Undeploy(ctx, "shop"), app.ErrApplicationNotFound)

	_, err := m.Deploy(ctx, "shop", app.ContentSource("v1", []byte(probeSource("a", false))))
	require.NoError(t, err)
	require.NoError(t, m.Undeploy(ctx, "shop"))
	assert.Equal(t, 1, rec.count("a:undeploy"))

	_, err = m.Await(ctx, "shop", "main", nil)
	assert.ErrorIs(t, err, app.ErrApplicationNotFound)
	assert.Equal(t, 404, fgerrors.HTTPStatus(err))

	a, err := m.Deploy(ctx, "shop", app.ContentSource("v2", []byte(probeSource("b", false))))
	require.NoError(t, err)
	assert.Equal(t, 2, a.Version())
}

// TestManager_RunUnknownFlow verifies unknown flows are reported.
func TestManager_RunUnknownFlow(t *testing.T) {
	m, _ := newManager(t)
	ctx := testContext(t)
	_, err := m.Deploy(ctx, "shop", app.ContentSource("v1", []byte(probeSource("a", false))))
	require.NoError(t, err)

	_, err = m.Await(ctx, "shop", "missing", nil)
	assert.ErrorIs(t, err, app.ErrFlowNotFound)
}

// TestManager_RunMovesToReplacement verifies a run waiting on a paused
// version is served by the version that replaces it.
func TestManager_RunMovesToReplacement(t *testing.T) {
	m, _ := newManager(t)
	ctx := testContext(t)

	v1, err := m.Deploy(ctx, "shop", app.ContentSource("v1", []byte(probeSource("a", false))))
	require.NoError(t, err)
	require.NoError(t, v1.Pause(ctx))

	type result struct {
		out flowgraph.Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := m.Await(ctx, "shop", "main", nil)
		done <- result{out, err}
	}()

	select {
	case <-done:
		t.Fatal("run completed while paused")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = m.Deploy(ctx, "shop", app.ContentSource("v2", []byte(probeSource("b", false))))
	require.NoError(t, err)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		tag, _ := r.out.Document.GetString("tag")
		assert.Equal(t, "b", tag)
	case <-ctx.Done():
		t.Fatal("run never completed")
	}
}

// TestManager_RedeployWithRunsInFlight verifies redeploys leave runs that
// are already executing on the old version to finish there.
func TestManager_RedeployWithRunsInFlight(t *testing.T) {
	m, rec := newManager(t)
	ctx := testContext(t)

	slow := func(tag string, fail bool) app.Source {
		src := fmt.Sprintf(`
use:
  - probe: {tag: %s, fail: %t}
flows:
  main:
    - sleep: {for: 200ms}
    - put: {values: {tag: %s}}
`, tag, fail, tag)
		return app.ContentSource(tag+".yaml", []byte(src))
	}

	v1, err := m.Deploy(ctx, "shop", slow("a", false))
	require.NoError(t, err)

	const runs = 5
	outcomes := make(chan flowgraph.Outcome, runs)
	for range runs {
		go func() {
			out, err := m.Await(ctx, "shop", "main", nil)
			if err != nil {
				out = flowgraph.Outcome{Kind: flowgraph.OutcomeError, Err: err}
			}
			outcomes <- out
		}()
	}
	require.Eventually(t, func() bool {
		return v1.Stats()["main"].InFlight() == runs
	}, 2*time.Second, 5*time.Millisecond)

	_, err = m.Deploy(ctx, "shop", slow("b", true))
	require.Error(t, err)
	assert.Equal(t, 1, rec.count("a:resume"))

	v3, err := m.Deploy(ctx, "shop", slow("c", false))
	require.NoError(t, err)
	assert.Equal(t, 3, v3.Version())

	snap := v1.Stats()["main"]
	assert.Equal(t, int64(runs), snap.Completed, "replacing a version waits for its runs")
	assert.Zero(t, snap.InFlight())

	for range runs {
		out := <-outcomes
		require.Equal(t, flowgraph.OutcomeOK, out.Kind, "%v", out.Err)
		tag, _ := out.Document.GetString("tag")
		assert.Equal(t, "a", tag)
	}
	assert.Equal(t, 2, rec.count("a:pause"))
	assert.Equal(t, 1, rec.count("a:undeploy"))
	assert.Equal(t, 1, rec.count("b:undeploy"))
	assert.Equal(t, 0, rec.count("c:undeploy"))
}

// TestApplication_PauseResume verifies paused applications hold runs until
// resumed.
func TestApplication_PauseResume(t *testing.T) {
	m, rec := newManager(t)
	ctx := testContext(t)

	a, err := m.Deploy(ctx, "shop", app.ContentSource("v1", []byte(probeSource("a", false))))
	require.NoError(t, err)
	require.NoError(t, a.Pause(ctx))
	require.NoError(t, a.Pause(ctx))
	assert.Equal(t, 1, rec.count("a:pause"))

	outcomes := make(chan flowgraph.Outcome, 1)
	go func() {
		err := a.Run(ctx, "main", nil, flowgraph.OutcomeFunc(func(o flowgraph.Outcome) { outcomes <- o }))
		assert.NoError(t, err)
	}()

	select {
	case <-outcomes:
		t.Fatal("run completed while paused")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, a.Resume(ctx))
	select {
	case o := <-outcomes:
		assert.Equal(t, flowgraph.OutcomeOK, o.Kind)
	case <-ctx.Done():
		t.Fatal("run never completed")
	}
	assert.Equal(t, 1, rec.count("a:resume"))
}

// TestApplication_UndeployReleasesWaiters verifies runs waiting on a
// paused application fail once it is undeployed.
func TestApplication_UndeployReleasesWaiters(t *testing.T) {
	m, _ := newManager(t)
	ctx := testContext(t)

	a, err := m.Deploy(ctx, "shop", app.ContentSource("v1", []byte(probeSource("a", false))))
	require.NoError(t, err)
	require.NoError(t, a.Pause(ctx))

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- a.Run(ctx, "main", nil, flowgraph.SubscriberFuncs{})
		}()
	}
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, a.Undeploy(ctx))
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, app.ErrApplicationUndeployed)
	}

	assert.ErrorIs(t, a.Run(ctx, "main", nil, flowgraph.SubscriberFuncs{}), app.ErrApplicationUndeployed)
}

// TestManager_LifecycleEvents verifies events published during a failed
// and a successful redeploy.
func TestManager_LifecycleEvents(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)
	t.Cleanup(func() { _ = bus.Close() })

	var mu sync.Mutex
	var got []string
	seen := make(chan struct{}, 16)
	sub := bus.SubscribeAll(event.HandlerFunc(func(_ context.Context, evt event.Event) error {
		lc := evt.Data().(event.Lifecycle)
		mu.Lock()
		got = append(got, fmt.Sprintf("%s@%d", evt.Type(), lc.Version))
		mu.Unlock()
		seen <- struct{}{}
		return nil
	}))
	require.NotNil(t, sub)

	m, _ := newManager(t, app.WithBus(bus))
	ctx := testContext(t)

	_, err := m.Deploy(ctx, "shop", app.ContentSource("v1", []byte(probeSource("a", false))))
	require.NoError(t, err)
	_, err = m.Deploy(ctx, "shop", app.ContentSource("v2", []byte(probeSource("b", true))))
	require.Error(t, err)
	_, err = m.Deploy(ctx, "shop", app.ContentSource("v3", []byte(probeSource("c", false))))
	require.NoError(t, err)

	want := []string{
		event.TypeDeployed + "@1",
		event.TypePaused + "@1",
		event.TypeResumed + "@1",
		event.TypeDeployFailed + "@2",
		event.TypePaused + "@1",
		event.TypeUndeployed + "@1",
		event.TypeDeployed + "@3",
	}
	for range want {
		select {
		case <-seen:
		case <-ctx.Done():
			t.Fatal("missing lifecycle events")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got)
}

// TestManager_Closed verifies a closed manager refuses work.
func TestManager_Closed(t *testing.T) {
	m, rec := newManager(t)
	ctx := testContext(t)

	_, err := m.Deploy(ctx, "shop", app.ContentSource("v1", []byte(probeSource("a", false))))
	require.NoError(t, err)
	require.NoError(t, m.Close(ctx))
	assert.Equal(t, 1, rec.count("a:undeploy"))

	_, err = m.Deploy(ctx, "shop", app.ContentSource("v2", []byte(probeSource("b", false))))
	assert.ErrorIs(t, err, app.ErrManagerClosed)
	assert.NoError(t, m.Close(ctx))
}

// TestNewManager_Errors verifies required options.
func TestNewManager_Errors(t *testing.T) {
	_, err := app.NewManager(app.WithDataDir(t.TempDir()))
	assert.ErrorContains(t, err, "registry is required")

	reg, err := module.NewRegistry()
	require.NoError(t, err)
	_, err = app.NewManager(app.WithRegistry(reg))
	assert.ErrorContains(t, err, "data directory is required")
}
