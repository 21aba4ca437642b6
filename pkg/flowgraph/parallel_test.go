package flowgraph

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowhost/pkg/flowgraph/document"
)

// TestParallel_BranchesOverlap tests that branches run at the same time.
func TestParallel_BranchesOverlap(t *testing.T) {
	rt := newTestRuntime(t)

	var arrived sync.WaitGroup
	arrived.Add(2)
	bothRunning := make(chan struct{})
	go func() {
		arrived.Wait()
		close(bothRunning)
	}()

	branch := func(name string) Segment {
		return Func(name, func(Context, *document.Document) error {
			arrived.Done()
			select {
			case <-bothRunning:
				return nil
			case <-time.After(2 * time.Second):
				return errors.New("other branch never started")
			}
		})
	}

	flow := mustCompile(t, "main", Parallel(branch("left"), branch("right")))
	out := await(t, rt, flow, nil)
	assert.Equal(t, OutcomeOK, out.Kind, "%v", out.Err)
}

// TestParallel_ErrorShortCircuits tests that the first failing branch ends
// the run without waiting for slow siblings.
func TestParallel_ErrorShortCircuits(t *testing.T) {
	rt := newTestRuntime(t)
	release := make(chan struct{})
	defer close(release)

	boom := errors.New("fast failure")
	flow := mustCompile(t, "main", Sequence(
		Parallel(
			failing("fast", boom),
			Func("slow", func(Context, *document.Document) error {
				<-release
				return nil
			}),
		),
		put("after", true),
	))

	start := time.Now()
	out := await(t, rt, flow, nil)

	require.Equal(t, OutcomeError, out.Kind)
	assert.ErrorIs(t, out.Err, boom)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, out.Document.Has("after"))
}

// TestParallel_Nested tests parallel groups inside parallel groups.
func TestParallel_Nested(t *testing.T) {
	rt := newTestRuntime(t)
	flow := mustCompile(t, "main", Sequence(
		Parallel(
			put("a", 1),
			Parallel(put("b", 2), Sequence(put("c", 3), put("d", 4))),
			Label("tail", put("e", 5)),
		),
		sumInto("sum", "a", "b", "c", "d", "e"),
	))

	out := await(t, rt, flow, nil)
	require.Equal(t, OutcomeOK, out.Kind)
	sum, _ := out.Document.GetInt("sum")
	assert.Equal(t, int64(15), sum)
}

// TestParallel_EmptyGroupsPassThrough tests empty sequences and parallels.
func TestParallel_EmptyGroupsPassThrough(t *testing.T) {
	rt := newTestRuntime(t)
	flow := mustCompile(t, "main", Sequence(
		Parallel(),
		Sequence(),
		Parallel(Sequence(), put("x", 1)),
	))

	out := await(t, rt, flow, nil)
	require.Equal(t, OutcomeOK, out.Kind)
	assert.True(t, out.Document.Has("x"))
}

// TestParallel_HaltInBranch tests that a halting branch halts the run.
func TestParallel_HaltInBranch(t *testing.T) {
	rt := newTestRuntime(t)
	flow := mustCompile(t, "main", Sequence(
		Parallel(put("a", 1), RouterNode("gate", routeOn("mode", "open", "closed"), When("open", nil))),
		put("after", true),
	))

	out := await(t, rt, flow, document.FromMap(map[string]any{"mode": "closed"}))
	assert.Equal(t, OutcomeHalted, out.Kind)

	out = await(t, rt, flow, document.FromMap(map[string]any{"mode": "open"}))
	require.Equal(t, OutcomeOK, out.Kind)
	assert.True(t, out.Document.Has("after"))
}
