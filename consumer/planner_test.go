package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/stratum/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// graph is a descriptor-only retriever over a fixed set of versions.
type graph struct {
	snapshots []int64
	deltas    map[int64]int64
	reverse   map[int64]int64
	err       error
}

func (g *graph) RetrieveSnapshotBlob(_ context.Context, desired int64) (*blob.Blob, error) {
	if g.err != nil {
		return nil, g.err
	}
	best := blob.VersionNone
	for _, v := range g.snapshots {
		if v <= desired && v > best {
			best = v
		}
	}
	if best == blob.VersionNone {
		return nil, nil
	}
	return blob.New(blob.Snapshot, blob.VersionNone, best, nil), nil
}

func (g *graph) RetrieveDeltaBlob(_ context.Context, current int64) (*blob.Blob, error) {
	if to, ok := g.deltas[current]; ok {
		return blob.New(blob.Delta, current, to, nil), nil
	}
	return nil, nil
}

func (g *graph) RetrieveReverseDeltaBlob(_ context.Context, current int64) (*blob.Blob, error) {
	if to, ok := g.reverse[current]; ok {
		return blob.New(blob.ReverseDelta, current, to, nil), nil
	}
	return nil, nil
}

// linear returns a graph with versions 1..n, deltas and reverse deltas
// between neighbours and snapshots at the given versions.
func linear(n int64, snapshots ...int64) *graph {
	g := &graph{snapshots: snapshots, deltas: map[int64]int64{}, reverse: map[int64]int64{}}
	for v := int64(1); v < n; v++ {
		g.deltas[v] = v + 1
		g.reverse[v+1] = v
	}
	return g
}

func versions(p *UpdatePlan) []string {
	out := make([]string, 0, p.NumTransitions())
	for _, t := range p.Transitions() {
		out = append(out, t.String())
	}
	return out
}

func TestUpdatePlan_IsSnapshotPlan(t *testing.T) {
	plan := &UpdatePlan{}
	assert.False(t, plan.IsSnapshotPlan())
	assert.Nil(t, plan.SnapshotTransition())
	assert.Empty(t, plan.DeltaTransitions())

	plan.Add(blob.New(blob.Delta, 1, 2, nil))
	assert.False(t, plan.IsSnapshotPlan())

	snap := blob.New(blob.Snapshot, blob.VersionNone, 1, nil)
	plan = &UpdatePlan{}
	plan.Add(snap)
	assert.True(t, plan.IsSnapshotPlan())
	assert.Same(t, snap, plan.SnapshotTransition())
	assert.Empty(t, plan.DeltaTransitions())

	d1 := blob.New(blob.Delta, 1, 2, nil)
	d2 := blob.New(blob.Delta, 2, 3, nil)
	plan.Add(d1)
	plan.Add(d2)
	assert.True(t, plan.IsSnapshotPlan())
	assert.Same(t, snap, plan.SnapshotTransition())
	require.Len(t, plan.DeltaTransitions(), 2)
	assert.Same(t, d1, plan.DeltaTransitions()[0])
	assert.Same(t, d2, plan.DeltaTransitions()[1])
	assert.Equal(t, 3, plan.NumTransitions())
	assert.Equal(t, int64(3), plan.DestinationVersion(blob.VersionNone))
}

func TestUpdatePlan_DestinationOfEmptyPlan(t *testing.T) {
	assert.Equal(t, int64(7), (&UpdatePlan{}).DestinationVersion(7))
}

func TestPlanner(t *testing.T) {
	ctx := context.Background()

	t.Run("EqualVersionsGiveEmptyPlan", func(t *testing.T) {
		plan, err := NewPlanner(linear(5, 1), true, 0).Plan(ctx, 3, 3)
		require.NoError(t, err)
		assert.Zero(t, plan.NumTransitions())
	})

	t.Run("InitialLoadIsSnapshotPlusDeltas", func(t *testing.T) {
		plan, err := NewPlanner(linear(5, 1, 3), true, 0).Plan(ctx, blob.VersionNone, 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"snapshot(3)", "delta(3->4)", "delta(4->5)"}, versions(plan))
	})

	t.Run("ForwardDeltas", func(t *testing.T) {
		plan, err := NewPlanner(linear(5, 1), true, 0).Plan(ctx, 1, 4)
		require.NoError(t, err)
		assert.Equal(t, []string{"delta(1->2)", "delta(2->3)", "delta(3->4)"}, versions(plan))
	})

	t.Run("ReverseDeltas", func(t *testing.T) {
		plan, err := NewPlanner(linear(5, 1), true, 0).Plan(ctx, 5, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"reversedelta(5->4)", "reversedelta(4->3)"}, versions(plan))
	})

	t.Run("LongChainDoubleSnapshots", func(t *testing.T) {
		plan, err := NewPlanner(linear(10, 1, 8), true, 3).Plan(ctx, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"snapshot(8)", "delta(8->9)", "delta(9->10)"}, versions(plan))
	})

	t.Run("LongChainWithoutDoubleSnapshotStopsShort", func(t *testing.T) {
		plan, err := NewPlanner(linear(10, 1, 8), false, 3).Plan(ctx, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(4), plan.DestinationVersion(1))
	})

	t.Run("MissingDeltaFallsBackToSnapshot", func(t *testing.T) {
		g := linear(5, 1, 4)
		delete(g.deltas, 2)
		plan, err := NewPlanner(g, true, 0).Plan(ctx, 1, 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"snapshot(4)", "delta(4->5)"}, versions(plan))
	})

	t.Run("MissingDeltaWithoutDoubleSnapshot", func(t *testing.T) {
		g := linear(5, 1, 4)
		delete(g.deltas, 2)
		plan, err := NewPlanner(g, false, 0).Plan(ctx, 1, 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"delta(1->2)"}, versions(plan))
	})

	t.Run("KnownFailedDeltaStopsChain", func(t *testing.T) {
		p := NewPlanner(linear(3, 1, 3), true, 0)
		p.failed = newFailedTransitions()
		p.failed.mark(blob.New(blob.Delta, 2, 3, nil))
		plan, err := p.Plan(ctx, 2, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"snapshot(3)"}, versions(plan))
	})

	t.Run("DesiredBeforeEarliestSnapshot", func(t *testing.T) {
		plan, err := NewPlanner(linear(5, 3), true, 0).Plan(ctx, blob.VersionNone, 2)
		require.NoError(t, err)
		assert.Zero(t, plan.NumTransitions())
	})

	t.Run("RetrieverError", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := NewPlanner(&graph{err: boom}, true, 0).Plan(ctx, blob.VersionNone, 2)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("LatestFollowsEveryDelta", func(t *testing.T) {
		plan, err := NewPlanner(linear(4, 1), true, 0).Plan(ctx, blob.VersionNone, blob.VersionLatest)
		require.NoError(t, err)
		assert.Equal(t, int64(4), plan.DestinationVersion(blob.VersionNone))
	})

	t.Run("ExactReachesDesired", func(t *testing.T) {
		plan, err := NewPlanner(linear(5, 1), true, 0).PlanExact(ctx, 1, 4)
		require.NoError(t, err)
		assert.Equal(t, int64(4), plan.DestinationVersion(1))
	})

	t.Run("ExactRejectsShortPlan", func(t *testing.T) {
		g := linear(5, 1, 4)
		delete(g.deltas, 2)
		plan, err := NewPlanner(g, false, 0).PlanExact(ctx, 1, 5)
		require.ErrorIs(t, err, ErrNoPath)
		assert.Nil(t, plan)
		assert.ErrorContains(t, err, "reaches 2")

		_, err = NewPlanner(linear(10, 1, 8), false, 3).PlanExact(ctx, 1, 10)
		assert.ErrorIs(t, err, ErrNoPath)

		_, err = NewPlanner(linear(5, 3), true, 0).PlanExact(ctx, blob.VersionNone, 2)
		assert.ErrorIs(t, err, ErrNoPath)
	})

	t.Run("ExactRejectsLatest", func(t *testing.T) {
		_, err := NewPlanner(linear(4, 1), true, 0).PlanExact(ctx, blob.VersionNone, blob.VersionLatest)
		assert.ErrorIs(t, err, ErrInvalidVersion)
	})
}
