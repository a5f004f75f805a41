package consumer

import (
	"context"
	"fmt"

	"github.com/hupe1980/stratum/blob"
)

// DefaultMaxDeltas is the longest delta chain followed before a double
// snapshot is preferred.
const DefaultMaxDeltas = 32

// BlobRetriever locates blobs. Each method returns nil, nil when no
// matching blob exists.
type BlobRetriever interface {
	// RetrieveSnapshotBlob returns the newest snapshot at or before desired.
	RetrieveSnapshotBlob(ctx context.Context, desired int64) (*blob.Blob, error)
	// RetrieveDeltaBlob returns the delta starting at current.
	RetrieveDeltaBlob(ctx context.Context, current int64) (*blob.Blob, error)
	// RetrieveReverseDeltaBlob returns the reverse delta starting at current.
	RetrieveReverseDeltaBlob(ctx context.Context, current int64) (*blob.Blob, error)
}

// Planner computes update plans against a BlobRetriever.
type Planner struct {
	retriever           BlobRetriever
	allowDoubleSnapshot bool
	maxDeltas           int
	failed              *failedTransitions
}

// NewPlanner returns a planner. When allowDoubleSnapshot is false a
// missing delta is never bridged by a snapshot once a state is loaded.
// A non-positive maxDeltas selects DefaultMaxDeltas.
func NewPlanner(r BlobRetriever, allowDoubleSnapshot bool, maxDeltas int) *Planner {
	if maxDeltas <= 0 {
		maxDeltas = DefaultMaxDeltas
	}
	return &Planner{retriever: r, allowDoubleSnapshot: allowDoubleSnapshot, maxDeltas: maxDeltas}
}

// Plan returns the transitions that move a consumer at current toward
// desired. The returned plan may stop short of desired; use PlanExact when
// anything but desired is an error.
func (p *Planner) Plan(ctx context.Context, current, desired int64) (*UpdatePlan, error) {
	if desired == current {
		return &UpdatePlan{}, nil
	}
	if current == blob.VersionNone {
		return p.snapshotPlan(ctx, desired)
	}

	deltas, err := p.deltaPlan(ctx, current, desired)
	if err != nil {
		return nil, err
	}
	deltaDest := deltas.DestinationVersion(current)
	if deltaDest == desired || !p.allowDoubleSnapshot {
		return deltas, nil
	}

	snapshots, err := p.snapshotPlan(ctx, desired)
	if err != nil {
		return nil, err
	}
	if snapshots.NumTransitions() == 0 {
		return deltas, nil
	}
	snapDest := snapshots.DestinationVersion(current)
	switch {
	case snapDest == desired:
		return snapshots, nil
	case deltaDest > desired && snapDest < desired:
		return snapshots, nil
	case snapDest < desired && snapDest > deltaDest:
		return snapshots, nil
	}
	return deltas, nil
}

// PlanExact is Plan for a target that must be reached exactly. It returns
// an error wrapping ErrNoPath when the best plan stops elsewhere.
func (p *Planner) PlanExact(ctx context.Context, current, desired int64) (*UpdatePlan, error) {
	if desired == blob.VersionLatest || desired == blob.VersionNone {
		return nil, fmt.Errorf("%w: exact plan to %s", ErrInvalidVersion, blob.FormatVersion(desired))
	}
	plan, err := p.Plan(ctx, current, desired)
	if err != nil {
		return nil, err
	}
	if dest := plan.DestinationVersion(current); dest != desired {
		return nil, fmt.Errorf("%w: %s from %s, best plan %s reaches %s",
			ErrNoPath, blob.FormatVersion(desired), blob.FormatVersion(current), plan, blob.FormatVersion(dest))
	}
	return plan, nil
}

func (p *Planner) snapshotPlan(ctx context.Context, desired int64) (*UpdatePlan, error) {
	plan := &UpdatePlan{}
	snap, err := p.retriever.RetrieveSnapshotBlob(ctx, desired)
	if err != nil {
		return nil, fmt.Errorf("retrieve snapshot for %s: %w", blob.FormatVersion(desired), err)
	}
	if snap == nil || snap.ToVersion() > desired {
		return plan, nil
	}
	plan.Add(snap)

	version := snap.ToVersion()
	for version < desired {
		next, err := p.includeNextDelta(ctx, plan, version, desired)
		if err != nil {
			return nil, err
		}
		if next == version {
			break
		}
		version = next
	}
	return plan, nil
}

func (p *Planner) deltaPlan(ctx context.Context, current, desired int64) (*UpdatePlan, error) {
	plan := &UpdatePlan{}
	version := current
	for version != desired && plan.NumTransitions() < p.maxDeltas {
		var (
			next int64
			err  error
		)
		if desired > version {
			next, err = p.includeNextDelta(ctx, plan, version, desired)
		} else {
			next, err = p.includeNextReverseDelta(ctx, plan, version, desired)
		}
		if err != nil {
			return nil, err
		}
		if next == version {
			break
		}
		version = next
	}
	return plan, nil
}

func (p *Planner) includeNextDelta(ctx context.Context, plan *UpdatePlan, current, desired int64) (int64, error) {
	d, err := p.retriever.RetrieveDeltaBlob(ctx, current)
	if err != nil {
		return current, fmt.Errorf("retrieve delta from %d: %w", current, err)
	}
	if d == nil || d.ToVersion() <= current || d.ToVersion() > desired || p.failed.contains(d) {
		return current, nil
	}
	plan.Add(d)
	return d.ToVersion(), nil
}

func (p *Planner) includeNextReverseDelta(ctx context.Context, plan *UpdatePlan, current, desired int64) (int64, error) {
	d, err := p.retriever.RetrieveReverseDeltaBlob(ctx, current)
	if err != nil {
		return current, fmt.Errorf("retrieve reverse delta from %d: %w", current, err)
	}
	if d == nil || d.ToVersion() >= current || d.ToVersion() < desired || p.failed.contains(d) {
		return current, nil
	}
	plan.Add(d)
	return d.ToVersion(), nil
}
