package consumer

import (
	"strings"

	"github.com/hupe1980/stratum/blob"
)

// UpdatePlan is an ordered list of transitions.
type UpdatePlan struct {
	transitions []*blob.Blob
}

// Add appends a transition.
func (p *UpdatePlan) Add(b *blob.Blob) {
	p.transitions = append(p.transitions, b)
}

// Append appends every transition of other.
func (p *UpdatePlan) Append(other *UpdatePlan) {
	p.transitions = append(p.transitions, other.transitions...)
}

// IsSnapshotPlan reports whether the plan starts with a snapshot.
func (p *UpdatePlan) IsSnapshotPlan() bool {
	return len(p.transitions) > 0 && p.transitions[0].IsSnapshot()
}

// SnapshotTransition returns the leading snapshot, or nil.
func (p *UpdatePlan) SnapshotTransition() *blob.Blob {
	if !p.IsSnapshotPlan() {
		return nil
	}
	return p.transitions[0]
}

// DeltaTransitions returns the delta and reverse delta transitions.
func (p *UpdatePlan) DeltaTransitions() []*blob.Blob {
	if p.IsSnapshotPlan() {
		return p.transitions[1:]
	}
	return p.transitions
}

// Transitions returns every transition in order.
func (p *UpdatePlan) Transitions() []*blob.Blob { return p.transitions }

// NumTransitions returns the plan length.
func (p *UpdatePlan) NumTransitions() int { return len(p.transitions) }

// DestinationVersion returns the version reached by the plan, or current
// when the plan is empty.
func (p *UpdatePlan) DestinationVersion(current int64) int64 {
	if len(p.transitions) == 0 {
		return current
	}
	return p.transitions[len(p.transitions)-1].ToVersion()
}

func (p *UpdatePlan) String() string {
	if len(p.transitions) == 0 {
		return "[]"
	}
	parts := make([]string, len(p.transitions))
	for i, t := range p.transitions {
		parts[i] = t.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
