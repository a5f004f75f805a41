package consumer

import (
	"sync"

	"github.com/hupe1980/stratum/blob"
)

type transitionKey struct {
	kind     blob.Kind
	from, to int64
}

func keyOf(b *blob.Blob) transitionKey {
	return transitionKey{kind: b.Kind(), from: b.FromVersion(), to: b.ToVersion()}
}

// failedTransitions remembers transitions that failed so they are not
// retried. A nil tracker records nothing.
type failedTransitions struct {
	mu  sync.Mutex
	set map[transitionKey]struct{}
}

func newFailedTransitions() *failedTransitions {
	return &failedTransitions{set: make(map[transitionKey]struct{})}
}

func (f *failedTransitions) mark(b *blob.Blob) {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.set[keyOf(b)] = struct{}{}
	f.mu.Unlock()
}

func (f *failedTransitions) contains(b *blob.Blob) bool {
	if f == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.set[keyOf(b)]
	return ok
}

// anyIn returns the first known-failed transition of plan.
func (f *failedTransitions) anyIn(plan *UpdatePlan) *blob.Blob {
	for _, t := range plan.Transitions() {
		if f.contains(t) {
			return t
		}
	}
	return nil
}
