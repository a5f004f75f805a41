// Package ordinal hands out record ordinals for a single type state.
//
// An ordinal given back with Retire stays out of circulation until the
// next call to Advance, so a record removed in one cycle remains readable
// as a ghost in the state published for that cycle.
package ordinal

import (
	"slices"
)

// Allocator is owned by a single writer and is not safe for concurrent use.
type Allocator struct {
	// free is kept sorted in descending order so the smallest ordinal is
	// popped from the end.
	free    []int
	retired []int
	next    int
}

// Checkpoint is a saved allocator state.
type Checkpoint struct {
	free    []int
	retired []int
	next    int
}

// New creates an allocator that starts at ordinal 0.
func New() *Allocator {
	return &Allocator{}
}

// Allocate returns a recycled ordinal if one is eligible, otherwise the
// next never-used ordinal.
func (a *Allocator) Allocate() int {
	if n := len(a.free); n > 0 {
		o := a.free[n-1]
		a.free = a.free[:n-1]
		return o
	}
	o := a.next
	a.next++
	return o
}

// Retire schedules o for reuse after the next cycle boundary.
func (a *Allocator) Retire(o int) {
	if o < 0 || o >= a.next {
		return
	}
	a.retired = append(a.retired, o)
}

// Advance marks a cycle boundary. Ordinals retired before the boundary
// become eligible for Allocate.
func (a *Allocator) Advance() {
	if len(a.retired) == 0 {
		return
	}
	a.free = append(a.free, a.retired...)
	a.retired = a.retired[:0]
	slices.SortFunc(a.free, func(x, y int) int { return y - x })
	a.free = slices.Compact(a.free)
}

// Reset discards all recycling state. The next Allocate returns 0.
func (a *Allocator) Reset() {
	a.free = a.free[:0]
	a.retired = a.retired[:0]
	a.next = 0
}

// HighWater returns one past the largest ordinal ever handed out.
func (a *Allocator) HighWater() int {
	return a.next
}

// FreeCount returns the number of ordinals eligible for reuse.
func (a *Allocator) FreeCount() int {
	return len(a.free)
}

// Checkpoint captures the current state for a later Restore.
func (a *Allocator) Checkpoint() Checkpoint {
	return Checkpoint{
		free:    slices.Clone(a.free),
		retired: slices.Clone(a.retired),
		next:    a.next,
	}
}

// Restore returns the allocator to a saved state.
func (a *Allocator) Restore(cp Checkpoint) {
	a.free = slices.Clone(cp.free)
	a.retired = slices.Clone(cp.retired)
	a.next = cp.next
}
