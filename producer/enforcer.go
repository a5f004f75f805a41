package producer

import (
	"sync"
	"time"

	"github.com/hupe1980/stratum/read"
)

// SingleProducerEnforcer decides whether this producer may run cycles.
// Implementations that also implement Listener are registered as one.
type SingleProducerEnforcer interface {
	Enable()
	Disable()
	IsPrimary() bool
}

// BasicSingleProducerEnforcer is an in-process enforcer toggled by the
// caller. Disabling it while a cycle runs takes effect when the cycle
// completes.
type BasicSingleProducerEnforcer struct {
	BaseListener

	mu         sync.Mutex
	primary    bool
	inCycle    bool
	pendingOff bool
}

// NewBasicSingleProducerEnforcer returns an enabled enforcer.
func NewBasicSingleProducerEnforcer() *BasicSingleProducerEnforcer {
	return &BasicSingleProducerEnforcer{primary: true}
}

// Enable makes the producer primary.
func (e *BasicSingleProducerEnforcer) Enable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.primary = true
	e.pendingOff = false
}

// Disable stops the producer from running further cycles.
func (e *BasicSingleProducerEnforcer) Disable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inCycle {
		e.pendingOff = true
		return
	}
	e.primary = false
}

// IsPrimary reports whether the producer may run a cycle.
func (e *BasicSingleProducerEnforcer) IsPrimary() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.primary
}

// CycleStart implements Listener.
func (e *BasicSingleProducerEnforcer) CycleStart(int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inCycle = true
	return nil
}

// CycleComplete implements Listener.
func (e *BasicSingleProducerEnforcer) CycleComplete(int64, *read.Engine, time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inCycle = false
	if e.pendingOff {
		e.primary = false
		e.pendingOff = false
	}
}
