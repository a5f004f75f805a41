package producer

import (
	"sync"
	"time"
)

// VersionMinter hands out strictly increasing versions.
type VersionMinter interface {
	Mint() int64
}

// VersionMinterFunc adapts a function to VersionMinter.
type VersionMinterFunc func() int64

// Mint implements VersionMinter.
func (f VersionMinterFunc) Mint() int64 { return f() }

// TimeMinter mints versions from the wall clock in milliseconds, bumping
// by one when the clock has not advanced.
type TimeMinter struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewTimeMinter returns a minter based on time.Now.
func NewTimeMinter() *TimeMinter {
	return &TimeMinter{now: time.Now}
}

// Mint implements VersionMinter.
func (m *TimeMinter) Mint() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.now().UnixMilli()
	if v <= m.last {
		v = m.last + 1
	}
	m.last = v
	return v
}

// Observe makes later versions exceed v, used after a restore.
func (m *TimeMinter) Observe(v int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v > m.last {
		m.last = v
	}
}
