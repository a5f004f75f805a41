package producer

import (
	"time"

	"github.com/hupe1980/stratum/blob"
	"github.com/hupe1980/stratum/read"
)

// SkipReason says why a cycle produced no version.
type SkipReason int

const (
	// SkipNotPrimary means the single producer enforcer is disabled.
	SkipNotPrimary SkipReason = iota + 1
	// SkipNoChange means the populated state equals the previous one.
	SkipNoChange
)

func (r SkipReason) String() string {
	switch r {
	case SkipNotPrimary:
		return "not primary producer"
	case SkipNoChange:
		return "no change"
	default:
		return "unknown"
	}
}

// Listener observes producer cycles. CycleStart may veto a cycle by
// returning an error; the other callbacks are informational.
type Listener interface {
	CycleStart(version int64) error
	CycleSkip(reason SkipReason)
	PopulateComplete(version int64, elapsed time.Duration, err error)
	BlobPublished(kind blob.Kind, from, to int64, size int, err error)
	ValidationComplete(version int64, err error)
	AnnouncementComplete(version int64, err error)
	CycleComplete(version int64, state *read.Engine, elapsed time.Duration, err error)
	RestoreComplete(desired, reached int64, err error)
}

// BaseListener implements Listener with no-op methods.
type BaseListener struct{}

func (BaseListener) CycleStart(int64) error                                  { return nil }
func (BaseListener) CycleSkip(SkipReason)                                    {}
func (BaseListener) PopulateComplete(int64, time.Duration, error)            {}
func (BaseListener) BlobPublished(blob.Kind, int64, int64, int, error)       {}
func (BaseListener) ValidationComplete(int64, error)                         {}
func (BaseListener) AnnouncementComplete(int64, error)                       {}
func (BaseListener) CycleComplete(int64, *read.Engine, time.Duration, error) {}
func (BaseListener) RestoreComplete(int64, int64, error)                     {}
