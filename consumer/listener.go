package consumer

import (
	"reflect"

	"github.com/hupe1980/stratum/blob"
	"github.com/hupe1980/stratum/read"
)

type verdictKind uint8

const (
	verdictContinue verdictKind = iota
	verdictVeto
	verdictError
)

// Verdict is a listener's answer to a refresh event.
type Verdict struct {
	kind   verdictKind
	reason string
	err    error
}

// Continue lets the refresh proceed.
func Continue() Verdict { return Verdict{} }

// Veto stops the refresh before the next transition is applied.
// Transitions already applied stay applied.
func Veto(reason string) Verdict { return Verdict{kind: verdictVeto, reason: reason} }

// ListenerError reports a listener failure. What happens next depends on
// the consumer's ListenerErrorPolicy.
func ListenerError(cause error) Verdict { return Verdict{kind: verdictError, err: cause} }

func (v Verdict) IsContinue() bool { return v.kind == verdictContinue }
func (v Verdict) IsVeto() bool     { return v.kind == verdictVeto }
func (v Verdict) IsError() bool    { return v.kind == verdictError }

// Reason returns the veto reason.
func (v Verdict) Reason() string { return v.reason }

// Err returns the listener error.
func (v Verdict) Err() error { return v.err }

// RefreshListener observes refreshes. Callbacks run on the refreshing
// goroutine in this order: RefreshStarted, then per transition BlobLoaded,
// SnapshotUpdateOccurred or DeltaUpdateOccurred, SnapshotApplied or
// DeltaApplied, and finally RefreshSuccessful or RefreshFailed.
// Reverse deltas are reported as deltas.
type RefreshListener interface {
	RefreshStarted(current, requested int64) Verdict
	BlobLoaded(transition *blob.Blob) Verdict
	SnapshotUpdateOccurred(engine *read.Engine, version int64) Verdict
	DeltaUpdateOccurred(engine *read.Engine, version int64) Verdict
	SnapshotApplied(engine *read.Engine, version int64) Verdict
	DeltaApplied(engine *read.Engine, version int64) Verdict
	RefreshSuccessful(before, after, requested int64)
	RefreshFailed(before, after, requested int64, err error)
}

// BaseRefreshListener implements RefreshListener with no-op methods. Embed
// it to override only the callbacks of interest.
type BaseRefreshListener struct{}

func (BaseRefreshListener) RefreshStarted(int64, int64) Verdict                { return Continue() }
func (BaseRefreshListener) BlobLoaded(*blob.Blob) Verdict                      { return Continue() }
func (BaseRefreshListener) SnapshotUpdateOccurred(*read.Engine, int64) Verdict { return Continue() }
func (BaseRefreshListener) DeltaUpdateOccurred(*read.Engine, int64) Verdict    { return Continue() }
func (BaseRefreshListener) SnapshotApplied(*read.Engine, int64) Verdict        { return Continue() }
func (BaseRefreshListener) DeltaApplied(*read.Engine, int64) Verdict           { return Continue() }
func (BaseRefreshListener) RefreshSuccessful(int64, int64, int64)              {}
func (BaseRefreshListener) RefreshFailed(int64, int64, int64, error)           {}

// ListenerErrorPolicy decides what a ListenerError verdict does.
type ListenerErrorPolicy int

const (
	// LogListenerErrors logs the error and continues the refresh.
	LogListenerErrors ListenerErrorPolicy = iota
	// FailOnListenerError stops the refresh and returns the error.
	FailOnListenerError
)

func (p ListenerErrorPolicy) String() string {
	if p == FailOnListenerError {
		return "fail"
	}
	return "log"
}

// sameListener compares listeners without panicking on uncomparable
// dynamic types.
func sameListener(a, b RefreshListener) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
