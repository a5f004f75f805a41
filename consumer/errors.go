package consumer

import (
	"errors"
	"fmt"

	"github.com/hupe1980/stratum/blob"
)

var (
	// ErrNoPath is returned when no chain of available blobs reaches the
	// requested version.
	ErrNoPath = errors.New("no update path to requested version")

	// ErrKnownFailedTransition is returned when the plan for a refresh
	// contains a transition that already failed on this consumer.
	ErrKnownFailedTransition = errors.New("plan contains a transition that failed previously")

	// ErrVetoed is returned when a refresh listener vetoes a refresh.
	ErrVetoed = errors.New("refresh vetoed by listener")

	// ErrNothingAnnounced is returned by Refresh when the announcement
	// watcher has no version yet.
	ErrNothingAnnounced = errors.New("no version announced")

	// ErrInvalidVersion is returned for requests that cannot name a state.
	ErrInvalidVersion = errors.New("invalid version")

	// ErrWatchUnsupported is returned by Watch when the configured
	// announcement watcher cannot push updates.
	ErrWatchUnsupported = errors.New("announcement watcher does not support subscriptions")
)

// TransitionError reports a transition that could not be retrieved or
// applied.
type TransitionError struct {
	Kind blob.Kind
	From int64
	To   int64
	Err  error
}

func (e *TransitionError) Error() string {
	if e.Kind == blob.Snapshot {
		return fmt.Sprintf("snapshot transition to %s failed: %v", blob.FormatVersion(e.To), e.Err)
	}
	return fmt.Sprintf("%s transition %s->%s failed: %v",
		e.Kind, blob.FormatVersion(e.From), blob.FormatVersion(e.To), e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// RefreshError reports a refresh that did not reach the requested version.
// Reached is the version the consumer is left at.
type RefreshError struct {
	From      int64
	Reached   int64
	Requested int64
	Err       error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh from %s to %s stopped at %s: %v",
		blob.FormatVersion(e.From), blob.FormatVersion(e.Requested), blob.FormatVersion(e.Reached), e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }
