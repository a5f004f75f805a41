package producer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrWriteStateClosed is returned by a WriteState used after the
	// populate function returned.
	ErrWriteStateClosed = errors.New("write state operated on after the population stage of a cycle")

	// ErrNotInitialized is returned by RunCycle before Initialize.
	ErrNotInitialized = errors.New("producer data model is not initialized")

	// ErrNoPublisher is returned by RunCycle when no publisher is configured.
	ErrNoPublisher = errors.New("producer has no blob publisher")

	// ErrIntegrity is returned when the state reached through a delta differs
	// from the snapshot of the same version.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrVetoed is returned when a listener vetoes a cycle.
	ErrVetoed = errors.New("cycle vetoed by listener")
)

// ValidationError aggregates the failures of every validator run for a
// version.
type ValidationError struct {
	Version int64
	Errs    *multierror.Error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errs.Errors))
	for _, err := range e.Errs.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation of version %d failed: %s", e.Version, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() []error { return e.Errs.WrappedErrors() }
