package write

import (
	"errors"
	"fmt"
)

var (
	// ErrNotPopulating is returned when records are added after
	// PrepareForWrite and before the next PrepareForNextCycle.
	ErrNotPopulating = errors.New("write engine is not in the population stage")

	// ErrUnknownType is returned when a type name has not been registered.
	ErrUnknownType = errors.New("unknown type")

	// ErrNilRecord is returned when Add is called with a nil record.
	ErrNilRecord = errors.New("record is nil")

	// ErrSchemaMismatch is returned when a record was built against a
	// schema different from the registered one.
	ErrSchemaMismatch = errors.New("record schema does not match registered schema")

	// ErrSchemaConflict is returned when a type is registered twice with
	// different schemas.
	ErrSchemaConflict = errors.New("conflicting schema registration")

	// ErrNotPrepared is returned when a blob is written before
	// PrepareForWrite.
	ErrNotPrepared = errors.New("write engine has not been prepared for write")
)

// PopulationError reports a record rejected during population. The type
// state is left unchanged.
type PopulationError struct {
	Type string
	Err  error
}

func (e *PopulationError) Error() string {
	return fmt.Sprintf("populate %s: %v", e.Type, e.Err)
}

func (e *PopulationError) Unwrap() error { return e.Err }
