package read

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when a delta is applied before any
	// snapshot.
	ErrNotInitialized = errors.New("delta cannot be applied without a prior snapshot")

	// ErrOriginMismatch is returned when a delta was produced from a state
	// other than the one currently loaded.
	ErrOriginMismatch = errors.New("blob origin does not match the current state")

	// ErrWrongKind is returned when a blob of one kind is applied as another.
	ErrWrongKind = errors.New("unexpected blob kind")

	// ErrSchemaMismatch is returned when a delta carries a schema that
	// differs from the loaded one for the same type.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrCorrupt is returned when a blob body is inconsistent with itself or
	// with the loaded state.
	ErrCorrupt = errors.New("corrupt state transition")

	// ErrNoRecord is returned by typed accessors for ordinals that hold no
	// record.
	ErrNoRecord = errors.New("no record at ordinal")
)

func corrupt(typeName, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrCorrupt, typeName, fmt.Sprintf(format, args...))
}
