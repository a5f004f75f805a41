package record

import (
	"errors"
	"fmt"

	"github.com/hupe1980/stratum/schema"
)

var (
	// ErrUnknownField is returned when a field name is not in the schema.
	ErrUnknownField = errors.New("unknown field")

	// ErrFieldType is returned when a value does not match the field type.
	ErrFieldType = errors.New("field type mismatch")

	// ErrInvalidOrdinal is returned for negative reference ordinals.
	ErrInvalidOrdinal = errors.New("invalid ordinal")

	// ErrMalformed is returned when record bytes cannot be decoded.
	ErrMalformed = errors.New("malformed record")

	// ErrUnmapped is returned by RemapReferences when a reference has no
	// counterpart.
	ErrUnmapped = errors.New("reference has no mapping")
)

// Record is a value that can be added to a write state.
type Record interface {
	// Schema returns the schema the record was built against.
	Schema() schema.Schema
	// Encode appends the canonical serialized form to dst. Records with equal
	// content produce equal bytes.
	Encode(dst []byte) ([]byte, error)
}

// Entry is one key/value pair of a map record.
type Entry struct {
	Key   int
	Value int
}

func malformed(typeName string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrMalformed, typeName)
	}
	return fmt.Errorf("%w: %s: %w", ErrMalformed, typeName, err)
}
