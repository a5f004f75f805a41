package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrEmptyName is returned when a schema has no type name.
	ErrEmptyName = errors.New("type name in schema was an empty string")

	// ErrInvalidSchema is returned for structurally invalid schemas.
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrUnknownTypeID is returned when decoding an unrecognized schema type id.
	ErrUnknownTypeID = errors.New("unknown schema type id")
)

// Kind identifies the variant of a schema.
type Kind uint8

const (
	KindObject Kind = iota
	KindList
	KindSet
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "OBJECT"
	case KindList:
		return "LIST"
	case KindSet:
		return "SET"
	case KindMap:
		return "MAP"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Wire type ids. Keyed variants get their own id so a reader knows whether
// key paths follow.
const (
	TypeIDObject         uint8 = 0
	TypeIDSet            uint8 = 1
	TypeIDList           uint8 = 2
	TypeIDMap            uint8 = 3
	TypeIDSetWithKey     uint8 = 4
	TypeIDMapWithKey     uint8 = 5
	TypeIDObjectWithPKey uint8 = 6
)

// Schema describes one named record type. The set of implementations is
// closed: *ObjectSchema, *ListSchema, *SetSchema and *MapSchema.
type Schema interface {
	// Name returns the type name.
	Name() string
	// Kind returns the schema variant.
	Kind() Kind
	// TypeID returns the wire type id.
	TypeID() uint8
	// Dependencies returns the names of types referenced by this schema,
	// without duplicates, in declaration order.
	Dependencies() []string
	// Validate checks the schema for structural errors.
	Validate() error
	// Equal reports whether other describes the same type.
	Equal(other Schema) bool
	// String renders the schema in a readable declaration form.
	String() string

	sealed()
}

// PrimaryKey names the fields that uniquely identify a record of Type.
// Field paths are dot separated and may traverse reference fields.
type PrimaryKey struct {
	Type       string
	FieldPaths []string
}

// Equal reports whether both keys are identical. Nil keys are equal to
// each other only.
func (k *PrimaryKey) Equal(other *PrimaryKey) bool {
	if k == nil || other == nil {
		return k == nil && other == nil
	}
	return k.Type == other.Type && slices.Equal(k.FieldPaths, other.FieldPaths)
}

func (k *PrimaryKey) String() string {
	if k == nil {
		return ""
	}
	return strings.Join(k.FieldPaths, ", ")
}

func validateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	return nil
}

func invalid(name, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidSchema, name, fmt.Sprintf(format, args...))
}

// ByName indexes schemas by type name.
func ByName(schemas []Schema) map[string]Schema {
	m := make(map[string]Schema, len(schemas))
	for _, s := range schemas {
		m[s.Name()] = s
	}
	return m
}
