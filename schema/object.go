package schema

import (
	"fmt"
	"strings"
)

// FieldType is the storage type of an object field.
type FieldType uint8

const (
	FieldInt FieldType = iota
	FieldLong
	FieldBoolean
	FieldFloat
	FieldDouble
	FieldString
	FieldBytes
	FieldReference
)

var fieldTypeNames = [...]string{
	FieldInt:       "int",
	FieldLong:      "long",
	FieldBoolean:   "boolean",
	FieldFloat:     "float",
	FieldDouble:    "double",
	FieldString:    "string",
	FieldBytes:     "bytes",
	FieldReference: "reference",
}

func (t FieldType) String() string {
	if int(t) < len(fieldTypeNames) {
		return fieldTypeNames[t]
	}
	return fmt.Sprintf("FieldType(%d)", uint8(t))
}

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	return t <= FieldReference
}

// Field is one field of an object schema. RefType is set only for
// reference fields.
type Field struct {
	Name    string
	Type    FieldType
	RefType string
}

// NewField creates a field holding an inline value.
func NewField(name string, t FieldType) Field {
	return Field{Name: name, Type: t}
}

// NewReferenceField creates a field holding an ordinal of refType.
func NewReferenceField(name, refType string) Field {
	return Field{Name: name, Type: FieldReference, RefType: refType}
}

// ObjectSchema describes a record with named, typed fields.
type ObjectSchema struct {
	name       string
	fields     []Field
	index      map[string]int
	primaryKey *PrimaryKey
}

// NewObjectSchema creates an object schema. Field order is significant: it
// is the order in which field values are serialized.
func NewObjectSchema(name string, fields ...Field) *ObjectSchema {
	s := &ObjectSchema{
		name:   name,
		fields: append([]Field(nil), fields...),
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range s.fields {
		if _, dup := s.index[f.Name]; !dup {
			s.index[f.Name] = i
		}
	}
	return s
}

// WithPrimaryKey declares the primary key and returns s.
func (s *ObjectSchema) WithPrimaryKey(fieldPaths ...string) *ObjectSchema {
	s.primaryKey = &PrimaryKey{Type: s.name, FieldPaths: append([]string(nil), fieldPaths...)}
	return s
}

func (s *ObjectSchema) Name() string { return s.name }
func (s *ObjectSchema) Kind() Kind   { return KindObject }
func (s *ObjectSchema) sealed()      {}

// TypeID implements Schema.
func (s *ObjectSchema) TypeID() uint8 {
	if s.primaryKey != nil {
		return TypeIDObjectWithPKey
	}
	return TypeIDObject
}

// PrimaryKey returns the declared primary key or nil.
func (s *ObjectSchema) PrimaryKey() *PrimaryKey { return s.primaryKey }

// NumFields returns the number of fields.
func (s *ObjectSchema) NumFields() int { return len(s.fields) }

// Field returns the field at position i.
func (s *ObjectSchema) Field(i int) Field { return s.fields[i] }

// Fields returns a copy of the field list.
func (s *ObjectSchema) Fields() []Field { return append([]Field(nil), s.fields...) }

// FieldIndex returns the position of the named field, or -1.
func (s *ObjectSchema) FieldIndex(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Dependencies implements Schema.
func (s *ObjectSchema) Dependencies() []string {
	var deps []string
	seen := make(map[string]struct{})
	for _, f := range s.fields {
		if f.Type != FieldReference {
			continue
		}
		if _, ok := seen[f.RefType]; ok {
			continue
		}
		seen[f.RefType] = struct{}{}
		deps = append(deps, f.RefType)
	}
	return deps
}

// Validate implements Schema.
func (s *ObjectSchema) Validate() error {
	if err := validateName(s.name); err != nil {
		return err
	}
	if len(s.index) != len(s.fields) {
		return invalid(s.name, "duplicate field names")
	}
	for _, f := range s.fields {
		if f.Name == "" {
			return invalid(s.name, "empty field name")
		}
		if !f.Type.Valid() {
			return invalid(s.name, "field %q has unknown type %d", f.Name, f.Type)
		}
		if f.Type == FieldReference && f.RefType == "" {
			return invalid(s.name, "reference field %q has no referenced type", f.Name)
		}
		if f.Type != FieldReference && f.RefType != "" {
			return invalid(s.name, "field %q of type %s cannot reference %q", f.Name, f.Type, f.RefType)
		}
	}
	if s.primaryKey != nil {
		if len(s.primaryKey.FieldPaths) == 0 {
			return invalid(s.name, "primary key without fields")
		}
		for _, p := range s.primaryKey.FieldPaths {
			head, _, _ := strings.Cut(p, ".")
			if s.FieldIndex(head) < 0 {
				return invalid(s.name, "primary key field %q not declared", p)
			}
		}
	}
	return nil
}

// Equal implements Schema.
func (s *ObjectSchema) Equal(other Schema) bool {
	o, ok := other.(*ObjectSchema)
	if !ok || o.name != s.name || len(o.fields) != len(s.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i] != o.fields[i] {
			return false
		}
	}
	return s.primaryKey.Equal(o.primaryKey)
}

// Project returns a schema with only the fields for which keep returns
// true. The primary key is dropped if any of its fields are removed.
func (s *ObjectSchema) Project(keep func(field string) bool) *ObjectSchema {
	var fields []Field
	for _, f := range s.fields {
		if keep(f.Name) {
			fields = append(fields, f)
		}
	}
	p := NewObjectSchema(s.name, fields...)
	if s.primaryKey != nil {
		for _, path := range s.primaryKey.FieldPaths {
			head, _, _ := strings.Cut(path, ".")
			if p.FieldIndex(head) < 0 {
				return p
			}
		}
		p.primaryKey = s.primaryKey
	}
	return p
}

func (s *ObjectSchema) String() string {
	var b strings.Builder
	b.WriteString(s.name)
	if s.primaryKey != nil {
		fmt.Fprintf(&b, " @PrimaryKey(%s)", s.primaryKey)
	}
	b.WriteString(" {\n")
	for _, f := range s.fields {
		b.WriteString("    ")
		if f.Type == FieldReference {
			b.WriteString(f.RefType)
		} else {
			b.WriteString(f.Type.String())
		}
		fmt.Fprintf(&b, " %s;\n", f.Name)
	}
	b.WriteString("}")
	return b.String()
}
