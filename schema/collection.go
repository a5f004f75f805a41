package schema

import "fmt"

// ListSchema describes an ordered list of element ordinals.
type ListSchema struct {
	name        string
	elementType string
}

// NewListSchema creates a list schema.
func NewListSchema(name, elementType string) *ListSchema {
	return &ListSchema{name: name, elementType: elementType}
}

func (s *ListSchema) Name() string           { return s.name }
func (s *ListSchema) Kind() Kind             { return KindList }
func (s *ListSchema) TypeID() uint8          { return TypeIDList }
func (s *ListSchema) ElementType() string    { return s.elementType }
func (s *ListSchema) Dependencies() []string { return []string{s.elementType} }
func (s *ListSchema) sealed()                {}

func (s *ListSchema) Validate() error {
	if err := validateName(s.name); err != nil {
		return err
	}
	if s.elementType == "" {
		return invalid(s.name, "list without element type")
	}
	return nil
}

func (s *ListSchema) Equal(other Schema) bool {
	o, ok := other.(*ListSchema)
	return ok && *o == *s
}

func (s *ListSchema) String() string {
	return fmt.Sprintf("%s List<%s>;", s.name, s.elementType)
}

// SetSchema describes an unordered set of element ordinals. The optional
// hash key names element fields that identify a member.
type SetSchema struct {
	name        string
	elementType string
	hashKey     *PrimaryKey
}

// NewSetSchema creates a set schema, with a hash key when fields are given.
func NewSetSchema(name, elementType string, hashKeyFields ...string) *SetSchema {
	s := &SetSchema{name: name, elementType: elementType}
	if len(hashKeyFields) > 0 {
		s.hashKey = &PrimaryKey{Type: elementType, FieldPaths: append([]string(nil), hashKeyFields...)}
	}
	return s
}

func (s *SetSchema) Name() string           { return s.name }
func (s *SetSchema) Kind() Kind             { return KindSet }
func (s *SetSchema) ElementType() string    { return s.elementType }
func (s *SetSchema) HashKey() *PrimaryKey   { return s.hashKey }
func (s *SetSchema) Dependencies() []string { return []string{s.elementType} }
func (s *SetSchema) sealed()                {}

func (s *SetSchema) TypeID() uint8 {
	if s.hashKey != nil {
		return TypeIDSetWithKey
	}
	return TypeIDSet
}

func (s *SetSchema) Validate() error {
	if err := validateName(s.name); err != nil {
		return err
	}
	if s.elementType == "" {
		return invalid(s.name, "set without element type")
	}
	return nil
}

func (s *SetSchema) Equal(other Schema) bool {
	o, ok := other.(*SetSchema)
	return ok && o.name == s.name && o.elementType == s.elementType && s.hashKey.Equal(o.hashKey)
}

func (s *SetSchema) String() string {
	if s.hashKey != nil {
		return fmt.Sprintf("%s Set<%s> @HashKey(%s);", s.name, s.elementType, s.hashKey)
	}
	return fmt.Sprintf("%s Set<%s>;", s.name, s.elementType)
}

// MapSchema describes a map from key ordinals to value ordinals.
type MapSchema struct {
	name      string
	keyType   string
	valueType string
	hashKey   *PrimaryKey
}

// NewMapSchema creates a map schema, with a hash key over the key type when
// fields are given.
func NewMapSchema(name, keyType, valueType string, hashKeyFields ...string) *MapSchema {
	s := &MapSchema{name: name, keyType: keyType, valueType: valueType}
	if len(hashKeyFields) > 0 {
		s.hashKey = &PrimaryKey{Type: keyType, FieldPaths: append([]string(nil), hashKeyFields...)}
	}
	return s
}

func (s *MapSchema) Name() string         { return s.name }
func (s *MapSchema) Kind() Kind           { return KindMap }
func (s *MapSchema) KeyType() string      { return s.keyType }
func (s *MapSchema) ValueType() string    { return s.valueType }
func (s *MapSchema) HashKey() *PrimaryKey { return s.hashKey }
func (s *MapSchema) sealed()              {}

func (s *MapSchema) TypeID() uint8 {
	if s.hashKey != nil {
		return TypeIDMapWithKey
	}
	return TypeIDMap
}

func (s *MapSchema) Dependencies() []string {
	if s.keyType == s.valueType {
		return []string{s.keyType}
	}
	return []string{s.keyType, s.valueType}
}

func (s *MapSchema) Validate() error {
	if err := validateName(s.name); err != nil {
		return err
	}
	if s.keyType == "" || s.valueType == "" {
		return invalid(s.name, "map without key or value type")
	}
	return nil
}

func (s *MapSchema) Equal(other Schema) bool {
	o, ok := other.(*MapSchema)
	return ok && o.name == s.name && o.keyType == s.keyType && o.valueType == s.valueType && s.hashKey.Equal(o.hashKey)
}

func (s *MapSchema) String() string {
	if s.hashKey != nil {
		return fmt.Sprintf("%s Map<%s, %s> @HashKey(%s);", s.name, s.keyType, s.valueType, s.hashKey)
	}
	return fmt.Sprintf("%s Map<%s, %s>;", s.name, s.keyType, s.valueType)
}
