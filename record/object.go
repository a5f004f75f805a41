package record

import (
	"fmt"
	"math"

	"github.com/hupe1980/stratum/internal/varint"
	"github.com/hupe1980/stratum/schema"
)

// Bit patterns reserved for null floating point fields. NaN values set by
// callers are canonicalized, so these never collide with data.
const (
	NullFloatBits  uint32 = 0x7fc00001
	NullDoubleBits uint64 = 0x7ff8000000000001

	canonicalNaN32 uint32 = 0x7fc00000
	canonicalNaN64 uint64 = 0x7ff8000000000000
)

// Object builds an object record. Setters are chainable; the first error
// is kept and reported by Encode.
type Object struct {
	schema *schema.ObjectSchema
	fields [][]byte
	err    error
}

// NewObject creates an empty object record. Unset fields are null.
func NewObject(s *schema.ObjectSchema) *Object {
	return &Object{schema: s, fields: make([][]byte, s.NumFields())}
}

// Schema implements Record.
func (o *Object) Schema() schema.Schema { return o.schema }

// Err returns the first setter error.
func (o *Object) Err() error { return o.err }

func (o *Object) slot(name string, t schema.FieldType) int {
	if o.err != nil {
		return -1
	}
	i := o.schema.FieldIndex(name)
	if i < 0 {
		o.err = fmt.Errorf("%w: %s.%s", ErrUnknownField, o.schema.Name(), name)
		return -1
	}
	if ft := o.schema.Field(i).Type; ft != t {
		o.err = fmt.Errorf("%w: %s.%s is %s, not %s", ErrFieldType, o.schema.Name(), name, ft, t)
		return -1
	}
	return i
}

// SetInt sets an int field.
func (o *Object) SetInt(name string, v int32) *Object {
	if i := o.slot(name, schema.FieldInt); i >= 0 {
		o.fields[i] = varint.AppendZigZagInt(nil, v)
	}
	return o
}

// SetLong sets a long field.
func (o *Object) SetLong(name string, v int64) *Object {
	if i := o.slot(name, schema.FieldLong); i >= 0 {
		o.fields[i] = varint.AppendZigZagLong(nil, v)
	}
	return o
}

// SetBool sets a boolean field.
func (o *Object) SetBool(name string, v bool) *Object {
	if i := o.slot(name, schema.FieldBoolean); i >= 0 {
		if v {
			o.fields[i] = []byte{1}
		} else {
			o.fields[i] = []byte{0}
		}
	}
	return o
}

// SetFloat sets a float field.
func (o *Object) SetFloat(name string, v float32) *Object {
	if i := o.slot(name, schema.FieldFloat); i >= 0 {
		bits := math.Float32bits(v)
		if v != v {
			bits = canonicalNaN32
		}
		o.fields[i] = varint.AppendFixed32(nil, bits)
	}
	return o
}

// SetDouble sets a double field.
func (o *Object) SetDouble(name string, v float64) *Object {
	if i := o.slot(name, schema.FieldDouble); i >= 0 {
		bits := math.Float64bits(v)
		if math.IsNaN(v) {
			bits = canonicalNaN64
		}
		o.fields[i] = varint.AppendFixed64(nil, bits)
	}
	return o
}

// SetString sets a string field.
func (o *Object) SetString(name, v string) *Object {
	if i := o.slot(name, schema.FieldString); i >= 0 {
		o.fields[i] = varint.AppendString(nil, v)
	}
	return o
}

// SetBytes sets a bytes field. A nil slice leaves the field null.
func (o *Object) SetBytes(name string, v []byte) *Object {
	if i := o.slot(name, schema.FieldBytes); i >= 0 {
		if v == nil {
			o.fields[i] = nil
			return o
		}
		o.fields[i] = varint.AppendBytes(nil, v)
	}
	return o
}

// SetReference sets a reference field to an ordinal of the referenced type.
func (o *Object) SetReference(name string, ordinal int) *Object {
	if i := o.slot(name, schema.FieldReference); i >= 0 {
		if ordinal < 0 {
			o.err = fmt.Errorf("%w: %s.%s = %d", ErrInvalidOrdinal, o.schema.Name(), name, ordinal)
			return o
		}
		o.fields[i] = varint.AppendVInt(nil, uint32(ordinal))
	}
	return o
}

// SetNull clears a field.
func (o *Object) SetNull(name string) *Object {
	if o.err != nil {
		return o
	}
	i := o.schema.FieldIndex(name)
	if i < 0 {
		o.err = fmt.Errorf("%w: %s.%s", ErrUnknownField, o.schema.Name(), name)
		return o
	}
	o.fields[i] = nil
	return o
}

// Encode implements Record.
func (o *Object) Encode(dst []byte) ([]byte, error) {
	if o.err != nil {
		return dst, o.err
	}
	for i, f := range o.fields {
		if f != nil {
			dst = append(dst, f...)
			continue
		}
		dst = appendNull(dst, o.schema.Field(i).Type)
	}
	return dst, nil
}

func appendNull(dst []byte, t schema.FieldType) []byte {
	switch t {
	case schema.FieldFloat:
		return varint.AppendFixed32(dst, NullFloatBits)
	case schema.FieldDouble:
		return varint.AppendFixed64(dst, NullDoubleBits)
	default:
		return varint.AppendNull(dst)
	}
}
