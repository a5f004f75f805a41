package record

import (
	"math"

	"github.com/hupe1980/stratum/internal/varint"
	"github.com/hupe1980/stratum/schema"
)

type span struct{ start, end int }

// ObjectView reads fields of a serialized object record without copying.
type ObjectView struct {
	schema *schema.ObjectSchema
	data   []byte
	spans  []span
}

// DecodeObject indexes the field boundaries of data.
func DecodeObject(s *schema.ObjectSchema, data []byte) (ObjectView, error) {
	spans, err := fieldSpans(s, data)
	if err != nil {
		return ObjectView{}, err
	}
	return ObjectView{schema: s, data: data, spans: spans}, nil
}

func fieldSpans(s *schema.ObjectSchema, data []byte) ([]span, error) {
	d := varint.NewDecoder(data)
	spans := make([]span, s.NumFields())
	for i := range spans {
		start := d.Offset()
		switch s.Field(i).Type {
		case schema.FieldInt, schema.FieldLong, schema.FieldReference:
			if !d.IsNull() {
				d.VLong()
			}
		case schema.FieldBoolean:
			d.Byte()
		case schema.FieldFloat:
			d.Fixed32()
		case schema.FieldDouble:
			d.Fixed64()
		case schema.FieldString, schema.FieldBytes:
			if !d.IsNull() {
				d.Bytes()
			}
		default:
			return nil, malformed(s.Name(), nil)
		}
		if err := d.Err(); err != nil {
			return nil, malformed(s.Name(), err)
		}
		spans[i] = span{start, d.Offset()}
	}
	if d.Remaining() != 0 {
		return nil, malformed(s.Name(), nil)
	}
	return spans, nil
}

// Schema returns the object schema.
func (v ObjectView) Schema() *schema.ObjectSchema { return v.schema }

// FieldBytes returns the encoded bytes of a field, or nil if the field
// does not exist.
func (v ObjectView) FieldBytes(name string) []byte {
	i := v.schema.FieldIndex(name)
	if i < 0 {
		return nil
	}
	return v.data[v.spans[i].start:v.spans[i].end]
}

// field returns the encoded value if the field exists with type t and is
// not null.
func (v ObjectView) field(name string, t schema.FieldType) ([]byte, bool) {
	i := v.schema.FieldIndex(name)
	if i < 0 || v.schema.Field(i).Type != t {
		return nil, false
	}
	b := v.data[v.spans[i].start:v.spans[i].end]
	if isNullEncoding(t, b) {
		return nil, false
	}
	return b, true
}

func isNullEncoding(t schema.FieldType, b []byte) bool {
	switch t {
	case schema.FieldFloat:
		return varint.NewDecoder(b).Fixed32() == NullFloatBits
	case schema.FieldDouble:
		return varint.NewDecoder(b).Fixed64() == NullDoubleBits
	default:
		return len(b) == 1 && b[0] == varint.Null
	}
}

// IsNull reports whether the field is null or absent.
func (v ObjectView) IsNull(name string) bool {
	i := v.schema.FieldIndex(name)
	if i < 0 {
		return true
	}
	return isNullEncoding(v.schema.Field(i).Type, v.data[v.spans[i].start:v.spans[i].end])
}

// Int returns an int field.
func (v ObjectView) Int(name string) (int32, bool) {
	b, ok := v.field(name, schema.FieldInt)
	if !ok {
		return 0, false
	}
	return varint.NewDecoder(b).ZigZagInt(), true
}

// Long returns a long field.
func (v ObjectView) Long(name string) (int64, bool) {
	b, ok := v.field(name, schema.FieldLong)
	if !ok {
		return 0, false
	}
	return varint.NewDecoder(b).ZigZagLong(), true
}

// Bool returns a boolean field.
func (v ObjectView) Bool(name string) (value, ok bool) {
	b, ok := v.field(name, schema.FieldBoolean)
	if !ok {
		return false, false
	}
	return b[0] == 1, true
}

// Float returns a float field.
func (v ObjectView) Float(name string) (float32, bool) {
	b, ok := v.field(name, schema.FieldFloat)
	if !ok {
		return 0, false
	}
	return math.Float32frombits(varint.NewDecoder(b).Fixed32()), true
}

// Double returns a double field.
func (v ObjectView) Double(name string) (float64, bool) {
	b, ok := v.field(name, schema.FieldDouble)
	if !ok {
		return 0, false
	}
	return math.Float64frombits(varint.NewDecoder(b).Fixed64()), true
}

// String returns a string field.
func (v ObjectView) String(name string) (string, bool) {
	b, ok := v.field(name, schema.FieldString)
	if !ok {
		return "", false
	}
	return varint.NewDecoder(b).String(), true
}

// Bytes returns a bytes field. The slice aliases the record data.
func (v ObjectView) Bytes(name string) ([]byte, bool) {
	b, ok := v.field(name, schema.FieldBytes)
	if !ok {
		return nil, false
	}
	return varint.NewDecoder(b).Bytes(), true
}

// Reference returns the ordinal held by a reference field.
func (v ObjectView) Reference(name string) (int, bool) {
	b, ok := v.field(name, schema.FieldReference)
	if !ok {
		return 0, false
	}
	return int(varint.NewDecoder(b).VInt()), true
}

// Value returns the field value as a Go value: int32, int64, bool,
// float32, float64, string, []byte, or int for references. Null fields
// return nil.
func (v ObjectView) Value(name string) any {
	i := v.schema.FieldIndex(name)
	if i < 0 || v.IsNull(name) {
		return nil
	}
	switch v.schema.Field(i).Type {
	case schema.FieldInt:
		x, _ := v.Int(name)
		return x
	case schema.FieldLong:
		x, _ := v.Long(name)
		return x
	case schema.FieldBoolean:
		x, _ := v.Bool(name)
		return x
	case schema.FieldFloat:
		x, _ := v.Float(name)
		return x
	case schema.FieldDouble:
		x, _ := v.Double(name)
		return x
	case schema.FieldString:
		x, _ := v.String(name)
		return x
	case schema.FieldBytes:
		x, _ := v.Bytes(name)
		return x
	case schema.FieldReference:
		x, _ := v.Reference(name)
		return x
	}
	return nil
}

// DecodeList returns the element ordinals of a list record.
func DecodeList(data []byte) ([]int, error) {
	d := varint.NewDecoder(data)
	n := d.VInt()
	if err := d.Err(); err != nil {
		return nil, malformed("list", err)
	}
	if int(n) > d.Remaining() {
		return nil, malformed("list", nil)
	}
	out := make([]int, n)
	for i := range out {
		out[i] = int(d.VInt())
	}
	if err := d.Err(); err != nil || d.Remaining() != 0 {
		return nil, malformed("list", err)
	}
	return out, nil
}

// DecodeSet returns the element ordinals of a set record in ascending
// order.
func DecodeSet(data []byte) ([]int, error) {
	d := varint.NewDecoder(data)
	n := d.VInt()
	if err := d.Err(); err != nil {
		return nil, malformed("set", err)
	}
	if int(n) > d.Remaining() {
		return nil, malformed("set", nil)
	}
	out := make([]int, n)
	prev := 0
	for i := range out {
		prev += int(d.VInt())
		out[i] = prev
	}
	if err := d.Err(); err != nil || d.Remaining() != 0 {
		return nil, malformed("set", err)
	}
	return out, nil
}

// DecodeMap returns the entries of a map record in ascending key order.
func DecodeMap(data []byte) ([]Entry, error) {
	d := varint.NewDecoder(data)
	n := d.VInt()
	if err := d.Err(); err != nil {
		return nil, malformed("map", err)
	}
	if int(n) > d.Remaining() {
		return nil, malformed("map", nil)
	}
	out := make([]Entry, n)
	prev := 0
	for i := range out {
		prev += int(d.VInt())
		out[i] = Entry{Key: prev, Value: int(d.VInt())}
	}
	if err := d.Err(); err != nil || d.Remaining() != 0 {
		return nil, malformed("map", err)
	}
	return out, nil
}

// Validate checks that data is a well-formed record of s.
func Validate(s schema.Schema, data []byte) error {
	var err error
	switch t := s.(type) {
	case *schema.ObjectSchema:
		_, err = fieldSpans(t, data)
	case *schema.ListSchema:
		_, err = DecodeList(data)
	case *schema.SetSchema:
		_, err = DecodeSet(data)
	case *schema.MapSchema:
		_, err = DecodeMap(data)
	}
	return err
}
