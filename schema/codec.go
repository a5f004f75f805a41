package schema

import (
	"fmt"

	"github.com/hupe1980/stratum/internal/varint"
)

// Append serializes s to dst.
//
// Layout: type id byte, name, then per variant:
//
//	OBJECT  [key paths] field count, (name, type byte, [ref type])...
//	LIST    element type
//	SET     element type [key paths]
//	MAP     key type, value type [key paths]
//
// Key paths are written only for the keyed type ids.
func Append(dst []byte, s Schema) []byte {
	dst = append(dst, s.TypeID())
	dst = varint.AppendString(dst, s.Name())

	switch t := s.(type) {
	case *ObjectSchema:
		if t.primaryKey != nil {
			dst = appendPaths(dst, t.primaryKey.FieldPaths)
		}
		dst = varint.AppendVInt(dst, uint32(len(t.fields)))
		for _, f := range t.fields {
			dst = varint.AppendString(dst, f.Name)
			dst = append(dst, byte(f.Type))
			if f.Type == FieldReference {
				dst = varint.AppendString(dst, f.RefType)
			}
		}
	case *ListSchema:
		dst = varint.AppendString(dst, t.elementType)
	case *SetSchema:
		dst = varint.AppendString(dst, t.elementType)
		if t.hashKey != nil {
			dst = appendPaths(dst, t.hashKey.FieldPaths)
		}
	case *MapSchema:
		dst = varint.AppendString(dst, t.keyType)
		dst = varint.AppendString(dst, t.valueType)
		if t.hashKey != nil {
			dst = appendPaths(dst, t.hashKey.FieldPaths)
		}
	}
	return dst
}

func appendPaths(dst []byte, paths []string) []byte {
	dst = varint.AppendVInt(dst, uint32(len(paths)))
	for _, p := range paths {
		dst = varint.AppendString(dst, p)
	}
	return dst
}

func readPaths(d *varint.Decoder) []string {
	n := d.VInt()
	if d.Err() != nil {
		return nil
	}
	if int(n) > d.Remaining() {
		d.Raw(int(n))
		return nil
	}
	paths := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		paths = append(paths, d.String())
	}
	return paths
}

// Read decodes a schema written by Append.
func Read(d *varint.Decoder) (Schema, error) {
	id := d.Byte()
	name := d.String()
	if err := d.Err(); err != nil {
		return nil, err
	}

	var s Schema
	switch id {
	case TypeIDObject, TypeIDObjectWithPKey:
		var pk []string
		if id == TypeIDObjectWithPKey {
			pk = readPaths(d)
		}
		n := d.VInt()
		if d.Err() == nil && int(n) > d.Remaining() {
			return nil, fmt.Errorf("%w: %s: field count %d exceeds input", ErrInvalidSchema, name, n)
		}
		fields := make([]Field, 0, n)
		for i := uint32(0); i < n && d.Err() == nil; i++ {
			f := Field{Name: d.String(), Type: FieldType(d.Byte())}
			if f.Type == FieldReference {
				f.RefType = d.String()
			}
			fields = append(fields, f)
		}
		o := NewObjectSchema(name, fields...)
		if id == TypeIDObjectWithPKey {
			o.WithPrimaryKey(pk...)
		}
		s = o
	case TypeIDList:
		s = NewListSchema(name, d.String())
	case TypeIDSet, TypeIDSetWithKey:
		st := NewSetSchema(name, d.String())
		if id == TypeIDSetWithKey {
			st.hashKey = &PrimaryKey{Type: st.elementType, FieldPaths: readPaths(d)}
		}
		s = st
	case TypeIDMap, TypeIDMapWithKey:
		m := NewMapSchema(name, d.String(), d.String())
		if id == TypeIDMapWithKey {
			m.hashKey = &PrimaryKey{Type: m.keyType, FieldPaths: readPaths(d)}
		}
		s = m
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTypeID, id)
	}

	if err := d.Err(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
