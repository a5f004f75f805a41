package record

import (
	"slices"

	"github.com/hupe1980/stratum/internal/varint"
	"github.com/hupe1980/stratum/schema"
)

// MapFunc translates an ordinal of refType. It returns false when the
// ordinal has no counterpart.
type MapFunc func(refType string, ordinal int) (int, bool)

// RemapReferences rewrites every reference in data through fn and returns
// the canonical encoding of the result. Inline object fields are copied
// unchanged. It fails with ErrUnmapped if fn rejects any reference.
func RemapReferences(s schema.Schema, data []byte, fn MapFunc) ([]byte, error) {
	switch t := s.(type) {
	case *schema.ObjectSchema:
		spans, err := fieldSpans(t, data)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, len(data))
		for i, sp := range spans {
			f := t.Field(i)
			b := data[sp.start:sp.end]
			if f.Type != schema.FieldReference || isNullEncoding(f.Type, b) {
				out = append(out, b...)
				continue
			}
			o, ok := fn(f.RefType, int(varint.NewDecoder(b).VInt()))
			if !ok {
				return nil, ErrUnmapped
			}
			out = varint.AppendVInt(out, uint32(o))
		}
		return out, nil
	case *schema.ListSchema:
		elems, err := DecodeList(data)
		if err != nil {
			return nil, err
		}
		if err := remapAll(t.ElementType(), elems, fn); err != nil {
			return nil, err
		}
		l := &List{schema: t, elements: elems}
		return l.Encode(nil)
	case *schema.SetSchema:
		elems, err := DecodeSet(data)
		if err != nil {
			return nil, err
		}
		if err := remapAll(t.ElementType(), elems, fn); err != nil {
			return nil, err
		}
		st := &Set{schema: t, elements: elems}
		return st.Encode(nil)
	case *schema.MapSchema:
		entries, err := DecodeMap(data)
		if err != nil {
			return nil, err
		}
		for i, e := range entries {
			k, ok := fn(t.KeyType(), e.Key)
			if !ok {
				return nil, ErrUnmapped
			}
			v, ok := fn(t.ValueType(), e.Value)
			if !ok {
				return nil, ErrUnmapped
			}
			entries[i] = Entry{Key: k, Value: v}
		}
		return appendEntries(nil, entries), nil
	}
	return nil, malformed(s.Name(), nil)
}

func remapAll(refType string, ordinals []int, fn MapFunc) error {
	for i, o := range ordinals {
		m, ok := fn(refType, o)
		if !ok {
			return ErrUnmapped
		}
		ordinals[i] = m
	}
	return nil
}

// ProjectObject re-encodes data, written with from, so that it matches to,
// a projection of from produced by ObjectSchema.Project.
func ProjectObject(from, to *schema.ObjectSchema, data []byte) ([]byte, error) {
	spans, err := fieldSpans(from, data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < to.NumFields(); i++ {
		j := from.FieldIndex(to.Field(i).Name)
		if j < 0 {
			return nil, malformed(to.Name(), nil)
		}
		out = append(out, data[spans[j].start:spans[j].end]...)
	}
	return out, nil
}

// References returns every non-null reference in data as (refType,
// ordinal) pairs, in encoding order.
func References(s schema.Schema, data []byte) ([]Reference, error) {
	var refs []Reference
	_, err := RemapReferences(s, data, func(refType string, o int) (int, bool) {
		refs = append(refs, Reference{Type: refType, Ordinal: o})
		return o, true
	})
	if err != nil {
		return nil, err
	}
	return slices.Clip(refs), nil
}

// Reference identifies a referenced record.
type Reference struct {
	Type    string
	Ordinal int
}
