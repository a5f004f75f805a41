package record

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/hupe1980/stratum/internal/varint"
	"github.com/hupe1980/stratum/schema"
)

// List builds a list record of element ordinals.
type List struct {
	schema   *schema.ListSchema
	elements []int
}

// NewList creates an empty list record.
func NewList(s *schema.ListSchema) *List {
	return &List{schema: s}
}

// Schema implements Record.
func (l *List) Schema() schema.Schema { return l.schema }

// Add appends element ordinals.
func (l *List) Add(ordinals ...int) *List {
	l.elements = append(l.elements, ordinals...)
	return l
}

// Encode implements Record. Layout: count, then each ordinal.
func (l *List) Encode(dst []byte) ([]byte, error) {
	if err := checkOrdinals(l.schema.Name(), l.elements); err != nil {
		return dst, err
	}
	dst = varint.AppendVInt(dst, uint32(len(l.elements)))
	for _, o := range l.elements {
		dst = varint.AppendVInt(dst, uint32(o))
	}
	return dst, nil
}

// Set builds a set record of element ordinals.
type Set struct {
	schema   *schema.SetSchema
	elements []int
}

// NewSet creates an empty set record.
func NewSet(s *schema.SetSchema) *Set {
	return &Set{schema: s}
}

// Schema implements Record.
func (s *Set) Schema() schema.Schema { return s.schema }

// Add adds element ordinals. Duplicates collapse.
func (s *Set) Add(ordinals ...int) *Set {
	s.elements = append(s.elements, ordinals...)
	return s
}

// Encode implements Record. Elements are sorted and gap encoded, so
// insertion order does not affect the bytes.
func (s *Set) Encode(dst []byte) ([]byte, error) {
	if err := checkOrdinals(s.schema.Name(), s.elements); err != nil {
		return dst, err
	}
	elems := slices.Clone(s.elements)
	slices.Sort(elems)
	elems = slices.Compact(elems)

	dst = varint.AppendVInt(dst, uint32(len(elems)))
	prev := 0
	for _, o := range elems {
		dst = varint.AppendVInt(dst, uint32(o-prev))
		prev = o
	}
	return dst, nil
}

// Map builds a map record from key ordinals to value ordinals.
type Map struct {
	schema  *schema.MapSchema
	entries map[int]int
}

// NewMap creates an empty map record.
func NewMap(s *schema.MapSchema) *Map {
	return &Map{schema: s, entries: make(map[int]int)}
}

// Schema implements Record.
func (m *Map) Schema() schema.Schema { return m.schema }

// Put sets the value for key. A later Put for the same key wins.
func (m *Map) Put(key, value int) *Map {
	m.entries[key] = value
	return m
}

// Encode implements Record. Entries are sorted by key; keys are gap
// encoded.
func (m *Map) Encode(dst []byte) ([]byte, error) {
	entries := make([]Entry, 0, len(m.entries))
	for k, v := range m.entries {
		if k < 0 || v < 0 {
			return dst, fmt.Errorf("%w: %s entry %d=%d", ErrInvalidOrdinal, m.schema.Name(), k, v)
		}
		entries = append(entries, Entry{Key: k, Value: v})
	}
	return appendEntries(dst, entries), nil
}

func appendEntries(dst []byte, entries []Entry) []byte {
	slices.SortFunc(entries, func(a, b Entry) int { return cmp.Compare(a.Key, b.Key) })
	dst = varint.AppendVInt(dst, uint32(len(entries)))
	prev := 0
	for _, e := range entries {
		dst = varint.AppendVInt(dst, uint32(e.Key-prev))
		dst = varint.AppendVInt(dst, uint32(e.Value))
		prev = e.Key
	}
	return dst
}

func checkOrdinals(typeName string, ordinals []int) error {
	for _, o := range ordinals {
		if o < 0 {
			return fmt.Errorf("%w: %s element %d", ErrInvalidOrdinal, typeName, o)
		}
	}
	return nil
}
