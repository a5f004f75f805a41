package diff

import (
	"iter"
	"slices"
)

// EqualOrdinalMap records, for each ordinal of one dataset, the ordinals of
// another dataset holding equal records. The first ordinal put for a
// source ordinal is its identity.
type EqualOrdinalMap struct {
	from       map[int][]int
	toIdentity map[int]int
}

// NewEqualOrdinalMap creates an empty map. sizeHint preallocates space for
// that many source ordinals.
func NewEqualOrdinalMap(sizeHint int) *EqualOrdinalMap {
	return &EqualOrdinalMap{from: make(map[int][]int, sizeHint)}
}

// Put records that to are equal to from. Repeated calls append.
func (m *EqualOrdinalMap) Put(from int, to ...int) {
	if len(to) == 0 {
		return
	}
	m.from[from] = append(m.from[from], to...)
	m.toIdentity = nil
}

// EqualOrdinals iterates the ordinals equal to from in insertion order.
func (m *EqualOrdinalMap) EqualOrdinals(from int) iter.Seq[int] {
	return slices.Values(m.from[from])
}

// IdentityFromOrdinal returns the identity of from, or -1 if nothing is
// equal to it.
func (m *EqualOrdinalMap) IdentityFromOrdinal(from int) int {
	if to, ok := m.from[from]; ok {
		return to[0]
	}
	return -1
}

// BuildToOrdinalIdentityMapping prepares IdentityToOrdinal. It must be
// called again after further Puts.
func (m *EqualOrdinalMap) BuildToOrdinalIdentityMapping() {
	m.toIdentity = make(map[int]int, len(m.from))
	for _, to := range m.from {
		for _, o := range to {
			m.toIdentity[o] = to[0]
		}
	}
}

// IdentityToOrdinal returns the identity of a target ordinal, or -1 if it
// is unknown or the mapping has not been built.
func (m *EqualOrdinalMap) IdentityToOrdinal(to int) int {
	if id, ok := m.toIdentity[to]; ok {
		return id
	}
	return -1
}

// Len returns the number of source ordinals with at least one match.
func (m *EqualOrdinalMap) Len() int { return len(m.from) }
