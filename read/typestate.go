package read

import (
	"fmt"
	"iter"

	"github.com/hupe1980/stratum/internal/bitset"
	"github.com/hupe1980/stratum/record"
	"github.com/hupe1980/stratum/schema"
)

// TypeState is an immutable view of one type at one version. Transitions
// build new TypeStates, so a reader holding one keeps a consistent view.
type TypeState struct {
	schema    schema.Schema
	wire      schema.Schema
	numShards int

	records   [][]byte
	populated *bitset.BitSet
	ghosts    *bitset.BitSet
}

func newTypeState(wire, s schema.Schema) *TypeState {
	return &TypeState{
		schema:    s,
		wire:      wire,
		numShards: 1,
		populated: bitset.New(),
		ghosts:    bitset.New(),
	}
}

// Schema returns the schema records are exposed with. With a field filter
// this is a projection of WireSchema.
func (t *TypeState) Schema() schema.Schema { return t.schema }

// WireSchema returns the schema as written by the producer.
func (t *TypeState) WireSchema() schema.Schema { return t.wire }

// NumShards returns the shard count of the last blob that carried the type.
func (t *TypeState) NumShards() int { return t.numShards }

// Record returns the bytes at ordinal o. Ghost records stay readable until
// the next transition.
func (t *TypeState) Record(o int) ([]byte, bool) {
	if o < 0 || o >= len(t.records) || t.records[o] == nil {
		return nil, false
	}
	return t.records[o], true
}

// IsPopulated reports whether o holds a record of the current version.
func (t *TypeState) IsPopulated(o int) bool { return t.populated.Get(o) }

// IsGhost reports whether o was removed by the last transition.
func (t *TypeState) IsGhost(o int) bool { return t.ghosts.Get(o) }

// Ordinals iterates the populated ordinals in ascending order.
func (t *TypeState) Ordinals() iter.Seq[int] { return t.populated.All() }

// Ghosts iterates the ghost ordinals in ascending order.
func (t *TypeState) Ghosts() iter.Seq[int] { return t.ghosts.All() }

// Cardinality returns the number of populated ordinals.
func (t *TypeState) Cardinality() int { return t.populated.Cardinality() }

// MaxOrdinal returns the largest populated or ghost ordinal, or -1.
func (t *TypeState) MaxOrdinal() int {
	return max(t.populated.MaxSetBit(), t.ghosts.MaxSetBit())
}

func (t *TypeState) lookup(o int, want schema.Kind) ([]byte, error) {
	if k := t.schema.Kind(); k != want {
		return nil, fmt.Errorf("%s is a %s, not a %s", t.schema.Name(), k, want)
	}
	data, ok := t.Record(o)
	if !ok {
		return nil, fmt.Errorf("%w: %s[%d]", ErrNoRecord, t.schema.Name(), o)
	}
	return data, nil
}

// Object returns a view of the object at o.
func (t *TypeState) Object(o int) (record.ObjectView, error) {
	data, err := t.lookup(o, schema.KindObject)
	if err != nil {
		return record.ObjectView{}, err
	}
	return record.DecodeObject(t.schema.(*schema.ObjectSchema), data)
}

// List returns the element ordinals of the list at o.
func (t *TypeState) List(o int) ([]int, error) {
	data, err := t.lookup(o, schema.KindList)
	if err != nil {
		return nil, err
	}
	return record.DecodeList(data)
}

// Set returns the element ordinals of the set at o.
func (t *TypeState) Set(o int) ([]int, error) {
	data, err := t.lookup(o, schema.KindSet)
	if err != nil {
		return nil, err
	}
	return record.DecodeSet(data)
}

// Map returns the entries of the map at o.
func (t *TypeState) Map(o int) ([]record.Entry, error) {
	data, err := t.lookup(o, schema.KindMap)
	if err != nil {
		return nil, err
	}
	return record.DecodeMap(data)
}

// advance frees the ghosts of the previous transition. The result shares
// storage with t when there is nothing to free.
func (t *TypeState) advance() *TypeState {
	if t.ghosts.Cardinality() == 0 {
		return t
	}
	next := *t
	next.records = append([][]byte(nil), t.records...)
	for o := range t.ghosts.All() {
		next.records[o] = nil
	}
	next.ghosts = bitset.New()
	return &next
}

// apply returns a new state with the removals and additions of dt applied.
// t must already be advanced.
func (t *TypeState) apply(dt *decodedType) (*TypeState, error) {
	next := &TypeState{
		schema:    t.schema,
		wire:      t.wire,
		numShards: dt.numShards,
		populated: t.populated.Clone(),
		ghosts:    bitset.New(),
	}

	hi := len(t.records)
	for _, a := range dt.added {
		hi = max(hi, a.ordinal+1)
	}
	next.records = make([][]byte, hi)
	copy(next.records, t.records)

	for _, o := range dt.removed {
		if !next.populated.Get(o) {
			return nil, corrupt(t.wire.Name(), "removed ordinal %d is not populated", o)
		}
		next.populated.Clear(o)
		next.ghosts.Set(o)
	}
	for _, a := range dt.added {
		if next.populated.Get(a.ordinal) {
			return nil, corrupt(t.wire.Name(), "added ordinal %d is already populated", a.ordinal)
		}
		next.populated.Set(a.ordinal)
		next.ghosts.Clear(a.ordinal)
		next.records[a.ordinal] = a.data
	}
	return next, nil
}
