package write

import (
	"bytes"
	"math/bits"
	"sync"

	"github.com/hupe1980/stratum/internal/bitset"
	"github.com/hupe1980/stratum/internal/hash"
	"github.com/hupe1980/stratum/internal/ordinal"
	"github.com/hupe1980/stratum/schema"
)

// TypeState holds the records of one type across the previous and the
// current cycle.
type TypeState struct {
	schema schema.Schema

	mu      sync.Mutex
	records [][]byte
	index   map[uint64][]int
	alloc   *ordinal.Allocator

	// checkpoint is the allocator state at the last PrepareForNextCycle.
	checkpoint ordinal.Checkpoint

	previous *bitset.BitSet
	current  *bitset.BitSet

	numShards int
}

func newTypeState(s schema.Schema) *TypeState {
	alloc := ordinal.New()
	return &TypeState{
		schema:     s,
		index:      make(map[uint64][]int),
		alloc:      alloc,
		checkpoint: alloc.Checkpoint(),
		previous:   bitset.New(),
		current:    bitset.New(),
	}
}

// Schema returns the registered schema.
func (t *TypeState) Schema() schema.Schema { return t.schema }

// Populated returns a copy of the ordinals added in the current cycle.
func (t *TypeState) Populated() *bitset.BitSet { return t.current.Clone() }

// Previous returns a copy of the ordinals populated in the previous cycle.
func (t *TypeState) Previous() *bitset.BitSet { return t.previous.Clone() }

// NumShards returns the shard count used by the last written blob.
func (t *TypeState) NumShards() int { return t.numShards }

// MaxOrdinal returns the largest ordinal held by either cycle, or -1.
func (t *TypeState) MaxOrdinal() int {
	return max(t.previous.MaxSetBit(), t.current.MaxSetBit())
}

// Record returns the bytes stored at ordinal o.
func (t *TypeState) Record(o int) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if o < 0 || o >= len(t.records) || t.records[o] == nil {
		return nil, false
	}
	return t.records[o], true
}

// add assigns an ordinal to data. Records equal to one already held keep
// that record's ordinal.
func (t *TypeState) add(data []byte) int {
	h := hash.Content(data)

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, o := range t.index[h] {
		if bytes.Equal(t.records[o], data) {
			t.current.Set(o)
			return o
		}
	}

	o := t.alloc.Allocate()
	if o >= len(t.records) {
		grown := make([][]byte, max(o+1, 2*len(t.records)))
		copy(grown, t.records)
		t.records = grown
	}
	t.records[o] = data
	t.index[h] = append(t.index[h], o)
	t.current.Set(o)
	return o
}

// put stores data at a fixed ordinal. Used when restoring from a read state.
func (t *TypeState) put(o int, data []byte) {
	if o >= len(t.records) {
		grown := make([][]byte, o+1)
		copy(grown, t.records)
		t.records = grown
	}
	t.records[o] = data
	h := hash.Content(data)
	t.index[h] = append(t.index[h], o)
	t.current.Set(o)
}

func (t *TypeState) forget(o int) {
	data := t.records[o]
	if data == nil {
		return
	}
	h := hash.Content(data)
	ords := t.index[h]
	for i, x := range ords {
		if x == o {
			ords = append(ords[:i], ords[i+1:]...)
			break
		}
	}
	if len(ords) == 0 {
		delete(t.index, h)
	} else {
		t.index[h] = ords
	}
	t.records[o] = nil
}

// prepareForNextCycle drops records that left the population in the
// finished cycle and makes their ordinals reusable from now on.
func (t *TypeState) prepareForNextCycle() {
	t.mu.Lock()
	defer t.mu.Unlock()

	dropped := t.previous.AndNot(t.current)
	for o := range dropped.All() {
		t.forget(o)
		t.alloc.Retire(o)
	}
	t.alloc.Advance()

	t.previous = t.current
	t.current = bitset.New()
	t.checkpoint = t.alloc.Checkpoint()
}

// resetToLastPrepare discards everything added since the last
// prepareForNextCycle.
func (t *TypeState) resetToLastPrepare() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for o := range t.current.All() {
		if !t.previous.Get(o) {
			t.forget(o)
		}
	}
	t.current = bitset.New()
	t.alloc.Restore(t.checkpoint)
}

func (t *TypeState) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = nil
	t.index = make(map[uint64][]int)
	t.alloc.Reset()
	t.checkpoint = t.alloc.Checkpoint()
	t.previous = bitset.New()
	t.current = bitset.New()
	t.numShards = 0
}

// rebuildAllocator makes every ordinal below the highest populated one
// that is not populated available for reuse.
func (t *TypeState) rebuildAllocator() {
	t.alloc.Reset()
	hi := t.current.MaxSetBit()
	for o := 0; o <= hi; o++ {
		t.alloc.Allocate()
	}
	for o := 0; o <= hi; o++ {
		if !t.current.Get(o) {
			t.alloc.Retire(o)
		}
	}
	t.alloc.Advance()
	t.checkpoint = t.alloc.Checkpoint()
}

func (t *TypeState) changed() bool {
	return !t.previous.Equal(t.current)
}

// populatedSize returns the number of record bytes in the current cycle.
func (t *TypeState) populatedSize() int64 {
	var n int64
	for o := range t.current.All() {
		n += int64(len(t.records[o]))
	}
	return n
}

// computeNumShards picks the smallest power of two that keeps every shard
// under target bytes. The result never drops below the previous count.
func (t *TypeState) computeNumShards(target int64) int {
	n := 1
	if target > 0 {
		size := t.populatedSize()
		if need := (size + target - 1) / target; need > 1 {
			n = 1 << bits.Len64(uint64(need-1))
		}
	}
	if n < t.numShards {
		n = t.numShards
	}
	t.numShards = n
	return n
}
