package bitset

import (
	"encoding/binary"
	"io"
	"iter"
	"math/bits"
	"sync/atomic"
)

const (
	// segmentBits determines the size of each segment.
	// 14 bits = 16384 bits per segment.
	segmentBits = 14
	segmentSize = 1 << segmentBits
	segmentMask = segmentSize - 1

	// wordsPerSegment is the number of uint64 words in a segment.
	wordsPerSegment = segmentSize / 64
)

// segment is a fixed-size block of the bitset.
type segment [wordsPerSegment]atomic.Uint64

// BitSet is a growable, segmented bitset addressed by ordinal.
//
// Any number of goroutines may read while a single writer mutates. Growth
// installs a new segment slice with a compare-and-swap, so a reader sees
// either the old or the new slice and never a partially built one.
type BitSet struct {
	segments atomic.Pointer[[]*segment]
}

// New creates an empty BitSet.
func New() *BitSet {
	return &BitSet{}
}

// NewWithCapacity creates a BitSet with segments preallocated for n bits.
func NewWithCapacity(n int) *BitSet {
	b := &BitSet{}
	if n > 0 {
		b.grow((n - 1) >> segmentBits)
	}
	return b
}

func (b *BitSet) load() []*segment {
	if b == nil {
		return nil
	}
	p := b.segments.Load()
	if p == nil {
		return nil
	}
	return *p
}

// grow ensures a segment exists at index idx.
func (b *BitSet) grow(idx int) []*segment {
	for {
		old := b.segments.Load()
		var cur []*segment
		if old != nil {
			cur = *old
		}
		if idx < len(cur) {
			return cur
		}

		newLen := max(idx+1, 2*len(cur))
		next := make([]*segment, newLen)
		copy(next, cur)
		for i := len(cur); i < newLen; i++ {
			next[i] = new(segment)
		}

		if b.segments.CompareAndSwap(old, &next) {
			return next
		}
	}
}

func locate(i int) (seg, word int, mask uint64) {
	seg = i >> segmentBits
	off := i & segmentMask
	return seg, off >> 6, uint64(1) << (off & 63)
}

// Set sets bit i, growing the set as needed.
func (b *BitSet) Set(i int) {
	if i < 0 {
		return
	}
	s, w, m := locate(i)
	segs := b.load()
	if s >= len(segs) {
		segs = b.grow(s)
	}
	segs[s][w].Or(m)
}

// Clear clears bit i.
func (b *BitSet) Clear(i int) {
	if i < 0 {
		return
	}
	s, w, m := locate(i)
	segs := b.load()
	if s >= len(segs) {
		return
	}
	segs[s][w].And(^m)
}

// Get reports whether bit i is set.
func (b *BitSet) Get(i int) bool {
	if i < 0 {
		return false
	}
	s, w, m := locate(i)
	segs := b.load()
	if s >= len(segs) {
		return false
	}
	return segs[s][w].Load()&m != 0
}

// Cardinality returns the number of set bits.
func (b *BitSet) Cardinality() int {
	n := 0
	for _, seg := range b.load() {
		for w := range seg {
			if v := seg[w].Load(); v != 0 {
				n += bits.OnesCount64(v)
			}
		}
	}
	return n
}

// NextSetBit returns the index of the first set bit at or after from, or
// -1 if there is none.
func (b *BitSet) NextSetBit(from int) int {
	if from < 0 {
		from = 0
	}
	segs := b.load()
	s, w, _ := locate(from)
	if s >= len(segs) {
		return -1
	}

	v := segs[s][w].Load() & (^uint64(0) << (from & 63))
	for {
		if v != 0 {
			return s<<segmentBits + w<<6 + bits.TrailingZeros64(v)
		}
		w++
		if w == wordsPerSegment {
			w = 0
			s++
			if s >= len(segs) {
				return -1
			}
		}
		v = segs[s][w].Load()
	}
}

// MaxSetBit returns the highest set bit, or -1 if the set is empty.
func (b *BitSet) MaxSetBit() int {
	segs := b.load()
	for s := len(segs) - 1; s >= 0; s-- {
		for w := wordsPerSegment - 1; w >= 0; w-- {
			if v := segs[s][w].Load(); v != 0 {
				return s<<segmentBits + w<<6 + 63 - bits.LeadingZeros64(v)
			}
		}
	}
	return -1
}

// All iterates over set bits in ascending order.
func (b *BitSet) All() iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := b.NextSetBit(0); i >= 0; i = b.NextSetBit(i + 1) {
			if !yield(i) {
				return
			}
		}
	}
}

// Clone returns an independent copy.
func (b *BitSet) Clone() *BitSet {
	c := New()
	segs := b.load()
	if len(segs) == 0 {
		return c
	}
	next := make([]*segment, len(segs))
	for i, seg := range segs {
		ns := new(segment)
		for w := range seg {
			ns[w].Store(seg[w].Load())
		}
		next[i] = ns
	}
	c.segments.Store(&next)
	return c
}

// Or sets every bit that is set in other.
func (b *BitSet) Or(other *BitSet) {
	src := other.load()
	if len(src) == 0 {
		return
	}
	dst := b.load()
	if len(dst) < len(src) {
		dst = b.grow(len(src) - 1)
	}
	for s, seg := range src {
		for w := range seg {
			if v := seg[w].Load(); v != 0 {
				dst[s][w].Or(v)
			}
		}
	}
}

// OrAll returns a new set containing every bit set in any of sets.
func OrAll(sets ...*BitSet) *BitSet {
	out := New()
	for _, s := range sets {
		out.Or(s)
	}
	return out
}

// AndNot returns a new set with the bits of b that are not set in other.
func (b *BitSet) AndNot(other *BitSet) *BitSet {
	out := b.Clone()
	dst := out.load()
	src := other.load()
	for s := 0; s < len(dst) && s < len(src); s++ {
		for w := range src[s] {
			if v := src[s][w].Load(); v != 0 {
				dst[s][w].And(^v)
			}
		}
	}
	return out
}

// ClearAll clears every bit. Segments are kept.
func (b *BitSet) ClearAll() {
	for _, seg := range b.load() {
		for w := range seg {
			seg[w].Store(0)
		}
	}
}

// Equal reports whether both sets contain exactly the same bits. The
// number of allocated segments does not matter.
func (b *BitSet) Equal(other *BitSet) bool {
	x, y := b.load(), other.load()
	if len(x) < len(y) {
		x, y = y, x
	}
	for s := range x {
		for w := range x[s] {
			var v uint64
			if s < len(y) {
				v = y[s][w].Load()
			}
			if x[s][w].Load() != v {
				return false
			}
		}
	}
	return true
}

// Len returns the number of bits the allocated segments can hold.
func (b *BitSet) Len() int {
	return len(b.load()) * segmentSize
}

// WriteTo writes the set as a word count followed by little-endian words,
// trimmed after the highest set bit.
func (b *BitSet) WriteTo(w io.Writer) (int64, error) {
	maxBit := b.MaxSetBit()
	numWords := (maxBit + 64) / 64

	buf := make([]byte, 8+8*numWords)
	binary.LittleEndian.PutUint64(buf, uint64(numWords))
	segs := b.load()
	for i := 0; i < numWords; i++ {
		s, word := i/wordsPerSegment, i%wordsPerSegment
		binary.LittleEndian.PutUint64(buf[8+8*i:], segs[s][word].Load())
	}
	n, err := w.Write(buf)
	return int64(n), err
}

// ReadFrom replaces the contents of the set with data produced by WriteTo.
func (b *BitSet) ReadFrom(r io.Reader) (int64, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, err
	}
	numWords := int(binary.LittleEndian.Uint64(hdr[:]))
	buf := make([]byte, 8*numWords)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		return int64(8 + n), err
	}

	b.ClearAll()
	if numWords > 0 {
		segs := b.grow((numWords - 1) / wordsPerSegment)
		for i := 0; i < numWords; i++ {
			segs[i/wordsPerSegment][i%wordsPerSegment].Store(binary.LittleEndian.Uint64(buf[8*i:]))
		}
	}
	return int64(8 + n), nil
}
