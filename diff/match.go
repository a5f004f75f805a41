package diff

import (
	"bytes"
	"log/slog"
	"maps"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/stratum/internal/hash"
	"github.com/hupe1980/stratum/read"
	"github.com/hupe1980/stratum/record"
	"github.com/hupe1980/stratum/schema"
)

// Mapping pairs equal records of two loaded datasets, type by type.
type Mapping struct {
	maps          map[string]*EqualOrdinalMap
	unmatchedFrom map[string]*roaring.Bitmap
	unmatchedTo   map[string]*roaring.Bitmap
}

// TypeNames returns the matched types in lexical order.
func (m *Mapping) TypeNames() []string {
	return slices.Sorted(maps.Keys(m.maps))
}

// EqualOrdinalMap returns the map built for a type.
func (m *Mapping) EqualOrdinalMap(typeName string) (*EqualOrdinalMap, bool) {
	eq, ok := m.maps[typeName]
	return eq, ok
}

// Unmatched returns the populated ordinals of each side that have no equal
// record on the other side.
func (m *Mapping) Unmatched(typeName string) (from, to *roaring.Bitmap) {
	from, to = m.unmatchedFrom[typeName], m.unmatchedTo[typeName]
	if from == nil {
		from = roaring.New()
	}
	if to == nil {
		to = roaring.New()
	}
	return from, to
}

// MatchOption configures Match.
type MatchOption func(*matcher)

// WithLogger sets the logger used by Match.
func WithLogger(l *slog.Logger) MatchOption {
	return func(m *matcher) {
		if l != nil {
			m.logger = l
		}
	}
}

type matcher struct {
	logger *slog.Logger
}

// Match compares two loaded datasets. Types are processed in dependency
// order; a reference field is equal when it points at records that were
// matched themselves. Types that reference themselves, directly or through
// a cycle of other types, are matched together by refinement: two records
// are equal when their contents are equal and their references lead to
// equal records. Types present on one side only, or with differing schemas,
// are not matched. References to types loaded on neither side compare by
// raw ordinal.
func Match(from, to *read.Engine, opts ...MatchOption) (*Mapping, error) {
	mt := &matcher{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(mt)
	}
	if !from.Initialized() || !to.Initialized() {
		return nil, read.ErrNotInitialized
	}

	m := &Mapping{
		maps:          make(map[string]*EqualOrdinalMap),
		unmatchedFrom: make(map[string]*roaring.Bitmap),
		unmatchedTo:   make(map[string]*roaring.Bitmap),
	}

	var common []schema.Schema
	for _, s := range from.Schemas() {
		tts, ok := to.TypeState(s.Name())
		if !ok || !tts.Schema().Equal(s) {
			mt.logger.Debug("type not matched", "type", s.Name())
			continue
		}
		common = append(common, s)
	}

	for _, group := range components(common) {
		if len(group) == 1 && !slices.Contains(group[0].Dependencies(), group[0].Name()) {
			s := group[0]
			fts, _ := from.TypeState(s.Name())
			tts, _ := to.TypeState(s.Name())
			m.matchType(s, fts, tts, from, to)
			continue
		}
		mt.logger.Debug("matching cyclic types", "types", len(group))
		m.matchCyclic(group, from, to)
	}
	return m, nil
}

// components returns the strongly connected components of the reference
// graph, each after every component it references.
func components(schemas []schema.Schema) [][]schema.Schema {
	byName := schema.ByName(schemas)
	index := make(map[string]int)
	low := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var out [][]schema.Schema

	var visit func(name string)
	visit = func(name string) {
		index[name] = len(index)
		low[name] = index[name]
		stack = append(stack, name)
		onStack[name] = true
		for _, dep := range byName[name].Dependencies() {
			if _, ok := byName[dep]; !ok {
				continue
			}
			if _, seen := index[dep]; !seen {
				visit(dep)
				low[name] = min(low[name], low[dep])
			} else if onStack[dep] {
				low[name] = min(low[name], index[dep])
			}
		}
		if low[name] != index[name] {
			return
		}
		var group []schema.Schema
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			group = append(group, byName[top])
			if top == name {
				break
			}
		}
		out = append(out, group)
	}
	for _, s := range schemas {
		if _, seen := index[s.Name()]; !seen {
			visit(s.Name())
		}
	}
	return out
}

type candidate struct {
	ordinal int
	data    []byte
}

// resolver translates references to already matched types into identity
// ordinals. toSide selects which side's ordinals are translated.
func (m *Mapping) resolver(from, to *read.Engine, toSide bool) record.MapFunc {
	return func(refType string, o int) (int, bool) {
		if dep, ok := m.maps[refType]; ok {
			id := dep.IdentityFromOrdinal(o)
			if toSide {
				id = dep.IdentityToOrdinal(o)
			}
			return id, id >= 0
		}
		// A type loaded on neither side compares by raw ordinal.
		_, inFrom := from.TypeState(refType)
		_, inTo := to.TypeState(refType)
		return o, !inFrom && !inTo
	}
}

func (m *Mapping) matchType(s schema.Schema, fts, tts *read.TypeState, from, to *read.Engine) {
	toSide := m.resolver(from, to, true)
	fromSide := m.resolver(from, to, false)

	index := make(map[uint64][]candidate)
	matchedTo := roaring.New()
	for o := range tts.Ordinals() {
		data, _ := tts.Record(o)
		canon, err := record.RemapReferences(s, data, toSide)
		if err != nil {
			continue
		}
		h := hash.Content(canon)
		index[h] = append(index[h], candidate{ordinal: o, data: canon})
	}

	eq := NewEqualOrdinalMap(fts.Cardinality())
	unmatchedFrom := roaring.New()
	for o := range fts.Ordinals() {
		data, _ := fts.Record(o)
		canon, err := record.RemapReferences(s, data, fromSide)
		if err != nil {
			unmatchedFrom.Add(uint32(o))
			continue
		}
		var equal []int
		for _, c := range index[hash.Content(canon)] {
			if bytes.Equal(c.data, canon) {
				equal = append(equal, c.ordinal)
				matchedTo.Add(uint32(c.ordinal))
			}
		}
		if len(equal) == 0 {
			unmatchedFrom.Add(uint32(o))
			continue
		}
		eq.Put(o, equal...)
	}
	m.finish(s.Name(), tts, eq, unmatchedFrom, matchedTo)
}

func (m *Mapping) finish(name string, tts *read.TypeState, eq *EqualOrdinalMap, unmatchedFrom, matchedTo *roaring.Bitmap) {
	eq.BuildToOrdinalIdentityMapping()
	unmatchedTo := roaring.New()
	for o := range tts.Ordinals() {
		if !matchedTo.Contains(uint32(o)) {
			unmatchedTo.Add(uint32(o))
		}
	}
	m.maps[name] = eq
	m.unmatchedFrom[name] = unmatchedFrom
	m.unmatchedTo[name] = unmatchedTo
}

// classes assigns every record of a cyclic group, per type and ordinal, an
// equivalence class shared by both sides. Records missing from the map
// have a reference that cannot be resolved.
type classes map[string]map[int]int

func (c classes) size() (members int) {
	for _, byOrdinal := range c {
		members += len(byOrdinal)
	}
	return members
}

// matchCyclic refines classes until a round changes nothing. Every record
// starts in one class per type. Each round splits classes by content, with
// references into the group replaced by the class of their target, so the
// result pairs records whose reachable graphs are equal.
func (m *Mapping) matchCyclic(group []schema.Schema, from, to *read.Engine) {
	engines := [2]*read.Engine{from, to}
	outer := [2]record.MapFunc{m.resolver(from, to, false), m.resolver(from, to, true)}
	var current [2]classes
	for side, e := range engines {
		current[side] = make(classes)
		for _, s := range group {
			ts, _ := e.TypeState(s.Name())
			byOrdinal := make(map[int]int)
			for o := range ts.Ordinals() {
				byOrdinal[o] = 0
			}
			current[side][s.Name()] = byOrdinal
		}
	}

	prevMembers, prevClasses := -1, -1
	for {
		var next [2]classes
		next[0], next[1] = make(classes), make(classes)
		numClasses := 0
		for _, s := range group {
			ids := make(map[string]int)
			for side, e := range engines {
				cl := current[side]
				fn := func(refType string, o int) (int, bool) {
					if byOrdinal, ok := cl[refType]; ok {
						c, ok := byOrdinal[o]
						return c, ok
					}
					return outer[side](refType, o)
				}
				ts, _ := e.TypeState(s.Name())
				byOrdinal := make(map[int]int)
				for o := range cl[s.Name()] {
					data, _ := ts.Record(o)
					canon, err := record.RemapReferences(s, data, fn)
					if err != nil {
						continue
					}
					id, ok := ids[string(canon)]
					if !ok {
						id = len(ids)
						ids[string(canon)] = id
					}
					byOrdinal[o] = id
				}
				next[side][s.Name()] = byOrdinal
			}
			numClasses += len(ids)
		}
		current = next
		members := current[0].size() + current[1].size()
		if members == prevMembers && numClasses == prevClasses {
			break
		}
		prevMembers, prevClasses = members, numClasses
	}

	for _, s := range group {
		name := s.Name()
		fts, _ := from.TypeState(name)
		tts, _ := to.TypeState(name)

		byClass := make(map[int][]int)
		for o := range tts.Ordinals() {
			if c, ok := current[1][name][o]; ok {
				byClass[c] = append(byClass[c], o)
			}
		}
		eq := NewEqualOrdinalMap(fts.Cardinality())
		unmatchedFrom, matchedTo := roaring.New(), roaring.New()
		for o := range fts.Ordinals() {
			c, ok := current[0][name][o]
			if !ok || len(byClass[c]) == 0 {
				unmatchedFrom.Add(uint32(o))
				continue
			}
			eq.Put(o, byClass[c]...)
			for _, t := range byClass[c] {
				matchedTo.Add(uint32(t))
			}
		}
		m.finish(name, tts, eq, unmatchedFrom, matchedTo)
	}
}
