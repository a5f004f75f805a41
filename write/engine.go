package write

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/stratum/blob"
	"github.com/hupe1980/stratum/compress"
	"github.com/hupe1980/stratum/read"
	"github.com/hupe1980/stratum/record"
	"github.com/hupe1980/stratum/schema"
)

// DefaultTargetMaxShardSize is the default upper bound on the serialized
// size of one shard.
const DefaultTargetMaxShardSize = 16 << 20

type phase int32

const (
	populating phase = iota
	prepared
)

// Engine is the producer side state engine. Records are added during the
// population stage of a cycle; PrepareForWrite ends the stage and blobs
// describing the new state can then be written.
//
// Add is safe for concurrent use. All other methods must be called by the
// single goroutine driving the cycle.
type Engine struct {
	mu    sync.RWMutex
	types map[string]*TypeState

	phase atomic.Int32
	// preparedForNextCycle is cleared by Add and PrepareForWrite, making
	// repeated PrepareForNextCycle calls no-ops.
	preparedForNextCycle atomic.Bool

	previousTag uint64
	currentTag  uint64
	headerTags  map[string]string

	targetMaxShardSize int64
	compression        compress.Kind
	logger             *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTargetMaxShardSize sets the shard size target in bytes.
func WithTargetMaxShardSize(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.targetMaxShardSize = n
		}
	}
}

// WithCompression sets the codec used for blob bodies.
func WithCompression(k compress.Kind) Option {
	return func(e *Engine) {
		e.compression = k
	}
}

// WithHeaderTag adds a tag written into every blob header.
func WithHeaderTag(key, value string) Option {
	return func(e *Engine) {
		e.headerTags[key] = value
	}
}

// NewEngine creates an empty write engine in the population stage.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		types:              make(map[string]*TypeState),
		headerTags:         make(map[string]string),
		targetMaxShardSize: DefaultTargetMaxShardSize,
		compression:        compress.None,
		logger:             slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.preparedForNextCycle.Store(true)
	return e
}

// Register adds type states for schemas. Registering an identical schema
// again is a no-op.
func (e *Engine) Register(schemas ...schema.Schema) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range schemas {
		if err := s.Validate(); err != nil {
			return err
		}
		if ts, ok := e.types[s.Name()]; ok {
			if !ts.schema.Equal(s) {
				return fmt.Errorf("%w: %s", ErrSchemaConflict, s.Name())
			}
			continue
		}
		e.types[s.Name()] = newTypeState(s)
	}
	return nil
}

// SetHeaderTag sets a tag written into every following blob header.
func (e *Engine) SetHeaderTag(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.headerTags[key] = value
}

// HeaderTags returns a copy of the header tags.
func (e *Engine) HeaderTags() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.headerTags)
}

// TypeState returns the state of a registered type.
func (e *Engine) TypeState(name string) (*TypeState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ts, ok := e.types[name]
	return ts, ok
}

// Schemas returns the registered schemas in dependency order.
func (e *Engine) Schemas() []schema.Schema {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sortedSchemas()
}

func (e *Engine) sortedSchemas() []schema.Schema {
	out := make([]schema.Schema, 0, len(e.types))
	for _, name := range slices.Sorted(maps.Keys(e.types)) {
		out = append(out, e.types[name].schema)
	}
	return schema.Sort(out)
}

// Add serializes rec and assigns it an ordinal in its type. A record equal
// to one already added this cycle or present in the previous cycle keeps
// that record's ordinal.
func (e *Engine) Add(typeName string, rec record.Record) (int, error) {
	if phase(e.phase.Load()) != populating {
		return -1, ErrNotPopulating
	}

	ts, ok := e.TypeState(typeName)
	if !ok {
		return -1, &PopulationError{Type: typeName, Err: ErrUnknownType}
	}
	if rec == nil {
		return -1, &PopulationError{Type: typeName, Err: ErrNilRecord}
	}
	if s := rec.Schema(); s == nil || !s.Equal(ts.schema) {
		return -1, &PopulationError{Type: typeName, Err: ErrSchemaMismatch}
	}
	data, err := rec.Encode(nil)
	if err != nil {
		return -1, &PopulationError{Type: typeName, Err: err}
	}

	e.preparedForNextCycle.Store(false)
	return ts.add(data), nil
}

// PrepareForNextCycle closes the previous cycle: the current population
// becomes the previous one and the engine returns to the population stage.
// Calling it twice without an intervening Add or PrepareForWrite is a no-op.
func (e *Engine) PrepareForNextCycle() {
	if e.preparedForNextCycle.Load() {
		e.phase.Store(int32(populating))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ts := range e.types {
		ts.prepareForNextCycle()
	}
	e.previousTag = e.currentTag
	e.phase.Store(int32(populating))
	e.preparedForNextCycle.Store(true)
}

// PrepareForWrite ends the population stage. A new destination tag is drawn
// if the state changed.
func (e *Engine) PrepareForWrite() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if phase(e.phase.Load()) == prepared {
		return
	}
	changed := e.currentTag == 0
	for _, ts := range e.types {
		ts.computeNumShards(e.targetMaxShardSize)
		changed = changed || ts.changed()
	}
	if changed {
		e.currentTag = randomTag(e.previousTag)
	}
	e.phase.Store(int32(prepared))
	e.preparedForNextCycle.Store(false)
}

// ResetToLastPrepare discards every record added since the last
// PrepareForNextCycle, returning ordinals and tags to that point.
func (e *Engine) ResetToLastPrepare() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ts := range e.types {
		ts.resetToLastPrepare()
	}
	e.currentTag = e.previousTag
	e.phase.Store(int32(populating))
	e.preparedForNextCycle.Store(true)
	e.logger.Debug("write engine reset to last prepare")
}

// Reset discards all records and ordinal history. Registered schemas and
// header tags are kept. The next blob written must be a snapshot.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ts := range e.types {
		ts.reset()
	}
	e.previousTag, e.currentTag = 0, 0
	e.phase.Store(int32(populating))
	e.preparedForNextCycle.Store(true)
}

// HasChangedSinceLastCycle reports whether the current population differs
// from the previous one.
func (e *Engine) HasChangedSinceLastCycle() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ts := range e.types {
		if ts.changed() {
			return true
		}
	}
	return false
}

// CurrentTag returns the tag identifying the prepared state.
func (e *Engine) CurrentTag() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentTag
}

// RestoreFrom loads the population of r into the engine, keeping its
// ordinals, so that the next delta applies to consumers holding r's state.
// Types registered here but absent from r start empty, as do types whose
// schema differs.
func (e *Engine) RestoreFrom(r *read.Engine) error {
	if !r.Initialized() {
		return read.ErrNotInitialized
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, ts := range e.types {
		ts.reset()
		rts, ok := r.TypeState(name)
		if !ok {
			continue
		}
		if !rts.Schema().Equal(ts.schema) {
			e.logger.Warn("skipping restore of type with changed or filtered schema", "type", name)
			continue
		}
		ts.mu.Lock()
		for o := range rts.Ordinals() {
			data, _ := rts.Record(o)
			ts.put(o, data)
		}
		ts.rebuildAllocator()
		ts.previous = ts.current.Clone()
		ts.numShards = rts.NumShards()
		ts.mu.Unlock()
	}
	e.previousTag = r.Tag()
	e.currentTag = r.Tag()
	e.phase.Store(int32(prepared))
	e.preparedForNextCycle.Store(false)
	return nil
}

func (e *Engine) header(kind blob.Kind, from, to int64, origin, dest uint64) blob.Header {
	return blob.Header{
		Kind:           kind,
		FromVersion:    from,
		ToVersion:      to,
		OriginTag:      origin,
		DestinationTag: dest,
		Tags:           maps.Clone(e.headerTags),
		Compression:    e.compression,
	}
}

// WriteSnapshot writes the current population as a snapshot blob.
func (e *Engine) WriteSnapshot(w io.Writer, version int64) error {
	if phase(e.phase.Load()) != prepared {
		return ErrNotPrepared
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	body, err := e.encode(snapshotBody)
	if err != nil {
		return err
	}
	h := e.header(blob.Snapshot, blob.VersionNone, version, 0, e.currentTag)
	e.logger.Debug("writing snapshot", "version", version, "bytes", len(body))
	return blob.Write(w, h, body)
}

// WriteDelta writes the changes from the previous to the current
// population.
func (e *Engine) WriteDelta(w io.Writer, from, to int64) error {
	if phase(e.phase.Load()) != prepared {
		return ErrNotPrepared
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	body, err := e.encode(deltaBody)
	if err != nil {
		return err
	}
	h := e.header(blob.Delta, from, to, e.previousTag, e.currentTag)
	e.logger.Debug("writing delta", "from", from, "to", to, "bytes", len(body))
	return blob.Write(w, h, body)
}

// WriteReverseDelta writes the changes from the current back to the
// previous population. from is the current version, to the previous one.
func (e *Engine) WriteReverseDelta(w io.Writer, from, to int64) error {
	if phase(e.phase.Load()) != prepared {
		return ErrNotPrepared
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	body, err := e.encode(reverseDeltaBody)
	if err != nil {
		return err
	}
	h := e.header(blob.ReverseDelta, from, to, e.currentTag, e.previousTag)
	e.logger.Debug("writing reverse delta", "from", from, "to", to, "bytes", len(body))
	return blob.Write(w, h, body)
}

func randomTag(avoid uint64) uint64 {
	for {
		if t := rand.Uint64(); t != 0 && t != avoid {
			return t
		}
	}
}
