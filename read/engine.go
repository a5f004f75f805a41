package read

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/stratum/blob"
	"github.com/hupe1980/stratum/schema"
)

// state is one published version of the engine. It is never mutated after
// publication.
type state struct {
	types      map[string]*TypeState
	tag        uint64
	headerTags map[string]string
}

// Engine is the consumer side state engine. Readers may call any accessor
// concurrently with a transition; they observe either the state before or
// the state after it. Transitions are serialized.
type Engine struct {
	mu     sync.Mutex
	state  atomic.Pointer[state]
	filter *Filter
	logger *slog.Logger
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

// WithFilter restricts the types and fields that are loaded.
func WithFilter(f *Filter) Option {
	return func(e *Engine) {
		e.filter = f
	}
}

// NewEngine creates an uninitialized engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Filter returns the configured filter, or nil.
func (e *Engine) Filter() *Filter { return e.filter }

// Initialized reports whether a snapshot has been applied.
func (e *Engine) Initialized() bool { return e.state.Load() != nil }

// Tag returns the tag of the loaded state, or 0 when uninitialized.
func (e *Engine) Tag() uint64 {
	if s := e.state.Load(); s != nil {
		return s.tag
	}
	return 0
}

// HeaderTags returns the header tags of the last applied blob.
func (e *Engine) HeaderTags() map[string]string {
	if s := e.state.Load(); s != nil {
		return maps.Clone(s.headerTags)
	}
	return nil
}

// TypeState returns the state of a loaded type.
func (e *Engine) TypeState(name string) (*TypeState, bool) {
	s := e.state.Load()
	if s == nil {
		return nil, false
	}
	ts, ok := s.types[name]
	return ts, ok
}

// TypeNames returns the loaded type names in lexical order.
func (e *Engine) TypeNames() []string {
	s := e.state.Load()
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.types))
}

// Schemas returns the loaded schemas in dependency order.
func (e *Engine) Schemas() []schema.Schema {
	names := e.TypeNames()
	out := make([]schema.Schema, 0, len(names))
	for _, n := range names {
		ts, _ := e.TypeState(n)
		out = append(out, ts.schema)
	}
	return schema.Sort(out)
}

// ApplySnapshot replaces the loaded state with the snapshot read from r.
func (e *Engine) ApplySnapshot(r io.Reader) (blob.Header, error) {
	return e.apply(r, blob.Snapshot)
}

// ApplyDelta moves the loaded state forward by the delta read from r.
func (e *Engine) ApplyDelta(r io.Reader) (blob.Header, error) {
	return e.apply(r, blob.Delta)
}

// ApplyReverseDelta moves the loaded state backward by the reverse delta
// read from r.
func (e *Engine) ApplyReverseDelta(r io.Reader) (blob.Header, error) {
	return e.apply(r, blob.ReverseDelta)
}

// apply decodes and validates the whole blob before publishing the new
// state with a single atomic store. On error the loaded state is unchanged.
func (e *Engine) apply(r io.Reader, want blob.Kind) (blob.Header, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.state.Load()
	if want != blob.Snapshot && cur == nil {
		return blob.Header{}, ErrNotInitialized
	}

	h, body, err := blob.Read(r)
	if err != nil {
		return h, err
	}
	if h.Kind != want {
		return h, fmt.Errorf("%w: got %s, want %s", ErrWrongKind, h.Kind, want)
	}
	if want != blob.Snapshot && h.OriginTag != cur.tag {
		return h, fmt.Errorf("%w: blob origin %#x, state %#x", ErrOriginMismatch, h.OriginTag, cur.tag)
	}

	decoded, err := decodeBody(body, want != blob.Snapshot, e.filter)
	if err != nil {
		return h, err
	}

	var next *state
	if want == blob.Snapshot {
		next, err = buildSnapshot(decoded)
	} else {
		next, err = buildDelta(cur, decoded)
	}
	if err != nil {
		return h, err
	}
	next.tag = h.DestinationTag
	next.headerTags = h.Tags

	e.state.Store(next)
	e.logger.Debug("applied blob",
		"kind", h.Kind.String(),
		"from", h.FromVersion,
		"to", h.ToVersion,
		"types", len(decoded),
	)
	return h, nil
}

func buildSnapshot(decoded []*decodedType) (*state, error) {
	next := &state{types: make(map[string]*TypeState, len(decoded))}
	for _, dt := range decoded {
		ts, err := newTypeState(dt.wire, dt.schema).apply(dt)
		if err != nil {
			return nil, err
		}
		next.types[dt.wire.Name()] = ts
	}
	return next, nil
}

func buildDelta(cur *state, decoded []*decodedType) (*state, error) {
	next := &state{types: make(map[string]*TypeState, len(cur.types)+len(decoded))}
	for name, ts := range cur.types {
		next.types[name] = ts.advance()
	}
	for _, dt := range decoded {
		name := dt.wire.Name()
		base, ok := next.types[name]
		if !ok {
			base = newTypeState(dt.wire, dt.schema)
		} else if !base.wire.Equal(dt.wire) {
			return nil, fmt.Errorf("%w: %s", ErrSchemaMismatch, name)
		}
		ts, err := base.apply(dt)
		if err != nil {
			return nil, err
		}
		next.types[name] = ts
	}
	return next, nil
}
