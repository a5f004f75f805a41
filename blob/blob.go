package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
)

// Reserved versions.
const (
	// VersionNone means no state has been loaded or announced.
	VersionNone int64 = math.MinInt64
	// VersionLatest asks for the newest version available.
	VersionLatest int64 = math.MaxInt64
)

// Kind is the type of a blob.
type Kind uint8

const (
	Snapshot Kind = iota
	Delta
	ReverseDelta
)

func (k Kind) String() string {
	switch k {
	case Snapshot:
		return "snapshot"
	case Delta:
		return "delta"
	case ReverseDelta:
		return "reversedelta"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return k <= ReverseDelta }

// ErrNoOpener is returned by Open on a Blob constructed without an opener.
var ErrNoOpener = errors.New("blob has no opener")

// Opener returns a fresh stream over the blob bytes.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// Blob describes a retrievable transition. The bytes are fetched lazily
// on Open, so a planner can reason about blobs without downloading them.
type Blob struct {
	kind   Kind
	from   int64
	to     int64
	opener Opener
}

// New returns a blob descriptor. For snapshots from is VersionNone.
func New(kind Kind, from, to int64, opener Opener) *Blob {
	if kind == Snapshot {
		from = VersionNone
	}
	return &Blob{kind: kind, from: from, to: to, opener: opener}
}

// Open returns a stream over the blob bytes. The caller closes it.
func (b *Blob) Open(ctx context.Context) (io.ReadCloser, error) {
	if b.opener == nil {
		return nil, ErrNoOpener
	}
	return b.opener(ctx)
}

func (b *Blob) Kind() Kind           { return b.kind }
func (b *Blob) FromVersion() int64   { return b.from }
func (b *Blob) ToVersion() int64     { return b.to }
func (b *Blob) IsSnapshot() bool     { return b.kind == Snapshot }
func (b *Blob) IsDelta() bool        { return b.kind == Delta }
func (b *Blob) IsReverseDelta() bool { return b.kind == ReverseDelta }

func (b *Blob) String() string {
	if b.kind == Snapshot {
		return fmt.Sprintf("snapshot(%s)", FormatVersion(b.to))
	}
	return fmt.Sprintf("%s(%s->%s)", b.kind, FormatVersion(b.from), FormatVersion(b.to))
}

// FormatVersion renders a version, naming the reserved sentinels.
func FormatVersion(v int64) string {
	switch v {
	case VersionNone:
		return "none"
	case VersionLatest:
		return "latest"
	}
	return fmt.Sprintf("%d", v)
}
