package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/hupe1980/stratum/blob"
	"github.com/hupe1980/stratum/internal/resource"
)

// ErrInvalidVersion is returned when a version cannot be encoded in a blob
// name.
var ErrInvalidVersion = errors.New("blobstore: version cannot be stored")

// Catalog names the blobs of a producer in a BlobStore:
//
//	snapshot-<to>
//	delta-<from>-<to>
//	reversedelta-<from>-<to>
//
// Publish stores blobs and the Retrieve methods locate them, so a Catalog
// serves both as a producer's publisher and as a consumer's retriever.
type Catalog struct {
	store  BlobStore
	prefix string
	rc     *resource.Controller
	logger *slog.Logger
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithPrefix namespaces every blob name, e.g. "movies/".
func WithPrefix(prefix string) CatalogOption {
	return func(c *Catalog) {
		c.prefix = prefix
	}
}

// WithResourceController throttles blob reads.
func WithResourceController(rc *resource.Controller) CatalogOption {
	return func(c *Catalog) {
		c.rc = rc
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) CatalogOption {
	return func(c *Catalog) {
		c.logger = l
	}
}

// NewCatalog returns a Catalog over store.
func NewCatalog(store BlobStore, opts ...CatalogOption) *Catalog {
	c := &Catalog{store: store, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the underlying BlobStore.
func (c *Catalog) Store() BlobStore { return c.store }

// Name returns the blob name of a transition, without prefix.
func Name(kind blob.Kind, from, to int64) string {
	switch kind {
	case blob.Snapshot:
		return fmt.Sprintf("snapshot-%d", to)
	default:
		return fmt.Sprintf("%s-%d-%d", kind, from, to)
	}
}

// ParseName reverses Name.
func ParseName(name string) (kind blob.Kind, from, to int64, ok bool) {
	parts := strings.Split(name, "-")
	switch {
	case len(parts) == 2 && parts[0] == "snapshot":
		kind, from = blob.Snapshot, blob.VersionNone
		to, ok = parseVersion(parts[1])
		return kind, from, to, ok
	case len(parts) == 3 && (parts[0] == "delta" || parts[0] == "reversedelta"):
		kind = blob.Delta
		if parts[0] == "reversedelta" {
			kind = blob.ReverseDelta
		}
		var okFrom, okTo bool
		from, okFrom = parseVersion(parts[1])
		to, okTo = parseVersion(parts[2])
		return kind, from, to, okFrom && okTo
	}
	return 0, 0, 0, false
}

func parseVersion(s string) (int64, bool) {
	v, err := strconv.ParseInt(s, 10, 64)
	return v, err == nil && v >= 0 && strconv.FormatInt(v, 10) == s
}

// Publish stores the framed bytes of a transition.
func (c *Catalog) Publish(ctx context.Context, kind blob.Kind, from, to int64, data []byte) error {
	if !kind.Valid() || to < 0 || to == blob.VersionLatest || (kind != blob.Snapshot && from < 0) {
		return fmt.Errorf("%w: %s %s->%s", ErrInvalidVersion, kind, blob.FormatVersion(from), blob.FormatVersion(to))
	}
	name := Name(kind, from, to)
	if err := c.store.Put(ctx, c.prefix+name, data); err != nil {
		return fmt.Errorf("blobstore: publish %s: %w", name, err)
	}
	c.logger.Debug("blob published", "name", c.prefix+name, "size", len(data))
	return nil
}

// RetrieveSnapshotBlob returns the newest snapshot at or before desired,
// or nil if there is none.
func (c *Catalog) RetrieveSnapshotBlob(ctx context.Context, desired int64) (*blob.Blob, error) {
	names, err := c.list(ctx, "snapshot-")
	if err != nil {
		return nil, err
	}
	best := blob.VersionNone
	for _, name := range names {
		if kind, _, to, ok := ParseName(name); ok && kind == blob.Snapshot && to <= desired && to > best {
			best = to
		}
	}
	if best == blob.VersionNone {
		return nil, nil
	}
	return c.descriptor(blob.Snapshot, blob.VersionNone, best), nil
}

// RetrieveDeltaBlob returns the delta starting at current, or nil.
func (c *Catalog) RetrieveDeltaBlob(ctx context.Context, current int64) (*blob.Blob, error) {
	return c.retrieveFrom(ctx, blob.Delta, current)
}

// RetrieveReverseDeltaBlob returns the reverse delta starting at current,
// or nil.
func (c *Catalog) RetrieveReverseDeltaBlob(ctx context.Context, current int64) (*blob.Blob, error) {
	return c.retrieveFrom(ctx, blob.ReverseDelta, current)
}

func (c *Catalog) retrieveFrom(ctx context.Context, kind blob.Kind, from int64) (*blob.Blob, error) {
	if from < 0 {
		return nil, nil
	}
	names, err := c.list(ctx, fmt.Sprintf("%s-%d-", kind, from))
	if err != nil {
		return nil, err
	}
	// A failed cycle can leave a delta behind that a later cycle
	// supersedes, so the newest destination wins.
	best := blob.VersionNone
	for _, name := range names {
		if k, f, to, ok := ParseName(name); ok && k == kind && f == from && to > best {
			best = to
		}
	}
	if best == blob.VersionNone {
		return nil, nil
	}
	return c.descriptor(kind, from, best), nil
}

// Versions returns every version reachable through a stored blob, in
// ascending order.
func (c *Catalog) Versions(ctx context.Context) ([]int64, error) {
	names, err := c.list(ctx, "")
	if err != nil {
		return nil, err
	}
	var versions []int64
	for _, name := range names {
		kind, _, to, ok := ParseName(name)
		if ok && kind != blob.ReverseDelta {
			versions = append(versions, to)
		}
	}
	slices.Sort(versions)
	return slices.Compact(versions), nil
}

// Blobs returns descriptors of every stored transition.
func (c *Catalog) Blobs(ctx context.Context) ([]*blob.Blob, error) {
	names, err := c.list(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []*blob.Blob
	for _, name := range names {
		if kind, from, to, ok := ParseName(name); ok {
			out = append(out, c.descriptor(kind, from, to))
		}
	}
	return out, nil
}

// CleanSnapshots deletes all but the newest keep snapshots. Deltas are
// left alone. It returns the deleted versions.
func (c *Catalog) CleanSnapshots(ctx context.Context, keep int) ([]int64, error) {
	names, err := c.list(ctx, "snapshot-")
	if err != nil {
		return nil, err
	}
	var versions []int64
	for _, name := range names {
		if kind, _, to, ok := ParseName(name); ok && kind == blob.Snapshot {
			versions = append(versions, to)
		}
	}
	if len(versions) <= keep {
		return nil, nil
	}
	slices.Sort(versions)
	stale := versions[:len(versions)-max(keep, 0)]
	for _, v := range stale {
		if err := c.store.Delete(ctx, c.prefix+Name(blob.Snapshot, blob.VersionNone, v)); err != nil {
			return nil, err
		}
	}
	c.logger.Info("snapshots cleaned", "deleted", len(stale), "kept", keep)
	return stale, nil
}

func (c *Catalog) list(ctx context.Context, prefix string) ([]string, error) {
	names, err := c.store.List(ctx, c.prefix+prefix)
	if err != nil {
		return nil, fmt.Errorf("blobstore: list %q: %w", c.prefix+prefix, err)
	}
	for i, name := range names {
		names[i] = strings.TrimPrefix(name, c.prefix)
	}
	return names, nil
}

func (c *Catalog) descriptor(kind blob.Kind, from, to int64) *blob.Blob {
	name := c.prefix + Name(kind, from, to)
	return blob.New(kind, from, to, func(ctx context.Context) (io.ReadCloser, error) {
		return c.open(ctx, name)
	})
}

func (c *Catalog) open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := c.rc.AcquireFetch(ctx); err != nil {
		return nil, err
	}
	b, err := c.store.Open(ctx, name)
	if err != nil {
		c.rc.ReleaseFetch()
		return nil, fmt.Errorf("blobstore: open %s: %w", name, err)
	}
	c.logger.Debug("blob opened", "name", name, "size", b.Size())
	return &fetch{
		Reader: resource.NewRateLimitedReader(ctx, NewReader(ctx, b), c.rc),
		blob:   b,
		rc:     c.rc,
	}, nil
}

type fetch struct {
	io.Reader
	blob   Blob
	rc     *resource.Controller
	closed bool
}

func (f *fetch) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	defer f.rc.ReleaseFetch()
	return f.blob.Close()
}
