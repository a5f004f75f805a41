package announce

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/stratum/blob"
	"github.com/hupe1980/stratum/blobstore"
)

// DefaultName is the blob holding the announced version.
const DefaultName = "ANNOUNCED"

// ErrMalformed is returned when the announcement blob cannot be parsed.
var ErrMalformed = errors.New("announce: malformed announcement")

// Announcer publishes the current version.
type Announcer interface {
	Announce(ctx context.Context, version int64) error
}

// Watcher reports the announced version, or blob.VersionNone when nothing
// has been announced.
type Watcher interface {
	Latest(ctx context.Context) (int64, error)
}

// StoreAnnouncer keeps the announced version as a small text blob next to
// the data blobs. It is both an Announcer and a Watcher.
type StoreAnnouncer struct {
	store blobstore.BlobStore
	name  string
}

// StoreOption configures a StoreAnnouncer.
type StoreOption func(*StoreAnnouncer)

// WithName replaces DefaultName, e.g. "movies/ANNOUNCED".
func WithName(name string) StoreOption {
	return func(a *StoreAnnouncer) {
		a.name = name
	}
}

// NewStoreAnnouncer returns an announcer writing to store.
func NewStoreAnnouncer(store blobstore.BlobStore, opts ...StoreOption) *StoreAnnouncer {
	a := &StoreAnnouncer{store: store, name: DefaultName}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Announce implements Announcer.
func (a *StoreAnnouncer) Announce(ctx context.Context, version int64) error {
	if version == blob.VersionNone || version == blob.VersionLatest {
		return fmt.Errorf("announce: cannot announce %s", blob.FormatVersion(version))
	}
	return a.store.Put(ctx, a.name, []byte(strconv.FormatInt(version, 10)))
}

// Latest implements Watcher.
func (a *StoreAnnouncer) Latest(ctx context.Context) (int64, error) {
	b, err := a.store.Open(ctx, a.name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return blob.VersionNone, nil
		}
		return blob.VersionNone, err
	}
	defer b.Close()

	data, err := blobstore.ReadAll(ctx, b)
	if err != nil {
		return blob.VersionNone, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return blob.VersionNone, fmt.Errorf("%w: %q", ErrMalformed, data)
	}
	return v, nil
}
