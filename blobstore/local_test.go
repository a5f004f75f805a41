package blobstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/stratum/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	testStore(t, NewLocalStore(t.TempDir()))
}

func TestLocalStore_MissingRoot(t *testing.T) {
	s := NewLocalStore(filepath.Join(t.TempDir(), "not-yet"))
	names, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, s.Put(context.Background(), "snapshot-1", []byte("x")))
	_, err = os.Stat(filepath.Join(s.Root(), "snapshot-1"))
	assert.NoError(t, err)
}

func TestLocalStore_Subdirectories(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())
	require.NoError(t, s.Put(ctx, "movies/snapshot-3", []byte("m")))
	require.NoError(t, s.Put(ctx, "actors/snapshot-3", []byte("a")))

	names, err := s.List(ctx, "movies/")
	require.NoError(t, err)
	assert.Equal(t, []string{"movies/snapshot-3"}, names)

	b, err := s.Open(ctx, "actors/snapshot-3")
	require.NoError(t, err)
	defer b.Close()
	data, err := b.(Mappable).Bytes()
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}

func TestLocalStore_InvalidNames(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())
	for _, name := range []string{"", "../escape", "/abs", "snapshot-1.tmp"} {
		assert.Error(t, s.Put(ctx, name, nil), name)
	}
}

func TestLocalStore_FailedWriteLeavesNothing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	boom := errors.New("no space left")

	for name, fault := range map[string]fs.Fault{
		"write":  {FailAfterBytes: 2, Err: boom},
		"sync":   {FailAfterBytes: -1, FailOnSync: true, Err: boom},
		"rename": {FailAfterBytes: -1, FailOnRename: true, Err: boom},
	} {
		t.Run(name, func(t *testing.T) {
			ffs := fs.NewFaultyFS(nil)
			ffs.AddRule("snapshot-9", fault)
			s := NewLocalStore(dir, WithFileSystem(ffs))

			err := s.Put(ctx, "snapshot-9", []byte("snapshot body"))
			assert.ErrorIs(t, err, boom)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries, "no partial or temporary file is left behind")
		})
	}
}

func TestLocalStore_ClosedBlob(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())
	require.NoError(t, s.Put(ctx, "snapshot-1", []byte("abc")))

	b, err := s.Open(ctx, "snapshot-1")
	require.NoError(t, err)
	require.NoError(t, b.Close())
	_, err = b.(Mappable).Bytes()
	assert.Error(t, err)
}
