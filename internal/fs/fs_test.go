package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "blobs")
	require.NoError(t, Default.MkdirAll(dir))

	path := filepath.Join(dir, "snapshot-1")
	f, err := Default.Create(path)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	_, err = Default.Create(path)
	assert.ErrorIs(t, err, os.ErrExist, "create is exclusive")

	entries, err := Default.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	renamed := filepath.Join(dir, "snapshot-2")
	require.NoError(t, Default.Rename(path, renamed))
	data, err := os.ReadFile(renamed)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, Default.Remove(renamed))
	_, err = os.Stat(renamed)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFaultyFS_WriteLimit(t *testing.T) {
	ffs := NewFaultyFS(nil)
	ffs.AddRule("delta-", Fault{FailAfterBytes: 5})

	f, err := ffs.Create(filepath.Join(t.TempDir(), "delta-1-2"))
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = f.Write([]byte("!"))
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 0, n)
}

func TestFaultyFS_SyncCloseRename(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("disk on fire")
	ffs := NewFaultyFS(OS{})
	ffs.AddRule("snapshot-", Fault{FailAfterBytes: -1, FailOnSync: true, FailOnClose: true, FailOnRename: true, Err: boom})

	path := filepath.Join(dir, "snapshot-3")
	f, err := ffs.Create(path)
	require.NoError(t, err)
	assert.ErrorIs(t, f.Sync(), boom)
	assert.ErrorIs(t, f.Close(), boom)
	assert.ErrorIs(t, ffs.Rename(path, path+".x"), boom)

	ffs.ClearRules()
	assert.NoError(t, ffs.Rename(path, filepath.Join(dir, "other")))
}

func TestFaultyFS_UnmatchedPassesThrough(t *testing.T) {
	dir := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("snapshot-", Fault{FailOnSync: true})

	f, err := ffs.Create(filepath.Join(dir, "ANNOUNCED"))
	require.NoError(t, err)
	assert.NoError(t, f.Sync())
	assert.NoError(t, f.Close())

	require.NoError(t, ffs.MkdirAll(filepath.Join(dir, "sub")))
	entries, err := ffs.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.NoError(t, ffs.Remove(filepath.Join(dir, "ANNOUNCED")))
}
