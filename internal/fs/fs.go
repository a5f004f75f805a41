package fs

import (
	"io"
	"os"
)

// File is a newly created file being written.
type File interface {
	io.WriteCloser
	Sync() error
}

// FileSystem is the set of operations LocalStore needs to publish a blob
// atomically: create a temporary file, sync it, rename it into place.
type FileSystem interface {
	// Create creates name for writing and fails if it already exists.
	Create(name string) (File, error)
	Rename(oldpath, newpath string) error
	Remove(name string) error
	MkdirAll(path string) error
	ReadDir(name string) ([]os.DirEntry, error)
}

// OS implements FileSystem on the local disk.
type OS struct{}

func (OS) Create(name string) (File, error) {
	return os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
}

func (OS) Rename(oldpath, newpath string) error       { return os.Rename(oldpath, newpath) }
func (OS) Remove(name string) error                   { return os.Remove(name) }
func (OS) MkdirAll(path string) error                 { return os.MkdirAll(path, 0o755) }
func (OS) ReadDir(name string) ([]os.DirEntry, error) { return os.ReadDir(name) }

// Default is the local disk.
var Default FileSystem = OS{}
