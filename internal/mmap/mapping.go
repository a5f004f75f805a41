package mmap

import (
	"errors"
	"io"
	"math"
	"os"
	"sync/atomic"
)

var (
	// ErrClosed is returned when a closed mapping is read.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrTooLarge is returned for files that do not fit the address space.
	ErrTooLarge = errors.New("mmap: file too large to map")
)

// Mapping is a read-only view of a blob file.
type Mapping struct {
	data   []byte
	closed atomic.Bool
}

// Open maps the file at path and hints the kernel that it will be read
// front to back, which is how blobs are decoded. Empty files yield an empty
// mapping without a system call.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	switch size := fi.Size(); {
	case size == 0:
		return &Mapping{}, nil
	case size > math.MaxInt:
		return nil, ErrTooLarge
	default:
		data, err := mapFile(f, int(size))
		if err != nil {
			return nil, &os.PathError{Op: "mmap", Path: path, Err: err}
		}
		adviseSequential(data)
		return &Mapping{data: data}, nil
	}
}

// Close unmaps the file. Slices obtained from Bytes are invalid after it.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) || len(m.data) == 0 {
		return nil
	}
	return unmapFile(m.data)
}

// Bytes returns the mapped contents, or ErrClosed.
func (m *Mapping) Bytes() ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	return m.data, nil
}

// Size returns the file length in bytes.
func (m *Mapping) Size() int64 { return int64(len(m.data)) }

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, &os.PathError{Op: "readat", Path: "mmap", Err: os.ErrInvalid}
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
