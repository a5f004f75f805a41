// Package mmap maps blob files read-only into memory for LocalStore.
//
// A snapshot is decoded straight out of the mapping, so it is never copied
// into the Go heap as a whole. Mappings are safe for concurrent reads and
// Close is idempotent.
package mmap
