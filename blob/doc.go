// Package blob defines the transition artifacts exchanged between producers
// and consumers: snapshots, deltas and reverse deltas.
//
// A blob on the wire is a header followed by a possibly compressed body.
// The header names the kind, the version range, the origin and destination
// state tags and free-form string tags. The body is only returned after its
// CRC32C checksum and length have been verified, so a truncated or damaged
// blob is never partially applied.
package blob
