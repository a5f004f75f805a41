package hash

import (
	"hash/crc32"

	"github.com/cespare/xxhash/v2"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32C returns the Castagnoli checksum stored in blob headers.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// CRC32CUpdate extends crc with data, so a checksum can span several
// slices without joining them.
func CRC32CUpdate(crc uint32, data []byte) uint32 {
	return crc32.Update(crc, castagnoli, data)
}

// Content returns the 64-bit content hash of a serialized record. Equal
// bytes hash equally across processes, so hashes may be compared between a
// producer's write state and a consumer's read state.
func Content(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Digest accumulates the content hash of a whole type state.
type Digest struct {
	d       *xxhash.Digest
	scratch []byte
}

// NewDigest returns an empty Digest.
func NewDigest() *Digest {
	return &Digest{d: xxhash.New()}
}

// AddRecord mixes an ordinal and its record bytes into the digest. The
// ordinal and the record length are written as fixed 32-bit prefixes, so
// (1, "ab") and (1, "a") followed by a record starting with "b" differ.
func (d *Digest) AddRecord(ordinal int, rec []byte) {
	d.scratch = append(d.scratch[:0],
		byte(ordinal>>24), byte(ordinal>>16), byte(ordinal>>8), byte(ordinal),
		byte(len(rec)>>24), byte(len(rec)>>16), byte(len(rec)>>8), byte(len(rec)))
	_, _ = d.d.Write(d.scratch)
	_, _ = d.d.Write(rec)
}

// Sum64 returns the digest so far.
func (d *Digest) Sum64() uint64 { return d.d.Sum64() }
