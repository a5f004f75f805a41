// Package hash holds the two hash functions stratum relies on: CRC32C over
// stored blob bodies, and xxhash over record bytes for the per-cycle dedup
// index, diff matching and the producer's delta integrity check.
package hash
