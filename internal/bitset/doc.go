// Package bitset provides the concurrent population bit-set used to track
// which record ordinals are live in a type state.
//
// Architecture:
//   - Segmented design: 2KB segments (256 uint64 words = 16384 bits each)
//   - Segment array published through atomic.Pointer with CAS growth
//   - Words are atomic.Uint64, so readers never observe a torn word
//
// Used for:
//   - Populated and previously populated ordinals of read and write states
//   - Added and removed ordinal sets when computing deltas
package bitset
