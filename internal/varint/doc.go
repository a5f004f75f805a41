// Package varint implements the primitive encoding used by stratum blobs.
//
// Unsigned values are written as 7-bit groups, most significant group
// first, with the high bit set on every byte except the last:
//
//	0   -> 0x00
//	129 -> 0x81 0x01
//	300 -> 0x82 0x2C
//
// Signed values are zig-zag mapped first. The single byte 0x80 is reserved
// as the null sentinel for nullable numeric fields.
package varint
