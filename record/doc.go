// Package record encodes and decodes the canonical binary form of records.
//
// Object fields are written in schema order. Integers use zig-zag
// variable-length encoding, strings and byte slices are length prefixed and
// references are ordinals of the referenced type. A null value occupies a
// single 0x80 byte, except for floating point fields which use reserved NaN
// bit patterns. Set and map records are sorted and gap encoded so that equal
// content always produces equal bytes.
package record
