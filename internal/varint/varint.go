package varint

import (
	"encoding/binary"
	"errors"
	"io"
	"math/bits"
)

// Null is the single-byte encoding of a null numeric value. A canonical
// VarInt never starts with an empty continuation group, so 0x80 cannot
// collide with a real value.
const Null byte = 0x80

// ErrOverflow is returned when a value does not fit the requested width.
var ErrOverflow = errors.New("varint: value overflows")

// ZigZagInt maps signed integers to unsigned so small magnitudes stay small.
func ZigZagInt(v int32) uint32 {
	return uint32((v << 1) ^ (v >> 31))
}

// UnZigZagInt reverses ZigZagInt.
func UnZigZagInt(v uint32) int32 {
	return int32(v>>1) ^ -int32(v&1)
}

// ZigZagLong maps signed longs to unsigned.
func ZigZagLong(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

// UnZigZagLong reverses ZigZagLong.
func UnZigZagLong(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

// SizeOfVInt returns the encoded length of v.
func SizeOfVInt(v uint32) int {
	return SizeOfVLong(uint64(v))
}

// SizeOfVLong returns the encoded length of v.
func SizeOfVLong(v uint64) int {
	if v == 0 {
		return 1
	}
	return (bits.Len64(v) + 6) / 7
}

// AppendVInt appends v using most-significant-group-first encoding.
func AppendVInt(dst []byte, v uint32) []byte {
	return AppendVLong(dst, uint64(v))
}

// AppendVLong appends v using most-significant-group-first encoding.
func AppendVLong(dst []byte, v uint64) []byte {
	n := SizeOfVLong(v)
	for i := n - 1; i > 0; i-- {
		dst = append(dst, byte(v>>(7*uint(i)))&0x7f|0x80)
	}
	return append(dst, byte(v)&0x7f)
}

// AppendZigZagInt appends a signed int.
func AppendZigZagInt(dst []byte, v int32) []byte {
	return AppendVInt(dst, ZigZagInt(v))
}

// AppendZigZagLong appends a signed long.
func AppendZigZagLong(dst []byte, v int64) []byte {
	return AppendVLong(dst, ZigZagLong(v))
}

// AppendNull appends the null sentinel.
func AppendNull(dst []byte) []byte {
	return append(dst, Null)
}

// AppendFixed32 appends v as four big-endian bytes.
func AppendFixed32(dst []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(dst, v)
}

// AppendFixed64 appends v as eight big-endian bytes.
func AppendFixed64(dst []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(dst, v)
}

// AppendBytes appends a length-prefixed byte slice.
func AppendBytes(dst, b []byte) []byte {
	dst = AppendVInt(dst, uint32(len(b)))
	return append(dst, b...)
}

// AppendString appends a length-prefixed string.
func AppendString(dst []byte, s string) []byte {
	dst = AppendVInt(dst, uint32(len(s)))
	return append(dst, s...)
}

// ReadVInt reads a VarInt from r.
func ReadVInt(r io.ByteReader) (uint32, error) {
	v, err := readVar(r, 5)
	if err != nil {
		return 0, err
	}
	if v > 0xffffffff {
		return 0, ErrOverflow
	}
	return uint32(v), nil
}

// ReadVLong reads a VarLong from r.
func ReadVLong(r io.ByteReader) (uint64, error) {
	return readVar(r, 10)
}

func readVar(r io.ByteReader, maxLen int) (uint64, error) {
	var v uint64
	for i := 0; i < maxLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if i > 0 && errors.Is(err, io.EOF) {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		if v > (1<<57)-1 {
			return 0, ErrOverflow
		}
		v = v<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, ErrOverflow
}
