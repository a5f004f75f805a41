package varint

import (
	"encoding/binary"
	"io"
)

// Decoder reads primitives from a byte slice. The first error sticks and
// every later call returns a zero value.
type Decoder struct {
	buf []byte
	off int
	err error
}

// NewDecoder creates a decoder over buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Err returns the first error encountered.
func (d *Decoder) Err() error { return d.err }

// Offset returns the number of bytes consumed.
func (d *Decoder) Offset() int { return d.off }

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

func (d *Decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// need reports whether n more bytes are available, recording an error if not.
func (d *Decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || d.off+n > len(d.buf) {
		if d.off == len(d.buf) {
			d.fail(io.EOF)
		} else {
			d.fail(io.ErrUnexpectedEOF)
		}
		return false
	}
	return true
}

// IsNull reports whether the next byte is the null sentinel and consumes
// it if so.
func (d *Decoder) IsNull() bool {
	if !d.need(1) {
		return false
	}
	if d.buf[d.off] == Null {
		d.off++
		return true
	}
	return false
}

// Byte reads a single byte.
func (d *Decoder) Byte() byte {
	if !d.need(1) {
		return 0
	}
	b := d.buf[d.off]
	d.off++
	return b
}

// VLong reads an unsigned VarLong.
func (d *Decoder) VLong() uint64 {
	if d.err != nil {
		return 0
	}
	var v uint64
	for i := 0; i < 10; i++ {
		if d.off >= len(d.buf) {
			if i == 0 {
				d.fail(io.EOF)
			} else {
				d.fail(io.ErrUnexpectedEOF)
			}
			return 0
		}
		b := d.buf[d.off]
		d.off++
		if v > (1<<57)-1 {
			d.fail(ErrOverflow)
			return 0
		}
		v = v<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			return v
		}
	}
	d.fail(ErrOverflow)
	return 0
}

// VInt reads an unsigned VarInt.
func (d *Decoder) VInt() uint32 {
	v := d.VLong()
	if v > 0xffffffff {
		d.fail(ErrOverflow)
		return 0
	}
	return uint32(v)
}

// ZigZagInt reads a signed int.
func (d *Decoder) ZigZagInt() int32 {
	return UnZigZagInt(d.VInt())
}

// ZigZagLong reads a signed long.
func (d *Decoder) ZigZagLong() int64 {
	return UnZigZagLong(d.VLong())
}

// Fixed32 reads four big-endian bytes.
func (d *Decoder) Fixed32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

// Fixed64 reads eight big-endian bytes.
func (d *Decoder) Fixed64() uint64 {
	if !d.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v
}

// Raw returns the next n bytes without copying.
func (d *Decoder) Raw(n int) []byte {
	if !d.need(n) {
		return nil
	}
	b := d.buf[d.off : d.off+n : d.off+n]
	d.off += n
	return b
}

// Bytes reads a length-prefixed byte slice without copying.
func (d *Decoder) Bytes() []byte {
	n := d.VInt()
	if d.err != nil {
		return nil
	}
	return d.Raw(int(n))
}

// String reads a length-prefixed string.
func (d *Decoder) String() string {
	return string(d.Bytes())
}
