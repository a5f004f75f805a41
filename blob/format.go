package blob

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"slices"

	"github.com/hupe1980/stratum/compress"
	"github.com/hupe1980/stratum/internal/hash"
	"github.com/hupe1980/stratum/internal/varint"
)

const (
	magic         uint32 = 0x5354524D // "STRM"
	formatVersion        = 1
)

// ErrCorrupt matches every FormatError.
var ErrCorrupt = errors.New("corrupt blob")

// FormatError reports a blob that could not be decoded. Truncated input
// wraps io.ErrUnexpectedEOF.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err == nil {
		return "blob: " + e.Reason
	}
	return fmt.Sprintf("blob: %s: %v", e.Reason, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Is makes every FormatError match ErrCorrupt.
func (e *FormatError) Is(target error) bool { return target == ErrCorrupt }

func formatErr(reason string, err error) error {
	return &FormatError{Reason: reason, Err: err}
}

// Header describes a blob. It precedes the body on the wire.
type Header struct {
	Kind        Kind
	FromVersion int64
	ToVersion   int64
	// OriginTag identifies the state a delta applies to; DestinationTag the
	// state it produces. Snapshots carry only a destination tag.
	OriginTag      uint64
	DestinationTag uint64
	Tags           map[string]string
	Compression    compress.Kind
}

// Write frames body behind h and writes it to w. Layout:
//
//	magic         fixed32
//	version       vint
//	kind, codec   1 byte each
//	from, to      zig-zag vlong
//	origin, dest  fixed64
//	tags          vint count, then key/value strings sorted by key
//	body length   vint, uncompressed
//	stored length vint
//	checksum      fixed32, CRC32C of both lengths and the stored body
//	stored body
//
// The checksum covers the lengths so a damaged length is reported as
// corruption instead of driving an allocation.
func Write(w io.Writer, h Header, body []byte) error {
	if !h.Kind.Valid() {
		return fmt.Errorf("blob: invalid kind %d", h.Kind)
	}
	codec, err := compress.Get(h.Compression)
	if err != nil {
		return err
	}
	stored, err := codec.Compress(body)
	if err != nil {
		return fmt.Errorf("blob: compress body: %w", err)
	}

	buf := make([]byte, 0, 64+len(h.Tags)*32)
	buf = varint.AppendFixed32(buf, magic)
	buf = varint.AppendVInt(buf, formatVersion)
	buf = append(buf, byte(h.Kind), byte(h.Compression))
	buf = varint.AppendZigZagLong(buf, h.FromVersion)
	buf = varint.AppendZigZagLong(buf, h.ToVersion)
	buf = varint.AppendFixed64(buf, h.OriginTag)
	buf = varint.AppendFixed64(buf, h.DestinationTag)
	buf = varint.AppendVInt(buf, uint32(len(h.Tags)))
	for _, k := range slices.Sorted(maps.Keys(h.Tags)) {
		buf = varint.AppendString(buf, k)
		buf = varint.AppendString(buf, h.Tags[k])
	}
	lengths := len(buf)
	buf = varint.AppendVLong(buf, uint64(len(body)))
	buf = varint.AppendVLong(buf, uint64(len(stored)))
	buf = varint.AppendFixed32(buf, checksum(buf[lengths:], stored))

	if _, err := w.Write(buf); err != nil {
		return err
	}
	_, err = w.Write(stored)
	return err
}

// Read decodes a framed blob and returns its header and uncompressed body.
// Nothing is returned unless the checksum and lengths verify.
func Read(r io.Reader) (Header, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Header{}, nil, err
	}
	return Decode(data)
}

// Decode is Read over an in-memory blob. With no compression the body
// aliases data.
func Decode(data []byte) (Header, []byte, error) {
	var h Header
	if len(data) == 0 {
		return h, nil, formatErr("empty input", io.ErrUnexpectedEOF)
	}
	d := varint.NewDecoder(data)
	if m := d.Fixed32(); d.Err() == nil && m != magic {
		return h, nil, formatErr(fmt.Sprintf("bad magic %#x", m), nil)
	}
	if v := d.VInt(); d.Err() == nil && v != formatVersion {
		return h, nil, formatErr(fmt.Sprintf("unsupported format version %d", v), nil)
	}
	h.Kind = Kind(d.Byte())
	h.Compression = compress.Kind(d.Byte())
	h.FromVersion = d.ZigZagLong()
	h.ToVersion = d.ZigZagLong()
	h.OriginTag = d.Fixed64()
	h.DestinationTag = d.Fixed64()
	if n := int(d.VInt()); n > 0 && d.Err() == nil {
		if n > d.Remaining() {
			return h, nil, formatErr("tag count exceeds input", io.ErrUnexpectedEOF)
		}
		h.Tags = make(map[string]string, n)
		for range n {
			k := d.String()
			h.Tags[k] = d.String()
		}
	}
	lengthsAt := len(data) - d.Remaining()
	size := d.VLong()
	storedLen := d.VLong()
	lengths := data[lengthsAt : len(data)-d.Remaining()]
	sum := d.Fixed32()
	if err := d.Err(); err != nil {
		return h, nil, formatErr("header", unexpected(err))
	}
	if !h.Kind.Valid() {
		return h, nil, formatErr(fmt.Sprintf("invalid kind %d", h.Kind), nil)
	}
	if storedLen > uint64(d.Remaining()) {
		return h, nil, formatErr("body truncated", io.ErrUnexpectedEOF)
	}
	if storedLen < uint64(d.Remaining()) {
		return h, nil, formatErr("trailing bytes after body", nil)
	}
	stored := d.Raw(int(storedLen))
	if got := checksum(lengths, stored); got != sum {
		return h, nil, formatErr(fmt.Sprintf("checksum mismatch: got %#x, want %#x", got, sum), nil)
	}
	codec, err := compress.Get(h.Compression)
	if err != nil {
		return h, nil, formatErr("codec", err)
	}
	if size > math.MaxInt || int(size) > compress.MaxDecodedLen(h.Compression, len(stored)) {
		return h, nil, formatErr(fmt.Sprintf("body length %d impossible for %d stored %s bytes", size, len(stored), h.Compression), nil)
	}
	body, err := codec.Decompress(stored, int(size))
	if err != nil {
		return h, nil, formatErr("decompress body", err)
	}
	return h, body, nil
}

func checksum(lengths, stored []byte) uint32 {
	return hash.CRC32CUpdate(hash.CRC32C(lengths), stored)
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
