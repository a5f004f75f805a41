package compress

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnknownKind is returned for codec kinds this build does not know.
var ErrUnknownKind = errors.New("unknown compression kind")

// ErrSizeMismatch is returned when decompressed data does not have the
// expected length.
var ErrSizeMismatch = errors.New("decompressed size mismatch")

// Kind identifies a compression codec on the wire.
type Kind uint8

const (
	None Kind = iota
	Zstd
	S2
	LZ4
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case S2:
		return "s2"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind parses a codec name. The empty string selects None.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "zstd":
		return Zstd, nil
	case "s2":
		return S2, nil
	case "lz4":
		return LZ4, nil
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Codec compresses blob bodies. Implementations are safe for concurrent use.
type Codec interface {
	Kind() Kind
	// Compress returns the compressed form of data.
	Compress(data []byte) ([]byte, error)
	// Decompress returns the original data. size is the uncompressed
	// length recorded alongside the compressed bytes.
	Decompress(data []byte, size int) ([]byte, error)
}

// Get returns the codec for k.
func Get(k Kind) (Codec, error) {
	switch k {
	case None:
		return noopCodec{}, nil
	case Zstd:
		return zstdCodec{}, nil
	case S2:
		return s2Codec{}, nil
	case LZ4:
		return lz4Codec{}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
}

// lz4MaxRatio bounds how far an LZ4 block can expand: every extra byte of
// a literal or match length adds at most 255 output bytes.
const lz4MaxRatio = 255

// zstdMaxRatio bounds zstd expansion. A block header of 3 bytes can
// describe an RLE block of 128 KiB.
const zstdMaxRatio = 128 << 10 / 3

// MaxDecodedLen returns the largest body a codec can produce from stored
// bytes. Lengths above it come from a damaged or hostile header.
func MaxDecodedLen(k Kind, stored int) int {
	switch k {
	case None:
		return stored
	case LZ4:
		return satMul(stored, lz4MaxRatio) + 16
	case S2:
		// s2 prefixes the decoded length; Decompress checks it exactly.
		return math.MaxInt
	case Zstd:
		return satMul(stored, zstdMaxRatio) + 16
	}
	return 0
}

func satMul(a, b int) int {
	if a > math.MaxInt/b {
		return math.MaxInt - 16
	}
	return a * b
}

func checkBound(k Kind, data []byte, size int) error {
	if size < 0 || size > MaxDecodedLen(k, len(data)) {
		return fmt.Errorf("%w: %d %s bytes cannot decode to %d", ErrSizeMismatch, len(data), k, size)
	}
	return nil
}

func checkSize(k Kind, out []byte, size int) ([]byte, error) {
	if len(out) != size {
		return nil, fmt.Errorf("%w: %s produced %d bytes, want %d", ErrSizeMismatch, k, len(out), size)
	}
	return out, nil
}

type noopCodec struct{}

func (noopCodec) Kind() Kind                           { return None }
func (noopCodec) Compress(data []byte) ([]byte, error) { return data, nil }

func (noopCodec) Decompress(data []byte, size int) ([]byte, error) {
	return checkSize(None, data, size)
}
