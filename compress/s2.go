package compress

import (
	"fmt"

	"github.com/klauspost/compress/s2"
)

type s2Codec struct{}

func (s2Codec) Kind() Kind { return S2 }

func (s2Codec) Compress(data []byte) ([]byte, error) {
	return s2.Encode(nil, data), nil
}

func (s2Codec) Decompress(data []byte, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrSizeMismatch, size)
	}
	n, err := s2.DecodedLen(data)
	if err != nil {
		return nil, fmt.Errorf("s2: %w", err)
	}
	if n != size {
		return nil, fmt.Errorf("%w: s2 header says %d bytes, want %d", ErrSizeMismatch, n, size)
	}
	out, err := s2.Decode(make([]byte, size), data)
	if err != nil {
		return nil, fmt.Errorf("s2: %w", err)
	}
	return out, nil
}
