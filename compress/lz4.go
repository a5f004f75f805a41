package compress

import (
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"
)

var lz4CompressorPool = sync.Pool{
	New: func() any { return &lz4.Compressor{} },
}

type lz4Codec struct{}

func (lz4Codec) Kind() Kind { return LZ4 }

// Compress writes a raw LZ4 block. Input that does not shrink is stored
// as is, which Decompress recognises by comparing against size.
func (lz4Codec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dst := make([]byte, lz4.CompressBlockBound(len(data)))

	c, _ := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(c)

	n, err := c.CompressBlock(data, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	if n == 0 || n >= len(data) {
		return append([]byte(nil), data...), nil
	}
	return dst[:n], nil
}

func (lz4Codec) Decompress(data []byte, size int) ([]byte, error) {
	if size == 0 {
		return checkSize(LZ4, data, size)
	}
	if len(data) == size {
		// stored uncompressed
		return data, nil
	}
	if err := checkBound(LZ4, data, size); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(data, out)
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	return checkSize(LZ4, out[:n], size)
}
