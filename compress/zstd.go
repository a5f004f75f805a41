package compress

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var zstdDecoderPool = sync.Pool{
	New: func() any {
		d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("zstd decoder: %v", err))
		}
		return d
	},
}

var zstdEncoderPool = sync.Pool{
	New: func() any {
		e, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderCRC(false),
		)
		if err != nil {
			panic(fmt.Sprintf("zstd encoder: %v", err))
		}
		return e
	},
}

type zstdCodec struct{}

func (zstdCodec) Kind() Kind { return Zstd }

func (zstdCodec) Compress(data []byte) ([]byte, error) {
	e := zstdEncoderPool.Get().(*zstd.Encoder)
	defer zstdEncoderPool.Put(e)
	return e.EncodeAll(data, nil), nil
}

func (zstdCodec) Decompress(data []byte, size int) ([]byte, error) {
	if err := checkBound(Zstd, data, size); err != nil {
		return nil, err
	}
	var fh zstd.Header
	if err := fh.Decode(data); err == nil && fh.HasFCS && fh.FrameContentSize != uint64(size) {
		return nil, fmt.Errorf("%w: zstd frame says %d bytes, want %d", ErrSizeMismatch, fh.FrameContentSize, size)
	}
	d := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(d)

	out, err := d.DecodeAll(data, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return checkSize(Zstd, out, size)
}
