package resource

import (
	"context"
	"io"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds the limits of a Controller. Zero values mean unlimited.
type Config struct {
	// MaxConcurrentFetches bounds the blobs read at the same time.
	MaxConcurrentFetches int64
	// IOLimitBytesPerSec bounds the read throughput.
	IOLimitBytesPerSec int64
}

// Controller enforces a Config.
type Controller struct {
	cfg       Config
	fetchSem  *semaphore.Weighted
	ioLimiter *rate.Limiter

	inFlight  atomic.Int64
	bytesRead atomic.Int64
}

// NewController returns a Controller for cfg.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}
	if cfg.MaxConcurrentFetches > 0 {
		c.fetchSem = semaphore.NewWeighted(cfg.MaxConcurrentFetches)
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	return c
}

// AcquireFetch blocks until a fetch slot is free or ctx is done.
func (c *Controller) AcquireFetch(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.fetchSem != nil {
		if err := c.fetchSem.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	c.inFlight.Add(1)
	return nil
}

// TryAcquireFetch takes a fetch slot without blocking.
func (c *Controller) TryAcquireFetch() bool {
	if c == nil {
		return true
	}
	if c.fetchSem != nil && !c.fetchSem.TryAcquire(1) {
		return false
	}
	c.inFlight.Add(1)
	return true
}

// ReleaseFetch returns a slot taken by AcquireFetch or TryAcquireFetch.
func (c *Controller) ReleaseFetch() {
	if c == nil {
		return
	}
	c.inFlight.Add(-1)
	if c.fetchSem != nil {
		c.fetchSem.Release(1)
	}
}

// InFlight returns the number of fetch slots held.
func (c *Controller) InFlight() int64 {
	if c == nil {
		return 0
	}
	return c.inFlight.Load()
}

// AcquireIO waits until n bytes may be read.
func (c *Controller) AcquireIO(ctx context.Context, n int) error {
	if c == nil || n <= 0 {
		return nil
	}
	if c.ioLimiter != nil {
		// WaitN rejects requests larger than the burst.
		for burst := c.ioLimiter.Burst(); n > 0; n -= burst {
			if err := c.ioLimiter.WaitN(ctx, min(n, burst)); err != nil {
				return err
			}
		}
	}
	return nil
}

// BytesRead returns the bytes passed through rate-limited readers.
func (c *Controller) BytesRead() int64 {
	if c == nil {
		return 0
	}
	return c.bytesRead.Load()
}

// RateLimitedReader charges every read against a Controller.
type RateLimitedReader struct {
	ctx context.Context
	r   io.Reader
	c   *Controller
}

// NewRateLimitedReader wraps r.
func NewRateLimitedReader(ctx context.Context, r io.Reader, c *Controller) *RateLimitedReader {
	return &RateLimitedReader{ctx: ctx, r: r, c: c}
}

func (r *RateLimitedReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := r.r.Read(p)
	if n > 0 && r.c != nil {
		r.c.bytesRead.Add(int64(n))
		if werr := r.c.AcquireIO(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
