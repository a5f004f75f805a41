package announce

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hupe1980/stratum/blob"
)

// DefaultInterval is the polling interval of a PollingWatcher.
const DefaultInterval = 5 * time.Second

// PollingWatcher turns a Watcher into a push source. Each subscription
// polls on its own schedule; failed polls are retried with exponential
// backoff instead of the regular interval.
type PollingWatcher struct {
	watcher     Watcher
	interval    time.Duration
	maxInterval time.Duration
	logger      *slog.Logger
}

// PollingOption configures a PollingWatcher.
type PollingOption func(*PollingWatcher)

// WithInterval sets the delay between successful polls.
func WithInterval(d time.Duration) PollingOption {
	return func(w *PollingWatcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithMaxBackoff caps the delay between failed polls.
func WithMaxBackoff(d time.Duration) PollingOption {
	return func(w *PollingWatcher) {
		if d > 0 {
			w.maxInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) PollingOption {
	return func(w *PollingWatcher) {
		w.logger = l
	}
}

// NewPollingWatcher wraps watcher.
func NewPollingWatcher(watcher Watcher, opts ...PollingOption) *PollingWatcher {
	w := &PollingWatcher{
		watcher:     watcher,
		interval:    DefaultInterval,
		maxInterval: time.Minute,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Latest polls the wrapped watcher once.
func (w *PollingWatcher) Latest(ctx context.Context) (int64, error) {
	return w.watcher.Latest(ctx)
}

// Subscribe polls until ctx is done and sends every announced version
// that differs from the previously sent one. The first successful poll
// is always sent unless nothing was announced. A slow receiver only sees
// the newest version. The channel is closed when ctx is done.
func (w *PollingWatcher) Subscribe(ctx context.Context) <-chan int64 {
	ch := make(chan int64, 1)
	go w.poll(ctx, ch)
	return ch
}

func (w *PollingWatcher) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = min(w.interval, eb.InitialInterval)
	eb.MaxInterval = w.maxInterval
	eb.MaxElapsedTime = 0
	return eb
}

func (w *PollingWatcher) poll(ctx context.Context, ch chan int64) {
	defer close(ch)

	bo := w.newBackOff()
	last := blob.VersionNone
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		wait := w.interval
		v, err := w.watcher.Latest(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			wait = bo.NextBackOff()
			w.logger.Warn("announcement poll failed", "error", err, "retry_in", wait)
		case v != last && v != blob.VersionNone:
			bo.Reset()
			last = v
			deliver(ch, v)
			w.logger.Debug("announcement observed", "version", v)
		default:
			bo.Reset()
		}
		timer.Reset(wait)
	}
}

// deliver replaces an unread version with v.
func deliver(ch chan int64, v int64) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
