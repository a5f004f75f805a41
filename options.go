package stratum

import (
	"time"

	"github.com/hupe1980/stratum/announce"
	"github.com/hupe1980/stratum/consumer"
	"github.com/hupe1980/stratum/internal/resource"
	"github.com/hupe1980/stratum/producer"
)

type options struct {
	prefix           string
	logger           *Logger
	metricsCollector MetricsCollector
	eventLogging     bool
	resources        resource.Config
	announcer        announce.Announcer
	watcher          announce.Watcher
	pollInterval     time.Duration
	producerOptions  []producer.Option
	consumerOptions  []consumer.Option
}

// Option configures NewProducer and NewConsumer.
type Option func(*options)

func applyOptions(opts []Option) options {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		pollInterval:     announce.DefaultInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithPrefix namespaces the blobs and the announcement of a dataset
// inside a store, e.g. "movies/".
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithLogger sets the logger handed to every component.
//
// If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithEventLogging registers an EventLogger, which logs every cycle,
// publish, refresh and transition.
func WithEventLogging() Option {
	return func(o *options) {
		o.eventLogging = true
	}
}

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector(m MetricsCollector) Option {
	return func(o *options) {
		if m != nil {
			o.metricsCollector = m
		}
	}
}

// WithFetchLimits bounds how many blobs a consumer reads at once and how
// fast. Zero means unlimited.
func WithFetchLimits(maxConcurrent, bytesPerSec int64) Option {
	return func(o *options) {
		o.resources = resource.Config{
			MaxConcurrentFetches: maxConcurrent,
			IOLimitBytesPerSec:   bytesPerSec,
		}
	}
}

// WithAnnouncer replaces the default announcer, which writes an
// announcement object next to the blobs.
func WithAnnouncer(a announce.Announcer) Option {
	return func(o *options) {
		o.announcer = a
	}
}

// WithWatcher replaces the default watcher, which reads the announcement
// object next to the blobs.
func WithWatcher(w announce.Watcher) Option {
	return func(o *options) {
		o.watcher = w
	}
}

// WithPollInterval sets how often a consumer polls for announcements.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithProducerOptions passes options through to producer.New. They are
// applied after the ones derived from the other options.
func WithProducerOptions(opts ...producer.Option) Option {
	return func(o *options) {
		o.producerOptions = append(o.producerOptions, opts...)
	}
}

// WithConsumerOptions passes options through to consumer.New. They are
// applied after the ones derived from the other options.
func WithConsumerOptions(opts ...consumer.Option) Option {
	return func(o *options) {
		o.consumerOptions = append(o.consumerOptions, opts...)
	}
}
