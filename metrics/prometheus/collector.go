package prometheus

import (
	"time"

	"github.com/hupe1980/stratum/blob"
	"github.com/hupe1980/stratum/consumer"
	"github.com/hupe1980/stratum/producer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	_ consumer.MetricsCollector = (*Collector)(nil)
	_ producer.MetricsCollector = (*Collector)(nil)
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "stratum"

type options struct {
	namespace   string
	constLabels prometheus.Labels
	buckets     []float64
}

// Option configures a Collector.
type Option func(*options)

// WithNamespace replaces DefaultNamespace.
func WithNamespace(ns string) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// WithConstLabels adds labels to every metric, e.g. the dataset name.
func WithConstLabels(l prometheus.Labels) Option {
	return func(o *options) {
		o.constLabels = l
	}
}

// WithBuckets sets the histogram buckets, in seconds.
func WithBuckets(b []float64) Option {
	return func(o *options) {
		if len(b) > 0 {
			o.buckets = b
		}
	}
}

// Collector exports producer and consumer measurements. One Collector can
// serve a producer and a consumer in the same process.
type Collector struct {
	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	publishes       *prometheus.CounterVec
	publishBytes    *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
	producerVersion prometheus.Gauge

	refreshes          *prometheus.CounterVec
	refreshDuration    prometheus.Histogram
	transitions        *prometheus.CounterVec
	transitionDuration *prometheus.HistogramVec
	consumerVersion    prometheus.Gauge
}

// New registers the metrics on reg. A nil reg registers nothing, which is
// useful in tests.
func New(reg prometheus.Registerer, opts ...Option) *Collector {
	o := options{
		namespace: DefaultNamespace,
		buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}
	for _, opt := range opts {
		opt(&o)
	}
	f := promauto.With(reg)

	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: o.constLabels,
		}, labels)
	}
	histogram := func(subsystem, name, help string) prometheus.HistogramOpts {
		return prometheus.HistogramOpts{
			Namespace:   o.namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: o.constLabels,
			Buckets:     o.buckets,
		}
	}
	gauge := func(subsystem, name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{
			Namespace:   o.namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: o.constLabels,
		})
	}

	return &Collector{
		cycles:          counter("producer", "cycles_total", "Producer cycles that were not skipped.", "result"),
		cycleDuration:   f.NewHistogram(histogram("producer", "cycle_duration_seconds", "Duration of producer cycles.")),
		publishes:       counter("producer", "blobs_published_total", "Blobs handed to the publisher.", "kind", "result"),
		publishBytes:    counter("producer", "blob_bytes_published_total", "Bytes of successfully published blobs.", "kind"),
		publishDuration: f.NewHistogramVec(histogram("producer", "publish_duration_seconds", "Duration of blob publishes."), []string{"kind"}),
		producerVersion: gauge("producer", "version", "Last version announced by the producer."),

		refreshes:          counter("consumer", "refreshes_total", "Consumer refreshes.", "result"),
		refreshDuration:    f.NewHistogram(histogram("consumer", "refresh_duration_seconds", "Duration of consumer refreshes.")),
		transitions:        counter("consumer", "transitions_total", "Transitions applied by the consumer.", "kind", "result"),
		transitionDuration: f.NewHistogramVec(histogram("consumer", "transition_duration_seconds", "Duration of applying a transition."), []string{"kind"}),
		consumerVersion:    gauge("consumer", "version", "Version the consumer is at."),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordCycle implements producer.MetricsCollector.
func (c *Collector) RecordCycle(d time.Duration, err error) {
	c.cycles.WithLabelValues(result(err)).Inc()
	c.cycleDuration.Observe(d.Seconds())
}

// RecordPublish implements producer.MetricsCollector.
func (c *Collector) RecordPublish(kind blob.Kind, size int, d time.Duration, err error) {
	c.publishes.WithLabelValues(kind.String(), result(err)).Inc()
	c.publishDuration.WithLabelValues(kind.String()).Observe(d.Seconds())
	if err == nil {
		c.publishBytes.WithLabelValues(kind.String()).Add(float64(size))
	}
}

// SetProducerVersion implements producer.MetricsCollector.
func (c *Collector) SetProducerVersion(v int64) { c.producerVersion.Set(float64(v)) }

// RecordRefresh implements consumer.MetricsCollector.
func (c *Collector) RecordRefresh(d time.Duration, err error) {
	c.refreshes.WithLabelValues(result(err)).Inc()
	c.refreshDuration.Observe(d.Seconds())
}

// RecordTransition implements consumer.MetricsCollector.
func (c *Collector) RecordTransition(kind blob.Kind, d time.Duration, err error) {
	c.transitions.WithLabelValues(kind.String(), result(err)).Inc()
	c.transitionDuration.WithLabelValues(kind.String()).Observe(d.Seconds())
}

// SetConsumerVersion implements consumer.MetricsCollector.
func (c *Collector) SetConsumerVersion(v int64) { c.consumerVersion.Set(float64(v)) }
