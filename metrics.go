package stratum

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/stratum/blob"
	"github.com/hupe1980/stratum/consumer"
	"github.com/hupe1980/stratum/producer"
)

// MetricsCollector collects producer and consumer measurements.
// metrics/prometheus.Collector implements it for Prometheus.
type MetricsCollector interface {
	producer.MetricsCollector
	consumer.MetricsCollector
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCycle(time.Duration, error)                   {}
func (NoopMetricsCollector) RecordPublish(blob.Kind, int, time.Duration, error) {}
func (NoopMetricsCollector) SetProducerVersion(int64)                           {}
func (NoopMetricsCollector) RecordRefresh(time.Duration, error)                 {}
func (NoopMetricsCollector) RecordTransition(blob.Kind, time.Duration, error)   {}
func (NoopMetricsCollector) SetConsumerVersion(int64)                           {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CycleCount        atomic.Int64
	CycleErrors       atomic.Int64
	CycleTotalNanos   atomic.Int64
	PublishCount      atomic.Int64
	PublishErrors     atomic.Int64
	PublishBytes      atomic.Int64
	ProducerVersion   atomic.Int64
	RefreshCount      atomic.Int64
	RefreshErrors     atomic.Int64
	RefreshTotalNanos atomic.Int64
	SnapshotCount     atomic.Int64
	DeltaCount        atomic.Int64
	ReverseDeltaCount atomic.Int64
	TransitionErrors  atomic.Int64
	ConsumerVersion   atomic.Int64
}

// NewBasicMetricsCollector returns a collector with both versions at
// blob.VersionNone.
func NewBasicMetricsCollector() *BasicMetricsCollector {
	b := &BasicMetricsCollector{}
	b.ProducerVersion.Store(blob.VersionNone)
	b.ConsumerVersion.Store(blob.VersionNone)
	return b
}

// RecordCycle implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCycle(duration time.Duration, err error) {
	b.CycleCount.Add(1)
	b.CycleTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CycleErrors.Add(1)
	}
}

// RecordPublish implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPublish(_ blob.Kind, size int, _ time.Duration, err error) {
	b.PublishCount.Add(1)
	if err != nil {
		b.PublishErrors.Add(1)
		return
	}
	b.PublishBytes.Add(int64(size))
}

// SetProducerVersion implements MetricsCollector.
func (b *BasicMetricsCollector) SetProducerVersion(v int64) { b.ProducerVersion.Store(v) }

// RecordRefresh implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRefresh(duration time.Duration, err error) {
	b.RefreshCount.Add(1)
	b.RefreshTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RefreshErrors.Add(1)
	}
}

// RecordTransition implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTransition(kind blob.Kind, _ time.Duration, err error) {
	if err != nil {
		b.TransitionErrors.Add(1)
		return
	}
	switch kind {
	case blob.Snapshot:
		b.SnapshotCount.Add(1)
	case blob.Delta:
		b.DeltaCount.Add(1)
	case blob.ReverseDelta:
		b.ReverseDeltaCount.Add(1)
	}
}

// SetConsumerVersion implements MetricsCollector.
func (b *BasicMetricsCollector) SetConsumerVersion(v int64) { b.ConsumerVersion.Store(v) }

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CycleCount:        b.CycleCount.Load(),
		CycleErrors:       b.CycleErrors.Load(),
		CycleAvgNanos:     avg(b.CycleTotalNanos.Load(), b.CycleCount.Load()),
		PublishCount:      b.PublishCount.Load(),
		PublishErrors:     b.PublishErrors.Load(),
		PublishBytes:      b.PublishBytes.Load(),
		ProducerVersion:   b.ProducerVersion.Load(),
		RefreshCount:      b.RefreshCount.Load(),
		RefreshErrors:     b.RefreshErrors.Load(),
		RefreshAvgNanos:   avg(b.RefreshTotalNanos.Load(), b.RefreshCount.Load()),
		SnapshotCount:     b.SnapshotCount.Load(),
		DeltaCount:        b.DeltaCount.Load(),
		ReverseDeltaCount: b.ReverseDeltaCount.Load(),
		TransitionErrors:  b.TransitionErrors.Load(),
		ConsumerVersion:   b.ConsumerVersion.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CycleCount        int64
	CycleErrors       int64
	CycleAvgNanos     int64
	PublishCount      int64
	PublishErrors     int64
	PublishBytes      int64
	ProducerVersion   int64
	RefreshCount      int64
	RefreshErrors     int64
	RefreshAvgNanos   int64
	SnapshotCount     int64
	DeltaCount        int64
	ReverseDeltaCount int64
	TransitionErrors  int64
	ConsumerVersion   int64
}
