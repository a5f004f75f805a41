package producer

import (
	"time"

	"github.com/hupe1980/stratum/blob"
)

// MetricsCollector receives producer measurements.
type MetricsCollector interface {
	// RecordCycle is called once per cycle that was not skipped.
	RecordCycle(duration time.Duration, err error)
	// RecordPublish is called for every blob handed to the publisher.
	RecordPublish(kind blob.Kind, size int, duration time.Duration, err error)
	// SetProducerVersion is called after a version is announced.
	SetProducerVersion(version int64)
}

type noopMetrics struct{}

func (noopMetrics) RecordCycle(time.Duration, error)                   {}
func (noopMetrics) RecordPublish(blob.Kind, int, time.Duration, error) {}
func (noopMetrics) SetProducerVersion(int64)                           {}
