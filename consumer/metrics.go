package consumer

import (
	"time"

	"github.com/hupe1980/stratum/blob"
)

// MetricsCollector receives consumer measurements.
type MetricsCollector interface {
	// RecordRefresh is called once per refresh; err is nil on success.
	RecordRefresh(duration time.Duration, err error)
	// RecordTransition is called for every transition attempted.
	RecordTransition(kind blob.Kind, duration time.Duration, err error)
	// SetConsumerVersion is called whenever the current version changes.
	SetConsumerVersion(version int64)
}

type noopMetrics struct{}

func (noopMetrics) RecordRefresh(time.Duration, error)               {}
func (noopMetrics) RecordTransition(blob.Kind, time.Duration, error) {}
func (noopMetrics) SetConsumerVersion(int64)                         {}
