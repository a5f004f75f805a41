package stratum

import (
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/stratum/blob"
	"github.com/stretchr/testify/assert"
)

var (
	_ MetricsCollector = NoopMetricsCollector{}
	_ MetricsCollector = (*BasicMetricsCollector)(nil)
)

func TestBasicMetricsCollector(t *testing.T) {
	boom := errors.New("boom")
	m := NewBasicMetricsCollector()
	assert.Equal(t, blob.VersionNone, m.GetStats().ProducerVersion)
	assert.Equal(t, blob.VersionNone, m.GetStats().ConsumerVersion)

	m.RecordCycle(2*time.Second, nil)
	m.RecordCycle(4*time.Second, boom)
	m.RecordPublish(blob.Snapshot, 100, time.Millisecond, nil)
	m.RecordPublish(blob.Delta, 50, time.Millisecond, boom)
	m.SetProducerVersion(9)
	m.RecordRefresh(time.Second, nil)
	m.RecordTransition(blob.Snapshot, time.Second, nil)
	m.RecordTransition(blob.Delta, time.Second, nil)
	m.RecordTransition(blob.Delta, time.Second, nil)
	m.RecordTransition(blob.ReverseDelta, time.Second, boom)
	m.SetConsumerVersion(9)

	assert.Equal(t, BasicMetricsStats{
		CycleCount:       2,
		CycleErrors:      1,
		CycleAvgNanos:    (3 * time.Second).Nanoseconds(),
		PublishCount:     2,
		PublishErrors:    1,
		PublishBytes:     100,
		ProducerVersion:  9,
		RefreshCount:     1,
		RefreshAvgNanos:  time.Second.Nanoseconds(),
		SnapshotCount:    1,
		DeltaCount:       2,
		TransitionErrors: 1,
		ConsumerVersion:  9,
	}, m.GetStats())
}
