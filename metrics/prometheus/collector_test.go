package prometheus

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/stratum/blob"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Producer(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.RecordCycle(time.Second, nil)
	c.RecordCycle(time.Second, errors.New("boom"))
	c.RecordPublish(blob.Snapshot, 100, time.Millisecond, nil)
	c.RecordPublish(blob.Delta, 10, time.Millisecond, nil)
	c.RecordPublish(blob.Delta, 10, time.Millisecond, errors.New("boom"))
	c.SetProducerVersion(1_700_000_000_123)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.cycles.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cycles.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.publishes.WithLabelValues("delta", "error")))
	assert.Equal(t, 100.0, testutil.ToFloat64(c.publishBytes.WithLabelValues("snapshot")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.publishBytes.WithLabelValues("delta")), "failed publishes carry no bytes")
	assert.Equal(t, 1_700_000_000_123.0, testutil.ToFloat64(c.producerVersion))

	expected := `
# HELP stratum_producer_cycles_total Producer cycles that were not skipped.
# TYPE stratum_producer_cycles_total counter
stratum_producer_cycles_total{result="error"} 1
stratum_producer_cycles_total{result="success"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "stratum_producer_cycles_total"))
}

func TestCollector_Consumer(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, WithNamespace("movies"), WithConstLabels(prometheus.Labels{"region": "eu"}))

	c.RecordRefresh(time.Second, nil)
	c.RecordTransition(blob.Snapshot, time.Second, nil)
	c.RecordTransition(blob.Delta, time.Second, errors.New("corrupt"))
	c.RecordTransition(blob.ReverseDelta, time.Second, nil)
	c.SetConsumerVersion(42)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.refreshes.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("delta", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("reversedelta", "success")))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.consumerVersion))

	expected := `
# HELP movies_consumer_version Version the consumer is at.
# TYPE movies_consumer_version gauge
movies_consumer_version{region="eu"} 42
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "movies_consumer_version"))
	assert.Equal(t, 3, testutil.CollectAndCount(c.transitionDuration))
}

func TestCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
	assert.NotPanics(t, func() { New(reg, WithNamespace("other")) })
}

func TestCollector_NilRegisterer(t *testing.T) {
	c := New(nil, WithBuckets([]float64{0.1, 1}))
	c.RecordRefresh(time.Millisecond, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.refreshes.WithLabelValues("success")))
}
