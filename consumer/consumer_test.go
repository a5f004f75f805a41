package consumer_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/stratum/blob"
	"github.com/hupe1980/stratum/consumer"
	"github.com/hupe1980/stratum/read"
	"github.com/hupe1980/stratum/record"
	"github.com/hupe1980/stratum/schema"
	"github.com/hupe1980/stratum/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var intSchema = schema.NewObjectSchema("Integer", schema.NewField("value", schema.FieldInt))

var errFailed = errors.New("FAILED")

type transition struct {
	to   int64
	data []byte
}

// repo is an in-memory blob repository fed by a write engine. Setting fail
// makes every Open return errFailed.
type repo struct {
	t       *testing.T
	engine  *write.Engine
	version int64

	mu        sync.Mutex
	snapshots map[int64][]byte
	deltas    map[int64]transition
	reverse   map[int64]transition

	fail   atomic.Bool
	opened atomic.Int64
}

func newRepo(t *testing.T) *repo {
	e := write.NewEngine()
	require.NoError(t, e.Register(intSchema))
	return &repo{
		t:         t,
		engine:    e,
		snapshots: map[int64][]byte{},
		deltas:    map[int64]transition{},
		reverse:   map[int64]transition{},
	}
}

// cycle publishes a new version holding values and returns it.
func (r *repo) cycle(values ...int32) int64 {
	r.engine.PrepareForNextCycle()
	for _, v := range values {
		_, err := r.engine.Add("Integer", record.NewObject(intSchema).SetInt("value", v))
		require.NoError(r.t, err)
	}
	r.engine.PrepareForWrite()

	prev := r.version
	r.version++

	r.mu.Lock()
	defer r.mu.Unlock()

	var buf bytes.Buffer
	require.NoError(r.t, r.engine.WriteSnapshot(&buf, r.version))
	r.snapshots[r.version] = buf.Bytes()
	if prev > 0 {
		var d, rd bytes.Buffer
		require.NoError(r.t, r.engine.WriteDelta(&d, prev, r.version))
		require.NoError(r.t, r.engine.WriteReverseDelta(&rd, r.version, prev))
		r.deltas[prev] = transition{to: r.version, data: d.Bytes()}
		r.reverse[r.version] = transition{to: prev, data: rd.Bytes()}
	}
	return r.version
}

func (r *repo) opener(data []byte) blob.Opener {
	return func(context.Context) (io.ReadCloser, error) {
		r.opened.Add(1)
		if r.fail.Load() {
			return nil, errFailed
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

func (r *repo) RetrieveSnapshotBlob(_ context.Context, desired int64) (*blob.Blob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	best := blob.VersionNone
	for v := range r.snapshots {
		if v <= desired && v > best {
			best = v
		}
	}
	if best == blob.VersionNone {
		return nil, nil
	}
	return blob.New(blob.Snapshot, blob.VersionNone, best, r.opener(r.snapshots[best])), nil
}

func (r *repo) RetrieveDeltaBlob(_ context.Context, current int64) (*blob.Blob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deltas[current]
	if !ok {
		return nil, nil
	}
	return blob.New(blob.Delta, current, d.to, r.opener(d.data)), nil
}

func (r *repo) RetrieveReverseDeltaBlob(_ context.Context, current int64) (*blob.Blob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.reverse[current]
	if !ok {
		return nil, nil
	}
	return blob.New(blob.ReverseDelta, current, d.to, r.opener(d.data)), nil
}

func values(t *testing.T, e *read.Engine) []int32 {
	ts, ok := e.TypeState("Integer")
	require.True(t, ok)
	var out []int32
	for o := range ts.Ordinals() {
		v, err := ts.Object(o)
		require.NoError(t, err)
		x, _ := v.Int("value")
		out = append(out, x)
	}
	return out
}

func TestConsumer_RefreshForwardAndBack(t *testing.T) {
	r := newRepo(t)
	v1 := r.cycle(1, 2)
	v2 := r.cycle(1, 2, 3)
	v3 := r.cycle(2, 3)

	c := consumer.New(r)
	assert.Equal(t, blob.VersionNone, c.CurrentVersion())

	require.NoError(t, c.RefreshTo(context.Background(), v1))
	assert.Equal(t, v1, c.CurrentVersion())
	assert.ElementsMatch(t, []int32{1, 2}, values(t, c.StateEngine()))

	require.NoError(t, c.RefreshTo(context.Background(), v3))
	assert.Equal(t, v3, c.CurrentVersion())
	assert.ElementsMatch(t, []int32{2, 3}, values(t, c.StateEngine()))

	require.NoError(t, c.RefreshTo(context.Background(), v2))
	assert.Equal(t, v2, c.CurrentVersion())
	assert.ElementsMatch(t, []int32{1, 2, 3}, values(t, c.StateEngine()))
}

func TestConsumer_RefreshToCurrentIsNoop(t *testing.T) {
	r := newRepo(t)
	v := r.cycle(1)

	c := consumer.New(r)
	require.NoError(t, c.RefreshTo(context.Background(), v))
	opened := r.opened.Load()

	require.NoError(t, c.RefreshTo(context.Background(), v))
	assert.Equal(t, opened, r.opened.Load())
}

func TestConsumer_RefreshLatestWithoutWatcher(t *testing.T) {
	r := newRepo(t)
	r.cycle(1)
	r.cycle(2)
	v3 := r.cycle(3)

	c := consumer.New(r)
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, v3, c.CurrentVersion())
}

type staticWatcher struct{ version int64 }

func (w staticWatcher) Latest(context.Context) (int64, error) { return w.version, nil }

func TestConsumer_RefreshWithWatcher(t *testing.T) {
	r := newRepo(t)
	v1 := r.cycle(1)
	r.cycle(2)

	c := consumer.New(r, consumer.WithAnnouncementWatcher(staticWatcher{version: v1}))
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, v1, c.CurrentVersion())

	c = consumer.New(r, consumer.WithAnnouncementWatcher(staticWatcher{version: blob.VersionNone}))
	err := c.Refresh(context.Background())
	assert.ErrorIs(t, err, consumer.ErrNothingAnnounced)
}

func TestConsumer_UnreachableVersion(t *testing.T) {
	r := newRepo(t)
	v1 := r.cycle(1)

	c := consumer.New(r)
	err := c.RefreshTo(context.Background(), v1+1)
	require.ErrorIs(t, err, consumer.ErrNoPath)

	var rerr *consumer.RefreshError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, blob.VersionNone, rerr.Reached)
	assert.Equal(t, v1+1, rerr.Requested)
	assert.Equal(t, blob.VersionNone, c.CurrentVersion())
	assert.Zero(t, r.opened.Load(), "no blob is fetched for an impossible plan")

	assert.ErrorIs(t, c.RefreshTo(context.Background(), blob.VersionNone), consumer.ErrInvalidVersion)
}

func TestConsumer_SnapshotFailure(t *testing.T) {
	r := newRepo(t)
	v1 := r.cycle(1)

	c := consumer.New(r)

	r.fail.Store(true)
	err := c.RefreshTo(context.Background(), v1)
	require.ErrorIs(t, err, errFailed)
	var terr *consumer.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, blob.Snapshot, terr.Kind)
	assert.Equal(t, int64(1), c.NumFailedSnapshotTransitions())

	r.fail.Store(false)
	for range 2 {
		err = c.RefreshTo(context.Background(), v1)
		require.ErrorIs(t, err, consumer.ErrKnownFailedTransition)
		assert.Equal(t, int64(1), c.NumFailedSnapshotTransitions())
	}

	v2 := r.cycle(2)
	require.NoError(t, c.RefreshTo(context.Background(), v2))
	assert.Equal(t, int64(1), c.NumFailedSnapshotTransitions())
	assert.Equal(t, v2, c.CurrentVersion())
}

func TestConsumer_DeltaFailureDoubleSnapshots(t *testing.T) {
	r := newRepo(t)
	v1 := r.cycle(1)

	l := &recorder{}
	c := consumer.New(r, consumer.WithRefreshListener(l))
	require.NoError(t, c.RefreshTo(context.Background(), v1))

	v2 := r.cycle(2)
	r.fail.Store(true)
	err := c.RefreshTo(context.Background(), v2)
	require.ErrorIs(t, err, errFailed)
	assert.Equal(t, int64(1), c.NumFailedDeltaTransitions())
	assert.Equal(t, v1, c.CurrentVersion())
	assert.ElementsMatch(t, []int32{1}, values(t, c.StateEngine()))

	r.fail.Store(false)
	retryFrom := len(l.events)
	require.NoError(t, c.RefreshTo(context.Background(), v2))
	assert.Equal(t, v2, c.CurrentVersion())
	assert.ElementsMatch(t, []int32{2}, values(t, c.StateEngine()))

	assert.Equal(t, []string{
		"started",
		"loaded snapshot(2)", "snapshot update", "snapshot applied",
		"successful",
	}, l.events[retryFrom:], "the failed delta is bridged by a snapshot")
	assert.Equal(t, int64(1), c.NumFailedDeltaTransitions())
}

func TestConsumer_FailureWithoutDoubleSnapshotRetries(t *testing.T) {
	t.Run("Snapshot", func(t *testing.T) {
		r := newRepo(t)
		v1 := r.cycle(1)
		c := consumer.New(r, consumer.WithDoubleSnapshot(false, 32))

		r.fail.Store(true)
		require.ErrorIs(t, c.RefreshTo(context.Background(), v1), errFailed)
		assert.Equal(t, int64(1), c.NumFailedSnapshotTransitions())

		r.fail.Store(false)
		require.NoError(t, c.RefreshTo(context.Background(), v1))
	})

	t.Run("Delta", func(t *testing.T) {
		r := newRepo(t)
		v1 := r.cycle(1)
		c := consumer.New(r, consumer.WithDoubleSnapshot(false, 32))
		require.NoError(t, c.RefreshTo(context.Background(), v1))

		v2 := r.cycle(2)
		r.fail.Store(true)
		require.ErrorIs(t, c.RefreshTo(context.Background(), v2), errFailed)
		assert.Equal(t, int64(1), c.NumFailedDeltaTransitions())

		r.fail.Store(false)
		require.NoError(t, c.RefreshTo(context.Background(), v2))
		assert.Equal(t, v2, c.CurrentVersion())
	})
}

func TestConsumer_MissingDeltaWithoutDoubleSnapshot(t *testing.T) {
	r := newRepo(t)
	v1 := r.cycle(1)
	c := consumer.New(r, consumer.WithDoubleSnapshot(false, 32))
	require.NoError(t, c.RefreshTo(context.Background(), v1))

	v2 := r.cycle(2)
	r.mu.Lock()
	delete(r.deltas, v1)
	r.mu.Unlock()

	require.ErrorIs(t, c.RefreshTo(context.Background(), v2), consumer.ErrNoPath)
	assert.Equal(t, v1, c.CurrentVersion())
}

// recorder logs every callback it receives.
type recorder struct {
	consumer.BaseRefreshListener
	mu     sync.Mutex
	events []string
}

func (l *recorder) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *recorder) RefreshStarted(int64, int64) consumer.Verdict {
	l.add("started")
	return consumer.Continue()
}

func (l *recorder) BlobLoaded(b *blob.Blob) consumer.Verdict {
	l.add("loaded " + b.String())
	return consumer.Continue()
}

func (l *recorder) SnapshotUpdateOccurred(*read.Engine, int64) consumer.Verdict {
	l.add("snapshot update")
	return consumer.Continue()
}

func (l *recorder) DeltaUpdateOccurred(*read.Engine, int64) consumer.Verdict {
	l.add("delta update")
	return consumer.Continue()
}

func (l *recorder) SnapshotApplied(*read.Engine, int64) consumer.Verdict {
	l.add("snapshot applied")
	return consumer.Continue()
}

func (l *recorder) DeltaApplied(*read.Engine, int64) consumer.Verdict {
	l.add("delta applied")
	return consumer.Continue()
}

func (l *recorder) RefreshSuccessful(int64, int64, int64) { l.add("successful") }

func (l *recorder) RefreshFailed(int64, int64, int64, error) { l.add("failed") }

func TestConsumer_ListenerOrder(t *testing.T) {
	r := newRepo(t)
	r.cycle(1)
	v2 := r.cycle(2)

	r.mu.Lock()
	delete(r.snapshots, v2)
	r.mu.Unlock()

	l := &recorder{}
	c := consumer.New(r, consumer.WithRefreshListener(l))
	require.NoError(t, c.RefreshTo(context.Background(), v2))

	assert.Equal(t, []string{
		"started",
		"loaded snapshot(1)", "snapshot update", "snapshot applied",
		"loaded delta(1->2)", "delta update", "delta applied",
		"successful",
	}, l.events)
}

func TestConsumer_DuplicateListenersCollapse(t *testing.T) {
	r := newRepo(t)
	v := r.cycle(1)

	l := &recorder{}
	c := consumer.New(r, consumer.WithRefreshListener(l))
	c.AddRefreshListener(l)
	require.NoError(t, c.RefreshTo(context.Background(), v))
	assert.Equal(t, 1, countOf(l.events, "started"))

	c.RemoveRefreshListener(l)
	require.NoError(t, c.RefreshTo(context.Background(), r.cycle(2)))
	assert.Equal(t, 1, countOf(l.events, "started"))
}

func countOf(events []string, e string) int {
	n := 0
	for _, x := range events {
		if x == e {
			n++
		}
	}
	return n
}

// adder registers another listener from inside a callback.
type adder struct {
	consumer.BaseRefreshListener
	c     *consumer.Consumer
	added *recorder
}

func (a *adder) RefreshStarted(int64, int64) consumer.Verdict {
	a.c.AddRefreshListener(a.added)
	return consumer.Continue()
}

func TestConsumer_ListenerAddedDuringRefreshWaits(t *testing.T) {
	r := newRepo(t)
	v1 := r.cycle(1)

	c := consumer.New(r)
	late := &recorder{}
	c.AddRefreshListener(&adder{c: c, added: late})

	require.NoError(t, c.RefreshTo(context.Background(), v1))
	assert.Empty(t, late.events)

	require.NoError(t, c.RefreshTo(context.Background(), r.cycle(2)))
	assert.Contains(t, late.events, "started")
}

type failingWatcher struct{}

func (failingWatcher) Latest(context.Context) (int64, error) { return 0, errFailed }

func TestConsumer_ResolveFailureIsReportedAfterStart(t *testing.T) {
	r := newRepo(t)
	r.cycle(1)

	l := &recorder{}
	c := consumer.New(r,
		consumer.WithRefreshListener(l),
		consumer.WithAnnouncementWatcher(failingWatcher{}),
	)
	require.ErrorIs(t, c.Refresh(context.Background()), errFailed)
	assert.Equal(t, []string{"started", "failed"}, l.events)

	l.events = nil
	require.ErrorIs(t, c.RefreshTo(context.Background(), blob.VersionNone), consumer.ErrInvalidVersion)
	assert.Equal(t, []string{"started", "failed"}, l.events)
	assert.Zero(t, r.opened.Load())
}

// gate holds the first BlobLoaded callback until release is closed and
// tracks how many BlobLoaded callbacks run at once.
type gate struct {
	consumer.BaseRefreshListener
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	inFlight atomic.Int32
	maxSeen  atomic.Int32
	loaded   atomic.Int32
}

func (g *gate) BlobLoaded(*blob.Blob) consumer.Verdict {
	n := g.inFlight.Add(1)
	for {
		m := g.maxSeen.Load()
		if n <= m || g.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	g.loaded.Add(1)
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	g.inFlight.Add(-1)
	return consumer.Continue()
}

func TestConsumer_ConcurrentRefreshesSerialize(t *testing.T) {
	r := newRepo(t)
	v1 := r.cycle(1)
	v2 := r.cycle(2)

	g := &gate{entered: make(chan struct{}), release: make(chan struct{})}
	c := consumer.New(r, consumer.WithRefreshListener(g))

	errs := make(chan error, 2)
	go func() { errs <- c.RefreshTo(context.Background(), v1) }()
	<-g.entered

	go func() { errs <- c.RefreshTo(context.Background(), v2) }()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), g.loaded.Load(), "second refresh waits for the first")
	assert.Equal(t, v1, c.CurrentVersion())

	close(g.release)
	for range 2 {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, int32(1), g.maxSeen.Load())
	assert.Equal(t, int32(2), g.loaded.Load())
	assert.Equal(t, v2, c.CurrentVersion())
	assert.ElementsMatch(t, []int32{2}, values(t, c.StateEngine()))
}

type mockListener struct {
	consumer.BaseRefreshListener
	mock.Mock
}

func (m *mockListener) RefreshStarted(current, requested int64) consumer.Verdict {
	return m.Called(current, requested).Get(0).(consumer.Verdict)
}

func (m *mockListener) RefreshFailed(before, after, requested int64, err error) {
	m.Called(before, after, requested, err)
}

func (m *mockListener) RefreshSuccessful(before, after, requested int64) {
	m.Called(before, after, requested)
}

func TestConsumer_Veto(t *testing.T) {
	r := newRepo(t)
	v1 := r.cycle(1)

	l := &mockListener{}
	l.On("RefreshStarted", blob.VersionNone, v1).Return(consumer.Veto("maintenance"))
	l.On("RefreshFailed", blob.VersionNone, blob.VersionNone, v1, mock.Anything).Return()

	c := consumer.New(r, consumer.WithRefreshListener(l))
	err := c.RefreshTo(context.Background(), v1)
	require.ErrorIs(t, err, consumer.ErrVetoed)
	assert.Contains(t, err.Error(), "maintenance")
	assert.Equal(t, blob.VersionNone, c.CurrentVersion())
	assert.Zero(t, c.NumFailedSnapshotTransitions())
	assert.Zero(t, r.opened.Load())
	l.AssertExpectations(t)
}

func TestConsumer_ListenerErrorPolicy(t *testing.T) {
	boom := errors.New("listener boom")

	t.Run("Log", func(t *testing.T) {
		r := newRepo(t)
		v1 := r.cycle(1)

		l := &mockListener{}
		l.On("RefreshStarted", blob.VersionNone, v1).Return(consumer.ListenerError(boom))
		l.On("RefreshSuccessful", blob.VersionNone, v1, v1).Return()

		c := consumer.New(r, consumer.WithRefreshListener(l))
		require.NoError(t, c.RefreshTo(context.Background(), v1))
		l.AssertExpectations(t)
	})

	t.Run("Fail", func(t *testing.T) {
		r := newRepo(t)
		v1 := r.cycle(1)

		l := &mockListener{}
		l.On("RefreshStarted", blob.VersionNone, v1).Return(consumer.ListenerError(boom))
		l.On("RefreshFailed", blob.VersionNone, blob.VersionNone, v1, mock.Anything).Return()

		c := consumer.New(r,
			consumer.WithRefreshListener(l),
			consumer.WithListenerErrorPolicy(consumer.FailOnListenerError),
		)
		require.ErrorIs(t, c.RefreshTo(context.Background(), v1), boom)
		l.AssertExpectations(t)
	})
}

type countingMetrics struct {
	refreshes   atomic.Int64
	failures    atomic.Int64
	transitions atomic.Int64
	version     atomic.Int64
}

func (m *countingMetrics) RecordRefresh(_ time.Duration, err error) {
	m.refreshes.Add(1)
	if err != nil {
		m.failures.Add(1)
	}
}

func (m *countingMetrics) RecordTransition(blob.Kind, time.Duration, error) { m.transitions.Add(1) }

func (m *countingMetrics) SetConsumerVersion(v int64) { m.version.Store(v) }

func TestConsumer_Metrics(t *testing.T) {
	r := newRepo(t)
	r.cycle(1)
	v2 := r.cycle(2)

	m := &countingMetrics{}
	c := consumer.New(r, consumer.WithMetricsCollector(m))
	require.NoError(t, c.RefreshTo(context.Background(), v2))
	require.Error(t, c.RefreshTo(context.Background(), v2+5))

	assert.Equal(t, int64(2), m.refreshes.Load())
	assert.Equal(t, int64(1), m.failures.Load())
	assert.Equal(t, int64(1), m.transitions.Load())
	assert.Equal(t, v2, m.version.Load())
}

func TestConsumer_Filter(t *testing.T) {
	r := newRepo(t)
	v1 := r.cycle(1)

	c := consumer.New(r, consumer.WithFilter(read.NewFilter(read.Exclude).AddType("Integer")))
	require.NoError(t, c.RefreshTo(context.Background(), v1))
	_, ok := c.StateEngine().TypeState("Integer")
	assert.False(t, ok)
}

type pushWatcher struct {
	staticWatcher
	ch chan int64
}

func (w *pushWatcher) Subscribe(context.Context) <-chan int64 { return w.ch }

func TestConsumer_Watch(t *testing.T) {
	r := newRepo(t)
	v1 := r.cycle(1)
	v2 := r.cycle(2)

	w := &pushWatcher{ch: make(chan int64)}
	c := consumer.New(r, consumer.WithAnnouncementWatcher(w))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()

	w.ch <- v1
	w.ch <- v2
	w.ch <- v2
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, v2, c.CurrentVersion())

	assert.ErrorIs(t, consumer.New(r).Watch(context.Background()), consumer.ErrWatchUnsupported)
}
