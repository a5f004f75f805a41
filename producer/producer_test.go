package producer_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/stratum/announce"
	"github.com/hupe1980/stratum/blob"
	"github.com/hupe1980/stratum/blobstore"
	"github.com/hupe1980/stratum/consumer"
	"github.com/hupe1980/stratum/producer"
	"github.com/hupe1980/stratum/read"
	"github.com/hupe1980/stratum/record"
	"github.com/hupe1980/stratum/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var intSchema = schema.NewObjectSchema("Integer", schema.NewField("value", schema.FieldInt))

// counter mints 1, 2, 3, ...
func counter() producer.VersionMinter {
	var n atomic.Int64
	return producer.VersionMinterFunc(func() int64 { return n.Add(1) })
}

func populate(values ...int32) func(*producer.WriteState) error {
	return func(ws *producer.WriteState) error {
		for _, v := range values {
			if _, err := ws.Add("Integer", record.NewObject(intSchema).SetInt("value", v)); err != nil {
				return err
			}
		}
		return nil
	}
}

func values(t *testing.T, e *read.Engine) []int32 {
	t.Helper()
	ts, ok := e.TypeState("Integer")
	require.True(t, ok)
	var out []int32
	for o := range ts.Ordinals() {
		view, err := ts.Object(o)
		require.NoError(t, err)
		v, ok := view.Int("value")
		require.True(t, ok)
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

type env struct {
	store     *blobstore.MemoryStore
	catalog   *blobstore.Catalog
	announcer *announce.StoreAnnouncer
}

func newEnv() *env {
	store := blobstore.NewMemoryStore()
	return &env{
		store:     store,
		catalog:   blobstore.NewCatalog(store),
		announcer: announce.NewStoreAnnouncer(store),
	}
}

func (e *env) producer(t *testing.T, opts ...producer.Option) *producer.Producer {
	t.Helper()
	opts = append([]producer.Option{
		producer.WithPublisher(e.catalog),
		producer.WithAnnouncer(e.announcer),
		producer.WithVersionMinter(counter()),
	}, opts...)
	p := producer.New(opts...)
	require.NoError(t, p.Initialize(intSchema))
	return p
}

func (e *env) names(t *testing.T) []string {
	t.Helper()
	names, err := e.store.List(context.Background(), "")
	require.NoError(t, err)
	return names
}

func (e *env) announced(t *testing.T) int64 {
	t.Helper()
	v, err := e.announcer.Latest(context.Background())
	require.NoError(t, err)
	return v
}

// recorder logs listener events.
type recorder struct {
	producer.BaseListener

	mu     sync.Mutex
	events []string
	skips  []producer.SkipReason
	veto   error
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) CycleStart(int64) error {
	r.add("start")
	return r.veto
}

func (r *recorder) CycleSkip(reason producer.SkipReason) {
	r.mu.Lock()
	r.skips = append(r.skips, reason)
	r.mu.Unlock()
	r.add("skip")
}

func (r *recorder) PopulateComplete(int64, time.Duration, error) { r.add("populate") }

func (r *recorder) BlobPublished(kind blob.Kind, _, _ int64, _ int, _ error) {
	r.add("publish:" + kind.String())
}

func (r *recorder) ValidationComplete(int64, error)   { r.add("validate") }
func (r *recorder) AnnouncementComplete(int64, error) { r.add("announce") }

func (r *recorder) CycleComplete(_ int64, _ *read.Engine, _ time.Duration, err error) {
	if err != nil {
		r.add("complete:error")
		return
	}
	r.add("complete")
}

func (r *recorder) RestoreComplete(int64, int64, error) { r.add("restore") }

func (r *recorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

func TestProducer_FirstCycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	rec := &recorder{}
	p := e.producer(t, producer.WithListener(rec))

	assert.Equal(t, blob.VersionNone, p.Version())
	assert.Nil(t, p.ReadState())

	v, err := p.RunCycle(ctx, populate(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, int64(1), p.Version())

	assert.Equal(t, []string{"ANNOUNCED", "snapshot-1"}, e.names(t))
	assert.Equal(t, int64(1), e.announced(t))
	assert.Equal(t, []int32{1, 2, 3}, values(t, p.ReadState()))
	assert.Equal(t, p.ProducerID(), p.ReadState().HeaderTags()[producer.ProducerIDTag])
	assert.Equal(t, []string{"start", "populate", "publish:snapshot", "validate", "announce", "complete"}, rec.take())
}

func TestProducer_FirstCycleAlwaysPublishes(t *testing.T) {
	e := newEnv()
	p := e.producer(t)

	v, err := p.RunCycle(context.Background(), populate())
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	assert.Contains(t, e.names(t), "snapshot-1")
}

func TestProducer_SkipsUnchangedCycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	rec := &recorder{}
	p := e.producer(t, producer.WithListener(rec))

	_, err := p.RunCycle(ctx, populate(1, 2))
	require.NoError(t, err)
	rec.take()

	v, err := p.RunCycle(ctx, populate(2, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, []string{"ANNOUNCED", "snapshot-1"}, e.names(t))
	assert.Equal(t, []producer.SkipReason{producer.SkipNoChange}, rec.skips)
	assert.Equal(t, []string{"start", "populate", "skip", "complete"}, rec.take())

	// The version minted by the skipped cycle is not reused.
	v, err = p.RunCycle(ctx, populate(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
	assert.Contains(t, e.names(t), "delta-1-3")
}

func TestProducer_DeltasReachConsumer(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	p := e.producer(t)
	c := consumer.New(e.catalog, consumer.WithAnnouncementWatcher(e.announcer))

	_, err := p.RunCycle(ctx, populate(1, 2, 3))
	require.NoError(t, err)
	require.NoError(t, c.Refresh(ctx))
	assert.Equal(t, int64(1), c.CurrentVersion())

	_, err = p.RunCycle(ctx, populate(2, 3, 4))
	require.NoError(t, err)
	assert.Equal(t, []string{"ANNOUNCED", "delta-1-2", "reversedelta-2-1", "snapshot-1", "snapshot-2"}, e.names(t))

	require.NoError(t, c.Refresh(ctx))
	assert.Equal(t, int64(2), c.CurrentVersion())
	assert.Equal(t, []int32{2, 3, 4}, values(t, c.StateEngine()))
	assert.Equal(t, int64(0), c.NumFailedDeltaTransitions())

	require.NoError(t, c.RefreshTo(ctx, 1))
	assert.Equal(t, []int32{1, 2, 3}, values(t, c.StateEngine()))
}

func TestProducer_NumStatesBetweenSnapshots(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	p := e.producer(t, producer.WithNumStatesBetweenSnapshots(2))

	for i := int32(1); i <= 5; i++ {
		_, err := p.RunCycle(ctx, populate(i))
		require.NoError(t, err)
	}

	versions := map[string]bool{}
	for _, name := range e.names(t) {
		versions[name] = true
	}
	for _, want := range []string{"snapshot-1", "snapshot-4", "delta-1-2", "delta-3-4", "delta-4-5", "reversedelta-5-4"} {
		assert.True(t, versions[want], want)
	}
	for _, absent := range []string{"snapshot-2", "snapshot-3", "snapshot-5"} {
		assert.False(t, versions[absent], absent)
	}

	c := consumer.New(e.catalog)
	require.NoError(t, c.RefreshTo(ctx, 3))
	assert.Equal(t, []int32{3}, values(t, c.StateEngine()))
}

func TestProducer_Veto(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	rec := &recorder{}
	p := e.producer(t, producer.WithListener(rec))

	_, err := p.RunCycle(ctx, populate(1))
	require.NoError(t, err)
	rec.take()

	rec.veto = errors.New("maintenance window")
	v, err := p.RunCycle(ctx, populate(2))
	require.ErrorIs(t, err, producer.ErrVetoed)
	assert.ErrorContains(t, err, "maintenance window")
	assert.Equal(t, int64(1), v)
	assert.Equal(t, []string{"start", "complete:error"}, rec.take())
	assert.Equal(t, []string{"ANNOUNCED", "snapshot-1"}, e.names(t))

	rec.veto = nil
	v, err = p.RunCycle(ctx, populate(2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestProducer_ValidationFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	var reject atomic.Bool
	p := e.producer(t, producer.WithValidator(producer.ValidatorFunc{
		ValidatorName: "NoNegatives",
		Fn: func(_ context.Context, rs producer.ReadState) error {
			if reject.Load() {
				return errors.New("negative value")
			}
			return nil
		},
	}))
	c := consumer.New(e.catalog, consumer.WithAnnouncementWatcher(e.announcer))

	_, err := p.RunCycle(ctx, populate(1, 2, 3))
	require.NoError(t, err)
	require.NoError(t, c.Refresh(ctx))

	reject.Store(true)
	v, err := p.RunCycle(ctx, populate(-1))
	var verr *producer.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, int64(2), verr.Version)
	assert.ErrorContains(t, err, "NoNegatives: negative value")
	assert.Equal(t, int64(1), v)
	assert.Equal(t, int64(1), p.Version())
	assert.Equal(t, int64(1), e.announced(t))
	assert.Equal(t, []int32{1, 2, 3}, values(t, p.ReadState()))

	// The failed cycle's blobs stay in the store but are superseded.
	reject.Store(false)
	v, err = p.RunCycle(ctx, populate(1, 2, 3, 4))
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
	assert.Contains(t, e.names(t), "delta-1-3")

	require.NoError(t, c.Refresh(ctx))
	assert.Equal(t, int64(3), c.CurrentVersion())
	assert.Equal(t, []int32{1, 2, 3, 4}, values(t, c.StateEngine()))
}

func TestProducer_ValidatorsAggregate(t *testing.T) {
	e := newEnv()
	fail := func(name string) producer.Validator {
		return producer.ValidatorFunc{ValidatorName: name, Fn: func(context.Context, producer.ReadState) error {
			return errors.New("bad")
		}}
	}
	p := e.producer(t, producer.WithValidator(fail("A")), producer.WithValidator(fail("B")))

	_, err := p.RunCycle(context.Background(), populate(1))
	var verr *producer.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Errs.Errors, 2)
	assert.ErrorContains(t, err, "A: bad; B: bad")
	assert.Nil(t, p.ReadState())
	assert.Equal(t, blob.VersionNone, e.announced(t))
}

type flakyAnnouncer struct {
	failures atomic.Int64
	calls    atomic.Int64
	next     producer.Announcer
}

func (a *flakyAnnouncer) Announce(ctx context.Context, v int64) error {
	a.calls.Add(1)
	if a.failures.Add(-1) >= 0 {
		return errors.New("announce unavailable")
	}
	return a.next.Announce(ctx, v)
}

func TestProducer_AnnounceRetry(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	flaky := &flakyAnnouncer{next: e.announcer}
	flaky.failures.Store(2)
	p := e.producer(t, producer.WithAnnouncer(flaky), producer.WithAnnounceRetry(3, time.Millisecond))

	v, err := p.RunCycle(ctx, populate(1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, int64(3), flaky.calls.Load())
	assert.Equal(t, int64(1), e.announced(t))
}

func TestProducer_AnnounceFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	flaky := &flakyAnnouncer{next: e.announcer}
	p := e.producer(t, producer.WithAnnouncer(flaky))

	_, err := p.RunCycle(ctx, populate(1, 2))
	require.NoError(t, err)

	flaky.failures.Store(1)
	v, err := p.RunCycle(ctx, populate(5))
	require.Error(t, err)
	assert.ErrorContains(t, err, "announce 2")
	assert.Equal(t, int64(1), v)
	assert.Equal(t, []int32{1, 2}, values(t, p.ReadState()))
	assert.Equal(t, int64(1), e.announced(t))

	v, err = p.RunCycle(ctx, populate(5))
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
	assert.Equal(t, []int32{5}, values(t, p.ReadState()))
}

func TestProducer_PopulateError(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	p := e.producer(t)

	_, err := p.RunCycle(ctx, populate(1))
	require.NoError(t, err)

	boom := errors.New("source unavailable")
	v, err := p.RunCycle(ctx, func(ws *producer.WriteState) error {
		_, _ = ws.Add("Integer", record.NewObject(intSchema).SetInt("value", 99))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), v)

	// Records added by the failed populate are gone.
	v, err = p.RunCycle(ctx, populate(1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v, "unchanged after reset")
}

func TestProducer_UnknownType(t *testing.T) {
	e := newEnv()
	p := e.producer(t)
	_, err := p.RunCycle(context.Background(), func(ws *producer.WriteState) error {
		other := schema.NewObjectSchema("Other", schema.NewField("x", schema.FieldInt))
		_, err := ws.Add("Other", record.NewObject(other).SetInt("x", 1))
		return err
	})
	assert.Error(t, err)
	assert.Equal(t, blob.VersionNone, p.Version())
}

func TestProducer_WriteState(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	p := e.producer(t)

	var captured *producer.WriteState
	_, err := p.RunCycle(ctx, func(ws *producer.WriteState) error {
		captured = ws
		v, err := ws.Version()
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)

		prior, err := ws.PriorState()
		require.NoError(t, err)
		assert.Nil(t, prior)

		engine, err := ws.StateEngine()
		require.NoError(t, err)
		assert.Same(t, p.WriteEngine(), engine)
		return populate(1)(ws)
	})
	require.NoError(t, err)

	_, err = captured.Add("Integer", record.NewObject(intSchema).SetInt("value", 2))
	require.ErrorIs(t, err, producer.ErrWriteStateClosed)
	assert.EqualError(t, err, "write state operated on after the population stage of a cycle; version=1")
	_, err = captured.Version()
	assert.ErrorIs(t, err, producer.ErrWriteStateClosed)
	_, err = captured.PriorState()
	assert.ErrorIs(t, err, producer.ErrWriteStateClosed)

	_, err = p.RunCycle(ctx, func(ws *producer.WriteState) error {
		prior, err := ws.PriorState()
		require.NoError(t, err)
		require.NotNil(t, prior)
		assert.Equal(t, []int32{1}, values(t, prior))
		return populate(1, 2)(ws)
	})
	require.NoError(t, err)
}

func TestProducer_ConcurrentPopulate(t *testing.T) {
	e := newEnv()
	p := e.producer(t)

	_, err := p.RunCycle(context.Background(), func(ws *producer.WriteState) error {
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for w := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range 100 {
					if _, err := ws.Add("Integer", record.NewObject(intSchema).SetInt("value", int32(w*100+i))); err != nil {
						errs <- err
						return
					}
				}
			}()
		}
		wg.Wait()
		close(errs)
		return <-errs
	})
	require.NoError(t, err)
	assert.Len(t, values(t, p.ReadState()), 800)
}

func TestProducer_Enforcer(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	rec := &recorder{}
	p := e.producer(t, producer.WithListener(rec))

	p.Enforcer().Disable()
	v, err := p.RunCycle(ctx, populate(1))
	require.NoError(t, err)
	assert.Equal(t, blob.VersionNone, v)
	assert.Empty(t, e.names(t))
	assert.Equal(t, []producer.SkipReason{producer.SkipNotPrimary}, rec.skips)

	p.Enforcer().Enable()
	v, err = p.RunCycle(ctx, populate(1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestProducer_DisableDuringCycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	p := e.producer(t)

	v, err := p.RunCycle(ctx, func(ws *producer.WriteState) error {
		p.Enforcer().Disable()
		assert.True(t, p.Enforcer().IsPrimary(), "cycle in progress keeps running")
		return populate(1)(ws)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	assert.False(t, p.Enforcer().IsPrimary())

	v, err = p.RunCycle(ctx, populate(2))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestProducer_Restore(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	first := e.producer(t)
	for _, vals := range [][]int32{{1}, {1, 2}} {
		_, err := first.RunCycle(ctx, populate(vals...))
		require.NoError(t, err)
	}

	var n atomic.Int64
	n.Store(2)
	rec := &recorder{}
	second := producer.New(
		producer.WithPublisher(e.catalog),
		producer.WithAnnouncer(e.announcer),
		producer.WithListener(rec),
		producer.WithVersionMinter(producer.VersionMinterFunc(func() int64 { return n.Add(1) })),
	)
	require.NoError(t, second.Initialize(intSchema))
	require.NoError(t, second.Restore(ctx, 2, e.catalog))
	assert.Equal(t, int64(2), second.Version())
	assert.Equal(t, []int32{1, 2}, values(t, second.ReadState()))
	assert.Equal(t, []string{"restore"}, rec.take())

	v, err := second.RunCycle(ctx, populate(1, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), v, "restored state is unchanged")

	v, err = second.RunCycle(ctx, populate(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)
	assert.Contains(t, e.names(t), "delta-2-4")

	c := consumer.New(e.catalog)
	require.NoError(t, c.RefreshTo(ctx, 2))
	require.NoError(t, c.RefreshTo(ctx, 4))
	assert.Equal(t, []int32{1, 2, 3}, values(t, c.StateEngine()))
}

func TestProducer_RestoreMissingVersion(t *testing.T) {
	e := newEnv()
	rec := &recorder{}
	p := e.producer(t, producer.WithListener(rec))

	err := p.Restore(context.Background(), 42, e.catalog)
	require.Error(t, err)
	assert.Equal(t, blob.VersionNone, p.Version())
	assert.Equal(t, []string{"restore"}, rec.take())
}

func TestProducer_Preconditions(t *testing.T) {
	ctx := context.Background()

	p := producer.New(producer.WithPublisher(newEnv().catalog))
	_, err := p.RunCycle(ctx, populate(1))
	assert.ErrorIs(t, err, producer.ErrNotInitialized)

	p = producer.New()
	require.NoError(t, p.Initialize(intSchema))
	_, err = p.RunCycle(ctx, populate(1))
	assert.ErrorIs(t, err, producer.ErrNoPublisher)
}

func TestProducer_WithoutAnnouncer(t *testing.T) {
	e := newEnv()
	p := producer.New(producer.WithPublisher(e.catalog), producer.WithVersionMinter(counter()))
	require.NoError(t, p.Initialize(intSchema))

	v, err := p.RunCycle(context.Background(), populate(1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, []string{"snapshot-1"}, e.names(t))
}

type publishErr struct{ err error }

func (p publishErr) Publish(context.Context, blob.Kind, int64, int64, []byte) error { return p.err }

func TestProducer_PublishError(t *testing.T) {
	boom := errors.New("bucket gone")
	p := producer.New(producer.WithPublisher(publishErr{boom}), producer.WithVersionMinter(counter()))
	require.NoError(t, p.Initialize(intSchema))

	_, err := p.RunCycle(context.Background(), populate(1))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, blob.VersionNone, p.Version())
}

type fakeMetrics struct {
	mu       sync.Mutex
	cycles   int
	failed   int
	publish  map[blob.Kind]int
	version  int64
	maxBytes int
}

func (m *fakeMetrics) RecordCycle(_ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles++
	if err != nil {
		m.failed++
	}
}

func (m *fakeMetrics) RecordPublish(kind blob.Kind, size int, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publish == nil {
		m.publish = map[blob.Kind]int{}
	}
	m.publish[kind]++
	m.maxBytes = max(m.maxBytes, size)
}

func (m *fakeMetrics) SetProducerVersion(v int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version = v
}

func TestProducer_Metrics(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	m := &fakeMetrics{}
	p := e.producer(t, producer.WithMetricsCollector(m))

	for _, vals := range [][]int32{{1}, {1}, {2}} {
		_, err := p.RunCycle(ctx, populate(vals...))
		require.NoError(t, err)
	}

	assert.Equal(t, 2, m.cycles, "skipped cycles are not recorded")
	assert.Equal(t, 0, m.failed)
	assert.Equal(t, map[blob.Kind]int{blob.Snapshot: 2, blob.Delta: 1, blob.ReverseDelta: 1}, m.publish)
	assert.Equal(t, int64(3), m.version)
	assert.Positive(t, m.maxBytes)
}
