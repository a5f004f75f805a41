package producer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/hupe1980/stratum/blob"
	"github.com/hupe1980/stratum/compress"
	"github.com/hupe1980/stratum/consumer"
	"github.com/hupe1980/stratum/read"
	"github.com/hupe1980/stratum/schema"
	"github.com/hupe1980/stratum/write"
)

// ProducerIDTag is the header tag carrying the id of the producer that
// wrote a blob.
const ProducerIDTag = "stratum.producer.id"

// BlobPublisher stores the blobs of a cycle.
type BlobPublisher interface {
	Publish(ctx context.Context, kind blob.Kind, from, to int64, data []byte) error
}

// Announcer makes a version visible to consumers.
type Announcer interface {
	Announce(ctx context.Context, version int64) error
}

type options struct {
	publisher                 BlobPublisher
	announcer                 Announcer
	minter                    VersionMinter
	numStatesBetweenSnapshots int
	validators                []Validator
	listeners                 []Listener
	logger                    *slog.Logger
	metrics                   MetricsCollector
	targetMaxShardSize        int64
	compression               compress.Kind
	enforcer                  SingleProducerEnforcer
	announceRetries           uint64
	announceInterval          time.Duration
}

// Option configures a Producer.
type Option func(*options)

// WithPublisher sets where blobs are stored.
func WithPublisher(p BlobPublisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithAnnouncer sets how versions are announced. Without one, versions
// are published but never announced.
func WithAnnouncer(a Announcer) Option {
	return func(o *options) {
		o.announcer = a
	}
}

// WithAnnounceRetry retries a failed announcement up to maxRetries times
// with exponential backoff starting at initial.
func WithAnnounceRetry(maxRetries uint64, initial time.Duration) Option {
	return func(o *options) {
		o.announceRetries = maxRetries
		if initial > 0 {
			o.announceInterval = initial
		}
	}
}

// WithVersionMinter sets the source of versions.
func WithVersionMinter(m VersionMinter) Option {
	return func(o *options) {
		if m != nil {
			o.minter = m
		}
	}
}

// WithNumStatesBetweenSnapshots writes a snapshot only every n+1 versions.
// Zero, the default, writes a snapshot for every version.
func WithNumStatesBetweenSnapshots(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.numStatesBetweenSnapshots = n
		}
	}
}

// WithValidator adds a validator run before every announcement.
func WithValidator(v Validator) Option {
	return func(o *options) {
		o.validators = append(o.validators, v)
	}
}

// WithListener adds a cycle listener.
func WithListener(l Listener) Option {
	return func(o *options) {
		o.listeners = append(o.listeners, l)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector(m MetricsCollector) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTargetMaxShardSize sets the shard size target of the write engine.
func WithTargetMaxShardSize(n int64) Option {
	return func(o *options) {
		o.targetMaxShardSize = n
	}
}

// WithCompression sets the codec used for blob bodies.
func WithCompression(k compress.Kind) Option {
	return func(o *options) {
		o.compression = k
	}
}

// WithSingleProducerEnforcer sets the enforcer consulted before each
// cycle. If it also implements Listener it receives cycle events.
func WithSingleProducerEnforcer(e SingleProducerEnforcer) Option {
	return func(o *options) {
		o.enforcer = e
	}
}

// Producer runs cycles that turn a populated write engine into published
// and announced versions.
type Producer struct {
	opts    options
	id      string
	engine  *write.Engine
	logger  *slog.Logger
	metrics MetricsCollector

	mu                  sync.Mutex
	initialized         bool
	version             int64
	state               *read.Engine
	statesSinceSnapshot int

	listenersMu sync.Mutex
	listeners   []Listener
}

// New returns a producer with a fresh write engine.
func New(opts ...Option) *Producer {
	o := options{
		minter:           NewTimeMinter(),
		logger:           slog.New(slog.DiscardHandler),
		metrics:          noopMetrics{},
		enforcer:         NewBasicSingleProducerEnforcer(),
		announceInterval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.NewString()
	wopts := []write.Option{
		write.WithLogger(o.logger),
		write.WithCompression(o.compression),
		write.WithHeaderTag(ProducerIDTag, id),
	}
	if o.targetMaxShardSize > 0 {
		wopts = append(wopts, write.WithTargetMaxShardSize(o.targetMaxShardSize))
	}

	p := &Producer{
		opts:    o,
		id:      id,
		engine:  write.NewEngine(wopts...),
		logger:  o.logger.With("producer_id", id),
		metrics: o.metrics,
		version: blob.VersionNone,
	}
	if l, ok := o.enforcer.(Listener); ok {
		p.listeners = append(p.listeners, l)
	}
	p.listeners = append(p.listeners, o.listeners...)
	return p
}

// ProducerID returns the random id stamped on every blob of this producer.
func (p *Producer) ProducerID() string { return p.id }

// Version returns the last announced version, or blob.VersionNone.
func (p *Producer) Version() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

// WriteEngine returns the underlying write engine.
func (p *Producer) WriteEngine() *write.Engine { return p.engine }

// ReadState returns the state of the last announced version, or nil.
func (p *Producer) ReadState() *read.Engine {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Enforcer returns the single producer enforcer.
func (p *Producer) Enforcer() SingleProducerEnforcer { return p.opts.enforcer }

// AddListener registers a cycle listener.
func (p *Producer) AddListener(l Listener) {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	p.listeners = append(p.listeners, l)
}

func (p *Producer) listenerSnapshot() []Listener {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	return append([]Listener(nil), p.listeners...)
}

// Initialize registers the data model.
func (p *Producer) Initialize(schemas ...schema.Schema) error {
	if err := p.engine.Register(schemas...); err != nil {
		return err
	}
	p.mu.Lock()
	p.initialized = true
	p.mu.Unlock()
	p.logger.Info("producer initialized", "types", len(schemas))
	return nil
}

// Restore brings the producer to version as published through r, so that
// the next cycle produces a delta from it.
func (p *Producer) Restore(ctx context.Context, version int64, r consumer.BlobRetriever) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	listeners := p.listenerSnapshot()
	c := consumer.New(r, consumer.WithLogger(p.logger))
	err := c.RefreshTo(ctx, version)
	if err == nil {
		err = p.engine.RestoreFrom(c.StateEngine())
	}
	reached := c.CurrentVersion()
	for _, l := range listeners {
		l.RestoreComplete(version, reached, err)
	}
	if err != nil {
		return fmt.Errorf("restore to %s: %w", blob.FormatVersion(version), err)
	}

	p.version = version
	p.state = c.StateEngine()
	p.statesSinceSnapshot = 0
	if m, ok := p.opts.minter.(*TimeMinter); ok {
		m.Observe(version)
	}
	p.logger.Info("producer restored", "version", version)
	return nil
}

type artifact struct {
	kind     blob.Kind
	from, to int64
	data     []byte
}

// RunCycle runs one cycle: populate, publish, validate and announce. It
// returns the version that is current when the cycle ends, which is the
// previous version when the cycle is skipped.
func (p *Producer) RunCycle(ctx context.Context, populate func(*WriteState) error) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return p.version, ErrNotInitialized
	}
	if p.opts.publisher == nil {
		return p.version, ErrNoPublisher
	}
	listeners := p.listenerSnapshot()
	if !p.opts.enforcer.IsPrimary() {
		p.logger.Info("cycle skipped", "reason", SkipNotPrimary.String())
		for _, l := range listeners {
			l.CycleSkip(SkipNotPrimary)
		}
		return p.version, nil
	}

	start := time.Now()
	toVersion := p.opts.minter.Mint()
	var vetoErr *multierror.Error
	for _, l := range listeners {
		if err := l.CycleStart(toVersion); err != nil {
			vetoErr = multierror.Append(vetoErr, err)
		}
	}

	skipped := false
	var state *read.Engine
	err := vetoErr.ErrorOrNil()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrVetoed, err)
	} else {
		state, skipped, err = p.cycle(ctx, toVersion, populate, listeners)
	}

	elapsed := time.Since(start)
	if skipped {
		for _, l := range listeners {
			l.CycleComplete(p.version, p.state, elapsed, nil)
		}
		return p.version, nil
	}
	p.metrics.RecordCycle(elapsed, err)
	if err != nil {
		p.logger.Error("cycle failed", "version", toVersion, "error", err)
		for _, l := range listeners {
			l.CycleComplete(toVersion, p.state, elapsed, err)
		}
		return p.version, err
	}

	p.version = toVersion
	p.state = state
	p.metrics.SetProducerVersion(toVersion)
	p.logger.Info("cycle complete", "version", toVersion, "duration", elapsed)
	for _, l := range listeners {
		l.CycleComplete(toVersion, state, elapsed, nil)
	}
	return toVersion, nil
}

// cycle runs the stages after the cycle start. On error the write engine
// is returned to the previous version.
func (p *Producer) cycle(ctx context.Context, toVersion int64, populate func(*WriteState) error, listeners []Listener) (_ *read.Engine, skipped bool, err error) {
	p.engine.PrepareForNextCycle()
	defer func() {
		if err != nil {
			p.engine.ResetToLastPrepare()
		}
	}()

	popStart := time.Now()
	ws := newWriteState(p.engine, toVersion, p.state)
	err = populate(ws)
	ws.close()
	for _, l := range listeners {
		l.PopulateComplete(toVersion, time.Since(popStart), err)
	}
	if err != nil {
		return nil, false, fmt.Errorf("populate: %w", err)
	}

	if p.version != blob.VersionNone && !p.engine.HasChangedSinceLastCycle() {
		p.engine.ResetToLastPrepare()
		p.logger.Info("cycle skipped", "reason", SkipNoChange.String())
		for _, l := range listeners {
			l.CycleSkip(SkipNoChange)
		}
		return nil, true, nil
	}
	p.engine.PrepareForWrite()

	arts, err := p.writeArtifacts(toVersion)
	if err != nil {
		return nil, false, err
	}
	if err := p.publish(ctx, arts, listeners); err != nil {
		return nil, false, err
	}

	state, rollback, err := p.stage(arts)
	if err != nil {
		return nil, false, err
	}

	err = p.validate(ctx, ReadState{Version: toVersion, Engine: state})
	for _, l := range listeners {
		l.ValidationComplete(toVersion, err)
	}
	if err != nil {
		rollback()
		return nil, false, err
	}

	err = p.announce(ctx, toVersion)
	for _, l := range listeners {
		l.AnnouncementComplete(toVersion, err)
	}
	if err != nil {
		rollback()
		return nil, false, fmt.Errorf("announce %d: %w", toVersion, err)
	}

	if hasKind(arts, blob.Snapshot) {
		p.statesSinceSnapshot = 0
	} else {
		p.statesSinceSnapshot++
	}
	return state, false, nil
}

func (p *Producer) snapshotDue() bool {
	return p.state == nil ||
		p.opts.numStatesBetweenSnapshots == 0 ||
		p.statesSinceSnapshot >= p.opts.numStatesBetweenSnapshots
}

func (p *Producer) writeArtifacts(to int64) ([]artifact, error) {
	var arts []artifact
	if p.snapshotDue() {
		var buf bytes.Buffer
		if err := p.engine.WriteSnapshot(&buf, to); err != nil {
			return nil, fmt.Errorf("write snapshot %d: %w", to, err)
		}
		arts = append(arts, artifact{kind: blob.Snapshot, from: blob.VersionNone, to: to, data: buf.Bytes()})
	}
	if p.version != blob.VersionNone {
		var d, rd bytes.Buffer
		if err := p.engine.WriteDelta(&d, p.version, to); err != nil {
			return nil, fmt.Errorf("write delta %d->%d: %w", p.version, to, err)
		}
		if err := p.engine.WriteReverseDelta(&rd, to, p.version); err != nil {
			return nil, fmt.Errorf("write reverse delta %d->%d: %w", to, p.version, err)
		}
		arts = append(arts,
			artifact{kind: blob.Delta, from: p.version, to: to, data: d.Bytes()},
			artifact{kind: blob.ReverseDelta, from: to, to: p.version, data: rd.Bytes()},
		)
	}
	return arts, nil
}

func (p *Producer) publish(ctx context.Context, arts []artifact, listeners []Listener) error {
	for _, a := range arts {
		start := time.Now()
		err := p.opts.publisher.Publish(ctx, a.kind, a.from, a.to, a.data)
		p.metrics.RecordPublish(a.kind, len(a.data), time.Since(start), err)
		for _, l := range listeners {
			l.BlobPublished(a.kind, a.from, a.to, len(a.data), err)
		}
		if err != nil {
			return fmt.Errorf("publish %s: %w", a.kind, err)
		}
		p.logger.Debug("published blob", "kind", a.kind.String(), "from", a.from, "to", a.to, "bytes", len(a.data))
	}
	return nil
}

// stage brings a read engine to the new state. With a prior state the
// delta is applied to it and, when a snapshot was also written, the result
// is checked against the snapshot. The returned rollback undoes the delta.
func (p *Producer) stage(arts []artifact) (*read.Engine, func(), error) {
	snap := find(arts, blob.Snapshot)
	if p.state == nil {
		e := read.NewEngine(read.WithLogger(p.logger))
		if _, err := e.ApplySnapshot(bytes.NewReader(snap.data)); err != nil {
			return nil, nil, fmt.Errorf("load snapshot: %w", err)
		}
		return e, func() {}, nil
	}

	delta, reverse := find(arts, blob.Delta), find(arts, blob.ReverseDelta)
	if _, err := p.state.ApplyDelta(bytes.NewReader(delta.data)); err != nil {
		return nil, nil, fmt.Errorf("apply delta: %w", err)
	}
	rollback := func() {
		if _, err := p.state.ApplyReverseDelta(bytes.NewReader(reverse.data)); err != nil {
			p.logger.Error("reverse delta failed, next cycle writes a snapshot", "error", err)
			p.state = nil
		}
	}
	if snap != nil {
		check := read.NewEngine()
		if _, err := check.ApplySnapshot(bytes.NewReader(snap.data)); err != nil {
			rollback()
			return nil, nil, fmt.Errorf("load snapshot: %w", err)
		}
		if err := checkIntegrity(p.state, check); err != nil {
			rollback()
			return nil, nil, err
		}
	}
	return p.state, rollback, nil
}

func (p *Producer) validate(ctx context.Context, rs ReadState) error {
	var merr *multierror.Error
	for _, v := range p.opts.validators {
		if err := v.Validate(ctx, rs); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", v.Name(), err))
		}
	}
	if merr == nil {
		return nil
	}
	return &ValidationError{Version: rs.Version, Errs: merr}
}

func (p *Producer) announce(ctx context.Context, version int64) error {
	if p.opts.announcer == nil {
		return nil
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.opts.announceInterval
	b := backoff.WithContext(backoff.WithMaxRetries(eb, p.opts.announceRetries), ctx)
	return backoff.Retry(func() error {
		return p.opts.announcer.Announce(ctx, version)
	}, b)
}

func find(arts []artifact, k blob.Kind) *artifact {
	for i := range arts {
		if arts[i].kind == k {
			return &arts[i]
		}
	}
	return nil
}

func hasKind(arts []artifact, k blob.Kind) bool { return find(arts, k) != nil }
