package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hupe1980/stratum/blob"
	"github.com/hupe1980/stratum/read"
)

// AnnouncementWatcher reports the newest announced version, or
// blob.VersionNone when nothing has been announced.
type AnnouncementWatcher interface {
	Latest(ctx context.Context) (int64, error)
}

// Subscriber is implemented by announcement watchers that push versions
// as they are announced. The channel is closed when ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context) <-chan int64
}

type options struct {
	watcher             AnnouncementWatcher
	allowDoubleSnapshot bool
	maxDeltas           int
	listeners           []RefreshListener
	logger              *slog.Logger
	metrics             MetricsCollector
	filter              *read.Filter
	policy              ListenerErrorPolicy
}

// Option configures a Consumer.
type Option func(*options)

// WithAnnouncementWatcher sets the source of the latest version for
// Refresh and Watch.
func WithAnnouncementWatcher(w AnnouncementWatcher) Option {
	return func(o *options) {
		o.watcher = w
	}
}

// WithDoubleSnapshot configures whether a loaded consumer may load a fresh
// snapshot instead of a delta chain, and the longest chain it follows
// before doing so.
func WithDoubleSnapshot(allow bool, maxDeltas int) Option {
	return func(o *options) {
		o.allowDoubleSnapshot = allow
		o.maxDeltas = maxDeltas
	}
}

// WithRefreshListener registers a listener at construction.
func WithRefreshListener(l RefreshListener) Option {
	return func(o *options) {
		o.listeners = append(o.listeners, l)
	}
}

// WithLogger sets the logger for the consumer and its read engine.
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

// WithFilter restricts the types and fields loaded into the read engine.
func WithFilter(f *read.Filter) Option {
	return func(o *options) {
		o.filter = f
	}
}

// WithListenerErrorPolicy decides how ListenerError verdicts are handled.
func WithListenerErrorPolicy(p ListenerErrorPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// Consumer keeps a read engine up to date with the versions published by
// a producer. Refreshes are serialized; readers use StateEngine
// concurrently with them.
type Consumer struct {
	opts      options
	retriever BlobRetriever
	planner   *Planner
	engine    *read.Engine
	failed    *failedTransitions
	logger    *slog.Logger
	metrics   MetricsCollector

	refreshMu sync.Mutex
	version   atomic.Int64

	failedSnapshots atomic.Int64
	failedDeltas    atomic.Int64

	listenersMu sync.Mutex
	listeners   []RefreshListener
}

// New creates a consumer that reads blobs from r.
func New(r BlobRetriever, opts ...Option) *Consumer {
	o := options{
		allowDoubleSnapshot: true,
		maxDeltas:           DefaultMaxDeltas,
		logger:              slog.New(slog.DiscardHandler),
		metrics:             noopMetrics{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Consumer{
		opts:      o,
		retriever: r,
		engine:    read.NewEngine(read.WithFilter(o.filter), read.WithLogger(o.logger)),
		logger:    o.logger,
		metrics:   o.metrics,
	}
	if o.allowDoubleSnapshot {
		c.failed = newFailedTransitions()
	}
	c.planner = NewPlanner(r, o.allowDoubleSnapshot, o.maxDeltas)
	c.planner.failed = c.failed
	c.version.Store(blob.VersionNone)
	for _, l := range o.listeners {
		c.AddRefreshListener(l)
	}
	return c
}

// StateEngine returns the read engine. Its contents change on refresh.
func (c *Consumer) StateEngine() *read.Engine { return c.engine }

// CurrentVersion returns the version loaded, or blob.VersionNone.
func (c *Consumer) CurrentVersion() int64 { return c.version.Load() }

// NumFailedSnapshotTransitions returns how many snapshot transitions failed.
func (c *Consumer) NumFailedSnapshotTransitions() int64 { return c.failedSnapshots.Load() }

// NumFailedDeltaTransitions returns how many delta and reverse delta
// transitions failed.
func (c *Consumer) NumFailedDeltaTransitions() int64 { return c.failedDeltas.Load() }

// AddRefreshListener registers l. Adding a listener twice has no effect.
// A listener added during a refresh is notified from the next refresh on.
func (c *Consumer) AddRefreshListener(l RefreshListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	for _, x := range c.listeners {
		if sameListener(x, l) {
			return
		}
	}
	c.listeners = append(c.listeners, l)
}

// RemoveRefreshListener unregisters l. A refresh in progress still
// notifies it.
func (c *Consumer) RemoveRefreshListener(l RefreshListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = slices.DeleteFunc(c.listeners, func(x RefreshListener) bool {
		return sameListener(x, l)
	})
}

func (c *Consumer) listenerSnapshot() []RefreshListener {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	return slices.Clone(c.listeners)
}

// Refresh brings the consumer to the latest version. With an announcement
// watcher that is the announced version; without one it is the newest
// version reachable through the retriever.
func (c *Consumer) Refresh(ctx context.Context) error {
	return c.RefreshTo(ctx, blob.VersionLatest)
}

// RefreshTo brings the consumer to version. An explicit version must be
// reached exactly. On error the consumer stays at the last version it
// reached and the error is a *RefreshError.
func (c *Consumer) RefreshTo(ctx context.Context, version int64) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	start := time.Now()
	before := c.CurrentVersion()
	listeners := c.listenerSnapshot()

	err := c.refresh(ctx, before, version, listeners)
	after := c.CurrentVersion()
	c.metrics.RecordRefresh(time.Since(start), err)

	if err != nil {
		rerr := &RefreshError{From: before, Reached: after, Requested: version, Err: err}
		for _, l := range listeners {
			l.RefreshFailed(before, after, version, rerr)
		}
		c.logger.Error("refresh failed",
			"from", blob.FormatVersion(before),
			"reached", blob.FormatVersion(after),
			"requested", blob.FormatVersion(version),
			"error", err,
		)
		return rerr
	}

	for _, l := range listeners {
		l.RefreshSuccessful(before, after, version)
	}
	c.logger.Info("refresh succeeded",
		"from", blob.FormatVersion(before),
		"to", blob.FormatVersion(after),
		"duration", time.Since(start),
	)
	return nil
}

func (c *Consumer) refresh(ctx context.Context, current, requested int64, listeners []RefreshListener) error {
	if err := c.notify(listeners, func(l RefreshListener) Verdict {
		return l.RefreshStarted(current, requested)
	}); err != nil {
		return err
	}

	if requested == blob.VersionNone {
		return ErrInvalidVersion
	}
	desired, exact, err := c.resolve(ctx, requested)
	if err != nil {
		return err
	}

	plan, err := c.plan(ctx, current, desired, exact)
	if err != nil {
		return err
	}
	if t := c.failed.anyIn(plan); t != nil {
		return fmt.Errorf("%w: %s", ErrKnownFailedTransition, t)
	}
	c.logger.Debug("planned refresh", "plan", plan.String())

	for _, t := range plan.Transitions() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.transition(ctx, t); err != nil {
			return err
		}
		if err := c.notifyApplied(listeners, t); err != nil {
			return err
		}
	}
	return nil
}

func (c *Consumer) plan(ctx context.Context, current, desired int64, exact bool) (*UpdatePlan, error) {
	if exact {
		return c.planner.PlanExact(ctx, current, desired)
	}
	plan, err := c.planner.Plan(ctx, current, desired)
	if err != nil {
		return nil, err
	}
	if dest := plan.DestinationVersion(current); dest == blob.VersionNone {
		return nil, fmt.Errorf("%w: %s from %s", ErrNoPath, blob.FormatVersion(desired), blob.FormatVersion(current))
	}
	return plan, nil
}

// resolve maps a requested version to a plan target and reports whether
// the target must be reached exactly.
func (c *Consumer) resolve(ctx context.Context, requested int64) (int64, bool, error) {
	if requested != blob.VersionLatest {
		return requested, true, nil
	}
	if c.opts.watcher == nil {
		return blob.VersionLatest, false, nil
	}
	latest, err := c.opts.watcher.Latest(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("read announced version: %w", err)
	}
	if latest == blob.VersionNone {
		return 0, false, ErrNothingAnnounced
	}
	return latest, true, nil
}

// transition retrieves and applies one blob. Failures are counted per kind
// and remembered when double snapshots are allowed.
func (c *Consumer) transition(ctx context.Context, t *blob.Blob) error {
	start := time.Now()
	err := c.load(ctx, t)
	c.metrics.RecordTransition(t.Kind(), time.Since(start), err)
	if err != nil {
		if t.IsSnapshot() {
			c.failedSnapshots.Add(1)
		} else {
			c.failedDeltas.Add(1)
		}
		c.failed.mark(t)
		return &TransitionError{Kind: t.Kind(), From: t.FromVersion(), To: t.ToVersion(), Err: err}
	}
	c.version.Store(t.ToVersion())
	c.metrics.SetConsumerVersion(t.ToVersion())
	return nil
}

func (c *Consumer) load(ctx context.Context, t *blob.Blob) error {
	rc, err := t.Open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	var h blob.Header
	switch t.Kind() {
	case blob.Snapshot:
		h, err = c.engine.ApplySnapshot(rc)
	case blob.Delta:
		h, err = c.engine.ApplyDelta(rc)
	case blob.ReverseDelta:
		h, err = c.engine.ApplyReverseDelta(rc)
	default:
		err = fmt.Errorf("unknown blob kind %s", t.Kind())
	}
	if err != nil {
		return err
	}
	if h.ToVersion != t.ToVersion() {
		c.logger.Warn("blob header version differs from descriptor",
			"descriptor", t.String(),
			"header_to", h.ToVersion,
		)
	}
	return nil
}

func (c *Consumer) notifyApplied(listeners []RefreshListener, t *blob.Blob) error {
	v := t.ToVersion()
	steps := []func(RefreshListener) Verdict{
		func(l RefreshListener) Verdict { return l.BlobLoaded(t) },
	}
	if t.IsSnapshot() {
		steps = append(steps,
			func(l RefreshListener) Verdict { return l.SnapshotUpdateOccurred(c.engine, v) },
			func(l RefreshListener) Verdict { return l.SnapshotApplied(c.engine, v) },
		)
	} else {
		steps = append(steps,
			func(l RefreshListener) Verdict { return l.DeltaUpdateOccurred(c.engine, v) },
			func(l RefreshListener) Verdict { return l.DeltaApplied(c.engine, v) },
		)
	}
	for _, step := range steps {
		if err := c.notify(listeners, step); err != nil {
			return err
		}
	}
	return nil
}

// notify delivers one event to every listener. A veto stops delivery.
// Listener errors are logged or collected according to the policy.
func (c *Consumer) notify(listeners []RefreshListener, fn func(RefreshListener) Verdict) error {
	var merr *multierror.Error
	for _, l := range listeners {
		v := fn(l)
		switch {
		case v.IsVeto():
			return fmt.Errorf("%w: %s", ErrVetoed, v.Reason())
		case v.IsError():
			if c.opts.policy == FailOnListenerError {
				merr = multierror.Append(merr, v.Err())
				continue
			}
			c.logger.Warn("refresh listener failed", "error", v.Err())
		}
	}
	return merr.ErrorOrNil()
}

// Watch refreshes to every version the announcement watcher delivers
// until ctx is done. Refresh failures are logged and do not stop watching.
func (c *Consumer) Watch(ctx context.Context) error {
	s, ok := c.opts.watcher.(Subscriber)
	if !ok {
		return ErrWatchUnsupported
	}
	updates := s.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v, ok := <-updates:
			if !ok {
				return ctx.Err()
			}
			if v == c.CurrentVersion() {
				continue
			}
			if err := c.RefreshTo(ctx, v); err != nil {
				c.logger.Warn("watch refresh failed", "version", v, "error", err)
			}
		}
	}
}
