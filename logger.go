package stratum

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/stratum/blob"
	"github.com/hupe1980/stratum/consumer"
	"github.com/hupe1980/stratum/producer"
	"github.com/hupe1980/stratum/read"
)

// Logger wraps slog.Logger with stratum-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithVersion adds a version field to the logger.
func (l *Logger) WithVersion(v int64) *Logger {
	return &Logger{
		Logger: l.Logger.With("version", v),
	}
}

// WithType adds a type name field to the logger.
func (l *Logger) WithType(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("type", name),
	}
}

// WithComponent adds a component field to the logger, e.g. "producer".
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
	}
}

// LogCycle logs the outcome of a producer cycle.
func (l *Logger) LogCycle(ctx context.Context, version int64, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "cycle failed",
			"version", version,
			"duration", elapsed,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "cycle completed",
			"version", version,
			"duration", elapsed,
		)
	}
}

// LogPublish logs a blob publish.
func (l *Logger) LogPublish(ctx context.Context, kind blob.Kind, from, to int64, size int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "publish failed",
			"kind", kind.String(),
			"from", blob.FormatVersion(from),
			"to", blob.FormatVersion(to),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "blob published",
			"kind", kind.String(),
			"from", blob.FormatVersion(from),
			"to", blob.FormatVersion(to),
			"bytes", size,
		)
	}
}

// LogRefresh logs the outcome of a consumer refresh.
func (l *Logger) LogRefresh(ctx context.Context, before, after, requested int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "refresh failed",
			"before", blob.FormatVersion(before),
			"reached", blob.FormatVersion(after),
			"requested", blob.FormatVersion(requested),
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "refresh completed",
			"before", blob.FormatVersion(before),
			"after", blob.FormatVersion(after),
		)
	}
}

// LogTransition logs a consumer transition.
func (l *Logger) LogTransition(ctx context.Context, kind blob.Kind, from, to int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "transition failed",
			"kind", kind.String(),
			"from", blob.FormatVersion(from),
			"to", blob.FormatVersion(to),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "transition loaded",
			"kind", kind.String(),
			"from", blob.FormatVersion(from),
			"to", blob.FormatVersion(to),
		)
	}
}

// EventLogger logs producer and consumer events through a Logger. It
// implements producer.Listener and consumer.RefreshListener.
type EventLogger struct {
	producer.BaseListener
	consumer.BaseRefreshListener

	l *Logger
}

var (
	_ producer.Listener        = (*EventLogger)(nil)
	_ consumer.RefreshListener = (*EventLogger)(nil)
)

// NewEventLogger returns an EventLogger writing to l.
func NewEventLogger(l *Logger) *EventLogger {
	return &EventLogger{l: l}
}

// CycleSkip implements producer.Listener.
func (e *EventLogger) CycleSkip(reason producer.SkipReason) {
	e.l.Info("cycle skipped", "reason", reason.String())
}

// BlobPublished implements producer.Listener.
func (e *EventLogger) BlobPublished(kind blob.Kind, from, to int64, size int, err error) {
	e.l.LogPublish(context.Background(), kind, from, to, size, err)
}

// CycleComplete implements producer.Listener.
func (e *EventLogger) CycleComplete(version int64, _ *read.Engine, elapsed time.Duration, err error) {
	e.l.LogCycle(context.Background(), version, elapsed, err)
}

// BlobLoaded implements consumer.RefreshListener.
func (e *EventLogger) BlobLoaded(b *blob.Blob) consumer.Verdict {
	e.l.LogTransition(context.Background(), b.Kind(), b.FromVersion(), b.ToVersion(), nil)
	return consumer.Continue()
}

// RefreshSuccessful implements consumer.RefreshListener.
func (e *EventLogger) RefreshSuccessful(before, after, requested int64) {
	e.l.LogRefresh(context.Background(), before, after, requested, nil)
}

// RefreshFailed implements consumer.RefreshListener.
func (e *EventLogger) RefreshFailed(before, after, requested int64, err error) {
	ctx := context.Background()
	var te *consumer.TransitionError
	if errors.As(err, &te) {
		e.l.LogTransition(ctx, te.Kind, te.From, te.To, te.Err)
	}
	e.l.LogRefresh(ctx, before, after, requested, err)
}
