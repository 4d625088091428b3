// Package telemetry records voice-channel presence changes into a relational
// store. Events are buffered in memory and written in batches; a failed write
// keeps the batch and reconnects with exponential backoff.
//
// The store is abstracted by [Sink]; see the postgres and sqlite
// subpackages for implementations.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppmusicbot/ppmusicbot/internal/observe"
)

// Default writer parameters.
const (
	DefaultBatchSize   = 10
	DefaultMaxRetries  = 5
	DefaultBaseTimeout = 1 * time.Second
)

var (
	// ErrConnectionExhausted is returned when every reconnect attempt of a
	// reconnect cycle has failed.
	ErrConnectionExhausted = errors.New("telemetry: connection retries exhausted")

	// ErrClosed is returned by [Writer.Record] after [Writer.Close].
	ErrClosed = errors.New("telemetry: writer closed")
)

// VoiceEvent is one voice presence change: a user joined, left or moved
// between channels. An empty OldChannel means a join, an empty NewChannel a
// leave.
type VoiceEvent struct {
	UserID     string
	OldChannel string
	NewChannel string
	GuildID    string
	Timestamp  time.Time
}

// Sink is the external store the writer flushes into. Implementations need
// not be safe for concurrent use; the writer serializes all calls except
// Ping.
type Sink interface {
	// Connect opens (or reopens) the connection and ensures the schema
	// exists.
	Connect(ctx context.Context) error

	// InsertBatch writes all events atomically.
	InsertBatch(ctx context.Context, events []VoiceEvent) error

	// Ping checks that the connection is alive.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// State is the connection state of a [Writer].
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected

	// StateDegraded follows a failed write until a reconnect succeeds.
	StateDegraded

	// StateExhausted follows a reconnect cycle that ran out of retries. The
	// next flush starts a new cycle.
	StateExhausted

	StateClosed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateExhausted:
		return "exhausted"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config configures a [Writer].
type Config struct {
	// BatchSize is the buffer length that triggers a flush. Defaults to 10.
	BatchSize int

	// MaxRetries is the number of reconnect attempts per cycle. Defaults to 5.
	MaxRetries int

	// BaseTimeout is the wait before the first reconnect attempt. Attempt n
	// waits BaseTimeout * 2^n. Defaults to 1s.
	BaseTimeout time.Duration

	// Metrics, if set, receives flush, reconnect and buffer metrics.
	Metrics *observe.Metrics
}

// Writer buffers [VoiceEvent]s and flushes them to a [Sink] in batches.
//
// All methods are safe for concurrent use. A single mutex guards the buffer
// and state; the insert itself runs outside it on a snapshot so that events
// recorded during a flush are neither lost nor written twice.
type Writer struct {
	sink        Sink
	batchSize   int
	maxRetries  int
	baseTimeout time.Duration
	metrics     *observe.Metrics

	// sleep waits d or until ctx is done. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	buf   []VoiceEvent
	state State

	// flushMu serializes flushes, reconnects and Close.
	flushMu sync.Mutex
}

// NewWriter creates a Writer for sink. Call [Writer.Start] before recording.
func NewWriter(sink Sink, cfg Config) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseTimeout <= 0 {
		cfg.BaseTimeout = DefaultBaseTimeout
	}
	return &Writer{
		sink:        sink,
		batchSize:   cfg.BatchSize,
		maxRetries:  cfg.MaxRetries,
		baseTimeout: cfg.BaseTimeout,
		metrics:     cfg.Metrics,
		sleep:       sleepCtx,
		state:       StateDisconnected,
	}
}

// Start performs the initial connection. A failure here is returned as is
// and should abort startup.
func (w *Writer) Start(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.setState(StateConnecting)
	if err := w.sink.Connect(ctx); err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("telemetry: initial connect: %w", err)
	}
	w.setState(StateConnected)
	slog.Info("telemetry writer connected", "batch_size", w.batchSize)
	return nil
}

// State returns the current connection state.
func (w *Writer) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Buffered returns the number of events waiting to be flushed.
func (w *Writer) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf)
}

// Record appends ev to the buffer and flushes once the buffer holds at least
// BatchSize events. A flush error is returned but the events stay buffered
// for the next flush.
func (w *Writer) Record(ctx context.Context, ev VoiceEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	w.mu.Lock()
	if w.state == StateClosed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.buf = append(w.buf, ev)
	n := len(w.buf)
	w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.TelemetryBuffered.Add(ctx, 1)
	}
	if n < w.batchSize {
		return nil
	}
	return w.Flush(ctx)
}

// Flush writes every buffered event as one batch. When the last write failed
// it first runs a reconnect cycle. On failure the buffer is kept and a
// reconnect cycle runs before returning the insert error.
func (w *Writer) Flush(ctx context.Context) (err error) {
	ctx, span := observe.StartSpan(ctx, "telemetry.Flush",
		trace.WithAttributes(attribute.Int("telemetry.buffered", w.Buffered())),
	)
	defer func() {
		observe.FailSpan(span, err)
		span.End()
	}()

	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	switch w.State() {
	case StateClosed:
		return ErrClosed
	case StateDegraded, StateExhausted:
		if err := w.reconnect(ctx); err != nil {
			return err
		}
	}
	return w.flushLocked(ctx)
}

// flushLocked inserts a snapshot of the buffer. flushMu must be held.
func (w *Writer) flushLocked(ctx context.Context) error {
	w.mu.Lock()
	snapshot := append([]VoiceEvent(nil), w.buf...)
	w.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	if err := w.sink.InsertBatch(ctx, snapshot); err != nil {
		w.recordFlush(ctx, "error")
		w.setState(StateDegraded)
		slog.Warn("telemetry batch insert failed, keeping buffer",
			"events", len(snapshot),
			"err", err,
		)
		if rerr := w.reconnect(ctx); rerr != nil {
			return errors.Join(fmt.Errorf("telemetry: insert batch: %w", err), rerr)
		}
		return fmt.Errorf("telemetry: insert batch: %w", err)
	}

	// Only this goroutine removes from the buffer and it holds flushMu, so
	// the snapshot is still the buffer's prefix.
	w.mu.Lock()
	w.buf = append([]VoiceEvent(nil), w.buf[len(snapshot):]...)
	w.mu.Unlock()

	w.recordFlush(ctx, "ok")
	if w.metrics != nil {
		w.metrics.TelemetryBuffered.Add(ctx, -int64(len(snapshot)))
	}
	slog.Debug("telemetry batch flushed", "events", len(snapshot))
	return nil
}

// reconnect runs one reconnect cycle: attempt n waits baseTimeout*2^n, then
// closes and reopens the sink. flushMu must be held.
func (w *Writer) reconnect(ctx context.Context) error {
	for attempt := range w.maxRetries {
		delay := w.baseTimeout << attempt
		w.setState(StateConnecting)

		slog.Info("attempting telemetry reconnection",
			"attempt", attempt+1,
			"max_retries", w.maxRetries,
			"backoff", delay,
		)

		if err := w.sleep(ctx, delay); err != nil {
			w.setState(StateDegraded)
			w.recordReconnect(ctx, "cancelled")
			return fmt.Errorf("telemetry: reconnect: %w", err)
		}

		_ = w.sink.Close()
		err := w.sink.Connect(ctx)
		if err == nil {
			w.setState(StateConnected)
			w.recordReconnect(ctx, "ok")
			slog.Info("telemetry reconnection successful", "attempt", attempt+1)
			return nil
		}

		slog.Warn("telemetry reconnection attempt failed",
			"attempt", attempt+1,
			"err", err,
		)
	}

	w.setState(StateExhausted)
	w.recordReconnect(ctx, "exhausted")
	slog.Error("telemetry reconnection failed after max retries",
		"max_retries", w.maxRetries,
		"buffered", w.Buffered(),
	)
	return fmt.Errorf("after %d attempts: %w", w.maxRetries, ErrConnectionExhausted)
}

// Ping checks the sink connection. Used as a readiness probe.
func (w *Writer) Ping(ctx context.Context) error {
	if s := w.State(); s != StateConnected {
		return fmt.Errorf("telemetry: writer is %s", s)
	}
	return w.sink.Ping(ctx)
}

// Close makes one attempt to flush remaining events without reconnecting,
// then releases the sink. Safe to call multiple times.
func (w *Writer) Close(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	if w.state == StateClosed {
		w.mu.Unlock()
		return nil
	}
	prev := w.state
	remaining := append([]VoiceEvent(nil), w.buf...)
	w.state = StateClosed
	w.buf = nil
	w.mu.Unlock()

	var errs []error
	if len(remaining) > 0 {
		if prev != StateDisconnected {
			if err := w.sink.InsertBatch(ctx, remaining); err != nil {
				errs = append(errs, fmt.Errorf("telemetry: final flush of %d events: %w", len(remaining), err))
			} else {
				w.recordFlush(ctx, "ok")
			}
		} else {
			errs = append(errs, fmt.Errorf("telemetry: dropping %d events, writer never connected", len(remaining)))
		}
		if w.metrics != nil {
			w.metrics.TelemetryBuffered.Add(ctx, -int64(len(remaining)))
		}
	}
	if err := w.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: close sink: %w", err))
	}
	return errors.Join(errs...)
}

func (w *Writer) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Writer) recordFlush(ctx context.Context, status string) {
	if w.metrics != nil {
		w.metrics.RecordFlush(ctx, status)
	}
}

func (w *Writer) recordReconnect(ctx context.Context, status string) {
	if w.metrics != nil {
		w.metrics.RecordReconnect(ctx, status)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
