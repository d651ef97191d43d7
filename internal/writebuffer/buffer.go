// Package writebuffer implements C4: a per-entity coalescing buffer in
// front of an adaptive backpressure semaphore. Cloud backends always
// route writes through the buffer; local and in-memory backends bypass
// it and write through immediately (the "smart batching switch").
package writebuffer

import (
	"context"
	"sync"
	"time"

	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// FlushFunc persists a coalesced batch, keyed by entity id.
type FlushFunc[V any] func(ctx context.Context, batch map[string]V) error

// Buffer coalesces writes per entity id (last-write-wins) and flushes
// them through an AdaptiveSemaphore-guarded FlushFunc with retry on
// throttling.
type Buffer[V any] struct {
	mu      sync.Mutex
	pending map[string]V
	timer   *time.Timer
	closed  bool

	cfg          Config
	flush        FlushFunc[V]
	backpressure *AdaptiveSemaphore
	isCloud      bool
	retryCfg     xerrors.RetryConfig
}

// New creates a Buffer. isCloud determines whether Add coalesces writes
// (true) or bypasses straight to a single-entry flush (false), per
// spec's smart batching switch.
func New[V any](cfg Config, isCloud bool, flush FlushFunc[V]) *Buffer[V] {
	return &Buffer[V]{
		pending:      make(map[string]V),
		cfg:          cfg,
		flush:        flush,
		isCloud:      isCloud,
		backpressure: NewAdaptiveSemaphore(cfg.MaxConcurrent, cfg.MinConcurrent, cfg.ErrorThreshold, cfg.CooldownSuccesses, cfg.WindowSize),
		retryCfg:     xerrors.DefaultRetryConfig(),
	}
}

// Add submits value for id. On a cloud backend this replaces any
// pending value for the same id and returns once coalesced (or once a
// size-triggered flush completes); on a non-cloud backend it writes
// through immediately.
func (b *Buffer[V]) Add(ctx context.Context, id string, value V) error {
	if !b.isCloud {
		return b.writeThrough(ctx, id, value)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return xerrors.New(xerrors.Internal, "write buffer is closed")
	}
	b.pending[id] = value
	shouldFlush := len(b.pending) >= b.cfg.MaxBufferSize
	if b.timer == nil && b.cfg.FlushInterval > 0 {
		b.timer = time.AfterFunc(b.cfg.FlushInterval, func() {
			_ = b.Flush(context.Background())
		})
	}
	b.mu.Unlock()

	if shouldFlush {
		return b.Flush(ctx)
	}
	return nil
}

// writeThrough bypasses coalescing for non-cloud backends, still going
// through the backpressure semaphore and retry policy.
func (b *Buffer[V]) writeThrough(ctx context.Context, id string, value V) error {
	if err := b.backpressure.Acquire(ctx); err != nil {
		return err
	}
	defer b.backpressure.Release()

	err := xerrors.Retry(ctx, b.retryCfg, func() error {
		return b.flush(ctx, map[string]V{id: value})
	})
	b.backpressure.RecordResult(err == nil)
	return err
}

// Flush persists every currently pending value and clears the buffer.
// It either completes or returns a flush error; there is no partial
// cancellation path once a batch has been swapped out of pending.
func (b *Buffer[V]) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := b.pending
	b.pending = make(map[string]V)
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	if err := b.backpressure.Acquire(ctx); err != nil {
		return err
	}
	defer b.backpressure.Release()

	err := xerrors.Retry(ctx, b.retryCfg, func() error {
		return b.flush(ctx, batch)
	})
	b.backpressure.RecordResult(err == nil)
	return err
}

// Close flushes any remaining pending values and marks the buffer
// closed; further Add calls fail.
func (b *Buffer[V]) Close(ctx context.Context) error {
	err := b.Flush(ctx)
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return err
}

// PendingCount reports how many distinct ids are currently buffered.
func (b *Buffer[V]) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
