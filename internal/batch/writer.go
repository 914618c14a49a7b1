// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eventledger/eventledger/internal/logging"
	"github.com/eventledger/eventledger/internal/metrics"
)

// flushTimeout bounds a single detached flush so a hung store cannot pin
// a flush goroutine forever.
const flushTimeout = 30 * time.Second

// Executor commits a batch of same-category records in one transaction.
// Either every record in the batch is persisted or none is.
type Executor interface {
	ExecuteBatch(ctx context.Context, category Category, records []WriteRecord) error
}

// Config holds the writer's tuning knobs. See config.BatchConfig for the
// file/env-facing representation.
type Config struct {
	// Enabled selects the coalescing path. When false every record is
	// written directly in its own transaction.
	Enabled bool

	// BatchSize is the per-transaction record count and the size trigger.
	BatchSize int

	// FlushInterval is the maximum age of a buffered record before the
	// scheduler flushes its category.
	FlushInterval time.Duration

	// MaxBufferSize caps each category buffer. An enqueue that finds the
	// buffer full forces a synchronous flush before the record is accepted.
	MaxBufferSize int

	// MaxRetries is the number of re-attempts after a failed flush before
	// the remaining records are dropped.
	MaxRetries int

	// ShutdownTimeout bounds the final drain.
	ShutdownTimeout time.Duration
}

func (c Config) validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive, got %s", c.FlushInterval)
	}
	if c.MaxBufferSize <= c.BatchSize {
		return fmt.Errorf("max buffer size %d must exceed batch size %d", c.MaxBufferSize, c.BatchSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}

// Writer coalesces single-record writes into batched transactions.
//
// Records enter through the typed Record* methods and land in a per-category
// FIFO buffer. A size trigger flushes asynchronously as soon as a buffer
// holds a full batch; the Scheduler handles the time trigger; a full buffer
// forces a synchronous flush on the enqueueing caller.
type Writer struct {
	cfg       Config
	exec      Executor
	collector *Collector

	buffers [numCategories]*CategoryBuffer

	// flushMu serializes flushes per category so at most one take-and-commit
	// is in progress for a category at any instant.
	flushMu        [numCategories]sync.Mutex
	flushScheduled [numCategories]atomic.Bool
	lastFlush      [numCategories]atomic.Int64 // unix nanos

	// attempts counts consecutive failed flushes per category. Guarded by
	// the category's flushMu.
	attempts [numCategories]int

	closed  atomic.Bool
	flushWg sync.WaitGroup
}

// NewWriter creates a writer flushing to exec.
func NewWriter(exec Executor, cfg Config) (*Writer, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid batch config: %w", err)
	}

	w := &Writer{
		cfg:       cfg,
		exec:      exec,
		collector: NewCollector(),
	}
	now := time.Now().UnixNano()
	for _, cat := range Categories() {
		w.buffers[cat] = NewCategoryBuffer(cfg.MaxBufferSize)
		w.lastFlush[cat].Store(now)
	}
	return w, nil
}

// RecordMessage buffers a published message.
func (w *Writer) RecordMessage(ctx context.Context, topic, messageID, message, producer string, ts time.Time) error {
	return w.record(ctx, CategoryMessage, []any{topic, messageID, message, producer, ts})
}

// RecordConsumption buffers a delivery acknowledgment.
func (w *Writer) RecordConsumption(ctx context.Context, consumer, topic, messageID, message string, ts time.Time) error {
	return w.record(ctx, CategoryConsumption, []any{consumer, topic, messageID, message, ts})
}

// RecordSubscription buffers a client subscription.
func (w *Writer) RecordSubscription(ctx context.Context, sid, consumer, topic string, connectedAt time.Time) error {
	return w.record(ctx, CategorySubscription, []any{sid, consumer, topic, connectedAt})
}

func (w *Writer) record(ctx context.Context, cat Category, values []any) error {
	if w.closed.Load() {
		return ErrWriterClosed
	}
	if !cat.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownCategory, cat)
	}
	if len(values) != cat.Arity() {
		return fmt.Errorf("%w: %s expects %d values, got %d", ErrArityMismatch, cat, cat.Arity(), len(values))
	}

	rec := WriteRecord{Category: cat, Values: values, EnqueuedAt: time.Now()}

	if !w.cfg.Enabled {
		err := w.exec.ExecuteBatch(ctx, cat, []WriteRecord{rec})
		metrics.RecordDirectWrite(cat.String(), err)
		if err != nil {
			return fmt.Errorf("direct write %s: %w", cat, err)
		}
		return nil
	}

	size, ok := w.buffers[cat].TryEnqueue(rec)
	if !ok {
		// Buffer at capacity. Flush synchronously on this caller before
		// accepting the record; backpressure instead of unbounded growth.
		if err := w.flush(ctx, cat, ReasonOverflow); err != nil {
			return fmt.Errorf("%w: %v", ErrEnqueueRejected, err)
		}
		size, ok = w.buffers[cat].TryEnqueue(rec)
		if !ok {
			return ErrEnqueueRejected
		}
	}
	metrics.UpdateBufferSize(cat.String(), size)

	if size >= w.cfg.BatchSize {
		w.scheduleFlush(cat, ReasonSizeThreshold)
	}
	return nil
}

// scheduleFlush starts a detached flush for cat unless one is already
// scheduled. The gate keeps a burst of enqueues from stacking goroutines
// behind the category's flush mutex.
func (w *Writer) scheduleFlush(cat Category, reason FlushReason) {
	if !w.flushScheduled[cat].CompareAndSwap(false, true) {
		return
	}

	w.flushWg.Add(1)
	go func() {
		defer w.flushWg.Done()
		defer w.flushScheduled[cat].Store(false)

		// Detached from the caller: the enqueue that triggered this flush
		// has already returned.
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()

		if err := w.flush(ctx, cat, reason); err != nil {
			logging.Debug().Err(err).Str("category", cat.String()).Msg("Background flush failed")
		}
	}()
}

// flush takes ownership of the category's buffered records and commits them
// in batch-sized transactions, one FlushEvent per transaction. On failure the
// unflushed remainder is pushed back to the buffer head for retry; once the
// retry bound is exhausted the remainder is dropped.
func (w *Writer) flush(ctx context.Context, cat Category, reason FlushReason) error {
	w.flushMu[cat].Lock()
	defer w.flushMu[cat].Unlock()

	records := w.buffers[cat].TakeAll()
	if len(records) == 0 {
		if reason == ReasonShutdown {
			// An empty drain still shows up in the stats.
			w.collector.Record(FlushEvent{Category: cat, Reason: reason, StartedAt: time.Now()})
		}
		return nil
	}

	for start := 0; start < len(records); start += w.cfg.BatchSize {
		end := min(start+w.cfg.BatchSize, len(records))
		chunk := records[start:end]

		began := time.Now()
		err := w.exec.ExecuteBatch(ctx, cat, chunk)
		elapsed := time.Since(began)

		ev := FlushEvent{
			Category:    cat,
			Reason:      reason,
			RecordCount: len(chunk),
			StartedAt:   began,
			Duration:    elapsed,
		}
		if err != nil {
			ev.Outcome = OutcomeFailed
		}
		w.collector.Record(ev)
		metrics.RecordBatchFlush(cat.String(), reason.String(), err == nil, len(chunk), elapsed)

		if err != nil {
			unflushed := records[start:]
			w.attempts[cat]++
			if w.attempts[cat] > w.cfg.MaxRetries {
				w.attempts[cat] = 0
				w.collector.RecordDrop(len(unflushed))
				metrics.RecordBatchDrop(cat.String(), len(unflushed))
				logging.Error().
					Err(err).
					Str("category", cat.String()).
					Int("dropped", len(unflushed)).
					Int("max_retries", w.cfg.MaxRetries).
					Msg("Retry bound exhausted, dropping records")
				return fmt.Errorf("flush %s: dropped %d records after %d attempts: %w",
					cat, len(unflushed), w.cfg.MaxRetries+1, err)
			}

			w.buffers[cat].PushFront(unflushed)
			logging.Warn().
				Err(err).
				Str("category", cat.String()).
				Int("requeued", len(unflushed)).
				Int("attempt", w.attempts[cat]).
				Msg("Batch flush failed, records requeued")
			return fmt.Errorf("flush %s: %w", cat, err)
		}
		w.attempts[cat] = 0
	}

	w.lastFlush[cat].Store(time.Now().UnixNano())
	metrics.UpdateBufferSize(cat.String(), w.buffers[cat].Size())
	return nil
}

func (w *Writer) lastFlushTime(cat Category) time.Time {
	return time.Unix(0, w.lastFlush[cat].Load())
}

// Drain closes the writer, waits for in-flight background flushes and
// performs a final shutdown flush of every category. The whole drain is
// bounded by ShutdownTimeout; ErrShutdownTimeout is returned if it does not
// finish in time. Drain is idempotent, later calls return nil immediately.
func (w *Writer) Drain() error {
	if w.closed.Swap(true) {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		w.flushWg.Wait()

		var firstErr error
		for _, cat := range Categories() {
			// Keep flushing until the buffer is empty. A failing store
			// terminates through the retry bound, which drops the
			// remainder and empties the buffer.
			for {
				ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ShutdownTimeout)
				err := w.flush(ctx, cat, ReasonShutdown)
				cancel()
				if err != nil && firstErr == nil {
					firstErr = err
				}
				if w.buffers[cat].Size() == 0 {
					break
				}
			}
		}
		done <- firstErr
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("shutdown drain: %w", err)
		}
		return nil
	case <-time.After(w.cfg.ShutdownTimeout):
		return ErrShutdownTimeout
	}
}

// Stats returns a snapshot of flush statistics and buffer occupancy.
func (w *Writer) Stats() Snapshot {
	sizes := make(map[string]int, numCategories)
	for _, cat := range Categories() {
		sizes[cat.String()] = w.buffers[cat].Size()
	}
	return w.collector.Snapshot(w.cfg.Enabled, sizes)
}

// BufferSize returns the current occupancy of one category buffer.
func (w *Writer) BufferSize(cat Category) int {
	if !cat.Valid() {
		return 0
	}
	return w.buffers[cat].Size()
}
