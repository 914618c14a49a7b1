// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eventledger/eventledger/internal/logging"
)

// minTick keeps the scheduler from spinning when FlushInterval is tiny.
const minTick = time.Millisecond

// Scheduler drives the time-based flush trigger. It ticks at half the flush
// interval so a buffered record waits at most 1.5x FlushInterval before its
// category is flushed.
type Scheduler struct {
	writer *Writer
	tick   time.Duration

	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewScheduler creates a scheduler for w.
func NewScheduler(w *Writer) *Scheduler {
	tick := w.cfg.FlushInterval / 2
	if tick < minTick {
		tick = minTick
	}
	return &Scheduler{
		writer:   w,
		tick:     tick,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start launches the tick loop. Repeated calls are no-ops.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.started.Swap(true) {
		return nil
	}

	logging.Info().
		Dur("tick", s.tick).
		Dur("flush_interval", s.writer.cfg.FlushInterval).
		Bool("enabled", s.writer.cfg.Enabled).
		Msg("Flush scheduler started")

	go s.loop(ctx)
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			for _, cat := range Categories() {
				s.evaluate(cat)
			}
		}
	}
}

// evaluate runs the trigger policy for one category and schedules a flush
// when one is due.
func (s *Scheduler) evaluate(cat Category) {
	w := s.writer
	if w.closed.Load() {
		return
	}

	in := TriggerInput{
		BufferSize:     w.buffers[cat].Size(),
		SinceLastFlush: time.Since(w.lastFlushTime(cat)),
		Enabled:        w.cfg.Enabled,
	}
	reason, due := Decide(w.cfg, in)
	if !due {
		return
	}
	w.scheduleFlush(cat, reason)
}

// Stop halts the tick loop and drains the writer. The first call performs
// the drain; later calls wait on nothing and return nil.
func (s *Scheduler) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopChan)
		if s.started.Load() {
			<-s.doneChan
		}
		err = s.writer.Drain()
	})
	return err
}
