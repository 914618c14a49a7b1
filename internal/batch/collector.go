// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package batch

import (
	"sync"
	"time"
)

// FlushOutcome reports whether a flush transaction committed.
type FlushOutcome int

const (
	OutcomeCommitted FlushOutcome = iota
	OutcomeFailed
)

// FlushEvent describes one completed flush attempt of a single chunk.
type FlushEvent struct {
	Category    Category
	Reason      FlushReason
	RecordCount int
	StartedAt   time.Time
	Duration    time.Duration
	Outcome     FlushOutcome
}

// Collector aggregates flush statistics for the stats endpoint. It is a
// process-local counterpart to the Prometheus collectors: cheap to snapshot
// and reset with the writer's lifetime.
type Collector struct {
	mu                   sync.Mutex
	totalFlushes         int64
	totalWritesAttempted int64
	totalItemsCommitted  int64
	failedFlushes        int64
	droppedRecords       int64
	flushByReason        map[string]int64
	minBatchSize         int
	maxBatchSize         int
	lastFlushTime        time.Time
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{
		flushByReason: make(map[string]int64, 4),
	}
}

// Record folds one flush event into the running totals. Zero-size events
// (an empty shutdown drain) count as flushes but do not move the batch
// size extrema.
func (c *Collector) Record(ev FlushEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalFlushes++
	c.totalWritesAttempted += int64(ev.RecordCount)
	c.flushByReason[ev.Reason.String()]++
	c.lastFlushTime = ev.StartedAt

	if ev.Outcome == OutcomeFailed {
		c.failedFlushes++
		return
	}

	c.totalItemsCommitted += int64(ev.RecordCount)
	if ev.RecordCount > 0 {
		if c.minBatchSize == 0 || ev.RecordCount < c.minBatchSize {
			c.minBatchSize = ev.RecordCount
		}
		if ev.RecordCount > c.maxBatchSize {
			c.maxBatchSize = ev.RecordCount
		}
	}
}

// RecordDrop counts records discarded after the retry bound was exhausted.
func (c *Collector) RecordDrop(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.droppedRecords += int64(count)
}

// Snapshot is a point-in-time view of the collector plus current buffer
// occupancy, shaped for JSON responses.
type Snapshot struct {
	Enabled              bool             `json:"enabled"`
	TotalFlushes         int64            `json:"total_flushes"`
	TotalWritesAttempted int64            `json:"total_writes_attempted"`
	TotalItemsCommitted  int64            `json:"total_items_committed"`
	FailedFlushes        int64            `json:"failed_flushes"`
	DroppedRecords       int64            `json:"dropped_records"`
	FlushByReason        map[string]int64 `json:"flush_by_reason"`
	AvgBatchSize         float64          `json:"avg_batch_size"`
	MinBatchSize         int              `json:"min_batch_size"`
	MaxBatchSize         int              `json:"max_batch_size"`
	LastFlushTime        *time.Time       `json:"last_flush_time,omitempty"`
	BufferSizes          map[string]int   `json:"buffer_sizes"`
}

// Snapshot returns a copy of the current statistics.
func (c *Collector) Snapshot(enabled bool, bufferSizes map[string]int) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Enabled:              enabled,
		TotalFlushes:         c.totalFlushes,
		TotalWritesAttempted: c.totalWritesAttempted,
		TotalItemsCommitted:  c.totalItemsCommitted,
		FailedFlushes:        c.failedFlushes,
		DroppedRecords:       c.droppedRecords,
		FlushByReason:        make(map[string]int64, len(c.flushByReason)),
		MinBatchSize:         c.minBatchSize,
		MaxBatchSize:         c.maxBatchSize,
		BufferSizes:          bufferSizes,
	}
	for reason, n := range c.flushByReason {
		snap.FlushByReason[reason] = n
	}
	if c.totalFlushes > 0 {
		snap.AvgBatchSize = float64(c.totalItemsCommitted) / float64(c.totalFlushes)
	}
	if !c.lastFlushTime.IsZero() {
		t := c.lastFlushTime
		snap.LastFlushTime = &t
	}
	return snap
}
