// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package batch

import (
	"testing"
	"time"
)

func TestCollector_Aggregation(t *testing.T) {
	c := NewCollector()
	now := time.Now()

	c.Record(FlushEvent{Category: CategoryMessage, Reason: ReasonSizeThreshold, RecordCount: 100, StartedAt: now})
	c.Record(FlushEvent{Category: CategoryMessage, Reason: ReasonSizeThreshold, RecordCount: 100, StartedAt: now})
	c.Record(FlushEvent{Category: CategoryConsumption, Reason: ReasonTimeInterval, RecordCount: 40, StartedAt: now})
	c.Record(FlushEvent{Category: CategoryMessage, Reason: ReasonTimeInterval, RecordCount: 60, StartedAt: now, Outcome: OutcomeFailed})

	snap := c.Snapshot(true, map[string]int{"messages": 3})

	if snap.TotalFlushes != 4 {
		t.Errorf("TotalFlushes = %d, want 4", snap.TotalFlushes)
	}
	if snap.TotalWritesAttempted != 300 {
		t.Errorf("TotalWritesAttempted = %d, want 300", snap.TotalWritesAttempted)
	}
	if snap.TotalItemsCommitted != 240 {
		t.Errorf("TotalItemsCommitted = %d, want 240", snap.TotalItemsCommitted)
	}
	if snap.FailedFlushes != 1 {
		t.Errorf("FailedFlushes = %d, want 1", snap.FailedFlushes)
	}
	if snap.FlushByReason["size"] != 2 || snap.FlushByReason["time"] != 2 {
		t.Errorf("FlushByReason = %v, want size:2 time:2", snap.FlushByReason)
	}
	if snap.MinBatchSize != 40 {
		t.Errorf("MinBatchSize = %d, want 40", snap.MinBatchSize)
	}
	if snap.MaxBatchSize != 100 {
		t.Errorf("MaxBatchSize = %d, want 100", snap.MaxBatchSize)
	}
	if want := 240.0 / 4.0; snap.AvgBatchSize != want {
		t.Errorf("AvgBatchSize = %f, want %f", snap.AvgBatchSize, want)
	}
	if snap.LastFlushTime == nil {
		t.Error("LastFlushTime = nil, want set")
	}
	if snap.BufferSizes["messages"] != 3 {
		t.Errorf("BufferSizes = %v, want messages:3", snap.BufferSizes)
	}
	if !snap.Enabled {
		t.Error("Enabled = false, want true")
	}
}

func TestCollector_ZeroSizeIgnoredByExtrema(t *testing.T) {
	c := NewCollector()
	c.Record(FlushEvent{Category: CategoryMessage, Reason: ReasonShutdown, StartedAt: time.Now()})

	snap := c.Snapshot(true, nil)
	if snap.TotalFlushes != 1 {
		t.Errorf("TotalFlushes = %d, want 1", snap.TotalFlushes)
	}
	if snap.MinBatchSize != 0 || snap.MaxBatchSize != 0 {
		t.Errorf("zero-size flush moved extrema: min=%d max=%d", snap.MinBatchSize, snap.MaxBatchSize)
	}
}

func TestCollector_EmptySnapshot(t *testing.T) {
	snap := NewCollector().Snapshot(false, nil)

	if snap.AvgBatchSize != 0 {
		t.Errorf("AvgBatchSize = %f, want 0 with no flushes", snap.AvgBatchSize)
	}
	if snap.LastFlushTime != nil {
		t.Errorf("LastFlushTime = %v, want nil", snap.LastFlushTime)
	}
	if snap.Enabled {
		t.Error("Enabled = true, want false")
	}
}

func TestCollector_RecordDrop(t *testing.T) {
	c := NewCollector()
	c.RecordDrop(50)
	c.RecordDrop(10)

	if snap := c.Snapshot(true, nil); snap.DroppedRecords != 60 {
		t.Errorf("DroppedRecords = %d, want 60", snap.DroppedRecords)
	}
}
