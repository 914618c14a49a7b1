// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package batch

import "sync"

// CategoryBuffer is a bounded FIFO queue of write records for one category.
// All operations are safe for concurrent use.
type CategoryBuffer struct {
	mu       sync.Mutex
	records  []WriteRecord
	capacity int
}

// NewCategoryBuffer creates a buffer that accepts at most capacity records.
func NewCategoryBuffer(capacity int) *CategoryBuffer {
	return &CategoryBuffer{
		records:  make([]WriteRecord, 0, 64),
		capacity: capacity,
	}
}

// TryEnqueue appends rec unless the buffer is already at capacity.
// It returns the buffer size after the call and whether the record was
// accepted. The check and append are a single atomic step, so the buffer
// length never exceeds capacity through this path.
func (b *CategoryBuffer) TryEnqueue(rec WriteRecord) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.records) >= b.capacity {
		return len(b.records), false
	}

	b.records = append(b.records, rec)
	return len(b.records), true
}

// TakeAll removes and returns every buffered record, oldest first.
// The caller takes ownership of the returned slice.
func (b *CategoryBuffer) TakeAll() []WriteRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.records) == 0 {
		return nil
	}

	taken := b.records
	b.records = make([]WriteRecord, 0, 64)
	return taken
}

// PushFront returns unflushed records to the head of the buffer so a retry
// preserves the original FIFO order. PushFront ignores the capacity bound;
// the records were already accepted once and must not be silently lost here.
func (b *CategoryBuffer) PushFront(records []WriteRecord) {
	if len(records) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.records = append(records, b.records...)
}

// Size returns the current number of buffered records.
func (b *CategoryBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}
