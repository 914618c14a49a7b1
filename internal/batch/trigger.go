// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package batch

import "time"

// FlushReason records why a flush was initiated.
type FlushReason int

const (
	// ReasonSizeThreshold fires when a buffer holds at least BatchSize records.
	ReasonSizeThreshold FlushReason = iota

	// ReasonTimeInterval fires when a non-empty buffer has not been flushed
	// for at least FlushInterval.
	ReasonTimeInterval

	// ReasonShutdown is the final drain during writer shutdown.
	ReasonShutdown

	// ReasonOverflow fires when a buffer reaches MaxBufferSize and must be
	// flushed synchronously before another record can be accepted.
	ReasonOverflow
)

func (r FlushReason) String() string {
	switch r {
	case ReasonSizeThreshold:
		return "size"
	case ReasonTimeInterval:
		return "time"
	case ReasonShutdown:
		return "shutdown"
	case ReasonOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// TriggerInput is the per-category state the flush policy evaluates.
type TriggerInput struct {
	BufferSize     int
	SinceLastFlush time.Duration
	Enabled        bool
	ShuttingDown   bool
}

// Decide returns the flush reason for the given state, or false when no
// flush is due. Shutdown always wins; the remaining triggers only apply
// while batching is enabled. Overflow is last because a buffer at
// MaxBufferSize has necessarily crossed the size threshold already; it
// stays as a safety net for misconfigured thresholds.
func Decide(cfg Config, in TriggerInput) (FlushReason, bool) {
	if in.ShuttingDown {
		return ReasonShutdown, true
	}
	if !in.Enabled {
		return 0, false
	}
	if in.BufferSize >= cfg.BatchSize {
		return ReasonSizeThreshold, true
	}
	if in.BufferSize > 0 && in.SinceLastFlush >= cfg.FlushInterval {
		return ReasonTimeInterval, true
	}
	if in.BufferSize >= cfg.MaxBufferSize {
		return ReasonOverflow, true
	}
	return 0, false
}
