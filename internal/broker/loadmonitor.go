// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package broker

import (
	"sync"
	"time"
)

// LoadMonitor tracks write-request rate over a sliding window. The cleaner
// consults it so table trims only run while the server is quiet.
type LoadMonitor struct {
	mu         sync.Mutex
	window     time.Duration
	timestamps []time.Time
}

// NewLoadMonitor creates a monitor with the given observation window.
func NewLoadMonitor(window time.Duration) *LoadMonitor {
	if window <= 0 {
		window = time.Minute
	}
	return &LoadMonitor{window: window}
}

// Record counts one request at the current time.
func (m *LoadMonitor) Record() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.timestamps = append(m.timestamps, now)
	m.evict(now)
}

// RequestsPerSecond returns the mean request rate over the window. The rate
// is computed against the span actually covered by the recorded requests,
// not the full window, so a short burst reads as a high rate.
func (m *LoadMonitor) RequestsPerSecond() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.evict(now)

	count := len(m.timestamps)
	if count == 0 {
		return 0
	}
	if count == 1 {
		return 1.0 / m.window.Seconds()
	}

	duration := now.Sub(m.timestamps[0]).Seconds()
	if duration < 1.0 {
		duration = 1.0
	}
	return float64(count) / duration
}

// IsLowLoad reports whether the current rate is under threshold.
func (m *LoadMonitor) IsLowLoad(threshold float64) bool {
	return m.RequestsPerSecond() < threshold
}

// evict drops timestamps outside the window. Caller holds mu.
func (m *LoadMonitor) evict(now time.Time) {
	cutoff := now.Add(-m.window)
	drop := 0
	for drop < len(m.timestamps) && m.timestamps[drop].Before(cutoff) {
		drop++
	}
	if drop > 0 {
		m.timestamps = append(m.timestamps[:0], m.timestamps[drop:]...)
	}
}
