// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package batch

import (
	"testing"
	"time"
)

func TestDecide(t *testing.T) {
	cfg := Config{
		Enabled:       true,
		BatchSize:     100,
		FlushInterval: 50 * time.Millisecond,
		MaxBufferSize: 150,
	}

	tests := []struct {
		name       string
		in         TriggerInput
		wantReason FlushReason
		wantDue    bool
	}{
		{
			name:    "empty buffer no flush",
			in:      TriggerInput{Enabled: true},
			wantDue: false,
		},
		{
			name:       "size threshold reached",
			in:         TriggerInput{BufferSize: 100, Enabled: true},
			wantReason: ReasonSizeThreshold,
			wantDue:    true,
		},
		{
			name:       "size threshold exceeded",
			in:         TriggerInput{BufferSize: 149, Enabled: true},
			wantReason: ReasonSizeThreshold,
			wantDue:    true,
		},
		{
			name:    "below size and below interval",
			in:      TriggerInput{BufferSize: 45, SinceLastFlush: 20 * time.Millisecond, Enabled: true},
			wantDue: false,
		},
		{
			name:       "interval elapsed with pending records",
			in:         TriggerInput{BufferSize: 45, SinceLastFlush: 60 * time.Millisecond, Enabled: true},
			wantReason: ReasonTimeInterval,
			wantDue:    true,
		},
		{
			name:    "interval elapsed but buffer empty",
			in:      TriggerInput{BufferSize: 0, SinceLastFlush: time.Hour, Enabled: true},
			wantDue: false,
		},
		{
			name:       "shutdown wins over everything",
			in:         TriggerInput{BufferSize: 200, SinceLastFlush: time.Hour, Enabled: true, ShuttingDown: true},
			wantReason: ReasonShutdown,
			wantDue:    true,
		},
		{
			name:       "shutdown applies even when disabled",
			in:         TriggerInput{ShuttingDown: true},
			wantReason: ReasonShutdown,
			wantDue:    true,
		},
		{
			name:    "disabled suppresses size trigger",
			in:      TriggerInput{BufferSize: 500},
			wantDue: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, due := Decide(cfg, tt.in)
			if due != tt.wantDue {
				t.Fatalf("Decide() due = %v, want %v", due, tt.wantDue)
			}
			if due && reason != tt.wantReason {
				t.Errorf("Decide() reason = %v, want %v", reason, tt.wantReason)
			}
		})
	}
}

func TestFlushReason_String(t *testing.T) {
	tests := []struct {
		reason FlushReason
		want   string
	}{
		{ReasonSizeThreshold, "size"},
		{ReasonTimeInterval, "time"},
		{ReasonShutdown, "shutdown"},
		{ReasonOverflow, "overflow"},
		{FlushReason(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.reason.String(); got != tt.want {
			t.Errorf("FlushReason(%d).String() = %q, want %q", tt.reason, got, tt.want)
		}
	}
}
