// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/eventledger/eventledger/internal/batch"
	"github.com/eventledger/eventledger/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 2}, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func messageRecord(id string, ts time.Time) batch.WriteRecord {
	return batch.WriteRecord{
		Category: batch.CategoryMessage,
		Values:   []any{"orders", id, `{"n":1}`, "producer-1", ts},
	}
}

func TestStore_ExecuteBatchAndRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute).Truncate(time.Millisecond)
	records := []batch.WriteRecord{
		messageRecord("m1", base),
		messageRecord("m2", base.Add(time.Second)),
		messageRecord("m3", base.Add(2*time.Second)),
	}
	if err := s.ExecuteBatch(ctx, batch.CategoryMessage, records); err != nil {
		t.Fatalf("ExecuteBatch() error = %v", err)
	}

	rows, err := s.RecentMessages(ctx, 100)
	if err != nil {
		t.Fatalf("RecentMessages() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("RecentMessages() returned %d rows, want 3", len(rows))
	}
	// Newest first.
	if rows[0].MessageID != "m3" || rows[2].MessageID != "m1" {
		t.Errorf("rows out of order: got %s..%s, want m3..m1", rows[0].MessageID, rows[2].MessageID)
	}

	payload, ok := rows[0].Message.(map[string]any)
	if !ok {
		t.Fatalf("Message = %T, want decoded object", rows[0].Message)
	}
	if payload["n"] != float64(1) {
		t.Errorf("Message payload = %v, want n:1", payload)
	}
}

func TestStore_ExecuteBatchEmpty(t *testing.T) {
	s := newTestStore(t)
	if err := s.ExecuteBatch(context.Background(), batch.CategoryMessage, nil); err != nil {
		t.Fatalf("ExecuteBatch(empty) error = %v", err)
	}
}

func TestStore_ExecuteBatchArityMismatch(t *testing.T) {
	s := newTestStore(t)
	bad := batch.WriteRecord{Category: batch.CategoryMessage, Values: []any{"only", "four", "values", "here"}}

	err := s.ExecuteBatch(context.Background(), batch.CategoryMessage, []batch.WriteRecord{bad})
	if !errors.Is(err, batch.ErrArityMismatch) {
		t.Fatalf("ExecuteBatch() error = %v, want ErrArityMismatch", err)
	}

	// Nothing may have landed.
	rows, err := s.RecentMessages(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentMessages() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("RecentMessages() returned %d rows after rejected batch, want 0", len(rows))
	}
}

func TestStore_ExecuteBatchUnknownCategory(t *testing.T) {
	s := newTestStore(t)
	err := s.ExecuteBatch(context.Background(), batch.Category(99), []batch.WriteRecord{{}})
	if !errors.Is(err, batch.ErrUnknownCategory) {
		t.Fatalf("ExecuteBatch() error = %v, want ErrUnknownCategory", err)
	}
}

func TestStore_SubscriptionReplaceBySID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Millisecond)
	sub := func(sid, consumer, topic string) batch.WriteRecord {
		return batch.WriteRecord{
			Category: batch.CategorySubscription,
			Values:   []any{sid, consumer, topic, now},
		}
	}

	records := []batch.WriteRecord{
		sub("sid-1", "alice", "orders"),
		sub("sid-2", "bob", "orders"),
		sub("sid-1", "alice", "invoices"), // re-subscribe overwrites
	}
	if err := s.ExecuteBatch(ctx, batch.CategorySubscription, records); err != nil {
		t.Fatalf("ExecuteBatch() error = %v", err)
	}

	clients, err := s.RecentClients(ctx, 100)
	if err != nil {
		t.Fatalf("RecentClients() error = %v", err)
	}
	if len(clients) != 2 {
		t.Fatalf("RecentClients() returned %d rows, want 2 after sid replace", len(clients))
	}

	consumer, topic, found, err := s.ClientBySID(ctx, "sid-1")
	if err != nil {
		t.Fatalf("ClientBySID() error = %v", err)
	}
	if !found || consumer != "alice" || topic != "invoices" {
		t.Errorf("ClientBySID(sid-1) = %s/%s found=%v, want alice/invoices true", consumer, topic, found)
	}
}

func TestStore_ClientBySIDNotFound(t *testing.T) {
	s := newTestStore(t)
	_, _, found, err := s.ClientBySID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("ClientBySID() error = %v", err)
	}
	if found {
		t.Error("ClientBySID() found = true for missing sid")
	}
}

func TestStore_DeleteSubscription(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := batch.WriteRecord{
		Category: batch.CategorySubscription,
		Values:   []any{"sid-1", "alice", "orders", time.Now()},
	}
	if err := s.ExecuteBatch(ctx, batch.CategorySubscription, []batch.WriteRecord{rec}); err != nil {
		t.Fatalf("ExecuteBatch() error = %v", err)
	}

	if err := s.DeleteSubscription(ctx, "sid-1"); err != nil {
		t.Fatalf("DeleteSubscription() error = %v", err)
	}
	if _, _, found, _ := s.ClientBySID(ctx, "sid-1"); found {
		t.Error("subscription still present after delete")
	}
}

func TestStore_InvalidPayloadSurfacedNotFatal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := batch.WriteRecord{
		Category: batch.CategoryMessage,
		Values:   []any{"orders", "m1", "{not json", "p", time.Now()},
	}
	if err := s.ExecuteBatch(ctx, batch.CategoryMessage, []batch.WriteRecord{rec}); err != nil {
		t.Fatalf("ExecuteBatch() error = %v", err)
	}

	rows, err := s.RecentMessages(ctx, 10)
	if err != nil {
		t.Fatalf("RecentMessages() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("RecentMessages() returned %d rows, want 1", len(rows))
	}
	wrapped, ok := rows[0].Message.(map[string]any)
	if !ok || wrapped["error"] != "Invalid JSON" {
		t.Errorf("Message = %v, want invalid-JSON wrapper", rows[0].Message)
	}
}

func TestStore_TrimTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	records := make([]batch.WriteRecord, 0, 20)
	for i := 0; i < 20; i++ {
		records = append(records, messageRecord(fmt.Sprintf("m%02d", i), base.Add(time.Duration(i)*time.Second)))
	}
	if err := s.ExecuteBatch(ctx, batch.CategoryMessage, records); err != nil {
		t.Fatalf("ExecuteBatch() error = %v", err)
	}

	removed, err := s.TrimTable(ctx, "messages", 5)
	if err != nil {
		t.Fatalf("TrimTable() error = %v", err)
	}
	if removed != 15 {
		t.Errorf("TrimTable() removed %d rows, want 15", removed)
	}

	rows, err := s.RecentMessages(ctx, 100)
	if err != nil {
		t.Fatalf("RecentMessages() error = %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("kept %d rows, want 5", len(rows))
	}
	// The newest rows survive.
	if rows[0].MessageID != "m19" || rows[4].MessageID != "m15" {
		t.Errorf("kept rows %s..%s, want m19..m15", rows[0].MessageID, rows[4].MessageID)
	}

	if count, err := s.TableCount(ctx, "messages"); err != nil || count != 5 {
		t.Errorf("TableCount() = %d, %v, want 5, nil", count, err)
	}
}

func TestStore_TrimTableRejectsUnknown(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.TrimTable(context.Background(), "users; DROP TABLE messages", 5); err == nil {
		t.Fatal("TrimTable() accepted unknown table name")
	}
}

func TestStore_TopologyState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	msgs := []batch.WriteRecord{
		{Category: batch.CategoryMessage, Values: []any{"orders", "m1", "{}", "producer-1", now}},
	}
	subs := []batch.WriteRecord{
		{Category: batch.CategorySubscription, Values: []any{"sid-1", "alice", "orders", now}},
	}
	if err := s.ExecuteBatch(ctx, batch.CategoryMessage, msgs); err != nil {
		t.Fatalf("ExecuteBatch(messages) error = %v", err)
	}
	if err := s.ExecuteBatch(ctx, batch.CategorySubscription, subs); err != nil {
		t.Fatalf("ExecuteBatch(subscriptions) error = %v", err)
	}

	state, err := s.TopologyState(ctx)
	if err != nil {
		t.Fatalf("TopologyState() error = %v", err)
	}
	if len(state.Producers) != 1 || state.Producers[0] != "producer-1" {
		t.Errorf("Producers = %v, want [producer-1]", state.Producers)
	}
	if len(state.Consumers) != 1 || state.Consumers[0] != "alice" {
		t.Errorf("Consumers = %v, want [alice]", state.Consumers)
	}
	if len(state.Topics) != 1 || state.Topics[0] != "orders" {
		t.Errorf("Topics = %v, want [orders]", state.Topics)
	}
	if len(state.Links) != 2 {
		t.Fatalf("Links = %v, want one consume and one publish edge", state.Links)
	}
	types := map[string]bool{}
	for _, link := range state.Links {
		types[link.Type] = true
	}
	if !types["consume"] || !types["publish"] {
		t.Errorf("Links types = %v, want consume and publish", types)
	}
}

func TestStore_BreakerOpensAfterClose(t *testing.T) {
	s, err := New(&config.DatabaseConfig{Path: ":memory:"}, 2)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	ctx := context.Background()
	rec := messageRecord("m1", time.Now())

	// Consecutive failures on the closed database trip the breaker.
	for i := 0; i < 2; i++ {
		if err := s.ExecuteBatch(ctx, batch.CategoryMessage, []batch.WriteRecord{rec}); err == nil {
			t.Fatalf("ExecuteBatch(%d) succeeded on closed store", i)
		}
	}
	err = s.ExecuteBatch(ctx, batch.CategoryMessage, []batch.WriteRecord{rec})
	if err == nil {
		t.Fatal("ExecuteBatch() succeeded with open breaker")
	}
}

func TestStore_Ping(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
