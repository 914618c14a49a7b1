// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

// Package broker mediates between the transport layers (HTTP, WebSocket) and
// the persistence path. Ledger writes flow through the batch writer; reads
// and subscription deletes hit the store directly.
package broker

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/eventledger/eventledger/internal/batch"
	"github.com/eventledger/eventledger/internal/logging"
	"github.com/eventledger/eventledger/internal/store"
)

// defaultQueryLimit caps the read endpoints.
const defaultQueryLimit = 100

// Writer is the slice of the batch writer the broker needs.
type Writer interface {
	RecordMessage(ctx context.Context, topic, messageID, message, producer string, ts time.Time) error
	RecordConsumption(ctx context.Context, consumer, topic, messageID, message string, ts time.Time) error
	RecordSubscription(ctx context.Context, sid, consumer, topic string, connectedAt time.Time) error
	Stats() batch.Snapshot
}

// Notifier pushes live events to connected WebSocket clients. A nil notifier
// disables push without affecting persistence.
type Notifier interface {
	Broadcast(event string, data any)
}

// Broker ties the store, the batch writer and the live-event notifier
// together.
type Broker struct {
	store      *store.Store
	writer     Writer
	monitor    *LoadMonitor
	notifier   Notifier
	queryLimit int
}

// New creates a broker. monitor and notifier may be nil.
func New(st *store.Store, w Writer, monitor *LoadMonitor, notifier Notifier) *Broker {
	return &Broker{
		store:      st,
		writer:     w,
		monitor:    monitor,
		notifier:   notifier,
		queryLimit: defaultQueryLimit,
	}
}

// normalizePayload renders a payload as JSON text. Strings pass through
// verbatim; everything else is marshaled.
func normalizePayload(message any) (string, error) {
	if s, ok := message.(string); ok {
		return s, nil
	}
	raw, err := json.Marshal(message)
	if err != nil {
		return "", fmt.Errorf("failed to encode message payload: %w", err)
	}
	return string(raw), nil
}

// SaveMessage records one published message and notifies subscribers.
func (b *Broker) SaveMessage(ctx context.Context, topic, messageID string, message any, producer string) error {
	if topic == "" || messageID == "" || producer == "" {
		return fmt.Errorf("save message: topic, message_id and producer are required")
	}
	b.recordLoad()

	payload, err := normalizePayload(message)
	if err != nil {
		return err
	}

	now := time.Now()
	if err := b.writer.RecordMessage(ctx, topic, messageID, payload, producer, now); err != nil {
		return fmt.Errorf("save message: %w", err)
	}

	b.broadcast("new_message", map[string]any{
		"topic":      topic,
		"message_id": messageID,
		"message":    message,
		"producer":   producer,
		"timestamp":  now,
	})
	return nil
}

// SaveConsumption records one delivery acknowledgment and notifies listeners.
func (b *Broker) SaveConsumption(ctx context.Context, consumer, topic, messageID string, message any) error {
	if consumer == "" || topic == "" || messageID == "" {
		return fmt.Errorf("save consumption: consumer, topic and message_id are required")
	}
	b.recordLoad()

	payload, err := normalizePayload(message)
	if err != nil {
		return err
	}

	now := time.Now()
	if err := b.writer.RecordConsumption(ctx, consumer, topic, messageID, payload, now); err != nil {
		return fmt.Errorf("save consumption: %w", err)
	}

	b.broadcast("new_consumption", map[string]any{
		"consumer":   consumer,
		"topic":      topic,
		"message_id": messageID,
		"message":    message,
		"timestamp":  now,
	})
	return nil
}

// RegisterSubscription records a client joining a topic.
func (b *Broker) RegisterSubscription(ctx context.Context, sid, consumer, topic string) error {
	if sid == "" || consumer == "" || topic == "" {
		return fmt.Errorf("register subscription: sid, consumer and topic are required")
	}
	b.recordLoad()

	now := time.Now()
	if err := b.writer.RecordSubscription(ctx, sid, consumer, topic, now); err != nil {
		return fmt.Errorf("register subscription: %w", err)
	}

	b.broadcast("new_client", map[string]any{
		"consumer":     consumer,
		"topic":        topic,
		"connected_at": now,
	})
	return nil
}

// UnregisterClient removes a client's subscription on disconnect. The delete
// goes straight to the store so the client list is immediately accurate.
func (b *Broker) UnregisterClient(ctx context.Context, sid string) error {
	consumer, topic, found, err := b.store.ClientBySID(ctx, sid)
	if err != nil {
		logging.Warn().Err(err).Str("sid", sid).Msg("Failed to look up disconnecting client")
	}

	if err := b.store.DeleteSubscription(ctx, sid); err != nil {
		return fmt.Errorf("unregister client: %w", err)
	}

	if found {
		b.broadcast("client_disconnected", map[string]any{
			"consumer": consumer,
			"topic":    topic,
		})
	}
	return nil
}

// Messages returns the most recent published messages.
func (b *Broker) Messages(ctx context.Context) ([]store.MessageRow, error) {
	return b.store.RecentMessages(ctx, b.queryLimit)
}

// Consumptions returns the most recent delivery acknowledgments.
func (b *Broker) Consumptions(ctx context.Context) ([]store.ConsumptionRow, error) {
	return b.store.RecentConsumptions(ctx, b.queryLimit)
}

// Clients returns the most recent subscriptions.
func (b *Broker) Clients(ctx context.Context) ([]store.ClientRow, error) {
	return b.store.RecentClients(ctx, b.queryLimit)
}

// Topology returns the pub/sub graph snapshot.
func (b *Broker) Topology(ctx context.Context) (*store.GraphState, error) {
	return b.store.TopologyState(ctx)
}

// Healthy probes the store.
func (b *Broker) Healthy(ctx context.Context) error {
	return b.store.Ping(ctx)
}

// BatchStats returns the batch writer's statistics snapshot.
func (b *Broker) BatchStats() batch.Snapshot {
	return b.writer.Stats()
}

func (b *Broker) recordLoad() {
	if b.monitor != nil {
		b.monitor.Record()
	}
}

func (b *Broker) broadcast(event string, data any) {
	if b.notifier != nil {
		b.notifier.Broadcast(event, data)
	}
}
