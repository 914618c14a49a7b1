// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/eventledger/eventledger/internal/metrics"
)

// MessageRow is one published message as served by the read API. Message is
// the decoded payload; payloads that are not valid JSON come back wrapped in
// an error object rather than failing the whole query.
type MessageRow struct {
	Topic     string    `json:"topic"`
	MessageID string    `json:"message_id"`
	Message   any       `json:"message"`
	Producer  string    `json:"producer"`
	Timestamp time.Time `json:"timestamp"`
}

// ConsumptionRow is one delivery acknowledgment.
type ConsumptionRow struct {
	Consumer  string    `json:"consumer"`
	Topic     string    `json:"topic"`
	MessageID string    `json:"message_id"`
	Message   any       `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientRow is one active subscription.
type ClientRow struct {
	Consumer    string    `json:"consumer"`
	Topic       string    `json:"topic"`
	ConnectedAt time.Time `json:"connected_at"`
}

// GraphLink is one edge of the pub/sub topology graph.
type GraphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// GraphState is the full topology snapshot for visualization clients.
type GraphState struct {
	Producers []string    `json:"producers"`
	Consumers []string    `json:"consumers"`
	Topics    []string    `json:"topics"`
	Links     []GraphLink `json:"links"`
}

// decodePayload turns the stored JSON text back into a structure. An empty
// payload becomes an empty object, invalid JSON is surfaced with the raw text.
func decodePayload(raw string) any {
	if raw == "" {
		return map[string]any{}
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return map[string]any{"error": "Invalid JSON", "raw": raw}
	}
	return decoded
}

// RecentMessages returns the newest messages, most recent first.
func (s *Store) RecentMessages(ctx context.Context, limit int) ([]MessageRow, error) {
	began := time.Now()
	defer func() { metrics.RecordStoreQuery("recent_messages", time.Since(began)) }()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT topic, message_id, message, producer, timestamp FROM messages ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer closeRows(rows)

	out := make([]MessageRow, 0, limit)
	for rows.Next() {
		var (
			m   MessageRow
			raw string
		)
		if err := rows.Scan(&m.Topic, &m.MessageID, &raw, &m.Producer, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.Message = decodePayload(raw)
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecentConsumptions returns the newest consumptions, most recent first.
func (s *Store) RecentConsumptions(ctx context.Context, limit int) ([]ConsumptionRow, error) {
	began := time.Now()
	defer func() { metrics.RecordStoreQuery("recent_consumptions", time.Since(began)) }()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT consumer, topic, message_id, message, timestamp FROM consumptions ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query consumptions: %w", err)
	}
	defer closeRows(rows)

	out := make([]ConsumptionRow, 0, limit)
	for rows.Next() {
		var (
			c   ConsumptionRow
			raw string
		)
		if err := rows.Scan(&c.Consumer, &c.Topic, &c.MessageID, &raw, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan consumption row: %w", err)
		}
		c.Message = decodePayload(raw)
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecentClients returns the newest subscriptions, most recent first.
func (s *Store) RecentClients(ctx context.Context, limit int) ([]ClientRow, error) {
	began := time.Now()
	defer func() { metrics.RecordStoreQuery("recent_clients", time.Since(began)) }()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT consumer, topic, connected_at FROM subscriptions ORDER BY connected_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer closeRows(rows)

	out := make([]ClientRow, 0, limit)
	for rows.Next() {
		var c ClientRow
		if err := rows.Scan(&c.Consumer, &c.Topic, &c.ConnectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClientBySID looks up the consumer and topic of one subscription. The bool
// result reports whether the sid was found.
func (s *Store) ClientBySID(ctx context.Context, sid string) (consumer, topic string, found bool, err error) {
	row := s.conn.QueryRowContext(ctx, `SELECT consumer, topic FROM subscriptions WHERE sid = ?`, sid)
	if err := row.Scan(&consumer, &topic); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", false, nil
		}
		return "", "", false, fmt.Errorf("failed to look up subscription %s: %w", sid, err)
	}
	return consumer, topic, true, nil
}

// DeleteSubscription removes one subscription row. Deletes bypass the batch
// writer: a disconnect must be visible immediately.
func (s *Store) DeleteSubscription(ctx context.Context, sid string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM subscriptions WHERE sid = ?`, sid); err != nil {
		return fmt.Errorf("failed to delete subscription %s: %w", sid, err)
	}
	return nil
}

// TopologyState assembles the producer/consumer/topic graph.
func (s *Store) TopologyState(ctx context.Context) (*GraphState, error) {
	began := time.Now()
	defer func() { metrics.RecordStoreQuery("graph_state", time.Since(began)) }()

	state := &GraphState{
		Producers: []string{},
		Consumers: []string{},
		Topics:    []string{},
		Links:     []GraphLink{},
	}

	var err error
	state.Producers, err = s.stringColumn(ctx, `SELECT DISTINCT producer FROM messages`)
	if err != nil {
		return nil, err
	}
	state.Consumers, err = s.stringColumn(ctx,
		`SELECT DISTINCT consumer FROM subscriptions UNION SELECT DISTINCT consumer FROM consumptions`)
	if err != nil {
		return nil, err
	}
	state.Topics, err = s.stringColumn(ctx,
		`SELECT DISTINCT topic FROM messages UNION SELECT DISTINCT topic FROM subscriptions`)
	if err != nil {
		return nil, err
	}

	if err := s.appendLinks(ctx, state, `SELECT topic, consumer FROM subscriptions`, "consume"); err != nil {
		return nil, err
	}
	if err := s.appendLinks(ctx, state, `SELECT DISTINCT producer, topic FROM messages`, "publish"); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Store) stringColumn(ctx context.Context, query string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query graph column: %w", err)
	}
	defer closeRows(rows)

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan graph column: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) appendLinks(ctx context.Context, state *GraphState, query, linkType string) error {
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query graph links: %w", err)
	}
	defer closeRows(rows)

	for rows.Next() {
		var link GraphLink
		if err := rows.Scan(&link.Source, &link.Target); err != nil {
			return fmt.Errorf("failed to scan graph link: %w", err)
		}
		link.Type = linkType
		state.Links = append(state.Links, link)
	}
	return rows.Err()
}
