// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package store

import "fmt"

// ledger schema. Message payloads are stored as their JSON text so the read
// path can hand them back verbatim or decoded.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		topic      VARCHAR NOT NULL,
		message_id VARCHAR NOT NULL,
		message    VARCHAR,
		producer   VARCHAR NOT NULL,
		timestamp  TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS consumptions (
		consumer   VARCHAR NOT NULL,
		topic      VARCHAR NOT NULL,
		message_id VARCHAR NOT NULL,
		message    VARCHAR,
		timestamp  TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		sid          VARCHAR PRIMARY KEY,
		consumer     VARCHAR NOT NULL,
		topic        VARCHAR NOT NULL,
		connected_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages (timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_topic ON messages (topic)`,
	`CREATE INDEX IF NOT EXISTS idx_consumptions_timestamp ON consumptions (timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_topic ON subscriptions (topic)`,
}

func (s *Store) initSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := s.conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
