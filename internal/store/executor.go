// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package store

import (
	"context"
	"fmt"

	"github.com/eventledger/eventledger/internal/batch"
	"github.com/eventledger/eventledger/internal/logging"
)

type insertStatement struct {
	sql   string
	arity int
}

// Subscriptions upsert on sid: a client re-subscribing overwrites its
// previous row instead of accumulating duplicates. DuckDB needs the explicit
// ON CONFLICT DO UPDATE form; INSERT OR REPLACE keeps the old row.
var categoryStatements = map[batch.Category]insertStatement{
	batch.CategoryMessage: {
		sql:   `INSERT INTO messages (topic, message_id, message, producer, timestamp) VALUES (?, ?, ?, ?, ?)`,
		arity: 5,
	},
	batch.CategoryConsumption: {
		sql:   `INSERT INTO consumptions (consumer, topic, message_id, message, timestamp) VALUES (?, ?, ?, ?, ?)`,
		arity: 5,
	},
	batch.CategorySubscription: {
		sql: `INSERT INTO subscriptions (sid, consumer, topic, connected_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (sid) DO UPDATE SET consumer = excluded.consumer, topic = excluded.topic, connected_at = excluded.connected_at`,
		arity: 4,
	},
}

// ExecuteBatch commits every record in a single transaction: either all rows
// land or none do. It implements batch.Executor.
func (s *Store) ExecuteBatch(ctx context.Context, category batch.Category, records []batch.WriteRecord) error {
	if len(records) == 0 {
		return nil
	}

	stmt, ok := categoryStatements[category]
	if !ok {
		return fmt.Errorf("%w: %d", batch.ErrUnknownCategory, category)
	}

	// Reject malformed records before opening the transaction so a bad
	// record cannot waste a commit cycle.
	for i, rec := range records {
		if len(rec.Values) != stmt.arity {
			return fmt.Errorf("%w: %s record %d has %d values, want %d",
				batch.ErrArityMismatch, category, i, len(rec.Values), stmt.arity)
		}
	}

	if s.breaker == nil {
		return s.executeBatchTx(ctx, stmt, records)
	}
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.executeBatchTx(ctx, stmt, records)
	})
	return err
}

func (s *Store) executeBatchTx(ctx context.Context, stmt insertStatement, records []batch.WriteRecord) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().Err(rbErr).Msg("Failed to rollback batch transaction")
			}
		}
	}()

	prepared, err := tx.PrepareContext(ctx, stmt.sql)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() {
		if closeErr := prepared.Close(); closeErr != nil {
			logging.Warn().Err(closeErr).Msg("Failed to close prepared statement")
		}
	}()

	for i, rec := range records {
		if _, err := prepared.ExecContext(ctx, rec.Values...); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	committed = true
	return nil
}
