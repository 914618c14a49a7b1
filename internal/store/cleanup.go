// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package store

import (
	"context"
	"fmt"
)

// trimTargets maps each ledger table to the column that orders its rows by
// recency. Only these tables may be trimmed; names are never caller-supplied.
var trimTargets = map[string]string{
	"messages":      "timestamp",
	"consumptions":  "timestamp",
	"subscriptions": "connected_at",
}

// TrimTable deletes the oldest rows of table until at most maxRows remain.
// It returns the number of rows removed.
func (s *Store) TrimTable(ctx context.Context, table string, maxRows int) (int64, error) {
	orderColumn, ok := trimTargets[table]
	if !ok {
		return 0, fmt.Errorf("refusing to trim unknown table %q", table)
	}

	query := fmt.Sprintf(
		`DELETE FROM %s WHERE rowid NOT IN (SELECT rowid FROM %s ORDER BY %s DESC LIMIT ?)`,
		table, table, orderColumn)

	res, err := s.conn.ExecContext(ctx, query, maxRows)
	if err != nil {
		return 0, fmt.Errorf("failed to trim %s: %w", table, err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		// DuckDB reports affected rows; treat a missing count as zero.
		return 0, nil
	}
	return removed, nil
}

// TableCount returns the row count of one ledger table.
func (s *Store) TableCount(ctx context.Context, table string) (int64, error) {
	if _, ok := trimTargets[table]; !ok {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int64
	if err := s.conn.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}
