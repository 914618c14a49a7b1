// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

// Package store persists the event ledger in an embedded DuckDB database
// and implements the batch executor on top of it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/eventledger/eventledger/internal/config"
	"github.com/eventledger/eventledger/internal/logging"
)

// Store wraps the embedded database. A single writer connection is enforced
// via the pool settings; DuckDB serializes writes internally.
type Store struct {
	conn    *sql.DB
	breaker *gobreaker.CircuitBreaker[any]
}

// New opens (creating if needed) the database at cfg.Path and initializes
// the ledger schema. breakerThreshold is the consecutive-failure count that
// opens the write circuit; zero disables the breaker.
func New(cfg *config.DatabaseConfig, breakerThreshold uint32) (*Store, error) {
	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "1GB"
	}

	// Auto-install/auto-load of extensions stays off so startup cannot hang
	// on network access in restricted environments.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, threads, maxMemory)
	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// DuckDB serializes writers internally; a small pool avoids lock
	// contention between batch commits and read queries.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	s := &Store{conn: conn}
	if breakerThreshold > 0 {
		s.breaker = newWriteBreaker(breakerThreshold)
	}

	if err := s.initSchema(); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logging.Warn().Err(closeErr).Msg("Failed to close database after schema error")
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Msg("Database opened")
	return s, nil
}

// newWriteBreaker builds the circuit breaker guarding batch commits. It
// opens after threshold consecutive failures and probes again after a short
// timeout, so a wedged database file fails enqueues fast instead of having
// every flush wait out its transaction.
func newWriteBreaker(threshold uint32) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "ledger-writes",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Write circuit breaker state change")
		},
	})
}

// Conn exposes the underlying pool for maintenance queries.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close result rows")
	}
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
