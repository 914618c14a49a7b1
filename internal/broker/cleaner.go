// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eventledger/eventledger/internal/config"
	"github.com/eventledger/eventledger/internal/logging"
	"github.com/eventledger/eventledger/internal/metrics"
	"github.com/eventledger/eventledger/internal/store"
)

// cleanupTimeout bounds one trim pass.
const cleanupTimeout = 30 * time.Second

// Cleaner periodically trims the ledger tables to a row cap. Trims only run
// while the load monitor reports a quiet server, so retention work never
// competes with a publish burst for the writer lock.
type Cleaner struct {
	store   *store.Store
	monitor *LoadMonitor
	cfg     config.CleanupConfig

	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCleaner creates a cleaner. monitor may be nil, in which case trims are
// never load-gated.
func NewCleaner(st *store.Store, monitor *LoadMonitor, cfg config.CleanupConfig) *Cleaner {
	return &Cleaner{
		store:    st,
		monitor:  monitor,
		cfg:      cfg,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start launches the cleanup loop. Repeated calls are no-ops.
func (c *Cleaner) Start(ctx context.Context) error {
	if c.started.Swap(true) {
		return nil
	}

	logging.Info().
		Dur("interval", c.cfg.Interval).
		Int("max_rows", c.cfg.MaxRowsPerTable).
		Float64("load_threshold", c.cfg.MaxLoadThreshold).
		Msg("Background cleanup started")

	go c.loop(ctx)
	return nil
}

func (c *Cleaner) loop(ctx context.Context) {
	defer close(c.doneChan)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.runOnce(ctx)
		}
	}
}

// runOnce trims every ledger table unless the server is busy.
func (c *Cleaner) runOnce(ctx context.Context) {
	if c.cfg.MaxRowsPerTable <= 0 {
		return
	}

	if c.monitor != nil && !c.monitor.IsLowLoad(c.cfg.MaxLoadThreshold) {
		logging.Debug().
			Float64("load", c.monitor.RequestsPerSecond()).
			Float64("threshold", c.cfg.MaxLoadThreshold).
			Msg("Skipping cleanup, load too high")
		return
	}

	began := time.Now()
	trimCtx, cancel := context.WithTimeout(ctx, cleanupTimeout)
	defer cancel()

	var total int64
	var firstErr error
	for _, table := range []string{"subscriptions", "messages", "consumptions"} {
		removed, err := c.store.TrimTable(trimCtx, table, c.cfg.MaxRowsPerTable)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			logging.Error().Err(err).Str("table", table).Msg("Table trim failed")
			continue
		}
		total += removed
	}

	elapsed := time.Since(began)
	metrics.RecordCleanupRun(firstErr, elapsed)

	if firstErr == nil && total > 0 {
		logging.Info().Int64("rows_removed", total).Dur("elapsed", elapsed).Msg("Background cleanup completed")
	}
}

// Stop halts the loop and waits for any in-flight pass to finish. Idempotent.
func (c *Cleaner) Stop() error {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		if c.started.Load() {
			<-c.doneChan
		}
	})
	return nil
}
