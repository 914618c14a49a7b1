// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

// Package main is the entry point for the eventledger server.
//
// The server initializes components in the following order:
//
//  1. Configuration: layered load from defaults, config.yaml and environment (Koanf v2)
//  2. Store: embedded DuckDB holding the message, consumption and subscription ledger
//  3. Batch writer and flush scheduler: write coalescing in front of the store
//  4. WebSocket hub: live fan-out of ledger events to subscribed clients
//  5. Broker and background cleaner: domain logic and load-gated retention
//  6. HTTP server: publish endpoint, read API, stats and Prometheus metrics
//
// All long-running components run under a suture supervision tree and shut
// down gracefully on SIGINT/SIGTERM. The batch writer drains its buffers
// before the store closes, so accepted records are not lost on shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/eventledger/eventledger/internal/api"
	"github.com/eventledger/eventledger/internal/batch"
	"github.com/eventledger/eventledger/internal/broker"
	"github.com/eventledger/eventledger/internal/config"
	"github.com/eventledger/eventledger/internal/logging"
	"github.com/eventledger/eventledger/internal/store"
	"github.com/eventledger/eventledger/internal/supervisor"
	ws "github.com/eventledger/eventledger/internal/websocket"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Server exited with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("version", version).
		Bool("batching", cfg.Batch.Enabled).
		Str("database", cfg.Database.Path).
		Msg("Starting eventledger")

	st, err := store.New(&cfg.Database, cfg.Batch.BreakerThreshold)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close store")
		}
	}()

	writer, err := batch.NewWriter(st, batch.Config{
		Enabled:         cfg.Batch.Enabled,
		BatchSize:       cfg.Batch.BatchSize,
		FlushInterval:   cfg.Batch.FlushInterval,
		MaxBufferSize:   cfg.Batch.MaxBufferSize,
		MaxRetries:      cfg.Batch.MaxRetries,
		ShutdownTimeout: cfg.Batch.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create batch writer: %w", err)
	}
	scheduler := batch.NewScheduler(writer)

	hub := ws.NewHub()
	monitor := broker.NewLoadMonitor(cfg.Cleanup.LoadWindow)
	brk := broker.New(st, writer, monitor, hub)

	hub.OnSubscribe = func(sid, consumer, topic string) {
		if err := brk.RegisterSubscription(context.Background(), sid, consumer, topic); err != nil {
			logging.Warn().Err(err).Str("consumer", consumer).Str("topic", topic).Msg("Failed to register subscription")
		}
	}
	hub.OnDisconnect = func(sid string) {
		if err := brk.UnregisterClient(context.Background(), sid); err != nil {
			logging.Warn().Err(err).Str("sid", sid).Msg("Failed to unregister client")
		}
	}
	hub.OnConsume = func(consumer, topic, messageID string, message any) {
		if err := brk.SaveConsumption(context.Background(), consumer, topic, messageID, message); err != nil {
			logging.Warn().Err(err).Str("consumer", consumer).Msg("Failed to save consumption")
		}
	}

	router := api.NewRouter(cfg, brk, hub)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddDataService(supervisor.NewLifecycleService(scheduler, "flush-scheduler"))
	if cfg.Cleanup.Enabled {
		cleaner := broker.NewCleaner(st, monitor, cfg.Cleanup)
		tree.AddDataService(supervisor.NewLifecycleService(cleaner, "background-cleaner"))
	}
	tree.AddAPIService(supervisor.NewRunnerService(hub, "websocket-hub"))
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Listening")

	err = tree.Serve(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor exited: %w", err)
	}

	if unstopped, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop before timeout")
		}
	}

	logging.Info().Msg("Shutdown complete")
	return nil
}
