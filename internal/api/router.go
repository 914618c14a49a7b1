// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

// Package api provides the HTTP surface of the ledger using the Chi router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eventledger/eventledger/internal/broker"
	"github.com/eventledger/eventledger/internal/config"
	ws "github.com/eventledger/eventledger/internal/websocket"
)

// Router wires handlers and middleware into an http.Handler.
type Router struct {
	cfg     *config.Config
	handler *Handler
}

// NewRouter creates the API router.
func NewRouter(cfg *config.Config, b *broker.Broker, hub *ws.Hub) *Router {
	return &Router{
		cfg:     cfg,
		handler: NewHandler(cfg, b, hub),
	}
}

// Setup builds the route tree.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(rt.corsMiddleware())
	r.Use(instrument)

	// Write path. Rate limited per IP so a runaway producer cannot starve
	// the read endpoints.
	r.Group(func(r chi.Router) {
		if !rt.cfg.Security.RateLimitDisabled {
			r.Use(httprate.Limit(
				rt.cfg.Security.RateLimitReqs,
				rt.cfg.Security.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
			))
		}
		r.Post("/publish", rt.handler.Publish)
	})

	// Read path.
	r.Get("/messages", rt.handler.Messages)
	r.Get("/consumptions", rt.handler.Consumptions)
	r.Get("/clients", rt.handler.Clients)
	r.Get("/graph/state", rt.handler.GraphState)
	r.Get("/stats/batch", rt.handler.BatchStats)
	r.Get("/health", rt.handler.Health)

	// Live subscription endpoint.
	r.Get("/ws", rt.handler.WebSocket)

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (rt *Router) corsMiddleware() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   rt.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}
