// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package api

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"

	"github.com/eventledger/eventledger/internal/broker"
	"github.com/eventledger/eventledger/internal/config"
	"github.com/eventledger/eventledger/internal/logging"
	ws "github.com/eventledger/eventledger/internal/websocket"
)

// Handler holds the dependencies of the HTTP endpoints.
type Handler struct {
	cfg    *config.Config
	broker *broker.Broker
	hub    *ws.Hub
}

// NewHandler creates a handler.
func NewHandler(cfg *config.Config, b *broker.Broker, hub *ws.Hub) *Handler {
	return &Handler{cfg: cfg, broker: b, hub: hub}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": msg})
}

// PublishRequest is the /publish body.
type PublishRequest struct {
	Topic     string `json:"topic"`
	MessageID string `json:"message_id"`
	Message   any    `json:"message"`
	Producer  string `json:"producer"`
}

// Publish records a message and fans it out to the topic's subscribers.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Topic == "" || req.MessageID == "" || req.Message == nil || req.Producer == "" {
		writeError(w, http.StatusBadRequest, "Missing topic, message_id, message, or producer")
		return
	}

	if err := h.broker.SaveMessage(r.Context(), req.Topic, req.MessageID, req.Message, req.Producer); err != nil {
		logging.Error().Err(err).Str("topic", req.Topic).Msg("Failed to save message")
		writeError(w, http.StatusInternalServerError, "Failed to save message")
		return
	}

	// Deliver to the topic room in addition to the bookkeeping broadcast
	// the broker emits.
	h.hub.BroadcastTopic(req.Topic, ws.EventMessage, req)

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Messages serves the most recent published messages.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	rows, err := h.broker.Messages(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to query messages")
		writeError(w, http.StatusInternalServerError, "Failed to query messages")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// Consumptions serves the most recent delivery acknowledgments.
func (h *Handler) Consumptions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.broker.Consumptions(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to query consumptions")
		writeError(w, http.StatusInternalServerError, "Failed to query consumptions")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// Clients serves the most recent subscriptions.
func (h *Handler) Clients(w http.ResponseWriter, r *http.Request) {
	rows, err := h.broker.Clients(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to query clients")
		writeError(w, http.StatusInternalServerError, "Failed to query clients")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// GraphState serves the pub/sub topology snapshot.
func (h *Handler) GraphState(w http.ResponseWriter, r *http.Request) {
	state, err := h.broker.Topology(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to build graph state")
		writeError(w, http.StatusInternalServerError, "Failed to build graph state")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// BatchStats serves the batch writer's statistics snapshot.
func (h *Handler) BatchStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.broker.BatchStats())
}

// Health probes the store and reports readiness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.broker.Healthy(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (h *Handler) upgrader() gorillaws.Upgrader {
	return gorillaws.Upgrader{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range h.cfg.Security.CORSOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// WebSocket upgrades the connection and hands it to the hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	ws.NewClient(h.hub, conn).Start()
}
