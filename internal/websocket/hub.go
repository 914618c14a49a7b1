// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

// Package websocket delivers live ledger events to subscribed clients.
// Clients join topic rooms with a subscribe message; published messages fan
// out to their topic's room, bookkeeping events fan out to every client.
package websocket

import (
	"context"
	"sync"

	"github.com/eventledger/eventledger/internal/logging"
	"github.com/eventledger/eventledger/internal/metrics"
)

// Event names pushed to clients.
const (
	EventMessage            = "message"
	EventNewMessage         = "new_message"
	EventNewConsumption     = "new_consumption"
	EventNewClient          = "new_client"
	EventClientDisconnected = "client_disconnected"
)

// Message is one WebSocket frame in either direction.
type Message struct {
	Event string `json:"event"`
	Topic string `json:"topic,omitempty"`
	Data  any    `json:"data"`
}

// SubscribeFunc is invoked for each topic a client subscribes to.
type SubscribeFunc func(sid, consumer, topic string)

// DisconnectFunc is invoked once when a client disconnects.
type DisconnectFunc func(sid string)

// ConsumeFunc is invoked when a client acknowledges a message.
type ConsumeFunc func(consumer, topic, messageID string, message any)

// Hub maintains the set of active clients and their topic rooms.
type Hub struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client

	// Lifecycle callbacks, wired by the caller before RunWithContext.
	OnSubscribe  SubscribeFunc
	OnDisconnect DisconnectFunc
	OnConsume    ConsumeFunc

	// done is closed on shutdown so client pumps never block on the
	// lifecycle channels after the event loop has exited.
	done chan struct{}

	mu sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// RunWithContext runs the hub event loop until ctx is canceled, then closes
// every client and returns ctx.Err(). Lifecycle events are drained before
// broadcasts so client state is consistent when a message fans out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Broadcast queues an event for every connected client. It implements the
// broker's Notifier. Messages are dropped when the hub queue is full rather
// than blocking the write path.
func (h *Hub) Broadcast(event string, data any) {
	select {
	case h.broadcast <- Message{Event: event, Data: data}:
	default:
		logging.Warn().Str("event", event).Msg("Hub broadcast queue full, dropping event")
	}
}

// BroadcastTopic queues an event for the clients subscribed to topic.
func (h *Hub) BroadcastTopic(topic, event string, data any) {
	select {
	case h.broadcast <- Message{Event: event, Topic: topic, Data: data}:
	default:
		logging.Warn().Str("event", event).Str("topic", topic).Msg("Hub broadcast queue full, dropping event")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketConnections.Set(float64(total))
	logging.Info().Str("sid", client.sid).Int("total_clients", total).Msg("WebSocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	for topic, room := range h.rooms {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, topic)
		}
	}
	total := len(h.clients)
	close(client.send)
	h.mu.Unlock()

	metrics.WebSocketConnections.Set(float64(total))
	logging.Info().Str("sid", client.sid).Int("total_clients", total).Msg("WebSocket client disconnected")

	if h.OnDisconnect != nil {
		h.OnDisconnect(client.sid)
	}
}

// register hands a client to the event loop, giving up if the hub has shut
// down. Reports whether the client was accepted.
func (h *Hub) register(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// unregister hands a client back to the event loop, giving up if the hub has
// shut down. Shutdown already closed every client, so dropping the send is
// safe.
func (h *Hub) unregister(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// joinRoom adds a client to a topic room. Called from the client read pump.
func (h *Hub) joinRoom(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[topic]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[topic] = room
	}
	room[client] = true
}

// deliver fans a message out. A topic-scoped message goes to its room only;
// everything else goes to all clients. Slow clients are disconnected rather
// than allowed to stall the loop.
func (h *Hub) deliver(msg Message) {
	h.mu.RLock()
	var targets []*Client
	if msg.Topic != "" {
		for client := range h.rooms[msg.Topic] {
			targets = append(targets, client)
		}
	} else {
		for client := range h.clients {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		select {
		case client.send <- msg:
		default:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	count := len(h.clients)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.rooms = make(map[string]map[*Client]bool)
	h.mu.Unlock()

	metrics.WebSocketConnections.Set(0)
	logging.Info().
		Str("component", "websocket-hub").
		Int("clients_closed", count).
		Msg("WebSocket hub shut down")
}
