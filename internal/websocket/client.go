// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/eventledger/eventledger/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB
)

// Client actions accepted on the wire.
const (
	actionSubscribe = "subscribe"
	actionConsumed  = "consumed"
)

// inbound is a frame sent by a client.
type inbound struct {
	Action    string   `json:"action"`
	Consumer  string   `json:"consumer,omitempty"`
	Topics    []string `json:"topics,omitempty"`
	Topic     string   `json:"topic,omitempty"`
	MessageID string   `json:"message_id,omitempty"`
	Message   any      `json:"message,omitempty"`
}

// Client is the middleman between one websocket connection and the hub.
// Each client gets a generated sid that keys its subscription rows.
type Client struct {
	sid      string
	consumer string
	hub      *Hub
	conn     *websocket.Conn
	send     chan Message
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		sid:  uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan Message, 256),
	}
}

// SID returns the client's subscription identifier.
func (c *Client) SID() string {
	return c.sid
}

// Start registers the client and begins its read and write pumps. A hub that
// has already shut down closes the connection instead.
func (c *Client) Start() {
	if !c.hub.register(c) {
		_ = c.conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// readPump consumes frames from the connection until it closes.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Str("sid", c.sid).Msg("Unexpected websocket close")
			}
			return
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg inbound) {
	switch msg.Action {
	case actionSubscribe:
		if msg.Consumer == "" || len(msg.Topics) == 0 {
			logging.Warn().Str("sid", c.sid).Msg("Invalid subscribe frame")
			return
		}
		c.consumer = msg.Consumer
		for _, topic := range msg.Topics {
			c.hub.joinRoom(c, topic)
			if c.hub.OnSubscribe != nil {
				c.hub.OnSubscribe(c.sid, msg.Consumer, topic)
			}
		}

	case actionConsumed:
		if msg.Consumer == "" || msg.Topic == "" || msg.MessageID == "" {
			logging.Warn().Str("sid", c.sid).Msg("Incomplete consumed frame")
			return
		}
		if c.hub.OnConsume != nil {
			c.hub.OnConsume(msg.Consumer, msg.Topic, msg.MessageID, msg.Message)
		}

	default:
		logging.Debug().Str("sid", c.sid).Str("action", msg.Action).Msg("Unknown client action")
	}
}

// writePump pushes hub messages to the connection and keeps it alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("Failed to set write deadline")
				return
			}
			if !ok {
				// Hub closed the channel.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Debug().Err(err).Msg("Failed to write close frame")
				}
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				logging.Error().Err(err).Str("sid", c.sid).Msg("Failed to write frame")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
