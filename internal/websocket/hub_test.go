// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package websocket

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestClient(hub *Hub, sid string) *Client {
	return &Client{
		sid:  sid,
		hub:  hub,
		send: make(chan Message, 4),
	}
}

func TestHub_AddAndRemoveClient(t *testing.T) {
	hub := NewHub()
	var disconnected []string
	hub.OnDisconnect = func(sid string) { disconnected = append(disconnected, sid) }

	c := newTestClient(hub, "sid-1")
	hub.addClient(c)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("ClientCount() = %d, want 1", got)
	}

	hub.joinRoom(c, "orders")
	hub.removeClient(c)
	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount() after remove = %d, want 0", got)
	}
	if len(hub.rooms) != 0 {
		t.Errorf("empty room was not reaped, rooms = %v", hub.rooms)
	}
	if len(disconnected) != 1 || disconnected[0] != "sid-1" {
		t.Errorf("OnDisconnect calls = %v, want [sid-1]", disconnected)
	}
	if _, open := <-c.send; open {
		t.Error("send channel still open after removal")
	}

	// Removing twice must not fire the callback again or panic on the
	// closed channel.
	hub.removeClient(c)
	if len(disconnected) != 1 {
		t.Errorf("OnDisconnect fired %d times, want 1", len(disconnected))
	}
}

func TestHub_DeliverTopicScoped(t *testing.T) {
	hub := NewHub()
	sub := newTestClient(hub, "sub")
	other := newTestClient(hub, "other")
	hub.addClient(sub)
	hub.addClient(other)
	hub.joinRoom(sub, "orders")

	hub.deliver(Message{Event: EventMessage, Topic: "orders", Data: "payload"})

	select {
	case msg := <-sub.send:
		if msg.Topic != "orders" || msg.Data != "payload" {
			t.Errorf("subscriber got %+v", msg)
		}
	default:
		t.Fatal("subscriber did not receive topic message")
	}
	select {
	case msg := <-other.send:
		t.Fatalf("non-subscriber received topic message %+v", msg)
	default:
	}
}

func TestHub_DeliverBroadcastReachesAll(t *testing.T) {
	hub := NewHub()
	a := newTestClient(hub, "a")
	b := newTestClient(hub, "b")
	hub.addClient(a)
	hub.addClient(b)

	hub.deliver(Message{Event: EventNewClient, Data: "x"})

	for _, c := range []*Client{a, b} {
		select {
		case <-c.send:
		default:
			t.Errorf("client %s did not receive broadcast", c.sid)
		}
	}
}

func TestHub_DeliverDisconnectsSlowClient(t *testing.T) {
	hub := NewHub()
	slow := &Client{sid: "slow", hub: hub, send: make(chan Message)} // unbuffered, never read
	hub.addClient(slow)

	hub.deliver(Message{Event: EventNewMessage, Data: "x"})

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want slow client removed", got)
	}
}

func TestHub_BroadcastQueueFullDrops(t *testing.T) {
	hub := NewHub()
	for i := 0; i < cap(hub.broadcast)+10; i++ {
		hub.Broadcast(EventNewMessage, i)
	}
	if got := len(hub.broadcast); got != cap(hub.broadcast) {
		t.Errorf("broadcast queue length = %d, want %d", got, cap(hub.broadcast))
	}
}

func TestHub_RunWithContextShutdown(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()

	c := newTestClient(hub, "sid-1")
	hub.Register <- c
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.BroadcastTopic("orders", EventMessage, "x")

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("RunWithContext() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop after cancel")
	}

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount() after shutdown = %d, want 0", got)
	}
	for {
		if _, open := <-c.send; !open {
			break
		}
	}
}

func TestHub_LifecycleAfterShutdownDoesNotBlock(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()

	c := newTestClient(hub, "sid-1")
	if !hub.register(c) {
		t.Fatal("register() rejected client while hub was running")
	}
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	cancel()
	<-done

	// A read pump racing the shutdown must still be able to hand its client
	// back without parking on the channel forever.
	returned := make(chan struct{})
	go func() {
		hub.unregister(c)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("unregister blocked after hub shutdown")
	}

	if hub.register(newTestClient(hub, "sid-2")) {
		t.Error("register() accepted a client after shutdown")
	}
}

func TestClient_HandleSubscribe(t *testing.T) {
	hub := NewHub()
	var mu sync.Mutex
	var subs [][2]string
	hub.OnSubscribe = func(sid, consumer, topic string) {
		mu.Lock()
		subs = append(subs, [2]string{consumer, topic})
		mu.Unlock()
	}

	c := newTestClient(hub, "sid-1")
	hub.addClient(c)
	c.handle(inbound{Action: actionSubscribe, Consumer: "alice", Topics: []string{"orders", "alerts"}})

	if c.consumer != "alice" {
		t.Errorf("consumer = %q, want alice", c.consumer)
	}
	if len(subs) != 2 {
		t.Fatalf("OnSubscribe fired %d times, want 2", len(subs))
	}
	hub.mu.RLock()
	_, inOrders := hub.rooms["orders"][c]
	_, inAlerts := hub.rooms["alerts"][c]
	hub.mu.RUnlock()
	if !inOrders || !inAlerts {
		t.Error("client missing from subscribed rooms")
	}

	// A frame without topics is ignored.
	c.handle(inbound{Action: actionSubscribe, Consumer: "bob"})
	if len(subs) != 2 {
		t.Error("invalid subscribe frame reached the callback")
	}
}

func TestClient_HandleConsumed(t *testing.T) {
	hub := NewHub()
	var got []string
	hub.OnConsume = func(consumer, topic, messageID string, _ any) {
		got = []string{consumer, topic, messageID}
	}

	c := newTestClient(hub, "sid-1")
	c.handle(inbound{Action: actionConsumed, Consumer: "alice", Topic: "orders", MessageID: "m1", Message: "x"})
	if len(got) != 3 || got[0] != "alice" || got[1] != "orders" || got[2] != "m1" {
		t.Errorf("OnConsume args = %v", got)
	}

	got = nil
	c.handle(inbound{Action: actionConsumed, Consumer: "alice"})
	if got != nil {
		t.Error("incomplete consumed frame reached the callback")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}
