// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package batch

import "time"

// Category identifies which ledger table a write record belongs to.
// Records are buffered and flushed per category so a single transaction
// only ever touches one table.
type Category int

const (
	// CategoryMessage is a published message: topic, message_id, message,
	// producer, timestamp.
	CategoryMessage Category = iota

	// CategoryConsumption is a delivery acknowledgment: consumer, topic,
	// message_id, message, timestamp.
	CategoryConsumption

	// CategorySubscription is a client subscription: sid, consumer, topic,
	// connected_at.
	CategorySubscription

	numCategories
)

// String returns the ledger table name for the category.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "messages"
	case CategoryConsumption:
		return "consumptions"
	case CategorySubscription:
		return "subscriptions"
	default:
		return "unknown"
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c >= CategoryMessage && c < numCategories
}

// Arity returns the number of values a record of this category must carry.
// The count matches the column list of the category's insert statement.
func (c Category) Arity() int {
	switch c {
	case CategoryMessage, CategoryConsumption:
		return 5
	case CategorySubscription:
		return 4
	default:
		return 0
	}
}

// Categories returns all known categories in a fixed order.
func Categories() []Category {
	return []Category{CategoryMessage, CategoryConsumption, CategorySubscription}
}

// WriteRecord is a single buffered write. Values are positional and must
// match the category's insert statement exactly.
type WriteRecord struct {
	Category   Category
	Values     []any
	EnqueuedAt time.Time
}
