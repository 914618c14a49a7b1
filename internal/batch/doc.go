// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

// Package batch coalesces individual write events into batched transactions.
//
// Producers hand single records to a Writer, which buffers them per category
// and flushes them to an Executor in batch-sized transactions. Flushes are
// triggered by buffer size, elapsed time (via the Scheduler), buffer overflow,
// or shutdown. Failed batches are retried a bounded number of times before the
// records are dropped, so a persistently failing store cannot grow the buffers
// without bound.
package batch
