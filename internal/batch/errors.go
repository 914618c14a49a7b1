// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package batch

import "errors"

var (
	// ErrWriterClosed is returned by Record* calls after Drain has been invoked.
	ErrWriterClosed = errors.New("batch writer is closed")

	// ErrEnqueueRejected is returned when a buffer is at capacity and the
	// forced flush could not make room for the incoming record.
	ErrEnqueueRejected = errors.New("enqueue rejected: buffer at capacity and flush failed")

	// ErrShutdownTimeout is returned by Drain when in-flight and final flushes
	// do not complete within the configured shutdown timeout.
	ErrShutdownTimeout = errors.New("shutdown drain timed out")

	// ErrArityMismatch is returned when a record carries the wrong number of
	// values for its category.
	ErrArityMismatch = errors.New("record arity mismatch")

	// ErrUnknownCategory is returned for categories outside the known set.
	ErrUnknownCategory = errors.New("unknown write category")
)
