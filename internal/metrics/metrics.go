// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

// Package metrics provides Prometheus instrumentation for the write path,
// the HTTP API, and the background cleanup loop. The batch writer keeps its
// own cumulative snapshot for /stats/batch; this package mirrors the same
// events into Prometheus for scraping.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Batch write path

	BatchFlushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_flush_duration_seconds",
			Help:    "Duration of batch flush transactions in seconds",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"category", "reason"},
	)

	BatchFlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_flushes_total",
			Help: "Total number of batch flush transactions",
		},
		[]string{"category", "reason", "outcome"},
	)

	BatchItemsCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_items_committed_total",
			Help: "Total number of records committed by batch flushes",
		},
		[]string{"category"},
	)

	BatchItemsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_items_dropped_total",
			Help: "Total number of records dropped after the retry bound was exhausted",
		},
		[]string{"category"},
	)

	BatchBufferSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batch_buffer_size",
			Help: "Current number of buffered records per category",
		},
		[]string{"category"},
	)

	DirectWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "direct_writes_total",
			Help: "Total number of single-record transactions on the non-batched path",
		},
		[]string{"category", "outcome"},
	)

	// HTTP API

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of connected WebSocket subscribers",
		},
	)

	// Retention cleanup

	CleanupRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleanup_runs_total",
			Help: "Total number of retention cleanup passes",
		},
		[]string{"outcome"},
	)

	CleanupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cleanup_duration_seconds",
			Help:    "Duration of retention cleanup passes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Store

	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_query_duration_seconds",
			Help:    "Duration of read queries against the embedded store",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)
)

// RecordBatchFlush records one flush transaction.
func RecordBatchFlush(category, reason string, committed bool, size int, elapsed time.Duration) {
	outcome := "committed"
	if !committed {
		outcome = "failed"
	}
	BatchFlushesTotal.WithLabelValues(category, reason, outcome).Inc()
	BatchFlushDuration.WithLabelValues(category, reason).Observe(elapsed.Seconds())
	if committed {
		BatchItemsCommitted.WithLabelValues(category).Add(float64(size))
	}
}

// RecordBatchDrop records records dropped after the retry bound was reached.
func RecordBatchDrop(category string, count int) {
	BatchItemsDropped.WithLabelValues(category).Add(float64(count))
}

// UpdateBufferSize updates the buffered record gauge for a category.
func UpdateBufferSize(category string, size int) {
	BatchBufferSize.WithLabelValues(category).Set(float64(size))
}

// RecordDirectWrite records a single-record transaction on the fallback path.
func RecordDirectWrite(category string, err error) {
	outcome := "committed"
	if err != nil {
		outcome = "failed"
	}
	DirectWritesTotal.WithLabelValues(category, outcome).Inc()
}

// RecordAPIRequest records one handled API request.
func RecordAPIRequest(method, endpoint string, statusCode int, elapsed time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}

// RecordCleanupRun records one retention cleanup pass.
func RecordCleanupRun(err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	CleanupRunsTotal.WithLabelValues(outcome).Inc()
	CleanupDuration.Observe(elapsed.Seconds())
}

// RecordStoreQuery records the duration of a read query.
func RecordStoreQuery(query string, elapsed time.Duration) {
	StoreQueryDuration.WithLabelValues(query).Observe(elapsed.Seconds())
}
