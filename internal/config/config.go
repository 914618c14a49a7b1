// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

// Package config provides layered configuration loading for Eventledger
// using Koanf v2: struct defaults, then an optional YAML file, then
// environment variables, with precedence ENV > file > defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Eventledger server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Batch    BatchConfig    `koanf:"batch"`
	Cleanup  CleanupConfig  `koanf:"cleanup"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds embedded DuckDB settings.
type DatabaseConfig struct {
	// Path is the database file path. ":memory:" opens an in-memory store.
	Path string `koanf:"path"`

	// MaxMemory caps DuckDB memory use, e.g. "2GB".
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB worker thread count. 0 means runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// BatchConfig holds write-coalescing settings. These map 1:1 onto the batch
// writer: records accumulate per category and are committed in grouped
// transactions instead of one transaction per event.
type BatchConfig struct {
	// Enabled toggles coalescing. When false every record is written in its
	// own transaction synchronously.
	Enabled bool `koanf:"enabled"`

	// BatchSize is the record count that triggers a size-based flush, and the
	// per-transaction chunk size of every flush.
	BatchSize int `koanf:"batch_size"`

	// FlushInterval is the maximum time a buffered record waits before a
	// time-based flush picks it up.
	FlushInterval time.Duration `koanf:"flush_interval"`

	// MaxBufferSize is the hard per-category capacity. An enqueue beyond it
	// forces a synchronous flush before the record is accepted.
	MaxBufferSize int `koanf:"max_buffer_size"`

	// MaxRetries bounds re-attempts of a failed batch before it is dropped.
	MaxRetries int `koanf:"max_retries"`

	// ShutdownTimeout bounds the final drain of all buffers.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// BreakerThreshold is the consecutive store failure count that opens the
	// write circuit breaker.
	BreakerThreshold uint32 `koanf:"breaker_threshold"`
}

// CleanupConfig holds background retention settings. Tables are trimmed to
// MaxRowsPerTable, but only while request load stays under MaxLoadThreshold.
type CleanupConfig struct {
	Enabled          bool          `koanf:"enabled"`
	Interval         time.Duration `koanf:"interval"`
	MaxRowsPerTable  int           `koanf:"max_rows_per_table"`
	MaxLoadThreshold float64       `koanf:"max_load_threshold"`
	LoadWindow       time.Duration `koanf:"load_window"`
}

// SecurityConfig holds API hardening settings.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateDatabase,
		c.validateBatch,
		c.validateCleanup,
		c.validateSecurity,
	}

	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %v", c.Server.Timeout)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("database.threads must not be negative, got %d", c.Database.Threads)
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.BatchSize <= 0 {
		return fmt.Errorf("batch.batch_size must be positive, got %d", c.Batch.BatchSize)
	}
	if c.Batch.FlushInterval <= 0 {
		return fmt.Errorf("batch.flush_interval must be positive, got %v", c.Batch.FlushInterval)
	}
	if c.Batch.MaxBufferSize <= c.Batch.BatchSize {
		return fmt.Errorf("batch.max_buffer_size (%d) must exceed batch.batch_size (%d)",
			c.Batch.MaxBufferSize, c.Batch.BatchSize)
	}
	if c.Batch.MaxRetries < 0 {
		return fmt.Errorf("batch.max_retries must not be negative, got %d", c.Batch.MaxRetries)
	}
	if c.Batch.ShutdownTimeout <= 0 {
		return fmt.Errorf("batch.shutdown_timeout must be positive, got %v", c.Batch.ShutdownTimeout)
	}
	return nil
}

func (c *Config) validateCleanup() error {
	if !c.Cleanup.Enabled {
		return nil
	}
	if c.Cleanup.Interval <= 0 {
		return fmt.Errorf("cleanup.interval must be positive, got %v", c.Cleanup.Interval)
	}
	if c.Cleanup.MaxRowsPerTable <= 0 {
		return fmt.Errorf("cleanup.max_rows_per_table must be positive, got %d", c.Cleanup.MaxRowsPerTable)
	}
	if c.Cleanup.MaxLoadThreshold < 0 {
		return fmt.Errorf("cleanup.max_load_threshold must not be negative, got %f", c.Cleanup.MaxLoadThreshold)
	}
	if c.Cleanup.LoadWindow <= 0 {
		return fmt.Errorf("cleanup.load_window must be positive, got %v", c.Cleanup.LoadWindow)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs <= 0 {
			return fmt.Errorf("security.rate_limit_reqs must be positive, got %d", c.Security.RateLimitReqs)
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("security.rate_limit_window must be positive, got %v", c.Security.RateLimitWindow)
		}
	}
	return nil
}
