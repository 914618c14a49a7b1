// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if !cfg.Batch.Enabled {
		t.Error("Batch.Enabled = false, want true by default")
	}
	if cfg.Batch.BatchSize != 100 {
		t.Errorf("Batch.BatchSize = %d, want 100", cfg.Batch.BatchSize)
	}
	if cfg.Batch.FlushInterval != 50*time.Millisecond {
		t.Errorf("Batch.FlushInterval = %s, want 50ms", cfg.Batch.FlushInterval)
	}
	if cfg.Batch.MaxRetries != 3 {
		t.Errorf("Batch.MaxRetries = %d, want 3", cfg.Batch.MaxRetries)
	}
	if cfg.Cleanup.MaxRowsPerTable != 5000 {
		t.Errorf("Cleanup.MaxRowsPerTable = %d, want 5000", cfg.Cleanup.MaxRowsPerTable)
	}
	if len(cfg.Security.CORSOrigins) != 1 || cfg.Security.CORSOrigins[0] != "*" {
		t.Errorf("Security.CORSOrigins = %v, want [*]", cfg.Security.CORSOrigins)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BATCH_SIZE", "250")
	t.Setenv("BATCH_FLUSH_INTERVAL", "200ms")
	t.Setenv("DATABASE_FILE", ":memory:")
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("MAX_ROWS_PER_TABLE", "1234")
	t.Setenv("SECURITY_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Batch.BatchSize != 250 {
		t.Errorf("Batch.BatchSize = %d, want 250", cfg.Batch.BatchSize)
	}
	if cfg.Batch.FlushInterval != 200*time.Millisecond {
		t.Errorf("Batch.FlushInterval = %s, want 200ms", cfg.Batch.FlushInterval)
	}
	if cfg.Database.Path != ":memory:" {
		t.Errorf("Database.Path = %s, want :memory:", cfg.Database.Path)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Cleanup.MaxRowsPerTable != 1234 {
		t.Errorf("Cleanup.MaxRowsPerTable = %d, want 1234", cfg.Cleanup.MaxRowsPerTable)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[0] != want[0] || cfg.Security.CORSOrigins[1] != want[1] {
		t.Errorf("Security.CORSOrigins = %v, want %v", cfg.Security.CORSOrigins, want)
	}
}

func TestLoad_EmptyEnvValueKeepsDefault(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "")
	t.Setenv("HTTP_PORT", " ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Security.CORSOrigins) != 1 || cfg.Security.CORSOrigins[0] != "*" {
		t.Errorf("Security.CORSOrigins = %v, want default [*] when env var is empty", cfg.Security.CORSOrigins)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want default 5000 when env var is blank", cfg.Server.Port)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("batch:\n  batch_size: 42\nserver:\n  port: 9999\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Batch.BatchSize != 42 {
		t.Errorf("Batch.BatchSize = %d, want 42 from file", cfg.Batch.BatchSize)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999 from file", cfg.Server.Port)
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("batch:\n  batch_size: 42\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("BATCH_SIZE", "77")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Batch.BatchSize != 77 {
		t.Errorf("Batch.BatchSize = %d, want env value 77", cfg.Batch.BatchSize)
	}
}

func TestLoad_InvalidRejected(t *testing.T) {
	t.Setenv("BATCH_SIZE", "0")
	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted batch_size=0")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"port too low", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, true},
		{"empty database path", func(c *Config) { c.Database.Path = "" }, true},
		{"zero batch size", func(c *Config) { c.Batch.BatchSize = 0 }, true},
		{"zero flush interval", func(c *Config) { c.Batch.FlushInterval = 0 }, true},
		{"buffer below batch", func(c *Config) { c.Batch.MaxBufferSize = 50 }, true},
		{"negative retries", func(c *Config) { c.Batch.MaxRetries = -1 }, true},
		{"zero shutdown timeout", func(c *Config) { c.Batch.ShutdownTimeout = 0 }, true},
		{"zero cleanup interval", func(c *Config) { c.Cleanup.Interval = 0 }, true},
		{"negative load threshold", func(c *Config) { c.Cleanup.MaxLoadThreshold = -1 }, true},
		{"cleanup disabled skips checks", func(c *Config) { c.Cleanup.Enabled = false; c.Cleanup.Interval = 0 }, false},
		{"zero rate limit", func(c *Config) { c.Security.RateLimitReqs = 0 }, true},
		{"rate limit disabled skips checks", func(c *Config) { c.Security.RateLimitDisabled = true; c.Security.RateLimitReqs = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
