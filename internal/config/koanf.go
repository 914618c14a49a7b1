// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/eventledger/config.yaml",
	"/etc/eventledger/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. These are loaded
// first and then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/eventledger.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Batch: BatchConfig{
			Enabled:          true,
			BatchSize:        100,
			FlushInterval:    50 * time.Millisecond,
			MaxBufferSize:    10000,
			MaxRetries:       3,
			ShutdownTimeout:  5 * time.Second,
			BreakerThreshold: 5,
		},
		Cleanup: CleanupConfig{
			Enabled:          true,
			Interval:         30 * time.Second,
			MaxRowsPerTable:  5000,
			MaxLoadThreshold: 10.0,
			LoadWindow:       60 * time.Second,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if present)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Variables that are set but empty are skipped so they cannot wipe a
	// default.
	envProvider := env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		if strings.TrimSpace(value) == "" {
			return "", nil
		}
		return envTransformFunc(key), value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches CONFIG_PATH then the default paths for a config
// file, returning the first that exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// they arrive as strings from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated env strings to slices for known
// slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - DATABASE_PATH       -> database.path
//   - BATCH_SIZE          -> batch.batch_size
//   - BATCH_FLUSH_INTERVAL -> batch.flush_interval
//   - HTTP_PORT           -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_host":               "server.host",
		"http_port":               "server.port",
		"http_timeout":            "server.timeout",
		"http_shutdown_timeout":   "server.shutdown_timeout",
		// Database (DATABASE_FILE kept for compatibility with older deploys)
		"database_file":           "database.path",
		"database_path":           "database.path",
		"database_max_memory":     "database.max_memory",
		"database_threads":        "database.threads",
		// Batch writer
		"batch_enabled":           "batch.enabled",
		"batch_size":              "batch.batch_size",
		"batch_flush_interval":    "batch.flush_interval",
		"batch_max_buffer_size":   "batch.max_buffer_size",
		"batch_max_retries":       "batch.max_retries",
		"batch_shutdown_timeout":  "batch.shutdown_timeout",
		"batch_breaker_threshold": "batch.breaker_threshold",
		// Cleanup
		"cleanup_enabled":            "cleanup.enabled",
		"cleanup_interval":           "cleanup.interval",
		"max_rows_per_table":         "cleanup.max_rows_per_table",
		"cleanup_max_load_threshold": "cleanup.max_load_threshold",
		"cleanup_load_window":        "cleanup.load_window",
		// Security (both bare and SECURITY_-prefixed forms are accepted)
		"cors_origins":                 "security.cors_origins",
		"rate_limit_reqs":              "security.rate_limit_reqs",
		"rate_limit_window":            "security.rate_limit_window",
		"rate_limit_disabled":          "security.rate_limit_disabled",
		"security_cors_origins":        "security.cors_origins",
		"security_rate_limit_reqs":     "security.rate_limit_reqs",
		"security_rate_limit_window":   "security.rate_limit_window",
		"security_rate_limit_disabled": "security.rate_limit_disabled",
		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unknown variables are dropped rather than guessed at; a stray HOSTNAME
	// or PATH must not leak into the config tree.
	return ""
}
