// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config loads keydb's YAML server configuration: read file,
// yaml.Unmarshal, then apply defaults and validate.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is keydb-server's full YAML-backed configuration.
type Config struct {
	Server      ServerInfo      `yaml:"server"`
	Store       StoreInfo       `yaml:"store"`
	Logging     LoggingInfo     `yaml:"logging"`
	Diagnostics DiagnosticsInfo `yaml:"diagnostics"`
}

// ServerInfo controls the listener and admission control.
type ServerInfo struct {
	Listen         string `yaml:"listen"`          // default: "127.0.0.1:6379"
	MaxConnections int    `yaml:"max_connections"` // default: 250
	Backend        string `yaml:"backend"`         // mini-redis | simple-store (default: mini-redis)
}

// StoreInfo configures whichever backend Server.Backend selects.
type StoreInfo struct {
	DefaultTTLMillis    int64 `yaml:"default_ttl_millis"`    // default: 100000
	LogPath             string `yaml:"log_path"`             // simple-store only; default: "log.raphdb"
	CompressValuesAbove int64  `yaml:"compress_values_above"` // bytes; 0 disables compression
	MaxBytesPerSec      int64  `yaml:"max_bytes_per_sec"`     // 0 disables the per-connection throttle
}

// LoggingInfo configures the structured logger.
type LoggingInfo struct {
	Level  string `yaml:"level"`  // debug|info|warn|error (default: info)
	Format string `yaml:"format"` // json|text (default: json)
	File   string `yaml:"file"`   // optional additional sink
}

// DiagnosticsInfo configures the periodic diagnostics reporter.
type DiagnosticsInfo struct {
	// IntervalRaw is the YAML-facing duration string (e.g. "15s"); yaml.v3
	// has no special-casing for time.Duration, so it is parsed into
	// Interval by validate rather than decoded directly.
	IntervalRaw string        `yaml:"interval"`     // default: "15s"; ignored if Schedule is set
	Interval    time.Duration `yaml:"-"`            // parsed from IntervalRaw by validate
	Schedule    string        `yaml:"schedule"`     // optional 5-field cron expression
	EventsFile  string        `yaml:"events_file"`  // optional JSONL sink
}

// Load reads and validates path as a keydb server config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:6379"
	}
	if c.Server.MaxConnections <= 0 {
		c.Server.MaxConnections = 250
	}
	if c.Server.Backend == "" {
		c.Server.Backend = "mini-redis"
	}
	if c.Store.DefaultTTLMillis <= 0 {
		c.Store.DefaultTTLMillis = 100000
	}
	if c.Store.LogPath == "" {
		c.Store.LogPath = "log.raphdb"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Diagnostics.IntervalRaw == "" && c.Diagnostics.Schedule == "" {
		c.Diagnostics.IntervalRaw = "15s"
	}
}

func (c *Config) validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	backend := strings.ToLower(strings.TrimSpace(c.Server.Backend))
	if backend != "mini-redis" && backend != "simple-store" {
		return fmt.Errorf("server.backend must be mini-redis or simple-store, got %q", c.Server.Backend)
	}
	c.Server.Backend = backend
	if c.Server.MaxConnections <= 0 {
		return fmt.Errorf("server.max_connections must be > 0, got %d", c.Server.MaxConnections)
	}
	if c.Store.DefaultTTLMillis <= 0 {
		return fmt.Errorf("store.default_ttl_millis must be > 0, got %d", c.Store.DefaultTTLMillis)
	}
	if c.Store.CompressValuesAbove < 0 {
		return fmt.Errorf("store.compress_values_above must be >= 0, got %d", c.Store.CompressValuesAbove)
	}
	if c.Store.MaxBytesPerSec < 0 {
		return fmt.Errorf("store.max_bytes_per_sec must be >= 0, got %d", c.Store.MaxBytesPerSec)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug|info|warn|error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	if c.Diagnostics.IntervalRaw != "" {
		d, err := time.ParseDuration(c.Diagnostics.IntervalRaw)
		if err != nil {
			return fmt.Errorf("diagnostics.interval: invalid duration %q: %w", c.Diagnostics.IntervalRaw, err)
		}
		if d < 0 {
			return fmt.Errorf("diagnostics.interval must be >= 0, got %s", d)
		}
		c.Diagnostics.Interval = d
	}
	return nil
}

// DefaultTTL returns the configured default TTL as a time.Duration.
func (c *Config) DefaultTTL() time.Duration {
	return time.Duration(c.Store.DefaultTTLMillis) * time.Millisecond
}
