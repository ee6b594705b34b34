// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "server:\n  listen: \"127.0.0.1:6379\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.MaxConnections != 250 {
		t.Errorf("MaxConnections = %d, want 250", cfg.Server.MaxConnections)
	}
	if cfg.Server.Backend != "mini-redis" {
		t.Errorf("Backend = %q, want mini-redis", cfg.Server.Backend)
	}
	if cfg.Store.DefaultTTLMillis != 100000 {
		t.Errorf("DefaultTTLMillis = %d, want 100000", cfg.Store.DefaultTTLMillis)
	}
	if cfg.DefaultTTL() != 100*time.Second {
		t.Errorf("DefaultTTL() = %v, want 100s", cfg.DefaultTTL())
	}
	if cfg.Store.LogPath != "log.raphdb" {
		t.Errorf("LogPath = %q, want log.raphdb", cfg.Store.LogPath)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want level=info format=json", cfg.Logging)
	}
	if cfg.Diagnostics.Interval != 15*time.Second {
		t.Errorf("Diagnostics.Interval = %v, want 15s", cfg.Diagnostics.Interval)
	}
}

func TestLoadFullExample(t *testing.T) {
	content := `
server:
  listen: "0.0.0.0:6380"
  max_connections: 64
  backend: "simple-store"
store:
  default_ttl_millis: 5000
  log_path: "/tmp/keydb/log.raphdb"
  compress_values_above: 1024
  max_bytes_per_sec: 1048576
logging:
  level: "debug"
  format: "text"
  file: "/tmp/keydb/keydb.log"
diagnostics:
  interval: "30s"
  events_file: "/tmp/keydb/events.jsonl"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != "0.0.0.0:6380" || cfg.Server.MaxConnections != 64 || cfg.Server.Backend != "simple-store" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Store.DefaultTTLMillis != 5000 || cfg.Store.CompressValuesAbove != 1024 || cfg.Store.MaxBytesPerSec != 1048576 {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Diagnostics.Interval != 30*time.Second {
		t.Errorf("Diagnostics.Interval = %v, want 30s", cfg.Diagnostics.Interval)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeTempConfig(t, "server:\n  listen: \"127.0.0.1:6379\"\n  backend: \"redis-cluster\"\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load with an unknown backend succeeded, want error")
	}
}

func TestLoadRejectsUnknownLoggingLevel(t *testing.T) {
	path := writeTempConfig(t, "server:\n  listen: \"127.0.0.1:6379\"\nlogging:\n  level: \"verbose\"\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load with an unknown logging level succeeded, want error")
	}
}

func TestLoadRejectsNegativeCompressionThreshold(t *testing.T) {
	path := writeTempConfig(t, "server:\n  listen: \"127.0.0.1:6379\"\nstore:\n  compress_values_above: -1\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load with a negative compress_values_above succeeded, want error")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/path/keydb.yaml"); err == nil {
		t.Fatal("Load of a missing file succeeded, want error")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "{{not valid yaml")
	if _, err := Load(path); err == nil {
		t.Fatal("Load of invalid YAML succeeded, want error")
	}
}

func TestScheduleDisablesDefaultInterval(t *testing.T) {
	path := writeTempConfig(t, "server:\n  listen: \"127.0.0.1:6379\"\ndiagnostics:\n  schedule: \"0 * * * *\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Diagnostics.Interval != 0 {
		t.Errorf("Diagnostics.Interval = %v, want 0 when a cron schedule is set", cfg.Diagnostics.Interval)
	}
	if cfg.Diagnostics.Schedule != "0 * * * *" {
		t.Errorf("Diagnostics.Schedule = %q", cfg.Diagnostics.Schedule)
	}
}
