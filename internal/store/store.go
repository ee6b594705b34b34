// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package store implements keydb's pluggable storage engine contract
// and its two shipped backends, selected by a config-driven
// constructor.
package store

import (
	"fmt"
	"time"
)

// DefaultTTL is the fixed time-to-live applied to every Set on the
// in-memory backend unless overridden by Config.DefaultTTL. Treated as
// intentional and operator-tunable rather than a placeholder.
const DefaultTTL = 100 * time.Second

// DiagSnapshot is a point-in-time, read-only view of a backend's
// operational state, used only by the diagnostics reporter. It never
// influences Get/Set outcomes.
type DiagSnapshot struct {
	Backend string
	// Entries is the number of live keys, or -1 when the backend does
	// not track a cheap count (the append-log backend does track one,
	// via its index).
	Entries int
}

// Engine is the capability abstraction every storage backend
// implements: Get/Set are synchronous from the caller's point of view
// (they may take a short, non-suspending lock but never block on I/O
// that could suspend the calling goroutine across a lock hold, except
// where the backend's design explicitly calls for it — see
// internal/store/appendlog.go). A handle is cheap to duplicate and safe
// for concurrent use by many connection workers.
type Engine interface {
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
	// ShutdownPurgeTask idempotently signals any background worker the
	// engine owns to exit. Dropping the last handle to an engine must
	// make its background workers stop within a bounded time.
	ShutdownPurgeTask()
	// StatsSnapshot reports a diagnostics snapshot. Never part of the
	// wire protocol.
	StatsSnapshot() DiagSnapshot
}

// Config configures whichever backend New selects.
type Config struct {
	// Backend names the engine: "mini-redis" (in-memory, TTL) or
	// "simple-store" (append-only log).
	Backend string

	// DefaultTTL overrides DefaultTTL for the in-memory backend. Zero
	// means "use DefaultTTL".
	DefaultTTL time.Duration

	// LogPath is the append-log backend's data file. Defaults to
	// "log.raphdb".
	LogPath string

	// CompressValuesAbove, when nonzero, makes the append-log backend
	// transparently zstd-compress values at or above this many bytes.
	// Zero disables compression entirely.
	CompressValuesAbove int64
}

// New selects and constructs a backend by Config.Backend.
func New(cfg Config) (Engine, error) {
	switch cfg.Backend {
	case "", "mini-redis":
		ttl := DefaultTTL
		if cfg.DefaultTTL > 0 {
			ttl = cfg.DefaultTTL
		}
		return NewMemoryStore(ttl), nil
	case "simple-store":
		path := cfg.LogPath
		if path == "" {
			path = "log.raphdb"
		}
		return NewAppendLogStore(path, cfg.CompressValuesAbove)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
