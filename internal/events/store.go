// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// defaultRingCapacity bounds the in-memory ring when a caller does not
// care to tune it.
const defaultRingCapacity = 256

// defaultMaxLines is the line count past which Store rewrites its file
// keeping only the newest half.
const defaultMaxLines = 10000

// Store pairs an in-memory Ring with a JSONL file sink: every Push
// appends one JSON line to the file, and the ring is repopulated from
// the file's tail at construction time. When path is empty, Store still
// works as a pure in-memory ring (no file I/O) — this is how the
// diagnostics reporter behaves when no events file is configured.
type Store struct {
	ring *Ring

	mu        sync.Mutex // guards file + lineCount + rotation
	file      *os.File
	path      string
	maxLines  int
	lineCount int
}

// NewStore opens (creating if absent) the JSONL file at path — or
// builds a file-less, ring-only store when path is empty — and
// populates the ring from any existing entries.
func NewStore(path string, ringCapacity, maxLines int) (*Store, error) {
	if ringCapacity <= 0 {
		ringCapacity = defaultRingCapacity
	}
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}

	ring := newRing(ringCapacity)
	if path == "" {
		return &Store{ring: ring, maxLines: maxLines}, nil
	}

	entries, lineCount, err := loadJSONL(path)
	if err != nil {
		return nil, fmt.Errorf("events: loading %q: %w", path, err)
	}
	start := 0
	if len(entries) > ringCapacity {
		start = len(entries) - ringCapacity
	}
	for _, e := range entries[start:] {
		ring.Push(e)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("events: opening %q for append: %w", path, err)
	}

	return &Store{ring: ring, file: f, path: path, maxLines: maxLines, lineCount: lineCount}, nil
}

func loadJSONL(path string) ([]EventEntry, int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	defer f.Close()

	var entries []EventEntry
	lineCount := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineCount++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e EventEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue // malformed lines are skipped, not fatal
		}
		entries = append(entries, e)
	}
	return entries, lineCount, scanner.Err()
}

// Push records e in the ring and, if a file is configured, appends it
// as one JSON line. A marshal or write failure is swallowed: the event
// log must never be the reason a KV request fails.
func (s *Store) Push(e EventEntry) {
	s.ring.Push(e)
	if s.file == nil {
		return
	}

	recent := s.ring.Recent(1)
	if len(recent) == 0 {
		return
	}
	filled := recent[0]

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(filled)
	if err != nil {
		return
	}
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return
	}
	s.lineCount++
	if s.lineCount > s.maxLines {
		s.rotateLocked()
	}
}

// Recent returns up to limit most recent entries, oldest first.
func (s *Store) Recent(limit int) []EventEntry { return s.ring.Recent(limit) }

// Len reports the number of entries currently buffered in the ring.
func (s *Store) Len() int { return s.ring.Len() }

// Close closes the underlying file handle, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// rotateLocked keeps only the newest maxLines/2 lines on disk. Caller
// must hold mu.
func (s *Store) rotateLocked() {
	keep := s.maxLines / 2
	entries, _, err := loadJSONL(s.path)
	if err != nil || len(entries) <= keep {
		return
	}
	entries = entries[len(entries)-keep:]

	s.file.Close()

	f, err := os.Create(s.path)
	if err != nil {
		s.file, _ = os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		return
	}
	w := bufio.NewWriter(f)
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	w.Flush()
	f.Close()

	s.file, err = os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	s.lineCount = len(entries)
}
