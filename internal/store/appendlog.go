// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package store

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// AppendLogStore is the "simple-store" backend: an append-only log of
// "key,value\n" records plus an in-memory offset index rebuilt by
// replaying the log at startup. The value field is hex-encoded so the
// format tag and zstd payload encodeValue produces can never contain a
// literal ',' or '\n' and desync the line-oriented framing. Unlike
// MemoryStore it owns no background task: ShutdownPurgeTask is a no-op,
// since this backend never ran a purge cycle to begin with.
type AppendLogStore struct {
	*appendLogShared
}

type appendLogShared struct {
	path string

	// writeMu serializes appends: open-stat-write-fsync-close must run
	// as one unit so the offset read under it is always the true
	// current file length.
	writeMu sync.Mutex

	// indexMu guards index, which maps a key to the byte offset of the
	// start of its most recent record.
	indexMu sync.RWMutex
	index   map[string]int64

	compressThreshold int64
}

// NewAppendLogStore opens (creating if absent) the log at path and
// recovers its index by replaying every record in order, so later
// records win ties on duplicate keys.
func NewAppendLogStore(path string, compressThreshold int64) (*AppendLogStore, error) {
	sh := &appendLogShared{
		path:              path,
		index:             make(map[string]int64),
		compressThreshold: compressThreshold,
	}
	if err := sh.recover(); err != nil {
		return nil, err
	}
	return &AppendLogStore{sh}, nil
}

// recover replays the log file from byte 0, rebuilding index. A record
// missing its comma separator is a corruption error that aborts
// startup.
func (s *appendLogShared) recover() error {
	f, err := os.OpenFile(s.path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("store: opening append log %q: %w", s.path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var offset int64
	for {
		line, readErr := r.ReadString('\n')
		if len(line) > 0 {
			if !strings.HasSuffix(line, "\n") {
				return fmt.Errorf("store: append log %q: truncated final record at offset %d", s.path, offset)
			}
			trimmed := line[:len(line)-1]
			sep := strings.IndexByte(trimmed, ',')
			if sep < 0 {
				return fmt.Errorf("store: append log %q: corrupt record at offset %d: missing field separator", s.path, offset)
			}
			key := trimmed[:sep]
			s.index[key] = offset
			offset += int64(len(line))
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return fmt.Errorf("store: append log %q: %w", s.path, readErr)
		}
	}
	return nil
}

// Get looks up key's offset in the index, then reads and validates the
// record directly from disk: the key recovered from the record must
// match the key that led to this offset, otherwise the index and the
// file have diverged and that is reported as an error rather than
// silently returning the wrong value.
func (s *appendLogShared) Get(key string) ([]byte, bool, error) {
	s.indexMu.RLock()
	offset, ok := s.index[key]
	s.indexMu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, false, err
	}
	r := bufio.NewReader(f)
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, false, err
	}
	trimmed := strings.TrimSuffix(line, "\n")
	sep := strings.IndexByte(trimmed, ',')
	if sep < 0 {
		return nil, false, fmt.Errorf("store: append log %q: corrupt record at offset %d: missing field separator", s.path, offset)
	}
	gotKey := trimmed[:sep]
	if gotKey != key {
		return nil, false, fmt.Errorf("store: append log %q: index integrity check failed for key %q at offset %d (found %q)", s.path, key, offset, gotKey)
	}

	stored, err := hex.DecodeString(trimmed[sep+1:])
	if err != nil {
		return nil, false, fmt.Errorf("store: append log %q: corrupt record at offset %d: %w", s.path, offset, err)
	}
	decoded, err := decodeValue(stored)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

// Set appends a new record and then updates the index, so a reader
// observing the new offset never races ahead of the bytes it points to.
//
// The key is written as-is: a key containing ',' or '\n' will corrupt
// the log on replay, since recover and Get split each record on the
// first comma with no escaping. This mirrors the format's documented
// field-separator limitation rather than working around it.
func (s *appendLogShared) Set(key string, value []byte) error {
	formatted := hex.EncodeToString(encodeValue(value, s.compressThreshold))

	record := make([]byte, 0, len(key)+1+len(formatted)+1)
	record = append(record, key...)
	record = append(record, ',')
	record = append(record, formatted...)
	record = append(record, '\n')

	offset, err := s.appendRecord(record)
	if err != nil {
		return err
	}

	s.indexMu.Lock()
	s.index[key] = offset
	s.indexMu.Unlock()
	return nil
}

// appendRecord writes record to the end of the log and returns the byte
// offset it was written at.
func (s *appendLogShared) appendRecord(record []byte) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	offset := info.Size()

	if _, err := f.Write(record); err != nil {
		return 0, err
	}
	if err := f.Sync(); err != nil {
		return 0, err
	}
	return offset, nil
}

// ShutdownPurgeTask is a no-op: the append-log backend owns no
// background worker.
func (s *appendLogShared) ShutdownPurgeTask() {}

// StatsSnapshot reports the number of distinct keys in the index. This
// is the live key count, not the record count: overwritten keys are
// counted once.
func (s *appendLogShared) StatsSnapshot() DiagSnapshot {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return DiagSnapshot{Backend: "simple-store", Entries: len(s.index)}
}
