// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package store

import (
	"sort"
	"sync"
	"time"
)

// memoryEntry is one stored value plus its expiration bookkeeping.
type memoryEntry struct {
	id        uint64
	data      []byte
	expiresAt time.Time
}

// expiryKey is one (when, id) → key tuple in the expirations index, kept
// sorted ascending by when, ties broken by id: every keyed expiration
// appears exactly once and in timestamp order.
type expiryKey struct {
	when time.Time
	id   uint64
	key  string
}

func expiryLess(a, b expiryKey) bool {
	if a.when.Equal(b.when) {
		return a.id < b.id
	}
	return a.when.Before(b.when)
}

// memoryShared is the exclusively-owned record guarded by mu. notify
// collapses any number of pending wakeups for the purge task into one;
// an explicit wakeup channel is used instead of a fixed ticker since the
// purge task must wake early whenever a nearer expiration is scheduled.
type memoryShared struct {
	mu          sync.Mutex
	entries     map[string]*memoryEntry
	expirations []expiryKey
	pubSub      map[string]chan []byte // reserved; no operation publishes or subscribes
	nextID      uint64
	shutdown    bool
	ttl         time.Duration

	notify chan struct{}
	done   chan struct{} // closed once the purge task has exited
}

// MemoryStore is the in-memory TTL-backed storage engine ("mini-redis").
// It is a thin, cheap-to-copy handle over shared state: copying a
// MemoryStore value duplicates only the pointer, sharing the same lock
// and maps, so the same handle can be passed to every connection
// worker without duplicating state.
type MemoryStore struct {
	*memoryShared
}

// NewMemoryStore constructs a MemoryStore and starts its purge task.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	sh := &memoryShared{
		entries: make(map[string]*memoryEntry),
		pubSub:  make(map[string]chan []byte),
		ttl:     ttl,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go sh.purgeLoop()
	return &MemoryStore{sh}
}

// wake delivers one collapsible wakeup to the purge task.
func (s *memoryShared) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Get returns a copy of the stored value for key, if present. It does
// not special-case an expired-but-unpurged entry: expiration is purely
// background-driven.
func (s *memoryShared) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, true, nil
}

// Set stores value under key with the store's fixed TTL, replacing any
// prior value and its expiration bookkeeping.
func (s *memoryShared) Set(key string, value []byte) error {
	data := make([]byte, len(value))
	copy(data, value)

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	expiresAt := time.Now().Add(s.ttl)

	var notify bool
	prevEarliest := s.earliestLocked()

	if prev, ok := s.entries[key]; ok {
		s.removeExpiryLocked(expiryKey{when: prev.expiresAt, id: prev.id, key: key})
	}

	s.entries[key] = &memoryEntry{id: id, data: data, expiresAt: expiresAt}
	s.insertExpiryLocked(expiryKey{when: expiresAt, id: id, key: key})

	notify = prevEarliest == nil || expiresAt.Before(*prevEarliest)
	s.mu.Unlock()

	if notify {
		s.wake()
	}
	return nil
}

// ShutdownPurgeTask idempotently stops the purge task and waits for it
// to exit, satisfying the Engine contract's bounded-teardown guarantee.
func (s *memoryShared) ShutdownPurgeTask() {
	s.mu.Lock()
	already := s.shutdown
	s.shutdown = true
	s.mu.Unlock()
	if !already {
		s.wake()
	}
	<-s.done
}

// StatsSnapshot reports the current live-entry count.
func (s *memoryShared) StatsSnapshot() DiagSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return DiagSnapshot{Backend: "mini-redis", Entries: len(s.entries)}
}

// earliestLocked returns the earliest pending expiration, or nil. Caller
// must hold mu.
func (s *memoryShared) earliestLocked() *time.Time {
	if len(s.expirations) == 0 {
		return nil
	}
	t := s.expirations[0].when
	return &t
}

// insertExpiryLocked inserts e into the sorted expirations slice. Caller
// must hold mu.
func (s *memoryShared) insertExpiryLocked(e expiryKey) {
	idx := sort.Search(len(s.expirations), func(i int) bool {
		return expiryLess(e, s.expirations[i])
	})
	s.expirations = append(s.expirations, expiryKey{})
	copy(s.expirations[idx+1:], s.expirations[idx:])
	s.expirations[idx] = e
}

// removeExpiryLocked removes the (when, id) tuple matching e, if
// present. Caller must hold mu.
func (s *memoryShared) removeExpiryLocked(e expiryKey) {
	idx := sort.Search(len(s.expirations), func(i int) bool {
		return !expiryLess(s.expirations[i], e)
	})
	for idx < len(s.expirations) && s.expirations[idx].when.Equal(e.when) {
		if s.expirations[idx].id == e.id {
			s.expirations = append(s.expirations[:idx], s.expirations[idx+1:]...)
			return
		}
		idx++
	}
}

// drainExpiredLocked removes every expiration with when <= now from both
// maps and returns the next remaining expiration time, or nil. Caller
// must hold mu.
func (s *memoryShared) drainExpiredLocked(now time.Time) *time.Time {
	i := 0
	for i < len(s.expirations) && !s.expirations[i].when.After(now) {
		e := s.expirations[i]
		if cur, ok := s.entries[e.key]; ok && cur.id == e.id {
			delete(s.entries, e.key)
		}
		i++
	}
	if i > 0 {
		s.expirations = s.expirations[i:]
	}
	return s.earliestLocked()
}

// purgeLoop is the single background task owned by the store. It drains
// due expirations, then either sleeps until the next one or parks until
// notified, exiting as soon as shutdown is observed.
func (s *memoryShared) purgeLoop() {
	defer close(s.done)

	for {
		s.mu.Lock()
		if s.shutdown {
			s.mu.Unlock()
			return
		}
		next := s.drainExpiredLocked(time.Now())
		s.mu.Unlock()

		if next == nil {
			<-s.notify
			continue
		}

		d := time.Until(*next)
		if d <= 0 {
			continue
		}
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-s.notify:
			timer.Stop()
		}
	}
}
