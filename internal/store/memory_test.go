// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package store

import (
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreSetGet(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.ShutdownPurgeTask()

	if err := s.Set("foo", []byte("bar")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get("foo")
	if err != nil || !ok || string(v) != "bar" {
		t.Fatalf("Get = (%q, %v, %v), want (bar, true, nil)", v, ok, err)
	}
}

func TestMemoryStoreOverwrite(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.ShutdownPurgeTask()

	s.Set("foo", []byte("v1"))
	s.Set("foo", []byte("v2"))

	v, ok, _ := s.Get("foo")
	if !ok || string(v) != "v2" {
		t.Fatalf("Get = (%q, %v), want (v2, true)", v, ok)
	}

	// Overwriting must not leak a stale expirations entry.
	if len(s.expirations) != 1 {
		t.Fatalf("expirations length = %d, want 1", len(s.expirations))
	}
}

func TestMemoryStoreMissReturnsNotOK(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.ShutdownPurgeTask()

	_, ok, err := s.Get("missing")
	if err != nil || ok {
		t.Fatalf("Get = (_, %v, %v), want (false, nil)", ok, err)
	}
}

func TestMemoryStoreExpiryPurge(t *testing.T) {
	s := NewMemoryStore(20 * time.Millisecond)
	defer s.ShutdownPurgeTask()

	s.Set("foo", []byte("bar"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		_, present := s.entries["foo"]
		s.mu.Unlock()
		if !present {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expired entry was never purged from entries map")
}

func TestMemoryStoreConcurrentSetsAllReadable(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.ShutdownPurgeTask()

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			s.Set(key, []byte{byte(i)})
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		key := string(rune('a' + i))
		v, ok, err := s.Get(key)
		if err != nil || !ok || len(v) != 1 || v[0] != byte(i) {
			t.Fatalf("Get(%q) = (%v, %v, %v), want ([%d], true, nil)", key, v, ok, err, i)
		}
	}
}

func TestMemoryStoreShutdownStopsPurgeTaskPromptly(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	s.Set("foo", []byte("bar"))

	done := make(chan struct{})
	go func() {
		s.ShutdownPurgeTask()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ShutdownPurgeTask did not return in time")
	}

	// Idempotent: calling again must not hang or panic.
	s.ShutdownPurgeTask()
}

func TestMemoryStoreStatsSnapshot(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.ShutdownPurgeTask()

	s.Set("a", []byte("1"))
	s.Set("b", []byte("2"))

	snap := s.StatsSnapshot()
	if snap.Backend != "mini-redis" || snap.Entries != 2 {
		t.Fatalf("StatsSnapshot = %+v, want Backend=mini-redis Entries=2", snap)
	}
}
