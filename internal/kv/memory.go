package kv

import (
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store, used in tests and as a scratch store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	last    time.Time
}

type memoryEntry struct {
	value    []byte
	storedAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Get returns the value for key.
func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, true, nil
}

// Put stores the value under key.
func (s *MemoryStore) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	// Strictly increasing timestamps keep recency ordering well defined
	// even when writes land within the clock's resolution.
	now := time.Now()
	if !now.After(s.last) {
		now = s.last.Add(time.Nanosecond)
	}
	s.last = now
	s.entries[key] = memoryEntry{value: stored, storedAt: now}
	return nil
}

// Delete removes the key.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Entries lists metadata for keys with the given prefix.
func (s *MemoryStore) Entries(prefix string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []Entry
	for key, entry := range s.entries {
		if strings.HasPrefix(key, prefix) {
			entries = append(entries, Entry{
				Key:      key,
				Size:     int64(len(entry.value)),
				StoredAt: entry.storedAt,
			})
		}
	}
	return entries, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }
