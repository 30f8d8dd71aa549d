// Package kv provides the durable key-value surface the engine builds its
// chunk cache and resume records on. Values are opaque byte payloads.
package kv

import "time"

// Entry describes a stored value without its payload.
type Entry struct {
	Key      string
	Size     int64 // uncompressed payload size
	StoredAt time.Time
}

// Store is a flat durable key-value store.
type Store interface {
	// Get returns the value for key, reporting whether it exists.
	Get(key string) ([]byte, bool, error)

	// Put stores the value under key, replacing any existing value.
	Put(key string, value []byte) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(key string) error

	// Entries lists metadata for every key with the given prefix.
	Entries(prefix string) ([]Entry, error)

	// Close flushes any pending state.
	Close() error
}
