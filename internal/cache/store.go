// Package cache stores synthesized chunk audio and per-item download
// manifests on the durable key-value surface.
//
// Audio is keyed by (profile, chunk index), where a profile scopes an
// item's audio to a voice and mock/real mode. Cross-profile fallback
// lookups let playback surface the most recent audio for a chunk after a
// voice switch instead of playing nothing.
package cache

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marqueymarc/readflow/internal/kv"
	"github.com/marqueymarc/readflow/internal/synth"
)

// Profile scopes cached audio for an item to a voice and synthesis mode.
type Profile struct {
	ItemID string
	Voice  string
	Mock   bool
}

// Mode returns the synthesis mode component of the profile key.
func (p Profile) Mode() string {
	if p.Mock {
		return "mock"
	}
	return "real"
}

// Key returns the store key component identifying this profile. Item and
// voice are escaped so they cannot collide with the separators.
func (p Profile) Key() string {
	return escape(p.ItemID) + "|" + p.Mode() + "|" + escape(p.Voice)
}

// Manifest asserts that every chunk of an item is cached under one profile.
type Manifest struct {
	ChunkCount   int       `json:"chunk_count"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

type chunkMeta struct {
	ContentType string `json:"content_type"`
	Mock        bool   `json:"mock"`
}

// Store is the chunk/manifest cache.
type Store struct {
	kv kv.Store
}

// NewStore wraps a key-value store as a chunk cache.
func NewStore(store kv.Store) *Store {
	return &Store{kv: store}
}

// Get returns the cached payload for the exact profile and chunk.
func (s *Store) Get(profile Profile, chunkIndex int) (*synth.Payload, bool, error) {
	return s.payloadAt(chunkKey(profile.Key(), chunkIndex), metaKey(profile.Key(), chunkIndex), profile.Mock)
}

// Put caches a chunk payload under the profile.
func (s *Store) Put(profile Profile, chunkIndex int, payload *synth.Payload) error {
	meta, err := json.Marshal(chunkMeta{ContentType: payload.ContentType, Mock: payload.Mock})
	if err != nil {
		return fmt.Errorf("encode chunk meta: %w", err)
	}
	if err := s.kv.Put(chunkKey(profile.Key(), chunkIndex), payload.Audio); err != nil {
		return fmt.Errorf("cache chunk %d of %s: %w", chunkIndex, profile.ItemID, err)
	}
	if err := s.kv.Put(metaKey(profile.Key(), chunkIndex), meta); err != nil {
		return fmt.Errorf("cache chunk meta %d of %s: %w", chunkIndex, profile.ItemID, err)
	}
	return nil
}

// FindLatestForItemChunk scans every profile of the item for this chunk and
// returns the most recently written payload, regardless of voice or mode.
// Used when the exact-profile lookup misses, e.g. right after a voice
// change.
func (s *Store) FindLatestForItemChunk(itemID string, chunkIndex int) (*synth.Payload, bool, error) {
	entries, err := s.kv.Entries(chunkPrefixForItem(itemID))
	if err != nil {
		return nil, false, err
	}

	var bestKey string
	var bestAt time.Time
	suffix := "/" + strconv.Itoa(chunkIndex)
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Key, suffix) {
			continue
		}
		if bestKey == "" || entry.StoredAt.After(bestAt) {
			bestKey = entry.Key
			bestAt = entry.StoredAt
		}
	}
	if bestKey == "" {
		return nil, false, nil
	}

	return s.payloadAt(bestKey, "chunkmeta/"+strings.TrimPrefix(bestKey, "chunk/"), false)
}

// GetManifest returns the manifest for the exact profile.
func (s *Store) GetManifest(profile Profile) (*Manifest, bool, error) {
	return s.manifestAt(manifestKey(profile.Key()))
}

// FindLatestManifestForItem returns the most recently written manifest for
// the item under any profile.
func (s *Store) FindLatestManifestForItem(itemID string) (*Manifest, bool, error) {
	entries, err := s.kv.Entries("manifest/" + escape(itemID) + "|")
	if err != nil {
		return nil, false, err
	}

	var bestKey string
	var bestAt time.Time
	for _, entry := range entries {
		if bestKey == "" || entry.StoredAt.After(bestAt) {
			bestKey = entry.Key
			bestAt = entry.StoredAt
		}
	}
	if bestKey == "" {
		return nil, false, nil
	}
	return s.manifestAt(bestKey)
}

// PutManifest records that chunks 0..chunkCount-1 are cached under the
// profile. Write it only once that is actually true.
func (s *Store) PutManifest(profile Profile, chunkCount int) error {
	data, err := json.Marshal(Manifest{ChunkCount: chunkCount, DownloadedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return s.kv.Put(manifestKey(profile.Key()), data)
}

// CountCachedChunksForItem counts distinct chunk indices cached for the
// item across all profiles.
func (s *Store) CountCachedChunksForItem(itemID string) (int, error) {
	entries, err := s.kv.Entries(chunkPrefixForItem(itemID))
	if err != nil {
		return 0, err
	}
	seen := make(map[int]bool)
	for _, entry := range entries {
		if idx, ok := indexFromKey(entry.Key); ok {
			seen[idx] = true
		}
	}
	return len(seen), nil
}

// CountCachedChunksForProfile counts chunks cached under the exact profile.
func (s *Store) CountCachedChunksForProfile(profile Profile) (int, error) {
	entries, err := s.kv.Entries("chunk/" + profile.Key() + "/")
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// PruneItem deletes every chunk, meta record, and manifest for the item,
// across all profiles. Called when triage removes the item from the queue.
func (s *Store) PruneItem(itemID string) error {
	for _, prefix := range []string{
		chunkPrefixForItem(itemID),
		"chunkmeta/" + escape(itemID) + "|",
		"manifest/" + escape(itemID) + "|",
	} {
		entries, err := s.kv.Entries(prefix)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := s.kv.Delete(entry.Key); err != nil {
				return fmt.Errorf("prune %s: %w", entry.Key, err)
			}
		}
	}
	return nil
}

func (s *Store) payloadAt(audioKey, metaKeyName string, fallbackMock bool) (*synth.Payload, bool, error) {
	audio, ok, err := s.kv.Get(audioKey)
	if err != nil || !ok {
		return nil, false, err
	}

	payload := &synth.Payload{Audio: audio, Mock: fallbackMock}
	if metaData, ok, err := s.kv.Get(metaKeyName); err == nil && ok {
		var meta chunkMeta
		if json.Unmarshal(metaData, &meta) == nil {
			payload.ContentType = meta.ContentType
			payload.Mock = meta.Mock
		}
	}
	return payload, true, nil
}

func (s *Store) manifestAt(key string) (*Manifest, bool, error) {
	data, ok, err := s.kv.Get(key)
	if err != nil || !ok {
		return nil, false, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("decode manifest %s: %w", key, err)
	}
	return &m, true, nil
}

func chunkKey(profileKey string, chunkIndex int) string {
	return "chunk/" + profileKey + "/" + strconv.Itoa(chunkIndex)
}

func metaKey(profileKey string, chunkIndex int) string {
	return "chunkmeta/" + profileKey + "/" + strconv.Itoa(chunkIndex)
}

func manifestKey(profileKey string) string {
	return "manifest/" + profileKey
}

func chunkPrefixForItem(itemID string) string {
	return "chunk/" + escape(itemID) + "|"
}

func indexFromKey(key string) (int, bool) {
	slash := strings.LastIndexByte(key, '/')
	if slash < 0 {
		return 0, false
	}
	idx, err := strconv.Atoi(key[slash+1:])
	if err != nil {
		return 0, false
	}
	return idx, true
}

func escape(s string) string {
	return url.QueryEscape(s)
}
