package kv

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
)

const indexFileName = "index.json"

// evictTargetFraction is how full the store is left after an eviction pass.
const evictTargetFraction = 0.9

// DiskStore is a file-backed Store. Each value lives in its own file named
// by a hash of the key; a JSON index maps keys to files and metadata.
// Values are zstd-compressed when that actually shrinks them.
//
// When a size limit is set, writes that push the store over the limit evict
// the oldest-written entries first.
type DiskStore struct {
	mu        sync.Mutex
	dir       string
	sizeLimit int64
	size      int64
	index     map[string]*diskEntry
	last      time.Time

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

type diskEntry struct {
	File       string    `json:"file"`
	Size       int64     `json:"size"`        // uncompressed
	StoredSize int64     `json:"stored_size"` // on disk
	Compressed bool      `json:"compressed"`
	StoredAt   time.Time `json:"stored_at"`
}

// NewDiskStore opens (or creates) a disk store rooted at dir. A sizeLimit
// of zero disables eviction.
func NewDiskStore(dir string, sizeLimit int64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}

	s := &DiskStore{
		dir:       dir,
		sizeLimit: sizeLimit,
		index:     make(map[string]*diskEntry),
		encoder:   encoder,
		decoder:   decoder,
	}

	if err := s.loadIndex(); err != nil {
		// A missing or corrupted index means starting fresh; the audio
		// files it pointed at get re-synthesized on demand.
		log.Debug("starting with empty store index", "dir", dir, "reason", err)
		s.index = make(map[string]*diskEntry)
	}
	for _, entry := range s.index {
		s.size += entry.StoredSize
		if entry.StoredAt.After(s.last) {
			s.last = entry.StoredAt
		}
	}

	return s, nil
}

// Get returns the value for key.
func (s *DiskStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	entry, ok := s.index[key]
	if !ok {
		s.mu.Unlock()
		return nil, false, nil
	}
	path := filepath.Join(s.dir, entry.File)
	compressed := entry.Compressed
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// The file vanished underneath the index (manual cleanup,
			// partial eviction). Treat as a miss and repair the index.
			s.mu.Lock()
			s.dropEntryLocked(key)
			s.mu.Unlock()
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}

	if compressed {
		data, err = s.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, false, fmt.Errorf("decompress %s: %w", key, err)
		}
	}
	return data, true, nil
}

// Put stores the value under key.
func (s *DiskStore) Put(key string, value []byte) error {
	stored := value
	compressed := false
	if packed := s.encoder.EncodeAll(value, nil); len(packed) < len(value) {
		stored = packed
		compressed = true
	}

	file := fileNameFor(key)
	if err := os.WriteFile(filepath.Join(s.dir, file), stored, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.index[key]; ok {
		s.size -= old.StoredSize
	}
	now := time.Now()
	if !now.After(s.last) {
		now = s.last.Add(time.Nanosecond)
	}
	s.last = now
	s.index[key] = &diskEntry{
		File:       file,
		Size:       int64(len(value)),
		StoredSize: int64(len(stored)),
		Compressed: compressed,
		StoredAt:   now,
	}
	s.size += int64(len(stored))

	if s.sizeLimit > 0 && s.size > s.sizeLimit {
		s.evictLocked()
	}
	return s.saveIndexLocked()
}

// Delete removes the key and its file.
func (s *DiskStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[key]; !ok {
		return nil
	}
	s.dropEntryLocked(key)
	return s.saveIndexLocked()
}

// Entries lists metadata for keys with the given prefix.
func (s *DiskStore) Entries(prefix string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []Entry
	for key, entry := range s.index {
		if strings.HasPrefix(key, prefix) {
			entries = append(entries, Entry{Key: key, Size: entry.Size, StoredAt: entry.StoredAt})
		}
	}
	return entries, nil
}

// Size returns the on-disk payload size.
func (s *DiskStore) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Close persists the index.
func (s *DiskStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveIndexLocked()
}

// evictLocked removes oldest-written entries until the store is back under
// the eviction target.
func (s *DiskStore) evictLocked() {
	target := int64(float64(s.sizeLimit) * evictTargetFraction)

	keys := make([]string, 0, len(s.index))
	for key := range s.index {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return s.index[keys[i]].StoredAt.Before(s.index[keys[j]].StoredAt)
	})

	var freed int64
	evicted := 0
	for _, key := range keys {
		if s.size <= target {
			break
		}
		freed += s.index[key].StoredSize
		s.dropEntryLocked(key)
		evicted++
	}
	if evicted > 0 {
		log.Info("evicted cache entries",
			"count", evicted,
			"freed", humanize.Bytes(uint64(freed)),
			"size", humanize.Bytes(uint64(s.size)))
	}
}

func (s *DiskStore) dropEntryLocked(key string) {
	entry, ok := s.index[key]
	if !ok {
		return
	}
	_ = os.Remove(filepath.Join(s.dir, entry.File))
	s.size -= entry.StoredSize
	delete(s.index, key)
}

func (s *DiskStore) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFileName))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &s.index)
}

func (s *DiskStore) saveIndexLocked() error {
	data, err := json.Marshal(s.index)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, indexFileName), data, 0o600)
}

// fileNameFor derives a filesystem-safe file name from a store key.
func fileNameFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16]) + ".bin"
}
