// Package resume snapshots playback position so listening continues where
// it left off across restarts.
//
// Writes are debounced: continuous position updates during playback
// coalesce into one durable write per debounce window.
package resume

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/marqueymarc/readflow/internal/kv"
)

// DefaultDebounce is the default write-coalescing window.
const DefaultDebounce = 250 * time.Millisecond

const lastPlayedKey = "resume/last"

// State is one item's saved playback position.
type State struct {
	ChunkIndex int     `json:"chunk_index"`
	Offset     float64 `json:"offset_seconds"`
	Absolute   float64 `json:"absolute_seconds"`
}

// Saver persists resume records with debounced writes.
type Saver struct {
	kv       kv.Store
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]State
	lastID  string
	dirty   bool
	timer   *time.Timer
}

// NewSaver creates a saver. debounce <= 0 uses the default.
func NewSaver(store kv.Store, debounce time.Duration) *Saver {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Saver{
		kv:       store,
		debounce: debounce,
		pending:  make(map[string]State),
	}
}

// Save records the item's position and marks it as last played. The write
// lands after the debounce window unless Flush is called first.
func (s *Saver) Save(itemID string, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[itemID] = state
	s.lastID = itemID
	s.dirty = true
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.flushTimer)
	} else {
		s.timer.Reset(s.debounce)
	}
}

// Flush writes all pending records immediately.
func (s *Saver) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	pending := s.pending
	lastID := s.lastID
	dirty := s.dirty
	s.pending = make(map[string]State)
	s.dirty = false
	s.mu.Unlock()

	if !dirty {
		return nil
	}
	for itemID, state := range pending {
		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("encode resume state: %w", err)
		}
		if err := s.kv.Put(stateKey(itemID), data); err != nil {
			return fmt.Errorf("save resume state for %s: %w", itemID, err)
		}
	}
	if lastID != "" {
		if err := s.kv.Put(lastPlayedKey, []byte(lastID)); err != nil {
			return fmt.Errorf("save last played: %w", err)
		}
	}
	return nil
}

// Load returns the item's saved position. Pending unflushed saves win over
// the durable record.
func (s *Saver) Load(itemID string) (State, bool, error) {
	s.mu.Lock()
	if state, ok := s.pending[itemID]; ok {
		s.mu.Unlock()
		return state, true, nil
	}
	s.mu.Unlock()

	data, ok, err := s.kv.Get(stateKey(itemID))
	if err != nil || !ok {
		return State{}, false, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, false, fmt.Errorf("decode resume state for %s: %w", itemID, err)
	}
	return state, true, nil
}

// LastPlayed returns the id of the most recently played item.
func (s *Saver) LastPlayed() (string, bool, error) {
	s.mu.Lock()
	if s.lastID != "" {
		id := s.lastID
		s.mu.Unlock()
		return id, true, nil
	}
	s.mu.Unlock()

	data, ok, err := s.kv.Get(lastPlayedKey)
	if err != nil || !ok {
		return "", false, err
	}
	return string(data), true, nil
}

// Forget drops the item's resume record, typically after triage removal.
func (s *Saver) Forget(itemID string) error {
	s.mu.Lock()
	delete(s.pending, itemID)
	if s.lastID == itemID {
		s.lastID = ""
	}
	s.mu.Unlock()
	return s.kv.Delete(stateKey(itemID))
}

// Close flushes pending records and stops the debounce timer.
func (s *Saver) Close() error {
	return s.Flush()
}

func (s *Saver) flushTimer() {
	if err := s.Flush(); err != nil {
		log.Warn("resume snapshot write failed", "error", err)
	}
}

func stateKey(itemID string) string {
	return "resume/" + url.QueryEscape(itemID)
}
