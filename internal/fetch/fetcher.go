// Package fetch resolves chunk audio, preferring the durable cache and
// falling back to the synthesis service.
//
// Identical concurrent requests share one in-flight synthesis call, and
// fresh results are kept in a short-lived in-memory map. Only the download
// queue persists payloads durably; playback fetches stay in memory.
package fetch

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/marqueymarc/readflow/internal/cache"
	"github.com/marqueymarc/readflow/internal/synth"
)

// recentTTL is how long a synthesized payload stays in the in-memory map.
const recentTTL = 2 * time.Minute

// Fetcher resolves chunk audio bytes.
type Fetcher struct {
	cache       *cache.Store
	synthesizer synth.Synthesizer
	group       singleflight.Group

	mu     sync.Mutex
	recent map[string]recentEntry
	ttl    time.Duration
}

type recentEntry struct {
	payload *synth.Payload
	at      time.Time
}

// NewFetcher creates a fetcher over the given cache and synthesizer.
func NewFetcher(cacheStore *cache.Store, synthesizer synth.Synthesizer) *Fetcher {
	return &Fetcher{
		cache:       cacheStore,
		synthesizer: synthesizer,
		recent:      make(map[string]recentEntry),
		ttl:         recentTTL,
	}
}

// Fetch resolves the chunk's audio for playback. Lookup order: exact
// durable profile, most recent cross-profile payload (returned immediately
// while the preferred profile refetches in the background), the in-memory
// map, then one de-duplicated synthesis call.
func (f *Fetcher) Fetch(ctx context.Context, profile cache.Profile, chunkText string, chunkIndex int) (*synth.Payload, error) {
	if payload, ok, err := f.cache.Get(profile, chunkIndex); err == nil && ok {
		log.Debug("chunk cache hit", "item", profile.ItemID, "chunk", chunkIndex)
		return payload, nil
	}

	if payload, ok, err := f.cache.FindLatestForItemChunk(profile.ItemID, chunkIndex); err == nil && ok {
		log.Debug("chunk cross-profile fallback",
			"item", profile.ItemID, "chunk", chunkIndex, "voice", profile.Voice)
		f.refetchInBackground(ctx, profile, chunkText, chunkIndex)
		return payload, nil
	}

	key := dedupKey(profile, chunkIndex)
	if payload, ok := f.lookupRecent(key); ok {
		return payload, nil
	}

	return f.synthesizeShared(ctx, key, profile, chunkText, chunkIndex)
}

// FetchDurable resolves the chunk for the download queue: exact durable
// profile or a fresh synthesis call, never the in-memory map or a
// cross-profile fallback, so the caller always ends up with bytes worth
// persisting under the exact profile.
func (f *Fetcher) FetchDurable(ctx context.Context, profile cache.Profile, chunkText string, chunkIndex int) (*synth.Payload, error) {
	if payload, ok, err := f.cache.Get(profile, chunkIndex); err == nil && ok {
		return payload, nil
	}
	return f.synthesizeShared(ctx, dedupKey(profile, chunkIndex), profile, chunkText, chunkIndex)
}

// synthesizeShared performs one synthesis call per key, shared by all
// concurrent callers.
func (f *Fetcher) synthesizeShared(ctx context.Context, key string, profile cache.Profile, chunkText string, chunkIndex int) (*synth.Payload, error) {
	result, err, _ := f.group.Do(key, func() (interface{}, error) {
		payload, err := f.synthesizer.Synthesize(ctx, synth.Request{
			ItemID:     profile.ItemID,
			Text:       chunkText,
			Voice:      profile.Voice,
			ChunkIndex: chunkIndex,
			Mock:       profile.Mock,
		})
		if err != nil {
			return nil, err
		}
		payload.ContentType = classifyContentType(payload.ContentType, payload.Mock)
		f.storeRecent(key, payload)
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*synth.Payload), nil
}

// refetchInBackground fires a fetch of the preferred profile so the next
// lookup hits memory instead of the stale-profile fallback. Errors are
// ignored; this is opportunistic.
func (f *Fetcher) refetchInBackground(ctx context.Context, profile cache.Profile, chunkText string, chunkIndex int) {
	key := dedupKey(profile, chunkIndex)
	if _, ok := f.lookupRecent(key); ok {
		return
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		if _, err := f.synthesizeShared(detached, key, profile, chunkText, chunkIndex); err != nil {
			log.Debug("background refetch failed",
				"item", profile.ItemID, "chunk", chunkIndex, "error", err)
		}
	}()
}

func (f *Fetcher) lookupRecent(key string) (*synth.Payload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pruneLocked()
	entry, ok := f.recent[key]
	if !ok {
		return nil, false
	}
	return entry.payload, true
}

func (f *Fetcher) storeRecent(key string, payload *synth.Payload) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pruneLocked()
	f.recent[key] = recentEntry{payload: payload, at: time.Now()}
}

func (f *Fetcher) pruneLocked() {
	cutoff := time.Now().Add(-f.ttl)
	for key, entry := range f.recent {
		if entry.at.Before(cutoff) {
			delete(f.recent, key)
		}
	}
}

// classifyContentType substitutes a sane audio type when a synthesizer
// declares nothing useful.
func classifyContentType(contentType string, mock bool) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if strings.HasPrefix(ct, "audio/") {
		return contentType
	}
	if mock {
		return synth.MockContentType
	}
	return synth.RealContentType
}

func dedupKey(profile cache.Profile, chunkIndex int) string {
	return profile.Key() + "/" + strconv.Itoa(chunkIndex)
}
