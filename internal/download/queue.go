// Package download drives background, one-at-a-time chunk downloads so
// items can be listened to offline.
//
// The queue serializes all durable cache writes: it fetches every chunk of
// an enqueued item in order, persists each payload, and writes the item's
// manifest once the last chunk is cached. One item's failure never stops
// the queue.
package download

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/marqueymarc/readflow/internal/cache"
	"github.com/marqueymarc/readflow/internal/chunker"
	"github.com/marqueymarc/readflow/internal/feed"
	"github.com/marqueymarc/readflow/internal/fetch"
)

// Progress reports download completion for one item.
type Progress struct {
	ItemID     string
	Percent    float64
	ChunksDone int
	ChunkCount int
}

// Config wires a Queue's collaborators.
type Config struct {
	Fetcher *fetch.Fetcher
	Cache   *cache.Store
	Chunks  *chunker.Cache

	// ProfileFor binds an item to the current voice and synthesis mode.
	ProfileFor func(itemID string) cache.Profile

	// OnProgress, OnDone, and OnError are optional observers, called from
	// the worker goroutine. OnDone fires only after the item's manifest is
	// written; for any one item, exactly one of OnDone and OnError fires.
	OnProgress func(Progress)
	OnDone     func(itemID string)
	OnError    func(itemID string, err error)
}

// Queue downloads items' chunks in the background, pausable between chunks.
type Queue struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	cond     *sync.Cond
	pending  []feed.Item
	queued   map[string]bool
	current  string
	progress map[string]float64
	paused   bool
	closed   bool
	wg       sync.WaitGroup
}

// NewQueue creates a queue and starts its worker.
func NewQueue(cfg Config) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		queued:   make(map[string]bool),
		progress: make(map[string]float64),
	}
	q.cond = sync.NewCond(&q.mu)

	q.wg.Add(1)
	go q.run()
	return q
}

// Enqueue appends items not already queued or downloading.
func (q *Queue) Enqueue(items ...feed.Item) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	for _, item := range items {
		if q.queued[item.ID] || q.current == item.ID {
			continue
		}
		q.queued[item.ID] = true
		q.pending = append(q.pending, item)
		log.Debug("download queued", "item", item.ID, "title", item.Title)
	}
	q.cond.Broadcast()
}

// Pause stops the worker before its next chunk. A fetch already in flight
// completes first.
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = true
}

// Resume lets a paused worker continue.
func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = false
	q.cond.Broadcast()
}

// Progress returns the item's download percentage, if it is known.
func (q *Queue) Progress(itemID string) (float64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	pct, ok := q.progress[itemID]
	return pct, ok
}

// IsFullyDownloaded reports whether every current chunk of the item is
// cached. A manifest is authoritative; without one, cached chunks are
// counted.
func (q *Queue) IsFullyDownloaded(item feed.Item) bool {
	chunkCount := len(q.cfg.Chunks.ForItem(item.ID, item.SpeechText()))

	if manifest, ok, err := q.cfg.Cache.FindLatestManifestForItem(item.ID); err == nil && ok {
		if manifest.ChunkCount >= chunkCount {
			return true
		}
	}
	cached, err := q.cfg.Cache.CountCachedChunksForItem(item.ID)
	return err == nil && cached >= chunkCount
}

// Close stops the worker. An in-flight fetch is canceled.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		for (len(q.pending) == 0 || q.paused) && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		item := q.pending[0]
		q.pending = q.pending[1:]
		delete(q.queued, item.ID)
		q.current = item.ID
		q.mu.Unlock()

		if err := q.downloadItem(item); err != nil {
			log.Warn("download aborted", "item", item.ID, "error", err)
			if q.cfg.OnError != nil {
				q.cfg.OnError(item.ID, err)
			}
		} else if q.cfg.OnDone != nil {
			q.cfg.OnDone(item.ID)
		}

		q.mu.Lock()
		q.current = ""
		q.mu.Unlock()
	}
}

// downloadItem fetches and persists every chunk of the item in order, then
// writes its manifest. Pause is honored between chunks.
func (q *Queue) downloadItem(item feed.Item) error {
	profile := q.cfg.ProfileFor(item.ID)
	chunks := q.cfg.Chunks.ForItem(item.ID, item.SpeechText())

	var totalBytes int64
	for i, chunk := range chunks {
		if !q.waitWhilePaused() {
			return q.ctx.Err()
		}

		text := chunk
		if text == "" {
			text = item.Title
		}

		payload, err := q.cfg.Fetcher.FetchDurable(q.ctx, profile, text, i)
		if err != nil {
			return err
		}
		if err := q.cfg.Cache.Put(profile, i, payload); err != nil {
			return err
		}

		totalBytes += int64(len(payload.Audio))
		q.reportProgress(item.ID, i+1, len(chunks))
	}

	if err := q.cfg.Cache.PutManifest(profile, len(chunks)); err != nil {
		return err
	}
	log.Info("download complete",
		"item", item.ID,
		"chunks", len(chunks),
		"size", humanize.Bytes(uint64(totalBytes)))
	return nil
}

// waitWhilePaused blocks while the queue is paused. It returns false when
// the queue closed instead.
func (q *Queue) waitWhilePaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.paused && !q.closed {
		q.cond.Wait()
	}
	return !q.closed
}

func (q *Queue) reportProgress(itemID string, done, total int) {
	pct := float64(done) / float64(total) * 100
	q.mu.Lock()
	q.progress[itemID] = pct
	q.mu.Unlock()

	if q.cfg.OnProgress != nil {
		q.cfg.OnProgress(Progress{ItemID: itemID, Percent: pct, ChunksDone: done, ChunkCount: total})
	}
}
