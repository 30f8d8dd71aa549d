// Package player orchestrates chunked audio playback for the listening
// queue: loading chunks through the fetcher, advancing at chunk and item
// boundaries, and persisting resume points.
//
// Every load captures a token from a monotonic counter; bumping the
// counter makes older in-flight loads inert. That token discipline is the
// only cancellation mechanism, so stale results are discarded rather than
// aborted.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/marqueymarc/readflow/internal/cache"
	"github.com/marqueymarc/readflow/internal/chunker"
	"github.com/marqueymarc/readflow/internal/download"
	"github.com/marqueymarc/readflow/internal/durations"
	"github.com/marqueymarc/readflow/internal/feed"
	"github.com/marqueymarc/readflow/internal/fetch"
	"github.com/marqueymarc/readflow/internal/resume"
)

// Options wires a Session's collaborators.
type Options struct {
	Device    Device
	Fetcher   *fetch.Fetcher
	Cache     *cache.Store
	Chunks    *chunker.Cache
	Durations *durations.Model
	Resume    *resume.Saver

	// Downloads is optional; without it the offline fallback is disabled.
	Downloads *download.Queue

	// ProfileFor binds an item to the current voice and synthesis mode.
	ProfileFor func(itemID string) cache.Profile

	// Online reports network connectivity. Nil means always online.
	Online func() bool

	// Rate is the initial playback speed. Zero means 1x.
	Rate float64

	// AutoNext advances to the next enabled item after an item finishes.
	AutoNext bool
}

// LoadOptions controls one LoadIndex call.
type LoadOptions struct {
	// ChunkIndex selects an explicit chunk, -1 to use the resume point.
	ChunkIndex int
	// SeekSeconds is a chunk-local offset when ChunkIndex is set,
	// otherwise an absolute position within the item. Negative is unset.
	SeekSeconds float64
	// Autoplay starts playback once the chunk is ready.
	Autoplay bool
	// SkipSaveProgress skips persisting the outgoing item's position.
	SkipSaveProgress bool
}

// DefaultLoadOptions returns options that resume the item and autoplay.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{ChunkIndex: -1, SeekSeconds: -1, Autoplay: true}
}

// Session drives playback of the listening queue.
type Session struct {
	device     Device
	fetcher    *fetch.Fetcher
	store      *cache.Store
	chunks     *chunker.Cache
	durations  *durations.Model
	resume     *resume.Saver
	downloads  *download.Queue
	profileFor func(itemID string) cache.Profile
	online     func() bool

	// loadToken invalidates stale in-flight loads.
	loadToken atomic.Int64

	mu              sync.Mutex
	playlist        *Playlist
	state           StateType
	lastErr         error
	autoplayBlocked bool
	itemIndex       int
	item            feed.Item
	chunkList       []string
	chunkIndex      int
	track           Track
	rate            float64
	autoNext        bool
}

// NewSession creates a session over an empty playlist.
func NewSession(opts Options) *Session {
	rate := opts.Rate
	if rate <= 0 {
		rate = 1
	}
	return &Session{
		device:     opts.Device,
		fetcher:    opts.Fetcher,
		store:      opts.Cache,
		chunks:     opts.Chunks,
		durations:  opts.Durations,
		resume:     opts.Resume,
		downloads:  opts.Downloads,
		profileFor: opts.ProfileFor,
		online:     opts.Online,
		playlist:   NewPlaylist(nil),
		state:      StateIdle,
		itemIndex:  -1,
		rate:       rate,
		autoNext:   opts.AutoNext,
	}
}

// SetItems replaces the playlist, enabling every item.
func (s *Session) SetItems(items []feed.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playlist.Reset(items)
	if s.itemIndex >= 0 {
		s.itemIndex = s.playlist.IndexOf(s.item.ID)
	}
}

// SetEnabled flags whether the item at index participates in auto-advance.
func (s *Session) SetEnabled(index int, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playlist.SetEnabled(index, enabled)
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Current:         s.state,
		ItemIndex:       s.itemIndex,
		ChunkIndex:      s.chunkIndex,
		ChunkCount:      len(s.chunkList),
		AutoplayBlocked: s.autoplayBlocked,
		Err:             s.lastErr,
	}
	if s.itemIndex >= 0 {
		st.ItemID = s.item.ID
	}
	if s.track != nil {
		st.Position = s.track.Position()
		st.Duration = s.track.Duration()
	}
	return st
}

// LoadIndex loads the playlist item at index and positions playback at the
// resolved resume point. A newer LoadIndex supersedes this one; the stale
// load then returns nil without touching session state.
func (s *Session) LoadIndex(ctx context.Context, index int, opts LoadOptions) error {
	s.mu.Lock()
	if !opts.SkipSaveProgress {
		s.saveProgressLocked()
	}

	item, ok := s.playlist.Item(index)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("load index %d: %w", index, ErrNoSuchItem)
	}
	chunks := s.chunks.ForItem(item.ID, item.SpeechText())
	chunkIndex, offset := s.resolveTargetLocked(item, chunks, opts)

	token := s.loadToken.Add(1)
	if s.track != nil {
		s.track.Close()
		s.track = nil
	}
	s.state = StateLoading
	s.lastErr = nil
	s.autoplayBlocked = false
	s.itemIndex = index
	s.item = item
	s.chunkList = chunks
	s.chunkIndex = chunkIndex
	profile := s.profileFor(item.ID)
	s.mu.Unlock()

	text := chunks[chunkIndex]
	if text == "" {
		text = item.Title
	}

	payload, err := s.fetcher.Fetch(ctx, profile, text, chunkIndex)
	if s.loadToken.Load() != token {
		return nil
	}
	if err != nil {
		if s.offline() && s.skipToDownloaded(ctx, index) {
			return nil
		}
		return s.failLoad(token, fmt.Errorf("fetch chunk %d of %s: %w", chunkIndex, item.ID, err))
	}
	if len(payload.Audio) == 0 {
		return s.failLoad(token, fmt.Errorf("chunk %d of %s: %w", chunkIndex, item.ID, ErrEmptyPayload))
	}

	track, err := s.device.Load(ctx, payload)
	if s.loadToken.Load() != token {
		if track != nil {
			track.Close()
		}
		return nil
	}
	if err != nil {
		return s.failLoad(token, err)
	}

	s.mu.Lock()
	if s.loadToken.Load() != token {
		s.mu.Unlock()
		track.Close()
		return nil
	}
	s.track = track
	if d := track.Duration(); d > 0 {
		s.durations.RecordMeasured(item.ID, chunkIndex, d.Seconds())
	}
	track.SetRate(s.rate)
	track.SeekTo(clampToTrack(offset, track.Duration()))

	if opts.Autoplay {
		switch playErr := track.Play(); {
		case playErr == nil:
			s.state = StatePlaying
		case errors.Is(playErr, ErrAutoplayBlocked):
			s.state = StatePaused
			s.autoplayBlocked = true
			log.Info("autoplay blocked, tap play to start", "item", item.ID)
		default:
			s.state = StateError
			s.lastErr = playErr
			s.mu.Unlock()
			return playErr
		}
	} else {
		s.state = StatePaused
	}
	s.mu.Unlock()

	log.Debug("chunk loaded",
		"item", item.ID, "chunk", chunkIndex, "of", len(chunks), "mock", payload.Mock)

	go s.watchTrack(track, token)
	s.prefetchNext(ctx, profile, chunks, chunkIndex)
	s.saveProgress()
	return nil
}

// LoadLastPlayed loads the item the user listened to most recently.
func (s *Session) LoadLastPlayed(ctx context.Context, opts LoadOptions) error {
	id, ok, err := s.resume.LastPlayed()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchItem
	}

	s.mu.Lock()
	index := s.playlist.IndexOf(id)
	s.mu.Unlock()
	if index < 0 {
		return fmt.Errorf("last played %s no longer queued: %w", id, ErrNoSuchItem)
	}
	return s.LoadIndex(ctx, index, opts)
}

// Play starts or resumes playback of the loaded chunk.
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.track == nil {
		return ErrNothingLoaded
	}
	if err := s.track.Play(); err != nil {
		if errors.Is(err, ErrAutoplayBlocked) {
			s.autoplayBlocked = true
			return err
		}
		s.state = StateError
		s.lastErr = err
		return err
	}
	s.state = StatePlaying
	s.autoplayBlocked = false
	return nil
}

// Pause pauses playback and persists the position.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.track == nil || s.state != StatePlaying {
		return
	}
	s.track.Pause()
	s.state = StatePaused
	s.saveProgressLocked()
}

// SeekTo moves playback to an absolute position within the current item,
// crossing chunk boundaries when needed.
func (s *Session) SeekTo(ctx context.Context, absoluteSeconds float64) error {
	s.mu.Lock()
	if s.track == nil || s.itemIndex < 0 {
		s.mu.Unlock()
		return ErrNothingLoaded
	}

	chunkIndex, offset := s.durations.ResolveAbsolute(s.item.ID, s.chunkList, absoluteSeconds)
	if chunkIndex == s.chunkIndex {
		s.track.SeekTo(clampToTrack(offset, s.track.Duration()))
		s.saveProgressLocked()
		s.mu.Unlock()
		return nil
	}

	index := s.itemIndex
	autoplay := s.state == StatePlaying
	s.mu.Unlock()

	opts := DefaultLoadOptions()
	opts.ChunkIndex = chunkIndex
	opts.SeekSeconds = offset
	opts.Autoplay = autoplay
	return s.LoadIndex(ctx, index, opts)
}

// SetRate sets the playback speed, clamped to [0.5, 2].
func (s *Session) SetRate(rate float64) {
	if rate < 0.5 {
		rate = 0.5
	}
	if rate > 2 {
		rate = 2
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = rate
	if s.track != nil {
		s.track.SetRate(rate)
	}
}

// SetProfileFunc swaps the profile binding, e.g. after a voice change in
// config. Already-loaded audio keeps playing; the next chunk load uses the
// new profile and may fall back to stale-profile audio while the preferred
// profile refetches.
func (s *Session) SetProfileFunc(profileFor func(itemID string) cache.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileFor = profileFor
}

// RemoveItems reconciles the playlist after triage removed the given ids.
// If the current item is among them, any in-flight load is invalidated and
// playback clears without auto-restarting. Cached audio, durations, and
// resume records for removed items are pruned.
func (s *Session) RemoveItems(ids []string) {
	removed := make(map[string]bool, len(ids))
	for _, id := range ids {
		removed[id] = true
	}

	s.mu.Lock()
	if s.itemIndex >= 0 && removed[s.item.ID] {
		s.loadToken.Add(1)
		if s.track != nil {
			s.track.Close()
			s.track = nil
		}
		s.state = StateIdle
		s.itemIndex = -1
		s.item = feed.Item{}
		s.chunkList = nil
		s.chunkIndex = 0
		s.autoplayBlocked = false
		s.lastErr = nil
	}

	var kept []feed.Item
	for _, item := range s.playlist.Items() {
		if !removed[item.ID] {
			kept = append(kept, item)
		}
	}
	s.playlist.Reconcile(kept)
	if s.itemIndex >= 0 {
		s.itemIndex = s.playlist.IndexOf(s.item.ID)
	}
	s.mu.Unlock()

	for id := range removed {
		s.chunks.Forget(id)
		s.durations.Forget(id)
		if err := s.store.PruneItem(id); err != nil {
			log.Warn("prune cached audio failed", "item", id, "error", err)
		}
		if err := s.resume.Forget(id); err != nil {
			log.Warn("forget resume state failed", "item", id, "error", err)
		}
	}
}

// Close invalidates in-flight loads, releases the track, and flushes any
// pending resume snapshot.
func (s *Session) Close() error {
	s.mu.Lock()
	s.loadToken.Add(1)
	s.saveProgressLocked()
	if s.track != nil {
		s.track.Close()
		s.track = nil
	}
	s.state = StateIdle
	s.mu.Unlock()

	return s.resume.Flush()
}

// resolveTargetLocked picks the (chunk, offset) a load should start from:
// explicit options first, then the saved resume point, then the start.
func (s *Session) resolveTargetLocked(item feed.Item, chunks []string, opts LoadOptions) (int, float64) {
	if opts.ChunkIndex >= 0 {
		chunkIndex := opts.ChunkIndex
		if chunkIndex >= len(chunks) {
			chunkIndex = len(chunks) - 1
		}
		offset := 0.0
		if opts.SeekSeconds > 0 {
			offset = opts.SeekSeconds
		}
		return chunkIndex, offset
	}
	if opts.SeekSeconds >= 0 {
		return s.durations.ResolveAbsolute(item.ID, chunks, opts.SeekSeconds)
	}

	if saved, ok, err := s.resume.Load(item.ID); err == nil && ok {
		if saved.ChunkIndex >= 0 && saved.ChunkIndex < len(chunks) {
			return saved.ChunkIndex, saved.Offset
		}
		if saved.Absolute > 0 {
			return s.durations.ResolveAbsolute(item.ID, chunks, saved.Absolute)
		}
	}
	return 0, 0
}

// watchTrack waits for the track to finish and advances playback, unless a
// newer load superseded this one.
func (s *Session) watchTrack(track Track, token int64) {
	<-track.Done()
	if s.loadToken.Load() != token {
		return
	}
	s.handleEnded(token)
}

// handleEnded persists the finished chunk's progress, then advances to the
// next chunk or, at the item's end, to the next enabled item.
func (s *Session) handleEnded(token int64) {
	s.mu.Lock()
	if s.loadToken.Load() != token || s.track == nil {
		s.mu.Unlock()
		return
	}

	item := s.item
	chunks := s.chunkList
	chunkIndex := s.chunkIndex
	index := s.itemIndex
	autoNext := s.autoNext

	chunkSeconds := s.track.Duration().Seconds()
	absolute := s.durations.ResolveChunk(item.ID, chunks, chunkIndex, chunkSeconds)
	s.resume.Save(item.ID, resume.State{
		ChunkIndex: chunkIndex,
		Offset:     chunkSeconds,
		Absolute:   absolute,
	})
	s.mu.Unlock()

	if chunkIndex+1 < len(chunks) {
		opts := DefaultLoadOptions()
		opts.ChunkIndex = chunkIndex + 1
		opts.SkipSaveProgress = true
		if err := s.LoadIndex(context.Background(), index, opts); err != nil {
			log.Warn("advance to next chunk failed", "item", item.ID, "error", Normalize(err))
		}
		return
	}

	log.Debug("item finished", "item", item.ID, "chunks", len(chunks))
	if autoNext {
		s.mu.Lock()
		next := s.playlist.NextEnabled(index, nil)
		s.mu.Unlock()
		if next >= 0 {
			opts := DefaultLoadOptions()
			opts.SkipSaveProgress = true
			if err := s.LoadIndex(context.Background(), next, opts); err != nil {
				log.Warn("advance to next item failed", "error", Normalize(err))
			}
			return
		}
	}

	s.mu.Lock()
	if s.loadToken.Load() == token {
		if s.track != nil {
			s.track.Close()
			s.track = nil
		}
		s.state = StateIdle
	}
	s.mu.Unlock()
}

// skipToDownloaded advances past an unfetchable item to the next enabled,
// fully downloaded one. Returns false when none exists.
func (s *Session) skipToDownloaded(ctx context.Context, after int) bool {
	if s.downloads == nil {
		return false
	}

	s.mu.Lock()
	next := s.playlist.NextEnabled(after, s.downloads.IsFullyDownloaded)
	s.mu.Unlock()
	if next < 0 {
		return false
	}

	log.Info("offline, skipping to downloaded item", "index", next)
	opts := DefaultLoadOptions()
	opts.SkipSaveProgress = true
	return s.LoadIndex(ctx, next, opts) == nil
}

func (s *Session) failLoad(token int64, err error) error {
	s.mu.Lock()
	if s.loadToken.Load() == token {
		s.state = StateError
		s.lastErr = err
	}
	s.mu.Unlock()

	log.Error("chunk load failed", "error", Normalize(err))
	return err
}

// prefetchNext warms the fetcher's memory cache with the following chunk.
// Fire and forget; failures only log.
func (s *Session) prefetchNext(ctx context.Context, profile cache.Profile, chunks []string, chunkIndex int) {
	next := chunkIndex + 1
	if next >= len(chunks) || chunks[next] == "" {
		return
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		if _, err := s.fetcher.Fetch(detached, profile, chunks[next], next); err != nil {
			log.Debug("prefetch failed", "item", profile.ItemID, "chunk", next, "error", err)
		}
	}()
}

func (s *Session) saveProgress() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveProgressLocked()
}

func (s *Session) saveProgressLocked() {
	if s.track == nil || s.itemIndex < 0 {
		return
	}

	offset := s.track.Position().Seconds()
	absolute := s.durations.ResolveChunk(s.item.ID, s.chunkList, s.chunkIndex, offset)
	s.resume.Save(s.item.ID, resume.State{
		ChunkIndex: s.chunkIndex,
		Offset:     offset,
		Absolute:   absolute,
	})
}

func (s *Session) offline() bool {
	return s.online != nil && !s.online()
}

func clampToTrack(offsetSeconds float64, duration time.Duration) time.Duration {
	offset := time.Duration(offsetSeconds * float64(time.Second))
	if offset < 0 {
		return 0
	}
	if duration > 0 {
		if max := duration - 100*time.Millisecond; offset > max {
			if max < 0 {
				max = 0
			}
			return max
		}
	}
	return offset
}
