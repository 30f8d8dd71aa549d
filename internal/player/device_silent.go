package player

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/marqueymarc/readflow/internal/synth"
)

// SilentDevice plays nothing but advances time as if it did. Useful on
// machines with no audio output and for exercising the session end to end.
type SilentDevice struct{}

// NewSilentDevice creates a silent device.
func NewSilentDevice() *SilentDevice {
	return &SilentDevice{}
}

// Load validates the payload and returns a timer-driven track.
func (d *SilentDevice) Load(_ context.Context, payload *synth.Payload) (Track, error) {
	seconds, err := silentDuration(payload)
	if err != nil {
		return nil, err
	}
	return newSilentTrack(time.Duration(seconds * float64(time.Second))), nil
}

// Close implements Device.
func (d *SilentDevice) Close() error { return nil }

// silentDuration derives a track length from the payload. WAV payloads
// report their exact duration; other audio types get a byte-rate estimate.
func silentDuration(payload *synth.Payload) (float64, error) {
	if pcm, err := synth.DecodeWAV(payload.Audio); err == nil {
		return pcm.Seconds(), nil
	} else if !strings.HasPrefix(strings.ToLower(payload.ContentType), "audio/") {
		return 0, &DecodeError{ContentType: payload.ContentType, Err: err}
	}

	// Assume compressed speech around 4KB/s.
	seconds := float64(len(payload.Audio)) / 4096
	if seconds < 1 {
		seconds = 1
	}
	return seconds, nil
}

type silentTrack struct {
	mu        sync.Mutex
	duration  time.Duration
	pos       time.Duration // position when last paused or sought
	startedAt time.Time
	playing   bool
	rate      float64
	timer     *time.Timer
	done      chan struct{}
	doneOnce  sync.Once
}

func newSilentTrack(duration time.Duration) *silentTrack {
	return &silentTrack{duration: duration, rate: 1, done: make(chan struct{})}
}

func (t *silentTrack) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing {
		return nil
	}
	t.playing = true
	t.startedAt = time.Now()
	t.armTimerLocked()
	return nil
}

func (t *silentTrack) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.playing {
		return
	}
	t.pos = t.positionLocked()
	t.playing = false
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *silentTrack) SeekTo(offset time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if offset < 0 {
		offset = 0
	}
	if offset > t.duration {
		offset = t.duration
	}
	t.pos = offset
	if t.playing {
		t.startedAt = time.Now()
		t.armTimerLocked()
	}
}

func (t *silentTrack) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.positionLocked()
}

func (t *silentTrack) Duration() time.Duration {
	return t.duration
}

func (t *silentTrack) SetRate(rate float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rate <= 0 {
		return
	}
	if t.playing {
		t.pos = t.positionLocked()
		t.startedAt = time.Now()
	}
	t.rate = rate
	if t.playing {
		t.armTimerLocked()
	}
}

func (t *silentTrack) Done() <-chan struct{} {
	return t.done
}

func (t *silentTrack) Close() error {
	t.mu.Lock()
	t.playing = false
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()
	t.doneOnce.Do(func() { close(t.done) })
	return nil
}

func (t *silentTrack) positionLocked() time.Duration {
	pos := t.pos
	if t.playing {
		pos += time.Duration(float64(time.Since(t.startedAt)) * t.rate)
	}
	if pos > t.duration {
		pos = t.duration
	}
	return pos
}

func (t *silentTrack) armTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
	}
	remaining := time.Duration(float64(t.duration-t.positionLocked()) / t.rate)
	t.timer = time.AfterFunc(remaining, t.finish)
}

func (t *silentTrack) finish() {
	t.mu.Lock()
	t.playing = false
	t.pos = t.duration
	t.mu.Unlock()
	t.doneOnce.Do(func() { close(t.done) })
}
