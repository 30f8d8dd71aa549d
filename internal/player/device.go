package player

import (
	"context"
	"time"

	"github.com/marqueymarc/readflow/internal/synth"
)

// Track is one loaded chunk of audio.
type Track interface {
	// Play starts or resumes playback. ErrAutoplayBlocked means a user
	// gesture is required first; any other error is a real failure.
	Play() error
	// Pause stops playback without releasing the track.
	Pause()
	// SeekTo moves the playback position within the chunk.
	SeekTo(offset time.Duration)
	// Position returns the current position within the chunk.
	Position() time.Duration
	// Duration returns the chunk's total duration.
	Duration() time.Duration
	// SetRate sets the playback speed multiplier.
	SetRate(rate float64)
	// Done is closed when the track finishes playing naturally, or when
	// it is closed. Watchers must distinguish the two themselves.
	Done() <-chan struct{}
	// Close releases the track's resources.
	Close() error
}

// Device turns synthesized payloads into playable tracks.
type Device interface {
	// Load decodes the payload and prepares it for playback. Decode
	// problems surface as *DecodeError, a device that cannot become
	// ready in time as ErrReadyTimeout.
	Load(ctx context.Context, payload *synth.Payload) (Track, error)
	// Close releases the device.
	Close() error
}
