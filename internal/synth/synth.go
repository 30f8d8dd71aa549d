// Package synth defines the synthesis-service contract the engine consumes
// and provides two implementations: an HTTP client for a real service and a
// local mock that fabricates silent audio.
package synth

import (
	"context"
	"strings"
)

// Content types the engine assumes when a synthesizer does not declare one.
const (
	MockContentType = "audio/wav"
	RealContentType = "audio/mpeg"
)

// Request identifies one chunk to synthesize.
type Request struct {
	ItemID     string
	Text       string
	Voice      string
	ChunkIndex int
	Mock       bool
}

// Payload is synthesized chunk audio.
type Payload struct {
	Audio       []byte
	ContentType string
	Mock        bool // true when the audio is a placeholder, not real synthesis
}

// Synthesizer turns chunk text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*Payload, error)
}

// Error is a synthesis failure carrying a display-ready reason. The reason
// is collapsed to a single line.
type Error struct {
	Reason string
	Err    error
}

// NewError builds a synthesis error, normalizing the reason text.
func NewError(reason string, err error) *Error {
	return &Error{Reason: CollapseReason(reason), Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Reason != "" {
		return "synthesis failed: " + e.Reason
	}
	if e.Err != nil {
		return "synthesis failed: " + e.Err.Error()
	}
	return "synthesis failed"
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// CollapseReason normalizes a message to a single whitespace-collapsed line
// suitable for display.
func CollapseReason(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
