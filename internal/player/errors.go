package player

import (
	"errors"
	"fmt"
	"strings"
)

// Playback errors. Autoplay blocking is deliberately a sentinel so the
// session can translate it into a paused state instead of an error.
var (
	// ErrReadyTimeout indicates the audio device did not become ready
	// within the configured bound.
	ErrReadyTimeout = errors.New("audio device not ready in time")
	// ErrEmptyPayload indicates a synthesized payload carried no bytes.
	ErrEmptyPayload = errors.New("audio payload is empty")
	// ErrAutoplayBlocked indicates starting playback needs a user gesture.
	ErrAutoplayBlocked = errors.New("playback blocked until user gesture")
	// ErrNoSuchItem indicates the requested playlist index does not exist.
	ErrNoSuchItem = errors.New("no item at requested index")
	// ErrNothingLoaded indicates an operation needs a loaded chunk.
	ErrNothingLoaded = errors.New("no chunk loaded")
)

// DecodeError indicates the device could not play the returned bytes. The
// usual remediation is re-downloading the item or switching voice.
type DecodeError struct {
	ContentType string
	Err         error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode %s audio, re-download the item or switch voice: %v", e.ContentType, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Normalize flattens an error to a single whitespace-collapsed line for
// display.
func Normalize(err error) string {
	if err == nil {
		return ""
	}
	return strings.Join(strings.Fields(err.Error()), " ")
}
