package player

import "time"

// StateType represents the current state of the playback session.
type StateType int

const (
	// StateIdle indicates nothing is loaded.
	StateIdle StateType = iota
	// StateLoading indicates a chunk load is in flight.
	StateLoading
	// StatePlaying indicates audio is playing.
	StatePlaying
	// StatePaused indicates playback is paused with a chunk loaded.
	StatePaused
	// StateError indicates the last load or play attempt failed.
	StateError
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// State is a snapshot of the playback session.
type State struct {
	Current    StateType
	ItemID     string
	ItemIndex  int           // index into the playlist, -1 when idle
	ChunkIndex int           // current chunk within the item
	ChunkCount int           // total chunks for the item
	Position   time.Duration // position within the current chunk
	Duration   time.Duration // duration of the current chunk

	// AutoplayBlocked is set when a load completed but starting playback
	// needs a user gesture. It accompanies StatePaused and is never an
	// error.
	AutoplayBlocked bool

	// Err holds the failure behind StateError.
	Err error
}

// IsActive returns true when a chunk is loaded for playing or paused.
func (s State) IsActive() bool {
	return s.Current == StatePlaying || s.Current == StatePaused
}

// CanPlay returns true when playback can start or resume.
func (s State) CanPlay() bool {
	return s.Current == StatePaused
}

// CanPause returns true when playback can be paused.
func (s State) CanPause() bool {
	return s.Current == StatePlaying
}
