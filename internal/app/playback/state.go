// Package playback provides per-guild finish detection and the player view it
// relies on.
package playback

import (
	"time"

	"github.com/osa030/vcbox/internal/domain/track"
)

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // No track loaded
	StatePlaying              // Track is playing
	StatePaused               // Track is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Status is the audio node's view of a guild player.
type Status struct {
	Track    *track.Track  // Current track, nil when nothing is loaded
	Position time.Duration // Interpolated playback position
	Paused   bool
	Volume   int
}

// State derives the playback state.
func (s Status) State() State {
	switch {
	case s.Track == nil:
		return StateIdle
	case s.Paused:
		return StatePaused
	default:
		return StatePlaying
	}
}
