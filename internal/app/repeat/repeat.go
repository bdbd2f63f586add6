// Package repeat provides the per-guild single-slot repeat toggle.
package repeat

import "github.com/osa030/vcbox/internal/domain/track"

// Outcome describes what a Toggle did.
type Outcome int

const (
	OutcomeEnabled    Outcome = iota // Off -> Repeating(current)
	OutcomeDisabled                  // Repeating(current) -> Off
	OutcomeRetargeted                // Repeating(other) -> Repeating(current)
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeEnabled:
		return "enabled"
	case OutcomeDisabled:
		return "disabled"
	case OutcomeRetargeted:
		return "retargeted"
	default:
		return "unknown"
	}
}

// Active reports whether repeat is on after the toggle.
func (o Outcome) Active() bool {
	return o == OutcomeEnabled || o == OutcomeRetargeted
}

// State is either Off (the zero value) or Repeating(track).
type State struct {
	target *track.Track
}

// Repeating returns a state that replays t.
func Repeating(t track.Track) State {
	return State{target: &t}
}

// Target returns the track to replay, if repeat is on.
func (s State) Target() (track.Track, bool) {
	if s.target == nil {
		return track.Track{}, false
	}
	return *s.target, true
}

// Off reports whether repeat is disabled.
func (s State) Off() bool {
	return s.target == nil
}

// Toggle applies the repeat command against the currently playing track and
// returns the new state.
func (s State) Toggle(current track.Track) (State, Outcome) {
	if s.target == nil {
		return Repeating(current), OutcomeEnabled
	}
	if s.target.Same(current) {
		return State{}, OutcomeDisabled
	}
	return Repeating(current), OutcomeRetargeted
}

// String returns "off" or "repeating(<identifier>)".
func (s State) String() string {
	if s.target == nil {
		return "off"
	}
	return "repeating(" + s.target.Identifier + ")"
}
