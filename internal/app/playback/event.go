package playback

import (
	"github.com/osa030/vcbox/internal/domain/guild"
	"github.com/osa030/vcbox/internal/domain/track"
)

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted   EventType = iota // Track started from the queue or a command
	EventTrackRepeated                   // Repeat target replayed
	EventTrackFailed                     // Play request failed
	EventTrackSkipped                    // Track was skipped by a user
	EventMonitorStarted                  // Finish-detection monitor started
	EventMonitorExited                   // Finish-detection monitor exited
	EventStopped                         // Session stopped by a user
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackRepeated:
		return "track_repeated"
	case EventTrackFailed:
		return "track_failed"
	case EventTrackSkipped:
		return "track_skipped"
	case EventMonitorStarted:
		return "monitor_started"
	case EventMonitorExited:
		return "monitor_exited"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type      EventType
	Guild     guild.ID
	Track     *track.Track // Track concerned (nil for monitor events)
	MonitorID string
	Err       error // Set for EventTrackFailed
}

// Emit sends e on ch without blocking. Events are dropped when the channel is
// full or nil.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	select {
	case ch <- e:
	default:
	}
}
