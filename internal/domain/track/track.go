// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"time"
)

// Track represents a playable item resolved by the audio node.
// Values are never mutated after resolution.
type Track struct {
	Identifier string        // Source-specific identifier (e.g. YouTube video ID)
	Encoded    string        // Opaque node blob required to play the track
	Title      string        // Track title
	Author     string        // Uploader or artist
	URI        string        // Source URL
	Duration   time.Duration // Track length, zero for streams
	IsStream   bool          // Live stream flag
	IsSeekable bool          // Whether seek is supported
	SourceName string        // e.g. "youtube", "soundcloud"
}

// Same reports whether two tracks refer to the same source item.
func (t Track) Same(other Track) bool {
	return t.Identifier == other.Identifier
}

// String returns "Title - Length", the form used in queue listings.
func (t Track) String() string {
	if t.IsStream {
		return t.Title + " - LIVE"
	}
	return t.Title + " - " + FormatDuration(t.Duration)
}

// LoadStatus represents the outcome of a resolve request.
type LoadStatus int

const (
	LoadStatusLoaded         LoadStatus = iota // Single track
	LoadStatusPlaylistLoaded                   // Playlist with one or more tracks
	LoadStatusSearchResult                     // Search result list
	LoadStatusNoMatches                        // Nothing found
	LoadStatusLoadFailed                       // Node failed to load
)

// String returns the string representation of the load status.
func (s LoadStatus) String() string {
	switch s {
	case LoadStatusLoaded:
		return "loaded"
	case LoadStatusPlaylistLoaded:
		return "playlist_loaded"
	case LoadStatusSearchResult:
		return "search_result"
	case LoadStatusNoMatches:
		return "no_matches"
	case LoadStatusLoadFailed:
		return "load_failed"
	default:
		return "unknown"
	}
}

// LoadResult is what the audio node returns for a query or URL.
type LoadResult struct {
	Status       LoadStatus
	Tracks       []Track
	PlaylistName string // Set for LoadStatusPlaylistLoaded
	Message      string // Failure message for LoadStatusLoadFailed
}

// FormatDuration renders d as m:ss, or h:mm:ss when it exceeds an hour.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
