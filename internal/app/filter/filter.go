// Package filter provides the admission filter chain run before a track is
// played or queued.
package filter

import (
	"context"
	"sort"

	"github.com/osa030/vcbox/internal/domain/guild"
	"github.com/osa030/vcbox/internal/domain/track"
)

// Origin tells a filter how the track reached the session.
type Origin int

const (
	OriginQuery    Origin = iota // play <query|url>
	OriginSearch                 // picked from search results
	OriginPlaylist               // entry of a loaded playlist
)

// String returns the string representation of the origin.
func (o Origin) String() string {
	switch o {
	case OriginQuery:
		return "query"
	case OriginSearch:
		return "search"
	case OriginPlaylist:
		return "playlist"
	default:
		return "unknown"
	}
}

// TrackRequest represents a track request to be validated.
type TrackRequest struct {
	Guild       guild.ID
	RequesterID string
	Origin      Origin
	Pending     []track.Track // Current track (if any) followed by the queue
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "duration_limit_exceeded", "duplicate_track"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for request filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter configuration.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should be applied to the given origin.
	AppliesTo(origin Origin) bool
	// Check performs the filter check.
	Check(ctx context.Context, req TrackRequest, t track.Track) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}

// Names returns registered filter names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
