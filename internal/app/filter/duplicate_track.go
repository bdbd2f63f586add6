package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/vcbox/internal/domain/track"
)

// DuplicateTrackConfig represents the configuration for DuplicateTrackFilter.
type DuplicateTrackConfig struct {
	MatchTitles bool `mapstructure:"match_titles"`
}

// DuplicateTrackFilter rejects tracks already playing or queued.
// Detects:
// - Exact identifier matches
// - Re-uploads and remasters (normalized title + same author), when match_titles is set
// Excludes:
// - Covers (same title but different author)
type DuplicateTrackFilter struct {
	matchTitles bool
}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter() *DuplicateTrackFilter {
	return &DuplicateTrackFilter{matchTitles: true}
}

// Name returns the filter name.
func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track"
}

// Description returns the filter description.
func (f *DuplicateTrackFilter) Description() string {
	return "Rejects tracks that are already playing or queued, including remasters and re-uploads by the same author"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

// AppliesTo returns which origins this filter applies to.
func (f *DuplicateTrackFilter) AppliesTo(origin Origin) bool {
	// Playlists may legitimately repeat an entry.
	return origin != OriginPlaylist
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTrackFilter) ValidateConfig(settings map[string]any) error {
	config := DuplicateTrackConfig{MatchTitles: true}
	if err := mapstructure.WeakDecode(settings, &config); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	f.matchTitles = config.MatchTitles
	return nil
}

// Check checks if the track is a duplicate.
func (f *DuplicateTrackFilter) Check(ctx context.Context, req TrackRequest, requested track.Track) Result {
	for _, pending := range req.Pending {
		if pending.Same(requested) {
			return Reject("duplicate_track")
		}
		if f.matchTitles && isSameSong(pending, requested) {
			return Reject("duplicate_track")
		}
	}
	return Accept()
}

// isSameSong reports whether two tracks are versions of the same song by the
// same author.
func isSameSong(a, b track.Track) bool {
	if normalizeTitle(a.Title) != normalizeTitle(b.Title) {
		return false
	}
	return isSameAuthor(a, b)
}

var (
	decorationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*[\(\[]\s*official.*?[\)\]]`),      // "(Official Video)", "[Official Audio]"
		regexp.MustCompile(`\s*[\(\[]\s*(lyrics?|lyric video|audio|hd|hq|4k|mv)\s*[\)\]]`),
		regexp.MustCompile(`\s*\(.*?version\)`), // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),    // "(Radio Edit)"
		regexp.MustCompile(`\s*\(live\)`),       // "(Live)"
	}
	whitespace = regexp.MustCompile(`\s+`)
)

// normalizeTitle removes remaster and upload decorations from a title.
func normalizeTitle(title string) string {
	normalized := strings.ToLower(title)
	for _, pattern := range decorationPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	normalized = strings.TrimSpace(normalized)
	normalized = whitespace.ReplaceAllString(normalized, " ")
	return strings.TrimRight(normalized, " -")
}

// isSameAuthor compares authors case-insensitively, ignoring the " - Topic"
// suffix of auto-generated YouTube channels.
func isSameAuthor(a, b track.Track) bool {
	if a.Author == "" || b.Author == "" {
		return false
	}
	clean := func(s string) string {
		return strings.TrimSuffix(strings.TrimSpace(s), " - Topic")
	}
	return strings.EqualFold(clean(a.Author), clean(b.Author))
}

func init() {
	Register("duplicate_track", func() Filter {
		return NewDuplicateTrackFilter()
	})
}
