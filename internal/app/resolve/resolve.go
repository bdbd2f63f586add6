// Package resolve turns user input into tracks through the audio node.
package resolve

import (
	"context"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vcbox/internal/domain/track"
	"github.com/osa030/vcbox/internal/infra/spotify"
)

// SearchPrefix makes the node run a YouTube search instead of loading a URL.
const SearchPrefix = "ytsearch:"

// Loader is the audio node's track loading endpoint.
type Loader interface {
	LoadTracks(ctx context.Context, identifier string) (track.LoadResult, error)
}

// LinkResolver expands third-party links into search queries.
type LinkResolver interface {
	Resolve(ctx context.Context, link string) (spotify.Collection, error)
}

// Resolver resolves play and search arguments.
type Resolver struct {
	loader  Loader
	spotify LinkResolver // optional
}

// New creates a resolver. spotify may be nil.
func New(loader Loader, spotify LinkResolver) *Resolver {
	return &Resolver{loader: loader, spotify: spotify}
}

// Resolve loads the tracks for a play argument: a URL or free text.
func (r *Resolver) Resolve(ctx context.Context, query string) (track.LoadResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return track.LoadResult{Status: track.LoadStatusNoMatches}, nil
	}

	if r.spotify != nil && spotify.IsLink(query) {
		return r.resolveSpotify(ctx, query)
	}

	identifier, _ := Normalize(query)
	return r.loader.LoadTracks(ctx, identifier)
}

// Search runs a text search and returns at most limit results.
func (r *Resolver) Search(ctx context.Context, query string, limit int) (track.LoadResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return track.LoadResult{Status: track.LoadStatusNoMatches}, nil
	}

	res, err := r.loader.LoadTracks(ctx, SearchPrefix+query)
	if err != nil {
		return res, err
	}
	if limit > 0 && len(res.Tracks) > limit {
		res.Tracks = res.Tracks[:limit]
	}
	return res, nil
}

func (r *Resolver) resolveSpotify(ctx context.Context, link string) (track.LoadResult, error) {
	col, err := r.spotify.Resolve(ctx, link)
	if err != nil {
		return track.LoadResult{}, errors.Wrap(err, "failed to resolve spotify link")
	}

	out := track.LoadResult{Status: track.LoadStatusNoMatches}
	for _, q := range col.Queries {
		res, err := r.loader.LoadTracks(ctx, SearchPrefix+q)
		if err != nil {
			if len(col.Queries) == 1 {
				return track.LoadResult{}, err
			}
			zlog.Warn().Err(err).Msgf("spotify entry %q could not be loaded", q)
			continue
		}
		if len(res.Tracks) == 0 {
			continue
		}
		out.Tracks = append(out.Tracks, res.Tracks[0])
	}

	switch {
	case len(out.Tracks) == 0:
		out.Status = track.LoadStatusNoMatches
	case col.IsPlaylist():
		out.Status = track.LoadStatusPlaylistLoaded
		out.PlaylistName = col.Name
	default:
		out.Status = track.LoadStatusLoaded
	}
	return out, nil
}

// Normalize converts a play argument into a node identifier. URLs are loaded
// directly with playlist parameters stripped unless the user asked for the
// playlist; anything else becomes a search.
func Normalize(query string) (identifier string, isURL bool) {
	query = strings.TrimSpace(query)
	u, err := url.Parse(query)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return SearchPrefix + query, false
	}

	if !WantsPlaylist(query) {
		q := u.Query()
		q.Del("list")
		q.Del("index")
		q.Del("start_radio")
		u.RawQuery = q.Encode()
	}
	return u.String(), true
}

// WantsPlaylist reports whether the argument refers to a whole playlist.
func WantsPlaylist(query string) bool {
	return strings.Contains(strings.ToLower(query), "playlist")
}
