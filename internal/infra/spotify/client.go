// Package spotify turns Spotify links into search queries the audio node can
// resolve.
package spotify

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNotSpotifyLink is returned for input that is not a Spotify URL or URI.
var ErrNotSpotifyLink = errors.New("not a spotify link")

// DefaultMaxTracks caps how many entries of an album or playlist are resolved.
const DefaultMaxTracks = 50

// Client is a Spotify API client authenticated with client credentials.
type Client struct {
	client     *spotify.Client
	market     string
	maxTracks  int
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
	MaxTracks    int
	BaseURL      string // API base URL override, for tests
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return newClient(creds.Client(ctx), cfg), nil
}

func newClient(httpClient *http.Client, cfg Config) *Client {
	opts := []spotify.ClientOption{spotify.WithRetry(true)}
	if cfg.BaseURL != "" {
		opts = append(opts, spotify.WithBaseURL(cfg.BaseURL))
	}

	maxTracks := cfg.MaxTracks
	if maxTracks <= 0 {
		maxTracks = DefaultMaxTracks
	}
	return &Client{
		client:     spotify.New(httpClient, opts...),
		market:     cfg.Market,
		maxTracks:  maxTracks,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Collection is the result of resolving a link.
type Collection struct {
	Name    string   // Album or playlist name; empty for a single track
	Queries []string // "Artist - Title" per track, in order
}

// IsPlaylist reports whether the link pointed at an album or playlist.
func (c Collection) IsPlaylist() bool {
	return c.Name != ""
}

// Resolve fetches the track, album or playlist behind link.
func (c *Client) Resolve(ctx context.Context, link string) (Collection, error) {
	kind, id, err := ParseLink(link)
	if err != nil {
		return Collection{}, err
	}
	switch kind {
	case "track":
		return c.track(ctx, id)
	case "album":
		return c.album(ctx, id)
	case "playlist":
		return c.playlist(ctx, id)
	default:
		return Collection{}, errors.Newf("unsupported spotify link type %q", kind)
	}
}

func (c *Client) marketOpts() []spotify.RequestOption {
	if c.market == "" {
		return nil
	}
	return []spotify.RequestOption{spotify.Market(c.market)}
}

func (c *Client) track(ctx context.Context, id spotify.ID) (Collection, error) {
	var t *spotify.FullTrack
	err := c.retry(func() error {
		var err error
		t, err = c.client.GetTrack(ctx, id, c.marketOpts()...)
		return err
	})
	if err != nil {
		return Collection{}, errors.Wrap(err, "failed to get track")
	}
	return Collection{Queries: []string{searchQuery(t.Name, t.Artists)}}, nil
}

func (c *Client) album(ctx context.Context, id spotify.ID) (Collection, error) {
	var album *spotify.FullAlbum
	err := c.retry(func() error {
		var err error
		album, err = c.client.GetAlbum(ctx, id, c.marketOpts()...)
		return err
	})
	if err != nil {
		return Collection{}, errors.Wrap(err, "failed to get album")
	}

	out := Collection{Name: album.Name}
	page := &album.Tracks
	for {
		for _, t := range page.Tracks {
			if len(out.Queries) >= c.maxTracks {
				return out, nil
			}
			out.Queries = append(out.Queries, searchQuery(t.Name, t.Artists))
		}
		if page.Next == "" {
			return out, nil
		}
		if err := c.client.NextPage(ctx, page); err != nil {
			return out, errors.Wrap(err, "failed to get album tracks")
		}
	}
}

func (c *Client) playlist(ctx context.Context, id spotify.ID) (Collection, error) {
	var pl *spotify.FullPlaylist
	err := c.retry(func() error {
		var err error
		pl, err = c.client.GetPlaylist(ctx, id, c.marketOpts()...)
		return err
	})
	if err != nil {
		return Collection{}, errors.Wrap(err, "failed to get playlist")
	}

	out := Collection{Name: pl.Name}
	limit := 100
	for offset := 0; len(out.Queries) < c.maxTracks; offset += limit {
		var page *spotify.PlaylistItemPage
		err := c.retry(func() error {
			opts := append(c.marketOpts(), spotify.Limit(limit), spotify.Offset(offset))
			var err error
			page, err = c.client.GetPlaylistItems(ctx, id, opts...)
			return err
		})
		if err != nil {
			return out, errors.Wrap(err, "failed to get playlist items")
		}

		for _, item := range page.Items {
			// Only process tracks (exclude episodes)
			if item.Track.Track == nil || item.Track.Track.ID == "" {
				continue
			}
			if len(out.Queries) >= c.maxTracks {
				break
			}
			out.Queries = append(out.Queries, searchQuery(item.Track.Track.Name, item.Track.Track.Artists))
		}
		if len(page.Items) < limit {
			break
		}
	}
	return out, nil
}

// searchQuery builds "Artist - Title" using the first artist.
func searchQuery(name string, artists []spotify.SimpleArtist) string {
	if len(artists) == 0 || artists[0].Name == "" {
		return name
	}
	return artists[0].Name + " - " + name
}

// retry retries an operation with linear backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// IsLink reports whether s looks like a Spotify URL or URI.
func IsLink(s string) bool {
	_, _, err := ParseLink(s)
	return err == nil
}

// ParseLink extracts the object type and ID from a Spotify URI
// (spotify:track:ID) or URL (https://open.spotify.com/intl-xx/track/ID?si=...).
func ParseLink(input string) (string, spotify.ID, error) {
	input = strings.TrimSpace(input)

	if strings.HasPrefix(input, "spotify:") {
		parts := strings.Split(input, ":")
		if len(parts) != 3 || parts[2] == "" {
			return "", "", errors.Wrapf(ErrNotSpotifyLink, "invalid spotify URI %q", input)
		}
		return parts[1], spotify.ID(parts[2]), nil
	}

	u, err := url.Parse(input)
	if err != nil || (u.Host != "open.spotify.com" && u.Host != "www.open.spotify.com") {
		return "", "", ErrNotSpotifyLink
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
		parts = parts[1:]
	}
	if len(parts) < 2 || parts[1] == "" {
		return "", "", errors.Wrapf(ErrNotSpotifyLink, "invalid spotify URL path %q", u.Path)
	}
	switch parts[0] {
	case "track", "album", "playlist":
		return parts[0], spotify.ID(parts[1]), nil
	}
	return "", "", errors.Wrapf(ErrNotSpotifyLink, "unsupported spotify type %q", parts[0])
}
