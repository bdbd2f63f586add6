package spotify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"
)

func TestParseLink(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType string
		wantID   spotify.ID
		wantErr  bool
	}{
		{
			name:     "track URI",
			input:    "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
			wantType: "track",
			wantID:   "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:     "playlist URL with query params",
			input:    "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M?si=abc123",
			wantType: "playlist",
			wantID:   "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "album URL with intl prefix",
			input:    "https://open.spotify.com/intl-ja/album/1DFixLWuPkv3KT3TnV35m3",
			wantType: "album",
			wantID:   "1DFixLWuPkv3KT3TnV35m3",
		},
		{
			name:     "HTTP URL (not HTTPS)",
			input:    "http://open.spotify.com/track/testID",
			wantType: "track",
			wantID:   "testID",
		},
		{
			name:    "artist links are not supported",
			input:   "https://open.spotify.com/artist/0OdUWJ0sBjDrqHygGUXeCF",
			wantErr: true,
		},
		{
			name:    "youtube URL",
			input:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			wantErr: true,
		},
		{
			name:    "plain search text",
			input:   "never gonna give you up",
			wantErr: true,
		},
		{
			name:    "truncated URI",
			input:   "spotify:track:",
			wantErr: true,
		},
		{
			name:    "Empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, id, err := ParseLink(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrNotSpotifyLink)
				assert.False(t, IsLink(tt.input))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, typ)
			assert.Equal(t, tt.wantID, id)
			assert.True(t, IsLink(tt.input))
		})
	}
}

func TestSearchQuery(t *testing.T) {
	assert.Equal(t, "Queen - Bohemian Rhapsody",
		searchQuery("Bohemian Rhapsody", []spotify.SimpleArtist{{Name: "Queen"}, {Name: "Other"}}))
	assert.Equal(t, "Untitled", searchQuery("Untitled", nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := newClient(srv.Client(), Config{BaseURL: srv.URL + "/", MaxTracks: 2})
	c.retryDelay = 0
	return c
}

func TestClient_ResolveTrack(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tracks/abc", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"abc","name":"Song","artists":[{"name":"Artist"}],"duration_ms":180000}`))
	})

	got, err := c.Resolve(context.Background(), "spotify:track:abc")
	require.NoError(t, err)
	assert.False(t, got.IsPlaylist())
	assert.Equal(t, []string{"Artist - Song"}, got.Queries)
}

func TestClient_ResolveAlbumIsCapped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/albums/alb", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"alb","name":"Album","tracks":{"items":[
			{"name":"One","artists":[{"name":"A"}]},
			{"name":"Two","artists":[{"name":"A"}]},
			{"name":"Three","artists":[{"name":"A"}]}
		],"next":""}}`))
	})

	got, err := c.Resolve(context.Background(), "https://open.spotify.com/album/alb")
	require.NoError(t, err)
	assert.True(t, got.IsPlaylist())
	assert.Equal(t, "Album", got.Name)
	assert.Equal(t, []string{"A - One", "A - Two"}, got.Queries)
}

func TestClient_ResolvePlaylistSkipsEpisodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/tracks") {
			_, _ = w.Write([]byte(`{"items":[
				{"track":{"type":"episode","id":"ep","name":"Podcast"}},
				{"track":{"type":"track","id":"t1","name":"Song","artists":[{"name":"X"}]}}
			],"total":2}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"pl","name":"Mix"}`))
	})

	got, err := c.Resolve(context.Background(), "spotify:playlist:pl")
	require.NoError(t, err)
	assert.Equal(t, "Mix", got.Name)
	assert.Equal(t, []string{"X - Song"}, got.Queries)
}

func TestClient_ResolveNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"status":404,"message":"Not found."}}`))
	})

	_, err := c.Resolve(context.Background(), "spotify:track:missing")
	assert.Error(t, err)
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{ClientID: "id"})
	assert.Error(t, err)

	c, err := New(context.Background(), Config{ClientID: "id", ClientSecret: "secret"})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxTracks, c.maxTracks)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "rate limit error with 429",
			err:      errors.New("Error 429: rate limit exceeded"),
			expected: true,
		},
		{
			name:     "rate limit text",
			err:      errors.New("rate limit exceeded"),
			expected: true,
		},
		{
			name:     "server error 500",
			err:      errors.New("Error 500: internal server error"),
			expected: true,
		},
		{
			name:     "server error 502",
			err:      errors.New("502 Bad Gateway"),
			expected: true,
		},
		{
			name:     "server error 503",
			err:      errors.New("503 Service Unavailable"),
			expected: true,
		},
		{
			name:     "server error 504",
			err:      errors.New("504 Gateway Timeout"),
			expected: true,
		},
		{
			name:     "client error 400",
			err:      errors.New("400 Bad Request"),
			expected: false,
		},
		{
			name:     "not found error",
			err:      errors.New("404 not found"),
			expected: false,
		},
		{
			name:     "generic error",
			err:      errors.New("something went wrong"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isRetryable(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}
