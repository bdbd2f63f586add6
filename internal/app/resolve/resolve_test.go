package resolve

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/vcbox/internal/domain/track"
	"github.com/osa030/vcbox/internal/infra/spotify"
)

type fakeLoader struct {
	calls   []string
	results map[string]track.LoadResult
	errs    map[string]error
}

func (l *fakeLoader) LoadTracks(_ context.Context, identifier string) (track.LoadResult, error) {
	l.calls = append(l.calls, identifier)
	if err := l.errs[identifier]; err != nil {
		return track.LoadResult{}, err
	}
	if res, ok := l.results[identifier]; ok {
		return res, nil
	}
	return track.LoadResult{Status: track.LoadStatusNoMatches}, nil
}

type fakeSpotify struct {
	col spotify.Collection
	err error
}

func (s *fakeSpotify) Resolve(context.Context, string) (spotify.Collection, error) {
	return s.col, s.err
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantURL bool
	}{
		{
			name: "free text becomes a search",
			in:   "daft punk around the world",
			want: "ytsearch:daft punk around the world",
		},
		{
			name:    "list parameter stripped from a video URL",
			in:      "https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PL123&index=4",
			want:    "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			wantURL: true,
		},
		{
			name:    "playlist URLs keep their list",
			in:      "https://www.youtube.com/playlist?list=PL123",
			want:    "https://www.youtube.com/playlist?list=PL123",
			wantURL: true,
		},
		{
			name:    "URL without query",
			in:      "https://soundcloud.com/artist/song",
			want:    "https://soundcloud.com/artist/song",
			wantURL: true,
		},
		{
			name: "surrounding whitespace trimmed",
			in:   "  lofi  ",
			want: "ytsearch:lofi",
		},
		{
			name: "scheme without host is text",
			in:   "artist: song",
			want: "ytsearch:artist: song",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, isURL := Normalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantURL, isURL)
		})
	}
}

func TestWantsPlaylist(t *testing.T) {
	assert.True(t, WantsPlaylist("https://www.youtube.com/playlist?list=x"))
	assert.True(t, WantsPlaylist("my PLAYLIST"))
	assert.False(t, WantsPlaylist("https://youtu.be/abc"))
}

func TestResolver_Resolve(t *testing.T) {
	song := track.Track{Identifier: "abc", Title: "Song"}
	loader := &fakeLoader{results: map[string]track.LoadResult{
		"ytsearch:song": {Status: track.LoadStatusSearchResult, Tracks: []track.Track{song}},
	}}
	r := New(loader, nil)

	res, err := r.Resolve(context.Background(), "song")
	require.NoError(t, err)
	assert.Equal(t, track.LoadStatusSearchResult, res.Status)
	assert.Equal(t, []string{"ytsearch:song"}, loader.calls)

	res, err = r.Resolve(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, track.LoadStatusNoMatches, res.Status)
	assert.Len(t, loader.calls, 1, "blank input never reaches the node")
}

func TestResolver_SearchLimit(t *testing.T) {
	var tracks []track.Track
	for _, id := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		tracks = append(tracks, track.Track{Identifier: id})
	}
	loader := &fakeLoader{results: map[string]track.LoadResult{
		"ytsearch:https://example.com/x": {Status: track.LoadStatusSearchResult, Tracks: tracks},
	}}

	res, err := New(loader, nil).Search(context.Background(), "https://example.com/x", 5)
	require.NoError(t, err)
	assert.Len(t, res.Tracks, 5)
}

func TestResolver_SpotifyPlaylist(t *testing.T) {
	loader := &fakeLoader{
		results: map[string]track.LoadResult{
			"ytsearch:A - One": {Status: track.LoadStatusSearchResult, Tracks: []track.Track{{Identifier: "one"}, {Identifier: "one-alt"}}},
			"ytsearch:A - Two": {Status: track.LoadStatusSearchResult, Tracks: []track.Track{{Identifier: "two"}}},
		},
		errs: map[string]error{"ytsearch:A - Broken": errors.New("boom")},
	}
	sp := &fakeSpotify{col: spotify.Collection{Name: "Album", Queries: []string{"A - One", "A - Broken", "A - Missing", "A - Two"}}}

	res, err := New(loader, sp).Resolve(context.Background(), "https://open.spotify.com/album/xyz")
	require.NoError(t, err)
	assert.Equal(t, track.LoadStatusPlaylistLoaded, res.Status)
	assert.Equal(t, "Album", res.PlaylistName)
	require.Len(t, res.Tracks, 2)
	assert.Equal(t, "one", res.Tracks[0].Identifier)
	assert.Equal(t, "two", res.Tracks[1].Identifier)
}

func TestResolver_SpotifyTrack(t *testing.T) {
	loader := &fakeLoader{results: map[string]track.LoadResult{
		"ytsearch:A - One": {Status: track.LoadStatusSearchResult, Tracks: []track.Track{{Identifier: "one"}}},
	}}
	sp := &fakeSpotify{col: spotify.Collection{Queries: []string{"A - One"}}}

	res, err := New(loader, sp).Resolve(context.Background(), "spotify:track:abc")
	require.NoError(t, err)
	assert.Equal(t, track.LoadStatusLoaded, res.Status)
	require.Len(t, res.Tracks, 1)
}

func TestResolver_SpotifyErrors(t *testing.T) {
	sp := &fakeSpotify{err: errors.New("401")}
	_, err := New(&fakeLoader{}, sp).Resolve(context.Background(), "spotify:track:abc")
	assert.ErrorContains(t, err, "spotify")

	loader := &fakeLoader{errs: map[string]error{"ytsearch:A - One": errors.New("node down")}}
	sp = &fakeSpotify{col: spotify.Collection{Queries: []string{"A - One"}}}
	_, err = New(loader, sp).Resolve(context.Background(), "spotify:track:abc")
	assert.ErrorContains(t, err, "node down")

	sp = &fakeSpotify{col: spotify.Collection{Queries: []string{"A - Nothing"}}}
	res, err := New(&fakeLoader{}, sp).Resolve(context.Background(), "spotify:track:abc")
	require.NoError(t, err)
	assert.Equal(t, track.LoadStatusNoMatches, res.Status)
}
