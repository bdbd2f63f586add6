package lavalink

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/vcbox/internal/domain/track"
)

// ErrNoSession is returned by player calls made before the node sent ready.
var ErrNoSession = errors.New("lavalink session is not established")

// LoadTracks resolves an identifier (URL or "ytsearch:" query) on the node.
func (n *Node) LoadTracks(ctx context.Context, identifier string) (track.LoadResult, error) {
	params := url.Values{}
	params.Set("identifier", identifier)

	var resp loadResponse
	if err := n.do(ctx, http.MethodGet, "/v4/loadtracks?"+params.Encode(), nil, &resp); err != nil {
		return track.LoadResult{}, err
	}
	return decodeLoadResult(resp)
}

func decodeLoadResult(resp loadResponse) (track.LoadResult, error) {
	switch resp.LoadType {
	case "track":
		var t trackData
		if err := json.Unmarshal(resp.Data, &t); err != nil {
			return track.LoadResult{}, errors.Wrap(err, "failed to parse track")
		}
		return track.LoadResult{Status: track.LoadStatusLoaded, Tracks: []track.Track{t.toTrack()}}, nil

	case "playlist":
		var p playlistData
		if err := json.Unmarshal(resp.Data, &p); err != nil {
			return track.LoadResult{}, errors.Wrap(err, "failed to parse playlist")
		}
		return track.LoadResult{
			Status:       track.LoadStatusPlaylistLoaded,
			Tracks:       toTracks(p.Tracks),
			PlaylistName: p.Info.Name,
		}, nil

	case "search":
		var ts []trackData
		if err := json.Unmarshal(resp.Data, &ts); err != nil {
			return track.LoadResult{}, errors.Wrap(err, "failed to parse search result")
		}
		status := track.LoadStatusSearchResult
		if len(ts) == 0 {
			status = track.LoadStatusNoMatches
		}
		return track.LoadResult{Status: status, Tracks: toTracks(ts)}, nil

	case "empty":
		return track.LoadResult{Status: track.LoadStatusNoMatches}, nil

	case "error":
		var e exceptionData
		if err := json.Unmarshal(resp.Data, &e); err != nil {
			return track.LoadResult{}, errors.Wrap(err, "failed to parse exception")
		}
		return track.LoadResult{Status: track.LoadStatusLoadFailed, Message: e.Message}, nil

	default:
		return track.LoadResult{}, errors.Newf("unknown load type %q", resp.LoadType)
	}
}

func toTracks(ts []trackData) []track.Track {
	out := make([]track.Track, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.toTrack())
	}
	return out
}

// updatePlayer sends a PATCH for the guild's player and returns the new state.
func (n *Node) updatePlayer(ctx context.Context, guildID string, update playerUpdate, noReplace bool) (*playerResponse, error) {
	sessionID := n.SessionID()
	if sessionID == "" {
		return nil, ErrNoSession
	}
	path := "/v4/sessions/" + url.PathEscape(sessionID) + "/players/" + url.PathEscape(guildID)
	if noReplace {
		path += "?noReplace=true"
	}

	var resp playerResponse
	if err := n.do(ctx, http.MethodPatch, path, update, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// destroyPlayer removes the guild's player from the node.
func (n *Node) destroyPlayer(ctx context.Context, guildID string) error {
	sessionID := n.SessionID()
	if sessionID == "" {
		return ErrNoSession
	}
	path := "/v4/sessions/" + url.PathEscape(sessionID) + "/players/" + url.PathEscape(guildID)
	return n.do(ctx, http.MethodDelete, path, nil, nil)
}

// enableResuming asks the node to keep sessionID's players alive for
// ResumeTimeout after the websocket drops, so a reconnect sending Session-Id
// picks them up again.
func (n *Node) enableResuming(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	update := sessionUpdate{Resuming: true, Timeout: int64(n.config.ResumeTimeout / time.Second)}
	if err := n.do(ctx, http.MethodPatch, "/v4/sessions/"+url.PathEscape(sessionID), update, nil); err != nil {
		n.log.Warn().Err(err).Msg("failed to enable session resuming")
		return
	}
	n.log.Debug().Msgf("session %s resumable for %s", sessionID, n.config.ResumeTimeout)
}

// do sends a REST request. body and out may be nil.
func (n *Node) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, n.restURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Authorization", n.config.Password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode >= 300 {
		var apiErr errorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Message != "" {
			return errors.Newf("lavalink %s %s: %d %s", method, path, resp.StatusCode, apiErr.Message)
		}
		return errors.Newf("lavalink %s %s: %s", method, path, resp.Status)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}
