package lavalink

import (
	"encoding/json"
	"time"

	"github.com/osa030/vcbox/internal/domain/track"
)

// trackInfo is the node's description of a track.
type trackInfo struct {
	Identifier string `json:"identifier"`
	IsSeekable bool   `json:"isSeekable"`
	Author     string `json:"author"`
	Length     int64  `json:"length"`
	IsStream   bool   `json:"isStream"`
	Position   int64  `json:"position"`
	Title      string `json:"title"`
	URI        string `json:"uri"`
	SourceName string `json:"sourceName"`
}

type trackData struct {
	Encoded string    `json:"encoded"`
	Info    trackInfo `json:"info"`
}

func (t trackData) toTrack() track.Track {
	return track.Track{
		Identifier: t.Info.Identifier,
		Encoded:    t.Encoded,
		Title:      t.Info.Title,
		Author:     t.Info.Author,
		URI:        t.Info.URI,
		Duration:   time.Duration(t.Info.Length) * time.Millisecond,
		IsStream:   t.Info.IsStream,
		IsSeekable: t.Info.IsSeekable,
		SourceName: t.Info.SourceName,
	}
}

// loadResponse is the body of GET /v4/loadtracks. Data depends on LoadType.
type loadResponse struct {
	LoadType string          `json:"loadType"`
	Data     json.RawMessage `json:"data"`
}

type playlistData struct {
	Info struct {
		Name string `json:"name"`
	} `json:"info"`
	Tracks []trackData `json:"tracks"`
}

type exceptionData struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

// errorResponse is returned by the REST API for non-2xx statuses.
type errorResponse struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// voiceState is forwarded from the gateway so the node can open the voice
// connection.
type voiceState struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

// encodedTrack sets or clears the player's track. A nil Encoded stops playback.
type encodedTrack struct {
	Encoded *string `json:"encoded"`
}

// sessionUpdate is the session PATCH body.
type sessionUpdate struct {
	Resuming bool  `json:"resuming"`
	Timeout  int64 `json:"timeout"` // seconds
}

// playerUpdate is the PATCH body. Nil fields are left unchanged.
type playerUpdate struct {
	Track    *encodedTrack  `json:"track,omitempty"`
	Position *int64         `json:"position,omitempty"`
	Volume   *int           `json:"volume,omitempty"`
	Paused   *bool          `json:"paused,omitempty"`
	Filters  map[string]any `json:"filters,omitempty"`
	Voice    *voiceState    `json:"voice,omitempty"`
}

type playerState struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
	Ping      int64 `json:"ping"`
}

// playerResponse is the player as returned by PATCH.
type playerResponse struct {
	GuildID string      `json:"guildId"`
	Track   *trackData  `json:"track"`
	Volume  int         `json:"volume"`
	Paused  bool        `json:"paused"`
	State   playerState `json:"state"`
}

// message is a websocket frame. Fields are populated according to Op.
type message struct {
	Op string `json:"op"`

	// ready
	Resumed   bool   `json:"resumed"`
	SessionID string `json:"sessionId"`

	// playerUpdate and event
	GuildID string      `json:"guildId"`
	State   playerState `json:"state"`

	// event
	Type      string         `json:"type"`
	Track     *trackData     `json:"track"`
	Reason    string         `json:"reason"`
	Exception *exceptionData `json:"exception"`
	Code      int            `json:"code"`
	ByRemote  bool           `json:"byRemote"`
}

const (
	opReady        = "ready"
	opPlayerUpdate = "playerUpdate"
	opStats        = "stats"
	opEvent        = "event"

	eventTrackStart       = "TrackStartEvent"
	eventTrackEnd         = "TrackEndEvent"
	eventTrackException   = "TrackExceptionEvent"
	eventTrackStuck       = "TrackStuckEvent"
	eventWebSocketClosed  = "WebSocketClosedEvent"
	endReasonReplaced     = "replaced"
	closeCodeDisconnected = 4014
)
