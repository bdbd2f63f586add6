package lavalink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/vcbox/internal/domain/guild"
	"github.com/osa030/vcbox/internal/domain/track"
)

const (
	testGuild   guild.ID = 123456789
	testGuildID          = "123456789"
	wait                 = 2 * time.Second
)

type request struct {
	Method string
	Path   string
	Body   map[string]any
}

// fakeServer is a Lavalink node with a websocket and REST endpoints.
type fakeServer struct {
	t        *testing.T
	srv      *httptest.Server
	conns    chan *websocket.Conn
	mu       sync.Mutex
	requests []request
	sessions []request // session-level PATCHes
	headers  http.Header
	load     map[string]string // identifier -> raw JSON body
}

func newFakeServer(t *testing.T) *fakeServer {
	f := &fakeServer{t: t, conns: make(chan *websocket.Conn, 4), load: map[string]string{}}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/v4/websocket", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.headers = r.Header.Clone()
		f.mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		f.conns <- conn
	})
	mux.HandleFunc("/v4/loadtracks", func(w http.ResponseWriter, r *http.Request) {
		body, ok := f.load[r.URL.Query().Get("identifier")]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"status":400,"error":"Bad Request","message":"no identifier","path":"/v4/loadtracks"}`)
			return
		}
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("/v4/sessions/", func(w http.ResponseWriter, r *http.Request) {
		req := request{Method: r.Method, Path: r.URL.Path}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			assert.NoError(t, json.Unmarshal(data, &req.Body))
		}
		if !strings.Contains(r.URL.Path, "/players/") {
			f.mu.Lock()
			f.sessions = append(f.sessions, req)
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(req.Body)
			return
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		resp := map[string]any{"guildId": testGuildID, "volume": 100, "paused": false}
		if tr, ok := req.Body["track"].(map[string]any); ok {
			if enc, ok := tr["encoded"].(string); ok {
				resp["track"] = map[string]any{"encoded": enc, "info": map[string]any{"identifier": "id-" + enc, "title": "T " + enc, "length": 180000, "isSeekable": true}}
			}
		}
		if v, ok := req.Body["volume"].(float64); ok {
			resp["volume"] = int(v)
		}
		if p, ok := req.Body["paused"].(bool); ok {
			resp["paused"] = p
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) config() Config {
	u, err := url.Parse(f.srv.URL)
	require.NoError(f.t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(f.t, err)
	return Config{
		Host:           u.Hostname(),
		Port:           port,
		Password:       "youshallnotpass",
		ClientName:     "vcbox-test",
		UserID:         "42",
		ReconnectDelay: 10 * time.Millisecond,
	}
}

func (f *fakeServer) calls() []request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]request(nil), f.requests...)
}

func (f *fakeServer) sessionCalls() []request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]request(nil), f.sessions...)
}

// fakeGateway answers a join with the voice events the chat gateway would send.
type fakeGateway struct {
	node   *Node
	mu     sync.Mutex
	joined []string
	left   int
}

func (g *fakeGateway) JoinVoice(guildID, channelID string) error {
	g.mu.Lock()
	g.joined = append(g.joined, channelID)
	g.mu.Unlock()
	id := guild.MustParseID(guildID)
	go func() {
		g.node.VoiceStateUpdate(id, channelID, "voice-session")
		g.node.VoiceServerUpdate(id, "token", "endpoint.discord.media")
	}()
	return nil
}

func (g *fakeGateway) LeaveVoice(string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.left++
	return nil
}

type harness struct {
	server  *fakeServer
	node    *Node
	gateway *fakeGateway
	conn    *websocket.Conn
	ended   chan guild.ID
}

func startNode(t *testing.T) *harness {
	t.Helper()
	return startNodeWith(t, nil)
}

func startNodeWith(t *testing.T, configure func(*Config)) *harness {
	t.Helper()
	server := newFakeServer(t)
	gateway := &fakeGateway{}
	cfg := server.config()
	if configure != nil {
		configure(&cfg)
	}
	node := NewNode(cfg, gateway)
	gateway.node = node

	h := &harness{server: server, node: node, gateway: gateway, ended: make(chan guild.ID, 4)}
	node.OnTrackEnd(func(g guild.ID) { h.ended <- g })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = node.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case h.conn = <-server.conns:
	case <-time.After(wait):
		t.Fatal("node did not connect")
	}
	h.send(t, map[string]any{"op": "ready", "resumed": false, "sessionId": "s1"})
	require.Eventually(t, node.Available, wait, 5*time.Millisecond)
	return h
}

func (h *harness) send(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, h.conn.WriteJSON(v))
}

func TestNode_Handshake(t *testing.T) {
	h := startNode(t)

	h.server.mu.Lock()
	headers := h.server.headers
	h.server.mu.Unlock()
	assert.Equal(t, "youshallnotpass", headers.Get("Authorization"))
	assert.Equal(t, "42", headers.Get("User-Id"))
	assert.Equal(t, "vcbox-test", headers.Get("Client-Name"))
	assert.Equal(t, "s1", h.node.SessionID())
}

func TestNode_LoadTracks(t *testing.T) {
	trackJSON := `{"encoded":"QAA","info":{"identifier":"dQw4w9WgXcQ","isSeekable":true,"author":"Rick Astley","length":212000,"isStream":false,"position":0,"title":"Never Gonna Give You Up","uri":"https://www.youtube.com/watch?v=dQw4w9WgXcQ","sourceName":"youtube"}}`

	tests := []struct {
		name       string
		body       string
		wantStatus track.LoadStatus
		wantTracks int
		wantName   string
		wantMsg    string
	}{
		{name: "track", body: `{"loadType":"track","data":` + trackJSON + `}`, wantStatus: track.LoadStatusLoaded, wantTracks: 1},
		{
			name:       "playlist",
			body:       `{"loadType":"playlist","data":{"info":{"name":"Mix","selectedTrack":-1},"tracks":[` + trackJSON + `,` + trackJSON + `]}}`,
			wantStatus: track.LoadStatusPlaylistLoaded,
			wantTracks: 2,
			wantName:   "Mix",
		},
		{name: "search", body: `{"loadType":"search","data":[` + trackJSON + `]}`, wantStatus: track.LoadStatusSearchResult, wantTracks: 1},
		{name: "empty search", body: `{"loadType":"search","data":[]}`, wantStatus: track.LoadStatusNoMatches},
		{name: "empty", body: `{"loadType":"empty","data":{}}`, wantStatus: track.LoadStatusNoMatches},
		{
			name:       "error",
			body:       `{"loadType":"error","data":{"message":"This video is unavailable","severity":"common","cause":"x"}}`,
			wantStatus: track.LoadStatusLoadFailed,
			wantMsg:    "This video is unavailable",
		},
	}

	server := newFakeServer(t)
	node := NewNode(server.config(), &fakeGateway{})
	for _, tt := range tests {
		server.load[tt.name] = tt.body
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := node.LoadTracks(context.Background(), tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Len(t, res.Tracks, tt.wantTracks)
			assert.Equal(t, tt.wantName, res.PlaylistName)
			assert.Equal(t, tt.wantMsg, res.Message)
		})
	}

	t.Run("track fields", func(t *testing.T) {
		res, err := node.LoadTracks(context.Background(), "track")
		require.NoError(t, err)
		got := res.Tracks[0]
		assert.Equal(t, "dQw4w9WgXcQ", got.Identifier)
		assert.Equal(t, "QAA", got.Encoded)
		assert.Equal(t, "Rick Astley", got.Author)
		assert.Equal(t, 212*time.Second, got.Duration)
		assert.True(t, got.IsSeekable)
		assert.Equal(t, "youtube", got.SourceName)
	})

	t.Run("api error", func(t *testing.T) {
		_, err := node.LoadTracks(context.Background(), "unknown")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no identifier")
	})
}

func TestPlayer_RequiresSession(t *testing.T) {
	server := newFakeServer(t)
	node := NewNode(server.config(), &fakeGateway{})
	err := node.Player(testGuild).Play(context.Background(), track.Track{Encoded: "QAA"})
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestPlayer_Lifecycle(t *testing.T) {
	h := startNode(t)
	ctx := context.Background()
	p := h.node.Player(testGuild)

	require.NoError(t, p.Connect(ctx, "777"))
	assert.True(t, p.IsConnected())
	assert.Equal(t, "777", p.ChannelID())

	require.NoError(t, p.Play(ctx, track.Track{Encoded: "AAA"}))
	status := p.Status()
	require.NotNil(t, status.Track)
	assert.Equal(t, "id-AAA", status.Track.Identifier)
	assert.Equal(t, 180*time.Second, status.Track.Duration)

	require.NoError(t, p.Seek(ctx, 45*time.Second))
	require.NoError(t, p.Pause(ctx))
	status = p.Status()
	assert.True(t, status.Paused)
	assert.InDelta(t, float64(45*time.Second), float64(status.Position), float64(time.Second))

	require.NoError(t, p.SetVolume(ctx, 30))
	assert.Equal(t, 30, p.Status().Volume)

	calls := h.server.calls()
	require.Len(t, calls, 5)
	assert.Equal(t, "/v4/sessions/s1/players/"+testGuildID, calls[0].Path)
	assert.Equal(t, map[string]any{"token": "token", "endpoint": "endpoint.discord.media", "sessionId": "voice-session"}, calls[0].Body["voice"])
	assert.Equal(t, map[string]any{"encoded": "AAA"}, calls[1].Body["track"])
	assert.Equal(t, float64(45000), calls[2].Body["position"])
	assert.Equal(t, true, calls[3].Body["paused"])
	assert.Equal(t, float64(30), calls[4].Body["volume"])

	require.NoError(t, p.Stop(ctx))
	assert.Nil(t, p.Status().Track)
	stop := h.server.calls()[5]
	assert.Equal(t, map[string]any{"encoded": nil}, stop.Body["track"])

	require.NoError(t, p.Disconnect(ctx))
	assert.False(t, p.IsConnected())
	assert.Empty(t, p.ChannelID())
	last := h.server.calls()[6]
	assert.Equal(t, http.MethodDelete, last.Method)
	assert.Equal(t, 1, h.gateway.left)
}

func TestPlayer_TrackEvents(t *testing.T) {
	h := startNode(t)
	ctx := context.Background()
	p := h.node.Player(testGuild)
	require.NoError(t, p.Connect(ctx, "777"))
	require.NoError(t, p.Play(ctx, track.Track{Encoded: "AAA"}))

	h.send(t, map[string]any{"op": "playerUpdate", "guildId": testGuildID, "state": map[string]any{"time": 1, "position": 60000, "connected": true, "ping": 5}})
	require.Eventually(t, func() bool { return p.Status().Position >= 60*time.Second }, wait, 5*time.Millisecond)

	// A replaced track does not end playback.
	h.send(t, map[string]any{"op": "event", "type": "TrackEndEvent", "guildId": testGuildID, "track": map[string]any{"encoded": "AAA"}, "reason": "replaced"})
	// A stale end for another track is ignored.
	h.send(t, map[string]any{"op": "event", "type": "TrackEndEvent", "guildId": testGuildID, "track": map[string]any{"encoded": "OLD"}, "reason": "finished"})
	select {
	case g := <-h.ended:
		assert.Equal(t, testGuild, g)
	case <-time.After(wait):
		t.Fatal("track end not reported")
	}
	assert.NotNil(t, p.Status().Track)

	h.send(t, map[string]any{"op": "event", "type": "TrackEndEvent", "guildId": testGuildID, "track": map[string]any{"encoded": "AAA"}, "reason": "finished"})
	select {
	case <-h.ended:
	case <-time.After(wait):
		t.Fatal("track end not reported")
	}
	assert.Nil(t, p.Status().Track)

	h.send(t, map[string]any{"op": "event", "type": "WebSocketClosedEvent", "guildId": testGuildID, "code": 4014, "reason": "Disconnected", "byRemote": true})
	require.Eventually(t, func() bool { return !p.IsConnected() }, wait, 5*time.Millisecond)
}

func TestNode_Reconnects(t *testing.T) {
	h := startNode(t)
	require.NoError(t, h.conn.Close())

	select {
	case conn := <-h.server.conns:
		h.server.mu.Lock()
		sid := h.server.headers.Get("Session-Id")
		h.server.mu.Unlock()
		assert.Equal(t, "s1", sid)
		require.NoError(t, conn.WriteJSON(map[string]any{"op": "ready", "resumed": true, "sessionId": "s1"}))
	case <-time.After(wait):
		t.Fatal("node did not reconnect")
	}
	require.Eventually(t, h.node.Available, wait, 5*time.Millisecond)
}

func TestNode_EnablesResuming(t *testing.T) {
	h := startNodeWith(t, func(c *Config) { c.ResumeTimeout = time.Minute })

	require.Eventually(t, func() bool { return len(h.server.sessionCalls()) == 1 }, wait, 5*time.Millisecond)
	call := h.server.sessionCalls()[0]
	assert.Equal(t, http.MethodPatch, call.Method)
	assert.Equal(t, "/v4/sessions/s1", call.Path)
	assert.Equal(t, map[string]any{"resuming": true, "timeout": float64(60)}, call.Body)

	require.NoError(t, h.conn.Close())
	select {
	case conn := <-h.server.conns:
		require.NoError(t, conn.WriteJSON(map[string]any{"op": "ready", "resumed": true, "sessionId": "s1"}))
	case <-time.After(wait):
		t.Fatal("node did not reconnect")
	}
	require.Eventually(t, h.node.Available, wait, 5*time.Millisecond)
	assert.Never(t, func() bool { return len(h.server.sessionCalls()) > 1 }, 100*time.Millisecond, 10*time.Millisecond,
		"a resumed session is not reconfigured")
}

func TestNode_ResumingDisabledByDefault(t *testing.T) {
	h := startNode(t)
	assert.Never(t, func() bool { return len(h.server.sessionCalls()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, backoff(time.Second, 1))
	assert.Equal(t, 4*time.Second, backoff(time.Second, 3))
	assert.Equal(t, maxBackoff, backoff(time.Second, 20))
}

func TestNode_String(t *testing.T) {
	n := NewNode(Config{Host: "localhost", Port: 2333}, nil)
	assert.True(t, strings.HasPrefix(n.String(), "lavalink(http://localhost:2333"))
}
