// Package lavalink is a client for a Lavalink v4 audio node.
package lavalink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vcbox/internal/domain/guild"
)

const (
	handshakeTimeout = 10 * time.Second
	requestTimeout   = 10 * time.Second
	maxBackoff       = 30 * time.Second
)

// Config configures the node connection.
type Config struct {
	Host              string
	Port              int
	Password          string
	Secure            bool
	ClientName        string
	UserID            string // Bot user ID, sent as User-Id
	ReconnectAttempts int    // 0 retries forever
	ReconnectDelay    time.Duration
	ResumeTimeout     time.Duration // how long the node keeps players after a drop; 0 disables resuming
}

// VoiceGateway joins and leaves voice channels on the chat gateway.
type VoiceGateway interface {
	JoinVoice(guildID, channelID string) error
	LeaveVoice(guildID string) error
}

// Node is a connection to one Lavalink server.
type Node struct {
	config     Config
	restURL    string
	wsURL      string
	httpClient *http.Client
	dialer     *websocket.Dialer
	gateway    VoiceGateway
	log        zerolog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	sessionID string
	players   map[guild.ID]*Player

	onTrackEnd func(guild.ID)
}

// NewNode creates a node client. Call Run to connect.
func NewNode(cfg Config, gateway VoiceGateway) *Node {
	if cfg.ClientName == "" {
		cfg.ClientName = "vcbox"
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	httpScheme, wsScheme := "http", "ws"
	if cfg.Secure {
		httpScheme, wsScheme = "https", "wss"
	}
	hostPort := cfg.Host + ":" + strconv.Itoa(cfg.Port)

	return &Node{
		config:     cfg,
		restURL:    httpScheme + "://" + hostPort,
		wsURL:      wsScheme + "://" + hostPort + "/v4/websocket",
		httpClient: &http.Client{Timeout: requestTimeout},
		dialer:     &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		gateway:    gateway,
		log:        zlog.With().Str("component", "lavalink").Logger(),
		players:    make(map[guild.ID]*Player),
	}
}

// OnTrackEnd registers a callback invoked after the node reports a finished
// track. It must be set before Run.
func (n *Node) OnTrackEnd(fn func(guild.ID)) {
	n.onTrackEnd = fn
}

// Available reports whether the websocket is up and a session is established.
func (n *Node) Available() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.conn != nil && n.sessionID != ""
}

// SessionID returns the current session ID, or "".
func (n *Node) SessionID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sessionID
}

// Player returns the guild's player, creating it on first use.
func (n *Node) Player(g guild.ID) *Player {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.players[g]
	if !ok {
		p = newPlayer(n, g)
		n.players[g] = p
	}
	return p
}

func (n *Node) existingPlayer(g guild.ID) (*Player, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	p, ok := n.players[g]
	return p, ok
}

func (n *Node) allPlayers() []*Player {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Player, 0, len(n.players))
	for _, p := range n.players {
		out = append(out, p)
	}
	return out
}

// Run connects to the node and keeps reconnecting until ctx is done or the
// configured attempts are exhausted.
func (n *Node) Run(ctx context.Context) error {
	failures := 0
	for {
		ready, err := n.serve(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if ready {
			failures = 0
		}
		failures++
		if n.config.ReconnectAttempts > 0 && failures > n.config.ReconnectAttempts {
			return errors.Wrapf(err, "giving up after %d attempts", n.config.ReconnectAttempts)
		}

		delay := backoff(n.config.ReconnectDelay, failures)
		n.log.Warn().Err(err).Msgf("node connection lost, retrying in %s", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}

func backoff(base time.Duration, failures int) time.Duration {
	d := base
	for i := 1; i < failures && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

// serve runs one websocket connection. It reports whether the node sent ready.
func (n *Node) serve(ctx context.Context) (bool, error) {
	header := http.Header{}
	header.Set("Authorization", n.config.Password)
	header.Set("User-Id", n.config.UserID)
	header.Set("Client-Name", n.config.ClientName)
	if sid := n.SessionID(); sid != "" {
		header.Set("Session-Id", sid)
	}

	conn, _, err := n.dialer.DialContext(ctx, n.wsURL, header)
	if err != nil {
		return false, errors.Wrapf(err, "failed to dial %s", n.wsURL)
	}
	n.mu.Lock()
	n.conn = conn
	n.mu.Unlock()
	n.log.Info().Msgf("connected to %s", n.wsURL)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	ready := false
	defer func() {
		conn.Close()
		n.mu.Lock()
		n.conn = nil
		n.mu.Unlock()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return ready, errors.Wrap(err, "read failed")
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			n.log.Debug().Err(err).Msg("ignoring malformed frame")
			continue
		}
		if msg.Op == opReady {
			ready = true
		}
		n.handle(msg)
	}
}

func (n *Node) handle(msg message) {
	switch msg.Op {
	case opReady:
		n.handleReady(msg)
	case opPlayerUpdate:
		if p, ok := n.playerFor(msg.GuildID); ok {
			p.updateState(msg.State)
		}
	case opEvent:
		n.handleEvent(msg)
	case opStats:
	default:
		n.log.Debug().Msgf("unknown op %q", msg.Op)
	}
}

func (n *Node) handleReady(msg message) {
	n.mu.Lock()
	previous := n.sessionID
	n.sessionID = msg.SessionID
	n.mu.Unlock()

	n.log.Info().Bool("resumed", msg.Resumed).Msgf("session %s ready", msg.SessionID)
	if previous != "" && !msg.Resumed {
		// Players on the old session are gone.
		for _, p := range n.allPlayers() {
			p.reset()
		}
	}
	// A resumed session keeps its resuming configuration.
	if !msg.Resumed && n.config.ResumeTimeout > 0 {
		go n.enableResuming(msg.SessionID)
	}
}

func (n *Node) handleEvent(msg message) {
	p, ok := n.playerFor(msg.GuildID)
	if !ok {
		return
	}
	switch msg.Type {
	case eventTrackStart:
		if msg.Track != nil {
			p.trackStarted(msg.Track.toTrack())
		}
	case eventTrackEnd:
		if msg.Reason == endReasonReplaced {
			return
		}
		p.trackEnded(msg.Track)
		p.log.Debug().Msgf("track ended (%s)", msg.Reason)
		if n.onTrackEnd != nil {
			n.onTrackEnd(p.guild)
		}
	case eventTrackException:
		if msg.Exception != nil {
			p.log.Warn().Str("severity", msg.Exception.Severity).Msgf("track exception: %s", msg.Exception.Message)
		}
	case eventTrackStuck:
		p.log.Warn().Msg("track stuck")
	case eventWebSocketClosed:
		p.log.Warn().Int("code", msg.Code).Bool("remote", msg.ByRemote).Msg("voice websocket closed")
		if msg.Code == closeCodeDisconnected {
			p.voiceClosed()
		}
	}
}

func (n *Node) playerFor(guildID string) (*Player, bool) {
	g, err := guild.ParseID(guildID)
	if err != nil {
		return nil, false
	}
	return n.existingPlayer(g)
}

// VoiceStateUpdate forwards the bot's own voice state from the gateway. An
// empty channelID means the bot left or was removed from voice.
func (n *Node) VoiceStateUpdate(g guild.ID, channelID, sessionID string) {
	p := n.Player(g)
	if channelID == "" {
		p.voiceClosed()
		return
	}
	p.setVoiceSession(channelID, sessionID)
}

// VoiceServerUpdate forwards the voice server token and endpoint.
func (n *Node) VoiceServerUpdate(g guild.ID, token, endpoint string) {
	n.Player(g).setVoiceServer(token, endpoint)
}

// String describes the node for logs.
func (n *Node) String() string {
	return fmt.Sprintf("lavalink(%s)", n.restURL)
}
