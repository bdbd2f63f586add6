// Package sessiontest provides in-memory audio node fakes for tests of
// packages that drive a session.Manager.
package sessiontest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/osa030/vcbox/internal/app/playback"
	"github.com/osa030/vcbox/internal/app/session"
	"github.com/osa030/vcbox/internal/domain/guild"
	"github.com/osa030/vcbox/internal/domain/track"
)

// Player is a session.Player that plays instantly and never finishes.
type Player struct {
	mu        sync.Mutex
	connected bool
	channel   string
	current   *track.Track
	position  time.Duration
	paused    bool
	volume    int
}

var _ session.Player = (*Player)(nil)

func (p *Player) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *Player) ChannelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel
}

func (p *Player) Status() playback.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return playback.Status{Track: p.current, Position: p.position, Paused: p.paused, Volume: p.volume}
}

func (p *Player) Play(_ context.Context, t track.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = &t
	p.position = 0
	return nil
}

func (p *Player) Connect(_ context.Context, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	p.channel = channelID
	return nil
}

func (p *Player) Disconnect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	p.channel = ""
	p.current = nil
	return nil
}

func (p *Player) Pause(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	return nil
}

func (p *Player) Resume(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	return nil
}

func (p *Player) Seek(_ context.Context, position time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = position
	return nil
}

func (p *Player) SetVolume(_ context.Context, percent int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = percent
	return nil
}

func (p *Player) Stop(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = nil
	return nil
}

// Finish ends the current track as the node would.
func (p *Player) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = nil
}

// Node hands out one Player per guild.
type Node struct {
	mu      sync.Mutex
	players map[guild.ID]*Player
}

var _ session.Node = (*Node)(nil)

// NewNode returns an available node.
func NewNode() *Node {
	return &Node{players: make(map[guild.ID]*Player)}
}

func (n *Node) Available() bool { return true }

func (n *Node) Player(g guild.ID) session.Player {
	return n.Fake(g)
}

// Fake returns the concrete player for g.
func (n *Node) Fake(g guild.ID) *Player {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.players[g]
	if !ok {
		p = &Player{volume: 100}
		n.players[g] = p
	}
	return p
}

// Resolver resolves any query to a one-minute seekable track named after it.
type Resolver struct{}

func (Resolver) Resolve(_ context.Context, query string) (track.LoadResult, error) {
	return track.LoadResult{Status: track.LoadStatusLoaded, Tracks: []track.Track{Track(query)}}, nil
}

func (r Resolver) Search(ctx context.Context, query string, _ int) (track.LoadResult, error) {
	return r.Resolve(ctx, query)
}

// Track builds the track Resolver returns for id.
func Track(id string) track.Track {
	return track.Track{
		Identifier: id,
		Encoded:    "enc-" + id,
		Title:      "Song " + id,
		Author:     "Artist",
		Duration:   time.Minute,
		IsSeekable: true,
	}
}

// NewManager builds a manager over a fresh Node and shuts it down when the
// test ends.
func NewManager(tb testing.TB) (*session.Manager, *Node) {
	tb.Helper()
	node := NewNode()
	m := session.NewManager(session.Config{PollInterval: 10 * time.Millisecond}, node, Resolver{}, nil)
	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, node
}
