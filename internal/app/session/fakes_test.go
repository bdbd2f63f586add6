package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/vcbox/internal/app/filter"
	"github.com/osa030/vcbox/internal/app/playback"
	"github.com/osa030/vcbox/internal/domain/guild"
	"github.com/osa030/vcbox/internal/domain/track"
)

type fakePlayer struct {
	mu         sync.Mutex
	connected  bool
	channel    string
	current    *track.Track
	position   time.Duration
	paused     bool
	volume     int
	calls      []string
	connectErr error
	playErr    error
	hang       chan struct{} // when set, the next Play closes it and blocks until ctx ends
}

func (p *fakePlayer) record(format string, args ...any) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *fakePlayer) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakePlayer) ChannelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel
}

func (p *fakePlayer) Status() playback.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return playback.Status{Track: p.current, Position: p.position, Paused: p.paused, Volume: p.volume}
}

func (p *fakePlayer) Play(ctx context.Context, t track.Track) error {
	p.mu.Lock()
	if hang := p.hang; hang != nil {
		p.record("play:%s", t.Identifier)
		p.hang = nil
		p.mu.Unlock()
		close(hang)
		<-ctx.Done()
		return ctx.Err()
	}
	defer p.mu.Unlock()
	p.record("play:%s", t.Identifier)
	if p.playErr != nil {
		return p.playErr
	}
	p.current = &t
	p.position = 0
	return nil
}

func (p *fakePlayer) Connect(_ context.Context, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("connect:%s", channelID)
	if p.connectErr != nil {
		return p.connectErr
	}
	p.connected = true
	p.channel = channelID
	return nil
}

func (p *fakePlayer) Disconnect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("disconnect")
	p.connected = false
	p.channel = ""
	p.current = nil
	return nil
}

func (p *fakePlayer) Pause(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	return nil
}

func (p *fakePlayer) Resume(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	return nil
}

func (p *fakePlayer) Seek(_ context.Context, position time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("seek:%s", position)
	p.position = position
	return nil
}

func (p *fakePlayer) SetVolume(_ context.Context, percent int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = percent
	return nil
}

func (p *fakePlayer) Stop(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("stop")
	p.current = nil
	return nil
}

// hangNextPlay makes the next Play block until its context ends. The returned
// channel is closed once that Play has been entered.
func (p *fakePlayer) hangNextPlay() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hang = make(chan struct{})
	return p.hang
}

// dropVoice simulates the voice connection being closed from outside.
func (p *fakePlayer) dropVoice() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	p.channel = ""
	p.current = nil
}

// finish simulates the node reporting the end of the current track.
func (p *fakePlayer) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = nil
}

func (p *fakePlayer) setPosition(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = d
}

func (p *fakePlayer) currentID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return ""
	}
	return p.current.Identifier
}

func (p *fakePlayer) history() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type fakeNode struct {
	mu          sync.Mutex
	unavailable bool
	players     map[guild.ID]*fakePlayer
}

func newFakeNode() *fakeNode {
	return &fakeNode{players: make(map[guild.ID]*fakePlayer)}
}

func (n *fakeNode) Available() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.unavailable
}

func (n *fakeNode) Player(g guild.ID) Player {
	return n.player(g)
}

func (n *fakeNode) player(g guild.ID) *fakePlayer {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.players[g]
	if !ok {
		p = &fakePlayer{volume: 100}
		n.players[g] = p
	}
	return p
}

type fakeResolver struct {
	results map[string]track.LoadResult
	err     error
}

func (r *fakeResolver) Resolve(_ context.Context, query string) (track.LoadResult, error) {
	if r.err != nil {
		return track.LoadResult{}, r.err
	}
	res, ok := r.results[query]
	if !ok {
		return track.LoadResult{Status: track.LoadStatusNoMatches}, nil
	}
	return res, nil
}

func (r *fakeResolver) Search(ctx context.Context, query string, limit int) (track.LoadResult, error) {
	res, err := r.Resolve(ctx, query)
	if len(res.Tracks) > limit {
		res.Tracks = res.Tracks[:limit]
	}
	return res, err
}

type rejectFilter struct {
	code string
	ids  map[string]bool
}

func (f rejectFilter) Execute(_ context.Context, _ filter.TrackRequest, t track.Track) filter.Result {
	if f.ids[t.Identifier] {
		return filter.Reject(f.code)
	}
	return filter.Accept()
}

var errNode = errors.New("node error")

func tr(id string, seconds int) track.Track {
	return track.Track{
		Identifier: id,
		Encoded:    "enc-" + id,
		Title:      "Title " + id,
		Author:     "Author",
		Duration:   time.Duration(seconds) * time.Second,
		IsSeekable: true,
		SourceName: "youtube",
	}
}

func loaded(t track.Track) track.LoadResult {
	return track.LoadResult{Status: track.LoadStatusLoaded, Tracks: []track.Track{t}}
}
