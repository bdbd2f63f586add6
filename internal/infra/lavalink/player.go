package lavalink

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/osa030/vcbox/internal/app/playback"
	"github.com/osa030/vcbox/internal/domain/guild"
	"github.com/osa030/vcbox/internal/domain/track"
	"github.com/osa030/vcbox/internal/infra/logger"
)

// connectTimeout bounds Connect when ctx has no deadline.
const connectTimeout = 10 * time.Second

// Player is one guild's player on the node together with its voice state.
type Player struct {
	node    *Node
	guild   guild.ID
	guildID string
	log     zerolog.Logger

	mu         sync.Mutex
	channelID  string
	connected  bool
	voice      voiceState
	voiceReady chan struct{}
	current    *track.Track
	position   time.Duration
	updatedAt  time.Time
	paused     bool
	volume     int
}

func newPlayer(n *Node, g guild.ID) *Player {
	return &Player{
		node:    n,
		guild:   g,
		guildID: g.String(),
		log:     logger.Guild(uint64(g)),
		volume:  100,
	}
}

// IsConnected reports whether the node holds a voice connection for the guild.
func (p *Player) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// ChannelID returns the connected voice channel, or "".
func (p *Player) ChannelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channelID
}

// Status returns the current track and an estimate of its position.
func (p *Player) Status() playback.Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := playback.Status{Paused: p.paused, Volume: p.volume}
	if p.current == nil {
		return s
	}
	t := *p.current
	s.Track = &t
	s.Position = p.position
	if !p.paused && !p.updatedAt.IsZero() {
		s.Position += time.Since(p.updatedAt)
	}
	if t.Duration > 0 && s.Position > t.Duration {
		s.Position = t.Duration
	}
	return s
}

// Connect joins channelID and waits until the node has the voice session.
func (p *Player) Connect(ctx context.Context, channelID string) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, connectTimeout)
		defer cancel()
	}

	p.mu.Lock()
	ready := make(chan struct{})
	p.voiceReady = ready
	p.voice.Token, p.voice.Endpoint = "", ""
	p.mu.Unlock()

	if err := p.node.gateway.JoinVoice(p.guildID, channelID); err != nil {
		return errors.Wrap(err, "voice join failed")
	}

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "timed out waiting for voice session")
	}
}

// Disconnect leaves voice and destroys the node player.
func (p *Player) Disconnect(ctx context.Context) error {
	leaveErr := p.node.gateway.LeaveVoice(p.guildID)
	destroyErr := p.node.destroyPlayer(ctx, p.guildID)
	if errors.Is(destroyErr, ErrNoSession) {
		destroyErr = nil
	}
	p.voiceClosed()
	return errors.CombineErrors(leaveErr, destroyErr)
}

// Play replaces the current track with t.
func (p *Player) Play(ctx context.Context, t track.Track) error {
	encoded := t.Encoded
	resp, err := p.node.updatePlayer(ctx, p.guildID, playerUpdate{
		Track: &encodedTrack{Encoded: &encoded},
	}, false)
	if err != nil {
		return err
	}

	started := t
	if resp.Track != nil {
		started = resp.Track.toTrack()
	}
	p.mu.Lock()
	p.current = &started
	p.position = 0
	p.updatedAt = time.Now()
	p.paused = resp.Paused
	p.mu.Unlock()
	return nil
}

// Stop clears the node's track.
func (p *Player) Stop(ctx context.Context) error {
	_, err := p.node.updatePlayer(ctx, p.guildID, playerUpdate{Track: &encodedTrack{}}, false)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	return nil
}

// Pause pauses playback.
func (p *Player) Pause(ctx context.Context) error {
	return p.setPaused(ctx, true)
}

// Resume resumes playback.
func (p *Player) Resume(ctx context.Context) error {
	return p.setPaused(ctx, false)
}

func (p *Player) setPaused(ctx context.Context, paused bool) error {
	resp, err := p.node.updatePlayer(ctx, p.guildID, playerUpdate{Paused: &paused}, false)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.freezePosition()
	p.paused = resp.Paused
	p.mu.Unlock()
	return nil
}

// freezePosition folds elapsed time into position. Callers hold mu.
func (p *Player) freezePosition() {
	if !p.paused && !p.updatedAt.IsZero() {
		p.position += time.Since(p.updatedAt)
	}
	p.updatedAt = time.Now()
}

// Seek moves the current track to position.
func (p *Player) Seek(ctx context.Context, position time.Duration) error {
	ms := position.Milliseconds()
	if _, err := p.node.updatePlayer(ctx, p.guildID, playerUpdate{Position: &ms}, false); err != nil {
		return err
	}
	p.mu.Lock()
	p.position = position
	p.updatedAt = time.Now()
	p.mu.Unlock()
	return nil
}

// SetVolume sets the volume in percent.
func (p *Player) SetVolume(ctx context.Context, percent int) error {
	resp, err := p.node.updatePlayer(ctx, p.guildID, playerUpdate{Volume: &percent}, false)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.volume = resp.Volume
	p.mu.Unlock()
	return nil
}

func (p *Player) updateState(s playerState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = time.Duration(s.Position) * time.Millisecond
	p.updatedAt = time.Now()
}

func (p *Player) trackStarted(t track.Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		p.current = &t
		p.position = 0
		p.updatedAt = time.Now()
	}
}

// trackEnded clears the current track if ended is still the one playing.
func (p *Player) trackEnded(ended *trackData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return
	}
	if ended != nil && ended.Encoded != "" && ended.Encoded != p.current.Encoded {
		return
	}
	p.current = nil
	p.position = 0
}

func (p *Player) setVoiceSession(channelID, sessionID string) {
	p.mu.Lock()
	p.channelID = channelID
	p.voice.SessionID = sessionID
	p.mu.Unlock()
	p.sendVoice()
}

func (p *Player) setVoiceServer(token, endpoint string) {
	p.mu.Lock()
	p.voice.Token = token
	p.voice.Endpoint = endpoint
	p.mu.Unlock()
	p.sendVoice()
}

// sendVoice forwards the voice state once session, token and endpoint are known.
func (p *Player) sendVoice() {
	p.mu.Lock()
	v := p.voice
	p.mu.Unlock()
	if v.SessionID == "" || v.Token == "" || v.Endpoint == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if _, err := p.node.updatePlayer(ctx, p.guildID, playerUpdate{Voice: &v}, false); err != nil {
		p.log.Warn().Err(err).Msg("failed to forward voice state")
		return
	}

	p.mu.Lock()
	p.connected = true
	if p.voiceReady != nil {
		close(p.voiceReady)
		p.voiceReady = nil
	}
	p.mu.Unlock()
	p.log.Debug().Msgf("voice connected to %s", p.ChannelID())
}

// voiceClosed drops the voice connection and the current track.
func (p *Player) voiceClosed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	p.channelID = ""
	p.voice = voiceState{}
	p.current = nil
	p.position = 0
	p.paused = false
}

// reset forgets node-side state after the node lost the session, then
// re-sends the voice state so the guild can keep playing.
func (p *Player) reset() {
	p.mu.Lock()
	p.current = nil
	p.position = 0
	p.paused = false
	p.mu.Unlock()
	go p.sendVoice()
}
