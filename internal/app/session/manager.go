// Package session provides the per-guild playback session orchestrator.
package session

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vcbox/internal/app/filter"
	"github.com/osa030/vcbox/internal/app/playback"
	"github.com/osa030/vcbox/internal/app/repeat"
	"github.com/osa030/vcbox/internal/app/resolve"
	"github.com/osa030/vcbox/internal/app/session/registry"
	"github.com/osa030/vcbox/internal/domain/guild"
	"github.com/osa030/vcbox/internal/domain/track"
)

// Config holds session timing.
type Config struct {
	PollInterval     time.Duration // monitor tick interval
	ReconnectTimeout time.Duration // how long Join waits for the old monitor
	SeekDelay        time.Duration // pause between replay and seek on rejoin
	StopTimeout      time.Duration // how long Stop waits for the monitor
	SearchResults    int
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = playback.DefaultPollInterval
	}
	if c.ReconnectTimeout <= 0 {
		c.ReconnectTimeout = 5 * time.Second
	}
	if c.SeekDelay < 0 {
		c.SeekDelay = 0
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 2 * time.Second
	}
	if c.SearchResults <= 0 {
		c.SearchResults = 5
	}
}

// Manager runs command operations against per-guild sessions.
type Manager struct {
	config    Config
	node      Node
	resolver  Resolver
	admission Admission
	registry  *registry.Registry
	events    chan playback.Event
}

// NewManager creates a session manager. admission may be nil.
func NewManager(cfg Config, node Node, resolver Resolver, admission Admission) *Manager {
	cfg.setDefaults()
	return &Manager{
		config:    cfg,
		node:      node,
		resolver:  resolver,
		admission: admission,
		registry:  registry.New(),
		events:    make(chan playback.Event, 64),
	}
}

// Events returns the playback event channel.
func (m *Manager) Events() <-chan playback.Event {
	return m.events
}

// Registry exposes the session table for status reporting.
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

// PlayOutcome tells whether a track started immediately or was queued.
type PlayOutcome int

const (
	PlayStarted        PlayOutcome = iota // Track started immediately
	PlayQueued                            // Track appended to the queue
	PlayPlaylistQueued                    // Playlist entries queued
)

// PlayResult is returned by Play and PlaySelected.
type PlayResult struct {
	Outcome      PlayOutcome
	Track        track.Track // Track started or queued; first started entry for playlists
	Position     int         // 1-based queue position for PlayQueued
	PlaylistName string
	Queued       int // Playlist entries queued
	Rejected     int // Playlist entries rejected by filters
}

// Play resolves req.Args and starts it when the guild is idle, queueing it otherwise.
func (m *Manager) Play(ctx context.Context, req Request) (PlayResult, error) {
	player, err := m.joinForPlay(ctx, req)
	if err != nil {
		return PlayResult{}, err
	}

	res, err := m.resolver.Resolve(ctx, req.Args)
	if err != nil {
		return PlayResult{}, errors.Mark(errors.Wrapf(err, "failed to resolve %q", req.Args), ErrLoadFailed)
	}
	switch {
	case res.Status == track.LoadStatusLoadFailed:
		return PlayResult{}, errors.Mark(errors.Newf("load failed: %s", res.Message), ErrLoadFailed)
	case res.Status == track.LoadStatusNoMatches || len(res.Tracks) == 0:
		return PlayResult{}, ErrNoMatches
	case res.Status == track.LoadStatusPlaylistLoaded && resolve.WantsPlaylist(req.Args):
		return m.playPlaylist(ctx, req, player, res)
	}
	return m.playOrEnqueue(ctx, req, player, res.Tracks[0], filter.OriginQuery)
}

// Search returns the top search candidates for req.Args.
func (m *Manager) Search(ctx context.Context, req Request) ([]track.Track, error) {
	if err := checkVoice(req.Channel); err != nil {
		return nil, err
	}
	if !m.node.Available() {
		return nil, ErrNodeUnavailable
	}
	res, err := m.resolver.Search(ctx, req.Args, m.config.SearchResults)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to search %q", req.Args), ErrLoadFailed)
	}
	if res.Status == track.LoadStatusLoadFailed {
		return nil, errors.Mark(errors.Newf("search failed: %s", res.Message), ErrLoadFailed)
	}
	if len(res.Tracks) == 0 {
		return nil, ErrNoMatches
	}
	return res.Tracks, nil
}

// PlaySelected plays or queues a track picked from Search results.
func (m *Manager) PlaySelected(ctx context.Context, req Request, t track.Track) (PlayResult, error) {
	player, err := m.joinForPlay(ctx, req)
	if err != nil {
		return PlayResult{}, err
	}
	return m.playOrEnqueue(ctx, req, player, t, filter.OriginSearch)
}

func checkVoice(ch *VoiceChannel) error {
	if ch == nil {
		return ErrNotInVoice
	}
	if !ch.Voice {
		return ErrInvalidChannel
	}
	return nil
}

// joinForPlay validates the invoking member and connects to their channel
// when the guild has no voice connection yet.
func (m *Manager) joinForPlay(ctx context.Context, req Request) (Player, error) {
	if err := checkVoice(req.Channel); err != nil {
		return nil, err
	}
	if !m.node.Available() {
		return nil, ErrNodeUnavailable
	}
	player := m.node.Player(req.Guild)
	if player.IsConnected() {
		return player, nil
	}
	if err := player.Connect(ctx, req.Channel.ID); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to join %s", req.Channel.Name), ErrConnectFailed)
	}
	zlog.Info().Msgf("guild %s: joined %s", req.Guild, req.Channel.Name)
	return player, nil
}

// pending lists the current track followed by the queue, for admission checks.
func pending(status playback.Status, tx *registry.Tx) []track.Track {
	var out []track.Track
	if status.Track != nil {
		out = append(out, *status.Track)
	}
	if q := tx.Queue(); q != nil {
		out = append(out, q.List()...)
	}
	return out
}

func (m *Manager) admit(ctx context.Context, req Request, origin filter.Origin, pending []track.Track, t track.Track) filter.Result {
	if m.admission == nil {
		return filter.Accept()
	}
	return m.admission.Execute(ctx, filter.TrackRequest{
		Guild:       req.Guild,
		RequesterID: req.RequesterID,
		Origin:      origin,
		Pending:     pending,
	}, t)
}

// idleLocked reports whether a new track may start right away.
func idleLocked(player Player, tx *registry.Tx) bool {
	return player.Status().Track == nil && tx.Queue() == nil && !tx.Reconnecting()
}

func (m *Manager) playOrEnqueue(ctx context.Context, req Request, player Player, t track.Track, origin filter.Origin) (PlayResult, error) {
	var result PlayResult
	err := m.registry.Do(req.Guild, func(tx *registry.Tx) error {
		if r := m.admit(ctx, req, origin, pending(player.Status(), tx), t); !r.Accepted {
			return rejected(r.Code, t)
		}

		if idleLocked(player, tx) {
			if err := m.playLocked(ctx, tx, player, t); err != nil {
				return err
			}
			result = PlayResult{Outcome: PlayStarted, Track: t}
		} else {
			tx.Enqueue(t)
			result = PlayResult{Outcome: PlayQueued, Track: t, Position: tx.QueueLen()}
		}
		m.ensureMonitorLocked(tx, player)
		return nil
	})
	return result, err
}

func (m *Manager) playPlaylist(ctx context.Context, req Request, player Player, res track.LoadResult) (PlayResult, error) {
	result := PlayResult{Outcome: PlayPlaylistQueued, PlaylistName: res.PlaylistName}
	err := m.registry.Do(req.Guild, func(tx *registry.Tx) error {
		status := player.Status()
		idle := idleLocked(player, tx)
		accepted := make([]track.Track, 0, len(res.Tracks))
		for _, t := range res.Tracks {
			seen := append(pending(status, tx), accepted...)
			if r := m.admit(ctx, req, filter.OriginPlaylist, seen, t); !r.Accepted {
				result.Rejected++
				continue
			}
			accepted = append(accepted, t)
		}
		if len(accepted) == 0 {
			return rejected("playlist_rejected", res.Tracks[0])
		}

		result.Track = accepted[0]
		if idle {
			if err := m.playLocked(ctx, tx, player, accepted[0]); err != nil {
				return err
			}
			accepted = accepted[1:]
		}
		tx.Enqueue(accepted...)
		result.Queued = len(accepted)
		m.ensureMonitorLocked(tx, player)
		return nil
	})
	return result, err
}

// playLocked starts t and publishes the event. It must run inside registry.Do.
func (m *Manager) playLocked(ctx context.Context, tx *registry.Tx, player Player, t track.Track) error {
	if err := player.Play(ctx, t); err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to play %q", t.Title), ErrPlayFailed)
	}
	playback.Emit(m.events, playback.Event{Type: playback.EventTrackStarted, Guild: tx.Guild(), Track: &t})
	return nil
}

// ensureMonitorLocked starts the guild's monitor unless one is live or a
// reconnect is in progress.
func (m *Manager) ensureMonitorLocked(tx *registry.Tx, player Player) {
	if tx.Reconnecting() || !player.IsConnected() {
		return
	}
	playback.Start(tx, m.registry, player, playback.Config{
		PollInterval: m.config.PollInterval,
		Events:       m.events,
	})
}

// connectedPlayer returns the guild's player if it holds a voice connection.
func (m *Manager) connectedPlayer(g guild.ID) (Player, error) {
	if !m.node.Available() {
		return nil, ErrNodeUnavailable
	}
	player := m.node.Player(g)
	if !player.IsConnected() {
		return nil, ErrNotConnected
	}
	return player, nil
}

// playingPlayer is connectedPlayer that also requires a current track.
func (m *Manager) playingPlayer(g guild.ID) (Player, track.Track, error) {
	player, err := m.connectedPlayer(g)
	if err != nil {
		return nil, track.Track{}, err
	}
	current := player.Status().Track
	if current == nil {
		return nil, track.Track{}, ErrNothingPlaying
	}
	return player, *current, nil
}

// Pause pauses the current track.
func (m *Manager) Pause(ctx context.Context, g guild.ID) (track.Track, error) {
	player, current, err := m.playingPlayer(g)
	if err != nil {
		return track.Track{}, err
	}
	return current, errors.Wrap(player.Pause(ctx), "failed to pause")
}

// Resume resumes the current track.
func (m *Manager) Resume(ctx context.Context, g guild.ID) (track.Track, error) {
	player, current, err := m.playingPlayer(g)
	if err != nil {
		return track.Track{}, err
	}
	return current, errors.Wrap(player.Resume(ctx), "failed to resume")
}

// Seek moves the current track to position.
func (m *Manager) Seek(ctx context.Context, g guild.ID, position time.Duration) (track.Track, error) {
	player, current, err := m.playingPlayer(g)
	if err != nil {
		return track.Track{}, err
	}
	if !current.IsSeekable || current.IsStream {
		return current, ErrNotSeekable
	}
	if position < 0 || (current.Duration > 0 && position > current.Duration) {
		return current, ErrInvalidPosition
	}
	return current, errors.Wrap(player.Seek(ctx, position), "failed to seek")
}

// SkipResult is returned by Skip.
type SkipResult struct {
	Skipped       *track.Track // Track that was playing, if any
	Next          track.Track
	RepeatCleared bool
}

// Skip plays the next queued track and turns repeat off.
func (m *Manager) Skip(ctx context.Context, g guild.ID) (SkipResult, error) {
	player, err := m.connectedPlayer(g)
	if err != nil {
		return SkipResult{}, err
	}

	var result SkipResult
	err = m.registry.Do(g, func(tx *registry.Tx) error {
		next, err := tx.Dequeue()
		if err != nil {
			return ErrEmptyQueue
		}
		result.Skipped = player.Status().Track
		result.Next = next
		// Skip always cancels repeat, even when the play below fails.
		result.RepeatCleared = tx.ClearRepeat()

		if result.Skipped != nil {
			playback.Emit(m.events, playback.Event{Type: playback.EventTrackSkipped, Guild: g, Track: result.Skipped})
		}
		if err := m.playLocked(ctx, tx, player, next); err != nil {
			return err
		}
		m.ensureMonitorLocked(tx, player)
		return nil
	})
	return result, err
}

// Stop clears the queue and repeat state, stops the monitor, and leaves the
// voice channel.
func (m *Manager) Stop(ctx context.Context, g guild.ID) error {
	// A tick blocked in a node call holds the guild lock until the call
	// returns; cancelling it first releases the lock.
	if h := m.registry.Monitor(g); h != nil {
		h.Stop()
	}

	var monitor registry.Handle
	if err := m.registry.Do(g, func(tx *registry.Tx) error {
		tx.ClearQueue()
		tx.ClearRepeat()
		monitor = tx.Monitor()
		if monitor != nil {
			monitor.Stop()
		}
		return nil
	}); err != nil {
		return err
	}

	player, err := m.connectedPlayer(g)
	if err != nil {
		m.awaitMonitor(ctx, g, monitor)
		return err
	}
	if err := player.Stop(ctx); err != nil {
		zlog.Warn().Err(err).Msgf("guild %s: failed to stop player", g)
	}
	disconnectErr := player.Disconnect(ctx)

	m.awaitMonitor(ctx, g, monitor)
	playback.Emit(m.events, playback.Event{Type: playback.EventStopped, Guild: g})

	return errors.Wrap(disconnectErr, "failed to disconnect")
}

func (m *Manager) awaitMonitor(ctx context.Context, g guild.ID, h registry.Handle) {
	if h == nil {
		return
	}
	if err := waitDone(ctx, h, m.config.StopTimeout); err != nil {
		zlog.Warn().Err(err).Msgf("guild %s: monitor still running after stop", g)
	}
}

// Volume sets the player volume, clamped to 0..100, and returns the applied value.
func (m *Manager) Volume(ctx context.Context, g guild.ID, percent int) (int, error) {
	player, err := m.connectedPlayer(g)
	if err != nil {
		return 0, err
	}
	percent = max(0, min(100, percent))
	return percent, errors.Wrap(player.SetVolume(ctx, percent), "failed to set volume")
}

// RepeatResult is returned by Repeat.
type RepeatResult struct {
	Outcome repeat.Outcome
	Track   track.Track // New repeat target, or the track repeat was disabled for
}

// Repeat toggles repeat for the current track.
func (m *Manager) Repeat(ctx context.Context, g guild.ID) (RepeatResult, error) {
	_, current, err := m.playingPlayer(g)
	if err != nil {
		return RepeatResult{}, err
	}

	var result RepeatResult
	err = m.registry.Do(g, func(tx *registry.Tx) error {
		next, outcome := tx.Repeat().Toggle(current)
		tx.SetRepeat(next)
		result = RepeatResult{Outcome: outcome, Track: current}
		return nil
	})
	return result, err
}

// QueueInfo is a display copy of a guild's session.
type QueueInfo struct {
	Current   *track.Track
	Position  time.Duration
	Paused    bool
	Repeat    repeat.State
	Tracks    []track.Track
	Remaining time.Duration // combined length of Tracks
}

// Queue returns the current track and the pending tracks.
func (m *Manager) Queue(g guild.ID) (QueueInfo, error) {
	var info QueueInfo
	if m.node.Available() {
		status := m.node.Player(g).Status()
		info.Current, info.Position, info.Paused = status.Track, status.Position, status.Paused
	}
	err := m.registry.Do(g, func(tx *registry.Tx) error {
		info.Repeat = tx.Repeat()
		if q := tx.Queue(); q != nil {
			info.Tracks = q.List()
			info.Remaining = q.TotalDuration()
		}
		return nil
	})
	if err != nil {
		return info, err
	}
	if info.Current == nil && len(info.Tracks) == 0 {
		return info, ErrEmptyQueue
	}
	return info, nil
}

// Shuffle randomizes the queue and returns its length.
func (m *Manager) Shuffle(g guild.ID) (int, error) {
	var n int
	err := m.registry.Do(g, func(tx *registry.Tx) error {
		if err := tx.Shuffle(nil); err != nil {
			return ErrEmptyQueue
		}
		n = tx.QueueLen()
		return nil
	})
	return n, err
}

// TrackEnded wakes the guild's monitor so the next track starts without
// waiting for the poll interval.
// It does not take the guild lock, so the node's read loop never waits on a
// tick.
func (m *Manager) TrackEnded(g guild.ID) {
	if h := m.registry.Monitor(g); h != nil {
		h.Wake()
	}
}

// GuildStatus combines the registry view with the player state.
type GuildStatus struct {
	registry.View
	ChannelID string
	Connected bool
	Player    playback.Status
}

// Status returns the state of every guild holding session state.
func (m *Manager) Status() []GuildStatus {
	views := m.registry.Snapshot()
	out := make([]GuildStatus, 0, len(views))
	for _, v := range views {
		s := GuildStatus{View: v}
		if m.node.Available() {
			p := m.node.Player(v.Guild)
			s.ChannelID = p.ChannelID()
			s.Connected = p.IsConnected()
			s.Player = p.Status()
		}
		out = append(out, s)
	}
	return out
}

// Shutdown stops every monitor, waits for them to exit and leaves every voice
// channel the sessions still hold.
func (m *Manager) Shutdown(ctx context.Context) error {
	guilds := m.registry.Guilds()
	handles := m.registry.Close()
	for _, h := range handles {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "monitors did not exit")
		}
	}

	var errs error
	if m.node.Available() {
		for _, g := range guilds {
			player := m.node.Player(g)
			if !player.IsConnected() {
				continue
			}
			if err := player.Disconnect(ctx); err != nil {
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "guild %s", g))
			}
		}
	}
	zlog.Info().Msgf("session manager stopped (%d monitors, %d guilds)", len(handles), len(guilds))
	return errs
}

// waitDone blocks until h exits, ctx ends, or timeout elapses.
func waitDone(ctx context.Context, h registry.Handle, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.Done():
		return nil
	case <-timer.C:
		return ErrMonitorExitTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
