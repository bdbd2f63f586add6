package session

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vcbox/internal/app/playback"
	"github.com/osa030/vcbox/internal/app/session/registry"
	"github.com/osa030/vcbox/internal/domain/track"
)

// JoinResult is returned by Join.
type JoinResult struct {
	Channel  VoiceChannel
	Restored *track.Track // Track resumed in the new channel, if any
	Position time.Duration
}

// Join moves the bot to req.Channel. A track that was playing is replayed in
// the new channel and seeked back to where it was.
//
// The reconnecting flag is held for the whole move so the old monitor exits
// and no command starts a track underneath the rejoin. It is cleared on every
// return path.
func (m *Manager) Join(ctx context.Context, req Request) (JoinResult, error) {
	if err := checkVoice(req.Channel); err != nil {
		return JoinResult{}, err
	}
	if !m.node.Available() {
		return JoinResult{}, ErrNodeUnavailable
	}
	player := m.node.Player(req.Guild)
	if player.IsConnected() && player.ChannelID() == req.Channel.ID {
		return JoinResult{}, ErrAlreadyInChannel
	}
	log := zlog.With().Str("guild", req.Guild.String()).Logger()

	var (
		old      registry.Handle
		snapshot playback.Status
	)
	err := m.registry.Do(req.Guild, func(tx *registry.Tx) error {
		if tx.Reconnecting() {
			return ErrReconnecting
		}
		tx.SetReconnecting(true)
		old = tx.Monitor()
		if old != nil {
			old.Wake()
		}
		snapshot = player.Status()
		return nil
	})
	if err != nil {
		return JoinResult{}, err
	}
	defer m.clearReconnecting(req, player)

	result := JoinResult{Channel: *req.Channel}

	if player.IsConnected() {
		if err := player.Disconnect(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to leave the previous channel")
		}
	}
	connectErr := player.Connect(ctx, req.Channel.ID)

	// The old monitor must be gone before the flag drops, whatever the
	// outcome of the connect.
	if old != nil {
		if err := waitDone(ctx, old, m.config.ReconnectTimeout); err != nil {
			return result, errors.Wrap(err, "rejoin aborted")
		}
	}
	if connectErr != nil {
		return result, errors.Mark(errors.Wrapf(connectErr, "failed to join %s", req.Channel.Name), ErrConnectFailed)
	}
	log.Info().Msgf("joined %s", req.Channel.Name)

	if snapshot.Track == nil {
		return result, nil
	}
	t := *snapshot.Track
	if err := m.restore(ctx, player, t, snapshot.Position); err != nil {
		// The move itself succeeded; the interrupted track is lost.
		log.Warn().Err(err).Msgf("failed to resume %q", t.Title)
		return result, nil
	}
	result.Restored = &t
	result.Position = snapshot.Position
	playback.Emit(m.events, playback.Event{Type: playback.EventTrackStarted, Guild: req.Guild, Track: &t})
	return result, nil
}

// restore replays t and seeks to position once the node has started it.
func (m *Manager) restore(ctx context.Context, player Player, t track.Track, position time.Duration) error {
	if err := player.Play(ctx, t); err != nil {
		return errors.Mark(errors.Wrap(err, "replay failed"), ErrPlayFailed)
	}
	if !t.IsSeekable || t.IsStream || position <= 0 {
		return nil
	}

	timer := time.NewTimer(m.config.SeekDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return errors.Wrap(player.Seek(ctx, position), "seek failed")
}

// clearReconnecting drops the flag and restarts the monitor when the bot is
// still connected.
func (m *Manager) clearReconnecting(req Request, player Player) {
	err := m.registry.Do(req.Guild, func(tx *registry.Tx) error {
		tx.SetReconnecting(false)
		m.ensureMonitorLocked(tx, player)
		return nil
	})
	if err != nil && !errors.Is(err, registry.ErrClosed) {
		zlog.Warn().Err(err).Msgf("guild %s: failed to clear reconnecting", req.Guild)
	}
}
