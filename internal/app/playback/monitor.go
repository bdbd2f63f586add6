package playback

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/osa030/vcbox/internal/app/session/registry"
	"github.com/osa030/vcbox/internal/domain/guild"
	"github.com/osa030/vcbox/internal/domain/track"
	"github.com/osa030/vcbox/internal/infra/logger"
)

// DefaultPollInterval is the fixed delay between monitor ticks.
const DefaultPollInterval = 500 * time.Millisecond

// DefaultPlayTimeout bounds a single play request issued from a tick.
const DefaultPlayTimeout = 10 * time.Second

// Player is the part of a guild's audio player the monitor drives.
type Player interface {
	IsConnected() bool
	Status() Status
	Play(ctx context.Context, t track.Track) error
}

// Config holds monitor configuration.
type Config struct {
	PollInterval time.Duration
	PlayTimeout  time.Duration
	Events       chan<- Event // optional, sends never block
}

// Monitor is the background task that notices when a guild's track has ended
// and starts the next one: the repeat target first, then the queue head.
//
// Monitor implements registry.Handle. It runs until the player disconnects,
// the guild enters a reconnect, or Stop is called, and on the way out removes
// its own handle from the registry before closing Done.
type Monitor struct {
	id       string
	guild    guild.ID
	registry *registry.Registry
	player   Player
	config   Config
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}

	failures atomic.Int64
	plays    atomic.Int64
}

// NewMonitor creates a monitor. It does nothing until Run is called.
func NewMonitor(g guild.ID, reg *registry.Registry, player Player, config Config) *Monitor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.PlayTimeout <= 0 {
		config.PlayTimeout = DefaultPlayTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	return &Monitor{
		id:       id,
		guild:    g,
		registry: reg,
		player:   player,
		config:   config,
		log:      logger.Guild(uint64(g)).With().Str("monitor", id[:8]).Logger(),
		ctx:      ctx,
		cancel:   cancel,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

var _ registry.Handle = (*Monitor)(nil)

// ID returns the monitor's unique handle ID.
func (m *Monitor) ID() string { return m.id }

// Done is closed once the monitor has exited and released its handle.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// Stop cancels the monitor. It exits at its next select without waiting for
// the poll interval.
func (m *Monitor) Stop() { m.cancel() }

// Wake requests an immediate tick, e.g. when the node reports a track end.
func (m *Monitor) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Failures returns the number of ticks that failed.
func (m *Monitor) Failures() int64 { return m.failures.Load() }

// Plays returns the number of play requests issued by the monitor.
func (m *Monitor) Plays() int64 { return m.plays.Load() }

// Run is the monitor loop. Call it in its own goroutine.
func (m *Monitor) Run() {
	defer close(m.done)
	defer m.exit()

	m.log.Debug().Msg("monitor started")
	Emit(m.config.Events, Event{Type: EventMonitorStarted, Guild: m.guild, MonitorID: m.id})

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		case <-m.wake:
		}
		if m.ctx.Err() != nil {
			return
		}

		exit, err := m.tick()
		if err != nil {
			m.failures.Add(1)
			m.log.Warn().Err(err).Msg("monitor tick failed")
		}
		if exit {
			return
		}
	}
}

// tick evaluates one step under the guild lock and reports whether the
// monitor should exit.
func (m *Monitor) tick() (exit bool, err error) {
	err = m.registry.Do(m.guild, func(tx *registry.Tx) error {
		if !m.player.IsConnected() || tx.Reconnecting() {
			exit = true
			return nil
		}
		if m.player.Status().Track != nil {
			return nil
		}

		if target, ok := tx.Repeat().Target(); ok {
			if err := m.play(target, EventTrackRepeated); err != nil {
				// A repeat target that cannot be played would fail every tick.
				if m.ctx.Err() == nil {
					tx.ClearRepeat()
				}
				return err
			}
			return nil
		}

		next, err := tx.Dequeue()
		if err != nil {
			// Idle: nothing queued.
			return nil
		}
		return m.play(next, EventTrackStarted)
	})
	if errors.Is(err, registry.ErrClosed) {
		return true, nil
	}
	return exit, err
}

func (m *Monitor) play(t track.Track, kind EventType) error {
	ctx, cancel := context.WithTimeout(m.ctx, m.config.PlayTimeout)
	defer cancel()

	m.plays.Add(1)
	if err := m.player.Play(ctx, t); err != nil {
		if m.ctx.Err() != nil {
			return nil
		}
		Emit(m.config.Events, Event{Type: EventTrackFailed, Guild: m.guild, Track: &t, MonitorID: m.id, Err: err})
		return errors.Wrapf(err, "failed to play %q", t.Title)
	}
	m.log.Debug().Msgf("%s: %s", kind, t.Title)
	Emit(m.config.Events, Event{Type: kind, Guild: m.guild, Track: &t, MonitorID: m.id})
	return nil
}

func (m *Monitor) exit() {
	m.cancel()
	err := m.registry.Do(m.guild, func(tx *registry.Tx) error {
		tx.RemoveMonitor(m)
		return nil
	})
	if err != nil && !errors.Is(err, registry.ErrClosed) {
		m.log.Warn().Err(err).Msg("failed to release monitor handle")
	}
	m.log.Debug().Msg("monitor exited")
	Emit(m.config.Events, Event{Type: EventMonitorExited, Guild: m.guild, MonitorID: m.id})
}

// Start installs a new monitor for tx's guild and runs it, unless one is
// already live. It must be called from inside registry.Do.
func Start(tx *registry.Tx, reg *registry.Registry, player Player, config Config) (registry.Handle, bool) {
	var m *Monitor
	h, started := tx.StartMonitor(func() registry.Handle {
		m = NewMonitor(tx.Guild(), reg, player, config)
		return m
	})
	if started {
		go m.Run()
	}
	return h, started
}
