// Package discord binds the session manager to a Discord bot account.
package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vcbox/internal/app/notification"
	"github.com/osa030/vcbox/internal/app/playback"
	"github.com/osa030/vcbox/internal/app/session"
	"github.com/osa030/vcbox/internal/domain/guild"
	"github.com/osa030/vcbox/internal/infra/config"
)

const commandTimeout = 30 * time.Second

// Config configures the bot.
type Config struct {
	Token             string
	Prefix            string
	Status            string
	SearchTimeout     time.Duration
	CommandsPerSecond float64
	Burst             int
	Messages          config.MessagesConfig
}

// VoiceSink receives the bot's own voice events.
type VoiceSink interface {
	VoiceStateUpdate(g guild.ID, channelID, sessionID string)
	VoiceServerUpdate(g guild.ID, token, endpoint string)
}

// Bot is a prefix-command Discord bot driving a session manager.
type Bot struct {
	config  Config
	session *discordgo.Session
	limiter *guildLimiter

	mu       sync.RWMutex
	manager  *session.Manager
	sink     VoiceSink
	channels map[guild.ID]string // text channel of the last command per guild

	searchMu sync.Mutex
	searches map[string]*pendingSearch // keyed by prompt message ID
}

type pendingSearch struct {
	userID string
	count  int
	picks  chan int
}

// New creates a bot. Handlers ignore messages until Bind is called.
func New(cfg Config) (*Bot, error) {
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create discord session")
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent
	discordgo.Logger = logDiscord

	b := &Bot{
		config:   cfg,
		session:  s,
		limiter:  newGuildLimiter(cfg.CommandsPerSecond, cfg.Burst),
		channels: make(map[guild.ID]string),
		searches: make(map[string]*pendingSearch),
	}
	s.AddHandler(b.onReady)
	s.AddHandler(b.onMessageCreate)
	s.AddHandler(b.onReactionAdd)
	s.AddHandler(b.onVoiceStateUpdate)
	s.AddHandler(b.onVoiceServerUpdate)
	return b, nil
}

// logDiscord routes discordgo's internal logging into zerolog.
func logDiscord(level, _ int, format string, a ...interface{}) {
	msg := fmt.Sprintf(format, a...)
	switch level {
	case discordgo.LogError:
		zlog.Error().Str("component", "discordgo").Msg(msg)
	case discordgo.LogWarning:
		zlog.Warn().Str("component", "discordgo").Msg(msg)
	case discordgo.LogInformational:
		zlog.Info().Str("component", "discordgo").Msg(msg)
	default:
		zlog.Debug().Str("component", "discordgo").Msg(msg)
	}
}

// Bind attaches the session manager and the voice event sink.
func (b *Bot) Bind(manager *session.Manager, sink VoiceSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.manager = manager
	b.sink = sink
}

func (b *Bot) bound() (*session.Manager, VoiceSink) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.manager, b.sink
}

// Open connects to the gateway.
func (b *Bot) Open() error {
	return errors.Wrap(b.session.Open(), "failed to open discord session")
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	return b.session.Close()
}

// UserID returns the bot's user ID. It is set once Open returns.
func (b *Bot) UserID() string {
	if b.session.State == nil || b.session.State.User == nil {
		return ""
	}
	return b.session.State.User.ID
}

// JoinVoice asks the gateway to move the bot into channelID.
func (b *Bot) JoinVoice(guildID, channelID string) error {
	return b.session.ChannelVoiceJoinManual(guildID, channelID, false, true)
}

// LeaveVoice asks the gateway to remove the bot from voice.
func (b *Bot) LeaveVoice(guildID string) error {
	return b.session.ChannelVoiceJoinManual(guildID, "", false, true)
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	zlog.Info().Msgf("logged in as %s (%d guilds)", r.User.Username, len(r.Guilds))
	if err := s.UpdateStatusComplex(discordgo.UpdateStatusData{Status: b.config.Status}); err != nil {
		zlog.Warn().Err(err).Msg("failed to set presence")
	}
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if s.State.User == nil || v.UserID != s.State.User.ID {
		return
	}
	_, sink := b.bound()
	g, err := guild.ParseID(v.GuildID)
	if sink == nil || err != nil {
		return
	}
	sink.VoiceStateUpdate(g, v.ChannelID, v.SessionID)
}

func (b *Bot) onVoiceServerUpdate(_ *discordgo.Session, v *discordgo.VoiceServerUpdate) {
	_, sink := b.bound()
	g, err := guild.ParseID(v.GuildID)
	if sink == nil || err != nil {
		return
	}
	sink.VoiceServerUpdate(g, v.Token, v.Endpoint)
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	cmd, args, ok := ParseCommand(b.config.Prefix, m.Content)
	if !ok {
		return
	}
	manager, _ := b.bound()
	g, err := guild.ParseID(m.GuildID)
	if manager == nil || err != nil {
		return
	}
	if !b.limiter.Allow(g) {
		b.send(m.ChannelID, text("%s", b.config.Messages.RateLimited))
		return
	}

	b.mu.Lock()
	b.channels[g] = m.ChannelID
	b.mu.Unlock()

	req := session.Request{
		Guild:       g,
		RequesterID: m.Author.ID,
		Channel:     b.memberVoice(m.GuildID, m.Author.ID),
		Args:        args,
	}
	log := zlog.With().Str("guild", m.GuildID).Str("command", cmd.String()).Logger()
	log.Debug().Msgf("%s: %q", m.Author.Username, args)

	timeout := commandTimeout
	if cmd == CommandSearch {
		timeout += b.config.SearchTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var r reply
	if cmd == CommandSearch {
		r, err = b.search(ctx, manager, req, m.ChannelID)
	} else {
		r, err = execute(ctx, manager, cmd, req, s.HeartbeatLatency)
	}
	if err != nil {
		log.Info().Err(err).Msg("command failed")
		r = text("%s", userMessage(b.config.Messages, err))
	}
	b.send(m.ChannelID, r)
}

// memberVoice returns the voice channel the member is in, or nil.
func (b *Bot) memberVoice(guildID, userID string) *session.VoiceChannel {
	vs, err := b.session.State.VoiceState(guildID, userID)
	if err != nil || vs.ChannelID == "" {
		return nil
	}
	ch, err := b.session.State.Channel(vs.ChannelID)
	if err != nil {
		if ch, err = b.session.Channel(vs.ChannelID); err != nil {
			zlog.Warn().Err(err).Msgf("failed to look up channel %s", vs.ChannelID)
			return nil
		}
	}
	return &session.VoiceChannel{ID: ch.ID, Name: ch.Name, Voice: ch.Type == discordgo.ChannelTypeGuildVoice}
}

func (b *Bot) send(channelID string, r reply) {
	var err error
	switch {
	case r.Embed != nil:
		_, err = b.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Content: r.Content, Embeds: []*discordgo.MessageEmbed{r.Embed}})
	case r.Content != "":
		_, err = b.session.ChannelMessageSend(channelID, r.Content)
	default:
		return
	}
	if err != nil {
		zlog.Warn().Err(err).Msgf("failed to send to %s", channelID)
	}
}

// search posts the candidates and plays the one picked by reaction.
func (b *Bot) search(ctx context.Context, manager *session.Manager, req session.Request, channelID string) (reply, error) {
	if req.Args == "" {
		return reply{}, errBadArgument
	}
	tracks, err := manager.Search(ctx, req)
	if err != nil {
		return reply{}, err
	}
	if len(tracks) > len(selectionEmojis) {
		tracks = tracks[:len(selectionEmojis)]
	}

	prompt, err := b.session.ChannelMessageSendEmbed(channelID, searchEmbed(tracks))
	if err != nil {
		return reply{}, errors.Wrap(err, "failed to post search results")
	}
	pending := &pendingSearch{userID: req.RequesterID, count: len(tracks), picks: make(chan int, 1)}
	b.searchMu.Lock()
	b.searches[prompt.ID] = pending
	b.searchMu.Unlock()
	defer func() {
		b.searchMu.Lock()
		delete(b.searches, prompt.ID)
		b.searchMu.Unlock()
	}()

	for _, e := range selectionEmojis[:len(tracks)] {
		if err := b.session.MessageReactionAdd(channelID, prompt.ID, e); err != nil {
			zlog.Warn().Err(err).Msg("failed to add selection reaction")
		}
	}

	timer := time.NewTimer(b.config.SearchTimeout)
	defer timer.Stop()
	select {
	case i := <-pending.picks:
		res, err := manager.PlaySelected(ctx, req, tracks[i])
		if err != nil {
			return reply{}, err
		}
		return playReply(res, req.Channel.Name), nil
	case <-timer.C:
		return text("%s", b.config.Messages.SearchTimeout), nil
	case <-ctx.Done():
		return text("%s", b.config.Messages.SearchTimeout), nil
	}
}

func (b *Bot) onReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if s.State.User != nil && r.UserID == s.State.User.ID {
		return
	}
	b.searchMu.Lock()
	pending, ok := b.searches[r.MessageID]
	b.searchMu.Unlock()
	if !ok || r.UserID != pending.userID {
		return
	}
	i := selectionIndex(r.Emoji.Name)
	if i < 0 || i >= pending.count {
		return
	}
	select {
	case pending.picks <- i:
	default:
	}
}

// Announce posts monitor-driven playback changes to the guild's last command
// channel. Starts triggered by a command are already answered by its reply.
func (b *Bot) Announce(n *notification.Notification) error {
	e := n.Event
	if e.MonitorID == "" || e.Track == nil {
		return nil
	}
	b.mu.RLock()
	channelID, ok := b.channels[e.Guild]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	switch e.Type {
	case playback.EventTrackStarted, playback.EventTrackRepeated:
		b.send(channelID, reply{Embed: nowPlayingEmbed(*e.Track, e.Type == playback.EventTrackRepeated)})
	case playback.EventTrackFailed:
		b.send(channelID, text("Could not play %s, skipping.", e.Track.Title))
	}
	return nil
}
