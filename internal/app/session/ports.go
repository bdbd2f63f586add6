package session

import (
	"context"
	"time"

	"github.com/osa030/vcbox/internal/app/filter"
	"github.com/osa030/vcbox/internal/app/playback"
	"github.com/osa030/vcbox/internal/domain/guild"
	"github.com/osa030/vcbox/internal/domain/track"
)

// Node is the audio node as seen by the session core.
type Node interface {
	// Available reports whether the node connection is established.
	Available() bool
	// Player returns the guild's player, creating it on first use.
	Player(g guild.ID) Player
}

// Player controls one guild's playback on the node and its voice connection.
type Player interface {
	playback.Player
	ChannelID() string
	Connect(ctx context.Context, channelID string) error
	Disconnect(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	SetVolume(ctx context.Context, percent int) error
	Stop(ctx context.Context) error
}

// Resolver turns play and search arguments into tracks.
type Resolver interface {
	Resolve(ctx context.Context, query string) (track.LoadResult, error)
	Search(ctx context.Context, query string, limit int) (track.LoadResult, error)
}

// Admission decides whether a track may be played or queued.
type Admission interface {
	Execute(ctx context.Context, req filter.TrackRequest, t track.Track) filter.Result
}

// VoiceChannel describes the channel a command refers to.
type VoiceChannel struct {
	ID    string
	Name  string
	Voice bool // false for text, category and other channel types
}

// Request is a command invocation delivered by the chat gateway.
type Request struct {
	Guild       guild.ID
	RequesterID string
	Channel     *VoiceChannel // invoking member's voice channel, or the join target
	Args        string
}
