package discord

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/vcbox/internal/app/session"
	"github.com/osa030/vcbox/internal/domain/track"
	"github.com/osa030/vcbox/internal/infra/config"
)

func TestUserMessage(t *testing.T) {
	var msgs config.MessagesConfig
	require.NoError(t, defaults.Set(&msgs))

	rejection := errors.Mark(&session.RejectionError{Code: "queue_full", Track: track.Track{Title: "x"}}, session.ErrTrackRejected)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "not in voice", err: session.ErrNotInVoice, want: "Please enter a VC!"},
		{name: "invalid channel", err: session.ErrInvalidChannel, want: "Please enter a valid VC!"},
		{name: "not connected", err: session.ErrNotConnected, want: "Bot is not connected to a VC."},
		{name: "node unavailable", err: session.ErrNodeUnavailable, want: "Connection is not Established!"},
		{name: "nothing playing", err: session.ErrNothingPlaying, want: "No tracks are playing!"},
		{name: "empty queue", err: session.ErrEmptyQueue, want: "No more tracks in the queue."},
		{name: "wrapped", err: errors.Wrap(session.ErrNoMatches, "resolve"), want: msgs.NoMatches},
		{name: "play failed", err: errors.Mark(errors.New("boom"), session.ErrPlayFailed), want: msgs.LoadFailed},
		{name: "reconnecting", err: session.ErrReconnecting, want: msgs.Reconnecting},
		{name: "bad argument", err: errBadArgument, want: msgs.BadArgument},
		{name: "rejected", err: rejection, want: msgs.TrackRejected + " (queue_full)"},
		{name: "unknown", err: errors.New("boom"), want: "Something went wrong."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, userMessage(msgs, tt.err))
		})
	}
}
