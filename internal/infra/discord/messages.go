package discord

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/vcbox/internal/app/session"
	"github.com/osa030/vcbox/internal/infra/config"
)

// userMessage returns the reply text for a failed command.
func userMessage(msgs config.MessagesConfig, err error) string {
	var rejected *session.RejectionError
	switch {
	case errors.Is(err, session.ErrNotInVoice):
		return msgs.NotInVoice
	case errors.Is(err, session.ErrInvalidChannel):
		return msgs.InvalidChannel
	case errors.Is(err, session.ErrNotConnected):
		return msgs.NotConnected
	case errors.Is(err, session.ErrNodeUnavailable):
		return msgs.NodeUnavailable
	case errors.Is(err, session.ErrNothingPlaying):
		return msgs.NothingPlaying
	case errors.Is(err, session.ErrEmptyQueue):
		return msgs.EmptyQueue
	case errors.Is(err, session.ErrNoMatches):
		return msgs.NoMatches
	case errors.Is(err, session.ErrLoadFailed), errors.Is(err, session.ErrPlayFailed):
		return msgs.LoadFailed
	case errors.Is(err, session.ErrAlreadyInChannel):
		return msgs.AlreadyInChannel
	case errors.Is(err, session.ErrConnectFailed):
		return msgs.ConnectFailed
	case errors.Is(err, session.ErrReconnecting), errors.Is(err, session.ErrMonitorExitTimeout):
		return msgs.Reconnecting
	case errors.Is(err, session.ErrNotSeekable):
		return msgs.NotSeekable
	case errors.Is(err, session.ErrInvalidPosition), errors.Is(err, errBadArgument):
		return msgs.BadArgument
	case errors.As(err, &rejected):
		return msgs.TrackRejected + " (" + rejected.Code + ")"
	default:
		return msgs.DefaultError
	}
}
