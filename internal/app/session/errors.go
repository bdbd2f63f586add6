package session

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/vcbox/internal/domain/track"
)

// User-input errors. They are reported to the caller and leave the session untouched.
var (
	ErrNotInVoice       = errors.New("member is not in a voice channel")
	ErrInvalidChannel   = errors.New("channel is not a voice channel")
	ErrNotConnected     = errors.New("bot is not connected to a voice channel")
	ErrNothingPlaying   = errors.New("no track is playing")
	ErrEmptyQueue       = errors.New("queue is empty")
	ErrAlreadyInChannel = errors.New("already in the channel")
	ErrNotSeekable      = errors.New("track is not seekable")
	ErrInvalidPosition  = errors.New("position is outside the track")
	ErrReconnecting     = errors.New("a reconnect is already in progress")
)

// Collaborator errors. The core never retries them.
var (
	ErrNodeUnavailable = errors.New("audio node is unavailable")
	ErrNoMatches       = errors.New("no matches")
	ErrLoadFailed      = errors.New("track load failed")
	ErrPlayFailed      = errors.New("play request failed")
	ErrConnectFailed   = errors.New("failed to connect to the voice channel")
)

// Guard and admission errors.
var (
	ErrMonitorExitTimeout = errors.New("previous monitor did not exit in time")
	ErrTrackRejected      = errors.New("track rejected")
)

// RejectionError carries the admission filter code for a rejected track.
// It matches ErrTrackRejected under errors.Is.
type RejectionError struct {
	Code  string
	Track track.Track
}

func (e *RejectionError) Error() string {
	return "track rejected: " + e.Code
}

func rejected(code string, t track.Track) error {
	return errors.Mark(&RejectionError{Code: code, Track: t}, ErrTrackRejected)
}
