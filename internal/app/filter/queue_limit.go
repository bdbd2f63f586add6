package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/vcbox/internal/domain/track"
)

// QueueLimitConfig represents the configuration for QueueLimitFilter.
type QueueLimitConfig struct {
	MaxTracks int `mapstructure:"max_tracks" default:"100" validate:"gte=1"`
}

// QueueLimitFilter caps the number of pending tracks per guild.
type QueueLimitFilter struct {
	maxTracks int
}

func (f *QueueLimitFilter) Name() string {
	return "queue_limit"
}

func (f *QueueLimitFilter) Description() string {
	return "Rejects requests once a guild has max_tracks tracks pending"
}

func (f *QueueLimitFilter) ReturnCodes() []string {
	return []string{"queue_full"}
}

func (f *QueueLimitFilter) ValidateConfig(settings map[string]any) error {
	var config QueueLimitConfig
	if err := mapstructure.WeakDecode(settings, &config); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	f.maxTracks = config.MaxTracks
	return nil
}

func (f *QueueLimitFilter) AppliesTo(origin Origin) bool {
	return true
}

func (f *QueueLimitFilter) Check(ctx context.Context, req TrackRequest, t track.Track) Result {
	if f.maxTracks > 0 && len(req.Pending) >= f.maxTracks {
		return Reject("queue_full")
	}
	return Accept()
}

func init() {
	Register("queue_limit", func() Filter {
		return &QueueLimitFilter{}
	})
}
