// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Discord   DiscordConfig           `yaml:"discord"`
	Lavalink  LavalinkConfig          `yaml:"lavalink"`
	Playback  PlaybackConfig          `yaml:"playback"`
	Admin     AdminConfig             `yaml:"admin"`
	Filters   map[string]FilterConfig `yaml:"filters"`
	Messages  MessagesConfig          `yaml:"messages"`
	Spotify   SpotifyConfig           `yaml:"spotify"`
	RateLimit RateLimitConfig         `yaml:"ratelimit"`
	Log       LogConfig               `yaml:"log"`
}

// DiscordConfig represents the gateway connection and command settings.
type DiscordConfig struct {
	Token  string `yaml:"token" env:"DISCORD_TOKEN" validate:"required"`
	Prefix string `yaml:"prefix" env:"DISCORD_PREFIX" default:"!" validate:"required"`
	Status string `yaml:"status" default:"idle" validate:"oneof=online idle dnd invisible"`
}

// LavalinkConfig represents the audio node connection.
type LavalinkConfig struct {
	Host              string        `yaml:"host" env:"LAVALINK_HOST" default:"127.0.0.1" validate:"required"`
	Port              int           `yaml:"port" env:"LAVALINK_PORT" default:"2333" validate:"gt=0,lte=65535"`
	Password          string        `yaml:"password" env:"LAVALINK_PASSWORD" validate:"required"`
	Secure            bool          `yaml:"secure" env:"LAVALINK_SECURE"`
	ClientName        string        `yaml:"client_name" default:"vcbox"`
	ReconnectAttempts int           `yaml:"reconnect_attempts" default:"5" validate:"gte=0"`
	ResumeTimeout     time.Duration `yaml:"resume_timeout" default:"60s" validate:"gte=0"`
}

// PlaybackConfig represents per-guild session timing.
type PlaybackConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval" default:"500ms" validate:"gte=10ms"`
	ReconnectTimeout time.Duration `yaml:"reconnect_timeout" default:"5s" validate:"gt=0"`
	SeekDelay        time.Duration `yaml:"seek_delay" default:"500ms" validate:"gte=0"`
	StopTimeout      time.Duration `yaml:"stop_timeout" default:"2s" validate:"gt=0"`
	SearchResults    int           `yaml:"search_results" default:"5" validate:"gte=1,lte=5"`
	SearchTimeout    time.Duration `yaml:"search_timeout" default:"2m" validate:"gt=0"`
}

// AdminConfig represents the admin RPC endpoint.
type AdminConfig struct {
	Addr  string `yaml:"addr" default:":8080"`
	Token string `yaml:"token" env:"ADMIN_TOKEN" validate:"required"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	NotInVoice       string `yaml:"not_in_voice" default:"Please enter a VC!"`
	InvalidChannel   string `yaml:"invalid_channel" default:"Please enter a valid VC!"`
	NotConnected     string `yaml:"not_connected" default:"Bot is not connected to a VC."`
	NodeUnavailable  string `yaml:"node_unavailable" default:"Connection is not Established!"`
	NothingPlaying   string `yaml:"nothing_playing" default:"No tracks are playing!"`
	EmptyQueue       string `yaml:"empty_queue" default:"No more tracks in the queue."`
	NoMatches        string `yaml:"no_matches" default:"No results found."`
	LoadFailed       string `yaml:"load_failed" default:"Failed to load the track."`
	AlreadyInChannel string `yaml:"already_in_channel" default:"Already in the channel."`
	ConnectFailed    string `yaml:"connect_failed" default:"Failed to connect to the VC."`
	TrackRejected    string `yaml:"track_rejected" default:"That track cannot be queued."`
	Reconnecting     string `yaml:"reconnecting" default:"Still moving channels, try again in a moment."`
	NotSeekable      string `yaml:"not_seekable" default:"This track cannot be seeked."`
	BadArgument      string `yaml:"bad_argument" default:"Invalid argument."`
	SearchTimeout    string `yaml:"search_timeout" default:"No track was selected."`
	RateLimited      string `yaml:"rate_limited" default:"Slow down a little."`
	DefaultError     string `yaml:"default_error" default:"Something went wrong."`
}

// SpotifyConfig represents Spotify API configuration. Spotify links are only
// resolved when both credentials are set.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" env:"SPOTIFY_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"SPOTIFY_CLIENT_SECRET" validate:"required_with=ClientID"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// Enabled reports whether Spotify credentials are configured.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// RateLimitConfig limits command invocations per guild.
type RateLimitConfig struct {
	CommandsPerSecond float64 `yaml:"commands_per_second" default:"2" validate:"gt=0"`
	Burst             int     `yaml:"burst" default:"5" validate:"gte=1"`
}

// LogConfig represents logger settings.
type LogConfig struct {
	Output string `yaml:"output" default:"stdout" validate:"oneof=stdout stderr file"`
	Level  string `yaml:"level" env:"LOG_LEVEL" default:"info"`
	File   string `yaml:"file" validate:"required_if=Output file"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes, applying environment
// overrides, defaults and validation in that order.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to read environment overrides")
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// EnabledFilters returns the settings of every enabled filter keyed by name.
func (c *Config) EnabledFilters() map[string]map[string]any {
	out := make(map[string]map[string]any)
	for name, f := range c.Filters {
		if f.Enabled {
			out[name] = f.Settings
		}
	}
	return out
}
