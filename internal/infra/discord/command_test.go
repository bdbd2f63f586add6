package discord

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		content  string
		wantCmd  Command
		wantArgs string
		wantOK   bool
	}{
		{name: "play with query", prefix: "!", content: "!play never gonna give you up", wantCmd: CommandPlay, wantArgs: "never gonna give you up", wantOK: true},
		{name: "alias", prefix: "!", content: "!p https://youtu.be/dQw4w9WgXcQ", wantCmd: CommandPlay, wantArgs: "https://youtu.be/dQw4w9WgXcQ", wantOK: true},
		{name: "case insensitive", prefix: "!", content: "!SKIP", wantCmd: CommandSkip, wantOK: true},
		{name: "stop alias leave", prefix: "!", content: "!leave", wantCmd: CommandStop, wantOK: true},
		{name: "stop alias exit", prefix: "!", content: "!exit", wantCmd: CommandStop, wantOK: true},
		{name: "queue alias", prefix: "!", content: "!i", wantCmd: CommandQueue, wantOK: true},
		{name: "shuffle alias", prefix: "!", content: "!rng", wantCmd: CommandShuffle, wantOK: true},
		{name: "space after prefix", prefix: "!", content: "! vol 40", wantCmd: CommandVolume, wantArgs: "40", wantOK: true},
		{name: "multi char prefix", prefix: "m!", content: "m!seek 45", wantCmd: CommandSeek, wantArgs: "45", wantOK: true},
		{name: "extra spaces", prefix: "!", content: "!search   lofi  ", wantCmd: CommandSearch, wantArgs: "lofi", wantOK: true},
		{name: "no prefix", prefix: "!", content: "play song"},
		{name: "prefix only", prefix: "!", content: "!"},
		{name: "unknown command", prefix: "!", content: "!dance"},
		{name: "empty prefix", prefix: "", content: "play"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, ok := ParseCommand(tt.prefix, tt.content)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantCmd, cmd)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestAliasesCoverEveryCommand(t *testing.T) {
	for cmd, name := range commandNames {
		got, ok := aliases[name]
		require.True(t, ok, name)
		assert.Equal(t, cmd, got)
	}
	assert.Equal(t, "unknown", CommandUnknown.String())
}

func TestParseSeconds(t *testing.T) {
	d, err := parseSeconds("45")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, d)

	for _, in := range []string{"", "abc", "-1", "1.5"} {
		_, err := parseSeconds(in)
		assert.ErrorIs(t, err, errBadArgument, in)
	}
}

func TestParseVolume(t *testing.T) {
	for in, want := range map[string]int{"50": 50, "80%": 80, "150": 150, "-3": -3} {
		got, err := parseVolume(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := parseVolume("loud")
	assert.ErrorIs(t, err, errBadArgument)
}
