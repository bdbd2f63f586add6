package discord

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Command is a chat command understood by the bot.
type Command int

const (
	CommandUnknown Command = iota
	CommandPlay
	CommandSearch
	CommandPause
	CommandResume
	CommandSeek
	CommandSkip
	CommandStop
	CommandJoin
	CommandVolume
	CommandRepeat
	CommandQueue
	CommandShuffle
	CommandPing
)

var commandNames = map[Command]string{
	CommandPlay:    "play",
	CommandSearch:  "search",
	CommandPause:   "pause",
	CommandResume:  "resume",
	CommandSeek:    "seek",
	CommandSkip:    "skip",
	CommandStop:    "stop",
	CommandJoin:    "join",
	CommandVolume:  "volume",
	CommandRepeat:  "repeat",
	CommandQueue:   "queue",
	CommandShuffle: "shuffle",
	CommandPing:    "ping",
}

// aliases maps every accepted name to its command.
var aliases = map[string]Command{
	"play":    CommandPlay,
	"p":       CommandPlay,
	"search":  CommandSearch,
	"pause":   CommandPause,
	"resume":  CommandResume,
	"seek":    CommandSeek,
	"skip":    CommandSkip,
	"s":       CommandSkip,
	"stop":    CommandStop,
	"leave":   CommandStop,
	"quit":    CommandStop,
	"exit":    CommandStop,
	"join":    CommandJoin,
	"j":       CommandJoin,
	"volume":  CommandVolume,
	"vol":     CommandVolume,
	"repeat":  CommandRepeat,
	"r":       CommandRepeat,
	"queue":   CommandQueue,
	"info":    CommandQueue,
	"q":       CommandQueue,
	"i":       CommandQueue,
	"shuffle": CommandShuffle,
	"random":  CommandShuffle,
	"rng":     CommandShuffle,
	"ping":    CommandPing,
}

// String returns the canonical command name.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// NeedsArgs reports whether the command requires an argument.
func (c Command) NeedsArgs() bool {
	switch c {
	case CommandPlay, CommandSearch, CommandSeek, CommandVolume:
		return true
	default:
		return false
	}
}

// ParseCommand splits a message into a command and its argument string. ok is
// false when content does not start with prefix followed by a known name.
func ParseCommand(prefix, content string) (cmd Command, args string, ok bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return CommandUnknown, "", false
	}
	rest := strings.TrimSpace(content[len(prefix):])
	if rest == "" {
		return CommandUnknown, "", false
	}

	name, args, _ := strings.Cut(rest, " ")
	cmd, ok = aliases[strings.ToLower(name)]
	if !ok {
		return CommandUnknown, "", false
	}
	return cmd, strings.TrimSpace(args), true
}

var errBadArgument = errors.New("bad argument")

// parseSeconds reads a seek target given in whole seconds.
func parseSeconds(args string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || n < 0 {
		return 0, errors.Mark(errors.Newf("invalid seconds %q", args), errBadArgument)
	}
	return time.Duration(n) * time.Second, nil
}

// parseVolume reads a volume percentage. Clamping is left to the session.
func parseVolume(args string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(args), "%"))
	if err != nil {
		return 0, errors.Mark(errors.Newf("invalid volume %q", args), errBadArgument)
	}
	return n, nil
}
