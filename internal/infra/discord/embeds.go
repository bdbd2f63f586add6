package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/osa030/vcbox/internal/app/repeat"
	"github.com/osa030/vcbox/internal/app/session"
	"github.com/osa030/vcbox/internal/domain/track"
)

const (
	colorGreen     = 0x2ecc71
	colorBlue      = 0x3498db
	colorTurquoise = 0x1abc9c
	colorRed       = 0xe74c3c
	colorGold      = 0xf1c40f
)

// selectionEmojis are the reactions offered for search results.
var selectionEmojis = []string{"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣"}

func selectionIndex(emoji string) int {
	for i, e := range selectionEmojis {
		if e == emoji {
			return i
		}
	}
	return -1
}

// reply is a command response: plain content, an embed, or both.
type reply struct {
	Content string
	Embed   *discordgo.MessageEmbed
}

func text(format string, args ...any) reply {
	return reply{Content: fmt.Sprintf(format, args...)}
}

func embed(title string, color int, description string) reply {
	return reply{Embed: &discordgo.MessageEmbed{Title: title, Color: color, Description: description}}
}

func describeTrack(t track.Track) string {
	return fmt.Sprintf("Now Playing: %s\nAuthor: %s\nURL: %s", t.Title, t.Author, t.URI)
}

func playReply(res session.PlayResult, channel string) reply {
	switch res.Outcome {
	case session.PlayStarted:
		return embed(fmt.Sprintf("Successfully joined channel %s and playing music", channel), colorGreen, describeTrack(res.Track))
	case session.PlayPlaylistQueued:
		title := fmt.Sprintf("Playlist %s has been added to the queue.", res.PlaylistName)
		desc := fmt.Sprintf("%d tracks queued.", res.Queued)
		if res.Rejected > 0 {
			desc += fmt.Sprintf(" %d skipped by filters.", res.Rejected)
		}
		return embed(title, colorGreen, desc)
	default:
		return text("Added to queue: %s (#%d)", res.Track.Title, res.Position)
	}
}

func searchEmbed(tracks []track.Track) *discordgo.MessageEmbed {
	var b strings.Builder
	for i, t := range tracks {
		if i >= len(selectionEmojis) {
			break
		}
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s | %s", selectionEmojis[i], t.String())
	}
	return &discordgo.MessageEmbed{
		Title:       "Which one do you want me to play?",
		Description: b.String(),
		Color:       colorBlue,
	}
}

func skipReply(res session.SkipResult) reply {
	if res.RepeatCleared {
		return text("Now playing: %s\nDisabled repeat mode.", res.Next.Title)
	}
	return text("Now playing: %s", res.Next.Title)
}

func repeatReply(res session.RepeatResult) reply {
	if res.Outcome == repeat.OutcomeDisabled {
		return text("Disabled repeat mode.")
	}
	return text("Enabled repeat mode for %s", res.Track.Title)
}

func queueEmbed(info session.QueueInfo) *discordgo.MessageEmbed {
	var b strings.Builder
	if info.Current != nil {
		state := "Playing"
		if info.Paused {
			state = "Paused"
		}
		fmt.Fprintf(&b, "%s: %s `[%s/%s]`", state, info.Current.Title,
			track.FormatDuration(info.Position), track.FormatDuration(info.Current.Duration))
		if target, ok := info.Repeat.Target(); ok {
			fmt.Fprintf(&b, "\nRepeating: %s", target.Title)
		}
	}
	// Alternate rows are bold for readability.
	for i, t := range info.Tracks {
		line := t.String()
		if i%2 == 1 {
			line = "**" + line + "**"
		}
		b.WriteString("\n")
		b.WriteString(line)
	}

	e := &discordgo.MessageEmbed{
		Title:       "Next Songs",
		Description: b.String(),
		Color:       colorTurquoise,
	}
	if len(info.Tracks) > 0 {
		e.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%d tracks, %s total", len(info.Tracks), track.FormatDuration(info.Remaining)),
		}
	}
	return e
}

func nowPlayingEmbed(t track.Track, repeated bool) *discordgo.MessageEmbed {
	title := "Now Playing"
	if repeated {
		title = "Repeating"
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("[%s](%s)\nAuthor: %s", t.Title, t.URI, t.Author),
		Color:       colorGold,
		Footer:      &discordgo.MessageEmbedFooter{Text: track.FormatDuration(t.Duration)},
	}
}

func pingReply(latency time.Duration) reply {
	return text("Pong! %dms", latency.Milliseconds())
}
