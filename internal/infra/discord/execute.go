package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/osa030/vcbox/internal/app/session"
)

// execute runs every command except search against the manager.
func execute(ctx context.Context, m *session.Manager, cmd Command, req session.Request, latency func() time.Duration) (reply, error) {
	if cmd.NeedsArgs() && req.Args == "" {
		return reply{}, errBadArgument
	}

	switch cmd {
	case CommandPlay:
		res, err := m.Play(ctx, req)
		if err != nil {
			return reply{}, err
		}
		return playReply(res, req.Channel.Name), nil

	case CommandPause:
		if _, err := m.Pause(ctx, req.Guild); err != nil {
			return reply{}, err
		}
		return embed("Track Paused!!", colorRed, ""), nil

	case CommandResume:
		if _, err := m.Resume(ctx, req.Guild); err != nil {
			return reply{}, err
		}
		return embed("Resumed", colorGreen, ""), nil

	case CommandSeek:
		position, err := parseSeconds(req.Args)
		if err != nil {
			return reply{}, err
		}
		if _, err := m.Seek(ctx, req.Guild, position); err != nil {
			return reply{}, err
		}
		return embed(fmt.Sprintf("Track Seeked To Second: %d", int(position.Seconds())), colorBlue, ""), nil

	case CommandSkip:
		res, err := m.Skip(ctx, req.Guild)
		if err != nil {
			return reply{}, err
		}
		return skipReply(res), nil

	case CommandStop:
		if err := m.Stop(ctx, req.Guild); err != nil {
			return reply{}, err
		}
		return embed("Stopped the Track", colorRed, "Left the voice channel and cleared the queue."), nil

	case CommandJoin:
		res, err := m.Join(ctx, req)
		if err != nil {
			return reply{}, err
		}
		r := embed(fmt.Sprintf("Successfully joined %s", res.Channel.Name), colorBlue, "")
		if res.Restored != nil {
			r.Embed.Description = describeTrack(*res.Restored)
		}
		return r, nil

	case CommandVolume:
		percent, err := parseVolume(req.Args)
		if err != nil {
			return reply{}, err
		}
		applied, err := m.Volume(ctx, req.Guild, percent)
		if err != nil {
			return reply{}, err
		}
		return text("Volume changed to %d%%", applied), nil

	case CommandRepeat:
		res, err := m.Repeat(ctx, req.Guild)
		if err != nil {
			return reply{}, err
		}
		return repeatReply(res), nil

	case CommandQueue:
		info, err := m.Queue(req.Guild)
		if err != nil {
			return reply{}, err
		}
		return reply{Embed: queueEmbed(info)}, nil

	case CommandShuffle:
		if _, err := m.Shuffle(req.Guild); err != nil {
			return reply{}, err
		}
		return text("The queue has been shuffled."), nil

	case CommandPing:
		return pingReply(latency()), nil

	default:
		return reply{}, errBadArgument
	}
}
