// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"google.golang.org/protobuf/types/known/structpb"

	apiconnect "github.com/osa030/vcbox/internal/api/connect"
)

var (
	app    = kingpin.New("vcbox-admincli", "vcbox admin client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()

	// status command
	statusCmd = app.Command("status", "Show every active guild session")

	// skip command
	skipCmd   = app.Command("skip", "Skip a guild's current track")
	skipGuild = skipCmd.Arg("guild-id", "Guild ID").Required().String()

	// stop command
	stopCmd   = app.Command("stop", "Stop playback in a guild and leave voice")
	stopGuild = stopCmd.Arg("guild-id", "Guild ID").Required().String()

	// watch command
	watchCmd = app.Command("watch", "Stream playback events")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	client := apiconnect.NewAdminClient(http.DefaultClient, *server, *token)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case statusCmd.FullCommand():
		status(ctx, client)
	case skipCmd.FullCommand():
		skip(ctx, client, *skipGuild)
	case stopCmd.FullCommand():
		stopSession(ctx, client, *stopGuild)
	case watchCmd.FullCommand():
		watch(ctx, client)
	}
}

func fail(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}

func status(ctx context.Context, client *apiconnect.AdminClient) {
	resp, err := client.GetStatus(ctx)
	if err != nil {
		fail(err)
	}

	guilds := resp.GetFields()["guilds"].GetListValue().GetValues()
	if len(guilds) == 0 {
		fmt.Println("No active sessions")
		return
	}

	for _, v := range guilds {
		g := v.GetStructValue().GetFields()
		fmt.Printf("\n=== GUILD %s ===\n", g["guild"].GetStringValue())
		fmt.Printf("Channel: %s (connected: %v)\n", g["channel"].GetStringValue(), g["connected"].GetBoolValue())
		fmt.Printf("State: %s\n", g["state"].GetStringValue())
		fmt.Printf("Volume: %.0f\n", g["volume"].GetNumberValue())
		fmt.Printf("Repeat: %s\n", g["repeat"].GetStringValue())
		if id := g["monitor"].GetStringValue(); id != "" {
			fmt.Printf("Monitor: %s\n", id)
		}
		if g["reconnecting"].GetBoolValue() {
			fmt.Println("Reconnecting: yes")
		}
		if current, ok := g["current"]; ok {
			fmt.Printf("\nCurrently Playing:\n")
			fmt.Printf("  %s\n", current.GetStringValue())
			fmt.Printf("  Position: %.0f seconds\n", g["position"].GetNumberValue())
		} else {
			fmt.Println("\nNo track currently playing")
		}

		queue := g["queue"].GetListValue().GetValues()
		fmt.Printf("\nQueue (%d):\n", len(queue))
		for i, t := range queue {
			fmt.Printf("  %2d. %s\n", i+1, t.GetStringValue())
		}
	}
	fmt.Println()
}

func skip(ctx context.Context, client *apiconnect.AdminClient, guildID string) {
	next, err := client.SkipGuild(ctx, guildID)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Track skipped, now playing: %s\n", next)
}

func stopSession(ctx context.Context, client *apiconnect.AdminClient, guildID string) {
	if err := client.StopGuild(ctx, guildID); err != nil {
		fail(err)
	}
	fmt.Println("Session stopped")
}

func watch(ctx context.Context, client *apiconnect.AdminClient) {
	err := client.WatchEvents(ctx, func(e *structpb.Struct) error {
		f := e.GetFields()
		line := fmt.Sprintf("[%s] guild=%s %s",
			f["at"].GetStringValue(), f["guild"].GetStringValue(), f["type"].GetStringValue())
		if t, ok := f["track"]; ok {
			line += " " + t.GetStringValue()
		}
		if msg, ok := f["error"]; ok {
			line += " error=" + msg.GetStringValue()
		}
		fmt.Println(line)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		fail(err)
	}
}
