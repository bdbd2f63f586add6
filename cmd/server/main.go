// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/vcbox/internal/api/connect"
	"github.com/osa030/vcbox/internal/app/filter"
	"github.com/osa030/vcbox/internal/app/notification"
	"github.com/osa030/vcbox/internal/app/resolve"
	"github.com/osa030/vcbox/internal/app/session"
	"github.com/osa030/vcbox/internal/domain/guild"
	"github.com/osa030/vcbox/internal/infra/config"
	"github.com/osa030/vcbox/internal/infra/discord"
	"github.com/osa030/vcbox/internal/infra/lavalink"
	"github.com/osa030/vcbox/internal/infra/logger"
	"github.com/osa030/vcbox/internal/infra/spotify"
)

var (
	app        = kingpin.New("vcbox-server", "vcbox voice channel music bot")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	app.Command("start", "Start the bot (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Output: cfg.Log.Output,
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	zlog.Info().Msgf("Loaded config from %s", *configPath)

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %+v", err)
		os.Exit(1)
	}
}

// nodeAdapter exposes the Lavalink node through the session.Node port.
type nodeAdapter struct {
	*lavalink.Node
}

func (a nodeAdapter) Player(g guild.ID) session.Player {
	return a.Node.Player(g)
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	admission, err := filter.Build(cfg.EnabledFilters())
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	bot, err := discord.New(discord.Config{
		Token:             cfg.Discord.Token,
		Prefix:            cfg.Discord.Prefix,
		Status:            cfg.Discord.Status,
		SearchTimeout:     cfg.Playback.SearchTimeout,
		CommandsPerSecond: cfg.RateLimit.CommandsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		Messages:          cfg.Messages,
	})
	if err != nil {
		return err
	}
	// The node needs the bot's user ID, which is only known after the
	// gateway handshake. Commands are ignored until Bind.
	if err := bot.Open(); err != nil {
		return err
	}
	defer func() {
		if err := bot.Close(); err != nil {
			zlog.Warn().Err(err).Msg("Failed to close discord session")
		}
	}()
	zlog.Info().Msgf("Connected to Discord: user=%s", bot.UserID())

	node := lavalink.NewNode(lavalink.Config{
		Host:              cfg.Lavalink.Host,
		Port:              cfg.Lavalink.Port,
		Password:          cfg.Lavalink.Password,
		Secure:            cfg.Lavalink.Secure,
		ClientName:        cfg.Lavalink.ClientName,
		UserID:            bot.UserID(),
		ReconnectAttempts: cfg.Lavalink.ReconnectAttempts,
		ResumeTimeout:     cfg.Lavalink.ResumeTimeout,
	}, bot)

	var links resolve.LinkResolver
	if cfg.Spotify.Enabled() {
		client, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return errors.Wrap(err, "failed to create Spotify client")
		}
		links = client
		zlog.Info().Msg("Spotify link resolution enabled")
	}
	resolver := resolve.New(node, links)

	manager := session.NewManager(session.Config{
		PollInterval:     cfg.Playback.PollInterval,
		ReconnectTimeout: cfg.Playback.ReconnectTimeout,
		SeekDelay:        cfg.Playback.SeekDelay,
		StopTimeout:      cfg.Playback.StopTimeout,
		SearchResults:    cfg.Playback.SearchResults,
	}, nodeAdapter{node}, resolver, admission)

	node.OnTrackEnd(manager.TrackEnded)
	bot.Bind(manager, node)

	notifier := notification.NewManager()
	notifier.Subscribe(notification.StreamFunc(bot.Announce))
	go notifier.Run(ctx, manager.Events())

	nodeErrCh := make(chan error, 1)
	go func() {
		nodeErrCh <- node.Run(ctx)
	}()

	mux := http.NewServeMux()
	adminPath, adminHandler := apiconnect.NewAdminHandler(
		apiconnect.NewAdminService(manager, notifier),
		cfg.Admin.Token,
	)
	mux.Handle(adminPath, adminHandler)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Admin.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting admin server: addr=%s", cfg.Admin.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-nodeErrCh:
		runErr = errors.Wrap(err, "lavalink node stopped")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "admin server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Leave every voice channel before the node and gateway go away
	if err := manager.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to stop sessions: %v", err)
	}
	notifier.Close()
	cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown admin server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return runErr
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	registered := filter.GetRegistered()
	for _, name := range filter.Names() {
		f := registered[name]()
		fmt.Printf("  %-30s - %s [codes: %v]\n", f.Name(), f.Description(), f.ReturnCodes())
	}
}
