// Command spotify-relay runs the Spotify OAuth and currently-playing relay.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/justestif/spotify-relay/internal/config"
	"github.com/justestif/spotify-relay/internal/logger"
	"github.com/justestif/spotify-relay/internal/spotify"
	"github.com/justestif/spotify-relay/internal/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spotify-relay",
		Short: "Relay Spotify OAuth and currently-playing requests for a browser frontend",
		Long: `spotify-relay keeps the Spotify client secret off the browser. It runs the
authorization-code flow and proxies the currently-playing endpoint.

Credentials come from SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET, read from the
environment or a .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	app := fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.StopTimeout(cfg.Server.ShutdownTimeout),
		fx.Supply(cfg, log),
		fx.Provide(
			fx.Annotate(spotify.New, fx.As(new(web.Provider))),
		),
		web.Module,
	)
	if err := app.Err(); err != nil {
		return fmt.Errorf("wiring application: %w", err)
	}

	// Run blocks until SIGINT or SIGTERM, then stops the server.
	app.Run()
	log.Info("Relay stopped", zap.String("addr", cfg.Server.Addr()))
	return nil
}
