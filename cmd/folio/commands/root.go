package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/folio/internal/app"
	"github.com/florianilch/folio/internal/observability"
	"github.com/florianilch/folio/internal/reader"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return newRootCommand(os.Environ).Run(ctx, args)
}

func newRootCommand(environFunc func() []string) *cli.Command {
	run := func(action appAction) cli.ActionFunc {
		return withApp(environFunc, action)
	}

	return &cli.Command{
		Name:  "folio",
		Usage: "Browse and read a PDF library from the terminal",
		Flags: globalFlags(),
		Commands: []*cli.Command{
			loginCommand(run),
			logoutCommand(run),
			statusCommand(run),
			listCommand(run),
			showCommand(run),
			searchCommand(run),
			pagesCommand(run),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to config file",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "log level (debug|info|warn|error)",
			Value: slog.LevelInfo.String(),
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "log format (text|json|otel)",
			Value: string(app.DefaultConfigLogFormat),
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging",
		},
		&cli.StringFlag{
			Name:  "api--base-url",
			Usage: "backend base URL, or offline:// to run without a backend",
		},
		&cli.DurationFlag{
			Name:  "api--timeout",
			Usage: "timeout per request attempt",
			Value: app.DefaultConfigAPITimeout,
		},
		&cli.IntFlag{
			Name:  "api--idempotent-retries",
			Usage: "retries for GET requests on transient failures (library reads default to 1)",
		},
		&cli.IntFlag{
			Name:  "reader--prefetch-limit",
			Usage: "concurrent page URL fetches when listing pages",
			Value: reader.DefaultPrefetchLimit,
		},
		&cli.BoolFlag{
			Name:  "auth--ephemeral",
			Usage: "keep the access token in memory only",
		},
		&cli.StringFlag{
			Name:  "auth--storage",
			Usage: "token storage (file|env|keyring)",
			Value: string(app.DefaultConfigAuthStorage),
		},
		&cli.StringFlag{
			Name:  "auth--file",
			Usage: "token file for file storage",
		},
		&cli.StringFlag{
			Name:  "auth--env-key",
			Usage: "environment variable for env storage",
		},
		&cli.StringFlag{
			Name:  "auth--keyring-user",
			Usage: "keyring user for keyring storage",
		},
	}
}

// appAction is a command action that needs a configured App.
type appAction func(ctx context.Context, cmd *cli.Command, application *app.App) error

// withApp loads the configuration, sets up logging and builds the App before
// running action.
func withApp(environFunc func() []string, action appAction) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd.String("config"), cmd, environFunc)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Set up observability before creating app
		shutdown, err := observability.Instrument(cfg.LogLevel, string(cfg.LogFormat),
			observability.WithWriter(cmd.Root().ErrWriter))
		if err != nil {
			return fmt.Errorf("failed to set up observability layer: %w", err)
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				slog.WarnContext(ctx, "flushing telemetry failed", "error", err)
			}
		}()

		application, err := app.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to create app: %w", err)
		}

		slog.DebugContext(ctx, "running command", "command", cmd.Name, "base_url", cfg.API.BaseURL, "offline", cfg.API.Offline())
		return action(ctx, cmd, application)
	}
}
