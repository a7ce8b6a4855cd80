package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/robertguss/sprintboard-go/internal/commands"
	"github.com/robertguss/sprintboard-go/internal/config"
	"github.com/robertguss/sprintboard-go/internal/logging"
	"github.com/robertguss/sprintboard-go/internal/theme"
)

// Populated at build-time via -ldflags
var version = "dev"

func build() string {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				return mv
			}
		}
	}
	return version
}

func main() {
	ctx := context.Background()

	var logCloser func()
	flags := &commands.Flags{}

	app := &cli.Command{
		Name:      "sprintboard",
		Usage:     "Plan sprints by moving issues between the backlog and sprints",
		UsageText: "sprintboard [global options] command [command options]",
		Description: `Sprintboard keeps a project's backlog and sprints in sync with a backend.

Moves show up at once and are undone if the backend refuses them.
Run 'sprintboard serve' for the API server and 'sprintboard board' for the
interactive board. Without --server-url the board uses the database directly.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (trace, debug, info, warn, error)",
				Sources:     cli.EnvVars("SPRINTBOARD_LOG_LEVEL"),
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to <data-dir>/sprintboard.log, '-' for stderr)",
				Sources:     cli.EnvVars("SPRINTBOARD_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("SPRINTBOARD_CONFIG"),
				Value:       commands.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("SPRINTBOARD_DATA_DIR"),
				Value:       commands.DefaultDataDir(),
				Destination: &flags.DataDir,
			},
			&cli.StringFlag{
				Name:        "project",
				Aliases:     []string{"p"},
				Usage:       "project id (overrides board.project_id)",
				Sources:     cli.EnvVars("SPRINTBOARD_PROJECT"),
				Destination: &flags.ProjectID,
			},
			&cli.StringFlag{
				Name:        "server-url",
				Usage:       "API server to talk to (overrides board.server_url)",
				Sources:     cli.EnvVars("SPRINTBOARD_SERVER_URL"),
				Destination: &flags.ServerURL,
			},
			&cli.StringFlag{
				Name:        "api-key",
				Usage:       "API key for the server (overrides server.api_key)",
				Sources:     cli.EnvVars("SPRINTBOARD_API_KEY"),
				Destination: &flags.APIKey,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			if err := flags.ApplyOverrides(cfg); err != nil {
				return ctx, fmt.Errorf("invalid flags: %w", err)
			}
			flags.Config = cfg

			level := flags.LogLevel
			if level == "" {
				level = cfg.Log.Level
			}
			logger, closer, err := logging.New(level, flags.ResolveLogFile(cfg))
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			flags.Logger = logger
			logCloser = closer

			if err := theme.Apply(cfg.Theme); err != nil {
				log.Warn().Err(err).Str("theme", cfg.Theme).Msg("falling back to default theme")
			}

			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	app = commands.NewServeCmd(flags).Register(app)
	app = commands.NewBoardCmd(flags).Register(app)
	app = commands.NewMoveCmd(flags).Register(app)
	app = commands.NewSeedCmd(flags).Register(app)
	app = commands.NewHistoryCmd(flags).Register(app)
	app = commands.NewDoctorCmd(flags).Register(app)

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
