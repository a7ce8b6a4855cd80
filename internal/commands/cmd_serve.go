package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"github.com/robertguss/sprintboard-go/internal/api"
	"github.com/robertguss/sprintboard-go/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// ServeCmd runs the REST API backend
type ServeCmd struct {
	flags *Flags

	// flags
	addr string
}

// NewServeCmd creates a new serve command
func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application
func (cmd *ServeCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Run the board API server",
		UsageText: "sprintboard serve [--addr ADDR]",
		Description: `Serves projects, sprint status and sprint membership over HTTP, plus a
websocket change feed and prometheus metrics.

Boards started with --server-url talk to this server.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address (overrides server.addr)",
				Sources:     cli.EnvVars("SPRINTBOARD_ADDR"),
				Destination: &cmd.addr,
			},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *ServeCmd) run(ctx context.Context, _ *cli.Command) error {
	cfg := cmd.flags.Config
	log := cmd.flags.Logger.With().Str("command", "serve").Logger()

	serverCfg := cfg.Server
	if cmd.addr != "" {
		serverCfg.Addr = cmd.addr
	}

	st, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := api.NewServer(serverCfg, st, reg, log)
	go srv.GetWebSocketHub().Run()
	defer srv.GetWebSocketHub().Stop()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	log.Info().Str("addr", serverCfg.Addr).Str("driver", cfg.Database.Driver).Msg("api server listening")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stop api server: %w", err)
	}
	return <-errCh
}
