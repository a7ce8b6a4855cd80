package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/robertguss/sprintboard-go/internal/app"
	"github.com/robertguss/sprintboard-go/internal/notify"
)

// BoardCmd opens the interactive board
type BoardCmd struct {
	flags *Flags

	// flags
	metricsAddr string
}

// NewBoardCmd creates a new board command
func NewBoardCmd(flags *Flags) *BoardCmd {
	return &BoardCmd{flags: flags}
}

// Register adds the board command to the application
func (cmd *BoardCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "board",
		Usage:     "Open the interactive sprint board",
		UsageText: "sprintboard board [--metrics-addr ADDR]",
		Description: `Shows the Backlog and every sprint of the project as columns.

Select an item, press m, pick a destination with the arrow keys and press
enter. The move shows immediately and is undone if the server refuses it.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "metrics-addr",
				Usage:       "serve the board's prometheus metrics on this address",
				Sources:     cli.EnvVars("SPRINTBOARD_METRICS_ADDR"),
				Destination: &cmd.metricsAddr,
			},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *BoardCmd) run(ctx context.Context, _ *cli.Command) error {
	cfg := cmd.flags.Config
	log := cmd.flags.Logger.With().Str("command", "board").Logger()

	reg := prometheus.NewRegistry()
	engine, err := NewEngine(ctx, cfg, log, EngineOptions{Registerer: reg, Background: true})
	if err != nil {
		return err
	}
	defer engine.Close()

	if cmd.metricsAddr != "" {
		srv := &http.Server{
			Addr:              cmd.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	mode := "local"
	if !cfg.LocalMode() {
		mode = "remote"
	}

	model := app.New(app.Options{
		Board:       engine.Store.State(),
		ProjectName: cfg.Board.ProjectID,
		Mode:        mode,
		Mover:       engine.Orchestrator,
		Refresher:   engine.Reconciler,
		Notifier:    notify.New(cfg.NotificationsEnabled),
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	unsubscribe := app.Connect(p, engine.Store, engine.Orchestrator)
	defer unsubscribe()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run board: %w", err)
	}
	return nil
}
