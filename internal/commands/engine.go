package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/robertguss/sprintboard-go/internal/config"
	"github.com/robertguss/sprintboard-go/internal/metrics"
	"github.com/robertguss/sprintboard-go/internal/orchestrator"
	"github.com/robertguss/sprintboard-go/internal/reconcile"
	"github.com/robertguss/sprintboard-go/internal/remote"
	"github.com/robertguss/sprintboard-go/internal/storage"
	"github.com/robertguss/sprintboard-go/internal/store"
	"github.com/robertguss/sprintboard-go/internal/watcher"
)

// ErrNoProject is returned when no project was configured
var ErrNoProject = errors.New("no project selected, set board.project_id or --project")

// Engine wires the move engine for one project
type Engine struct {
	Client       remote.Client
	Store        *store.Store
	Orchestrator *orchestrator.Orchestrator
	Reconciler   *reconcile.Reconciler
	Metrics      *metrics.Metrics

	storage storage.Storage
	cancel  context.CancelFunc
	watcher *watcher.Watcher
	log     zerolog.Logger
}

// EngineOptions tunes which background triggers are started
type EngineOptions struct {
	Registerer prometheus.Registerer
	Background bool // run the reconciler loop, change feed and file watcher
}

// NewEngine connects to local storage or the remote server, loads the board
// and starts the orchestrator.
func NewEngine(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts EngineOptions) (*Engine, error) {
	if cfg.Board.ProjectID == "" {
		return nil, ErrNoProject
	}

	e := &Engine{
		Metrics: metrics.New(opts.Registerer),
		log:     log,
	}

	var recorder orchestrator.Recorder
	if cfg.LocalMode() {
		st, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		e.storage = st
		e.Client = remote.NewLocalClient(st)
		recorder = st
	} else {
		client := remote.NewHTTPClient(cfg.Board.ServerURL, cfg.Server.APIKey, cfg.Remote.Timeout)
		e.Client = client
		recorder = client
	}

	board, err := e.Client.RefetchContainers(ctx, cfg.Board.ProjectID)
	if err != nil {
		e.closeStorage()
		return nil, fmt.Errorf("load board %s: %w", cfg.Board.ProjectID, err)
	}

	e.Store = store.New(board, cfg.Board.DefaultSprintStatus)
	e.Reconciler = reconcile.New(reconcile.Options{
		ProjectID:     cfg.Board.ProjectID,
		Fetcher:       e.Client,
		Store:         e.Store,
		Metrics:       e.Metrics,
		Logger:        log,
		RetryInterval: cfg.Reconcile.RetryInterval,
		MaxRetries:    cfg.Reconcile.MaxRetries,
		PollInterval:  cfg.Reconcile.PollInterval,
		FetchTimeout:  cfg.Remote.Timeout,
	})
	e.Orchestrator = orchestrator.New(orchestrator.Options{
		ProjectID:  cfg.Board.ProjectID,
		Store:      e.Store,
		Client:     e.Client,
		Reconciler: e.Reconciler,
		Recorder:   recorder,
		Metrics:    e.Metrics,
		BusyPolicy: orchestrator.BusyPolicy(cfg.Board.BusyPolicy),
		Logger:     log,
	})
	e.Reconciler.SetGate(e.Orchestrator)

	if opts.Background {
		if err := e.startBackground(cfg); err != nil {
			e.Close()
			return nil, err
		}
	}

	return e, nil
}

func (e *Engine) startBackground(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	go e.Reconciler.Run(ctx)

	if !cfg.LocalMode() {
		feed := remote.NewFeed(cfg.Board.ServerURL, cfg.Server.APIKey, cfg.Board.ProjectID,
			func(remote.ChangeEvent) { e.Reconciler.Trigger() }, e.log)
		go func() {
			if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.log.Warn().Err(err).Msg("change feed stopped")
			}
		}()
		return nil
	}

	if cfg.WatchEnabled && cfg.Database.Driver == storage.DriverSQLite {
		e.watcher = watcher.WatchDatabase(cfg.Database.DSN, cfg.WatchDebounce, e.Reconciler.Trigger, e.log)
		if err := e.watcher.Start(); err != nil {
			return fmt.Errorf("start database watcher: %w", err)
		}
	}
	return nil
}

// Close stops the orchestrator and background work and releases storage
func (e *Engine) Close() {
	e.Orchestrator.Close()
	if e.cancel != nil {
		e.cancel()
	}
	if e.watcher != nil {
		_ = e.watcher.Stop()
	}
	e.closeStorage()
}

func (e *Engine) closeStorage() {
	if e.storage == nil {
		return
	}
	if err := e.storage.Close(); err != nil {
		e.log.Error().Err(err).Msg("failed to close storage")
	}
}
