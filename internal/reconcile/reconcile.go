// Package reconcile replaces the optimistic store with authoritative
// backend state after moves and whenever something else changes the board.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/robertguss/sprintboard-go/internal/domain"
	"github.com/robertguss/sprintboard-go/internal/metrics"
	"github.com/robertguss/sprintboard-go/internal/store"
)

// ErrBusy is returned by Refresh when a move is in flight
var ErrBusy = errors.New("move in flight")

// ErrStale is returned when the store changed while the fetch was running
var ErrStale = errors.New("store changed during fetch")

// Default timings
const (
	DefaultRetryInterval = 2 * time.Second
	DefaultMaxRetries    = 5
	DefaultFetchTimeout  = 10 * time.Second
)

// Fetcher loads the authoritative board of a project
type Fetcher interface {
	RefetchContainers(ctx context.Context, projectID string) (domain.BoardState, error)
}

// Gate reports whether background writes are allowed
type Gate interface {
	Idle() bool
}

// Options configures a Reconciler
type Options struct {
	ProjectID     string
	Fetcher       Fetcher
	Store         *store.Store
	Gate          Gate
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
	RetryInterval time.Duration // base delay, doubled per failed attempt
	MaxRetries    int
	PollInterval  time.Duration // 0 disables periodic refresh
	FetchTimeout  time.Duration
}

// Reconciler keeps the store in line with the backend
type Reconciler struct {
	projectID     string
	fetcher       Fetcher
	store         *store.Store
	gate          Gate
	metrics       *metrics.Metrics
	log           zerolog.Logger
	retryInterval time.Duration
	maxRetries    int
	pollInterval  time.Duration
	fetchTimeout  time.Duration

	trigger chan struct{}
	retry   chan struct{}
}

// New creates a reconciler. Background triggers and retries are only
// served while Run is active.
func New(opts Options) *Reconciler {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}

	return &Reconciler{
		projectID:     opts.ProjectID,
		fetcher:       opts.Fetcher,
		store:         opts.Store,
		gate:          opts.Gate,
		metrics:       opts.Metrics,
		log:           opts.Logger.With().Str("component", "reconciler").Logger(),
		retryInterval: opts.RetryInterval,
		maxRetries:    opts.MaxRetries,
		pollInterval:  opts.PollInterval,
		fetchTimeout:  opts.FetchTimeout,
		trigger:       make(chan struct{}, 1),
		retry:         make(chan struct{}, 1),
	}
}

// SetGate attaches the gate consulted by background refreshes
func (r *Reconciler) SetGate(g Gate) {
	r.gate = g
}

// Reconcile is the post-move refresh. The caller guarantees no move writes
// the store meanwhile. A failed fetch schedules a background retry.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	err := r.refresh(ctx, false)
	if err != nil && !errors.Is(err, ErrStale) {
		r.scheduleRetry()
	}
	return err
}

// Refresh fetches and installs authoritative state unless a move is in flight
func (r *Reconciler) Refresh(ctx context.Context) error {
	return r.refresh(ctx, true)
}

// Trigger requests a background refresh. Calls coalesce while one is pending.
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run serves triggers, retries and polling until ctx is done
func (r *Reconciler) Run(ctx context.Context) {
	var poll <-chan time.Time
	if r.pollInterval > 0 {
		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()
		poll = ticker.C
	}

	attempts := 0
	var retryTimer *time.Timer
	var retryC <-chan time.Time
	stopRetry := func() {
		if retryTimer != nil {
			retryTimer.Stop()
		}
		retryTimer, retryC = nil, nil
	}
	defer stopRetry()

	schedule := func() {
		if retryC != nil {
			return
		}
		if attempts >= r.maxRetries {
			r.log.Warn().Int("attempts", attempts).Msg("giving up on reconciliation retries until the next trigger")
			attempts = 0
			return
		}
		delay := r.retryInterval << attempts
		attempts++
		retryTimer = time.NewTimer(delay)
		retryC = retryTimer.C
		r.log.Debug().Dur("delay", delay).Int("attempt", attempts).Msg("reconciliation retry scheduled")
	}

	handle := func(err error) {
		switch {
		case err == nil:
			attempts = 0
			stopRetry()
		case errors.Is(err, ErrBusy), errors.Is(err, ErrStale):
			// the in-flight move reconciles when it finishes
		default:
			schedule()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.trigger:
			handle(r.Refresh(ctx))
		case <-poll:
			handle(r.Refresh(ctx))
		case <-r.retry:
			schedule()
		case <-retryC:
			retryTimer, retryC = nil, nil
			handle(r.Refresh(ctx))
		}
	}
}

func (r *Reconciler) scheduleRetry() {
	select {
	case r.retry <- struct{}{}:
	default:
	}
}

func (r *Reconciler) refresh(ctx context.Context, gated bool) error {
	if gated && r.gate != nil && !r.gate.Idle() {
		return ErrBusy
	}

	epoch := r.store.Epoch()

	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	board, err := r.fetcher.RefetchContainers(fetchCtx, r.projectID)
	cancel()
	if err != nil {
		r.metrics.ObserveReconcile(metrics.ReconcileFailed)
		r.log.Warn().Err(err).Msg("reconciliation fetch failed")
		return fmt.Errorf("reconcile %s: %w", r.projectID, err)
	}

	if gated && r.gate != nil && !r.gate.Idle() {
		r.metrics.ObserveReconcile(metrics.ReconcileDiscarded)
		return ErrBusy
	}
	if !r.store.Replace(board, epoch) {
		r.metrics.ObserveReconcile(metrics.ReconcileDiscarded)
		r.log.Debug().Msg("discarding reconciliation result, store changed during fetch")
		return ErrStale
	}

	r.metrics.ObserveReconcile(metrics.ReconcileApplied)
	return nil
}
