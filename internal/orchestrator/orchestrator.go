// Package orchestrator sequences a move through validation, optimistic
// apply, remote persistence, rollback and reconciliation. One orchestrator
// serves one board and processes a single move at a time.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/robertguss/sprintboard-go/internal/domain"
	"github.com/robertguss/sprintboard-go/internal/metrics"
	"github.com/robertguss/sprintboard-go/internal/remote"
	"github.com/robertguss/sprintboard-go/internal/storage"
	"github.com/robertguss/sprintboard-go/internal/store"
	"github.com/robertguss/sprintboard-go/internal/validator"
)

const recordTimeout = 5 * time.Second

// Reconciler refreshes the store from the backend
type Reconciler interface {
	// Reconcile runs the post-move refresh while the orchestrator is Reconciling
	Reconcile(ctx context.Context) error
	// Trigger requests a background refresh without blocking
	Trigger()
}

// Recorder persists move history
type Recorder interface {
	SaveMoveRecord(ctx context.Context, rec *storage.MoveRecord) error
}

// Options configures an Orchestrator
type Options struct {
	ProjectID  string
	Store      *store.Store
	Client     remote.Client
	Reconciler Reconciler
	Recorder   Recorder
	Metrics    *metrics.Metrics
	BusyPolicy BusyPolicy
	Logger     zerolog.Logger
}

// OutcomeListener receives every move outcome
type OutcomeListener func(domain.MoveOutcome)

// StateListener receives every state transition
type StateListener func(State)

type job struct {
	id       string
	ctx      context.Context
	req      domain.MoveRequest
	accepted time.Time
	result   chan domain.MoveOutcome
}

// Orchestrator is the move state machine for one board
type Orchestrator struct {
	projectID  string
	store      *store.Store
	client     remote.Client
	reconciler Reconciler
	recorder   Recorder
	metrics    *metrics.Metrics
	policy     BusyPolicy
	log        zerolog.Logger

	mu             sync.Mutex
	state          State
	queue          []*job
	closed         bool
	outcomeFns     []OutcomeListener
	stateFns       []StateListener
	wake           chan struct{}
	exited         chan struct{}
	processingMove bool
}

// New creates an orchestrator and starts its processing loop
func New(opts Options) *Orchestrator {
	if opts.BusyPolicy == "" {
		opts.BusyPolicy = BusyQueue
	}

	o := &Orchestrator{
		projectID:  opts.ProjectID,
		store:      opts.Store,
		client:     instrumentedClient{Client: opts.Client, metrics: opts.Metrics},
		reconciler: opts.Reconciler,
		recorder:   opts.Recorder,
		metrics:    opts.Metrics,
		policy:     opts.BusyPolicy,
		log:        opts.Logger.With().Str("component", "orchestrator").Logger(),
		state:      StateIdle,
		wake:       make(chan struct{}, 1),
		exited:     make(chan struct{}),
	}
	o.metrics.SetState(string(StateIdle), stateNames())

	go o.run()
	return o
}

// State returns the current state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Idle returns true when no move is queued or in flight
func (o *Orchestrator) Idle() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == StateIdle && len(o.queue) == 0 && !o.processingMove
}

// OnOutcome registers a listener called once per submitted move
func (o *Orchestrator) OnOutcome(fn OutcomeListener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomeFns = append(o.outcomeFns, fn)
}

// OnStateChange registers a listener called on every transition
func (o *Orchestrator) OnStateChange(fn StateListener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stateFns = append(o.stateFns, fn)
}

// SubmitMove runs a move and returns its outcome. It never fails: every
// error is resolved into the outcome. ctx bounds only the time spent
// waiting for earlier moves; once a move starts it runs to completion.
func (o *Orchestrator) SubmitMove(ctx context.Context, req domain.MoveRequest) domain.MoveOutcome {
	j := &job{
		id:       uuid.New().String(),
		ctx:      ctx,
		req:      req,
		accepted: time.Now(),
		result:   make(chan domain.MoveOutcome, 1),
	}

	if req.IsNoop() {
		return o.finishEarly(j, domain.ReasonNoop)
	}

	o.mu.Lock()
	switch {
	case o.closed:
		o.mu.Unlock()
		return o.finishEarly(j, domain.ReasonClosed)
	case o.policy == BusyReject && (o.state != StateIdle || len(o.queue) > 0 || o.processingMove):
		o.mu.Unlock()
		return o.finishEarly(j, domain.ReasonBusy)
	}
	o.queue = append(o.queue, j)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}

	return <-j.result
}

// Close stops accepting moves, lets the in-flight move finish and waits for
// the processing loop to exit. Outcomes produced after Close are not
// delivered to listeners.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		<-o.exited
		return
	}
	o.closed = true
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	<-o.exited
}

// finishEarly resolves a move that never reaches the processing loop
func (o *Orchestrator) finishEarly(j *job, reason string) domain.MoveOutcome {
	outcome := domain.Rejected(j.req, reason)
	outcome.MoveID = j.id
	o.metrics.ObserveMove(outcome, time.Since(j.accepted))
	if reason != domain.ReasonClosed {
		o.emit(outcome)
	}
	return outcome
}

func (o *Orchestrator) run() {
	defer close(o.exited)

	for {
		j, ok := o.next()
		if !ok {
			return
		}
		outcome := o.process(j)
		j.result <- outcome
	}
}

// next blocks until a job is available. After Close it drains the queue
// with closed outcomes and reports false.
func (o *Orchestrator) next() (*job, bool) {
	for {
		o.mu.Lock()
		if o.closed {
			pending := o.queue
			o.queue = nil
			o.mu.Unlock()
			for _, j := range pending {
				outcome := domain.Rejected(j.req, domain.ReasonClosed)
				outcome.MoveID = j.id
				j.result <- outcome
			}
			return nil, false
		}
		if len(o.queue) > 0 {
			j := o.queue[0]
			o.queue = o.queue[1:]
			o.processingMove = true
			o.mu.Unlock()
			return j, true
		}
		o.mu.Unlock()
		<-o.wake
	}
}

func (o *Orchestrator) process(j *job) domain.MoveOutcome {
	defer func() {
		o.mu.Lock()
		o.processingMove = false
		o.mu.Unlock()
	}()

	log := o.log.With().Str("move_id", j.id).Str("move", j.req.String()).Logger()

	if j.ctx.Err() != nil {
		outcome := domain.Rejected(j.req, domain.ReasonCancelled)
		outcome.MoveID = j.id
		o.metrics.ObserveMove(outcome, time.Since(j.accepted))
		o.emit(outcome)
		return outcome
	}

	// Remote calls are never cancelled once the move has started.
	ctx := context.WithoutCancel(j.ctx)
	start := time.Now()

	o.setState(StateValidating)
	board := o.store.State()
	if err := validator.Validate(j.req, &board); err != nil {
		reason := validator.ReasonOf(err)
		log.Debug().Str("reason", reason).Msg("move rejected")
		if reason == domain.ReasonSourceMismatch || reason == domain.ReasonTargetNotFound {
			o.triggerRefresh()
		}
		o.setState(StateIdle)
		return o.complete(ctx, j, domain.Rejected(j.req, reason), start)
	}

	snap, moved, err := o.store.ApplyWithSnapshot(j.req)
	if err != nil {
		log.Warn().Err(err).Msg("optimistic apply failed")
		o.triggerRefresh()
		o.setState(StateIdle)
		return o.complete(ctx, j, domain.Rejected(j.req, domain.ReasonSourceMismatch), start)
	}
	o.setState(StateAppliedOptimistically)

	var outcome domain.MoveOutcome
	if err := validator.ValidateRemote(ctx, j.req, o.client); err != nil {
		var rej *validator.Rejection
		cause := err
		if errors.As(err, &rej) && rej.Err != nil {
			cause = rej.Err
		}
		log.Info().Err(cause).Msg("destination no longer accepts items, rolling back")
		o.setState(StateRollingBack)
		o.store.Restore(snap)
		outcome = domain.RolledBack(j.req, domain.ReasonTargetInvalid, cause)
	} else {
		o.setState(StatePersistingRemote)
		if err := o.persist(ctx, j.req, moved.DisplayStatus); err != nil {
			log.Warn().Err(err).Msg("remote persistence failed, rolling back")
			o.setState(StateRollingBack)
			o.store.Restore(snap)
			outcome = domain.RolledBack(j.req, err.Error(), err)
		} else {
			o.setState(StateSettled)
			outcome = domain.Applied(j.req)
		}
	}
	outcome.MoveID = j.id

	o.metrics.ObserveMove(outcome, time.Since(start))
	o.emit(outcome)
	o.record(ctx, j, outcome, time.Since(start))

	o.setState(StateReconciling)
	o.reconcile(ctx, log)
	o.setState(StateIdle)

	log.Debug().Str("outcome", outcome.String()).Dur("elapsed", time.Since(start)).Msg("move finished")
	return outcome
}

// complete finishes a move that was rejected before any mutation
func (o *Orchestrator) complete(ctx context.Context, j *job, outcome domain.MoveOutcome, start time.Time) domain.MoveOutcome {
	outcome.MoveID = j.id
	o.metrics.ObserveMove(outcome, time.Since(start))
	o.emit(outcome)
	o.record(ctx, j, outcome, time.Since(start))
	return outcome
}

func (o *Orchestrator) reconcile(ctx context.Context, log zerolog.Logger) {
	o.mu.Lock()
	r, closed := o.reconciler, o.closed
	o.mu.Unlock()

	if r == nil || closed {
		return
	}
	if err := r.Reconcile(ctx); err != nil {
		log.Warn().Err(err).Msg("post-move reconciliation failed")
	}
}

func (o *Orchestrator) triggerRefresh() {
	o.mu.Lock()
	r := o.reconciler
	o.mu.Unlock()
	if r != nil {
		r.Trigger()
	}
}

func (o *Orchestrator) record(ctx context.Context, j *job, outcome domain.MoveOutcome, d time.Duration) {
	if o.recorder == nil {
		return
	}

	rec := &storage.MoveRecord{
		MoveID:    j.id,
		ProjectID: o.projectID,
		ItemID:    j.req.Item.ID,
		From:      j.req.From.String(),
		To:        j.req.To.String(),
		Outcome:   outcome.Kind,
		Reason:    outcome.Reason,
		Duration:  d,
	}
	if outcome.Err != nil {
		rec.Error = outcome.Err.Error()
	}

	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()
	if err := o.recorder.SaveMoveRecord(ctx, rec); err != nil {
		o.log.Warn().Err(err).Str("move_id", j.id).Msg("failed to record move")
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	fns := append([]StateListener(nil), o.stateFns...)
	closed := o.closed
	o.mu.Unlock()

	o.metrics.SetState(string(s), stateNames())
	if closed {
		return
	}
	for _, fn := range fns {
		fn(s)
	}
}

func (o *Orchestrator) emit(outcome domain.MoveOutcome) {
	o.mu.Lock()
	fns := append([]OutcomeListener(nil), o.outcomeFns...)
	closed := o.closed
	o.mu.Unlock()

	if closed {
		return
	}
	for _, fn := range fns {
		fn(outcome)
	}
}
