package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertguss/sprintboard-go/internal/domain"
	"github.com/robertguss/sprintboard-go/internal/metrics"
	"github.com/robertguss/sprintboard-go/internal/store"
)

func createTestBoard() domain.BoardState {
	return domain.BoardState{
		ProjectID: "p1",
		Backlog:   domain.Backlog{Items: []domain.WorkItem{{ID: "I1", DisplayStatus: domain.StatusBacklog}}},
		Sprints:   []domain.Sprint{{ID: "S1", State: domain.SprintActive}},
	}
}

func serverBoard() domain.BoardState {
	b := createTestBoard()
	b.Sprints = append(b.Sprints, domain.Sprint{ID: "S2", State: domain.SprintPlanning})
	return b
}

type fakeFetcher struct {
	mu      sync.Mutex
	board   domain.BoardState
	errs    []error // consumed one per call
	calls   int
	during  func() // runs inside the fetch
	fetched chan struct{}
}

func (f *fakeFetcher) RefetchContainers(_ context.Context, projectID string) (domain.BoardState, error) {
	f.mu.Lock()
	f.calls++
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	during := f.during
	board := f.board.Clone()
	f.mu.Unlock()

	if during != nil {
		during()
	}
	if f.fetched != nil {
		defer func() { f.fetched <- struct{}{} }()
	}
	if err != nil {
		return domain.BoardState{}, err
	}
	return board, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeGate struct {
	idle atomic.Bool
}

func (g *fakeGate) Idle() bool { return g.idle.Load() }

func newIdleGate() *fakeGate {
	g := &fakeGate{}
	g.idle.Store(true)
	return g
}

func TestReconciler_Reconcile(t *testing.T) {
	t.Run("installs authoritative state", func(t *testing.T) {
		s := store.New(createTestBoard(), "")
		f := &fakeFetcher{board: serverBoard()}
		reg := prometheus.NewRegistry()
		r := New(Options{ProjectID: "p1", Fetcher: f, Store: s, Metrics: metrics.New(reg), Logger: zerolog.Nop()})

		require.NoError(t, r.Reconcile(context.Background()))
		state := s.State()
		assert.NotNil(t, state.Sprint("S2"))
	})

	t.Run("ignores the gate", func(t *testing.T) {
		s := store.New(createTestBoard(), "")
		gate := &fakeGate{}
		r := New(Options{ProjectID: "p1", Fetcher: &fakeFetcher{board: serverBoard()}, Store: s, Gate: gate, Logger: zerolog.Nop()})

		require.NoError(t, r.Reconcile(context.Background()))
		state := s.State()
		assert.NotNil(t, state.Sprint("S2"))
	})

	t.Run("failure keeps last state and schedules retry", func(t *testing.T) {
		s := store.New(createTestBoard(), "")
		f := &fakeFetcher{board: serverBoard(), errs: []error{errors.New("503")}}
		r := New(Options{ProjectID: "p1", Fetcher: f, Store: s, Logger: zerolog.Nop()})

		err := r.Reconcile(context.Background())
		require.Error(t, err)
		state := s.State()
		assert.Nil(t, state.Sprint("S2"))
		assert.Len(t, r.retry, 1)
	})
}

func TestReconciler_Refresh(t *testing.T) {
	t.Run("skips while a move is in flight", func(t *testing.T) {
		s := store.New(createTestBoard(), "")
		f := &fakeFetcher{board: serverBoard()}
		r := New(Options{ProjectID: "p1", Fetcher: f, Store: s, Gate: &fakeGate{}, Logger: zerolog.Nop()})

		assert.ErrorIs(t, r.Refresh(context.Background()), ErrBusy)
		assert.Zero(t, f.Calls())
	})

	t.Run("discards when a move starts during the fetch", func(t *testing.T) {
		s := store.New(createTestBoard(), "")
		gate := newIdleGate()
		f := &fakeFetcher{board: serverBoard()}
		f.during = func() { gate.idle.Store(false) }
		r := New(Options{ProjectID: "p1", Fetcher: f, Store: s, Gate: gate, Logger: zerolog.Nop()})

		assert.ErrorIs(t, r.Refresh(context.Background()), ErrBusy)
		state := s.State()
		assert.Nil(t, state.Sprint("S2"))
	})

	t.Run("discards when the store changed during the fetch", func(t *testing.T) {
		s := store.New(createTestBoard(), "")
		f := &fakeFetcher{board: serverBoard()}
		f.during = func() {
			_ = s.Apply(domain.MoveRequest{Item: domain.WorkItem{ID: "I1"}, From: domain.BacklogRef, To: domain.SprintRef("S1")})
		}
		r := New(Options{ProjectID: "p1", Fetcher: f, Store: s, Gate: newIdleGate(), Logger: zerolog.Nop()})

		assert.ErrorIs(t, r.Refresh(context.Background()), ErrStale)
		state := s.State()
		ref, _ := state.FindContainerOf("I1")
		assert.Equal(t, domain.SprintRef("S1"), ref)
	})
}

func TestReconciler_Run(t *testing.T) {
	t.Run("serves triggers", func(t *testing.T) {
		s := store.New(createTestBoard(), "")
		f := &fakeFetcher{board: serverBoard(), fetched: make(chan struct{}, 4)}
		r := New(Options{ProjectID: "p1", Fetcher: f, Store: s, Gate: newIdleGate(), Logger: zerolog.Nop()})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go r.Run(ctx)

		r.Trigger()
		r.Trigger()
		select {
		case <-f.fetched:
		case <-time.After(2 * time.Second):
			t.Fatal("trigger was not served")
		}
		require.Eventually(t, func() bool {
			state := s.State()
			return state.Sprint("S2") != nil
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("retries failed post-move refresh", func(t *testing.T) {
		s := store.New(createTestBoard(), "")
		f := &fakeFetcher{board: serverBoard(), errs: []error{errors.New("down"), errors.New("still down")}}
		r := New(Options{
			ProjectID:     "p1",
			Fetcher:       f,
			Store:         s,
			Gate:          newIdleGate(),
			Logger:        zerolog.Nop(),
			RetryInterval: 5 * time.Millisecond,
			MaxRetries:    3,
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go r.Run(ctx)

		require.Error(t, r.Reconcile(ctx))
		require.Eventually(t, func() bool {
			state := s.State()
			return state.Sprint("S2") != nil
		}, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, 3, f.Calls())
	})

	t.Run("polls", func(t *testing.T) {
		s := store.New(createTestBoard(), "")
		f := &fakeFetcher{board: serverBoard()}
		r := New(Options{ProjectID: "p1", Fetcher: f, Store: s, Gate: newIdleGate(), Logger: zerolog.Nop(), PollInterval: 5 * time.Millisecond})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go r.Run(ctx)

		require.Eventually(t, func() bool { return f.Calls() >= 2 }, 2*time.Second, 5*time.Millisecond)
	})
}
