// Package store holds the in-memory, optimistically updated mirror of a
// project's containers. Rendering reads it; the move orchestrator and the
// reconciler are its only writers.
package store

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/robertguss/sprintboard-go/internal/domain"
)

var (
	// ErrItemNotInSource is returned when the item is not in the request's source container
	ErrItemNotInSource = errors.New("item not in source container")
	// ErrUnknownContainer is returned when a referenced sprint is not on the board
	ErrUnknownContainer = errors.New("unknown container")
)

// Listener is called with a copy of the board after every write
type Listener func(domain.BoardState)

// Snapshot is an opaque, deep copy of the store state
type Snapshot struct {
	state domain.BoardState
}

// State returns a copy of the captured board
func (s Snapshot) State() domain.BoardState {
	return s.state.Clone()
}

// Store is the optimistic mirror of one project's board
type Store struct {
	mu            sync.RWMutex
	state         domain.BoardState
	epoch         uint64
	defaultStatus string

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int
}

// New creates a store seeded with the given board. defaultStatus is the
// status an item receives when it leaves the backlog without an explicit one.
func New(initial domain.BoardState, defaultStatus string) *Store {
	if defaultStatus == "" {
		defaultStatus = domain.StatusTodo
	}
	return &Store{
		state:         initial.Clone(),
		defaultStatus: defaultStatus,
		listeners:     make(map[int]Listener),
	}
}

// State returns a read-only copy of the current board
func (s *Store) State() domain.BoardState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Epoch returns a counter that increases on every write
func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Snapshot captures the current state for later restoration
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{state: s.state.Clone()}
}

// Apply relocates the request's item from its source to its destination
func (s *Store) Apply(req domain.MoveRequest) error {
	_, _, err := s.apply(req, false)
	return err
}

// ApplyWithSnapshot captures the state and applies req under one lock, so
// no Replace can land between the two. It returns the pre-move snapshot and
// the item as it now sits in its destination.
func (s *Store) ApplyWithSnapshot(req domain.MoveRequest) (Snapshot, domain.WorkItem, error) {
	return s.apply(req, true)
}

func (s *Store) apply(req domain.MoveRequest, capture bool) (Snapshot, domain.WorkItem, error) {
	s.mu.Lock()

	var snap Snapshot
	if capture {
		snap = Snapshot{state: s.state.Clone()}
	}

	from := s.state.Items(req.From)
	to := s.state.Items(req.To)
	if from == nil {
		s.mu.Unlock()
		return Snapshot{}, domain.WorkItem{}, fmt.Errorf("%w: %s", ErrUnknownContainer, req.From)
	}
	if to == nil {
		s.mu.Unlock()
		return Snapshot{}, domain.WorkItem{}, fmt.Errorf("%w: %s", ErrUnknownContainer, req.To)
	}

	idx := slices.IndexFunc(*from, func(it domain.WorkItem) bool { return it.ID == req.Item.ID })
	if idx < 0 {
		s.mu.Unlock()
		return Snapshot{}, domain.WorkItem{}, fmt.Errorf("%w: %s", ErrItemNotInSource, req)
	}

	item := (*from)[idx]
	item.DisplayStatus = s.nextStatus(req, item.DisplayStatus)
	*from = slices.Delete(*from, idx, idx+1)
	*to = append(*to, item)
	s.epoch++

	state := s.state.Clone()
	s.mu.Unlock()

	s.notify(state)
	return snap, item, nil
}

// nextStatus keeps backlog membership and the backlog status in sync
func (s *Store) nextStatus(req domain.MoveRequest, current string) string {
	switch {
	case req.To.IsBacklog():
		return domain.StatusBacklog
	case req.NewStatus != "":
		return req.NewStatus
	case req.From.IsBacklog() && (current == domain.StatusBacklog || current == ""):
		return s.defaultStatus
	default:
		return current
	}
}

// Restore replaces the state wholesale with a prior snapshot
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	s.state = snap.state.Clone()
	s.epoch++
	state := s.state.Clone()
	s.mu.Unlock()

	s.notify(state)
}

// Replace installs authoritative state if no write happened since epoch was read.
// It reports whether the state was written.
func (s *Store) Replace(state domain.BoardState, epoch uint64) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	s.state = state.Clone()
	s.epoch++
	out := s.state.Clone()
	s.mu.Unlock()

	s.notify(out)
	return true
}

// Subscribe registers a listener and returns a function that removes it
func (s *Store) Subscribe(fn Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) notify(state domain.BoardState) {
	s.listenersMu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(state.Clone())
	}
}
