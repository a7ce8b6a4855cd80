package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/robertguss/sprintboard-go/internal/domain"
	"github.com/robertguss/sprintboard-go/internal/remote"
	"github.com/robertguss/sprintboard-go/internal/storage"
)

// fakeBackend is an in-memory remote.Client that keeps its own board
type fakeBackend struct {
	mu     sync.Mutex
	server domain.BoardState
	calls  []string

	statusOverride map[string]domain.LifecycleState
	statusErr      error
	addErr         error
	removeErr      error
	refetchErr     error

	// when set, AddItemToContainer signals addStarted and waits for release
	addStarted chan struct{}
	release    chan struct{}
}

func newFakeBackend(board domain.BoardState) *fakeBackend {
	return &fakeBackend{server: board.Clone()}
}

func (f *fakeBackend) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeBackend) Server() domain.BoardState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.server.Clone()
}

func (f *fakeBackend) GetContainerStatus(_ context.Context, sprintID string) (domain.LifecycleState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("status " + sprintID)

	if f.statusErr != nil {
		return "", f.statusErr
	}
	if s, ok := f.statusOverride[sprintID]; ok {
		return s, nil
	}
	sp := f.server.Sprint(sprintID)
	if sp == nil {
		return "", &remote.Error{Op: remote.OpGetStatus, Err: remote.ErrNotFound}
	}
	return sp.State, nil
}

func (f *fakeBackend) AddItemToContainer(_ context.Context, sprintID, itemID, status string) error {
	if f.addStarted != nil {
		f.addStarted <- struct{}{}
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("add %s %s", sprintID, itemID))

	if f.addErr != nil {
		return f.addErr
	}
	sp := f.server.Sprint(sprintID)
	if sp == nil {
		return &remote.Error{Op: remote.OpAddItem, Err: remote.ErrNotFound}
	}
	if sp.State.IsClosed() {
		return &remote.Error{Op: remote.OpAddItem, Message: "sprint is closed", Err: remote.ErrClosed}
	}
	item, ok := f.take(itemID)
	if !ok {
		return &remote.Error{Op: remote.OpAddItem, Err: remote.ErrNotFound}
	}
	switch {
	case status != "":
		item.DisplayStatus = status
	case item.DisplayStatus == domain.StatusBacklog:
		item.DisplayStatus = domain.StatusTodo
	}
	sp = f.server.Sprint(sprintID)
	sp.Items = append(sp.Items, item)
	return nil
}

func (f *fakeBackend) RemoveItemFromContainer(_ context.Context, sprintID, itemID string, keepStatus bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("remove %s %s keep=%t", sprintID, itemID, keepStatus))

	if f.removeErr != nil {
		return f.removeErr
	}
	if ref, ok := f.server.FindContainerOf(itemID); !ok || ref != domain.SprintRef(sprintID) {
		return &remote.Error{Op: remote.OpRemove, Err: remote.ErrNotInContainer}
	}
	item, _ := f.take(itemID)
	if !keepStatus {
		item.DisplayStatus = domain.StatusBacklog
	}
	f.server.Backlog.Items = append(f.server.Backlog.Items, item)
	return nil
}

func (f *fakeBackend) RefetchContainers(_ context.Context, projectID string) (domain.BoardState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("refetch " + projectID)

	if f.refetchErr != nil {
		return domain.BoardState{}, f.refetchErr
	}
	return f.server.Clone(), nil
}

func (f *fakeBackend) take(itemID string) (domain.WorkItem, bool) {
	ref, ok := f.server.FindContainerOf(itemID)
	if !ok {
		return domain.WorkItem{}, false
	}
	items := f.server.Items(ref)
	idx := slices.IndexFunc(*items, func(it domain.WorkItem) bool { return it.ID == itemID })
	item := (*items)[idx]
	*items = slices.Delete(*items, idx, idx+1)
	return item, true
}

// fakeRecorder collects move records
type fakeRecorder struct {
	mu      sync.Mutex
	records []*storage.MoveRecord
}

func (r *fakeRecorder) SaveMoveRecord(_ context.Context, rec *storage.MoveRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeRecorder) Records() []*storage.MoveRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.records)
}
