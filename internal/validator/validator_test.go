package validator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertguss/sprintboard-go/internal/domain"
)

func createTestBoard() *domain.BoardState {
	return &domain.BoardState{
		ProjectID: "p1",
		Backlog:   domain.Backlog{Items: []domain.WorkItem{{ID: "I1", DisplayStatus: domain.StatusBacklog}}},
		Sprints: []domain.Sprint{
			{ID: "S1", State: domain.SprintPlanning},
			{ID: "S2", State: domain.SprintActive, Items: []domain.WorkItem{{ID: "I2", DisplayStatus: "todo"}}},
			{ID: "S3", State: domain.SprintCompleted},
			{ID: "S4", State: domain.SprintCancelled},
		},
	}
}

type fakeStatusReader struct {
	states map[string]domain.LifecycleState
	err    error
	calls  int
}

func (f *fakeStatusReader) GetContainerStatus(_ context.Context, sprintID string) (domain.LifecycleState, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.states[sprintID], nil
}

func TestValidate(t *testing.T) {
	i1 := domain.WorkItem{ID: "I1"}
	i2 := domain.WorkItem{ID: "I2"}

	tests := []struct {
		name   string
		req    domain.MoveRequest
		reason string
	}{
		{
			name:   "backlog to backlog is noop",
			req:    domain.MoveRequest{Item: i1, From: domain.BacklogRef, To: domain.BacklogRef},
			reason: domain.ReasonNoop,
		},
		{
			name:   "same sprint is noop",
			req:    domain.MoveRequest{Item: i2, From: domain.SprintRef("S2"), To: domain.SprintRef("S2")},
			reason: domain.ReasonNoop,
		},
		{
			name:   "completed sprint is closed",
			req:    domain.MoveRequest{Item: i1, From: domain.BacklogRef, To: domain.SprintRef("S3")},
			reason: domain.ReasonSprintClosed,
		},
		{
			name:   "cancelled sprint is closed",
			req:    domain.MoveRequest{Item: i2, From: domain.SprintRef("S2"), To: domain.SprintRef("S4")},
			reason: domain.ReasonSprintClosed,
		},
		{
			name:   "noop wins over closed target",
			req:    domain.MoveRequest{Item: i1, From: domain.SprintRef("S3"), To: domain.SprintRef("S3")},
			reason: domain.ReasonNoop,
		},
		{
			name:   "unknown target",
			req:    domain.MoveRequest{Item: i1, From: domain.BacklogRef, To: domain.SprintRef("S9")},
			reason: domain.ReasonTargetNotFound,
		},
		{
			name:   "stale source",
			req:    domain.MoveRequest{Item: i1, From: domain.SprintRef("S2"), To: domain.SprintRef("S1")},
			reason: domain.ReasonSourceMismatch,
		},
		{
			name: "backlog to planning sprint",
			req:  domain.MoveRequest{Item: i1, From: domain.BacklogRef, To: domain.SprintRef("S1")},
		},
		{
			name: "sprint to backlog",
			req:  domain.MoveRequest{Item: i2, From: domain.SprintRef("S2"), To: domain.BacklogRef},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.req, createTestBoard())
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.reason, ReasonOf(err))
		})
	}
}

func TestValidateRemote(t *testing.T) {
	req := domain.MoveRequest{Item: domain.WorkItem{ID: "I1"}, From: domain.BacklogRef, To: domain.SprintRef("S1")}

	t.Run("open sprint passes", func(t *testing.T) {
		reader := &fakeStatusReader{states: map[string]domain.LifecycleState{"S1": domain.SprintActive}}
		assert.NoError(t, ValidateRemote(context.Background(), req, reader))
		assert.Equal(t, 1, reader.calls)
	})

	t.Run("sprint closed since drag start", func(t *testing.T) {
		reader := &fakeStatusReader{states: map[string]domain.LifecycleState{"S1": domain.SprintCompleted}}
		err := ValidateRemote(context.Background(), req, reader)
		assert.Equal(t, domain.ReasonTargetInvalid, ReasonOf(err))
	})

	t.Run("status read failure", func(t *testing.T) {
		readErr := errors.New("connection refused")
		reader := &fakeStatusReader{err: readErr}
		err := ValidateRemote(context.Background(), req, reader)
		assert.Equal(t, domain.ReasonTargetInvalid, ReasonOf(err))
		assert.ErrorIs(t, err, readErr)
	})

	t.Run("backlog destination skips the read", func(t *testing.T) {
		reader := &fakeStatusReader{}
		toBacklog := domain.MoveRequest{Item: domain.WorkItem{ID: "I2"}, From: domain.SprintRef("S2"), To: domain.BacklogRef}
		assert.NoError(t, ValidateRemote(context.Background(), toBacklog, reader))
		assert.Equal(t, 0, reader.calls)
	})
}

func TestReasonOf(t *testing.T) {
	assert.Equal(t, "", ReasonOf(nil))
	assert.Equal(t, "", ReasonOf(errors.New("plain")))
	assert.Equal(t, domain.ReasonNoop, ReasonOf(&Rejection{Reason: domain.ReasonNoop}))
}
