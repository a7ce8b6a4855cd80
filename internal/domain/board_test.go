package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestBoard() BoardState {
	return BoardState{
		ProjectID: "p1",
		Backlog: Backlog{Items: []WorkItem{
			{ID: "I1", DisplayStatus: StatusBacklog, Payload: map[string]string{"title": "Login page"}},
		}},
		Sprints: []Sprint{
			{ID: "S1", Name: "Sprint 1", State: SprintActive, Items: []WorkItem{
				{ID: "I2", DisplayStatus: "in-progress"},
			}},
			{ID: "S2", Name: "Sprint 2", State: SprintCompleted},
		},
	}
}

func TestLifecycleState_IsClosed(t *testing.T) {
	tests := []struct {
		state    LifecycleState
		expected bool
	}{
		{SprintPlanning, false},
		{SprintActive, false},
		{SprintCompleted, true},
		{SprintCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.IsClosed())
			assert.True(t, tt.state.IsValid())
		})
	}

	assert.False(t, LifecycleState("archived").IsValid())
}

func TestContainerRef(t *testing.T) {
	assert.True(t, BacklogRef.IsBacklog())
	assert.False(t, SprintRef("S1").IsBacklog())
	assert.Equal(t, "backlog", BacklogRef.String())
	assert.Equal(t, "sprint:S1", SprintRef("S1").String())
	assert.Equal(t, SprintRef("S1"), SprintRef("S1"))
}

func TestBoardState_FindContainerOf(t *testing.T) {
	board := createTestBoard()

	t.Run("finds backlog item", func(t *testing.T) {
		ref, ok := board.FindContainerOf("I1")
		require.True(t, ok)
		assert.True(t, ref.IsBacklog())
	})

	t.Run("finds sprint item", func(t *testing.T) {
		ref, ok := board.FindContainerOf("I2")
		require.True(t, ok)
		assert.Equal(t, SprintRef("S1"), ref)
	})

	t.Run("unknown item", func(t *testing.T) {
		_, ok := board.FindContainerOf("nope")
		assert.False(t, ok)
	})
}

func TestBoardState_Clone(t *testing.T) {
	board := createTestBoard()
	clone := board.Clone()

	require.True(t, board.Equal(clone))

	clone.Sprints[0].Items[0].DisplayStatus = "done"
	clone.Backlog.Items[0].Payload["title"] = "changed"
	clone.Backlog.Items = append(clone.Backlog.Items, WorkItem{ID: "I9"})

	assert.Equal(t, "in-progress", board.Sprints[0].Items[0].DisplayStatus)
	assert.Equal(t, "Login page", board.Backlog.Items[0].Payload["title"])
	assert.Len(t, board.Backlog.Items, 1)
	assert.False(t, board.Equal(clone))
}

func TestBoardState_CheckContainment(t *testing.T) {
	board := createTestBoard()
	assert.NoError(t, board.CheckContainment())

	board.Sprints[1].Items = append(board.Sprints[1].Items, WorkItem{ID: "I1"})
	err := board.CheckContainment()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "I1")
}

func TestBoardState_Items(t *testing.T) {
	board := createTestBoard()

	assert.Len(t, *board.Items(BacklogRef), 1)
	assert.Len(t, *board.Items(SprintRef("S1")), 1)
	assert.Nil(t, board.Items(SprintRef("missing")))
	assert.Equal(t, 2, board.ItemCount())

	item, ref, ok := board.Item("I2")
	require.True(t, ok)
	assert.Equal(t, "I2", item.Title())
	assert.Equal(t, SprintRef("S1"), ref)
}

func TestBoardState_QueriesOnReturnedValue(t *testing.T) {
	ref, ok := createTestBoard().FindContainerOf("I2")
	require.True(t, ok)
	assert.Equal(t, SprintRef("S1"), ref)

	_, ref, ok = createTestBoard().Item("I1")
	require.True(t, ok)
	assert.True(t, ref.IsBacklog())

	assert.Equal(t, 2, createTestBoard().ItemCount())
	assert.NoError(t, createTestBoard().CheckContainment())
}

func TestMoveRequest_Kind(t *testing.T) {
	item := WorkItem{ID: "I1"}
	tests := []struct {
		name     string
		from, to ContainerRef
		expected MoveKind
	}{
		{"backlog to backlog", BacklogRef, BacklogRef, MoveNoop},
		{"same sprint", SprintRef("S1"), SprintRef("S1"), MoveNoop},
		{"backlog to sprint", BacklogRef, SprintRef("S1"), MoveBacklogToSprint},
		{"sprint to backlog", SprintRef("S1"), BacklogRef, MoveSprintToBacklog},
		{"sprint to sprint", SprintRef("S1"), SprintRef("S2"), MoveSprintToSprint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := MoveRequest{Item: item, From: tt.from, To: tt.to}
			assert.Equal(t, tt.expected, req.Kind())
			assert.Equal(t, tt.expected == MoveNoop, req.IsNoop())
		})
	}
}

func TestMoveOutcome(t *testing.T) {
	req := MoveRequest{Item: WorkItem{ID: "I1"}}

	assert.True(t, Applied(req).Succeeded())
	assert.True(t, Rejected(req, ReasonNoop).IsNoop())
	assert.False(t, Rejected(req, ReasonSprintClosed).IsNoop())
	assert.Equal(t, "rejected(target sprint closed)", Rejected(req, ReasonSprintClosed).String())
	assert.Equal(t, "applied", Applied(req).String())
}
