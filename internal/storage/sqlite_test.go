package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertguss/sprintboard-go/internal/domain"
)

func createTestBoard() domain.BoardState {
	return domain.BoardState{
		ProjectID: "p1",
		Backlog: domain.Backlog{Items: []domain.WorkItem{
			{ID: "I1", DisplayStatus: domain.StatusBacklog, Payload: map[string]string{"title": "Write docs"}},
			{ID: "I3", DisplayStatus: domain.StatusBacklog},
		}},
		Sprints: []domain.Sprint{
			{ID: "S1", Name: "Sprint 1", State: domain.SprintPlanning},
			{ID: "S2", Name: "Sprint 2", State: domain.SprintActive, Items: []domain.WorkItem{
				{ID: "I2", DisplayStatus: "in-progress"},
			}},
			{ID: "S3", Name: "Sprint 3", State: domain.SprintCompleted},
		},
	}
}

func newSeededStorage(t *testing.T) *SQLStorage {
	t.Helper()
	s, err := NewInMemoryStorage()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.SaveBoard(context.Background(), Project{ID: "p1", Name: "Project One"}, createTestBoard()))
	return s
}

func TestNewSQLiteStorage(t *testing.T) {
	t.Run("creates in-memory storage", func(t *testing.T) {
		s, err := NewSQLiteStorage(":memory:")
		require.NoError(t, err)
		require.NotNil(t, s)
		defer s.Close()
	})

	t.Run("creates file-based storage", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "sprintboard.db")

		s, err := NewSQLiteStorage(dbPath)
		require.NoError(t, err)
		require.NotNil(t, s)
		defer s.Close()
	})
}

func TestOpen(t *testing.T) {
	t.Run("defaults to sqlite", func(t *testing.T) {
		s, err := Open("", ":memory:")
		require.NoError(t, err)
		defer s.Close()
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		_, err := Open("oracle", "dsn")
		assert.Error(t, err)
	})
}

func TestSQLStorage_Rebind(t *testing.T) {
	pg := &SQLStorage{driver: DriverPostgres}
	assert.Equal(t, "SELECT * FROM items WHERE id = $1 AND status = $2", pg.rebind("SELECT * FROM items WHERE id = ? AND status = ?"))

	lite := &SQLStorage{driver: DriverSQLite}
	assert.Equal(t, "WHERE id = ?", lite.rebind("WHERE id = ?"))
}

func TestSQLStorage_SaveAndLoadBoard(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips the board", func(t *testing.T) {
		s := newSeededStorage(t)

		board, err := s.LoadBoard(ctx, "p1")
		require.NoError(t, err)
		assert.True(t, createTestBoard().Equal(board))
		item, _, ok := board.Item("I1")
		require.True(t, ok)
		assert.Equal(t, "Write docs", item.Payload["title"])
		assert.Equal(t, "Sprint 2", board.Sprint("S2").Name)
	})

	t.Run("save is an upsert", func(t *testing.T) {
		s := newSeededStorage(t)
		board := createTestBoard()
		board.Sprints[0].State = domain.SprintActive
		board.Sprints[0].Items = []domain.WorkItem{{ID: "I4", DisplayStatus: domain.StatusTodo}}
		require.NoError(t, s.SaveBoard(ctx, Project{ID: "p1", Name: "Renamed"}, board))

		loaded, err := s.LoadBoard(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, domain.SprintActive, loaded.Sprint("S1").State)
		assert.Equal(t, 4, loaded.ItemCount())
		ref, ok := loaded.FindContainerOf("I4")
		require.True(t, ok)
		assert.Equal(t, domain.SprintRef("S1"), ref)
		assert.NoError(t, loaded.CheckContainment())

		projects, err := s.ListProjects(ctx)
		require.NoError(t, err)
		require.Len(t, projects, 1)
		assert.Equal(t, "Renamed", projects[0].Name)
	})

	t.Run("unknown project", func(t *testing.T) {
		s := newSeededStorage(t)
		_, err := s.LoadBoard(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("requires a project id", func(t *testing.T) {
		s, err := NewInMemoryStorage()
		require.NoError(t, err)
		defer s.Close()
		assert.Error(t, s.SaveBoard(ctx, Project{}, domain.BoardState{}))
	})
}

func TestSQLStorage_SprintState(t *testing.T) {
	ctx := context.Background()
	s := newSeededStorage(t)

	state, err := s.SprintState(ctx, "S3")
	require.NoError(t, err)
	assert.Equal(t, domain.SprintCompleted, state)

	_, err = s.SprintState(ctx, "S9")
	assert.ErrorIs(t, err, ErrNotFound)

	m, err := s.SetSprintState(ctx, "S1", domain.SprintCancelled)
	require.NoError(t, err)
	assert.Equal(t, OpSprintState, m.Op)
	assert.Equal(t, "p1", m.ProjectID)

	state, err = s.SprintState(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, domain.SprintCancelled, state)

	_, err = s.SetSprintState(ctx, "S1", "archived")
	assert.Error(t, err)
}

func TestSQLStorage_AddItemToSprint(t *testing.T) {
	ctx := context.Background()

	t.Run("backlog item becomes todo", func(t *testing.T) {
		s := newSeededStorage(t)
		m, err := s.AddItemToSprint(ctx, "S1", "I1", "")
		require.NoError(t, err)
		assert.Equal(t, &Mutation{ProjectID: "p1", SprintID: "S1", ItemID: "I1", Op: OpItemAdded}, m)

		board, err := s.LoadBoard(ctx, "p1")
		require.NoError(t, err)
		item, ref, ok := board.Item("I1")
		require.True(t, ok)
		assert.Equal(t, domain.SprintRef("S1"), ref)
		assert.Equal(t, domain.StatusTodo, item.DisplayStatus)
	})

	t.Run("sprint to sprint keeps status", func(t *testing.T) {
		s := newSeededStorage(t)
		_, err := s.RemoveItemFromSprint(ctx, "S2", "I2", true)
		require.NoError(t, err)
		_, err = s.AddItemToSprint(ctx, "S1", "I2", "")
		require.NoError(t, err)

		board, err := s.LoadBoard(ctx, "p1")
		require.NoError(t, err)
		item, ref, _ := board.Item("I2")
		assert.Equal(t, domain.SprintRef("S1"), ref)
		assert.Equal(t, "in-progress", item.DisplayStatus)
	})

	t.Run("explicit status wins", func(t *testing.T) {
		s := newSeededStorage(t)
		_, err := s.AddItemToSprint(ctx, "S1", "I1", "ready")
		require.NoError(t, err)
		_, err = s.RemoveItemFromSprint(ctx, "S2", "I2", true)
		require.NoError(t, err)
		_, err = s.AddItemToSprint(ctx, "S1", "I2", "review")
		require.NoError(t, err)

		board, err := s.LoadBoard(ctx, "p1")
		require.NoError(t, err)
		item, _, _ := board.Item("I1")
		assert.Equal(t, "ready", item.DisplayStatus)
		item, _, _ = board.Item("I2")
		assert.Equal(t, "review", item.DisplayStatus)
	})

	t.Run("closed sprint is refused", func(t *testing.T) {
		s := newSeededStorage(t)
		_, err := s.AddItemToSprint(ctx, "S3", "I1", "")
		assert.ErrorIs(t, err, ErrSprintClosed)

		board, err := s.LoadBoard(ctx, "p1")
		require.NoError(t, err)
		_, ref, _ := board.Item("I1")
		assert.True(t, ref.IsBacklog())
	})

	t.Run("unknown sprint or item", func(t *testing.T) {
		s := newSeededStorage(t)
		_, err := s.AddItemToSprint(ctx, "S9", "I1", "")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.AddItemToSprint(ctx, "S1", "I9", "")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSQLStorage_RemoveItemFromSprint(t *testing.T) {
	ctx := context.Background()

	t.Run("resets status by default", func(t *testing.T) {
		s := newSeededStorage(t)
		m, err := s.RemoveItemFromSprint(ctx, "S2", "I2", false)
		require.NoError(t, err)
		assert.Equal(t, OpItemRemoved, m.Op)

		board, err := s.LoadBoard(ctx, "p1")
		require.NoError(t, err)
		item, ref, _ := board.Item("I2")
		assert.True(t, ref.IsBacklog())
		assert.Equal(t, domain.StatusBacklog, item.DisplayStatus)
	})

	t.Run("keeps status when asked", func(t *testing.T) {
		s := newSeededStorage(t)
		_, err := s.RemoveItemFromSprint(ctx, "S2", "I2", true)
		require.NoError(t, err)

		board, err := s.LoadBoard(ctx, "p1")
		require.NoError(t, err)
		item, _, _ := board.Item("I2")
		assert.Equal(t, "in-progress", item.DisplayStatus)
	})

	t.Run("item not in sprint", func(t *testing.T) {
		s := newSeededStorage(t)
		_, err := s.RemoveItemFromSprint(ctx, "S1", "I2", false)
		assert.ErrorIs(t, err, ErrItemNotInSprint)
		_, err = s.RemoveItemFromSprint(ctx, "S1", "I1", false)
		assert.ErrorIs(t, err, ErrItemNotInSprint)
	})
}

func TestSQLStorage_MoveRecords(t *testing.T) {
	ctx := context.Background()
	s := newSeededStorage(t)
	base := time.Now().UTC().Add(-time.Hour)

	records := []*MoveRecord{
		{MoveID: "m1", ProjectID: "p1", ItemID: "I1", From: "backlog", To: "sprint:S1", Outcome: domain.OutcomeApplied, Duration: 100 * time.Millisecond, CreatedAt: base},
		{MoveID: "m2", ProjectID: "p1", ItemID: "I2", From: "sprint:S2", To: "sprint:S3", Outcome: domain.OutcomeRejected, Reason: domain.ReasonSprintClosed, CreatedAt: base.Add(time.Minute)},
		{MoveID: "m3", ProjectID: "p1", ItemID: "I2", From: "sprint:S2", To: "sprint:S1", Outcome: domain.OutcomeRolledBack, Reason: "remote add failed", Error: "connection refused", Duration: 300 * time.Millisecond, CreatedAt: base.Add(2 * time.Minute)},
		{MoveID: "m4", ProjectID: "p2", ItemID: "X1", From: "backlog", To: "sprint:T1", Outcome: domain.OutcomeApplied, CreatedAt: base},
	}
	for _, rec := range records {
		require.NoError(t, s.SaveMoveRecord(ctx, rec))
		assert.NotEmpty(t, rec.ID)
	}

	t.Run("lists newest first", func(t *testing.T) {
		got, err := s.ListMoveRecords(ctx, &MoveFilter{ProjectID: "p1"})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "m3", got[0].MoveID)
		assert.Equal(t, "connection refused", got[0].Error)
		assert.Equal(t, 300*time.Millisecond, got[0].Duration)
	})

	t.Run("filters", func(t *testing.T) {
		got, err := s.ListMoveRecords(ctx, &MoveFilter{ItemID: "I2", Outcome: domain.OutcomeRejected})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, domain.ReasonSprintClosed, got[0].Reason)

		since := base.Add(30 * time.Second)
		count, err := s.CountMoveRecords(ctx, &MoveFilter{Since: &since})
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		count, err = s.CountMoveRecords(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 4, count)
	})

	t.Run("pagination", func(t *testing.T) {
		got, err := s.ListMoveRecords(ctx, &MoveFilter{ProjectID: "p1", Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "m2", got[0].MoveID)
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := s.GetMoveStats(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Total)
		assert.Equal(t, 1, stats.Applied)
		assert.Equal(t, 1, stats.RolledBack)
		assert.Equal(t, 1, stats.Rejected)
		assert.InDelta(t, 33.33, stats.SuccessRate, 0.01)
		assert.Equal(t, 1, stats.ByReason[domain.ReasonSprintClosed])
		assert.Len(t, stats.Recent, 3)
	})

	t.Run("stats for empty project", func(t *testing.T) {
		stats, err := s.GetMoveStats(ctx, "empty")
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Total)
		assert.Zero(t, stats.SuccessRate)
		assert.Empty(t, stats.Recent)
	})
}
