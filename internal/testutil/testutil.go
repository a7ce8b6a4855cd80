// Package testutil provides test utilities and helpers for the sprintboard tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/robertguss/sprintboard-go/internal/config"
	"github.com/robertguss/sprintboard-go/internal/domain"
	"github.com/robertguss/sprintboard-go/internal/storage"
)

// TestProjectID is the project used by SampleBoard
const TestProjectID = "p1"

// NewTestConfig creates a Config with a temp data directory for testing.
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(CreateTempDir(t), "data")
	cfg.Database.DSN = cfg.DatabasePath()
	cfg.Board.ProjectID = TestProjectID
	cfg.NotificationsEnabled = false

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		t.Fatalf("failed to create data dir: %v", err)
	}

	return &cfg
}

// NewTestStorage creates an in-memory SQLite storage for testing.
// The storage is automatically closed when the test completes.
func NewTestStorage(t *testing.T) *storage.SQLStorage {
	t.Helper()

	s, err := storage.NewInMemoryStorage()
	if err != nil {
		t.Fatalf("failed to create in-memory storage: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// NewSeededStorage creates an in-memory storage holding SampleBoard.
func NewSeededStorage(t *testing.T) *storage.SQLStorage {
	t.Helper()

	s := NewTestStorage(t)
	project := storage.Project{ID: TestProjectID, Name: "Test Project"}
	if err := s.SaveBoard(context.Background(), project, SampleBoard()); err != nil {
		t.Fatalf("failed to seed storage: %v", err)
	}
	return s
}

// CreateTempDir creates a temporary directory for testing.
// The directory is automatically removed when the test completes.
func CreateTempDir(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "sprintboard-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	t.Cleanup(func() {
		os.RemoveAll(dir)
	})

	return dir
}

// CreateTempFileInDir creates a file with given content in the specified directory.
func CreateTempFileInDir(t *testing.T, dir, filename, content string) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}

	return path
}

// CreateTestItem creates a WorkItem with a title payload.
func CreateTestItem(id, status string) domain.WorkItem {
	return domain.WorkItem{
		ID:            id,
		DisplayStatus: status,
		Payload:       map[string]string{"title": "Test item " + id},
	}
}

// SampleBoard returns a board with one sprint in every lifecycle state:
//
//	backlog:        I1, I2
//	S1 (planning):  I3
//	S2 (active):    I4
//	S3 (completed): I5
//	S4 (cancelled): empty
func SampleBoard() domain.BoardState {
	return domain.BoardState{
		ProjectID: TestProjectID,
		Backlog: domain.Backlog{Items: []domain.WorkItem{
			CreateTestItem("I1", domain.StatusBacklog),
			CreateTestItem("I2", domain.StatusBacklog),
		}},
		Sprints: []domain.Sprint{
			{ID: "S1", Name: "Sprint 1", State: domain.SprintPlanning, Items: []domain.WorkItem{CreateTestItem("I3", domain.StatusTodo)}},
			{ID: "S2", Name: "Sprint 2", State: domain.SprintActive, Items: []domain.WorkItem{CreateTestItem("I4", "in-progress")}},
			{ID: "S3", Name: "Sprint 3", State: domain.SprintCompleted, Items: []domain.WorkItem{CreateTestItem("I5", "done")}},
			{ID: "S4", Name: "Sprint 4", State: domain.SprintCancelled, Items: []domain.WorkItem{}},
		},
	}
}

// ValidSeedYAML returns seed file content matching SampleBoard's shape.
func ValidSeedYAML() string {
	return `projects:
  - id: p1
    name: Test Project
    backlog:
      - id: I1
        key: TP-1
        title: First
      - id: I2
        key: TP-2
    sprints:
      - id: S1
        name: Sprint 1
        state: planning
        items:
          - id: I3
      - id: S2
        name: Sprint 2
        state: active
        items:
          - id: I4
            status: in-progress
`
}

// MalformedYAML returns malformed YAML content.
func MalformedYAML() string {
	return `projects
  missing: colon
  - invalid: structure
`
}
