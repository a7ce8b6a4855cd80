package storage

import (
	"context"
	"errors"
	"time"

	"github.com/robertguss/sprintboard-go/internal/domain"
)

var (
	// ErrNotFound is returned when a project, sprint or item does not exist
	ErrNotFound = errors.New("not found")
	// ErrSprintClosed is returned when adding items to a completed or cancelled sprint
	ErrSprintClosed = errors.New("sprint is closed")
	// ErrItemNotInSprint is returned when removing an item from a sprint that does not hold it
	ErrItemNotInSprint = errors.New("item not in sprint")
)

// Project represents a stored project
type Project struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// MoveRecord represents one recorded move attempt
type MoveRecord struct {
	ID        string
	MoveID    string
	ProjectID string
	ItemID    string
	From      string
	To        string
	Outcome   domain.OutcomeKind
	Reason    string
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
}

// MoveFilter provides filtering options for listing move records
type MoveFilter struct {
	ProjectID string             // Filter by project
	ItemID    string             // Filter by item (exact match)
	Outcome   domain.OutcomeKind // Filter by outcome
	Since     *time.Time         // Filter by creation time
	Limit     int                // Max results (default 100)
	Offset    int                // Pagination offset
}

// MoveStats represents aggregate move statistics for a project
type MoveStats struct {
	Total       int
	Applied     int
	RolledBack  int
	Rejected    int
	SuccessRate float64
	AvgDuration time.Duration
	ByReason    map[string]int
	Recent      []*MoveRecord
}

// Mutation describes a server-side container change, used for change broadcasts
type Mutation struct {
	ProjectID string
	SprintID  string
	ItemID    string
	Op        string
}

// Mutation operations
const (
	OpItemAdded    = "item_added"
	OpItemRemoved  = "item_removed"
	OpSprintState  = "sprint_state"
	OpBoardChanged = "board_changed"
)

// Storage defines the interface for persistence operations
type Storage interface {
	// Lifecycle
	Close() error

	// Boards
	SaveBoard(ctx context.Context, project Project, board domain.BoardState) error
	LoadBoard(ctx context.Context, projectID string) (domain.BoardState, error)
	ListProjects(ctx context.Context) ([]Project, error)

	// Sprint membership
	SprintState(ctx context.Context, sprintID string) (domain.LifecycleState, error)
	SetSprintState(ctx context.Context, sprintID string, state domain.LifecycleState) (*Mutation, error)
	AddItemToSprint(ctx context.Context, sprintID, itemID, status string) (*Mutation, error)
	RemoveItemFromSprint(ctx context.Context, sprintID, itemID string, keepStatus bool) (*Mutation, error)

	// Move history
	SaveMoveRecord(ctx context.Context, rec *MoveRecord) error
	ListMoveRecords(ctx context.Context, filter *MoveFilter) ([]*MoveRecord, error)
	CountMoveRecords(ctx context.Context, filter *MoveFilter) (int, error)
	GetMoveStats(ctx context.Context, projectID string) (*MoveStats, error)
}
