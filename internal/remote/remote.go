// Package remote is the boundary between the move engine and the backend
// that owns sprint membership.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robertguss/sprintboard-go/internal/domain"
	"github.com/robertguss/sprintboard-go/internal/storage"
)

var (
	// ErrNotFound is returned when the sprint or item does not exist on the backend
	ErrNotFound = errors.New("not found")
	// ErrClosed is returned when the backend refuses to add items to a closed sprint
	ErrClosed = errors.New("sprint is closed")
	// ErrNotInContainer is returned when removing an item from a sprint that does not hold it
	ErrNotInContainer = errors.New("item not in container")
)

// Remote operation names, used in errors, logs and metrics
const (
	OpGetStatus  = "get_status"
	OpAddItem    = "add_item"
	OpRemove     = "remove_item"
	OpRefetch    = "refetch"
	OpRecordMove = "record_move"
)

// Client is the command API the move engine needs from the backend
type Client interface {
	GetContainerStatus(ctx context.Context, sprintID string) (domain.LifecycleState, error)
	AddItemToContainer(ctx context.Context, sprintID, itemID, status string) error
	RemoveItemFromContainer(ctx context.Context, sprintID, itemID string, keepStatus bool) error
	RefetchContainers(ctx context.Context, projectID string) (domain.BoardState, error)
}

// Error describes a failed remote call
type Error struct {
	Op         string
	StatusCode int // HTTP status, 0 for transport or in-process failures
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	case e.Message != "":
		return e.Op + ": " + e.Message
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusResponse is the wire form of a sprint status read
type StatusResponse struct {
	SprintID       string                `json:"sprint_id"`
	LifecycleState domain.LifecycleState `json:"lifecycle_state"`
}

// ErrorResponse is the wire form of an API error
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Error codes carried in ErrorResponse.Code
const (
	CodeNotFound       = "not_found"
	CodeSprintClosed   = "sprint_closed"
	CodeNotInContainer = "not_in_container"
)

// Change event types sent over the websocket feed
const (
	EventContainerChanged = "container_changed"
	EventMoveRecorded     = "move_recorded"
)

// ChangeEvent announces a server-side container mutation
type ChangeEvent struct {
	ProjectID string `json:"project_id"`
	SprintID  string `json:"sprint_id,omitempty"`
	ItemID    string `json:"item_id,omitempty"`
	Op        string `json:"op"`
}

// MoveRecord is the wire form of a move history entry
type MoveRecord struct {
	ID         string             `json:"id,omitempty"`
	MoveID     string             `json:"move_id"`
	ProjectID  string             `json:"project_id"`
	ItemID     string             `json:"item_id"`
	From       string             `json:"from"`
	To         string             `json:"to"`
	Outcome    domain.OutcomeKind `json:"outcome"`
	Reason     string             `json:"reason,omitempty"`
	Error      string             `json:"error,omitempty"`
	DurationMS int64              `json:"duration_ms"`
	CreatedAt  time.Time          `json:"created_at"`
}

// NewMoveRecord converts a stored record to its wire form
func NewMoveRecord(rec *storage.MoveRecord) MoveRecord {
	return MoveRecord{
		ID:         rec.ID,
		MoveID:     rec.MoveID,
		ProjectID:  rec.ProjectID,
		ItemID:     rec.ItemID,
		From:       rec.From,
		To:         rec.To,
		Outcome:    rec.Outcome,
		Reason:     rec.Reason,
		Error:      rec.Error,
		DurationMS: rec.Duration.Milliseconds(),
		CreatedAt:  rec.CreatedAt,
	}
}

// Storage converts the wire form back to a storage record
func (m MoveRecord) Storage() *storage.MoveRecord {
	return &storage.MoveRecord{
		ID:        m.ID,
		MoveID:    m.MoveID,
		ProjectID: m.ProjectID,
		ItemID:    m.ItemID,
		From:      m.From,
		To:        m.To,
		Outcome:   m.Outcome,
		Reason:    m.Reason,
		Error:     m.Error,
		Duration:  time.Duration(m.DurationMS) * time.Millisecond,
		CreatedAt: m.CreatedAt,
	}
}
