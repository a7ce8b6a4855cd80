// Package validator decides whether a proposed move is legal before any
// state is touched.
package validator

import (
	"context"
	"errors"
	"fmt"

	"github.com/robertguss/sprintboard-go/internal/domain"
)

// Rejection is returned when a move must not proceed
type Rejection struct {
	Reason string
	Err    error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("move rejected: %s: %v", r.Reason, r.Err)
	}
	return "move rejected: " + r.Reason
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// ReasonOf extracts the rejection reason from err, or returns "" if err is not a rejection
func ReasonOf(err error) string {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}

// Validate runs the local legality checks against the current board.
// Rules are applied in order: no-op, closed destination, then structural checks.
func Validate(req domain.MoveRequest, board *domain.BoardState) error {
	if req.IsNoop() {
		return &Rejection{Reason: domain.ReasonNoop}
	}

	if !req.To.IsBacklog() {
		target := board.Sprint(req.To.SprintID)
		if target != nil && target.State.IsClosed() {
			return &Rejection{Reason: domain.ReasonSprintClosed}
		}
		if target == nil {
			return &Rejection{Reason: domain.ReasonTargetNotFound}
		}
	}

	current, ok := board.FindContainerOf(req.Item.ID)
	if !ok || current != req.From {
		return &Rejection{Reason: domain.ReasonSourceMismatch}
	}

	return nil
}

// StatusReader fetches the authoritative lifecycle state of a sprint
type StatusReader interface {
	GetContainerStatus(ctx context.Context, sprintID string) (domain.LifecycleState, error)
}

// ValidateRemote re-checks the destination against a fresh status read.
// It only narrows the race window between drag start and persistence; the
// backend still has the final word when the mutation is issued.
func ValidateRemote(ctx context.Context, req domain.MoveRequest, reader StatusReader) error {
	if req.To.IsBacklog() {
		return nil
	}

	state, err := reader.GetContainerStatus(ctx, req.To.SprintID)
	if err != nil {
		return &Rejection{Reason: domain.ReasonTargetInvalid, Err: err}
	}
	if state.IsClosed() {
		return &Rejection{
			Reason: domain.ReasonTargetInvalid,
			Err:    fmt.Errorf("sprint %s is %s", req.To.SprintID, state),
		}
	}
	return nil
}
