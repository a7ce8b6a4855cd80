// Package messages defines the tea.Msg types exchanged between the board
// UI and its background collaborators.
package messages

import (
	"github.com/robertguss/sprintboard-go/internal/domain"
)

// BoardUpdatedMsg is sent whenever the optimistic store changes
type BoardUpdatedMsg struct {
	Board domain.BoardState
}

// MoveOutcomeMsg is sent once per submitted move
type MoveOutcomeMsg struct {
	Outcome domain.MoveOutcome
}

// StateChangedMsg is sent when the orchestrator changes state
type StateChangedMsg struct {
	State string
	Idle  bool
}

// NotifyFailedMsg is sent when a desktop notification could not be shown
// and the outcome falls back to the status bar
type NotifyFailedMsg struct {
	Outcome domain.MoveOutcome
	Err     error
}

// ClearToastMsg removes the status bar toast if it is still the given one
type ClearToastMsg struct {
	Seq int
}
