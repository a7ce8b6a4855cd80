package notify

import (
	"fmt"

	"github.com/robertguss/sprintboard-go/internal/domain"
)

// Level classifies a toast for display
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Toast is the single user-facing message for one move attempt
type Toast struct {
	Level   Level
	Message string
}

// ToastFor maps a move outcome to its toast. Same-container drops get none.
func ToastFor(o domain.MoveOutcome) (Toast, bool) {
	switch o.Kind {
	case domain.OutcomeApplied:
		if o.Request.To.IsBacklog() {
			return Toast{Level: LevelSuccess, Message: "Issue moved to backlog successfully"}, true
		}
		return Toast{Level: LevelSuccess, Message: "Issue moved to sprint successfully"}, true

	case domain.OutcomeRejected:
		if o.IsNoop() {
			return Toast{}, false
		}
		return Toast{Level: LevelWarning, Message: fmt.Sprintf("Cannot move %s: %s", o.Request.Item.Title(), o.Reason)}, true

	case domain.OutcomeRolledBack:
		return Toast{Level: LevelError, Message: fmt.Sprintf("Move of %s was undone: %s", o.Request.Item.Title(), o.Reason)}, true
	}
	return Toast{}, false
}
