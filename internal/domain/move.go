package domain

import "fmt"

// MoveRequest asks for an item to be relocated between two containers
type MoveRequest struct {
	Item      WorkItem
	From      ContainerRef
	To        ContainerRef
	NewStatus string // optional status for the item once it leaves the backlog
}

// IsNoop returns true if the source and destination are the same container
func (r MoveRequest) IsNoop() bool {
	return r.From == r.To
}

// Kind classifies the request by the remote calls it implies
func (r MoveRequest) Kind() MoveKind {
	switch {
	case r.IsNoop():
		return MoveNoop
	case r.From.IsBacklog():
		return MoveBacklogToSprint
	case r.To.IsBacklog():
		return MoveSprintToBacklog
	default:
		return MoveSprintToSprint
	}
}

func (r MoveRequest) String() string {
	return fmt.Sprintf("%s: %s -> %s", r.Item.ID, r.From, r.To)
}

// MoveKind names the container combination of a move
type MoveKind string

const (
	MoveNoop            MoveKind = "noop"
	MoveBacklogToSprint MoveKind = "backlog_to_sprint"
	MoveSprintToBacklog MoveKind = "sprint_to_backlog"
	MoveSprintToSprint  MoveKind = "sprint_to_sprint"
)

// OutcomeKind tags the result of a move attempt
type OutcomeKind string

const (
	OutcomeApplied    OutcomeKind = "applied"
	OutcomeRolledBack OutcomeKind = "rolled_back"
	OutcomeRejected   OutcomeKind = "rejected"
)

// Rejection and rollback reasons
const (
	ReasonNoop           = "noop"
	ReasonSprintClosed   = "target sprint closed"
	ReasonTargetInvalid  = "target became invalid"
	ReasonTargetNotFound = "target not found"
	ReasonSourceMismatch = "source mismatch"
	ReasonBusy           = "move in progress, try again"
	ReasonCancelled      = "cancelled"
	ReasonClosed         = "board closed"
)

// MoveOutcome is the result of one SubmitMove call
type MoveOutcome struct {
	MoveID  string
	Kind    OutcomeKind
	Reason  string
	Err     error // underlying remote error for rolled back moves
	Request MoveRequest
}

// Applied builds a successful outcome
func Applied(req MoveRequest) MoveOutcome {
	return MoveOutcome{Kind: OutcomeApplied, Request: req}
}

// Rejected builds an outcome for a move refused before any mutation
func Rejected(req MoveRequest, reason string) MoveOutcome {
	return MoveOutcome{Kind: OutcomeRejected, Reason: reason, Request: req}
}

// RolledBack builds an outcome for a move undone after a failure
func RolledBack(req MoveRequest, reason string, err error) MoveOutcome {
	return MoveOutcome{Kind: OutcomeRolledBack, Reason: reason, Err: err, Request: req}
}

// IsNoop returns true for the silent same-container outcome
func (o MoveOutcome) IsNoop() bool {
	return o.Kind == OutcomeRejected && o.Reason == ReasonNoop
}

// Succeeded returns true if the move was applied
func (o MoveOutcome) Succeeded() bool {
	return o.Kind == OutcomeApplied
}

func (o MoveOutcome) String() string {
	if o.Reason == "" {
		return string(o.Kind)
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
}
