package orchestrator

// State is a step of the move state machine
type State string

const (
	StateIdle                  State = "idle"
	StateValidating            State = "validating"
	StateAppliedOptimistically State = "applied_optimistically"
	StatePersistingRemote      State = "persisting_remote"
	StateSettled               State = "settled"
	StateRollingBack           State = "rolling_back"
	StateReconciling           State = "reconciling"
)

// AllStates returns every state in machine order
func AllStates() []State {
	return []State{
		StateIdle,
		StateValidating,
		StateAppliedOptimistically,
		StatePersistingRemote,
		StateSettled,
		StateRollingBack,
		StateReconciling,
	}
}

func stateNames() []string {
	states := AllStates()
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	return names
}

// BusyPolicy decides what happens to a move submitted while another is in flight
type BusyPolicy string

const (
	// BusyQueue runs moves one after another in submission order
	BusyQueue BusyPolicy = "queue"
	// BusyReject refuses moves while the orchestrator is not idle
	BusyReject BusyPolicy = "reject"
)

// IsValid returns true for a known policy
func (p BusyPolicy) IsValid() bool {
	return p == BusyQueue || p == BusyReject
}
