package coordinator

// State is the phase of one reconciliation run
type State string

const (
	StateIdle          State = "IDLE"
	StateLockAcquiring State = "LOCK_ACQUIRING"
	StateFetching      State = "FETCHING"
	StateProcessing    State = "PROCESSING"
	StatePersisting    State = "PERSISTING"
	StateReleased      State = "RELEASED"
	StateFailed        State = "FAILED"
)

var transitions = map[State][]State{
	StateIdle:          {StateLockAcquiring},
	StateLockAcquiring: {StateFetching, StateReleased},
	StateFetching:      {StateProcessing},
	StateProcessing:    {StatePersisting},
	StatePersisting:    {StateReleased},
}

// CanTransition reports whether the run may move from one state to another.
// FAILED is reachable from every non-terminal state.
func CanTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the run has ended
func (s State) IsTerminal() bool {
	return s == StateReleased || s == StateFailed
}
