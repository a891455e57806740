package models

// ElectionState is the lifecycle stage of the current election cycle.
type ElectionState string

const (
	// StateNotStarted is the initial state. The key ceremony may only run
	// here.
	StateNotStarted ElectionState = "not_started"
	// StateOpen enables ballot sealing.
	StateOpen ElectionState = "open"
	// StateClosed is terminal for the cycle and enables the tally.
	StateClosed ElectionState = "closed"
)

// Valid reports whether s is a known election state.
func (s ElectionState) Valid() bool {
	switch s {
	case StateNotStarted, StateOpen, StateClosed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the one-directional lifecycle permits
// moving from s to next. The only way back to StateNotStarted is a full
// election reset, which is not a state transition.
func (s ElectionState) CanTransitionTo(next ElectionState) bool {
	switch s {
	case StateNotStarted:
		return next == StateOpen
	case StateOpen:
		return next == StateClosed
	}
	return false
}
