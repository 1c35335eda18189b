package session

// State is the playback state.
type State int

const (
	// StateStopped is the initial state; no connection is held.
	StateStopped State = iota
	// StateLoading waits for enough audio to be buffered.
	StateLoading
	// StatePlaying is audible playback.
	StatePlaying
	// StatePaused keeps the connection but drops arriving audio.
	StatePaused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// StateMachine guards playback state transitions.
type StateMachine struct {
	current     State
	transitions map[State][]State
}

// NewStateMachine creates a state machine in StateStopped.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateStopped,
		transitions: map[State][]State{
			StateStopped: {StateLoading, StatePaused},
			StateLoading: {StatePlaying, StatePaused, StateStopped},
			StatePlaying: {StateLoading, StatePaused, StateStopped},
			StatePaused:  {StateLoading, StateStopped},
		},
	}
}

// Can reports whether moving to the given state is a valid transition.
func (sm *StateMachine) Can(to State) bool {
	for _, s := range sm.transitions[sm.current] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition attempts to transition to the specified state.
func (sm *StateMachine) Transition(to State) bool {
	if !sm.Can(to) {
		return false
	}
	sm.current = to
	return true
}

// Current returns the current state.
func (sm *StateMachine) Current() State {
	return sm.current
}
