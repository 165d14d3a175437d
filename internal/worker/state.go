package worker

// StateType represents the current state of a worker session.
type StateType int

const (
	// StateIdle indicates the session has not started yet.
	StateIdle StateType = iota
	// StateWorking indicates the session is converting chunks.
	StateWorking
	// StateAwaitingCheckpoint indicates the session is paused at a
	// checkpoint boundary waiting for operator confirmation.
	StateAwaitingCheckpoint
	// StateDone indicates the session finished its assignment.
	StateDone
	// StateFailed indicates the session aborted on a fatal error.
	StateFailed
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWorking:
		return "working"
	case StateAwaitingCheckpoint:
		return "awaiting checkpoint"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal returns true when no further transition is possible.
func (s StateType) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// StateMachine manages state transitions for a worker session. It is
// not safe for concurrent use; each session owns exactly one machine
// and drives it from its own goroutine.
type StateMachine struct {
	current     StateType
	transitions map[StateType][]StateType
	onEnter     map[StateType]func()
	onExit      map[StateType]func()
}

// NewStateMachine creates a new state machine with valid transitions.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[StateType][]StateType{
			StateIdle:               {StateWorking, StateFailed},
			StateWorking:            {StateAwaitingCheckpoint, StateDone, StateFailed},
			StateAwaitingCheckpoint: {StateWorking, StateFailed},
		},
		onEnter: make(map[StateType]func()),
		onExit:  make(map[StateType]func()),
	}
}

// Transition attempts to transition to the specified state.
func (sm *StateMachine) Transition(to StateType) bool {
	validTransitions, ok := sm.transitions[sm.current]
	if !ok {
		return false
	}

	valid := false
	for _, state := range validTransitions {
		if state == to {
			valid = true
			break
		}
	}

	if !valid {
		return false
	}

	if exitFn, ok := sm.onExit[sm.current]; ok && exitFn != nil {
		exitFn()
	}

	sm.current = to

	if enterFn, ok := sm.onEnter[to]; ok && enterFn != nil {
		enterFn()
	}

	return true
}

// Current returns the current state.
func (sm *StateMachine) Current() StateType {
	return sm.current
}

// OnEnter registers a callback for entering a state.
func (sm *StateMachine) OnEnter(state StateType, fn func()) {
	sm.onEnter[state] = fn
}

// OnExit registers a callback for exiting a state.
func (sm *StateMachine) OnExit(state StateType, fn func()) {
	sm.onExit[state] = fn
}
