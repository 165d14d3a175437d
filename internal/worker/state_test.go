package worker

import "testing"

// TestStateTypeString tests the String() method for StateType.
func TestStateTypeString(t *testing.T) {
	tests := []struct {
		state    StateType
		expected string
	}{
		{StateIdle, "idle"},
		{StateWorking, "working"},
		{StateAwaitingCheckpoint, "awaiting checkpoint"},
		{StateDone, "done"},
		{StateFailed, "failed"},
		{StateType(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := tt.state.String()
			if result != tt.expected {
				t.Errorf("StateType.String() = %v, want %v", result, tt.expected)
			}
		})
	}
}

// TestStateMachineValidTransitions tests the full session lifecycle.
func TestStateMachineValidTransitions(t *testing.T) {
	sm := NewStateMachine()

	if sm.Current() != StateIdle {
		t.Fatalf("initial state = %v, want idle", sm.Current())
	}

	steps := []StateType{
		StateWorking,
		StateAwaitingCheckpoint,
		StateWorking,
		StateAwaitingCheckpoint,
		StateWorking,
		StateDone,
	}

	for _, to := range steps {
		if !sm.Transition(to) {
			t.Fatalf("Transition(%v) from %v failed", to, sm.Current())
		}
	}

	if !sm.Current().Terminal() {
		t.Errorf("state %v should be terminal", sm.Current())
	}
}

// TestStateMachineInvalidTransitions tests that illegal moves are rejected.
func TestStateMachineInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []StateType
		to   StateType
	}{
		{"idle cannot checkpoint", nil, StateAwaitingCheckpoint},
		{"idle cannot finish", nil, StateDone},
		{"awaiting cannot finish directly", []StateType{StateWorking, StateAwaitingCheckpoint}, StateDone},
		{"done is terminal", []StateType{StateWorking, StateDone}, StateWorking},
		{"failed is terminal", []StateType{StateWorking, StateFailed}, StateWorking},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateMachine()
			for _, s := range tt.path {
				if !sm.Transition(s) {
					t.Fatalf("setup transition to %v failed", s)
				}
			}
			if sm.Transition(tt.to) {
				t.Errorf("Transition(%v) from %v should fail", tt.to, sm.Current())
			}
		})
	}
}

// TestStateMachineCallbacks tests enter/exit callback ordering.
func TestStateMachineCallbacks(t *testing.T) {
	sm := NewStateMachine()

	var order []string
	sm.OnExit(StateIdle, func() { order = append(order, "exit-idle") })
	sm.OnEnter(StateWorking, func() { order = append(order, "enter-working") })

	if !sm.Transition(StateWorking) {
		t.Fatal("Transition(StateWorking) failed")
	}

	if len(order) != 2 || order[0] != "exit-idle" || order[1] != "enter-working" {
		t.Errorf("callback order = %v, want [exit-idle enter-working]", order)
	}
}
