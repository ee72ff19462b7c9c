package server

import "fmt"

// State is the lifecycle state of a Controller
type State int32

const (
	StateUnconfigured State = iota
	StateStopped
	StateStarted
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "UNCONFIGURED"
	case StateStopped:
		return "STOPPED"
	case StateStarted:
		return "STARTED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name
func (s *State) UnmarshalText(text []byte) error {
	for _, v := range []State{StateUnconfigured, StateStopped, StateStarted} {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

type operation int

const (
	opStart operation = iota
	opStop
	opConfigure
)

func (o operation) String() string {
	switch o {
	case opStart:
		return "start"
	case opStop:
		return "stop"
	case opConfigure:
		return "configure"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

type effect int

const (
	// effectStopEngine stops and discards the engine, enters STOPPED and fires EventStopped
	effectStopEngine effect = iota
	// effectStartEngine builds and starts a new engine, enters STARTED and fires EventStarted
	effectStartEngine
	// effectNotifyConfigured enters STOPPED and fires EventConfigured
	effectNotifyConfigured
)

// transition is the outcome of applying an operation to a state. Effects are
// executed in order; the controller is in state to once all of them succeed.
type transition struct {
	to      State
	effects []effect
}

// plan maps a state and an operation to the transition the controller must
// perform. It has no side effects.
func plan(from State, op operation) (transition, error) {
	switch from {
	case StateUnconfigured:
		switch op {
		case opStart:
			return transition{}, fmt.Errorf("%w: server is not configured", ErrIllegalLifecycle)
		case opStop:
			return transition{to: from}, nil
		case opConfigure:
			return transition{to: StateStopped, effects: []effect{effectNotifyConfigured}}, nil
		}

	case StateStopped:
		switch op {
		case opStart:
			return transition{to: StateStarted, effects: []effect{effectStartEngine}}, nil
		case opStop:
			return transition{to: from}, nil
		case opConfigure:
			return transition{to: StateStopped, effects: []effect{effectNotifyConfigured}}, nil
		}

	case StateStarted:
		switch op {
		case opStart:
			return transition{}, fmt.Errorf("%w: server is already started", ErrIllegalLifecycle)
		case opStop:
			return transition{to: StateStopped, effects: []effect{effectStopEngine}}, nil
		case opConfigure:
			return transition{to: StateStarted, effects: []effect{effectStopEngine, effectStartEngine}}, nil
		}
	}

	return transition{}, fmt.Errorf("%w: %s in state %s", ErrIllegalLifecycle, op, from)
}
