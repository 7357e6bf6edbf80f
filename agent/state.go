package agent

import (
	"errors"
	"fmt"
)

// State is a phase of one generation.
type State int

const (
	StateInit State = iota
	StateAwaitingModel
	StateToolRequested
	StateToolExecuted
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateToolRequested:
		return "tool_requested"
	case StateToolExecuted:
		return "tool_executed"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// ErrIllegalTransition is returned for an edge missing from the table.
var ErrIllegalTransition = errors.New("illegal state transition")

// edges lists the legal successors of each state.
var edges = map[State][]State{
	StateInit:          {StateAwaitingModel, StateFailed},
	StateAwaitingModel: {StateToolRequested, StateDone, StateFailed},
	StateToolRequested: {StateToolExecuted, StateFailed},
	StateToolExecuted:  {StateAwaitingModel, StateFailed},
}

// machine tracks the current state and every state visited.
type machine struct {
	state State
	trace []State
}

func newMachine() *machine {
	return &machine{state: StateInit, trace: []State{StateInit}}
}

func (m *machine) to(next State) error {
	for _, allowed := range edges[m.state] {
		if allowed == next {
			m.state = next
			m.trace = append(m.trace, next)
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, next)
}

// fail moves to StateFailed unless already terminal.
func (m *machine) fail() {
	if !m.state.Terminal() {
		_ = m.to(StateFailed)
	}
}
