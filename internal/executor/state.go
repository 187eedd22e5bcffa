// internal/executor/state.go
package executor

// State is a step of the per-action state machine.
type State string

const (
	StateIdle      State = "idle"
	StateResolving State = "resolving"
	StateExecuting State = "executing"
	StateSettling  State = "settling"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// transitions lists the legal successors of each state.
var transitions = map[State][]State{
	StateIdle:      {StateResolving, StateExecuting, StateFailed},
	StateResolving: {StateExecuting, StateFailed},
	StateExecuting: {StateResolving, StateSettling, StateFailed},
	StateSettling:  {StateDone, StateFailed},
}

// machine records the path one action takes.
type machine struct {
	path []State
}

func newMachine() *machine { return &machine{path: []State{StateIdle}} }

func (m *machine) current() State { return m.path[len(m.path)-1] }

// to moves to next. An illegal move panics: it is a programming error in the executor.
func (m *machine) to(next State) {
	for _, s := range transitions[m.current()] {
		if s == next {
			m.path = append(m.path, next)
			return
		}
	}
	panic("executor: illegal transition " + string(m.current()) + " -> " + string(next))
}

func (m *machine) fail() {
	if c := m.current(); c != StateDone && c != StateFailed {
		m.path = append(m.path, StateFailed)
	}
}

func (m *machine) recorded() []State { return append([]State(nil), m.path...) }
