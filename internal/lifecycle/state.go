// Package lifecycle implements start, stop and restart of an environment's
// stack. Nothing is persisted: the orchestrator is the source of truth, and
// the state machine only guards the order of steps within one process.
package lifecycle

import (
	"errors"
	"fmt"
	"sync"

	"stackctl/internal/envfile"
	"stackctl/internal/logging"
)

// State is the lifecycle state of one environment.
type State string

const (
	Stopped  State = "stopped"
	Starting State = "starting"
	Running  State = "running"
	Stopping State = "stopping"
)

// ErrInvalidTransition is returned for transitions outside the lifecycle graph.
var ErrInvalidTransition = errors.New("invalid state transition")

// legal lists the allowed transitions. Starting may fall back to Stopped
// when bring-up fails; Stopped may go to Stopping because the stack may
// have been started by another process.
var legal = map[State][]State{
	Stopped:  {Starting, Stopping},
	Starting: {Running, Stopped},
	Running:  {Stopping},
	Stopping: {Stopped},
}

// TransitionFunc observes state changes.
type TransitionFunc func(env envfile.Environment, from, to State)

// Machine is the state machine of one environment.
type Machine struct {
	mu        sync.Mutex
	env       envfile.Environment
	state     State
	observers []TransitionFunc
}

// NewMachine returns a machine in the Stopped state.
func NewMachine(env envfile.Environment) *Machine {
	return &Machine{env: env, state: Stopped}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnTransition registers an observer called after every successful transition.
func (m *Machine) OnTransition(fn TransitionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// CanTransition reports whether to is reachable from the current state.
func (m *Machine) CanTransition(to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return canTransition(m.state, to)
}

func canTransition(from, to State) bool {
	for _, s := range legal[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the machine to the given state.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.state
	if !canTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, from, to, m.env)
	}
	m.state = to
	observers := append([]TransitionFunc(nil), m.observers...)
	m.mu.Unlock()

	logging.LifecycleDebug("%s: %s -> %s", m.env, from, to)
	for _, fn := range observers {
		fn(m.env, from, to)
	}
	return nil
}
