package session

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned for a transition the lifecycle does not
// allow.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is the lifecycle state of the device session.
type State uint8

const (
	// StateIdle indicates no search has started.
	StateIdle State = iota

	// StateSearching indicates candidates are racing for the device.
	StateSearching

	// StateConnected indicates an active session is open.
	StateConnected

	// StateDisconnected indicates the active session was lost.
	StateDisconnected

	// StateCanceled indicates the search ended by cancel, timeout or a
	// rejected protocol version.
	StateCanceled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSearching:
		return "SEARCHING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

var transitions = map[State][]State{
	StateIdle:         {StateSearching},
	StateSearching:    {StateConnected, StateCanceled},
	StateConnected:    {StateDisconnected, StateCanceled},
	StateDisconnected: {StateSearching, StateConnected, StateCanceled},
	StateCanceled:     {StateSearching},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Machine tracks the session state and notifies on every change.
type Machine struct {
	mu            sync.Mutex
	state         State
	onStateChange func(oldState, newState State)
}

// NewMachine returns a machine in StateIdle.
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnStateChange sets a callback run after every transition.
func (m *Machine) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// Transition moves to the given state.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.state = to
	fn := m.onStateChange
	m.mu.Unlock()

	if fn != nil {
		fn(from, to)
	}
	return nil
}

// TransitionFrom moves from -> to only if the machine is currently in from.
// It reports whether the transition happened.
func (m *Machine) TransitionFrom(from, to State) bool {
	m.mu.Lock()
	if m.state != from || !CanTransition(from, to) {
		m.mu.Unlock()
		return false
	}
	m.state = to
	fn := m.onStateChange
	m.mu.Unlock()

	if fn != nil {
		fn(from, to)
	}
	return true
}
