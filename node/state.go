package node

import (
	"fmt"

	"github.com/axleaudio/graphengine/errs"
)

// State is a node's position in the Unconfigured -> Configured -> Running
// -> Stopped lifecycle.
type State int

const (
	Unconfigured State = iota
	Configured
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Machine tracks a node's lifecycle state and enforces the legal
// transitions: configure only from Unconfigured/Stopped,
// start only from Configured/Stopped, stop only from Running, reset from
// Configured/Stopped back to Configured, process only while Running.
type Machine struct {
	state State
}

// NewMachine returns a Machine starting in Unconfigured.
func NewMachine() *Machine { return &Machine{state: Unconfigured} }

// Current returns the current state.
func (m *Machine) Current() State { return m.state }

func (m *Machine) transitionErr(op string) error {
	return fmt.Errorf("%w: %s not legal in state %s", errs.ErrInvalidState, op, m.state)
}

// Configure validates and applies the Unconfigured|Stopped -> Configured
// transition.
func (m *Machine) Configure() error {
	if m.state != Unconfigured && m.state != Stopped {
		return m.transitionErr("configure")
	}
	m.state = Configured
	return nil
}

// Start validates and applies the Configured|Stopped -> Running transition.
// Calling Start while already Running is a no-op success (idempotent).
func (m *Machine) Start() error {
	if m.state == Running {
		return nil
	}
	if m.state != Configured && m.state != Stopped {
		return m.transitionErr("start")
	}
	m.state = Running
	return nil
}

// Stop validates and applies the Running -> Stopped transition.
func (m *Machine) Stop() error {
	if m.state != Running {
		return m.transitionErr("stop")
	}
	m.state = Stopped
	return nil
}

// Reset validates and applies the Configured|Stopped -> Configured
// transition.
func (m *Machine) Reset() error {
	if m.state != Configured && m.state != Stopped {
		return m.transitionErr("reset")
	}
	m.state = Configured
	return nil
}

// RequireRunning returns ErrInvalidState unless the machine is Running —
// used by process() implementations as their first line.
func (m *Machine) RequireRunning() error {
	if m.state != Running {
		return m.transitionErr("process")
	}
	return nil
}
