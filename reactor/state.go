package reactor

import (
	"sync/atomic"
)

// State represents the current run state of a [Reactor].
//
// State machine:
//
//	StateIdle → StateRunning        [Run()]
//	StateRunning → StateStopping    [Stop()]
//	StateStopping → StateIdle       [shutdown triggers done]
//	StateRunning → StateIdle        [Crash()]
//	StateStopping → StateIdle       [Crash()]
//	StateIdle → StateClosed         [Close()]
//	StateClosed → (terminal)
//
// Use TryTransition (CAS) for every transition, the run loop and Stop/Crash
// race from different goroutines.
type State uint32

const (
	// StateIdle indicates the reactor is not running, and may be started.
	StateIdle State = iota
	// StateRunning indicates Run is driving the poll loop.
	StateRunning
	// StateStopping indicates Stop was called, and shutdown triggers are pending.
	StateStopping
	// StateClosed indicates the reactor released its resources.
	StateClosed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// runState is a lock-free state machine.
type runState struct {
	v atomic.Uint32
}

func (s *runState) Load() State {
	return State(s.v.Load())
}

func (s *runState) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// TransitionAny attempts to transition from any of validFrom to the target.
func (s *runState) TransitionAny(validFrom []State, to State) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(uint32(from), uint32(to)) {
			return true
		}
	}
	return false
}

// IsRunning is true while the loop is running, including while stopping.
func (s *runState) IsRunning() bool {
	state := s.Load()
	return state == StateRunning || state == StateStopping
}
