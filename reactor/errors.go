// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrAlreadyRunning is returned when Run is called on a reactor that is already running.
	ErrAlreadyRunning = errors.New("reactor: already running")

	// ErrNotRunning is returned by Stop when the reactor is not running, or is already stopping.
	ErrNotRunning = errors.New("reactor: not running")

	// ErrClosed is returned when operations are attempted on a closed reactor.
	ErrClosed = errors.New("reactor: closed")

	// ErrRunning is returned by Close while the reactor is running.
	ErrRunning = errors.New("reactor: cannot close a running reactor")

	// ErrReentrantRun is returned when Run is called from within the reactor goroutine.
	ErrReentrantRun = errors.New("reactor: cannot call Run from within the reactor")

	// ErrUnsupportedPlatform is returned by New on platforms without a poller implementation.
	ErrUnsupportedPlatform = errors.New("reactor: unsupported platform")

	// ErrBadDescriptor is returned when a descriptor reports a negative fileno.
	ErrBadDescriptor = errors.New("reactor: bad file descriptor")

	// ErrAlreadyCalled is returned when cancelling or rescheduling a delayed call that already ran.
	ErrAlreadyCalled = errors.New("reactor: delayed call already called")

	// ErrAlreadyCancelled is returned when cancelling or rescheduling a cancelled delayed call.
	ErrAlreadyCancelled = errors.New("reactor: delayed call already cancelled")

	// ErrNoSuchTrigger is returned by RemoveSystemEventTrigger for unknown or removed triggers.
	ErrNoSuchTrigger = errors.New("reactor: no such system event trigger")

	// ErrConnectionLost is the disconnect reason when the peer hung up or the descriptor errored.
	ErrConnectionLost = errors.New("reactor: connection lost")

	// ErrConnectionDone is the disconnect reason for a clean hangup on a descriptor being read.
	ErrConnectionDone = errors.New("reactor: connection done")

	// ErrDescriptorWentAway is the disconnect reason when a descriptor's fileno changed during dispatch.
	ErrDescriptorWentAway = errors.New("reactor: file descriptor went away")
)

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("reactor: callback panicked: %v", e.Value)
}

// Unwrap returns the panic value if it is an error, enabling [errors.Is] and
// [errors.As] through the cause chain.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
