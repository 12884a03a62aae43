// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"time"
)

// FileDescriptor is an object the reactor polls for readiness.
//
// Implementations must be comparable (typically pointers), since the
// reactor's reader and writer sets are keyed by the descriptor's fileno but
// removal of a descriptor that lost its fd falls back to identity.
type FileDescriptor interface {
	// Fileno returns the OS file descriptor, or -1 if it has been closed.
	Fileno() int

	// DoRead is called when the descriptor is readable. A non-nil error
	// disconnects the descriptor, see [Reactor.DisconnectSelectable].
	DoRead() error

	// DoWrite is called when the descriptor is writable, with the same error
	// contract as DoRead.
	DoWrite() error

	// ConnectionLost is called once the reactor has removed the descriptor
	// from both its reader and writer sets, following a disconnect.
	ConnectionLost(reason error)

	// LogPrefix names the logging context dispatch runs in.
	LogPrefix() string
}

// DelayedCall is a handle to a call scheduled with CallLater.
type DelayedCall interface {
	// Time returns when the call is scheduled to run, on the reactor clock.
	Time() time.Duration

	// Cancel prevents the call from running. It returns ErrAlreadyCalled or
	// ErrAlreadyCancelled if the call is no longer active.
	Cancel() error

	// Reset reschedules the call to run delay after now.
	Reset(delay time.Duration) error

	// Delay pushes the scheduled time back by d.
	Delay(d time.Duration) error

	// Active reports whether the call has neither run nor been cancelled.
	Active() bool
}
