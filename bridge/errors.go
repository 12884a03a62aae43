// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bridge

import (
	"errors"
)

// Standard errors.
var (
	// ErrClosed is returned when operations are attempted on a closed event loop.
	ErrClosed = errors.New("bridge: event loop is closed")

	// ErrAlreadyRunning is returned when RunForever or RunUntilComplete is
	// called while the event loop is running.
	ErrAlreadyRunning = errors.New("bridge: this event loop is already running")

	// ErrRunning is returned by Close while the event loop is running.
	ErrRunning = errors.New("bridge: cannot close a running event loop")

	// ErrStoppedBeforeComplete is returned by RunUntilComplete when the event
	// loop stopped before the future completed.
	ErrStoppedBeforeComplete = errors.New("bridge: event loop stopped before Future completed")

	// ErrNotSupported is returned by operations the bridge deliberately does
	// not implement, such as signal handling.
	ErrNotSupported = errors.New("bridge: operation not supported")

	// ErrNilReactor is returned by New when no reactor is provided.
	ErrNilReactor = errors.New("bridge: nil reactor")

	// ErrFuturePending is returned by Result before the future is done.
	ErrFuturePending = errors.New("bridge: future result is not ready")

	// ErrFutureDone is returned when resolving a future that is already done.
	ErrFutureDone = errors.New("bridge: future already done")

	// ErrFutureCancelled is the result of a cancelled future.
	ErrFutureCancelled = errors.New("bridge: future cancelled")
)
