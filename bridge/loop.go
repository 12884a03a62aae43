// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bridge

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-loopbridge/reactor"
	"github.com/joeycumines/logiface"
)

// Reactor is the readiness-driven reactor an EventLoop is built on,
// implemented by [reactor.Reactor], and by reactortest.MemoryReactor.
type Reactor interface {
	AddReader(fd reactor.FileDescriptor) error
	AddWriter(fd reactor.FileDescriptor) error
	RemoveReader(fd reactor.FileDescriptor)
	RemoveWriter(fd reactor.FileDescriptor)

	CallLater(delay time.Duration, fn func()) reactor.DelayedCall
	Now() time.Duration

	// CallFromThread must be safe to call from any goroutine.
	CallFromThread(fn func()) error

	// CallWithLogger calls fn within the named logging context, returning
	// its error, or a *reactor.PanicError if it panicked.
	CallWithLogger(prefix string, fn func() error) error

	Run() error
	Stop() error
	Crash()
	Running() bool
}

var _ Reactor = (*reactor.Reactor)(nil)

// EventLoop is a scheduler-facing event loop driven by a Reactor. Reader
// and writer interest is tracked per fd, timers map onto the reactor's
// delayed calls, and the run state is the reactor's own.
//
// Apart from CallSoonThreadsafe, IsRunning and IsClosed, methods must be
// called from the goroutine running the loop, or while it is not running.
type EventLoop struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	reactor          Reactor
	logger           *logiface.Logger[logiface.Event]
	exceptionHandler ExceptionHandler
	registry         registry
	slowCallback     time.Duration

	closed atomic.Bool

	// stopPending is set by Stop while not running
	stopPending atomic.Bool
}

// New creates an EventLoop on top of r. The loop does not own r, and
// closing the loop leaves r open.
func New(r Reactor, opts ...Option) (*EventLoop, error) {
	if r == nil {
		return nil, ErrNilReactor
	}

	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	return &EventLoop{
		reactor:          r,
		logger:           cfg.logger,
		exceptionHandler: cfg.exceptionHandler,
		registry:         newRegistry(r),
		slowCallback:     cfg.slowCallback,
	}, nil
}

// AddReader calls fn(args...) whenever fd is readable, replacing any
// previous read callback for fd. The write callback of fd, if any, is kept.
//
// A callback failure disconnects fd, removing both its reader and writer.
// An error is returned only if the reactor refused the registration, in
// which case nothing changed.
func (l *EventLoop) AddReader(fd int, fn Callback, args ...any) error {
	return l.add(fd, dirRead, fn, args)
}

// AddWriter calls fn(args...) whenever fd is writable, see AddReader.
func (l *EventLoop) AddWriter(fd int, fn Callback, args ...any) error {
	return l.add(fd, dirWrite, fn, args)
}

func (l *EventLoop) add(fd int, dir direction, fn Callback, args []any) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if err := l.registry.add(l, fd, dir, NewCallable(fn, args...)); err != nil {
		return fmt.Errorf("bridge: add %s interest for fd %d: %w", dir, fd, err)
	}
	return nil
}

// RemoveReader stops watching fd for readability, reporting whether it was
// being watched. It is safe to call for any fd.
func (l *EventLoop) RemoveReader(fd int) bool {
	return l.registry.remove(fd, dirRead)
}

// RemoveWriter stops watching fd for writability, see RemoveReader.
func (l *EventLoop) RemoveWriter(fd int) bool {
	return l.registry.remove(fd, dirWrite)
}

// OnDisconnect sets fn to be called when the reactor disconnects fd, in
// place of the exception handler. The reason is [reactor.ErrConnectionDone]
// if the peer hung up cleanly. It reports false if fd has no reader or
// writer. fn is dropped along with the registration, once fd has neither.
func (l *EventLoop) OnDisconnect(fd int, fn func(reason error)) bool {
	d, ok := l.registry.lookup(fd)
	if !ok {
		return false
	}
	d.onLost = fn
	return true
}

// Descriptor returns the registration for fd, if any.
func (l *EventLoop) Descriptor(fd int) (*Descriptor, bool) {
	return l.registry.lookup(fd)
}

// Descriptors returns every registration, ordered by fd.
func (l *EventLoop) Descriptors() []*Descriptor {
	return l.registry.descriptors()
}

// CallSoonThreadsafe schedules fn(args...) on the loop goroutine. It is safe
// to call from any goroutine.
func (l *EventLoop) CallSoonThreadsafe(fn Callback, args ...any) error {
	if l.closed.Load() {
		return ErrClosed
	}
	cb := NewCallable(fn, args...)
	return l.reactor.CallFromThread(func() {
		if err := l.runCallback("bridge.threadsafe", cb); err != nil {
			l.CallExceptionHandler(ExceptionContext{
				Message: "threadsafe callback failed",
				Err:     err,
			})
		}
	})
}

// runCallback invokes cb within the named logging context.
func (l *EventLoop) runCallback(prefix string, cb Callable) error {
	return l.timeCallback(prefix, cb, func() error {
		return l.reactor.CallWithLogger(prefix, cb.Call)
	})
}

// timeCallback calls fn, which runs cb, warning if it was slow.
func (l *EventLoop) timeCallback(prefix string, cb Callable, fn func() error) error {
	if l.slowCallback <= 0 {
		return fn()
	}
	start := time.Now()
	err := fn()
	if elapsed := time.Since(start); elapsed >= l.slowCallback {
		l.logger.Warning().
			Str("system", prefix).
			Str("callback", cb.String()).
			Dur("elapsed", elapsed).
			Log("bridge: slow callback")
	}
	return err
}

// RunForever runs the reactor until Stop or Crash.
//
// If Stop was called while the loop was not running, RunForever runs the
// callbacks that are already due, then returns.
func (l *EventLoop) RunForever() error {
	if l.closed.Load() {
		return ErrClosed
	}
	if l.reactor.Running() {
		return ErrAlreadyRunning
	}

	if l.stopPending.Swap(false) {
		if err := l.reactor.CallFromThread(l.Stop); err != nil {
			return err
		}
	}

	l.logger.Debug().Log("bridge: event loop running")

	if err := l.reactor.Run(); err != nil {
		if errors.Is(err, reactor.ErrAlreadyRunning) || errors.Is(err, reactor.ErrReentrantRun) {
			return ErrAlreadyRunning
		}
		return err
	}

	l.logger.Debug().Log("bridge: event loop stopped")
	return nil
}

// RunUntilComplete runs the loop until fut is done, returning its result.
//
// If the loop stops before fut is done, ErrStoppedBeforeComplete is
// returned. The done callback added to fut is always removed.
func (l *EventLoop) RunUntilComplete(fut Future) (any, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	if l.reactor.Running() {
		return nil, ErrAlreadyRunning
	}

	// a callback already scheduled when it is removed must not stop a later run
	active := true
	id := fut.AddDoneCallback(func(Future) {
		if active {
			l.Stop()
		}
	})

	err := l.RunForever()

	active = false
	fut.RemoveDoneCallback(id)

	if err != nil {
		return nil, err
	}
	if !fut.Done() {
		return nil, ErrStoppedBeforeComplete
	}
	return fut.Result()
}

// Stop asks the loop to stop at the next safe point, without interrupting
// the running callback. If the loop is not running, the next RunForever
// returns after a single iteration.
func (l *EventLoop) Stop() {
	if err := l.reactor.Stop(); err != nil && !l.reactor.Running() {
		l.stopPending.Store(true)
	}
}

// Crash stops the loop immediately, skipping the reactor's shutdown
// triggers.
func (l *EventLoop) Crash() {
	l.reactor.Crash()
}

// IsRunning reports whether the reactor is running.
func (l *EventLoop) IsRunning() bool {
	return l.reactor.Running()
}

// IsClosed reports whether Close was called.
func (l *EventLoop) IsClosed() bool {
	return l.closed.Load()
}

// Close removes every reader and writer, and prevents further use of the
// loop. It fails with ErrRunning while running, and is a no-op if already
// closed.
func (l *EventLoop) Close() error {
	if l.reactor.Running() {
		return ErrRunning
	}
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.stopPending.Store(false)
	l.registry.removeAll()
	l.logger.Debug().Log("bridge: event loop closed")
	return nil
}

// AddSignalHandler is not supported. Deliver signals through os/signal and
// CallSoonThreadsafe instead.
func (l *EventLoop) AddSignalHandler(sig os.Signal, fn Callback, args ...any) error {
	return fmt.Errorf("bridge: add signal handler for %v: %w", sig, ErrNotSupported)
}

// RemoveSignalHandler is not supported, see AddSignalHandler.
func (l *EventLoop) RemoveSignalHandler(sig os.Signal) error {
	return fmt.Errorf("bridge: remove signal handler for %v: %w", sig, ErrNotSupported)
}
