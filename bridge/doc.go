// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package bridge adapts a readiness-driven [Reactor] to a scheduler-facing
// event loop API, in the style of asyncio.
//
// The reactor registers whole descriptor objects for reading and writing,
// while [EventLoop] exposes independent reader and writer callbacks per fd.
// The loop merges both into a single [Descriptor] per fd, splitting it again
// as interest is removed, and destroying it once neither remains. Timers map
// onto the reactor's delayed calls, see [TimerHandle], and the loop's run
// state is the reactor's own.
//
// A failing reader or writer callback (an error or a panic) does not stop
// the loop: the reactor disconnects the descriptor, and the failure goes to
// the loop's [ExceptionHandler].
//
// Usage:
//
//	r, err := reactor.New()
//	if err != nil {
//		return err
//	}
//	defer r.Close()
//
//	loop, err := bridge.New(r)
//	if err != nil {
//		return err
//	}
//	defer loop.Close()
//
//	fut := loop.CreateFuture()
//	loop.CallLater(time.Second, func(...any) error {
//		return fut.SetResult("done")
//	})
//	result, err := loop.RunUntilComplete(fut)
package bridge
