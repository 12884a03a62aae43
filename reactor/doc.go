// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package reactor implements a readiness-driven I/O reactor, backed by epoll.
//
// Objects implementing [FileDescriptor] are registered as readers and/or
// writers. While [Reactor.Run] is active, the reactor waits for readiness,
// calling DoRead or DoWrite on the reactor goroutine. A descriptor whose
// callback returns an error, panics, or reports a hangup is disconnected:
// removed from both sets, then notified via ConnectionLost.
//
// Between polls, the reactor runs submissions from [Reactor.CallFromThread],
// then every [DelayedCall] that is due. Lifecycle hooks may be attached with
// [Reactor.AddSystemEventTrigger].
//
// Only linux is supported, [New] fails with [ErrUnsupportedPlatform]
// elsewhere.
package reactor
