// Package reactortest provides test doubles for the reactor package: a
// deterministic [Clock], and a [MemoryReactor] that fires readiness on
// demand instead of polling the OS.
package reactortest
