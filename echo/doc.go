// Package echo implements a TCP echo server on top of a bridge.EventLoop,
// using raw non-blocking sockets registered as readers and writers.
//
// Only linux is supported.
package echo
