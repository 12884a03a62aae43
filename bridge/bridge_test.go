package bridge

import (
	"testing"

	"github.com/joeycumines/go-loopbridge/reactor"
	"github.com/joeycumines/go-loopbridge/reactortest"
	"github.com/stretchr/testify/require"
)

var _ Reactor = (*reactortest.MemoryReactor)(nil)

func newTestLoop(t *testing.T, opts ...Option) (*EventLoop, *reactortest.MemoryReactor) {
	t.Helper()
	m := reactortest.NewMemoryReactor()
	loop, err := New(m, opts...)
	require.NoError(t, err)
	return loop, m
}

// nop is a callback that does nothing.
func nop(...any) error { return nil }

// record returns a callback appending its args to calls.
func record(calls *[][]any) Callback {
	return func(args ...any) error {
		*calls = append(*calls, args)
		return nil
	}
}

// collectExceptions installs a handler recording every exception.
func collectExceptions(loop *EventLoop) *[]ExceptionContext {
	var out []ExceptionContext
	loop.SetExceptionHandler(func(_ *EventLoop, ctx ExceptionContext) {
		out = append(out, ctx)
	})
	return &out
}

func filenos(fds []reactor.FileDescriptor) []int {
	out := make([]int, len(fds))
	for i, fd := range fds {
		out[i] = fd.Fileno()
	}
	return out
}
