package bridge

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(buf *bytes.Buffer) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(buf), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()
}

func TestEventLoop_SlowCallbackWarning(t *testing.T) {
	var buf bytes.Buffer
	loop, m := newTestLoop(t,
		WithLogger(newBufferLogger(&buf)),
		WithSlowCallbackDuration(time.Nanosecond),
	)

	loop.CallSoon(func(...any) error {
		time.Sleep(time.Millisecond)
		return nil
	})
	m.Clock.Advance(0)

	assert.Contains(t, buf.String(), `"lvl":"warning"`)
	assert.Contains(t, buf.String(), `bridge: slow callback`)
	assert.Contains(t, buf.String(), `"system":"bridge.timer"`)
}

func TestEventLoop_DefaultExceptionHandlerLogs(t *testing.T) {
	var buf bytes.Buffer
	loop, m := newTestLoop(t, WithLogger(newBufferLogger(&buf)))

	require.NoError(t, loop.AddReader(3, func(...any) error { return errors.New("read failed") }))
	require.True(t, m.FireRead(3))

	out := buf.String()
	assert.Contains(t, out, `"lvl":"err"`)
	assert.Contains(t, out, `"message":"descriptor disconnected"`)
	assert.Contains(t, out, `"err":"read failed"`)
	assert.Contains(t, out, `"fd":3`)
}
