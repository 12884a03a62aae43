package bridge

import (
	"errors"
	"testing"

	"github.com/joeycumines/go-loopbridge/reactor"
	"github.com/joeycumines/go-loopbridge/reactortest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptor_Dispatch(t *testing.T) {
	loop, m := newTestLoop(t)

	var reads, writes [][]any
	require.NoError(t, loop.AddReader(3, record(&reads), "r"))
	require.NoError(t, loop.AddWriter(3, record(&writes), "w", 1))

	require.True(t, m.FireRead(3))
	require.True(t, m.FireWrite(3))
	require.True(t, m.FireRead(3))

	assert.Equal(t, [][]any{{"r"}, {"r"}}, reads)
	assert.Equal(t, [][]any{{"w", 1}}, writes)

	d, ok := loop.Descriptor(3)
	require.True(t, ok)
	assert.Equal(t, "bridge.fd=3", d.LogPrefix())
}

// countingReactor counts the bridge's own CallWithLogger calls.
type countingReactor struct {
	*reactortest.MemoryReactor
	wrapped int
}

func (r *countingReactor) CallWithLogger(prefix string, fn func() error) error {
	r.wrapped++
	return r.MemoryReactor.CallWithLogger(prefix, fn)
}

func TestDescriptor_DispatchUsesReactorContext(t *testing.T) {
	r := &countingReactor{MemoryReactor: reactortest.NewMemoryReactor()}
	loop, err := New(r)
	require.NoError(t, err)
	exceptions := collectExceptions(loop)

	boom := errors.New("boom")
	require.NoError(t, loop.AddReader(3, func(...any) error { return boom }))
	require.True(t, r.FireRead(3))

	assert.Equal(t, 0, r.wrapped)
	require.Len(t, *exceptions, 1)
	assert.ErrorIs(t, (*exceptions)[0].Err, boom)

	// timers are not dispatched by the reactor's fd handling
	loop.CallSoon(cb)
	r.Clock.Advance(0)
	assert.Equal(t, 1, r.wrapped)
}

func TestEventLoop_OnDisconnect(t *testing.T) {
	loop, m := newTestLoop(t)
	exceptions := collectExceptions(loop)

	assert.False(t, loop.OnDisconnect(3, func(error) {}))

	var lost []error
	onLost := func(reason error) { lost = append(lost, reason) }

	require.NoError(t, loop.AddReader(3, cb))
	require.NoError(t, loop.AddWriter(3, cb))
	require.True(t, loop.OnDisconnect(3, onLost))
	d, _ := loop.Descriptor(3)
	m.DisconnectSelectable(d, reactor.ErrConnectionLost, false)

	assert.Equal(t, []error{reactor.ErrConnectionLost}, lost)
	assert.Empty(t, *exceptions)
	assert.Empty(t, loop.Descriptors())
	assert.Empty(t, m.Readers())
	assert.Empty(t, m.Writers())

	// a new registration starts without the callback
	require.NoError(t, loop.AddReader(3, cb))
	d, _ = loop.Descriptor(3)
	m.DisconnectSelectable(d, reactor.ErrConnectionLost, true)
	assert.Len(t, lost, 1)
	assert.Len(t, *exceptions, 1)

	// and so does one recreated after going idle
	require.NoError(t, loop.AddWriter(4, cb))
	require.True(t, loop.OnDisconnect(4, onLost))
	require.True(t, loop.RemoveWriter(4))
	require.NoError(t, loop.AddWriter(4, cb))
	d, _ = loop.Descriptor(4)
	m.DisconnectSelectable(d, reactor.ErrConnectionDone, false)
	assert.Len(t, lost, 1)
}

func TestDescriptor_InactiveSlotIsNoop(t *testing.T) {
	loop, _ := newTestLoop(t)
	require.NoError(t, loop.AddWriter(3, cb))
	d, _ := loop.Descriptor(3)
	assert.NoError(t, d.DoRead())
}

func TestDescriptor_FailureDisconnects(t *testing.T) {
	for _, tc := range [...]struct {
		name  string
		fn    Callback
		check func(t *testing.T, err error)
	}{
		{
			name: "error",
			fn:   func(...any) error { return errors.New("read failed") },
			check: func(t *testing.T, err error) {
				assert.EqualError(t, err, "read failed")
			},
		},
		{
			name: "panic",
			fn:   func(...any) error { panic("read exploded") },
			check: func(t *testing.T, err error) {
				var pe *reactor.PanicError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, "read exploded", pe.Value)
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			loop, m := newTestLoop(t)
			exceptions := collectExceptions(loop)

			var otherReads int
			require.NoError(t, loop.AddReader(3, tc.fn))
			require.NoError(t, loop.AddWriter(3, cb))
			require.NoError(t, loop.AddReader(4, func(...any) error {
				otherReads++
				return nil
			}))

			require.True(t, m.FireRead(3))

			assert.Equal(t, []int{4}, filenos(m.Readers()))
			assert.Empty(t, m.Writers())
			_, ok := loop.Descriptor(3)
			assert.False(t, ok)

			require.Len(t, *exceptions, 1)
			ctx := (*exceptions)[0]
			assert.Equal(t, "descriptor disconnected", ctx.Message)
			require.NotNil(t, ctx.Descriptor)
			assert.Equal(t, 3, ctx.Descriptor.Fileno())
			tc.check(t, ctx.Err)

			// the loop carries on with other descriptors
			require.True(t, m.FireRead(4))
			assert.Equal(t, 1, otherReads)

			// releasing interest afterwards is still safe
			assert.False(t, loop.RemoveReader(3))
			assert.False(t, loop.RemoveWriter(3))
		})
	}
}

func TestDescriptor_ConnectionDoneIsQuiet(t *testing.T) {
	loop, m := newTestLoop(t)
	exceptions := collectExceptions(loop)
	require.NoError(t, loop.AddReader(3, cb))

	d, _ := loop.Descriptor(3)
	m.DisconnectSelectable(d, reactor.ErrConnectionDone, true)

	assert.Empty(t, *exceptions)
	assert.Empty(t, loop.Descriptors())
	assert.Empty(t, m.Readers())
}

func TestDescriptor_ReAddAfterDisconnect(t *testing.T) {
	loop, m := newTestLoop(t)
	_ = collectExceptions(loop)
	require.NoError(t, loop.AddReader(3, func(...any) error { return errors.New("x") }))
	require.True(t, m.FireRead(3))

	var reads [][]any
	require.NoError(t, loop.AddReader(3, record(&reads)))
	require.True(t, m.FireRead(3))
	assert.Len(t, reads, 1)
}
