package bridge

import (
	"errors"
	"testing"

	"github.com/joeycumines/go-loopbridge/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cb(...any) error  { return nil }
func cb2(...any) error { return nil }

func requireReadCallback(t *testing.T, loop *EventLoop, fd int, want Callable) {
	t.Helper()
	d, ok := loop.Descriptor(fd)
	require.True(t, ok, "no descriptor for fd %d", fd)
	got, active := d.ReadCallback()
	require.True(t, active, "fd %d not registered for read", fd)
	require.True(t, got.Equal(want), "read callback for fd %d: got %s, want %s", fd, got, want)
}

func TestEventLoop_AddReaderLastWriteWins(t *testing.T) {
	loop, m := newTestLoop(t)

	require.NoError(t, loop.AddReader(3, cb, 1))
	require.NoError(t, loop.AddReader(3, cb2, "b"))

	requireReadCallback(t, loop, 3, NewCallable(cb2, "b"))
	assert.Equal(t, []int{3}, filenos(m.Readers()))
	assert.Len(t, loop.Descriptors(), 1)
}

func TestEventLoop_MergedDescriptor(t *testing.T) {
	loop, m := newTestLoop(t)

	require.NoError(t, loop.AddReader(4, cb))
	require.NoError(t, loop.AddWriter(4, cb2))

	require.Len(t, m.Readers(), 1)
	require.Len(t, m.Writers(), 1)
	assert.Same(t, m.Readers()[0], m.Writers()[0])

	d, ok := loop.Descriptor(4)
	require.True(t, ok)
	assert.Same(t, d, m.Readers()[0])
}

func TestEventLoop_RemoveBoth(t *testing.T) {
	for _, tc := range [...]struct {
		name   string
		remove func(loop *EventLoop, fd int)
	}{
		{"reader first", func(loop *EventLoop, fd int) {
			assert.True(t, loop.RemoveReader(fd))
			assert.True(t, loop.RemoveWriter(fd))
		}},
		{"writer first", func(loop *EventLoop, fd int) {
			assert.True(t, loop.RemoveWriter(fd))
			assert.True(t, loop.RemoveReader(fd))
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			loop, m := newTestLoop(t)
			require.NoError(t, loop.AddReader(6, cb))
			require.NoError(t, loop.AddWriter(6, cb))

			tc.remove(loop, 6)

			assert.Empty(t, m.Readers())
			assert.Empty(t, m.Writers())
			_, ok := loop.Descriptor(6)
			assert.False(t, ok)

			assert.False(t, loop.RemoveReader(6))
			assert.False(t, loop.RemoveWriter(6))
		})
	}
}

func TestEventLoop_RemoveWriterKeepsReader(t *testing.T) {
	loop, m := newTestLoop(t)
	require.NoError(t, loop.AddReader(8, cb, 1))

	assert.False(t, loop.RemoveWriter(8))

	assert.Equal(t, []int{8}, filenos(m.Readers()))
	assert.Empty(t, m.Writers())
	requireReadCallback(t, loop, 8, NewCallable(cb, 1))
}

func TestEventLoop_RemoveUnknown(t *testing.T) {
	loop, _ := newTestLoop(t)
	assert.False(t, loop.RemoveReader(42))
	assert.False(t, loop.RemoveWriter(42))
}

// add_reader(5, cb, 1, 2), add_writer(5, cb2, 9), remove_reader(5)
func TestEventLoop_ReaderThenWriterThenRemoveReader(t *testing.T) {
	loop, m := newTestLoop(t)

	require.NoError(t, loop.AddReader(5, cb, 1, 2))
	require.NoError(t, loop.AddWriter(5, cb2, 9))
	require.True(t, loop.RemoveReader(5))

	assert.Empty(t, m.Readers())
	writers := m.Writers()
	require.Len(t, writers, 1)
	assert.Equal(t, 5, writers[0].Fileno())

	d := writers[0].(*Descriptor)
	got, active := d.WriteCallback()
	require.True(t, active)
	assert.True(t, got.Equal(NewCallable(cb2, 9)), got.String())
	_, active = d.ReadCallback()
	assert.False(t, active)
}

// add_writer(7, h), add_reader(7, h), remove_reader(7), remove_writer(7)
func TestEventLoop_WriterReaderRemoveBoth(t *testing.T) {
	loop, m := newTestLoop(t)

	require.NoError(t, loop.AddWriter(7, cb))
	require.NoError(t, loop.AddReader(7, cb))
	require.True(t, loop.RemoveReader(7))
	require.True(t, loop.RemoveWriter(7))

	assert.Empty(t, m.Readers())
	assert.Empty(t, m.Writers())
	assert.Empty(t, loop.Descriptors())
}

func TestEventLoop_AddRollback(t *testing.T) {
	loop, m := newTestLoop(t)
	boom := errors.New("refused")

	m.FailAdd = func(_ reactor.FileDescriptor, write bool) error {
		if write {
			return boom
		}
		return nil
	}

	err := loop.AddWriter(3, cb)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, loop.Descriptors())

	require.NoError(t, loop.AddReader(3, cb, 1))
	require.ErrorIs(t, loop.AddWriter(3, cb2), boom)

	d, ok := loop.Descriptor(3)
	require.True(t, ok)
	_, active := d.WriteCallback()
	assert.False(t, active)
	requireReadCallback(t, loop, 3, NewCallable(cb, 1))
	assert.Empty(t, m.Writers())
}

func TestEventLoop_Descriptors(t *testing.T) {
	loop, _ := newTestLoop(t)
	for _, fd := range []int{9, 3, 5} {
		require.NoError(t, loop.AddReader(fd, cb))
	}
	var fds []int
	for _, d := range loop.Descriptors() {
		fds = append(fds, d.Fileno())
	}
	assert.Equal(t, []int{3, 5, 9}, fds)
}
