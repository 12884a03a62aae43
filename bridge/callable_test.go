package bridge

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func otherCallback(...any) error { return nil }

func TestCallable_Call(t *testing.T) {
	var got []any
	c := NewCallable(func(args ...any) error {
		got = args
		return errors.New("failed")
	}, 1, "two")
	assert.EqualError(t, c.Call(), "failed")
	assert.Equal(t, []any{1, "two"}, got)

	assert.NoError(t, Callable{}.Call())
	assert.True(t, Callable{}.IsZero())
}

func TestCallable_Immutable(t *testing.T) {
	args := []any{1, 2}
	c := NewCallable(nop, args...)
	args[0] = 99
	assert.Equal(t, []any{1, 2}, c.Args())

	c.Args()[1] = 99
	assert.Equal(t, []any{1, 2}, c.Args())
}

func TestCallable_Equal(t *testing.T) {
	for _, tc := range [...]struct {
		name  string
		a, b  Callable
		equal bool
	}{
		{"same func and args", NewCallable(nop, 1, 2), NewCallable(nop, 1, 2), true},
		{"no args", NewCallable(nop), NewCallable(nop), true},
		{"different args", NewCallable(nop, 1, 2), NewCallable(nop, 1, 3), false},
		{"different arity", NewCallable(nop, 1), NewCallable(nop, 1, 2), false},
		{"different func", NewCallable(nop, 1), NewCallable(otherCallback, 1), false},
		{"zero values", Callable{}, Callable{}, true},
		{"zero and non-zero", Callable{}, NewCallable(nop), false},
		{"deep args", NewCallable(nop, []int{9}), NewCallable(nop, []int{9}), true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.equal, tc.a.Equal(tc.b))
			assert.Equal(t, tc.equal, tc.b.Equal(tc.a))
		})
	}
}

func TestCallable_String(t *testing.T) {
	s := NewCallable(nop, 9, "x").String()
	require.True(t, strings.HasSuffix(s, `.nop(9, "x")`), s)
	assert.Equal(t, "<nil>()", Callable{}.String())
}
