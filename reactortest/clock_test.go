package reactortest

import (
	"testing"
	"time"

	"github.com/joeycumines/go-loopbridge/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_Advance(t *testing.T) {
	var c Clock
	var order []string
	c.CallLater(2*time.Second, func() { order = append(order, "b") })
	c.CallLater(time.Second, func() {
		order = append(order, "a")
		c.CallLater(500*time.Millisecond, func() { order = append(order, "nested") })
	})
	c.CallLater(2*time.Second, func() { order = append(order, "c") })
	c.CallLater(-time.Second, func() { order = append(order, "now") })

	assert.Len(t, c.Calls(), 4)

	c.Advance(0)
	assert.Equal(t, []string{"now"}, order)

	c.Advance(time.Second)
	assert.Equal(t, []string{"now", "a"}, order)
	assert.Equal(t, time.Second, c.Now())

	c.Advance(time.Second)
	assert.Equal(t, []string{"now", "a", "nested", "b", "c"}, order)
	assert.Equal(t, 2*time.Second, c.Now())
	assert.Empty(t, c.Calls())
}

func TestClock_Pump(t *testing.T) {
	var c Clock
	var n int
	c.CallLater(3*time.Second, func() { n++ })
	c.Pump(time.Second, time.Second, time.Second)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3*time.Second, c.Now())
}

func TestClock_DelayedCall(t *testing.T) {
	var c Clock
	var ran []string
	a := c.CallLater(time.Second, func() { ran = append(ran, "a") })
	b := c.CallLater(2*time.Second, func() { ran = append(ran, "b") })

	require.NoError(t, b.Reset(500*time.Millisecond))
	assert.Equal(t, 500*time.Millisecond, b.Time())
	require.NoError(t, a.Delay(time.Second))
	assert.Equal(t, 2*time.Second, a.Time())
	assert.Equal(t, []reactor.DelayedCall{b, a}, c.Calls())

	require.NoError(t, a.Cancel())
	assert.ErrorIs(t, a.Cancel(), reactor.ErrAlreadyCancelled)
	assert.False(t, a.Active())

	c.Advance(5 * time.Second)
	assert.Equal(t, []string{"b"}, ran)
	assert.False(t, b.Active())
	assert.ErrorIs(t, b.Cancel(), reactor.ErrAlreadyCalled)
	assert.ErrorIs(t, b.Reset(0), reactor.ErrAlreadyCalled)
}
