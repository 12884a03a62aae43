package reactortest

import (
	"slices"
	"sync"
	"time"

	"github.com/joeycumines/go-loopbridge/reactor"
)

// Clock is a deterministic time source, which only advances when told.
// Delayed calls scheduled against it run synchronously within Advance.
//
// The zero value is ready to use.
type Clock struct {
	mu    sync.Mutex
	now   time.Duration
	seq   uint64
	calls []*delayedCall
}

// Now returns the current time on the clock.
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// CallLater schedules fn to run once the clock reaches now plus delay.
// Negative delays are treated as zero.
func (c *Clock) CallLater(delay time.Duration, fn func()) reactor.DelayedCall {
	if delay < 0 {
		delay = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	dc := &delayedCall{clock: c, fn: fn, when: c.now + delay}
	c.insert(dc)
	return dc
}

// Advance moves the clock forward by d, running every call that becomes
// due, in time order. Calls scheduled by those calls run too, if they fall
// within the window.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		if len(c.calls) == 0 || c.calls[0].when > target {
			c.now = target
			c.mu.Unlock()
			return
		}
		dc := c.calls[0]
		c.calls = slices.Delete(c.calls, 0, 1)
		if dc.when > c.now {
			c.now = dc.when
		}
		dc.called = true
		fn := dc.fn
		dc.fn = nil
		c.mu.Unlock()

		fn()
	}
}

// Pump advances the clock by each of the given durations in turn.
func (c *Clock) Pump(timings ...time.Duration) {
	for _, d := range timings {
		c.Advance(d)
	}
}

// Calls returns the pending delayed calls, in the order they will run.
func (c *Clock) Calls() []reactor.DelayedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]reactor.DelayedCall, len(c.calls))
	for i, dc := range c.calls {
		out[i] = dc
	}
	return out
}

// next returns the time of the earliest pending call.
func (c *Clock) next() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return 0, false
	}
	return c.calls[0].when, true
}

// insert must be called with the lock held. Calls due at the same time keep
// their scheduling order.
func (c *Clock) insert(dc *delayedCall) {
	c.seq++
	dc.seq = c.seq
	i, _ := slices.BinarySearchFunc(c.calls, dc, compareCalls)
	c.calls = slices.Insert(c.calls, i, dc)
}

func (c *Clock) removeLocked(dc *delayedCall) {
	if i := slices.Index(c.calls, dc); i >= 0 {
		c.calls = slices.Delete(c.calls, i, i+1)
	}
}

func compareCalls(a, b *delayedCall) int {
	switch {
	case a.when < b.when:
		return -1
	case a.when > b.when:
		return 1
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	default:
		return 0
	}
}

type delayedCall struct {
	clock     *Clock
	fn        func()
	when      time.Duration
	seq       uint64
	called    bool
	cancelled bool
}

var _ reactor.DelayedCall = (*delayedCall)(nil)

func (dc *delayedCall) Time() time.Duration {
	dc.clock.mu.Lock()
	defer dc.clock.mu.Unlock()
	return dc.when
}

func (dc *delayedCall) Cancel() error {
	c := dc.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := dc.checkActive(); err != nil {
		return err
	}
	dc.cancelled = true
	dc.fn = nil
	c.removeLocked(dc)
	return nil
}

func (dc *delayedCall) Reset(delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	return dc.reschedule(func() time.Duration { return dc.clock.now + delay })
}

func (dc *delayedCall) Delay(d time.Duration) error {
	return dc.reschedule(func() time.Duration { return dc.when + d })
}

func (dc *delayedCall) reschedule(when func() time.Duration) error {
	c := dc.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := dc.checkActive(); err != nil {
		return err
	}
	c.removeLocked(dc)
	dc.when = when()
	c.insert(dc)
	return nil
}

func (dc *delayedCall) Active() bool {
	dc.clock.mu.Lock()
	defer dc.clock.mu.Unlock()
	return !dc.called && !dc.cancelled
}

func (dc *delayedCall) checkActive() error {
	switch {
	case dc.cancelled:
		return reactor.ErrAlreadyCancelled
	case dc.called:
		return reactor.ErrAlreadyCalled
	default:
		return nil
	}
}
