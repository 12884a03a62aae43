package reactor

import (
	"container/heap"
	"time"
)

// delayedCall is the reactor's DelayedCall implementation, stored in a
// min-heap ordered by time, then by scheduling order.
type delayedCall struct {
	reactor   *Reactor
	fn        func()
	when      time.Duration
	seq       uint64
	index     int
	called    bool
	cancelled bool
}

var _ DelayedCall = (*delayedCall)(nil)

func (c *delayedCall) Time() time.Duration {
	c.reactor.mu.Lock()
	defer c.reactor.mu.Unlock()
	return c.when
}

func (c *delayedCall) Cancel() error {
	r := c.reactor
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := c.checkActive(); err != nil {
		return err
	}
	c.cancelled = true
	if c.index >= 0 {
		heap.Remove(&r.timers, c.index)
	}
	c.fn = nil
	return nil
}

func (c *delayedCall) Reset(delay time.Duration) error {
	return c.reschedule(func() time.Duration {
		return c.reactor.Now() + clampDelay(delay)
	})
}

func (c *delayedCall) Delay(d time.Duration) error {
	return c.reschedule(func() time.Duration {
		return c.when + d
	})
}

func (c *delayedCall) reschedule(when func() time.Duration) error {
	r := c.reactor
	r.mu.Lock()
	if err := c.checkActive(); err != nil {
		r.mu.Unlock()
		return err
	}
	c.when = when()
	r.seq++
	c.seq = r.seq
	heap.Fix(&r.timers, c.index)
	r.mu.Unlock()
	r.wakeIfForeign()
	return nil
}

func (c *delayedCall) Active() bool {
	c.reactor.mu.Lock()
	defer c.reactor.mu.Unlock()
	return !c.called && !c.cancelled
}

// checkActive must be called with the reactor lock held.
func (c *delayedCall) checkActive() error {
	switch {
	case c.cancelled:
		return ErrAlreadyCancelled
	case c.called:
		return ErrAlreadyCalled
	default:
		return nil
	}
}

// timerHeap is a min-heap of delayed calls.
type timerHeap []*delayedCall

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when != h[j].when {
		return h[i].when < h[j].when
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	c := x.(*delayedCall)
	c.index = len(*h)
	*h = append(*h, c)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	c.index = -1
	*h = old[:n-1]
	return c
}

func clampDelay(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
