package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeycumines/go-loopbridge/reactor"
)

// TimerHandle is returned by CallLater, CallAt and CallSoon. It wraps the
// reactor's own delayed call, which remains responsible for scheduling.
type TimerHandle struct {
	loop      *EventLoop
	callback  Callable
	native    reactor.DelayedCall
	when      time.Duration
	cancelled bool
}

// When returns the scheduled time, on the loop's clock, see [EventLoop.Time].
func (h *TimerHandle) When() time.Duration { return h.when }

// Callback returns the scheduled callable.
func (h *TimerHandle) Callback() Callable { return h.callback }

// Cancelled reports whether Cancel was called.
func (h *TimerHandle) Cancelled() bool { return h.cancelled }

// Cancel prevents the callback from running, if it has not already. Only
// the first call has any effect, and it cancels the reactor's delayed call.
func (h *TimerHandle) Cancel() {
	if h.cancelled {
		return
	}
	h.cancelled = true
	if h.native == nil {
		return
	}
	if err := h.native.Cancel(); err != nil &&
		!errors.Is(err, reactor.ErrAlreadyCalled) &&
		!errors.Is(err, reactor.ErrAlreadyCancelled) {
		h.loop.logger.Warning().
			Err(err).
			Log("bridge: failed to cancel delayed call")
	}
}

func (h *TimerHandle) String() string {
	state := "pending"
	if h.cancelled {
		state = "cancelled"
	}
	return fmt.Sprintf("TimerHandle(when=%s, %s, %s)", h.when, h.callback, state)
}

func (h *TimerHandle) run() {
	if h.cancelled {
		return
	}
	if err := h.loop.runCallback("bridge.timer", h.callback); err != nil {
		h.loop.CallExceptionHandler(ExceptionContext{
			Message: "timer callback failed",
			Err:     err,
			Handle:  h,
		})
	}
}

// CallLater schedules fn(args...) to run after delay, on the loop goroutine.
// Negative delays are treated as zero. Callbacks scheduled for the same
// time run in the order they were scheduled.
//
// On a closed loop, the returned handle is already cancelled.
func (l *EventLoop) CallLater(delay time.Duration, fn Callback, args ...any) *TimerHandle {
	if delay < 0 {
		delay = 0
	}
	return l.schedule(l.Time()+delay, delay, NewCallable(fn, args...))
}

// CallAt schedules fn(args...) to run at when, on the loop's clock. Times in
// the past run on the next iteration, and When still reports when.
func (l *EventLoop) CallAt(when time.Duration, fn Callback, args ...any) *TimerHandle {
	return l.schedule(when, when-l.Time(), NewCallable(fn, args...))
}

// schedule records when on the handle, and asks the reactor for delay.
func (l *EventLoop) schedule(when, delay time.Duration, cb Callable) *TimerHandle {
	h := &TimerHandle{
		loop:     l,
		callback: cb,
		when:     when,
	}
	if l.closed.Load() {
		h.cancelled = true
		l.logger.Err().
			Str("callback", h.callback.String()).
			Log("bridge: cannot schedule on a closed event loop")
		return h
	}
	h.native = l.reactor.CallLater(max(delay, 0), h.run)
	return h
}

// CallSoon schedules fn(args...) to run on the next loop iteration.
func (l *EventLoop) CallSoon(fn Callback, args ...any) *TimerHandle {
	return l.CallLater(0, fn, args...)
}

// Time returns the reactor's monotonic clock, the time base of CallLater
// and CallAt.
func (l *EventLoop) Time() time.Duration {
	return l.reactor.Now()
}
