package bridge

import (
	"errors"
	"sync"

	"github.com/joeycumines/go-loopbridge/reactor"
)

// DoneCallbackID identifies a callback added with AddDoneCallback.
type DoneCallbackID uint64

// Future is the view of a pending result that RunUntilComplete needs.
type Future interface {
	// AddDoneCallback arranges for fn to be called once the future is done.
	// If it is already done, fn is still called, not synchronously.
	AddDoneCallback(fn func(Future)) DoneCallbackID

	// RemoveDoneCallback removes a callback that has not yet been scheduled,
	// reporting whether it was found.
	RemoveDoneCallback(id DoneCallbackID) bool

	// Done reports whether the future has a result, failure or was cancelled.
	Done() bool

	// Result returns the result or failure of a done future.
	Result() (any, error)
}

// futureState is the lifecycle of a FutureValue. Transitions out of
// futurePending are irreversible.
type futureState int

const (
	futurePending futureState = iota
	futureResolved
	futureFailed
	futureCancelled
)

type doneCallback struct {
	fn func(Future)
	id DoneCallbackID
}

// FutureValue is the Future implementation bound to an EventLoop. Done
// callbacks run on the loop, scheduled with CallSoon.
//
// Methods are safe to call from any goroutine, though resolving from
// outside the loop is better done through CallSoonThreadsafe.
type FutureValue struct {
	loop      *EventLoop
	result    any
	err       error
	callbacks []doneCallback
	nextID    DoneCallbackID
	state     futureState
	mu        sync.Mutex
}

var _ Future = (*FutureValue)(nil)

// CreateFuture returns a pending future attached to the loop.
func (l *EventLoop) CreateFuture() *FutureValue {
	return &FutureValue{loop: l}
}

// SetResult resolves the future, returning ErrFutureDone if it was already
// done.
func (f *FutureValue) SetResult(v any) error {
	return f.settle(futureResolved, v, nil)
}

// SetError fails the future with err, returning ErrFutureDone if it was
// already done.
func (f *FutureValue) SetError(err error) error {
	if err == nil {
		return errors.New("bridge: SetError called with a nil error")
	}
	return f.settle(futureFailed, nil, err)
}

// Cancel cancels the future, reporting false if it was already done.
func (f *FutureValue) Cancel() bool {
	return f.settle(futureCancelled, nil, ErrFutureCancelled) == nil
}

func (f *FutureValue) settle(state futureState, v any, err error) error {
	f.mu.Lock()
	if f.state != futurePending {
		f.mu.Unlock()
		return ErrFutureDone
	}
	f.state = state
	f.result = v
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()

	for _, cb := range callbacks {
		f.schedule(cb.fn)
	}
	return nil
}

func (f *FutureValue) schedule(fn func(Future)) {
	f.loop.CallSoon(func(...any) error {
		fn(f)
		return nil
	})
}

// Cancelled reports whether the future was cancelled.
func (f *FutureValue) Cancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == futureCancelled
}

// Done reports whether the future is no longer pending.
func (f *FutureValue) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state != futurePending
}

// Result returns the value passed to SetResult, or the error passed to
// SetError. It returns ErrFuturePending while pending, and
// ErrFutureCancelled after Cancel.
func (f *FutureValue) Result() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == futurePending {
		return nil, ErrFuturePending
	}
	return f.result, f.err
}

// AddDoneCallback implements Future.
func (f *FutureValue) AddDoneCallback(fn func(Future)) DoneCallbackID {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	if f.state == futurePending {
		f.callbacks = append(f.callbacks, doneCallback{fn: fn, id: id})
		f.mu.Unlock()
		return id
	}
	f.mu.Unlock()
	f.schedule(fn)
	return id
}

// RemoveDoneCallback implements Future.
func (f *FutureValue) RemoveDoneCallback(id DoneCallbackID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, cb := range f.callbacks {
		if cb.id == id {
			f.callbacks = append(f.callbacks[:i:i], f.callbacks[i+1:]...)
			return true
		}
	}
	return false
}

// ToChannel returns a channel that receives the future once it is done.
// The channel is buffered, and receives exactly one value.
func (f *FutureValue) ToChannel() <-chan Future {
	ch := make(chan Future, 1)
	f.AddDoneCallback(func(fut Future) { ch <- fut })
	return ch
}

// RunInExecutor calls fn on a new goroutine, resolving the returned future
// on the loop goroutine once it returns. A panic in fn fails the future
// with a *reactor.PanicError.
func (l *EventLoop) RunInExecutor(fn func() (any, error)) *FutureValue {
	f := l.CreateFuture()
	go func() {
		var v any
		err := reactor.SafeCall(func() (err error) {
			v, err = fn()
			return err
		})
		if serr := l.CallSoonThreadsafe(func(...any) error {
			if err != nil {
				_ = f.SetError(err)
			} else {
				_ = f.SetResult(v)
			}
			return nil
		}); serr != nil {
			l.logger.Err().
				Err(serr).
				Log("bridge: dropped executor result")
		}
	}()
	return f
}
