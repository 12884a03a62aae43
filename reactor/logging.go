package reactor

import (
	"runtime/debug"
)

// SafeCall calls fn, converting a panic into a *PanicError.
func SafeCall(fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// CallWithLogger calls fn within the logging context named prefix. Failures
// (returned errors and recovered panics) are logged against that context
// and returned, the caller decides whether they are fatal.
func (r *Reactor) CallWithLogger(prefix string, fn func() error) error {
	err := SafeCall(fn)
	if err != nil {
		if b := r.logger.Debug(); b.Enabled() {
			b = b.Str("system", prefix).Err(err)
			if pe, ok := err.(*PanicError); ok {
				b = b.Str("stack", string(pe.Stack))
			}
			b.Log("callback failed")
		}
	}
	return err
}

func (r *Reactor) safeExecute(fn func()) {
	if fn == nil {
		return
	}
	if err := SafeCall(func() error { fn(); return nil }); err != nil {
		r.logger.Err().Err(err).Log("reactor: task panicked")
	}
}
