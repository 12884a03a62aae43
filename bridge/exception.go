package bridge

import (
	"github.com/joeycumines/go-loopbridge/reactor"
)

// ExceptionContext describes a failure the event loop could not return to
// a caller. Only Message is always set.
type ExceptionContext struct {
	Err        error
	Descriptor *Descriptor
	Handle     *TimerHandle
	Future     Future
	Message    string
}

// ExceptionHandler receives failures from callbacks and descriptors.
type ExceptionHandler func(loop *EventLoop, ctx ExceptionContext)

// SetExceptionHandler replaces the exception handler. A nil handler restores
// the default, [EventLoop.DefaultExceptionHandler].
func (l *EventLoop) SetExceptionHandler(handler ExceptionHandler) {
	l.exceptionHandler = handler
}

// ExceptionHandler returns the handler set with SetExceptionHandler, or nil.
func (l *EventLoop) ExceptionHandler() ExceptionHandler {
	return l.exceptionHandler
}

// CallExceptionHandler passes ctx to the exception handler. A panicking
// handler is logged with the default handler.
func (l *EventLoop) CallExceptionHandler(ctx ExceptionContext) {
	handler := l.exceptionHandler
	if handler == nil {
		l.DefaultExceptionHandler(ctx)
		return
	}
	if err := reactor.SafeCall(func() error {
		handler(l, ctx)
		return nil
	}); err != nil {
		l.DefaultExceptionHandler(ExceptionContext{
			Message: "unhandled error in exception handler",
			Err:     err,
		})
		l.DefaultExceptionHandler(ctx)
	}
}

// DefaultExceptionHandler logs ctx at error level.
func (l *EventLoop) DefaultExceptionHandler(ctx ExceptionContext) {
	b := l.logger.Err()
	if !b.Enabled() {
		return
	}
	b = b.Str("message", ctx.Message)
	if ctx.Err != nil {
		b = b.Err(ctx.Err)
		if pe, ok := ctx.Err.(*reactor.PanicError); ok {
			b = b.Str("stack", string(pe.Stack))
		}
	}
	if ctx.Descriptor != nil {
		b = b.Int("fd", ctx.Descriptor.Fileno())
	}
	if ctx.Handle != nil {
		b = b.Str("handle", ctx.Handle.String())
	}
	b.Log("bridge: unhandled exception")
}
