package bridge

import (
	"fmt"
	"reflect"
	"runtime"
	"slices"
	"strings"
)

// Callback is the signature of every function the event loop invokes. A
// returned error is the callback's failure, treated the same as a panic.
type Callback func(args ...any) error

// Callable pairs a Callback with the positional arguments it is invoked
// with. It is immutable, and compared by value using Equal.
//
// The zero value is a Callable that does nothing.
type Callable struct {
	fn   Callback
	args []any
}

// NewCallable binds args to fn. The args are copied.
func NewCallable(fn Callback, args ...any) Callable {
	c := Callable{fn: fn}
	if len(args) != 0 {
		c.args = slices.Clone(args)
	}
	return c
}

// Call invokes the function with the bound arguments.
func (c Callable) Call() error {
	if c.fn == nil {
		return nil
	}
	return c.fn(c.args...)
}

// Func returns the bound function.
func (c Callable) Func() Callback { return c.fn }

// Args returns a copy of the bound arguments.
func (c Callable) Args() []any { return slices.Clone(c.args) }

// IsZero reports whether c has no function.
func (c Callable) IsZero() bool { return c.fn == nil }

// Equal reports whether c and o bind the same function to deeply equal
// arguments. Functions are compared by code pointer, so two closures
// created from the same function literal are considered the same function.
func (c Callable) Equal(o Callable) bool {
	if (c.fn == nil) != (o.fn == nil) {
		return false
	}
	if c.fn != nil && funcPointer(c.fn) != funcPointer(o.fn) {
		return false
	}
	return reflect.DeepEqual(c.args, o.args)
}

// String formats the callable as the function name followed by its args.
func (c Callable) String() string {
	var b strings.Builder
	if c.fn == nil {
		b.WriteString("<nil>")
	} else if f := runtime.FuncForPC(funcPointer(c.fn)); f != nil {
		b.WriteString(f.Name())
	} else {
		b.WriteString("<unknown>")
	}
	b.WriteByte('(')
	for i, arg := range c.args {
		if i != 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%#v", arg)
	}
	b.WriteByte(')')
	return b.String()
}

func funcPointer(fn Callback) uintptr {
	return reflect.ValueOf(fn).Pointer()
}
