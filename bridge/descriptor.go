package bridge

import (
	"errors"
	"strconv"

	"github.com/joeycumines/go-loopbridge/reactor"
)

// direction selects one of a Descriptor's callback slots.
type direction int

const (
	dirRead direction = iota
	dirWrite
)

func (d direction) String() string {
	if d == dirRead {
		return "read"
	}
	return "write"
}

// slot is the interest state for one direction. An inactive slot means no
// interest, regardless of callback.
type slot struct {
	callback Callable
	active   bool
}

// callbackSlots is the registry-facing view of a Descriptor.
type callbackSlots interface {
	setSlot(dir direction, cb Callable) (wasActive bool)
	clearSlot(dir direction) (wasActive bool)
	idle() bool
}

// Descriptor is the merged read and write registration for one fd. It is the
// object registered with the reactor, see [reactor.FileDescriptor].
//
// Descriptors are created and owned by the EventLoop.
type Descriptor struct {
	loop   *EventLoop
	onLost func(reason error)
	slots  [2]slot
	fd     int
}

var (
	_ reactor.FileDescriptor = (*Descriptor)(nil)
	_ callbackSlots          = (*Descriptor)(nil)
)

// Fileno returns the fd.
func (d *Descriptor) Fileno() int { return d.fd }

// ReadCallback returns the read callback, and whether read interest is
// registered.
func (d *Descriptor) ReadCallback() (Callable, bool) {
	s := d.slots[dirRead]
	return s.callback, s.active
}

// WriteCallback returns the write callback, and whether write interest is
// registered.
func (d *Descriptor) WriteCallback() (Callable, bool) {
	s := d.slots[dirWrite]
	return s.callback, s.active
}

// DoRead invokes the read callback. A failure is returned to the reactor,
// which disconnects the descriptor.
func (d *Descriptor) DoRead() error { return d.dispatch(dirRead) }

// DoWrite invokes the write callback, see DoRead.
func (d *Descriptor) DoWrite() error { return d.dispatch(dirWrite) }

func (d *Descriptor) dispatch(dir direction) error {
	s := d.slots[dir]
	if !s.active {
		return nil
	}
	// the reactor already runs this within its logging context
	return d.loop.timeCallback(d.LogPrefix(), s.callback, s.callback.Call)
}

// ConnectionLost is called by the reactor after it removed the descriptor.
// The registration is dropped, and the reason goes to the callback set by
// [EventLoop.OnDisconnect]. Without one, unless the peer simply hung up,
// the reason is passed to the exception handler.
func (d *Descriptor) ConnectionLost(reason error) {
	lost := d.onLost
	d.loop.registry.forget(d)
	if lost != nil {
		lost(reason)
		return
	}
	if reason == nil || errors.Is(reason, reactor.ErrConnectionDone) {
		d.loop.logger.Debug().
			Int("fd", d.fd).
			Log("bridge: descriptor closed by peer")
		return
	}
	d.loop.CallExceptionHandler(ExceptionContext{
		Message:    "descriptor disconnected",
		Err:        reason,
		Descriptor: d,
	})
}

// LogPrefix names the logging context callbacks run in.
func (d *Descriptor) LogPrefix() string {
	return "bridge.fd=" + strconv.Itoa(d.fd)
}

func (d *Descriptor) setSlot(dir direction, cb Callable) bool {
	wasActive := d.slots[dir].active
	d.slots[dir] = slot{callback: cb, active: true}
	return wasActive
}

func (d *Descriptor) clearSlot(dir direction) bool {
	wasActive := d.slots[dir].active
	d.slots[dir] = slot{}
	return wasActive
}

func (d *Descriptor) idle() bool {
	return !d.slots[dirRead].active && !d.slots[dirWrite].active
}
