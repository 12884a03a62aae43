package bridge

import (
	"maps"
	"slices"
)

// registry holds at most one Descriptor per fd, translating independent read
// and write interest into the reactor's whole-object registrations.
//
// A Descriptor is present iff at least one of its slots is active, and it is
// registered with the reactor for every active slot. The registry is only
// used from the event loop goroutine.
type registry struct {
	reactor Reactor
	entries map[int]*Descriptor
}

func newRegistry(r Reactor) registry {
	return registry{reactor: r, entries: make(map[int]*Descriptor)}
}

// add sets the callback for one direction, registering interest with the
// reactor if it was not already registered. On failure the previous state
// is restored.
func (x *registry) add(loop *EventLoop, fd int, dir direction, cb Callable) error {
	d, ok := x.entries[fd]
	if !ok {
		d = &Descriptor{loop: loop, fd: fd}
	}

	prev := d.slots[dir]
	var slots callbackSlots = d
	if slots.setSlot(dir, cb) {
		// already registered, last write wins
		return nil
	}

	var err error
	if dir == dirRead {
		err = x.reactor.AddReader(d)
	} else {
		err = x.reactor.AddWriter(d)
	}
	if err != nil {
		d.slots[dir] = prev
		return err
	}

	if !ok {
		x.entries[fd] = d
	}
	return nil
}

// remove drops the interest for one direction, destroying the Descriptor
// once it has none left. It reports whether there was interest to remove.
func (x *registry) remove(fd int, dir direction) bool {
	d, ok := x.entries[fd]
	if !ok || !d.slots[dir].active {
		return false
	}

	if dir == dirRead {
		x.reactor.RemoveReader(d)
	} else {
		x.reactor.RemoveWriter(d)
	}

	var slots callbackSlots = d
	slots.clearSlot(dir)
	if slots.idle() {
		delete(x.entries, fd)
	}
	return true
}

// forget drops d without touching the reactor, which already removed it.
func (x *registry) forget(d *Descriptor) {
	if x.entries[d.fd] == d {
		delete(x.entries, d.fd)
	}
	d.clearSlot(dirRead)
	d.clearSlot(dirWrite)
	d.onLost = nil
}

func (x *registry) lookup(fd int) (*Descriptor, bool) {
	d, ok := x.entries[fd]
	return d, ok
}

// descriptors returns the registered descriptors, ordered by fd.
func (x *registry) descriptors() []*Descriptor {
	fds := slices.Sorted(maps.Keys(x.entries))
	out := make([]*Descriptor, len(fds))
	for i, fd := range fds {
		out[i] = x.entries[fd]
	}
	return out
}

// removeAll removes every registration, in fd order.
func (x *registry) removeAll() {
	for _, d := range x.descriptors() {
		x.remove(d.fd, dirRead)
		x.remove(d.fd, dirWrite)
	}
}
