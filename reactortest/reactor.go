package reactortest

import (
	"slices"
	"sync"
	"time"

	"github.com/joeycumines/go-loopbridge/reactor"
)

// MemoryReactor is an in-memory stand-in for [reactor.Reactor]. It records
// reader and writer registrations without touching the OS, lets tests fire
// readiness by hand, and runs delayed calls against a deterministic Clock.
//
// Each step of Run executes queued submissions, then the delayed calls due
// at the current time. When a step leaves nothing queued, the clock jumps
// to the next delayed call, or Run blocks until there is more work.
type MemoryReactor struct {
	// Clock drives CallLater and Now.
	Clock *Clock

	// FailAdd, if set, is consulted by AddReader and AddWriter, and a non-nil
	// result is returned without registering the descriptor.
	FailAdd func(fd reactor.FileDescriptor, write bool) error

	mu       sync.Mutex
	readers  []reactor.FileDescriptor
	writers  []reactor.FileDescriptor
	pending  []func()
	wake     chan struct{}
	running  bool
	stopping bool
	halt     bool
	closed   bool

	// stopGen invalidates halts queued by a Stop that a Crash overtook
	stopGen uint64
}

// NewMemoryReactor returns a MemoryReactor with a fresh Clock.
func NewMemoryReactor() *MemoryReactor {
	return &MemoryReactor{
		Clock: new(Clock),
		wake:  make(chan struct{}, 1),
	}
}

// AddReader registers fd as a reader. Adding an existing reader is a no-op.
func (m *MemoryReactor) AddReader(fd reactor.FileDescriptor) error {
	return m.add(fd, &m.readers, false)
}

// AddWriter registers fd as a writer. Adding an existing writer is a no-op.
func (m *MemoryReactor) AddWriter(fd reactor.FileDescriptor) error {
	return m.add(fd, &m.writers, true)
}

func (m *MemoryReactor) add(fd reactor.FileDescriptor, set *[]reactor.FileDescriptor, write bool) error {
	if m.FailAdd != nil {
		if err := m.FailAdd(fd, write); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return reactor.ErrClosed
	}
	if fd.Fileno() < 0 {
		return reactor.ErrBadDescriptor
	}
	if !slices.Contains(*set, fd) {
		*set = append(*set, fd)
	}
	return nil
}

// RemoveReader unregisters fd as a reader, if it was one.
func (m *MemoryReactor) RemoveReader(fd reactor.FileDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readers = removeDescriptor(m.readers, fd)
}

// RemoveWriter unregisters fd as a writer, if it was one.
func (m *MemoryReactor) RemoveWriter(fd reactor.FileDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writers = removeDescriptor(m.writers, fd)
}

func removeDescriptor(set []reactor.FileDescriptor, fd reactor.FileDescriptor) []reactor.FileDescriptor {
	if i := slices.Index(set, fd); i >= 0 {
		return slices.Delete(set, i, i+1)
	}
	return set
}

// RemoveAll unregisters every reader and writer, returning them.
func (m *MemoryReactor) RemoveAll() []reactor.FileDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.readers)
	for _, fd := range m.writers {
		if !slices.Contains(out, fd) {
			out = append(out, fd)
		}
	}
	m.readers = nil
	m.writers = nil
	return out
}

// Readers returns the registered readers, in registration order.
func (m *MemoryReactor) Readers() []reactor.FileDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.readers)
}

// Writers returns the registered writers, in registration order.
func (m *MemoryReactor) Writers() []reactor.FileDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.writers)
}

// IsReading reports whether fd is registered as a reader.
func (m *MemoryReactor) IsReading(fd reactor.FileDescriptor) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.readers, fd)
}

// IsWriting reports whether fd is registered as a writer.
func (m *MemoryReactor) IsWriting(fd reactor.FileDescriptor) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.writers, fd)
}

// FireRead simulates readability of the reader with the given fileno,
// returning false if there is no such reader. Failures disconnect the
// descriptor, as the real reactor would.
func (m *MemoryReactor) FireRead(fileno int) bool {
	fd := m.lookup(&m.readers, fileno)
	if fd == nil {
		return false
	}
	if err := m.CallWithLogger(fd.LogPrefix(), fd.DoRead); err != nil {
		m.DisconnectSelectable(fd, err, true)
	}
	return true
}

// FireWrite simulates writability of the writer with the given fileno,
// returning false if there is no such writer.
func (m *MemoryReactor) FireWrite(fileno int) bool {
	fd := m.lookup(&m.writers, fileno)
	if fd == nil {
		return false
	}
	if err := m.CallWithLogger(fd.LogPrefix(), fd.DoWrite); err != nil {
		m.DisconnectSelectable(fd, err, false)
	}
	return true
}

func (m *MemoryReactor) lookup(set *[]reactor.FileDescriptor, fileno int) reactor.FileDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fd := range *set {
		if fd.Fileno() == fileno {
			return fd
		}
	}
	return nil
}

// DisconnectSelectable removes fd as both reader and writer, then calls its
// ConnectionLost with why.
func (m *MemoryReactor) DisconnectSelectable(fd reactor.FileDescriptor, why error, isRead bool) {
	m.RemoveReader(fd)
	m.RemoveWriter(fd)
	_ = m.CallWithLogger(fd.LogPrefix(), func() error {
		fd.ConnectionLost(why)
		return nil
	})
}

// CallWithLogger calls fn, converting panics to errors.
func (m *MemoryReactor) CallWithLogger(prefix string, fn func() error) error {
	return reactor.SafeCall(fn)
}

// Now returns the Clock's time.
func (m *MemoryReactor) Now() time.Duration {
	return m.Clock.Now()
}

// CallLater schedules fn against the Clock.
func (m *MemoryReactor) CallLater(delay time.Duration, fn func()) reactor.DelayedCall {
	return m.Clock.CallLater(delay, fn)
}

// CallFromThread queues fn, to run on the next Run step (or Drain).
func (m *MemoryReactor) CallFromThread(fn func()) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return reactor.ErrClosed
	}
	m.pending = append(m.pending, fn)
	m.mu.Unlock()
	m.notify()
	return nil
}

// Pending returns the number of queued CallFromThread submissions.
func (m *MemoryReactor) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Drain runs queued submissions, including any they queue, returning how
// many ran.
func (m *MemoryReactor) Drain() int {
	var n int
	for {
		m.mu.Lock()
		pending := m.pending
		m.pending = nil
		m.mu.Unlock()
		if len(pending) == 0 {
			return n
		}
		for _, fn := range pending {
			fn()
			n++
		}
	}
}

// Run drives submissions and the Clock until Stop or Crash.
func (m *MemoryReactor) Run() error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return reactor.ErrClosed
	case m.running:
		m.mu.Unlock()
		return reactor.ErrAlreadyRunning
	}
	m.running = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.stopping = false
		m.halt = false
		m.mu.Unlock()
	}()

	for {
		if m.halted() {
			return nil
		}

		m.mu.Lock()
		pending := m.pending
		m.pending = nil
		m.mu.Unlock()
		for _, fn := range pending {
			fn()
		}

		// run whatever is due without moving the clock
		m.Clock.Advance(0)

		if m.halted() || m.Pending() != 0 {
			continue
		}

		if when, ok := m.Clock.next(); ok {
			m.Clock.Advance(max(when-m.Clock.Now(), 0))
			continue
		}

		<-m.wake
	}
}

func (m *MemoryReactor) halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halt
}

// Stop requests that Run return, after the current step and one more. It
// returns ErrNotRunning if Run is not active or is already stopping.
func (m *MemoryReactor) Stop() error {
	m.mu.Lock()
	if !m.running || m.stopping {
		m.mu.Unlock()
		return reactor.ErrNotRunning
	}
	m.stopping = true
	m.stopGen++
	gen := m.stopGen
	m.pending = append(m.pending, func() {
		m.mu.Lock()
		if m.stopGen == gen && m.stopping {
			m.halt = true
		}
		m.mu.Unlock()
	})
	m.mu.Unlock()
	m.notify()
	return nil
}

// Crash makes Run return, discarding any queued Stop.
func (m *MemoryReactor) Crash() {
	m.mu.Lock()
	m.stopGen++
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.halt = true
	m.mu.Unlock()
	m.notify()
}

// Running reports whether Run is active.
func (m *MemoryReactor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Close marks the reactor closed, failing with reactor.ErrRunning while
// running.
func (m *MemoryReactor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.running:
		return reactor.ErrRunning
	case m.closed:
		return reactor.ErrClosed
	}
	m.closed = true
	return nil
}

func (m *MemoryReactor) notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
