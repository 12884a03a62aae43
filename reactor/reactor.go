// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"container/heap"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// Reactor is a readiness-driven I/O dispatcher. It polls the registered
// descriptors, calling DoRead and DoWrite as they become ready, and runs
// delayed calls and cross-goroutine submissions between polls.
//
// Descriptor and timer methods may be called from any goroutine, but
// dispatch (and therefore every callback) happens on the goroutine running
// [Reactor.Run].
type Reactor struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	logger *logiface.Logger[logiface.Event]
	poller *poller

	// epoch anchors the monotonic clock, see Now
	epoch time.Time

	maxPollDelay time.Duration

	state runState

	// stopGen is bumped by Stop and Crash, invalidating queued stops
	stopGen atomic.Uint64

	// runMu is held for the duration of Run
	runMu sync.Mutex

	// loopGoroutineID is set while Run is on the stack
	loopGoroutineID atomic.Uint64

	mu sync.Mutex

	// selectables maps fd to its descriptor, for every fd in reads or writes
	selectables map[int]FileDescriptor
	reads       map[int]struct{}
	writes      map[int]struct{}

	timers timerHeap
	seq    uint64

	// pending holds CallFromThread submissions
	pending []func()

	triggers   map[SystemEvent]*eventTriggers
	triggerSeq uint64

	// runErr records a fatal poll failure, returned by Run
	runErr error
}

// New creates a new reactor, allocating its poller.
func New(opts ...Option) (*Reactor, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	p, err := newPoller(cfg.eventBufferSize)
	if err != nil {
		return nil, err
	}

	return &Reactor{
		logger:       cfg.logger,
		poller:       p,
		epoch:        time.Now(),
		maxPollDelay: cfg.maxPollDelay,
		selectables:  make(map[int]FileDescriptor),
		reads:        make(map[int]struct{}),
		writes:       make(map[int]struct{}),
		triggers:     make(map[SystemEvent]*eventTriggers),
	}, nil
}

// AddReader starts monitoring reader for readability. Adding a descriptor
// already being read is a no-op.
func (r *Reactor) AddReader(reader FileDescriptor) error {
	return r.add(reader, r.reads, r.writes, EventRead, EventWrite)
}

// AddWriter starts monitoring writer for writability. Adding a descriptor
// already being written is a no-op.
func (r *Reactor) AddWriter(writer FileDescriptor) error {
	return r.add(writer, r.writes, r.reads, EventWrite, EventRead)
}

// RemoveReader stops monitoring reader for readability. Removing a
// descriptor that is not being read is a no-op.
func (r *Reactor) RemoveReader(reader FileDescriptor) {
	r.remove(reader, r.reads, r.writes, EventWrite)
}

// RemoveWriter stops monitoring writer for writability. Removing a
// descriptor that is not being written is a no-op.
func (r *Reactor) RemoveWriter(writer FileDescriptor) {
	r.remove(writer, r.writes, r.reads, EventRead)
}

func (r *Reactor) add(xer FileDescriptor, primary, other map[int]struct{}, event, otherEvent IOEvents) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Load() == StateClosed {
		return ErrClosed
	}

	fd := xer.Fileno()
	if fd < 0 {
		return ErrBadDescriptor
	}

	if _, ok := primary[fd]; ok {
		return nil
	}

	var err error
	if _, ok := other[fd]; ok {
		err = r.poller.modify(fd, event|otherEvent)
	} else {
		err = r.poller.register(fd, event)
	}
	if err != nil {
		return err
	}

	primary[fd] = struct{}{}
	r.selectables[fd] = xer
	return nil
}

func (r *Reactor) remove(xer FileDescriptor, primary, other map[int]struct{}, otherEvent IOEvents) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fd := xer.Fileno()
	if fd < 0 {
		// the descriptor was closed before it was removed, find it by identity
		fd = -1
		for k, v := range r.selectables {
			if v == xer {
				fd = k
				break
			}
		}
		if fd < 0 {
			return
		}
	}

	if _, ok := primary[fd]; !ok {
		return
	}
	delete(primary, fd)

	var err error
	if _, ok := other[fd]; ok {
		err = r.poller.modify(fd, otherEvent)
	} else {
		delete(r.selectables, fd)
		err = r.poller.unregister(fd)
	}
	if err != nil {
		// closing an fd drops it from the epoll set, so this is expected
		r.logger.Debug().
			Int("fd", fd).
			Err(err).
			Log("reactor: poller update failed on remove")
	}
}

// Readers returns the descriptors currently monitored for readability,
// ordered by fd.
func (r *Reactor) Readers() []FileDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(r.reads)
}

// Writers returns the descriptors currently monitored for writability,
// ordered by fd.
func (r *Reactor) Writers() []FileDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(r.writes)
}

func (r *Reactor) snapshot(set map[int]struct{}) []FileDescriptor {
	fds := make([]int, 0, len(set))
	for fd := range set {
		fds = append(fds, fd)
	}
	slices.Sort(fds)
	out := make([]FileDescriptor, len(fds))
	for i, fd := range fds {
		out[i] = r.selectables[fd]
	}
	return out
}

// RemoveAll removes every reader and writer, returning the descriptors that
// were removed.
func (r *Reactor) RemoveAll() []FileDescriptor {
	r.mu.Lock()
	fds := make([]int, 0, len(r.selectables))
	for fd := range r.selectables {
		fds = append(fds, fd)
	}
	slices.Sort(fds)
	removed := make([]FileDescriptor, len(fds))
	for i, fd := range fds {
		removed[i] = r.selectables[fd]
	}
	r.mu.Unlock()

	for _, xer := range removed {
		r.RemoveReader(xer)
		r.RemoveWriter(xer)
	}
	return removed
}

// DisconnectSelectable is the standard teardown path: the descriptor is
// removed as both reader and writer, then told why via ConnectionLost.
func (r *Reactor) DisconnectSelectable(xer FileDescriptor, why error, isRead bool) {
	r.RemoveReader(xer)
	r.RemoveWriter(xer)
	r.logger.Debug().
		Str("system", xer.LogPrefix()).
		Bool("read", isRead).
		Err(why).
		Log("reactor: disconnecting descriptor")
	_ = r.CallWithLogger(xer.LogPrefix(), func() error {
		xer.ConnectionLost(why)
		return nil
	})
}

// Now returns the reactor's monotonic clock, as the time elapsed since the
// reactor was created.
func (r *Reactor) Now() time.Duration {
	return time.Since(r.epoch)
}

// CallLater schedules fn to run on the reactor goroutine, after delay.
// Negative delays are treated as zero. Calls due at the same time run in
// the order they were scheduled.
func (r *Reactor) CallLater(delay time.Duration, fn func()) DelayedCall {
	c := &delayedCall{
		reactor: r,
		fn:      fn,
		when:    r.Now() + clampDelay(delay),
	}
	r.mu.Lock()
	r.seq++
	c.seq = r.seq
	heap.Push(&r.timers, c)
	r.mu.Unlock()
	r.wakeIfForeign()
	return c
}

// CallFromThread submits fn to run on the reactor goroutine. It is the only
// method intended to be called concurrently with a running reactor, by
// goroutines that do not otherwise synchronise with it.
func (r *Reactor) CallFromThread(fn func()) error {
	r.mu.Lock()
	if r.state.Load() == StateClosed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.pending = append(r.pending, fn)
	r.mu.Unlock()
	return r.wakeup()
}

// Run starts the reactor, blocking until Stop (after the shutdown triggers
// ran) or Crash. The reactor may be run again after Run returns.
func (r *Reactor) Run() error {
	if r.isLoopThread() {
		return ErrReentrantRun
	}

	if !r.runMu.TryLock() {
		return ErrAlreadyRunning
	}
	defer r.runMu.Unlock()

	if !r.state.TryTransition(StateIdle, StateRunning) {
		if r.state.Load() == StateClosed {
			return ErrClosed
		}
		return ErrAlreadyRunning
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r.loopGoroutineID.Store(getGoroutineID())
	defer r.loopGoroutineID.Store(0)

	r.mu.Lock()
	r.runErr = nil
	r.mu.Unlock()

	r.logger.Debug().Log("reactor: started")
	r.FireSystemEvent(EventStartup)

	for r.state.IsRunning() {
		r.iterate(r.timeout())
	}

	r.logger.Debug().Log("reactor: stopped")

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runErr
}

// Iterate runs a single iteration: pending submissions and due delayed
// calls, then one poll for up to timeout. It must not be called
// concurrently with Run.
func (r *Reactor) Iterate(timeout time.Duration) error {
	if r.state.Load() == StateClosed {
		return ErrClosed
	}
	r.iterate(timeout)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runErr
}

func (r *Reactor) iterate(timeout time.Duration) {
	r.runUntilCurrent()

	// submissions made by the calls above must not wait for the poll
	r.mu.Lock()
	if len(r.pending) != 0 {
		timeout = 0
	}
	r.mu.Unlock()

	if err := r.poller.wait(timeout, r.dispatch); err != nil {
		r.logger.Crit().Err(err).Log("reactor: poll failed, crashing")
		r.mu.Lock()
		r.runErr = err
		r.mu.Unlock()
		r.Crash()
	}
}

// runUntilCurrent runs pending submissions then every delayed call due now.
func (r *Reactor) runUntilCurrent() {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	for i, fn := range pending {
		r.safeExecute(fn)
		pending[i] = nil
	}

	now := r.Now()
	for {
		r.mu.Lock()
		if len(r.timers) == 0 || r.timers[0].when > now {
			r.mu.Unlock()
			return
		}
		c := heap.Pop(&r.timers).(*delayedCall)
		c.called = true
		fn := c.fn
		c.fn = nil
		r.mu.Unlock()

		r.safeExecute(fn)
	}
}

// timeout determines how long the next poll may block.
func (r *Reactor) timeout() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.state.IsRunning() || len(r.pending) != 0 {
		return 0
	}

	delay := r.maxPollDelay
	if len(r.timers) != 0 {
		next := r.timers[0].when - r.Now()
		if next < 0 {
			next = 0
		}
		if next < delay {
			delay = next
		}
	}
	return delay
}

// dispatch handles one readiness event.
func (r *Reactor) dispatch(fd int, events IOEvents) {
	r.mu.Lock()
	xer, ok := r.selectables[fd]
	_, reading := r.reads[fd]
	_, writing := r.writes[fd]
	r.mu.Unlock()

	if !ok {
		return
	}

	var (
		why    error
		inRead bool
	)

	if events&(EventHangup|EventError) != 0 && events&EventRead == 0 {
		if reading {
			inRead = true
			why = ErrConnectionDone
		} else {
			why = ErrConnectionLost
		}
	} else {
		why = r.CallWithLogger(xer.LogPrefix(), func() error {
			if xer.Fileno() == -1 {
				return ErrDescriptorWentAway
			}
			if events&EventRead != 0 && reading {
				inRead = true
				if err := xer.DoRead(); err != nil {
					return err
				}
			}
			if events&EventWrite != 0 && writing && r.isWriting(fd, xer) {
				inRead = false
				if err := xer.DoWrite(); err != nil {
					return err
				}
			}
			if xer.Fileno() != fd {
				inRead = false
				return ErrDescriptorWentAway
			}
			return nil
		})
	}

	if why != nil {
		r.DisconnectSelectable(xer, why, inRead)
	}
}

// isWriting re-checks write interest, DoRead may have removed it.
func (r *Reactor) isWriting(fd int, xer FileDescriptor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.writes[fd]
	return ok && r.selectables[fd] == xer
}

// Stop requests a graceful stop: the shutdown triggers run on the reactor
// goroutine, after which Run returns. Returns ErrNotRunning if the reactor
// is not running or is already stopping.
func (r *Reactor) Stop() error {
	if !r.state.TryTransition(StateRunning, StateStopping) {
		return ErrNotRunning
	}
	gen := r.stopGen.Add(1)
	return r.CallFromThread(func() {
		// a Crash may have ended the run this stop belonged to
		if r.stopGen.Load() != gen || r.state.Load() != StateStopping {
			return
		}
		r.FireSystemEvent(EventShutdown)
		r.state.TryTransition(StateStopping, StateIdle)
	})
}

// Crash stops the reactor at the next safe point, skipping the shutdown
// triggers. In-flight callbacks are not interrupted, and a Stop still
// queued is discarded.
func (r *Reactor) Crash() {
	r.stopGen.Add(1)
	if r.state.TransitionAny([]State{StateRunning, StateStopping}, StateIdle) {
		_ = r.wakeup()
	}
}

// Running reports whether Run is active, including while stopping.
func (r *Reactor) Running() bool {
	return r.state.IsRunning()
}

// State returns the current run state.
func (r *Reactor) State() State {
	return r.state.Load()
}

// Close releases the poller. It fails with ErrRunning while running, and
// with ErrClosed if already closed.
func (r *Reactor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.TryTransition(StateIdle, StateClosed) {
		if r.state.Load() == StateClosed {
			return ErrClosed
		}
		return ErrRunning
	}
	clear(r.selectables)
	clear(r.reads)
	clear(r.writes)
	for _, c := range r.timers {
		c.cancelled = true
		c.index = -1
		c.fn = nil
	}
	r.timers = nil
	r.pending = nil
	return r.poller.close()
}

// wakeIfForeign interrupts the poll when called off the reactor goroutine,
// so that newly scheduled work is not delayed by a long poll timeout.
func (r *Reactor) wakeIfForeign() {
	if r.state.IsRunning() && !r.isLoopThread() {
		_ = r.wakeup()
	}
}

func (r *Reactor) wakeup() error {
	if r.state.Load() == StateClosed {
		return ErrClosed
	}
	return r.poller.wakeup()
}

// isLoopThread checks if we're on the reactor goroutine.
func (r *Reactor) isLoopThread() bool {
	id := r.loopGoroutineID.Load()
	if id == 0 {
		return false
	}
	return getGoroutineID() == id
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
