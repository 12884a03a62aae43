//go:build linux

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// poller wraps epoll plus an eventfd used to wake a blocked wait.
//
// It holds no per-fd state, the reactor owns the descriptor tables.
type poller struct {
	epfd     int
	wakeFd   int
	wakeBuf  [8]byte
	eventBuf []unix.EpollEvent
}

func newPoller(size int) (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFd),
	}); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(wakeFd)
		return nil, err
	}

	return &poller{
		epfd:     epfd,
		wakeFd:   wakeFd,
		eventBuf: make([]unix.EpollEvent, size),
	}, nil
}

// register adds fd to the interest list.
func (p *poller) register(fd int, events IOEvents) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	})
}

// modify replaces the interest set for an already registered fd.
func (p *poller) modify(fd int, events IOEvents) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	})
}

// unregister removes fd from the interest list.
func (p *poller) unregister(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait blocks for up to timeout (negative blocks indefinitely), then calls
// fn for each ready fd. Wake-ups are drained and not reported.
func (p *poller) wait(timeout time.Duration, fn func(fd int, events IOEvents)) error {
	n, err := unix.EpollWait(p.epfd, p.eventBuf, timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}

	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		if fd == p.wakeFd {
			p.drainWakeup()
			continue
		}
		fn(fd, epollToEvents(p.eventBuf[i].Events))
	}

	return nil
}

// wakeup interrupts a blocked wait. Safe to call from any goroutine.
func (p *poller) wakeup() error {
	// any non-zero counter value wakes the wait, regardless of byte order
	buf := [8]byte{1}
	_, err := unix.Write(p.wakeFd, buf[:])
	if err == unix.EAGAIN {
		// counter saturated, a wake-up is already pending
		return nil
	}
	return err
}

func (p *poller) drainWakeup() {
	for {
		if _, err := unix.Read(p.wakeFd, p.wakeBuf[:]); err != nil {
			return
		}
	}
}

func (p *poller) close() error {
	err := unix.Close(p.epfd)
	if e := unix.Close(p.wakeFd); err == nil {
		err = e
	}
	return err
}

// timeoutMillis rounds up, so that a 0 < timeout < 1ms does not spin.
func timeoutMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		ms++
	}
	return int(ms)
}

// eventsToEpoll converts IOEvents to epoll event flags.
func eventsToEpoll(events IOEvents) uint32 {
	var epollEvents uint32
	if events&EventRead != 0 {
		epollEvents |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		epollEvents |= unix.EPOLLOUT
	}
	return epollEvents
}

// epollToEvents converts epoll event flags to IOEvents.
func epollToEvents(epollEvents uint32) IOEvents {
	var events IOEvents
	if epollEvents&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if epollEvents&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}
