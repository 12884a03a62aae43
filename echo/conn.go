//go:build linux

package echo

import (
	"errors"

	"github.com/joeycumines/go-loopbridge/reactor"
	"golang.org/x/sys/unix"
)

// conn echoes everything it reads. Output the socket will not take yet is
// buffered, and reading pauses while the buffer is over the high water mark.
//
// The fd keeps a reader or a writer for as long as the conn is open, so the
// disconnect callback set at accept stays in place.
type conn struct {
	server  *Server
	peer    string
	pending []byte
	fd      int
	paused  bool
	closed  bool
}

func (c *conn) read(...any) error {
	n, err := unix.Read(c.fd, c.server.buf)
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return nil
	case err != nil:
		c.close(err)
		return nil
	case n == 0:
		c.close(nil)
		return nil
	}
	c.write(c.server.buf[:n])
	return nil
}

func (c *conn) write(data []byte) {
	if len(c.pending) == 0 {
		n, err := unix.Write(c.fd, data)
		if err != nil && !errors.Is(err, unix.EAGAIN) {
			c.close(err)
			return
		}
		data = data[max(n, 0):]
		if len(data) == 0 {
			return
		}
		if err := c.server.loop.AddWriter(c.fd, c.flush); err != nil {
			c.close(err)
			return
		}
	}

	c.pending = append(c.pending, data...)
	if len(c.pending) >= c.server.highWater() && !c.paused {
		c.paused = true
		c.server.loop.RemoveReader(c.fd)
	}
}

func (c *conn) flush(...any) error {
	n, err := unix.Write(c.fd, c.pending)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return nil
		}
		c.close(err)
		return nil
	}

	c.pending = c.pending[n:]
	if len(c.pending) != 0 {
		return nil
	}
	c.pending = nil

	if c.paused {
		c.paused = false
		if err := c.server.loop.AddReader(c.fd, c.read); err != nil {
			c.close(err)
			return nil
		}
	}
	c.server.loop.RemoveWriter(c.fd)
	return nil
}

// lost is called once the loop has dropped the fd, e.g. on a reset while
// reading was paused.
func (c *conn) lost(reason error) {
	if errors.Is(reason, reactor.ErrConnectionDone) {
		reason = nil
	}
	c.close(reason)
}

// close releases the connection. A nil reason is a clean close by the peer.
func (c *conn) close(reason error) {
	if c.closed {
		return
	}
	c.closed = true

	s := c.server
	s.loop.RemoveReader(c.fd)
	s.loop.RemoveWriter(c.fd)
	delete(s.conns, c.fd)
	_ = unix.Close(c.fd)

	if reason != nil {
		s.logger.Info().
			Int("fd", c.fd).
			Str("peer", c.peer).
			Err(reason).
			Log("echo: connection failed")
		return
	}
	s.logger.Debug().
		Int("fd", c.fd).
		Str("peer", c.peer).
		Log("echo: connection closed")
}
