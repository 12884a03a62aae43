//go:build linux

package echo

import (
	"errors"
	"fmt"
	"maps"
	"net"
	"slices"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-loopbridge/bridge"
	"github.com/joeycumines/logiface"
	"golang.org/x/sys/unix"
)

// Server is a TCP echo server, with every socket driven by an EventLoop.
type Server struct {
	loop    *bridge.EventLoop
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
	addr    *net.TCPAddr
	conns   map[int]*conn
	buf     []byte
	fd      int
	backlog int
	closed  bool
}

// Listen binds address, and starts accepting connections on loop. It must
// be called from the loop goroutine, or before the loop runs.
func Listen(loop *bridge.EventLoop, address string, opts ...Option) (*Server, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("echo: resolve %q: %w", address, err)
	}

	fd, err := listenTCP(tcpAddr, cfg.backlog)
	if err != nil {
		return nil, fmt.Errorf("echo: listen %q: %w", address, err)
	}

	s := &Server{
		loop:    loop,
		logger:  cfg.logger,
		limiter: cfg.limiter,
		conns:   make(map[int]*conn),
		buf:     make([]byte, cfg.readBufferSize),
		fd:      fd,
		backlog: cfg.backlog,
	}

	if s.addr, err = localAddr(fd); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	if err := loop.AddReader(fd, s.accept); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	s.logger.Info().
		Str("addr", s.addr.String()).
		Log("echo: listening")

	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() *net.TCPAddr { return s.addr }

// Conns returns the number of open connections.
func (s *Server) Conns() int { return len(s.conns) }

// Close stops accepting, and closes every open connection. Like Listen, it
// must not race with the loop.
func (s *Server) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.loop.RemoveReader(s.fd)
	for _, fd := range slices.Sorted(maps.Keys(s.conns)) {
		s.conns[fd].close(nil)
	}
	return unix.Close(s.fd)
}

func (s *Server) highWater() int { return 2 * len(s.buf) }

// accept drains the listen backlog.
func (s *Server) accept(...any) error {
	for range s.backlog {
		nfd, sa, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch {
		case err == nil:
		case errors.Is(err, unix.EAGAIN):
			return nil
		case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
			continue
		case errors.Is(err, unix.EMFILE), errors.Is(err, unix.ENFILE), errors.Is(err, unix.ENOBUFS), errors.Is(err, unix.ENOMEM):
			s.logger.Warning().
				Err(err).
				Log("echo: accept failed, out of resources")
			return nil
		default:
			return fmt.Errorf("echo: accept: %w", err)
		}

		peer := sockaddrIP(sa)
		if next, ok := s.limiter.Allow(peer); !ok {
			s.logger.Warning().
				Str("peer", peer).
				Dur("retry_after", time.Until(next)).
				Log("echo: connection rate limited")
			_ = unix.Close(nfd)
			continue
		}

		c := &conn{server: s, fd: nfd, peer: peer}
		if err := s.loop.AddReader(nfd, c.read); err != nil {
			s.logger.Err().
				Int("fd", nfd).
				Err(err).
				Log("echo: failed to register connection")
			_ = unix.Close(nfd)
			continue
		}
		s.loop.OnDisconnect(nfd, c.lost)
		s.conns[nfd] = c

		s.logger.Debug().
			Int("fd", nfd).
			Str("peer", peer).
			Log("echo: connection accepted")
	}
	return nil
}

func listenTCP(addr *net.TCPAddr, backlog int) (fd int, err error) {
	domain := unix.AF_INET6
	var sa unix.Sockaddr
	if ip4 := addr.IP.To4(); ip4 != nil || addr.IP == nil {
		domain = unix.AF_INET
		inet4 := &unix.SockaddrInet4{Port: addr.Port}
		copy(inet4.Addr[:], ip4)
		sa = inet4
	} else {
		inet6 := &unix.SockaddrInet6{Port: addr.Port}
		copy(inet6.Addr[:], addr.IP.To16())
		sa = inet6
	}

	fd, err = unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	defer func() {
		if err != nil {
			_ = unix.Close(fd)
			fd = -1
		}
	}()

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return
	}
	if err = unix.Bind(fd, sa); err != nil {
		return
	}
	err = unix.Listen(fd, backlog)
	return
}

func localAddr(fd int) (*net.TCPAddr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, fmt.Errorf("echo: getsockname: %w", err)
	}
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(sa.Addr[:]).To16(), Port: sa.Port}, nil
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(sa.Addr[:]), Port: sa.Port}, nil
	default:
		return nil, fmt.Errorf("echo: unexpected socket address %T", sa)
	}
}

func sockaddrIP(sa unix.Sockaddr) string {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(sa.Addr[:]).String()
	case *unix.SockaddrInet6:
		return net.IP(sa.Addr[:]).String()
	default:
		return "unknown"
	}
}
