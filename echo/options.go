package echo

import (
	"errors"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

const (
	// DefaultBacklog is the listen backlog, and the most connections
	// accepted per readiness event.
	DefaultBacklog = 128

	// DefaultReadBufferSize is the size of the buffer shared by every
	// connection's reads.
	DefaultReadBufferSize = 32 * 1024
)

type serverOptions struct {
	logger         *logiface.Logger[logiface.Event]
	limiter        *catrate.Limiter
	backlog        int
	readBufferSize int
}

// Option configures a Server.
type Option interface {
	applyServer(*serverOptions) error
}

type optionImpl struct {
	applyServerFunc func(*serverOptions) error
}

func (o *optionImpl) applyServer(opts *serverOptions) error {
	return o.applyServerFunc(opts)
}

// WithLogger attaches a structured logger.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *serverOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithAcceptLimiter rate limits accepted connections per peer IP. Accepted
// connections over the limit are closed immediately.
func WithAcceptLimiter(limiter *catrate.Limiter) Option {
	return &optionImpl{func(opts *serverOptions) error {
		opts.limiter = limiter
		return nil
	}}
}

// WithBacklog sets the listen backlog.
func WithBacklog(n int) Option {
	return &optionImpl{func(opts *serverOptions) error {
		if n <= 0 {
			return errors.New("echo: backlog must be positive")
		}
		opts.backlog = n
		return nil
	}}
}

// WithReadBufferSize sets the read buffer size. Pending output for a
// connection is capped at twice this size before reading pauses.
func WithReadBufferSize(n int) Option {
	return &optionImpl{func(opts *serverOptions) error {
		if n <= 0 {
			return errors.New("echo: read buffer size must be positive")
		}
		opts.readBufferSize = n
		return nil
	}}
}

func resolveOptions(opts []Option) (*serverOptions, error) {
	cfg := &serverOptions{
		backlog:        DefaultBacklog,
		readBufferSize: DefaultReadBufferSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyServer(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
