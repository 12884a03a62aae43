// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bridge

import (
	"errors"
	"time"

	"github.com/joeycumines/logiface"
)

// loopOptions holds configuration options for EventLoop creation.
type loopOptions struct {
	logger           *logiface.Logger[logiface.Event]
	exceptionHandler ExceptionHandler
	slowCallback     time.Duration
}

// Option configures an EventLoop instance.
type Option interface {
	applyLoop(*loopOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (o *optionImpl) applyLoop(opts *loopOptions) error {
	return o.applyLoopFunc(opts)
}

// WithLogger attaches a structured logger. A nil logger disables logging,
// including that of the default exception handler.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithExceptionHandler sets the initial exception handler, see
// [EventLoop.SetExceptionHandler].
func WithExceptionHandler(handler ExceptionHandler) Option {
	return &optionImpl{func(opts *loopOptions) error {
		opts.exceptionHandler = handler
		return nil
	}}
}

// WithSlowCallbackDuration logs a warning for every callback that runs for
// at least d. Zero (the default) disables the check.
func WithSlowCallbackDuration(d time.Duration) Option {
	return &optionImpl{func(opts *loopOptions) error {
		if d < 0 {
			return errors.New("bridge: slow callback duration must not be negative")
		}
		opts.slowCallback = d
		return nil
	}}
}

// resolveOptions applies Option instances to loopOptions.
func resolveOptions(opts []Option) (*loopOptions, error) {
	cfg := &loopOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
