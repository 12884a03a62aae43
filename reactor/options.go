// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"errors"
	"time"

	"github.com/joeycumines/logiface"
)

const (
	// DefaultMaxPollDelay caps how long a single poll may block without timers.
	DefaultMaxPollDelay = 10 * time.Second

	// DefaultEventBufferSize is the number of readiness events read per poll.
	DefaultEventBufferSize = 256
)

// reactorOptions holds configuration options for Reactor creation.
type reactorOptions struct {
	logger          *logiface.Logger[logiface.Event]
	maxPollDelay    time.Duration
	eventBufferSize int
}

// Option configures a Reactor instance.
type Option interface {
	applyReactor(*reactorOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyReactorFunc func(*reactorOptions) error
}

func (o *optionImpl) applyReactor(opts *reactorOptions) error {
	return o.applyReactorFunc(opts)
}

// WithLogger attaches a structured logger. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMaxPollDelay caps the time a single poll blocks when no timers are
// pending. It must be positive.
func WithMaxPollDelay(d time.Duration) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		if d <= 0 {
			return errors.New("reactor: max poll delay must be positive")
		}
		opts.maxPollDelay = d
		return nil
	}}
}

// WithEventBufferSize sets how many readiness events are read per poll.
func WithEventBufferSize(n int) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		if n <= 0 {
			return errors.New("reactor: event buffer size must be positive")
		}
		opts.eventBufferSize = n
		return nil
	}}
}

// resolveOptions applies Option instances to reactorOptions.
func resolveOptions(opts []Option) (*reactorOptions, error) {
	cfg := &reactorOptions{
		maxPollDelay:    DefaultMaxPollDelay,
		eventBufferSize: DefaultEventBufferSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyReactor(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
