//go:build !linux

package reactor

import (
	"time"
)

// poller is unimplemented outside linux, New fails with ErrUnsupportedPlatform.
type poller struct{}

func newPoller(int) (*poller, error) { return nil, ErrUnsupportedPlatform }

func (*poller) register(int, IOEvents) error { return ErrUnsupportedPlatform }

func (*poller) modify(int, IOEvents) error { return ErrUnsupportedPlatform }

func (*poller) unregister(int) error { return ErrUnsupportedPlatform }

func (*poller) wait(time.Duration, func(int, IOEvents)) error { return ErrUnsupportedPlatform }

func (*poller) wakeup() error { return ErrUnsupportedPlatform }

func (*poller) close() error { return nil }
