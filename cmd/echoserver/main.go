//go:build linux

// Command echoserver runs a TCP echo server on the bridged event loop.
//
// Usage:
//
//	echoserver [-addr :8000] [-log-level info] [-accept-rate 20] [-accept-window 1s]
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-loopbridge/bridge"
	"github.com/joeycumines/go-loopbridge/echo"
	"github.com/joeycumines/go-loopbridge/reactor"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

type config struct {
	addr         string
	level        logiface.Level
	acceptRate   int
	acceptWindow time.Duration
	slowCallback time.Duration
}

func main() {
	if err := run(os.Args[1:], os.Stderr, nil); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run starts the server and blocks until SIGINT or SIGTERM. If ready is
// non-nil, it receives the listening server once accepting.
func run(args []string, stderr io.Writer, ready chan<- *echo.Server) error {
	cfg, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(stderr)),
		stumpy.L.WithLevel(cfg.level),
	).Logger()

	r, err := reactor.New(reactor.WithLogger(logger))
	if err != nil {
		return err
	}
	defer r.Close()

	loop, err := bridge.New(r,
		bridge.WithLogger(logger),
		bridge.WithSlowCallbackDuration(cfg.slowCallback),
	)
	if err != nil {
		return err
	}
	defer loop.Close()

	var limiter *catrate.Limiter
	if cfg.acceptRate > 0 {
		limiter = catrate.NewLimiter(map[time.Duration]int{cfg.acceptWindow: cfg.acceptRate})
	}

	server, err := echo.Listen(loop, cfg.addr,
		echo.WithLogger(logger),
		echo.WithAcceptLimiter(limiter),
	)
	if err != nil {
		return err
	}
	defer server.Close()

	// loop level signal handlers are unsupported, deliver them as callbacks
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	stopSignals := make(chan struct{})
	defer close(stopSignals)
	go func() {
		select {
		case sig := <-signals:
			logger.Info().
				Str("signal", sig.String()).
				Log("echoserver: shutting down")
			_ = loop.CallSoonThreadsafe(func(...any) error {
				loop.Stop()
				return nil
			})
		case <-stopSignals:
		}
	}()

	if ready != nil {
		loop.CallSoon(func(...any) error {
			ready <- server
			return nil
		})
	}

	return loop.RunForever()
}

func parseFlags(args []string, stderr io.Writer) (*config, error) {
	fs := flag.NewFlagSet("echoserver", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := config{level: logiface.LevelInformational}
	fs.StringVar(&cfg.addr, "addr", ":8000", "listen address")
	fs.Func("log-level", "log level (emerg, alert, crit, err, warning, notice, info, debug, trace, disabled)", func(s string) error {
		level, err := parseLevel(s)
		if err != nil {
			return err
		}
		cfg.level = level
		return nil
	})
	fs.IntVar(&cfg.acceptRate, "accept-rate", 20, "connections accepted per peer IP per accept-window, 0 disables")
	fs.DurationVar(&cfg.acceptWindow, "accept-window", time.Second, "window for accept-rate")
	fs.DurationVar(&cfg.slowCallback, "slow-callback", 0, "log callbacks running at least this long, 0 disables")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 0 {
		return nil, fmt.Errorf("echoserver: unexpected arguments: %q", fs.Args())
	}
	if cfg.acceptRate < 0 {
		return nil, errors.New("echoserver: accept-rate must not be negative")
	}
	if cfg.acceptRate > 0 && cfg.acceptWindow <= 0 {
		return nil, errors.New("echoserver: accept-window must be positive")
	}
	if cfg.slowCallback < 0 {
		return nil, errors.New("echoserver: slow-callback must not be negative")
	}
	return &cfg, nil
}

func parseLevel(s string) (logiface.Level, error) {
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if level.String() == s {
			return level, nil
		}
	}
	return 0, fmt.Errorf("echoserver: unknown log level %q", s)
}
