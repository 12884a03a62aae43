//go:build linux

package main

import (
	"bytes"
	"flag"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/joeycumines/go-loopbridge/echo"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	var stderr bytes.Buffer

	cfg, err := parseFlags(nil, &stderr)
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.addr)
	assert.Equal(t, logiface.LevelInformational, cfg.level)
	assert.Equal(t, 20, cfg.acceptRate)
	assert.Equal(t, time.Second, cfg.acceptWindow)

	cfg, err = parseFlags([]string{"-addr", "127.0.0.1:9000", "-log-level", "debug", "-accept-rate", "0"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.addr)
	assert.Equal(t, logiface.LevelDebug, cfg.level)
	assert.Zero(t, cfg.acceptRate)

	for _, args := range [][]string{
		{"-log-level", "loud"},
		{"-accept-rate", "-1"},
		{"-accept-window", "0s"},
		{"-slow-callback", "-1s"},
		{"extra"},
	} {
		_, err := parseFlags(args, &stderr)
		assert.Error(t, err, "%q", args)
	}

	_, err = parseFlags([]string{"-h"}, &stderr)
	assert.ErrorIs(t, err, flag.ErrHelp)
}

func TestParseLevel(t *testing.T) {
	for _, level := range []logiface.Level{
		logiface.LevelDisabled,
		logiface.LevelError,
		logiface.LevelWarning,
		logiface.LevelTrace,
	} {
		got, err := parseLevel(level.String())
		require.NoError(t, err)
		assert.Equal(t, level, got)
	}
}

func TestRun_EchoUntilSignal(t *testing.T) {
	ready := make(chan *echo.Server, 1)
	done := make(chan error, 1)
	go func() {
		done <- run([]string{"-addr", "127.0.0.1:0", "-log-level", "debug"}, io.Discard, ready)
	}()

	var server *echo.Server
	select {
	case server = <-ready:
	case err := <-done:
		t.Fatalf("run failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready")
	}

	c, err := net.DialTimeout("tcp", server.Addr().String(), 5*time.Second)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.SetDeadline(time.Now().Add(5*time.Second)))
	_, err = c.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(c, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after SIGTERM")
	}
}
