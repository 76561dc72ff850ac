// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package display manages the headless X server the trading terminal
// renders into. The terminal is a GUI program with no headless mode:
// without a working display it aborts during startup, so the X server
// is a hard prerequisite and a failure to provide one is fatal for the
// whole supervisor.
package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/termgate/termgate/lib/clock"
)

// ErrUnavailable reports that no usable X display could be brought up.
// Callers treat it as fatal: nothing downstream (terminal launch,
// bridge startup) can proceed without a display.
var ErrUnavailable = errors.New("X display unavailable")

const (
	// defaultSocketDir is where the X server publishes its listening
	// socket. Display N appears as <dir>/XN once the server accepts
	// connections; polling for the file is the standard readiness check.
	defaultSocketDir = "/tmp/.X11-unix"

	defaultReadyTimeout = 5 * time.Second
	defaultPollInterval = 100 * time.Millisecond
	defaultStopGrace    = 3 * time.Second
)

// Manager owns one Xvfb instance. Start launches the server and waits
// for its socket; Stop terminates it. The zero value is not usable,
// construct with New.
type Manager struct {
	number int
	screen string
	logger *slog.Logger

	binary       string
	readyTimeout time.Duration

	// Overridable for tests.
	socketDir    string
	pollInterval time.Duration
	stopGrace    time.Duration
	clock        clock.Clock

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

// Config configures a Manager.
type Config struct {
	// Number is the X display number: 99 serves display ":99".
	Number int

	// Screen is the Xvfb screen geometry, for example
	// "1280x1024x24". Required.
	Screen string

	// Binary is the X server executable. Defaults to "Xvfb",
	// resolved through PATH.
	Binary string

	// ReadyTimeout bounds how long Start waits for the server's
	// socket to appear. Defaults to 5 seconds.
	ReadyTimeout time.Duration

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// New returns a manager for the configured X display.
func New(config Config) *Manager {
	if config.Number < 0 {
		panic("display.Manager: Number must not be negative")
	}
	if config.Screen == "" {
		panic("display.Manager: Screen is required")
	}
	if config.Logger == nil {
		panic("display.Manager: Logger is required")
	}

	binary := config.Binary
	if binary == "" {
		binary = "Xvfb"
	}
	readyTimeout := config.ReadyTimeout
	if readyTimeout == 0 {
		readyTimeout = defaultReadyTimeout
	}

	return &Manager{
		number:       config.Number,
		screen:       config.Screen,
		logger:       config.Logger,
		binary:       binary,
		readyTimeout: readyTimeout,
		socketDir:    defaultSocketDir,
		pollInterval: defaultPollInterval,
		stopGrace:    defaultStopGrace,
		clock:        clock.Real(),
	}
}

// Name returns the X display name, ":99" style. Suitable for the
// DISPLAY environment variable.
func (m *Manager) Name() string {
	return ":" + strconv.Itoa(m.number)
}

// Env returns the DISPLAY assignment child processes need to render
// on this display.
func (m *Manager) Env() string {
	return "DISPLAY=" + m.Name()
}

// Start launches Xvfb and blocks until the server's socket appears,
// the server exits, the ready timeout lapses, or ctx is cancelled.
// Every failure path wraps ErrUnavailable and leaves no server
// process behind.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cmd != nil {
		m.mu.Unlock()
		return fmt.Errorf("display %s already started", m.Name())
	}

	cmd := exec.Command(m.binary, m.Name(), "-screen", "0", m.screen, "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: starting %s: %v", ErrUnavailable, m.binary, err)
	}

	done := make(chan struct{})
	m.cmd = cmd
	m.done = done
	m.mu.Unlock()

	// Sole Wait call for this process; everyone else watches done.
	go func() {
		err := cmd.Wait()
		m.mu.Lock()
		m.waitErr = err
		m.mu.Unlock()
		close(done)
	}()

	m.logger.Info("X server starting",
		"display", m.Name(),
		"screen", m.screen,
		"pid", cmd.Process.Pid)

	deadline := m.clock.Now().Add(m.readyTimeout)
	for {
		if m.socketReady() {
			m.logger.Info("X server ready", "display", m.Name())
			return nil
		}
		select {
		case <-ctx.Done():
			m.Stop()
			return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-done:
			m.clearStopped()
			return fmt.Errorf("%w: %s exited before publishing its socket: %v",
				ErrUnavailable, m.binary, m.waitError())
		default:
		}
		if m.clock.Now().After(deadline) {
			m.Stop()
			return fmt.Errorf("%w: socket %s not created within %v",
				ErrUnavailable, m.socketPath(), m.readyTimeout)
		}
		m.clock.Sleep(m.pollInterval)
	}
}

// Running reports whether the X server process is currently alive.
func (m *Manager) Running() bool {
	m.mu.Lock()
	done := m.done
	started := m.cmd != nil
	m.mu.Unlock()
	if !started {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Stop terminates the X server: SIGTERM first, SIGKILL if it has not
// exited after a short grace period. Calling Stop on a manager that
// never started (or already stopped) is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	cmd := m.cmd
	done := m.done
	m.cmd = nil
	m.mu.Unlock()
	if cmd == nil {
		return
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-m.clock.After(m.stopGrace):
		_ = cmd.Process.Kill()
		<-done
	}
	m.logger.Info("X server stopped", "display", m.Name())
}

func (m *Manager) socketPath() string {
	return filepath.Join(m.socketDir, "X"+strconv.Itoa(m.number))
}

func (m *Manager) socketReady() bool {
	_, err := os.Stat(m.socketPath())
	return err == nil
}

func (m *Manager) waitError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waitErr
}

func (m *Manager) clearStopped() {
	m.mu.Lock()
	m.cmd = nil
	m.mu.Unlock()
}
