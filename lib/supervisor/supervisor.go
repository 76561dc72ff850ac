// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/termgate/termgate/lib/clock"
)

// State is the outcome of waiting for a launched terminal to become
// ready.
type State int

const (
	// Ready means the process is alive and the readiness probe
	// succeeded.
	Ready State = iota

	// Exited means the process died before becoming ready.
	Exited

	// TimedOut means the process is alive but the probe kept failing
	// until the deadline.
	TimedOut
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Exited:
		return "exited"
	case TimedOut:
		return "timed-out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ReadinessProbe checks whether the supervised program is answering.
// Probe failures are expected while the program is still starting;
// only the final state of the WaitReady loop matters.
type ReadinessProbe interface {
	Probe(ctx context.Context) error
}

// Config configures a Supervisor.
type Config struct {
	// Command is the argv to launch, for example
	// ["wine", "C:/Program Files/.../terminal64.exe", "/portable"].
	// Required.
	Command []string

	// Dir is the working directory for the process. Optional.
	Dir string

	// Env is extra environment appended to the parent's environment,
	// entries in "KEY=value" form (DISPLAY, WINEPREFIX, ...). Optional.
	Env []string

	// Probe decides readiness. Required.
	Probe ReadinessProbe

	// ReadyTimeout bounds WaitReady. Defaults to 60 seconds.
	ReadyTimeout time.Duration

	// PollInterval is the probe cadence. Defaults to 1 second.
	PollInterval time.Duration

	// Clock defaults to the real clock. Tests substitute a fake.
	Clock clock.Clock

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// Supervisor launches and tracks a single terminal process. At most
// one process is tracked at a time; relaunching replaces the tracked
// handle.
type Supervisor struct {
	command      []string
	dir          string
	env          []string
	probe        ReadinessProbe
	readyTimeout time.Duration
	pollInterval time.Duration
	clock        clock.Clock
	logger       *slog.Logger

	mu      sync.Mutex
	current *Handle
}

// New creates a supervisor from config. Panics if required fields are
// missing.
func New(config Config) *Supervisor {
	if len(config.Command) == 0 {
		panic("supervisor: Command is required")
	}
	if config.Probe == nil {
		panic("supervisor: Probe is required")
	}
	if config.Logger == nil {
		panic("supervisor: Logger is required")
	}

	readyTimeout := config.ReadyTimeout
	if readyTimeout == 0 {
		readyTimeout = 60 * time.Second
	}
	pollInterval := config.PollInterval
	if pollInterval == 0 {
		pollInterval = time.Second
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	return &Supervisor{
		command:      config.Command,
		dir:          config.Dir,
		env:          config.Env,
		probe:        config.Probe,
		readyTimeout: readyTimeout,
		pollInterval: pollInterval,
		clock:        clk,
		logger:       config.Logger,
	}
}

// Handle tracks one launched process. It is created by Launch and
// remains valid after the process exits.
type Handle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	waitErr error
}

// PID returns the process ID of the launched process.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Done returns a channel closed when the process exits.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Alive reports whether the process is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ExitError returns the error from waiting on the process. Valid only
// after Done is closed; nil means a clean zero exit.
func (h *Handle) ExitError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitErr
}

// Launch starts the terminal process and begins tracking it. The
// process runs in its own process group so teardown signals reach the
// helper processes Wine forks alongside it.
func (s *Supervisor) Launch(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(s.command[0], s.command[1:]...)
	cmd.Dir = s.dir
	cmd.Env = append(os.Environ(), s.env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting terminal %v: %w", s.command, err)
	}

	handle := &Handle{
		cmd:  cmd,
		done: make(chan struct{}),
	}

	// Sole Wait call for this process; everyone else watches Done.
	go func() {
		err := cmd.Wait()
		handle.mu.Lock()
		handle.waitErr = err
		handle.mu.Unlock()
		close(handle.done)
		s.logger.Info("terminal exited", "pid", handle.PID(), "error", err)
	}()

	s.mu.Lock()
	s.current = handle
	s.mu.Unlock()

	s.logger.Info("terminal launched",
		"pid", handle.PID(),
		"command", s.command,
		"dir", s.dir)
	return handle, nil
}

// Current returns the most recently launched handle, or nil if nothing
// has been launched.
func (s *Supervisor) Current() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// WaitReady polls the readiness probe until it succeeds, the process
// exits, or the ready timeout lapses, and reports which happened. The
// returned error is non-nil only when ctx was cancelled.
func (s *Supervisor) WaitReady(ctx context.Context, handle *Handle) (State, error) {
	deadline := s.clock.Now().Add(s.readyTimeout)
	for {
		if !handle.Alive() {
			s.logger.Warn("terminal exited before becoming ready",
				"pid", handle.PID(), "error", handle.ExitError())
			return Exited, nil
		}

		// Bound each probe by the poll interval so a hung probe
		// cannot stall the loop past the deadline.
		probeCtx, cancel := context.WithTimeout(ctx, s.pollInterval)
		err := s.probe.Probe(probeCtx)
		cancel()
		if err == nil {
			s.logger.Info("terminal ready", "pid", handle.PID())
			return Ready, nil
		}

		if s.clock.Now().After(deadline) {
			s.logger.Warn("terminal not ready at deadline",
				"pid", handle.PID(),
				"timeout", s.readyTimeout,
				"last_error", err)
			return TimedOut, nil
		}

		select {
		case <-ctx.Done():
			return TimedOut, ctx.Err()
		case <-handle.Done():
			// Re-enter the loop to report Exited.
		case <-s.clock.After(s.pollInterval):
		}
	}
}

// Kill terminates the process behind handle: SIGTERM to its process
// group first, SIGKILL after a short grace period. Blocks until the
// process has been reaped. Killing an already-dead handle is a no-op.
func (s *Supervisor) Kill(handle *Handle) {
	if handle == nil || !handle.Alive() {
		return
	}

	processGroup := -handle.PID()
	if err := syscall.Kill(processGroup, syscall.SIGTERM); err != nil {
		// Group already gone; the individual process may still
		// linger, so fall through to the kill below.
		_ = syscall.Kill(handle.PID(), syscall.SIGTERM)
	}
	select {
	case <-handle.Done():
	case <-s.clock.After(5 * time.Second):
		_ = syscall.Kill(processGroup, syscall.SIGKILL)
		_ = handle.cmd.Process.Kill()
		<-handle.Done()
	}
	s.logger.Info("terminal killed", "pid", handle.PID())
}
