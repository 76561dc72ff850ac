// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/termgate/termgate/lib/codec"
	"github.com/termgate/termgate/lib/display"
	"github.com/termgate/termgate/lib/inject"
	"github.com/termgate/termgate/lib/ipc"
	"github.com/termgate/termgate/lib/pipe"
	"github.com/termgate/termgate/lib/reaper"
	"github.com/termgate/termgate/lib/service"
	"github.com/termgate/termgate/lib/session"
	"github.com/termgate/termgate/lib/supervisor"
	"github.com/termgate/termgate/lib/telemetry"
)

// statusProbeTimeout bounds the pipe liveness check inside the status
// action. Status must answer promptly even when the terminal is
// wedged, so this sits far below the pipe's normal call timeout.
const statusProbeTimeout = 2 * time.Second

// controlState is everything the control socket actions operate on.
// All fields are set once in run and never reassigned; sessionGate
// serializes the one action that mutates process state.
type controlState struct {
	terminal     *supervisor.Supervisor
	display      *display.Manager
	pipe         *pipe.Client
	injector     *inject.Injector
	telemetry    *telemetry.Telemetry
	startup      *session.Session
	reap         reaper.Config
	terminalHash string
	started      time.Time
	logger       *slog.Logger

	// sessionGate serializes restart-terminal against itself and, being
	// the bridge's own gate, against in-flight initialize/login/shutdown
	// relays. Concurrent restarts would race on kill and relaunch;
	// a restart during an initialize would rip the terminal out from
	// under the rewrite-and-forward.
	sessionGate *sync.Mutex
}

// registerControlActions wires the operator actions onto the control
// socket server.
func registerControlActions(server *service.SocketServer, state *controlState) {
	server.Handle("status", state.handleStatus)
	server.Handle("reap", state.handleReap)
	server.Handle("restart-terminal", state.handleRestart)
	server.Handle("metrics", state.handleMetrics)
}

// handleStatus reports the supervised processes without disturbing
// them. The pipe field is a live probe with a short deadline, so the
// report reflects right now rather than the launch-time outcome.
func (s *controlState) handleStatus(ctx context.Context, raw []byte) (any, error) {
	report := ipc.StatusReport{
		TerminalHash:  s.terminalHash,
		Display:       s.display.Name(),
		DisplayAlive:  s.display.Running(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if s.startup != nil {
		report.Login = s.startup.Login
		report.Server = s.startup.Server
	}

	probeCtx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	defer cancel()
	report.PipeHealthy = s.pipe.Health(probeCtx) == nil

	handle := s.terminal.Current()
	switch {
	case handle == nil:
		report.TerminalState = "not-launched"
	case !handle.Alive():
		report.TerminalPID = handle.PID()
		report.TerminalState = supervisor.Exited.String()
	case report.PipeHealthy:
		report.TerminalPID = handle.PID()
		report.TerminalAlive = true
		report.TerminalState = supervisor.Ready.String()
	default:
		report.TerminalPID = handle.PID()
		report.TerminalAlive = true
		report.TerminalState = "starting"
	}
	return report, nil
}

// handleReap runs one sweep immediately, outside the periodic loop.
// Pattern and keep accept per-request overrides for one-off cleanup of
// something other than the configured helper processes.
func (s *controlState) handleReap(ctx context.Context, raw []byte) (any, error) {
	var request ipc.Request
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding reap request: %w", err)
	}

	sweep := s.reap
	if request.Pattern != "" {
		sweep.Pattern = request.Pattern
	}
	if request.Keep != nil {
		if *request.Keep < 1 {
			return nil, fmt.Errorf("keep must be at least 1, got %d: the lowest-PID matches belong to the live wineserver", *request.Keep)
		}
		sweep.Keep = *request.Keep
	}

	reaped, err := reaper.New(sweep).ReapOnce(ctx)
	if err != nil {
		return nil, err
	}
	return ipc.ReapReport{Reaped: reaped, Pattern: sweep.Pattern, Keep: sweep.Keep}, nil
}

// handleRestart replaces the terminal process: a polite quit through
// the pipe when it answers, force kill otherwise, then a fresh
// configuration rewrite and relaunch. The report's state can be
// "timed-out" when the terminal needs longer than the ready window;
// the caller decides whether to poll status or try again.
func (s *controlState) handleRestart(ctx context.Context, raw []byte) (any, error) {
	s.sessionGate.Lock()
	defer s.sessionGate.Unlock()

	if handle := s.terminal.Current(); handle != nil && handle.Alive() {
		// A clean quit lets the terminal flush caches and close its
		// broker connection. Kill afterwards regardless: it waits for
		// the exit when the quit was honored and forces it when not.
		quitCtx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
		_, err := s.pipe.Call(quitCtx, "shutdown", pipe.JSONContentType, []byte("{}"))
		cancel()
		if err != nil {
			s.logger.Debug("polite shutdown not answered, killing", "error", err)
		}
		s.terminal.Kill(handle)
	}

	if err := s.injector.Apply(ctx, s.startup); err != nil {
		return nil, fmt.Errorf("rewriting terminal configuration: %w", err)
	}

	handle, err := s.terminal.Launch(ctx)
	if err != nil {
		return nil, err
	}
	state, err := s.terminal.WaitReady(ctx, handle)
	if err != nil {
		return nil, err
	}

	s.telemetry.RecordTerminalRestart(ctx)
	s.logger.Info("terminal restarted", "pid", handle.PID(), "state", state.String())
	return ipc.RestartReport{PID: handle.PID(), State: state.String()}, nil
}

// handleMetrics snapshots the telemetry counters. Flattening to plain
// name/value pairs happens in the telemetry package so the CLI needs
// no otel types.
func (s *controlState) handleMetrics(ctx context.Context, raw []byte) (any, error) {
	counters, err := s.telemetry.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("collecting metrics: %w", err)
	}
	return ipc.MetricsReport{Counters: counters}, nil
}
