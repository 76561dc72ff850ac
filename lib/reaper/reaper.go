// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package reaper culls surplus Wine helper processes.
//
// Every terminal launch makes the Wine service machinery spawn
// winedevice.exe device-host processes. The first launch in a prefix
// creates two that stay healthy for the life of the wineserver; crash
// loops and relaunches leave additional instances behind that never
// exit on their own and pin memory. The reaper periodically scans the
// process table and kills every matching process except the N with the
// lowest PIDs, which under a single wineserver are the original,
// still-wired instances.
//
// Reaping is best effort. A kill that fails (the process vanished, or
// was never ours to signal) is logged and skipped; the next sweep sees
// the survivors again.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/termgate/termgate/lib/clock"
)

// Process is one observed process: its PID and executable name as the
// kernel reports it.
type Process struct {
	PID  int
	Name string
}

// Snapshotter lists the current process table.
type Snapshotter interface {
	Snapshot() ([]Process, error)
}

// Killer terminates a single process. Implementations return nil when
// the process is already gone.
type Killer interface {
	Kill(pid int) error
}

// Config configures a Reaper.
type Config struct {
	// Pattern is the executable name to cull. Defaults to
	// "winedevice.exe".
	Pattern string

	// Keep is how many lowest-PID matches to spare. Defaults to 2.
	Keep int

	// Interval is the sweep cadence for Run. Defaults to 10 seconds.
	Interval time.Duration

	// Snapshot lists processes. Defaults to scanning /proc.
	Snapshot Snapshotter

	// Kill terminates processes. Defaults to SIGKILL via the kernel.
	Kill Killer

	// OnReap, when set, is called after each sweep that killed at
	// least one process, with the number killed.
	OnReap func(count int)

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// Reaper sweeps the process table for surplus Wine helpers.
type Reaper struct {
	pattern  string
	keep     int
	interval time.Duration
	snapshot Snapshotter
	kill     Killer
	onReap   func(count int)
	clock    clock.Clock
	logger   *slog.Logger
}

// New creates a reaper from config. Panics if Logger is missing.
func New(config Config) *Reaper {
	if config.Logger == nil {
		panic("reaper: Logger is required")
	}

	pattern := config.Pattern
	if pattern == "" {
		pattern = "winedevice.exe"
	}
	keep := config.Keep
	if keep == 0 {
		keep = 2
	}
	interval := config.Interval
	if interval == 0 {
		interval = 10 * time.Second
	}
	snapshot := config.Snapshot
	if snapshot == nil {
		snapshot = NewProcSnapshotter()
	}
	kill := config.Kill
	if kill == nil {
		kill = SignalKiller{}
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	return &Reaper{
		pattern:  pattern,
		keep:     keep,
		interval: interval,
		snapshot: snapshot,
		kill:     kill,
		onReap:   config.OnReap,
		clock:    clk,
		logger:   config.Logger,
	}
}

// Victims returns the processes a sweep over the given table would
// kill: every process whose name matches the pattern, minus the keep
// lowest PIDs, in ascending PID order. The reaper's own process is
// never a victim, whatever it is named.
func (r *Reaper) Victims(processes []Process) []Process {
	self := os.Getpid()
	var matches []Process
	for _, p := range processes {
		if p.Name == r.pattern && p.PID != self {
			matches = append(matches, p)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].PID < matches[j].PID })
	if len(matches) <= r.keep {
		return nil
	}
	return matches[r.keep:]
}

// ReapOnce performs a single sweep and returns how many processes were
// killed. Kill failures are logged and skipped; only a failure to list
// the process table is an error.
func (r *Reaper) ReapOnce(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	processes, err := r.snapshot.Snapshot()
	if err != nil {
		return 0, fmt.Errorf("listing processes: %w", err)
	}

	killed := 0
	for _, victim := range r.Victims(processes) {
		if err := r.kill.Kill(victim.PID); err != nil {
			r.logger.Warn("reap failed",
				"pid", victim.PID,
				"name", victim.Name,
				"error", err)
			continue
		}
		r.logger.Debug("reaped process", "pid", victim.PID, "name", victim.Name)
		killed++
	}
	if killed > 0 {
		r.logger.Info("reaped surplus processes",
			"name", r.pattern,
			"count", killed)
		if r.onReap != nil {
			r.onReap(killed)
		}
	}
	return killed, nil
}

// Run sweeps on the configured interval until ctx is cancelled. Sweep
// errors are logged, never fatal: a transient /proc hiccup should not
// take the loop down.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper running",
		"pattern", r.pattern,
		"keep", r.keep,
		"interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.ReapOnce(ctx); err != nil {
				r.logger.Warn("sweep failed", "error", err)
			}
		}
	}
}
