// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package reaper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ProcSnapshotter lists processes by scanning the /proc filesystem.
// Process names come from /proc/<pid>/comm, which the kernel truncates
// to 15 bytes; "winedevice.exe" fits untruncated.
type ProcSnapshotter struct {
	root string
}

// NewProcSnapshotter returns a snapshotter over the real /proc.
func NewProcSnapshotter() *ProcSnapshotter {
	return &ProcSnapshotter{root: "/proc"}
}

func (s *ProcSnapshotter) Snapshot() ([]Process, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.root, err)
	}

	var processes []Process
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			// Non-numeric /proc entries (self, sys, ...) are not
			// processes.
			continue
		}
		comm, err := os.ReadFile(filepath.Join(s.root, entry.Name(), "comm"))
		if err != nil {
			// The process exited between the directory listing and
			// this read. Normal churn, not an error.
			continue
		}
		processes = append(processes, Process{
			PID:  pid,
			Name: strings.TrimSpace(string(comm)),
		})
	}
	return processes, nil
}

// SignalKiller terminates processes with SIGKILL. The culled Wine
// helpers ignore SIGTERM while stuck, so there is no graceful tier. A
// process that is already gone counts as killed.
type SignalKiller struct{}

func (SignalKiller) Kill(pid int) error {
	err := unix.Kill(pid, unix.SIGKILL)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	return fmt.Errorf("kill pid %d: %w", pid, err)
}
