// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

// Request is a CBOR-encoded request from the control CLI to the
// supervisor, sent over the supervisor's Unix control socket. The
// socket protocol wraps replies in a service.Response envelope; the
// report types below are what rides in its data field.
type Request struct {
	// Action is the request type: "status", "reap",
	// "restart-terminal", or "metrics".
	Action string `cbor:"action"`

	// Pattern overrides the configured process name for a one-off
	// "reap" sweep. Empty means the configured pattern.
	Pattern string `cbor:"pattern,omitempty"`

	// Keep overrides how many lowest-PID matches a one-off "reap"
	// sweep spares. Must be at least 1 when present: the lowest-PID
	// matches are the instances wired to the live wineserver, and a
	// sweep that spares none would sever the running terminal. A nil
	// pointer means the configured value.
	Keep *int `cbor:"keep,omitempty"`
}

// StatusReport describes the supervised terminal and its display,
// returned by the "status" action.
type StatusReport struct {
	// TerminalPID is the PID of the supervised terminal process.
	// Zero when no terminal has been launched.
	TerminalPID int `cbor:"terminal_pid,omitempty"`

	// TerminalAlive reports whether the terminal process is running.
	TerminalAlive bool `cbor:"terminal_alive"`

	// TerminalState derives from the process and the live pipe check:
	// "not-launched", "starting" (alive, pipe not answering yet),
	// "ready", or "exited".
	TerminalState string `cbor:"terminal_state,omitempty"`

	// TerminalHash is the SHA256 hex digest of the terminal
	// executable, identifying the installed build without asking the
	// terminal itself.
	TerminalHash string `cbor:"terminal_hash,omitempty"`

	// Display is the X display name the terminal renders to.
	Display string `cbor:"display,omitempty"`

	// DisplayAlive reports whether the X server process is running.
	DisplayAlive bool `cbor:"display_alive"`

	// PipeHealthy reports whether the in-terminal RPC endpoint
	// answered its liveness check just now.
	PipeHealthy bool `cbor:"pipe_healthy"`

	// Login and Server identify the startup session's account.
	// Credentials themselves never cross the control socket.
	Login  uint64 `cbor:"login,omitempty"`
	Server string `cbor:"server,omitempty"`

	// UptimeSeconds counts from supervisor start.
	UptimeSeconds int64 `cbor:"uptime_seconds"`
}

// ReapReport is the result of a "reap" sweep.
type ReapReport struct {
	// Reaped is the number of processes killed.
	Reaped int `cbor:"reaped"`

	// Pattern and Keep are the parameters the sweep actually ran
	// with, after applying any per-request overrides.
	Pattern string `cbor:"pattern"`
	Keep    int    `cbor:"keep"`
}

// RestartReport is the result of a "restart-terminal" action.
type RestartReport struct {
	// PID is the relaunched terminal's process ID.
	PID int `cbor:"pid"`

	// State is the launch outcome of the new terminal process:
	// "ready", "exited", or "timed-out".
	State string `cbor:"state"`
}

// MetricsReport is the flattened telemetry snapshot returned by the
// "metrics" action. Keys are instrument names, optionally suffixed
// with an attribute set; values are counter totals or histogram
// counts and sums.
type MetricsReport struct {
	Counters map[string]int64 `cbor:"counters"`
}
