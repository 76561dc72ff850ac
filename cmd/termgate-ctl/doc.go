// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Termgate-ctl inspects and drives a running termgate supervisor over
// its Unix control socket. It reports terminal, display, and pipe
// health, triggers one-off sweeps of leaked Wine helper processes,
// restarts the terminal with a fresh configuration pass, and dumps the
// supervisor's telemetry counters.
package main
