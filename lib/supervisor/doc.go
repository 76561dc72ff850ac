// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor launches the Windows trading terminal under Wine
// and tracks the resulting process.
//
// The terminal is a GUI program: it has no foreground console mode, it
// daemonizes parts of itself through the Wine service machinery, and it
// reports readiness only indirectly, by answering on its RPC pipe. The
// supervisor therefore treats "ready" as a property observed from the
// outside: launch the process, then poll a readiness probe until it
// answers, the process dies, or a deadline passes.
//
// A launch resolves to one of three states:
//
//   - Ready: the process is alive and the probe succeeded.
//   - Exited: the process died before ever becoming ready.
//   - TimedOut: the process is alive but the probe kept failing until
//     the deadline. This is an expected outcome on cold starts, where
//     the terminal synchronizes symbol data for minutes before the
//     pipe comes up; callers keep serving and let later probes decide.
//
// The supervisor never restarts the terminal on its own. A terminal
// that died mid-session has lost authenticated state that a blind
// relaunch would silently discard, so restarts are an explicit
// operator action.
package supervisor
