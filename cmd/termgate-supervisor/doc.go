// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Termgate-supervisor is the container entry point. It brings up the
// headless X display, injects account configuration into the terminal
// install, launches the terminal under Wine and watches it, culls the
// helper processes Wine leaks on relaunch, and serves two surfaces:
// the TCP RPC bridge that trading clients call, and a Unix control
// socket for operators (see termgate-ctl).
package main
