// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the serving scaffolding for the supervisor.
//
// The supervisor exposes two surfaces and this package implements the
// lifecycle for both:
//
//   - HTTP server: TCP listener for the RPC bridge, with readiness
//     signaling and graceful shutdown. Clients on the container
//     network POST method calls here.
//   - Socket server: CBOR request-response protocol on a Unix socket
//     with action dispatch, connection timeouts, and graceful
//     shutdown. Operators use this control surface for status,
//     subprocess sweeps, and terminal restarts.
//
// ControlClient is the matching client side for the socket protocol,
// used by the command-line control tool.
//
// The supervisor composes these in its own main() rather than
// subclassing a framework. The package provides building blocks, not
// a runtime.
//
// # Authentication
//
// There is none. Both surfaces live inside the container boundary:
// the HTTP listener is reachable only on the container network, and
// the control socket is gated by filesystem permissions. Anything
// that can open either already owns the terminal process.
package service
