// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge exposes the terminal's automation API over TCP.
//
// The terminal's RPC endpoint listens on loopback inside the
// container; remote callers cannot reach it directly. The bridge is
// the externally visible HTTP server that relays a fixed set of
// methods to that endpoint, verbatim in both directions: it never
// parses, validates, or rewrites payloads beyond the one documented
// exception below, and it never retries. Retry policy, result
// interpretation, and API semantics all belong to the remote caller
// and the terminal.
//
// The exception is initialize, which doubles as session begin. Before
// forwarding, the bridge merges credentials from the request over the
// supervisor's startup session, rewrites the terminal configuration
// through the config injector with the merged result, and fills
// credential fields absent from the request body from the startup
// session, so deployments configured purely by environment can begin a
// session with an empty body.
//
// initialize, login, and shutdown mutate the terminal's authenticated
// session and serialize under a single gate. Every other method is
// relayed concurrently.
package bridge
