// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds the small helpers termgate's test suites
// share: bounded channel waits (RequireReceive, RequireClosed) and a
// short-pathed socket directory (SocketDir).
//
// The channel helpers are the only place the test suite touches real
// wall-clock timeouts; everything else runs on the fake clock. All
// helpers fail the test directly rather than returning errors.
package testutil
