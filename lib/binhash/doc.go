// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash identifies binary builds by content digest.
//
// The supervisor reports the SHA256 of the terminal executable in
// status responses. Install paths stay constant across terminal
// updates, so the digest is the only reliable answer to which build a
// machine is actually running.
package binhash
