// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipc defines the CBOR-encoded message types for the
// supervisor's Unix control socket. Both cmd/termgate-supervisor and
// cmd/termgate-ctl import this package so the wire types are defined
// once rather than mirrored.
package ipc
