// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides termgate's standard CBOR encoding configuration.
//
// termgate uses two serialization formats with a clear boundary:
//
//   - JSON for the bridge surface: the automation pipe host speaks
//     JSON, remote callers speak JSON, and the bridge relays those
//     payloads without re-encoding them.
//   - CBOR for the control protocol: the supervisor's unix control
//     socket and the termgate-ctl client exchange CBOR frames.
//
// This package provides the shared CBOR encoding and decoding modes so
// that both ends of the control socket encode identically without
// duplicating configuration. The encoder uses Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer encoding,
// no indefinite-length items. Same logical data always produces
// identical bytes.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (the control socket):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Control protocol types carry `cbor` struct tags; they never cross a
// JSON boundary.
package codec
