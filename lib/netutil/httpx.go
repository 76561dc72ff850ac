// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O utilities for termgate.
//
// Body helpers (ReadBody, DecodeBody, ErrorBody) bound all reads at
// MaxBodySize to prevent unbounded memory allocation from a misbehaving
// peer. The bound is generous because the automation surface includes
// bulk transfers: copy_rates_range over years of minute bars returns a
// binary buffer tens of megabytes long, and those are relayed through
// memory, not streamed.
//
// WriteJSON is the bridge's single path for locally-generated JSON
// responses (errors, health); relayed upstream payloads bypass it.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// MaxBodySize is the bound on HTTP body reads: 256 MB. This exists
// solely to prevent a pathological payload from exhausting system
// memory. The largest legitimate payloads (historical rate buffers)
// are well under it; the limit is intentionally generous so that it
// never interferes with normal operation.
const MaxBodySize int64 = 256 << 20

// ReadBody reads an HTTP body up to MaxBodySize bytes. Use instead of
// io.ReadAll when reading request or response bodies.
func ReadBody(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxBodySize))
}

// DecodeBody reads an HTTP body (up to MaxBodySize bytes) and
// JSON-decodes it into v. Replaces the common io.ReadAll +
// json.Unmarshal pattern.
func DecodeBody(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxBodySize))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody reads an HTTP error response body and returns it as a
// string for diagnostic error messages. Read errors are silently
// ignored; a partial or empty body is still useful in an error
// message.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxBodySize))
	return string(data)
}

// WriteJSON writes v as a JSON response with the given status code.
// Encoding failures after the header is written cannot be reported to
// the client; they are returned for logging.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
