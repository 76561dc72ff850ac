// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// The control protocol encodes with Core Deterministic Encoding (RFC
// 8949 section 4.2): sorted map keys, shortest integer forms, no
// indefinite lengths. The same request always produces the same bytes.
var encMode = must(cbor.CoreDetEncOptions().EncMode())

// Decoding accepts standard CBOR and ignores unknown fields, so an
// older ctl can talk to a newer supervisor. DefaultMapType makes
// any-typed targets decode as map[string]any instead of the CBOR
// default map[any]any; the protocol never uses non-string keys.
var decMode = must(cbor.DecOptions{
	DefaultMapType: reflect.TypeOf(map[string]any(nil)),
}.DecMode())

func must[M any](mode M, err error) M {
	if err != nil {
		panic("codec: " + err.Error())
	}
	return mode
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder, Decoder, and RawMessage are aliased so the rest of termgate
// imports only this package for its wire format.
type (
	Encoder    = cbor.Encoder
	Decoder    = cbor.Decoder
	RawMessage = cbor.RawMessage
)

// NewEncoder returns an encoder writing deterministic CBOR to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
