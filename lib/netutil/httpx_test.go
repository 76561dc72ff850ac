// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// brokenReader fails every Read, standing in for an upstream
// connection dropped mid-body.
type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset mid-body")
}

func TestReadBody(t *testing.T) {
	tests := []struct {
		name string
		body io.Reader
		want string
		ok   bool
	}{
		{"tick payload", strings.NewReader(`{"bid":1.0832,"ask":1.0834}`), `{"bid":1.0832,"ask":1.0834}`, true},
		{"empty body", strings.NewReader(""), "", true},
		{"dropped connection", brokenReader{}, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := ReadBody(tc.body)
			if (err == nil) != tc.ok {
				t.Fatalf("err = %v, want ok=%v", err, tc.ok)
			}
			if string(data) != tc.want {
				t.Errorf("body = %q, want %q", data, tc.want)
			}
		})
	}
}

func TestDecodeBody(t *testing.T) {
	body := strings.NewReader(`{"login":5005,"server":"Broker-Demo","balance":10000.5}`)
	var account struct {
		Login   uint64  `json:"login"`
		Server  string  `json:"server"`
		Balance float64 `json:"balance"`
	}
	if err := DecodeBody(body, &account); err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if account.Login != 5005 || account.Server != "Broker-Demo" || account.Balance != 10000.5 {
		t.Errorf("decoded %+v", account)
	}
}

func TestDecodeBodyRejectsTruncatedJSON(t *testing.T) {
	if err := DecodeBody(strings.NewReader(`{"login":`), &struct{}{}); err == nil {
		t.Fatal("truncated JSON decoded without error")
	}
}

func TestDecodeBodyWrapsReadFailure(t *testing.T) {
	err := DecodeBody(brokenReader{}, &struct{}{})
	if err == nil {
		t.Fatal("read failure not reported")
	}
	if !strings.Contains(err.Error(), "reading body") {
		t.Errorf("err = %v, want a reading body wrapper", err)
	}
}

func TestErrorBody(t *testing.T) {
	upstream := `{"error":"terminal not initialized"}`
	if got := ErrorBody(strings.NewReader(upstream)); got != upstream {
		t.Errorf("got %q, want the body verbatim", got)
	}

	// A failed read yields an empty string. The caller is already on
	// an error path and takes whatever text is available.
	if got := ErrorBody(brokenReader{}); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestWriteJSON(t *testing.T) {
	recorder := httptest.NewRecorder()
	if err := WriteJSON(recorder, http.StatusBadGateway, map[string]string{"error": "rpc connection lost"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	if recorder.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", recorder.Code, http.StatusBadGateway)
	}
	if got := recorder.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("content-type = %q, want application/json", got)
	}
	var payload map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if payload["error"] != "rpc connection lost" {
		t.Errorf("error field = %q, want %q", payload["error"], "rpc connection lost")
	}
}
