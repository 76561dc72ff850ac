// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/termgate/termgate/lib/codec"
)

func TestControlClientRoundTrip(t *testing.T) {
	path := serveControl(t, map[string]ActionFunc{
		"status": func(ctx context.Context, raw []byte) (any, error) {
			return map[string]any{"terminal_state": "ready", "uptime_seconds": 42}, nil
		},
	})

	var report struct {
		State  string `cbor:"terminal_state"`
		Uptime int64  `cbor:"uptime_seconds"`
	}
	err := NewControlClient(path).Call(context.Background(), "status", map[string]string{"action": "status"}, &report)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if report.State != "ready" || report.Uptime != 42 {
		t.Errorf("got state %q uptime %d, want ready and 42", report.State, report.Uptime)
	}
}

func TestControlClientCarriesRequestFields(t *testing.T) {
	path := serveControl(t, map[string]ActionFunc{
		"reap-subprocesses": func(ctx context.Context, raw []byte) (any, error) {
			var sweep struct {
				Pattern string `cbor:"pattern"`
				Keep    int    `cbor:"keep"`
			}
			if err := codec.Unmarshal(raw, &sweep); err != nil {
				return nil, err
			}
			return map[string]any{"pattern": sweep.Pattern, "keep": sweep.Keep}, nil
		},
	})

	request := map[string]any{"action": "reap-subprocesses", "pattern": "mt5*", "keep": 2}
	var echoed struct {
		Pattern string `cbor:"pattern"`
		Keep    int    `cbor:"keep"`
	}
	if err := NewControlClient(path).Call(context.Background(), "reap-subprocesses", request, &echoed); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if echoed.Pattern != "mt5*" || echoed.Keep != 2 {
		t.Errorf("handler saw pattern %q keep %d, want mt5* and 2", echoed.Pattern, echoed.Keep)
	}
}

func TestControlClientSurfacesActionError(t *testing.T) {
	path := serveControl(t, map[string]ActionFunc{
		"restart-terminal": func(ctx context.Context, raw []byte) (any, error) {
			return nil, errors.New("terminal is not running")
		},
	})

	err := NewControlClient(path).Call(context.Background(), "restart-terminal", map[string]string{"action": "restart-terminal"}, nil)

	var actionErr *ActionError
	if !errors.As(err, &actionErr) {
		t.Fatalf("error type = %T (%v), want *ActionError", err, err)
	}
	if actionErr.Action != "restart-terminal" || actionErr.Message != "terminal is not running" {
		t.Errorf("got action %q message %q", actionErr.Action, actionErr.Message)
	}
	if want := `control action "restart-terminal" failed: terminal is not running`; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestControlClientDiscardsDataForNilResult(t *testing.T) {
	path := serveControl(t, map[string]ActionFunc{
		"status": func(ctx context.Context, raw []byte) (any, error) {
			return map[string]any{"terminal_state": "ready"}, nil
		},
	})

	if err := NewControlClient(path).Call(context.Background(), "status", map[string]string{"action": "status"}, nil); err != nil {
		t.Fatalf("Call with nil result: %v", err)
	}
}

func TestControlClientKeepsResultWhenReplyHasNoData(t *testing.T) {
	path := serveControl(t, map[string]ActionFunc{
		"delete-accounts": func(ctx context.Context, raw []byte) (any, error) { return nil, nil },
	})

	result := map[string]any{"sentinel": true}
	if err := NewControlClient(path).Call(context.Background(), "delete-accounts", map[string]string{"action": "delete-accounts"}, &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result["sentinel"] != true {
		t.Error("result mutated by a data-free reply")
	}
}

func TestControlClientConnectFailure(t *testing.T) {
	client := NewControlClient(filepath.Join(t.TempDir(), "absent.sock"))

	err := client.Call(context.Background(), "status", map[string]string{"action": "status"}, nil)
	if err == nil {
		t.Fatal("Call against a missing socket succeeded")
	}
	if !strings.Contains(err.Error(), "connecting") {
		t.Errorf("err = %v, want a connect failure", err)
	}
	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		t.Error("transport failure dressed up as *ActionError")
	}
}

func TestControlClientHonorsContextDeadline(t *testing.T) {
	release := make(chan struct{})
	path := serveControl(t, map[string]ActionFunc{
		"restart-terminal": func(ctx context.Context, raw []byte) (any, error) {
			<-release
			return nil, nil
		},
	})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := NewControlClient(path).Call(ctx, "restart-terminal", map[string]string{"action": "restart-terminal"}, nil)
	if err == nil {
		t.Fatal("Call returned success before the stalled handler answered")
	}
	if !strings.Contains(err.Error(), "reading response") {
		t.Errorf("err = %v, want a response read failure", err)
	}
}
