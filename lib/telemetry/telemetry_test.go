// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestSnapshotFlattensCounters(t *testing.T) {
	telemetry, err := Setup("termgate-test")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer telemetry.Shutdown(context.Background())

	ctx := context.Background()
	telemetry.RecordBridgeCall(ctx, "initialize", 1500*time.Millisecond, "ok")
	telemetry.RecordBridgeCall(ctx, "initialize", 500*time.Millisecond, "ok")
	telemetry.RecordBridgeCall(ctx, "login", 10*time.Millisecond, "pipe-unreachable")
	telemetry.RecordReaped(ctx, 3)
	telemetry.RecordConfigApply(ctx)
	telemetry.RecordTerminalRestart(ctx)

	snapshot, err := telemetry.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	expectations := map[string]int64{
		"termgate.bridge.calls_total{method=initialize,outcome=ok}":           2,
		"termgate.bridge.calls_total{method=login,outcome=pipe-unreachable}":  1,
		"termgate.bridge.errors_total{method=login,outcome=pipe-unreachable}": 1,
		"termgate.bridge.call.duration.count{method=initialize,outcome=ok}":   2,
		"termgate.bridge.call.duration.sum{method=initialize,outcome=ok}":     2000,
		"termgate.reaper.culled_total":                                        3,
		"termgate.config.applies_total":                                       1,
		"termgate.terminal.restarts_total":                                    1,
	}

	for key, want := range expectations {
		if got, ok := snapshot[key]; !ok {
			t.Errorf("snapshot missing %q (have %v)", key, snapshot)
		} else if got != want {
			t.Errorf("snapshot[%q] = %d, want %d", key, got, want)
		}
	}

	// An "ok" outcome never counts as an error.
	if _, ok := snapshot["termgate.bridge.errors_total{method=initialize,outcome=ok}"]; ok {
		t.Error("ok outcome recorded an error count")
	}
}

func TestNilTelemetryIsInert(t *testing.T) {
	var telemetry *Telemetry

	ctx := context.Background()
	telemetry.RecordBridgeCall(ctx, "version", time.Millisecond, "ok")
	telemetry.RecordReaped(ctx, 1)
	telemetry.RecordConfigApply(ctx)
	telemetry.RecordTerminalRestart(ctx)

	snapshot, err := telemetry.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot on nil: %v", err)
	}
	if snapshot != nil {
		t.Errorf("Snapshot on nil = %v, want nil", snapshot)
	}
	if err := telemetry.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown on nil: %v", err)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	telemetry, err := Setup("termgate-test")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	if err := telemetry.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := telemetry.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
