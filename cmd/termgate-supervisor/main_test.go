// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/termgate/termgate/lib/binhash"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TERMGATE_CONFIG", "")
	t.Setenv("WINEPREFIX", "")

	cfg, err := loadConfig("", "", "")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.ListenAddress != ":18812" {
		t.Errorf("ListenAddress = %q, want %q", cfg.ListenAddress, ":18812")
	}
	if cfg.ControlSocket != "/run/termgate/control.sock" {
		t.Errorf("ControlSocket = %q, want the default", cfg.ControlSocket)
	}
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	t.Setenv("TERMGATE_CONFIG", "")

	path := filepath.Join(t.TempDir(), "termgate.yaml")
	if err := os.WriteFile(path, []byte("listen_address: \":9000\"\n"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := loadConfig(path, ":7001", "/tmp/elsewhere/control.sock")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.ListenAddress != ":7001" {
		t.Errorf("ListenAddress = %q, want flag override %q", cfg.ListenAddress, ":7001")
	}
	if cfg.ControlSocket != "/tmp/elsewhere/control.sock" {
		t.Errorf("ControlSocket = %q, want flag override", cfg.ControlSocket)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("TERMGATE_CONFIG", "")

	path := filepath.Join(t.TempDir(), "termgate.yaml")
	if err := os.WriteFile(path, []byte("log_level: loud\n"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	_, err := loadConfig(path, "", "")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error = %v, want mention of log_level", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig("/nonexistent/termgate.yaml", "", "")
	if err == nil {
		t.Fatal("expected error for a missing explicit config file")
	}
}

func TestEnsureSocketDir(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "nested", "run", "control.sock")

	if err := ensureSocketDir(socketPath); err != nil {
		t.Fatalf("ensureSocketDir: %v", err)
	}
	info, err := os.Stat(filepath.Dir(socketPath))
	if err != nil {
		t.Fatalf("parent directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("socket parent is not a directory")
	}

	// Second call on an existing directory is a no-op.
	if err := ensureSocketDir(socketPath); err != nil {
		t.Errorf("ensureSocketDir on existing directory: %v", err)
	}
}

func TestHashTerminalBinary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "terminal64.exe")
	if err := os.WriteFile(path, []byte("MZ fake terminal"), 0755); err != nil {
		t.Fatalf("writing binary: %v", err)
	}

	want, err := binhash.Digest(path)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}

	if got := hashTerminalBinary(path, testLogger()); got != want {
		t.Errorf("hashTerminalBinary = %q, want %q", got, want)
	}

	// Empty and missing paths degrade to no hash, never an error.
	if got := hashTerminalBinary("", testLogger()); got != "" {
		t.Errorf("empty path hash = %q, want empty", got)
	}
	if got := hashTerminalBinary(filepath.Join(dir, "absent.exe"), testLogger()); got != "" {
		t.Errorf("missing path hash = %q, want empty", got)
	}
}
