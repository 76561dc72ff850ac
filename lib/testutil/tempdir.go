// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"testing"
)

// SocketDir returns a short-pathed temporary directory for Unix socket
// files, removed when the test ends.
//
// sun_path caps socket paths at 108 bytes, and t.TempDir() can blow
// past that on CI systems that point TMPDIR at deeply nested
// directories. Creating under /tmp directly keeps the joined socket
// path short.
func SocketDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "tg-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}
