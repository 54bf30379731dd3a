// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"testing"
)

// SocketDir creates a temporary directory directly under /tmp and
// registers cleanup with the test. Use it for Unix domain socket files,
// which are limited to 108-byte paths: t.TempDir() can exceed that
// limit when the test runner nests its scratch space deeply.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "swb-*")
	if err != nil {
		t.Fatalf("create socket dir: %v", err)
	}
	t.Cleanup(func() {
		os.RemoveAll(directory)
	})
	return directory
}
