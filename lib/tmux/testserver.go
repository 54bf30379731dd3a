// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package tmux

import (
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/switchboard-dev/switchboard/lib/testutil"
)

// NewTestServer creates an isolated tmux server for testing. The server:
//   - Uses a short /tmp path to stay within the 108-byte Unix socket limit
//   - Passes -f /dev/null to prevent loading the user's ~/.tmux.conf
//   - Creates a _guard session running "sleep infinity" to keep the server
//     alive (tmux exits when its last session ends)
//   - Registers t.Cleanup to kill the server when the test completes
//
// Tests are skipped when no tmux binary is on PATH. All test tmux
// commands MUST use the returned Server: a bare "tmux" command without
// -S targets the default server, which may be the very session the test
// runner lives in.
func NewTestServer(t *testing.T) *Server {
	t.Helper()

	if _, err := exec.LookPath("tmux"); err != nil {
		t.Skip("tmux binary not available")
	}

	socketPath := filepath.Join(testutil.SocketDir(t), "tmux.sock")
	server := NewServer(socketPath, "/dev/null")

	// The guard session keeps the server alive: the server starts when
	// the first session is created and exits with its last session.
	if err := server.NewSession("_guard", "", "sleep", "infinity"); err != nil {
		t.Fatalf("start tmux test server: %v", err)
	}

	t.Cleanup(func() {
		server.KillServer()
	})

	return server
}
