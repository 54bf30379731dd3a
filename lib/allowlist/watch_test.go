// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package allowlist

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWatchDetectsEdit(t *testing.T) {
	path := writeRules(t, `{"rules": [{"tool": "Read"}]}`)

	list, cleanup, err := Watch(path, discardLogger())
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer cleanup()

	if !list.Allows("Read", nil) {
		t.Fatal("initial rules not loaded")
	}
	if list.Allows("Glob", nil) {
		t.Fatal("Glob allowed before the edit")
	}

	if err := os.WriteFile(path, []byte(`{"rules": [{"tool": "Read"}, {"tool": "Glob"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	// The watcher has a 100ms poll interval plus a 50ms debounce, and
	// the timeout is genuine OS I/O: we are waiting for a real inotify
	// event from a real filesystem write, which no fake clock can
	// drive. Poll until the new rule takes effect.
	deadline := time.Now().Add(2 * time.Second) //nolint:realclock // waiting on real inotify delivery
	for !list.Allows("Glob", nil) {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for reload after edit")
		}
		time.Sleep(10 * time.Millisecond) //nolint:realclock // waiting on real inotify delivery
	}
}

func TestWatchMissingFile(t *testing.T) {
	t.Parallel()

	_, _, err := Watch("/nonexistent/allowlist.jsonc", discardLogger())
	if err == nil {
		t.Fatal("expected error for missing rules file")
	}
}
