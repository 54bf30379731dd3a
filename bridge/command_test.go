// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/switchboard-dev/switchboard/agent"
	"github.com/switchboard-dev/switchboard/lib/testutil"
	"github.com/switchboard-dev/switchboard/session"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text string
		kind commandKind
		arg  string
	}{
		{"", commandPrompt, ""},
		{"   ", commandPrompt, ""},
		{"fix the flaky test", commandPrompt, ""},
		{"status", commandStatus, ""},
		{"Status", commandStatus, ""},
		{"status of the build?", commandPrompt, ""},
		{"abort", commandAbort, ""},
		{"abort the mission and retreat", commandPrompt, ""},
		{"close", commandClose, ""},
		{"help", commandHelp, ""},
		{"cd /srv/app", commandCd, "/srv/app"},
		{"CD /srv/app", commandCd, "/srv/app"},
		{"cd", commandCd, ""},
		{"cd   /path with spaces", commandCd, "/path with spaces"},
		{"mode bypass", commandMode, "bypass"},
		{"mode", commandMode, ""},
		{"resume conv-12", commandResume, "conv-12"},
	}
	for _, test := range tests {
		got := parseCommand(test.text)
		if got.kind != test.kind || got.arg != test.arg {
			t.Errorf("parseCommand(%q) = {%v %q}, want {%v %q}",
				test.text, got.kind, got.arg, test.kind, test.arg)
		}
	}
}

func TestCdRejectsInvalidDirectories(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)

	filePath := filepath.Join(t.TempDir(), "notadir")
	if err := os.WriteFile(filePath, []byte("x"), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	tests := []struct {
		text   string
		notice string
	}{
		{"cd", "usage: cd <absolute-dir>"},
		{"cd relative/path", "working directory must be an absolute path"},
		{"cd /does/not/exist", "directory /does/not/exist does not exist"},
		{"cd " + filePath, filePath + " is not a directory"},
	}
	for _, test := range tests {
		h.message(test.text)
		if got := h.awaitNotice(t); got != test.notice {
			t.Fatalf("%q notice = %q, want %q", test.text, got, test.notice)
		}
	}

	// A rejected cd creates no session and starts nothing.
	if got := h.registry.Len(); got != 0 {
		t.Fatalf("registry has %d sessions, want 0", got)
	}
	testutil.RequireNoReceive(t, h.starter.starts, "query start")
}

func TestCdSetsWorkingDirectory(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)
	dir := t.TempDir()

	h.message("cd " + dir)
	if got := h.awaitNotice(t); got != "working directory set to "+dir {
		t.Fatalf("notice = %q", got)
	}

	sq := h.startQuery(t, "list the files")
	if sq.options.WorkDir != dir {
		t.Fatalf("work dir = %q, want %q", sq.options.WorkDir, dir)
	}
}

func TestModeAppliesToNextQuery(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)

	h.message("mode accept-edits")
	if got := h.awaitNotice(t); got != "permission mode set to accept-edits; applies from the next query" {
		t.Fatalf("notice = %q", got)
	}

	sq := h.startQuery(t, "tidy the imports")
	if sq.options.Mode != agent.ModeAcceptEdits {
		t.Fatalf("mode = %v, want accept-edits", sq.options.Mode)
	}
}

func TestModeRejectsUnknownName(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)

	h.message("mode yolo")
	if got := h.awaitNotice(t); !strings.Contains(got, `unknown permission mode "yolo"`) {
		t.Fatalf("notice = %q", got)
	}
	testutil.RequireNoReceive(t, h.starter.starts, "query start")
}

func TestResumeSwitchesConversation(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)

	h.message("resume conv-42")
	if got := h.awaitNotice(t); got != "will resume conversation conv-42 on the next message" {
		t.Fatalf("notice = %q", got)
	}

	sq := h.startQuery(t, "where were we?")
	if sq.options.ResumeID != "conv-42" {
		t.Fatalf("resume id = %q, want conv-42", sq.options.ResumeID)
	}
}

func TestResumeRefusedWhileQueryRuns(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)
	h.startQuery(t, "long running analysis")

	h.message("resume conv-99")
	if got := h.awaitNotice(t); got != "a query is running; abort it before switching conversations" {
		t.Fatalf("notice = %q", got)
	}
}

func TestAbortWithoutQuery(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)

	h.message("abort")
	if got := h.awaitNotice(t); got != "no query is running" {
		t.Fatalf("notice = %q", got)
	}

	// Same answer once a turn has already finished.
	sq := h.startQuery(t, "quick question")
	sq.query.events <- agent.ResultEvent{SessionID: "conv-1"}
	sq.query.closeEvents()
	h.awaitState(t, session.StateCompleted)

	h.message("abort")
	if got := h.awaitNotice(t); got != "no query is running" {
		t.Fatalf("notice = %q", got)
	}
}

func TestCloseDiscardsConversation(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)

	h.message("close")
	if got := h.awaitNotice(t); got != "no session to close" {
		t.Fatalf("notice = %q", got)
	}

	sq := h.startQuery(t, "remember the number 7")
	sq.query.events <- agent.ResultEvent{SessionID: "conv-mem"}
	sq.query.closeEvents()
	h.awaitState(t, session.StateCompleted)

	h.message("close")
	if got := h.awaitNotice(t); got != "session closed; the conversation is discarded" {
		t.Fatalf("notice = %q", got)
	}
	if got := h.registry.Len(); got != 0 {
		t.Fatalf("registry has %d sessions after close, want 0", got)
	}

	// The next message starts from scratch.
	sq2 := h.startQuery(t, "what number did I mention?")
	if sq2.options.ResumeID != "" {
		t.Fatalf("resume id = %q, want empty after close", sq2.options.ResumeID)
	}
}

func TestCloseWhileActiveInterrupts(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)
	sq := h.startQuery(t, "endless task")

	h.message("close")

	action := testutil.RequireReceive(t, sq.query.actions, "interrupt")
	if action.kind != "interrupt" {
		t.Fatalf("action = %+v, want interrupt", action)
	}
	if got := h.awaitNotice(t); got != "session closed; the conversation is discarded" {
		t.Fatalf("notice = %q", got)
	}
	testutil.RequireClosed(t, sq.query.events, "closed query events")
	if got := h.registry.Len(); got != 0 {
		t.Fatalf("registry has %d sessions after close, want 0", got)
	}
}

func TestHelpListsCommands(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)

	h.message("help")
	if got := h.awaitNotice(t); got != helpText {
		t.Fatalf("notice = %q, want the help text", got)
	}
}

func TestStatusWithoutSession(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)

	h.message("status")
	if got := h.awaitNotice(t); got != "no session; send a message to start one" {
		t.Fatalf("notice = %q", got)
	}
}
