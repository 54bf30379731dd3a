// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/switchboard-dev/switchboard/agent"
	"github.com/switchboard-dev/switchboard/lib/allowlist"
	"github.com/switchboard-dev/switchboard/lib/testutil"
	"github.com/switchboard-dev/switchboard/messaging"
	"github.com/switchboard-dev/switchboard/session"
)

func TestPromptStartsQuery(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)

	sq := h.startQuery(t, "summarize the readme")
	if sq.options.Prompt != "summarize the readme" {
		t.Fatalf("prompt = %q", sq.options.Prompt)
	}
	if sq.options.WorkDir != h.workDir {
		t.Fatalf("work dir = %q, want registry default %q", sq.options.WorkDir, h.workDir)
	}
	if sq.options.Mode != agent.ModeDefault {
		t.Fatalf("mode = %v, want default", sq.options.Mode)
	}
	if sq.options.ResumeID != "" {
		t.Fatalf("resume id = %q, want empty for a fresh session", sq.options.ResumeID)
	}

	sq.query.events <- agent.InitEvent{SessionID: "conv-1", Model: "test-model"}
	sq.query.events <- agent.TextEvent{Text: "The readme covers "}
	first := testutil.RequireReceive(t, h.surface.sends, "output message")
	if first.content.MsgType != messaging.MsgTypeText {
		t.Fatalf("output msgtype = %q", first.content.MsgType)
	}
	if !strings.Contains(first.content.Body, "The readme covers") {
		t.Fatalf("output body = %q", first.content.Body)
	}

	// Later chunks edit the same message in place.
	sq.query.events <- agent.TextEvent{Text: "installation and usage."}
	edit := testutil.RequireReceive(t, h.surface.edits, "output edit")
	if edit.target != first.eventID {
		t.Fatalf("edit target = %s, want %s", edit.target, first.eventID)
	}
	if !strings.Contains(editBody(edit), "installation and usage.") {
		t.Fatalf("edited body = %q", editBody(edit))
	}
}

func TestToolUseRenderedInline(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)
	sq := h.startQuery(t, "build the project")

	sq.query.events <- agent.ToolUseEvent{
		ID:    "tu_1",
		Name:  "Bash",
		Input: []byte(`{"command":"make build"}`),
	}
	message := testutil.RequireReceive(t, h.surface.sends, "output message")
	if !strings.Contains(message.content.Body, "🔧 Bash: make build") {
		t.Fatalf("output body = %q, want tool marker", message.content.Body)
	}

	// Tool results feed the agent, not the room.
	sq.query.events <- agent.ToolResultEvent{ToolUseID: "tu_1", Content: "ok"}
	testutil.RequireNoReceive(t, h.surface.sends, "surface message")
}

func TestResultCompletesSession(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)
	sq := h.startQuery(t, "count the tests")

	sq.query.events <- agent.InitEvent{SessionID: "conv-7"}
	sq.query.events <- agent.TextEvent{Text: "There are 42 tests."}
	testutil.RequireReceive(t, h.surface.sends, "output message")

	sq.query.events <- agent.ResultEvent{
		SessionID: "conv-7",
		Text:      "There are 42 tests.",
		CostUSD:   0.03,
		Usage:     agent.Usage{InputTokens: 120, OutputTokens: 45},
	}
	sq.query.closeEvents()
	h.awaitState(t, session.StateCompleted)

	status := h.statusNotice(t)
	for _, want := range []string{
		"state: completed",
		"mode: default",
		"conversation: resumable (conv-7)",
		"usage: 120 input / 45 output tokens (165 total)",
	} {
		if !strings.Contains(status, want) {
			t.Fatalf("status = %q, want %q", status, want)
		}
	}
}

func TestUsageAccumulatesAcrossTurns(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)

	sq := h.startQuery(t, "first question")
	sq.query.events <- agent.InitEvent{SessionID: "conv-9"}
	sq.query.events <- agent.TextEvent{Text: "First answer."}
	testutil.RequireReceive(t, h.surface.sends, "output message")
	sq.query.events <- agent.ResultEvent{
		SessionID: "conv-9",
		Usage:     agent.Usage{InputTokens: 100, OutputTokens: 20},
	}
	sq.query.closeEvents()
	h.awaitState(t, session.StateCompleted)

	if !strings.Contains(h.statusNotice(t), "usage: 100 input / 20 output tokens (120 total)") {
		t.Fatal("first turn usage not recorded")
	}

	sq2 := h.startQuery(t, "second question")
	if sq2.options.ResumeID != "conv-9" {
		t.Fatalf("resume id = %q, want conv-9", sq2.options.ResumeID)
	}
	sq2.query.events <- agent.ResultEvent{
		SessionID: "conv-9",
		Usage:     agent.Usage{InputTokens: 200, OutputTokens: 30},
	}
	sq2.query.closeEvents()
	h.awaitState(t, session.StateCompleted)

	if got := h.statusNotice(t); !strings.Contains(got, "usage: 300 input / 50 output tokens (350 total)") {
		t.Fatalf("status = %q, want summed usage", got)
	}
}

func TestNewPromptSupersedesActiveQuery(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)

	sq1 := h.startQuery(t, "first task")
	sq1.query.events <- agent.InitEvent{SessionID: "conv-1"}
	sq1.query.events <- agent.TextEvent{Text: "Working on it."}
	testutil.RequireReceive(t, h.surface.sends, "first query output")

	h.message("drop that, do this instead")
	sq2 := testutil.RequireReceive(t, h.starter.starts, "second query start")

	// The first query's context is cancelled, which kills its process
	// and closes the stream.
	testutil.RequireClosed(t, sq1.query.events, "first query events")
	if sq2.options.Prompt != "drop that, do this instead" {
		t.Fatalf("prompt = %q", sq2.options.Prompt)
	}
	if sq2.options.ResumeID != "conv-1" {
		t.Fatalf("resume id = %q, want the conversation to continue", sq2.options.ResumeID)
	}

	// Trailing output from the superseded query must not surface.
	testutil.RequireNoReceive(t, h.surface.sends, "stale output")

	sq2.query.events <- agent.TextEvent{Text: "On the new task."}
	message := testutil.RequireReceive(t, h.surface.sends, "second query output")
	if !strings.Contains(message.content.Body, "On the new task.") {
		t.Fatalf("output body = %q", message.content.Body)
	}
}

func TestAllowlistAutoApproves(t *testing.T) {
	t.Parallel()
	rulesPath := filepath.Join(t.TempDir(), "rules.jsonc")
	rules := `{
  // build commands are trusted
  "rules": [
    {"tool": "Bash", "command_prefix": ["make"]}
  ]
}`
	if err := os.WriteFile(rulesPath, []byte(rules), 0o600); err != nil {
		t.Fatalf("writing rules: %v", err)
	}
	list, err := allowlist.Load(rulesPath)
	if err != nil {
		t.Fatalf("loading rules: %v", err)
	}

	h := newBridgeHarness(t, func(o *Options) { o.Allowlist = list })
	sq := h.startQuery(t, "build everything")

	sq.query.events <- agent.ApprovalRequestEvent{
		RequestID: "req_make",
		ToolName:  "Bash",
		Input:     []byte(`{"command":"make test"}`),
	}
	action := testutil.RequireReceive(t, sq.query.actions, "auto approval")
	if action.kind != "allow" || action.requestID != "req_make" {
		t.Fatalf("action = %+v, want allow req_make", action)
	}
	// Auto-approval happens in the same turn, without a prompt.
	testutil.RequireNoReceive(t, h.surface.sends, "approval prompt")

	// A command outside the rules still goes to the operator.
	sq.query.events <- agent.ApprovalRequestEvent{
		RequestID: "req_rm",
		ToolName:  "Bash",
		Input:     []byte(`{"command":"rm -rf build"}`),
	}
	prompt := h.awaitPrompt(t)
	if !strings.Contains(prompt.content.Body, "rm -rf build") {
		t.Fatalf("prompt body = %q", prompt.content.Body)
	}
}

func TestQuestionsAggregateAnswers(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)
	sq := h.startQuery(t, "set up the database")

	sq.query.events <- agent.QuestionRequestEvent{
		RequestID: "req_q",
		Questions: []agent.Question{
			{
				Question: "Which database should the service use?",
				Header:   "Database",
				Options: []agent.QuestionOption{
					{Label: "PostgreSQL", Description: "production default"},
					{Label: "SQLite", Description: "single file, no server"},
				},
			},
			{
				Question: "Which port should it listen on?",
				Options: []agent.QuestionOption{
					{Label: "5432"},
					{Label: "5433"},
				},
			},
		},
	}

	first := h.awaitPrompt(t)
	if !strings.Contains(first.content.Body, "**Database**") {
		t.Fatalf("first prompt = %q, want header", first.content.Body)
	}
	if !strings.Contains(first.content.Body, "1️⃣ PostgreSQL - production default") {
		t.Fatalf("first prompt = %q, want numbered options", first.content.Body)
	}
	h.react(first.eventID, "1️⃣")
	edit := testutil.RequireReceive(t, h.surface.edits, "first outcome edit")
	if !strings.Contains(editBody(edit), "✅ PostgreSQL") {
		t.Fatalf("outcome = %q", editBody(edit))
	}

	// The second question is asked only after the first is answered.
	second := h.awaitPrompt(t)
	if !strings.Contains(second.content.Body, "Which port") {
		t.Fatalf("second prompt = %q", second.content.Body)
	}
	// Replies match options case-insensitively by label.
	h.reply(second.eventID, "5433")

	action := testutil.RequireReceive(t, sq.query.actions, "aggregated answers")
	if action.kind != "answer" || action.requestID != "req_q" {
		t.Fatalf("action = %+v, want answer req_q", action)
	}
	if len(action.answers) != 2 {
		t.Fatalf("answers = %v, want 2 entries", action.answers)
	}
	if got := action.answers["Which database should the service use?"]; got != "PostgreSQL" {
		t.Fatalf("database answer = %q", got)
	}
	if got := action.answers["Which port should it listen on?"]; got != "5433" {
		t.Fatalf("port answer = %q", got)
	}
}

func TestQuestionDeniedByReaction(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)
	sq := h.startQuery(t, "pick a framework")

	sq.query.events <- agent.QuestionRequestEvent{
		RequestID: "req_q2",
		Questions: []agent.Question{{
			Question: "Which framework?",
			Options: []agent.QuestionOption{
				{Label: "chi"}, {Label: "echo"},
			},
		}},
	}
	prompt := h.awaitPrompt(t)

	h.react(prompt.eventID, "👎")

	action := testutil.RequireReceive(t, sq.query.actions, "question denial")
	if action.kind != "deny" || action.requestID != "req_q2" {
		t.Fatalf("action = %+v, want deny req_q2", action)
	}
	edit := testutil.RequireReceive(t, h.surface.edits, "outcome edit")
	if !strings.Contains(editBody(edit), "❌ Denied") {
		t.Fatalf("outcome = %q", editBody(edit))
	}
}

func TestWithdrawnRequestMarksPrompt(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)
	sq := h.startQuery(t, "refactor the parser")

	sq.query.events <- agent.ApprovalRequestEvent{
		RequestID: "req_w",
		ToolName:  "Write",
		Input:     []byte(`{"file_path":"/src/parser.go"}`),
	}
	prompt := h.awaitPrompt(t)

	sq.query.events <- agent.RequestCancelledEvent{RequestID: "req_w"}

	edit := testutil.RequireReceive(t, h.surface.edits, "withdrawn edit")
	if edit.target != prompt.eventID {
		t.Fatalf("edit target = %s, want %s", edit.target, prompt.eventID)
	}
	if !strings.Contains(editBody(edit), "⚠️ Withdrawn") {
		t.Fatalf("outcome = %q, want withdrawn marker", editBody(edit))
	}

	// An answer after the withdrawal goes nowhere.
	h.react(prompt.eventID, "👍")
	testutil.RequireNoReceive(t, sq.query.actions, "late decision")
}

func TestAbortDeniesPendingAndPreservesConversation(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)
	sq := h.startQuery(t, "ship the release")

	sq.query.events <- agent.InitEvent{SessionID: "conv-rel"}
	sq.query.events <- agent.TextEvent{Text: "Preparing the release."}
	testutil.RequireReceive(t, h.surface.sends, "output message")

	sq.query.events <- agent.ApprovalRequestEvent{
		RequestID: "req_a",
		ToolName:  "Bash",
		Input:     []byte(`{"command":"git tag v1.0.0"}`),
	}
	sq.query.events <- agent.ApprovalRequestEvent{
		RequestID: "req_b",
		ToolName:  "Bash",
		Input:     []byte(`{"command":"git push --tags"}`),
	}
	promptA := h.awaitPrompt(t)
	promptB := h.awaitPrompt(t)

	h.message("abort")

	action := testutil.RequireReceive(t, sq.query.actions, "interrupt")
	if action.kind != "interrupt" {
		t.Fatalf("action = %+v, want interrupt", action)
	}

	// Both pending prompts resolve as denied, in either order.
	targets := map[string]bool{}
	for i := 0; i < 2; i++ {
		edit := testutil.RequireReceive(t, h.surface.edits, "denied outcome edit")
		if !strings.Contains(editBody(edit), "❌ Denied: aborted by operator") {
			t.Fatalf("outcome = %q, want abort denial", editBody(edit))
		}
		targets[edit.target.String()] = true
	}
	if !targets[promptA.eventID.String()] || !targets[promptB.eventID.String()] {
		t.Fatalf("edited %v, want both prompts", targets)
	}

	if got := h.awaitNotice(t); !strings.Contains(got, "query aborted") {
		t.Fatalf("notice = %q", got)
	}
	testutil.RequireClosed(t, sq.query.events, "aborted query events")

	// No decision for the denied prompts reaches the dead query.
	testutil.RequireNoReceive(t, sq.query.actions, "stale decision")

	status := h.statusNotice(t)
	if !strings.Contains(status, "state: aborted") {
		t.Fatalf("status = %q, want aborted", status)
	}
	if !strings.Contains(status, "conversation: resumable (conv-rel)") {
		t.Fatalf("status = %q, want the conversation preserved", status)
	}

	// The next message resumes the same conversation in a new query.
	sq2 := h.startQuery(t, "just tag, do not push")
	if sq2.options.ResumeID != "conv-rel" {
		t.Fatalf("resume id = %q, want conv-rel", sq2.options.ResumeID)
	}
}

func TestErrorEventNotifiesOnce(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)
	sq := h.startQuery(t, "do something")

	sq.query.events <- agent.ErrorEvent{Message: "process exited with status 1"}

	if got := h.awaitNotice(t); got != "agent error: process exited with status 1" {
		t.Fatalf("notice = %q", got)
	}
	if !strings.Contains(h.statusNotice(t), "state: errored") {
		t.Fatal("session not marked errored")
	}
	testutil.RequireNoReceive(t, h.surface.sends, "second error notice")
}

func TestStreamCloseWithoutResult(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)
	sq := h.startQuery(t, "hello")

	sq.query.events <- agent.TextEvent{Text: "Partial answer"}
	testutil.RequireReceive(t, h.surface.sends, "output message")

	sq.query.closeEvents()

	if got := h.awaitNotice(t); got != "agent error: the agent exited without a result" {
		t.Fatalf("notice = %q", got)
	}
	if !strings.Contains(h.statusNotice(t), "state: errored") {
		t.Fatal("session not marked errored")
	}
}

func TestStartFailureReportsError(t *testing.T) {
	t.Parallel()
	h := newBridgeHarness(t, nil)
	h.starter.fail(errors.New("exec: \"claude\": executable file not found"))

	h.message("hello")

	got := h.awaitNotice(t)
	if !strings.Contains(got, "error: bridge: starting query:") {
		t.Fatalf("notice = %q, want a wrapped start error", got)
	}
	if !strings.Contains(h.statusNotice(t), "state: errored") {
		t.Fatal("session not marked errored")
	}
	testutil.RequireNoReceive(t, h.starter.starts, "query start")
}
