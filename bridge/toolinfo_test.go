// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/switchboard-dev/switchboard/agent"
)

func TestToolSummary(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		tool  string
		input string
		want  string
	}{
		{"bash command", "Bash", `{"command":"make test"}`, "Bash: make test"},
		{"read path", "Read", `{"file_path":"/srv/app/main.go"}`, "Read: /srv/app/main.go"},
		{"write path", "Write", `{"file_path":"/srv/app/out.txt","content":"..."}`, "Write: /srv/app/out.txt"},
		{"grep pattern and path", "Grep", `{"pattern":"TODO","path":"/srv/app"}`, "Grep: TODO in /srv/app"},
		{"glob pattern only", "Glob", `{"pattern":"**/*.go"}`, "Glob: **/*.go"},
		{"web fetch", "WebFetch", `{"url":"https://example.com/doc"}`, "WebFetch: https://example.com/doc"},
		{"task description", "Task", `{"description":"survey the handlers"}`, "Task: survey the handlers"},
		{"todo write is silent", "TodoWrite", `{"todos":[{"content":"x"}]}`, "TodoWrite"},
		{"multiline collapses", "Bash", `{"command":"echo a\necho b"}`, "Bash: echo a echo b"},
		{"alias shares formatter", "MultiEdit", `{"file_path":"/srv/app/main.go","edits":[]}`, "MultiEdit: /srv/app/main.go"},
		{"unknown tool raw json", "mcp__jira__create", `{"project":"OPS"}`, `mcp__jira__create: {"project":"OPS"}`},
		{"unknown tool empty input", "mcp__jira__list", `{}`, "mcp__jira__list"},
		{"malformed input", "Bash", `{not json`, "Bash"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := toolSummary(test.tool, json.RawMessage(test.input))
			if got != test.want {
				t.Errorf("toolSummary = %q, want %q", got, test.want)
			}
		})
	}
}

func TestToolSummaryTruncatesLongDetail(t *testing.T) {
	t.Parallel()
	command := strings.Repeat("x", 300)
	got := toolSummary("Bash", json.RawMessage(`{"command":"`+command+`"}`))

	if !strings.HasPrefix(got, "Bash: xxx") {
		t.Fatalf("summary = %q", got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("summary = %q, want ellipsis", got)
	}
	detail := strings.TrimPrefix(got, "Bash: ")
	if n := utf8.RuneCountInString(detail); n != summaryLimit {
		t.Fatalf("detail is %d runes, want %d", n, summaryLimit)
	}
}

func TestApprovalBody(t *testing.T) {
	t.Parallel()

	t.Run("bash gets a fence", func(t *testing.T) {
		got := approvalBody("Bash", json.RawMessage(`{"command":"rm -rf build"}`))
		want := "Approval needed: **Bash**\n```\nrm -rf build\n```"
		if got != want {
			t.Errorf("body = %q, want %q", got, want)
		}
	})

	t.Run("path gets inline code", func(t *testing.T) {
		got := approvalBody("Write", json.RawMessage(`{"file_path":"/etc/config.yml"}`))
		want := "Approval needed: **Write**\n`/etc/config.yml`"
		if got != want {
			t.Errorf("body = %q, want %q", got, want)
		}
	})

	t.Run("no detail", func(t *testing.T) {
		got := approvalBody("TodoWrite", json.RawMessage(`{"todos":[]}`))
		if got != "Approval needed: **TodoWrite**" {
			t.Errorf("body = %q", got)
		}
	})

	t.Run("fence inside command is defused", func(t *testing.T) {
		got := approvalBody("Bash", json.RawMessage(`{"command":"cat <<'EOF'\n`+"```"+`\nEOF"}`))
		if strings.Count(got, "```") != 2 {
			t.Errorf("body = %q, want only the wrapping fence intact", got)
		}
	})
}

func TestQuestionBody(t *testing.T) {
	t.Parallel()
	question := agent.Question{
		Question: "Which storage backend?",
		Header:   "Storage",
		Options: []agent.QuestionOption{
			{Label: "postgres", Description: "relational"},
			{Label: "s3"},
		},
	}
	got := questionBody(question)
	want := "**Storage**\nWhich storage backend?\n1️⃣ postgres - relational\n2️⃣ s3"
	if got != want {
		t.Errorf("body = %q, want %q", got, want)
	}

	noHeader := questionBody(agent.Question{Question: "Proceed?", Options: []agent.QuestionOption{{Label: "yes"}}})
	if strings.HasPrefix(noHeader, "**") {
		t.Errorf("body = %q, want no header line", noHeader)
	}
}

func TestOptionForReaction(t *testing.T) {
	t.Parallel()
	options := []string{"alpha", "beta", "gamma"}

	if got, ok := optionForReaction("1️⃣", options); !ok || got != "alpha" {
		t.Errorf("1️⃣ = %q %v, want alpha", got, ok)
	}
	if got, ok := optionForReaction("3️⃣", options); !ok || got != "gamma" {
		t.Errorf("3️⃣ = %q %v, want gamma", got, ok)
	}
	if _, ok := optionForReaction("4️⃣", options); ok {
		t.Error("4️⃣ matched with only three options")
	}
	if _, ok := optionForReaction("👍", options); ok {
		t.Error("👍 is not an option key")
	}
}

func TestOptionForReply(t *testing.T) {
	t.Parallel()
	options := []string{"PostgreSQL", "SQLite"}

	tests := []struct {
		text    string
		want    string
		matched bool
	}{
		{"1", "PostgreSQL", true},
		{"2", "SQLite", true},
		{" 2 ", "SQLite", true},
		{"sqlite", "SQLite", true},
		{"POSTGRESQL", "PostgreSQL", true},
		{"3", "", false},
		{"0", "", false},
		{"mysql", "", false},
		{"", "", false},
	}
	for _, test := range tests {
		got, matched := optionForReply(test.text, options)
		if got != test.want || matched != test.matched {
			t.Errorf("optionForReply(%q) = %q %v, want %q %v",
				test.text, got, matched, test.want, test.matched)
		}
	}
}

func TestOptionIndexRejectsLongNumbers(t *testing.T) {
	t.Parallel()
	// Numbers longer than two digits are almost always conversation,
	// not an option pick.
	if _, ok := optionIndex("123"); ok {
		t.Error("three-digit index accepted")
	}
	if index, ok := optionIndex("10"); !ok || index != 9 {
		t.Errorf("optionIndex(10) = %d %v, want 9 true", index, ok)
	}
}
