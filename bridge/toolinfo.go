// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"encoding/json"
	"strings"

	"github.com/switchboard-dev/switchboard/agent"
	"github.com/switchboard-dev/switchboard/render"
)

// summaryLimit bounds the detail portion of a one-line tool summary.
const summaryLimit = 120

// detailFor extracts the display-worthy part of a tool's input. The
// table is keyed by [agent.ToolKind] so aliases like MultiEdit share
// their kind's formatter; anything outside the closed set falls back
// to compact JSON.
var detailFor = map[agent.ToolKind]func(input map[string]any) string{
	agent.ToolBash:      func(input map[string]any) string { return stringField(input, "command") },
	agent.ToolRead:      filePathDetail,
	agent.ToolWrite:     filePathDetail,
	agent.ToolEdit:      filePathDetail,
	agent.ToolGlob:      patternDetail,
	agent.ToolGrep:      patternDetail,
	agent.ToolWebFetch:  func(input map[string]any) string { return stringField(input, "url") },
	agent.ToolWebSearch: func(input map[string]any) string { return stringField(input, "query") },
	agent.ToolTask:      func(input map[string]any) string { return stringField(input, "description") },
	agent.ToolTodoWrite: func(map[string]any) string { return "" },
}

func filePathDetail(input map[string]any) string {
	if path := stringField(input, "file_path"); path != "" {
		return path
	}
	return stringField(input, "path")
}

func patternDetail(input map[string]any) string {
	pattern := stringField(input, "pattern")
	path := stringField(input, "path")
	if pattern != "" && path != "" {
		return pattern + " in " + path
	}
	if pattern != "" {
		return pattern
	}
	return path
}

func stringField(input map[string]any, key string) string {
	value, _ := input[key].(string)
	return strings.TrimSpace(value)
}

func decodeInput(raw json.RawMessage) map[string]any {
	fields := map[string]any{}
	if len(raw) > 0 {
		// Display only; malformed input falls through to the raw form.
		_ = json.Unmarshal(raw, &fields)
	}
	return fields
}

func toolDetail(name string, raw json.RawMessage) string {
	if format, ok := detailFor[agent.KindOfTool(name)]; ok {
		return format(decodeInput(raw))
	}
	compact := strings.TrimSpace(string(raw))
	if compact == "{}" || compact == "null" {
		return ""
	}
	return compact
}

// toolSummary renders a one-line account of a tool call for the output
// stream, e.g. "Bash: make test".
func toolSummary(name string, raw json.RawMessage) string {
	detail := strings.Join(strings.Fields(toolDetail(name, raw)), " ")
	if detail == "" {
		return name
	}
	return name + ": " + render.Truncate(detail, summaryLimit)
}

// approvalBody renders the markdown body of a tool approval prompt.
// Multi-line details go in a defused fence so shell commands survive
// the trip through markdown.
func approvalBody(name string, raw json.RawMessage) string {
	var b strings.Builder
	b.WriteString("Approval needed: **")
	b.WriteString(name)
	b.WriteString("**")
	detail := toolDetail(name, raw)
	switch {
	case detail == "":
	case agent.KindOfTool(name) == agent.ToolBash || strings.Contains(detail, "\n"):
		b.WriteString("\n```\n")
		b.WriteString(render.DefuseFences(detail))
		b.WriteString("\n```")
	default:
		b.WriteString("\n`")
		b.WriteString(detail)
		b.WriteString("`")
	}
	return b.String()
}

// questionBody renders the markdown body of one multiple-choice
// question, options numbered so reactions and replies can pick by
// index.
func questionBody(question agent.Question) string {
	var b strings.Builder
	if question.Header != "" {
		b.WriteString("**")
		b.WriteString(question.Header)
		b.WriteString("**\n")
	}
	b.WriteString(question.Question)
	for i, option := range question.Options {
		b.WriteString("\n")
		b.WriteString(numberedOption(i, option.Label, option.Description))
	}
	return b.String()
}

func numberedOption(index int, label, description string) string {
	var b strings.Builder
	b.WriteString(numberEmoji(index))
	b.WriteString(" ")
	b.WriteString(label)
	if description != "" {
		b.WriteString(" - ")
		b.WriteString(description)
	}
	return b.String()
}

// numberEmojis are the reaction keys for question options, in option
// order. Questions with more options than keys fall back to reply
// answers for the overflow.
var numberEmojis = []string{
	"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣", "🔟",
}

func numberEmoji(index int) string {
	if index < len(numberEmojis) {
		return numberEmojis[index]
	}
	return "▫️"
}

// optionForReaction maps a number-emoji reaction key to its option.
func optionForReaction(key string, options []string) (string, bool) {
	for i, emoji := range numberEmojis {
		if i >= len(options) {
			break
		}
		if key == emoji {
			return options[i], true
		}
	}
	return "", false
}

// optionForReply matches a reply's text against the option set, first
// as a 1-based index, then as a case-insensitive label.
func optionForReply(text string, options []string) (string, bool) {
	text = strings.TrimSpace(text)
	if index, ok := optionIndex(text); ok && index < len(options) {
		return options[index], true
	}
	for _, option := range options {
		if strings.EqualFold(text, option) {
			return option, true
		}
	}
	return "", false
}

func optionIndex(text string) (int, bool) {
	if len(text) == 0 || len(text) > 2 {
		return 0, false
	}
	index := 0
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, false
		}
		index = index*10 + int(r-'0')
	}
	if index < 1 {
		return 0, false
	}
	return index - 1, true
}
