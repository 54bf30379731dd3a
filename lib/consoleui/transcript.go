// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/switchboard-dev/switchboard/lib/mdterm"
	"github.com/switchboard-dev/switchboard/lib/sessionlog"
)

// ReadTranscript returns the last limit session log entries for one
// channel. The log is a single file shared by every channel, so the
// whole file is scanned; a fixed ring keeps memory bounded by limit
// regardless of file size. Lines that do not decode are skipped, since
// a concurrent append can leave a torn final line.
func ReadTranscript(path, channel string, limit int) ([]sessionlog.Entry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("transcript limit must be positive, got %d", limit)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)

	// Output entries carry whole agent turns. The default 64KB scanner
	// buffer is not enough.
	const maxLineSize = 1024 * 1024
	scanner.Buffer(make([]byte, 0, maxLineSize), maxLineSize)

	ring := make([]sessionlog.Entry, limit)
	count := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry sessionlog.Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if entry.Channel != channel {
			continue
		}
		ring[count%limit] = entry
		count++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session log: %w", err)
	}

	if count <= limit {
		return append([]sessionlog.Entry(nil), ring[:count]...), nil
	}
	start := count % limit
	entries := make([]sessionlog.Entry, 0, limit)
	entries = append(entries, ring[start:]...)
	entries = append(entries, ring[:start]...)
	return entries, nil
}

// FormatTranscript renders entries for the transcript pane, oldest
// first, one blank line between entries.
func FormatTranscript(entries []sessionlog.Entry, theme Theme, width int) string {
	blocks := make([]string, 0, len(entries))
	for _, entry := range entries {
		blocks = append(blocks, FormatEntry(entry, theme, width))
	}
	return strings.Join(blocks, "\n\n")
}

// FormatEntry renders one session log entry. Prompts show the sender,
// output is rendered as markdown, and the bookkeeping kinds collapse
// to a single annotated line.
func FormatEntry(entry sessionlog.Entry, theme Theme, width int) string {
	meta := lipgloss.NewStyle().Foreground(theme.TranscriptMeta)
	stamp := meta.Render(entry.Time.Local().Format("15:04:05"))

	switch entry.Kind {
	case sessionlog.KindPrompt:
		sender := lipgloss.NewStyle().Foreground(theme.PromptSender).Bold(true).Render(entry.Sender)
		return stamp + " " + sender + "\n" + entry.Text
	case sessionlog.KindOutput:
		agentLabel := lipgloss.NewStyle().Foreground(theme.HeaderForeground).Render("agent")
		body := strings.TrimRight(mdterm.Render(entry.Text, mdterm.DefaultTheme, width), "\n")
		return stamp + " " + agentLabel + "\n" + body
	case sessionlog.KindApproval:
		return stamp + " " + formatApproval(entry, theme)
	case sessionlog.KindQuestion:
		line := fmt.Sprintf("question answered by %s: %s", entry.Sender, entry.Text)
		return stamp + " " + meta.Render(line)
	case sessionlog.KindTransition:
		line := fmt.Sprintf("state: %s → %s", entry.From, entry.To)
		if entry.Text != "" {
			line += " (" + entry.Text + ")"
		}
		return stamp + " " + meta.Render(line)
	case sessionlog.KindUsage:
		return stamp + " " + meta.Render(formatUsage(entry.Usage))
	case sessionlog.KindError:
		errStyle := lipgloss.NewStyle().Foreground(theme.ErrorText)
		return stamp + " " + errStyle.Render("error: "+entry.Error)
	default:
		return stamp + " " + meta.Render(string(entry.Kind))
	}
}

func formatApproval(entry sessionlog.Entry, theme Theme) string {
	var color lipgloss.Color
	switch entry.Decision {
	case "allow", "auto":
		color = theme.ApprovalAllow
	default:
		color = theme.ApprovalDeny
	}
	decision := lipgloss.NewStyle().Foreground(color).Render(entry.Decision)
	line := fmt.Sprintf("%s %s", entry.Tool, decision)
	if entry.Sender != "" {
		line += " by " + entry.Sender
	}
	return line
}

func formatUsage(usage *sessionlog.Usage) string {
	if usage == nil {
		return "usage: none recorded"
	}
	line := fmt.Sprintf("usage: %d input / %d output tokens", usage.InputTokens, usage.OutputTokens)
	if usage.CostUSD > 0 {
		line += fmt.Sprintf(" ($%.4f)", usage.CostUSD)
	}
	return line
}
