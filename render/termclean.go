// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

const (
	// maxRuleRun is the length at which a run of rule characters is
	// considered a separator line artifact rather than content.
	maxRuleRun = 40

	// ruleWidth is the fixed width long rule runs are shortened to.
	ruleWidth = 20
)

// skipSubstrings mark TUI chrome lines by content: shortcut hints,
// spinner status, and permission-mode footers from the claude CLI.
var skipSubstrings = []string{
	"? for shortcuts",
	"esc to interrupt",
	"esc to cancel",
	"ctrl+c to exit",
	"shift+tab to cycle",
	"Bypassing Permissions",
	"auto-accept edits",
	"plan mode on",
}

// skipPatterns mark TUI chrome lines by shape: the input box borders,
// spinner/banner glyph lines, and tip lines.
var skipPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*[│╭╰╮╯┃┏┗┓┛]`),
	regexp.MustCompile(`^\s*[✢✳✶✻✽❋∗·]\s`),
	regexp.MustCompile(`^\s*※?\s*Tip:`),
	regexp.MustCompile(`Welcome to Claude`),
}

// Clean strips a terminal snapshot down to its conversational content:
// ANSI escape sequences and control characters are removed, chrome
// lines (banners, status bars, tips, input box borders) are dropped,
// long separator rules are shortened to a fixed width, and blank runs
// are collapsed. Pure and idempotent: Clean(Clean(s)) == Clean(s).
func Clean(snapshot string) string {
	text := ansi.Strip(snapshot)
	text = strings.Map(dropControl, text)

	var kept []string
	blanks := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t")
		if isChromeLine(line) {
			continue
		}
		line = shortenRules(line)
		if line == "" {
			blanks++
			if blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		kept = append(kept, line)
	}

	for len(kept) > 0 && kept[0] == "" {
		kept = kept[1:]
	}
	for len(kept) > 0 && kept[len(kept)-1] == "" {
		kept = kept[:len(kept)-1]
	}
	return strings.Join(kept, "\n")
}

// dropControl removes control characters that survive ANSI stripping
// (carriage returns, bells) while keeping newlines and tabs.
func dropControl(r rune) rune {
	if r == '\n' || r == '\t' {
		return r
	}
	if r < 0x20 || r == 0x7f {
		return -1
	}
	return r
}

func isChromeLine(line string) bool {
	for _, substring := range skipSubstrings {
		if strings.Contains(line, substring) {
			return true
		}
	}
	for _, pattern := range skipPatterns {
		if pattern.MatchString(line) {
			return true
		}
	}
	return false
}

// shortenRules replaces runs of the same rule character at or past
// maxRuleRun with a fixed-width run, so full-width separators from the
// terminal do not wrap into multiple chat lines.
func shortenRules(line string) string {
	if len(line) < maxRuleRun {
		return line
	}
	var builder strings.Builder
	runes := []rune(line)
	for i := 0; i < len(runes); {
		j := i
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		if j-i >= maxRuleRun && isRuleRune(runes[i]) {
			builder.WriteString(strings.Repeat(string(runes[i]), ruleWidth))
		} else {
			builder.WriteString(string(runes[i:j]))
		}
		i = j
	}
	return builder.String()
}

func isRuleRune(r rune) bool {
	switch r {
	case '─', '━', '═', '-', '=', '_', '~', '*', '#':
		return true
	}
	return false
}

// fenceRun matches any backtick run long enough to open or close a
// fenced code block.
var fenceRun = regexp.MustCompile("`{3,}")

// DefuseFences makes text safe to embed inside a fenced code block by
// breaking up backtick runs of three or more with zero-width spaces.
// The result never contains a fence-capable run, so applying it twice
// changes nothing.
func DefuseFences(text string) string {
	return fenceRun.ReplaceAllStringFunc(text, func(run string) string {
		var builder strings.Builder
		for i := range len(run) {
			if i > 0 && i%2 == 0 {
				builder.WriteRune('​')
			}
			builder.WriteByte(run[i])
		}
		return builder.String()
	})
}
