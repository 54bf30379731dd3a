// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import (
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/junegunn/fzf/src/util"

	"github.com/switchboard-dev/switchboard/lib/fuzzy"
	"github.com/switchboard-dev/switchboard/lib/statusapi"
)

// FilterModel narrows the session table with fuzzy matching against
// room ID, state, and permission mode. Matches are ranked, so typing
// a few characters of a room name floats it to the top.
type FilterModel struct {
	// Input is the current filter query text.
	Input string

	// Active is true while the filter input has keyboard focus.
	Active bool
}

// Apply ranks entries against the current query. An empty query
// returns entries unchanged. Ties keep the daemon's ordering.
func (filter *FilterModel) Apply(entries []statusapi.SessionEntry, slab *util.Slab) []statusapi.SessionEntry {
	if filter.Input == "" {
		return entries
	}

	pattern := []rune(filter.Input)
	type scored struct {
		entry statusapi.SessionEntry
		score int
	}
	var matched []scored
	for _, entry := range entries {
		label := entry.Room.String() + " " + entry.State.String() + " " + entry.Mode.String()
		result := fuzzy.Match(label, pattern, slab)
		if result.Score <= 0 {
			continue
		}
		matched = append(matched, scored{entry: entry, score: result.Score})
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].score > matched[j].score
	})

	result := make([]statusapi.SessionEntry, len(matched))
	for i, m := range matched {
		result[i] = m.entry
	}
	return result
}

// HandleRune appends a typed character to the query.
func (filter *FilterModel) HandleRune(character rune) {
	filter.Input += string(character)
}

// HandleBackspace removes the last character. Returns false when the
// query was already empty.
func (filter *FilterModel) HandleBackspace() bool {
	if len(filter.Input) == 0 {
		return false
	}
	runes := []rune(filter.Input)
	filter.Input = string(runes[:len(runes)-1])
	return true
}

// Clear resets the query and deactivates the filter.
func (filter *FilterModel) Clear() {
	filter.Input = ""
	filter.Active = false
}

// View renders the filter bar. Active shows the input with a cursor,
// inactive with text shows a subtle indicator, otherwise hidden.
func (filter *FilterModel) View(theme Theme, width int) string {
	if !filter.Active && filter.Input == "" {
		return ""
	}

	if filter.Active {
		style := lipgloss.NewStyle().
			Foreground(theme.NormalText).
			Width(width)
		cursor := lipgloss.NewStyle().
			Foreground(theme.HeaderForeground).
			Bold(true).
			Render("▎")
		return style.Render(" / " + filter.Input + cursor)
	}

	dimStyle := lipgloss.NewStyle().
		Foreground(theme.FaintText).
		Width(width)
	return dimStyle.Render(" filter: " + filter.Input)
}
