// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/switchboard-dev/switchboard/agent"
	"github.com/switchboard-dev/switchboard/lib/fuzzy"
	"github.com/switchboard-dev/switchboard/lib/ref"
	"github.com/switchboard-dev/switchboard/lib/sessionlog"
	"github.com/switchboard-dev/switchboard/lib/statusapi"
	"github.com/switchboard-dev/switchboard/session"
)

// The production wiring hands the model a statusapi client directly.
var _ Source = (*statusapi.Client)(nil)

func alphaEntry() statusapi.SessionEntry {
	return statusapi.SessionEntry{
		Status: session.Status{
			Room:         ref.MustParseRoomID("!alpha:example.org"),
			State:        session.StateCompleted,
			WorkDir:      "/srv/alpha",
			Mode:         agent.ModeAcceptEdits,
			Usage:        agent.Usage{InputTokens: 1200, OutputTokens: 560},
			LastActivity: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		},
		ConsoleRunning: true,
		ConsoleName:    "swb-0f3a9c81",
	}
}

func betaEntry() statusapi.SessionEntry {
	return statusapi.SessionEntry{
		Status: session.Status{
			Room:    ref.MustParseRoomID("!beta:example.org"),
			State:   session.StateIdle,
			WorkDir: "/srv/beta",
		},
	}
}

func testSnapshot(sessions ...statusapi.SessionEntry) snapshotMsg {
	return snapshotMsg{
		status: &statusapi.StatusResponse{
			Version:   "0.1.0-test",
			Variant:   "console",
			StartedAt: time.Now().Add(-time.Hour),
			Sessions:  len(sessions),
		},
		sessions: sessions,
	}
}

// advance runs one Update and returns the concrete model.
func advance(t *testing.T, m Model, message tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(message)
	next, ok := updated.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", updated)
	}
	return next, cmd
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestSnapshotBuildsRows(t *testing.T) {
	t.Parallel()

	m := NewModel(Config{Source: nil})
	m, _ = advance(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m, _ = advance(t, m, testSnapshot(alphaEntry(), betaEntry()))

	rows := m.table.Rows()
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0][0] != "!alpha:example.org" {
		t.Errorf("row 0 room: got %q", rows[0][0])
	}
	if m.selectedRoom != "!alpha:example.org" {
		t.Errorf("selectedRoom: got %q", m.selectedRoom)
	}
}

func TestSelectionSurvivesReorder(t *testing.T) {
	t.Parallel()

	m := NewModel(Config{Source: nil})
	m, _ = advance(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m, _ = advance(t, m, testSnapshot(alphaEntry(), betaEntry()))

	m, _ = advance(t, m, testSnapshot(betaEntry(), alphaEntry()))
	if m.selectedRoom != "!alpha:example.org" {
		t.Errorf("selectedRoom: got %q, want it pinned to alpha", m.selectedRoom)
	}
	if got := m.table.Cursor(); got != 1 {
		t.Errorf("cursor: got %d, want 1", got)
	}
}

func TestSnapshotErrorKeepsData(t *testing.T) {
	t.Parallel()

	m := NewModel(Config{Source: nil})
	m, _ = advance(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m, _ = advance(t, m, testSnapshot(alphaEntry()))

	m, _ = advance(t, m, snapshotMsg{err: context.DeadlineExceeded})
	if len(m.table.Rows()) != 1 {
		t.Errorf("rows dropped on poll failure")
	}
	if m.lastErr == nil {
		t.Error("lastErr not recorded")
	}

	m, _ = advance(t, m, testSnapshot(alphaEntry()))
	if m.lastErr != nil {
		t.Errorf("lastErr not cleared on recovery: %v", m.lastErr)
	}
}

func TestFilterNarrowsAndClears(t *testing.T) {
	t.Parallel()

	m := NewModel(Config{Source: nil})
	m, _ = advance(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m, _ = advance(t, m, testSnapshot(alphaEntry(), betaEntry()))

	m, _ = advance(t, m, keyPress("/"))
	if !m.filter.Active {
		t.Fatal("filter not activated")
	}
	for _, character := range "beta" {
		m, _ = advance(t, m, keyPress(string(character)))
	}
	if got := len(m.table.Rows()); got != 1 {
		t.Fatalf("filtered rows: got %d, want 1", got)
	}
	if m.selectedRoom != "!beta:example.org" {
		t.Errorf("selectedRoom: got %q, want beta", m.selectedRoom)
	}

	m, _ = advance(t, m, tea.KeyMsg{Type: tea.KeyEscape})
	if m.filter.Active || m.filter.Input != "" {
		t.Error("escape did not clear the filter")
	}
	if got := len(m.table.Rows()); got != 2 {
		t.Errorf("rows after clear: got %d, want 2", got)
	}
}

func TestSelectionChangeLoadsTranscript(t *testing.T) {
	t.Parallel()

	logPath := writeLog(t, []sessionlog.Entry{
		{Time: testTime(0), Kind: sessionlog.KindPrompt, Channel: "!alpha:example.org", Sender: "@a:x.org", Text: "hello"},
	}, "")

	m := NewModel(Config{Source: nil, SessionLog: logPath})
	m, _ = advance(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m, cmd := advance(t, m, testSnapshot(alphaEntry(), betaEntry()))
	if cmd == nil {
		t.Fatal("expected a transcript load after first selection")
	}

	message, ok := cmd().(transcriptMsg)
	if !ok {
		t.Fatalf("cmd returned %T, want transcriptMsg", cmd())
	}
	if message.channel != "!alpha:example.org" {
		t.Errorf("channel: got %q", message.channel)
	}
	if message.err != nil {
		t.Fatalf("transcript read: %v", message.err)
	}

	m, _ = advance(t, m, message)
	if len(m.entries) != 1 || m.entries[0].Text != "hello" {
		t.Errorf("entries not cached: %+v", m.entries)
	}
}

func TestStaleTranscriptDropped(t *testing.T) {
	t.Parallel()

	m := NewModel(Config{Source: nil})
	m, _ = advance(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m, _ = advance(t, m, testSnapshot(alphaEntry()))

	m, _ = advance(t, m, transcriptMsg{
		channel: "!beta:example.org",
		entries: []sessionlog.Entry{{Kind: sessionlog.KindPrompt, Text: "stale"}},
	})
	if len(m.entries) != 0 {
		t.Errorf("stale transcript accepted: %+v", m.entries)
	}
}

func TestQuitKey(t *testing.T) {
	t.Parallel()

	m := NewModel(Config{Source: nil})
	m, _ = advance(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	_, cmd := advance(t, m, keyPress("q"))
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("cmd returned %T, want tea.QuitMsg", cmd())
	}
}

func TestViewShowsSessionsAndTranscript(t *testing.T) {
	t.Parallel()

	m := NewModel(Config{Source: nil})
	m, _ = advance(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m, _ = advance(t, m, testSnapshot(alphaEntry()))

	view := ansi.Strip(m.View())
	for _, want := range []string{"switchboard 0.1.0-test", "!alpha:example.org", "transcript", "accept-edits"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestFilterApplyRanks(t *testing.T) {
	t.Parallel()

	entries := []statusapi.SessionEntry{alphaEntry(), betaEntry()}
	filter := FilterModel{Input: "alpha"}
	got := filter.Apply(entries, fuzzy.NewSlab())
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	if got[0].Room.String() != "!alpha:example.org" {
		t.Errorf("wrong entry: %q", got[0].Room.String())
	}
}

func TestFilterApplyEmptyPassthrough(t *testing.T) {
	t.Parallel()

	entries := []statusapi.SessionEntry{alphaEntry(), betaEntry()}
	filter := FilterModel{}
	if got := filter.Apply(entries, fuzzy.NewSlab()); len(got) != 2 {
		t.Errorf("got %d entries, want 2", len(got))
	}
}

func TestFilterMatchesState(t *testing.T) {
	t.Parallel()

	entries := []statusapi.SessionEntry{alphaEntry(), betaEntry()}
	filter := FilterModel{Input: "idle"}
	got := filter.Apply(entries, fuzzy.NewSlab())
	if len(got) != 1 || got[0].Room.String() != "!beta:example.org" {
		t.Errorf("state query missed: %+v", got)
	}
}

func TestSessionRowCells(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 9, 35, 0, 0, time.UTC)
	row := sessionRow(alphaEntry(), now)
	want := []string{"!alpha:example.org", "completed", "accept-edits", "1.2k/560", "5m", "swb-0f3a9c81"}
	for i, cell := range want {
		if row[i] != cell {
			t.Errorf("cell %d: got %q, want %q", i, row[i], cell)
		}
	}
}

func TestSessionRowNoConsole(t *testing.T) {
	t.Parallel()

	row := sessionRow(betaEntry(), time.Now())
	if row[5] != "-" {
		t.Errorf("console cell: got %q, want -", row[5])
	}
}

func TestCompactCount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1.0k"},
		{1500, "1.5k"},
		{10000, "10k"},
		{123456, "123k"},
		{2500000, "2.5M"},
	}
	for _, tc := range cases {
		if got := compactCount(tc.n); got != tc.want {
			t.Errorf("compactCount(%d): got %q, want %q", tc.n, got, tc.want)
		}
	}
}

func TestFormatAge(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "-"},
		{now.Add(-5 * time.Second), "now"},
		{now.Add(-42 * time.Second), "42s"},
		{now.Add(-5 * time.Minute), "5m"},
		{now.Add(-3 * time.Hour), "3h"},
		{now.Add(-47 * time.Hour), "1d"},
	}
	for _, tc := range cases {
		if got := formatAge(tc.at, now); got != tc.want {
			t.Errorf("formatAge(%v): got %q, want %q", tc.at, got, tc.want)
		}
	}
}

func TestFormatUptime(t *testing.T) {
	t.Parallel()

	cases := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{5 * time.Minute, "5m"},
		{3*time.Hour + 12*time.Minute, "3h12m"},
		{26 * time.Hour, "1d2h"},
	}
	for _, tc := range cases {
		if got := formatUptime(tc.d); got != tc.want {
			t.Errorf("formatUptime(%v): got %q, want %q", tc.d, got, tc.want)
		}
	}
}
