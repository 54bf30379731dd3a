// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/junegunn/fzf/src/util"

	"github.com/switchboard-dev/switchboard/agent"
	"github.com/switchboard-dev/switchboard/lib/fuzzy"
	"github.com/switchboard-dev/switchboard/lib/sessionlog"
	"github.com/switchboard-dev/switchboard/lib/statusapi"
	"github.com/switchboard-dev/switchboard/session"
)

// Source supplies daemon status over the admin socket. Satisfied by
// [statusapi.Client].
type Source interface {
	Status(ctx context.Context) (*statusapi.StatusResponse, error)
	Sessions(ctx context.Context) ([]statusapi.SessionEntry, error)
}

// fetchTimeout bounds one poll of the status socket. The socket is
// local, so anything slower means the daemon is wedged.
const fetchTimeout = 5 * time.Second

// Config configures the dashboard model.
type Config struct {
	// Source supplies status snapshots. Required.
	Source Source

	// PollInterval is how often the status socket is polled.
	// Defaults to 2 seconds.
	PollInterval time.Duration

	// SessionLog overrides the log path reported by the daemon.
	SessionLog string

	// TranscriptLimit caps how many log entries the transcript pane
	// keeps. Defaults to 200.
	TranscriptLimit int
}

// pollTickMsg fires on the poll interval.
type pollTickMsg struct{}

// snapshotMsg delivers one poll of the status socket.
type snapshotMsg struct {
	status   *statusapi.StatusResponse
	sessions []statusapi.SessionEntry
	err      error
}

// transcriptMsg delivers a session log read for one channel. The
// channel tags the read so a stale result for a previously selected
// room can be dropped.
type transcriptMsg struct {
	channel string
	entries []sessionlog.Entry
	err     error
}

// Model is the top-level bubbletea model for the dashboard.
type Model struct {
	source          Source
	theme           Theme
	keys            KeyMap
	pollInterval    time.Duration
	transcriptLimit int
	logOverride     string

	// Terminal dimensions (set by WindowSizeMsg).
	width  int
	height int
	ready  bool

	// Poll state.
	fetching bool
	spinner  spinner.Model
	lastErr  error

	// Latest snapshot. sessions keeps the daemon's ordering; the
	// filter reranks a copy for display.
	status     *statusapi.StatusResponse
	sessions   []statusapi.SessionEntry
	sessionLog string
	filter     FilterModel
	slab       *util.Slab

	// Panes. selectedRoom tracks selection by room ID so it survives
	// reordering; selectedActivity detects movement between polls.
	table            table.Model
	transcript       viewport.Model
	focusTranscript  bool
	follow           bool
	selectedRoom     string
	selectedActivity time.Time
	entries          []sessionlog.Entry
	transcriptErr    error
}

// NewModel creates the dashboard model. The first poll starts from
// [Model.Init].
func NewModel(config Config) Model {
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.TranscriptLimit <= 0 {
		config.TranscriptLimit = 200
	}
	theme := DefaultTheme

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.FaintText)

	tbl := table.New(
		table.WithColumns(sessionColumns(80)),
		table.WithFocused(true),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Bold(true).
		Foreground(theme.HeaderForeground).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(theme.BorderColor).
		BorderBottom(true)
	styles.Selected = styles.Selected.
		Foreground(theme.SelectedForeground).
		Background(theme.SelectedBackground)
	tbl.SetStyles(styles)

	return Model{
		source:          config.Source,
		theme:           theme,
		keys:            DefaultKeyMap,
		pollInterval:    config.PollInterval,
		transcriptLimit: config.TranscriptLimit,
		logOverride:     config.SessionLog,
		sessionLog:      config.SessionLog,
		fetching:        true,
		spinner:         sp,
		slab:            fuzzy.NewSlab(),
		table:           tbl,
		follow:          true,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, fetchSnapshot(m.source), schedulePoll(m.pollInterval))
}

func schedulePoll(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return pollTickMsg{}
	})
}

// fetchSnapshot polls the status socket off the event loop.
func fetchSnapshot(source Source) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		status, err := source.Status(ctx)
		if err != nil {
			return snapshotMsg{err: err}
		}
		sessions, err := source.Sessions(ctx)
		if err != nil {
			return snapshotMsg{err: err}
		}
		return snapshotMsg{status: status, sessions: sessions}
	}
}

// loadTranscript reads the session log off the event loop.
func loadTranscript(path, channel string, limit int) tea.Cmd {
	return func() tea.Msg {
		entries, err := ReadTranscript(path, channel, limit)
		return transcriptMsg{channel: channel, entries: entries, err: err}
	}
}

// Update implements tea.Model.
func (m Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		m.width = message.Width
		m.height = message.Height
		m.ready = true
		m.layout()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(message)
		return m, cmd

	case pollTickMsg:
		cmds := []tea.Cmd{schedulePoll(m.pollInterval)}
		if !m.fetching {
			m.fetching = true
			cmds = append(cmds, fetchSnapshot(m.source))
		}
		return m, tea.Batch(cmds...)

	case snapshotMsg:
		return m.handleSnapshot(message)

	case transcriptMsg:
		if message.channel != m.selectedRoom {
			return m, nil
		}
		m.transcriptErr = message.err
		if message.err == nil {
			m.entries = message.entries
		}
		m.renderTranscript()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(message)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(message)
		m.follow = m.transcript.AtBottom()
		return m, cmd
	}

	return m, nil
}

func (m Model) handleSnapshot(message snapshotMsg) (tea.Model, tea.Cmd) {
	m.fetching = false
	if message.err != nil {
		m.lastErr = message.err
		return m, nil
	}
	m.lastErr = nil
	m.status = message.status
	m.sessions = message.sessions
	if m.logOverride == "" {
		m.sessionLog = message.status.SessionLog
	}
	m.rebuildRows()
	if cmd := m.syncSelection(); cmd != nil {
		return m, cmd
	}
	return m, m.transcriptRefreshCmd()
}

func (m Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filter.Active {
		return m.handleFilterKey(message)
	}

	switch {
	case key.Matches(message, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(message, m.keys.FocusToggle):
		m.focusTranscript = !m.focusTranscript
		if m.focusTranscript {
			m.table.Blur()
		} else {
			m.table.Focus()
		}
		return m, nil

	case key.Matches(message, m.keys.Refresh):
		if m.fetching {
			return m, nil
		}
		m.fetching = true
		return m, fetchSnapshot(m.source)

	case key.Matches(message, m.keys.FilterActivate):
		m.filter.Active = true
		return m, nil

	case key.Matches(message, m.keys.FilterClear) && m.filter.Input != "":
		m.filter.Clear()
		m.rebuildRows()
		return m, m.syncSelection()

	case key.Matches(message, m.keys.Follow):
		m.transcript.GotoBottom()
		m.follow = true
		return m, nil
	}

	if m.focusTranscript {
		m.handleTranscriptKey(message)
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(message)
	if selectCmd := m.syncSelection(); selectCmd != nil {
		cmd = tea.Batch(cmd, selectCmd)
	}
	return m, cmd
}

// handleFilterKey routes keystrokes to the filter input while it has
// focus. Esc clears, Enter confirms and returns focus to the table.
func (m Model) handleFilterKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch message.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEscape:
		m.filter.Clear()
	case tea.KeyEnter:
		m.filter.Active = false
		return m, nil
	case tea.KeyBackspace:
		if !m.filter.HandleBackspace() {
			return m, nil
		}
	case tea.KeySpace:
		m.filter.HandleRune(' ')
	case tea.KeyRunes:
		for _, character := range message.Runes {
			m.filter.HandleRune(character)
		}
	default:
		return m, nil
	}
	m.rebuildRows()
	return m, m.syncSelection()
}

func (m *Model) handleTranscriptKey(message tea.KeyMsg) {
	switch {
	case key.Matches(message, m.keys.Up):
		m.transcript.SetYOffset(m.transcript.YOffset - 1)
	case key.Matches(message, m.keys.Down):
		m.transcript.SetYOffset(m.transcript.YOffset + 1)
	case key.Matches(message, m.keys.PageUp):
		m.transcript.HalfViewUp()
	case key.Matches(message, m.keys.PageDown):
		m.transcript.HalfViewDown()
	case key.Matches(message, m.keys.Home):
		m.transcript.GotoTop()
	case key.Matches(message, m.keys.End):
		m.transcript.GotoBottom()
	default:
		return
	}
	m.follow = m.transcript.AtBottom()
}

// layout sizes the panes. The split is a fixed fraction so the
// transcript does not jump as sessions come and go.
func (m *Model) layout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	m.table.SetColumns(sessionColumns(m.width))
	m.table.SetWidth(m.width)

	contentHeight := m.height - 3
	if contentHeight < 6 {
		contentHeight = 6
	}
	tableHeight := contentHeight * 2 / 5
	if tableHeight < 4 {
		tableHeight = 4
	}
	if tableHeight > contentHeight-2 {
		tableHeight = contentHeight - 2
	}
	m.table.SetHeight(tableHeight)
	m.transcript.Width = m.width
	m.transcript.Height = contentHeight - tableHeight
	m.renderTranscript()
}

// rebuildRows refreshes the table from the latest snapshot through
// the filter.
func (m *Model) rebuildRows() {
	entries := m.filter.Apply(m.sessions, m.slab)
	now := time.Now()
	rows := make([]table.Row, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, sessionRow(entry, now))
	}
	m.table.SetRows(rows)

	// Keep the cursor on the same room across reorders.
	for index, entry := range entries {
		if entry.Room.String() == m.selectedRoom {
			m.table.SetCursor(index)
			return
		}
	}
	if len(rows) > 0 {
		m.table.SetCursor(0)
	}
}

// syncSelection reconciles the tracked room with the table cursor.
// Returns a transcript load when the selection moved.
func (m *Model) syncSelection() tea.Cmd {
	row := m.table.SelectedRow()
	if row == nil {
		if m.selectedRoom != "" {
			m.selectedRoom = ""
			m.entries = nil
			m.transcriptErr = nil
			m.renderTranscript()
		}
		return nil
	}
	room := row[0]
	if room == m.selectedRoom {
		return nil
	}
	m.selectedRoom = room
	m.selectedActivity = time.Time{}
	m.entries = nil
	m.transcriptErr = nil
	m.renderTranscript()
	return m.loadTranscriptCmd()
}

// transcriptRefreshCmd reloads the transcript when the selected
// session shows movement. Active sessions stream output entries, so
// they reload on every poll.
func (m *Model) transcriptRefreshCmd() tea.Cmd {
	entry, ok := m.selectedEntry()
	if !ok {
		return nil
	}
	active := entry.State == session.StateActive
	moved := !entry.LastActivity.Equal(m.selectedActivity)
	m.selectedActivity = entry.LastActivity
	if !active && !moved {
		return nil
	}
	return m.loadTranscriptCmd()
}

func (m *Model) selectedEntry() (statusapi.SessionEntry, bool) {
	for _, entry := range m.sessions {
		if entry.Room.String() == m.selectedRoom {
			return entry, true
		}
	}
	return statusapi.SessionEntry{}, false
}

func (m *Model) loadTranscriptCmd() tea.Cmd {
	if m.sessionLog == "" || m.selectedRoom == "" {
		return nil
	}
	return loadTranscript(m.sessionLog, m.selectedRoom, m.transcriptLimit)
}

// renderTranscript refreshes the viewport from the cached entries.
func (m *Model) renderTranscript() {
	if m.transcript.Width <= 0 {
		return
	}
	faint := lipgloss.NewStyle().Foreground(m.theme.FaintText)
	var content string
	switch {
	case m.transcriptErr != nil:
		content = lipgloss.NewStyle().Foreground(m.theme.ErrorText).
			Render("session log: " + m.transcriptErr.Error())
	case m.selectedRoom == "":
		content = faint.Render("no session selected")
	case len(m.entries) == 0:
		content = faint.Render("transcript empty")
	default:
		content = FormatTranscript(m.entries, m.theme, m.transcript.Width)
	}
	m.transcript.SetContent(content)
	if m.follow {
		m.transcript.GotoBottom()
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	sections := []string{
		m.renderHeader(),
		m.table.View(),
		m.renderTranscriptTitle(),
		m.transcript.View(),
		m.renderFooter(),
	}
	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	left := "switchboard · connecting"
	if m.status != nil {
		left = fmt.Sprintf("switchboard %s · %s · up %s · %d sessions",
			m.status.Version, m.status.Variant,
			formatUptime(time.Since(m.status.StartedAt)), m.status.Sessions)
	}
	left = lipgloss.NewStyle().Foreground(m.theme.HeaderForeground).Bold(true).Render(left)

	right := ""
	switch {
	case m.lastErr != nil:
		right = lipgloss.NewStyle().Foreground(m.theme.ErrorText).
			Render("poll failed: " + m.lastErr.Error())
	case m.fetching:
		right = m.spinner.View()
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if padding < 1 {
		padding = 1
	}
	return left + strings.Repeat(" ", padding) + right
}

func (m Model) renderTranscriptTitle() string {
	label := " transcript"
	if m.selectedRoom != "" {
		label += " · " + m.selectedRoom
	}
	if m.follow {
		label += " · following"
	}
	label += " "
	fill := m.width - lipgloss.Width(label) - 2
	if fill < 0 {
		fill = 0
	}
	line := "──" + label + strings.Repeat("─", fill)
	return lipgloss.NewStyle().Foreground(m.theme.BorderColor).Render(line)
}

func (m Model) renderFooter() string {
	if filterView := m.filter.View(m.theme, m.width); filterView != "" {
		return filterView
	}
	bindings := []key.Binding{
		m.keys.FocusToggle,
		m.keys.FilterActivate,
		m.keys.Follow,
		m.keys.Refresh,
		m.keys.Quit,
	}
	parts := make([]string, 0, len(bindings))
	for _, binding := range bindings {
		help := binding.Help()
		parts = append(parts, help.Key+" "+help.Desc)
	}
	return lipgloss.NewStyle().Foreground(m.theme.HelpText).
		Render(" " + strings.Join(parts, " · "))
}

// sessionColumns sizes the table for the terminal width. The room
// column absorbs the slack; the rest are fixed.
func sessionColumns(width int) []table.Column {
	const fixed = 10 + 12 + 16 + 9 + 16
	// Each column carries two cells of style padding.
	room := width - fixed - 12
	if room < 16 {
		room = 16
	}
	return []table.Column{
		{Title: "room", Width: room},
		{Title: "state", Width: 10},
		{Title: "mode", Width: 12},
		{Title: "tokens in/out", Width: 16},
		{Title: "activity", Width: 9},
		{Title: "console", Width: 16},
	}
}

// sessionRow renders one session as table cells.
func sessionRow(entry statusapi.SessionEntry, now time.Time) table.Row {
	console := "-"
	if entry.ConsoleRunning {
		console = entry.ConsoleName
	}
	return table.Row{
		entry.Room.String(),
		entry.State.String(),
		entry.Mode.String(),
		formatTokens(entry.Usage),
		formatAge(entry.LastActivity, now),
		console,
	}
}

func formatTokens(usage agent.Usage) string {
	return compactCount(usage.InputTokens) + "/" + compactCount(usage.OutputTokens)
}

// compactCount shortens token counts so the column stays narrow.
func compactCount(n int64) string {
	switch {
	case n < 1000:
		return fmt.Sprintf("%d", n)
	case n < 10000:
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	case n < 1000000:
		return fmt.Sprintf("%dk", n/1000)
	default:
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
}

// formatAge renders how long ago a timestamp was, in one short token.
func formatAge(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := now.Sub(t)
	switch {
	case age < 10*time.Second:
		return "now"
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd", int(age.Hours())/24)
	}
}

// formatUptime renders the daemon uptime for the header line.
func formatUptime(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh%02dm", hours, minutes)
	default:
		days := int(d.Hours()) / 24
		hours := int(d.Hours()) % 24
		return fmt.Sprintf("%dd%dh", days, hours)
	}
}
