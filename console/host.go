// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/zeebo/blake3"

	"github.com/switchboard-dev/switchboard/lib/clock"
	"github.com/switchboard-dev/switchboard/lib/ref"
)

// DefaultSessionPrefix marks every tmux session this package owns. The
// attach picker filters the server's session list on it.
const DefaultSessionPrefix = "swb-"

// SessionName returns the canonical tmux session name for a room.
// Room IDs contain characters tmux rejects in session names, so the
// name is a content hash: stable across restarts, which is what lets a
// restarted daemon find consoles its predecessor spawned.
func SessionName(prefix string, room ref.RoomID) string {
	sum := blake3.Sum256([]byte(room.String()))
	return prefix + hex.EncodeToString(sum[:6])
}

// Terminal is the slice of the tmux server the console transport
// drives. *tmux.Server implements it.
type Terminal interface {
	HasSession(sessionName string) bool
	NewSession(sessionName, workDir string, command ...string) error
	KillSession(sessionName string) error
	SendKeys(sessionName string, keys ...string) error
	SetOption(sessionName, key, value string) error
	CapturePane(sessionName string, maxLines int) (string, error)
	PaneStatus(sessionName string) (dead bool, exitCode int, err error)
	SignalPane(sessionName string, signal syscall.Signal) error
}

// Config tunes the console transport.
type Config struct {
	// Command is what runs inside each pane. Defaults to the claude
	// CLI in interactive mode.
	Command []string

	// SessionPrefix is prepended to each room's hashed session name.
	// Default [DefaultSessionPrefix].
	SessionPrefix string

	// PollInterval is how often panes are snapshotted. Default 2s.
	PollInterval time.Duration

	// CaptureLines bounds each snapshot to the last N pane lines.
	// Default 120.
	CaptureLines int
}

func (c Config) withDefaults() Config {
	if len(c.Command) == 0 {
		c.Command = []string{"claude"}
	}
	if c.SessionPrefix == "" {
		c.SessionPrefix = DefaultSessionPrefix
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.CaptureLines <= 0 {
		c.CaptureLines = 120
	}
	return c
}

// Host runs agents inside tmux panes, one session per room, and
// watches their output by snapshot polling. Messages are typed into
// the pane; the CLI's own interface handles approvals there, so the
// structured correlation path does not apply to this transport.
type Host struct {
	terminal Terminal
	config   Config
	clock    clock.Clock
	logger   *slog.Logger

	mu      sync.Mutex
	watches map[ref.RoomID]*Watch
}

// NewHost wraps a tmux server as a console host.
func NewHost(terminal Terminal, config Config, clk clock.Clock, logger *slog.Logger) *Host {
	return &Host{
		terminal: terminal,
		config:   config.withDefaults(),
		clock:    clk,
		logger:   logger,
		watches:  make(map[ref.RoomID]*Watch),
	}
}

// name returns the room's tmux session name under this host's prefix.
func (h *Host) name(room ref.RoomID) string {
	return SessionName(h.config.SessionPrefix, room)
}

// Ensure makes the room's console exist. If a tmux session already
// runs under the canonical name it is reused rather than duplicated;
// existed reports which happened, so the caller can tell a reattach
// (possibly to a console that outlived a previous daemon) from a fresh
// spawn. remain-on-exit stays on so a dead pane is observable instead
// of vanishing.
func (h *Host) Ensure(room ref.RoomID, workDir string) (existed bool, err error) {
	name := h.name(room)
	if h.terminal.HasSession(name) {
		return true, nil
	}
	if err := h.terminal.NewSession(name, workDir, h.config.Command...); err != nil {
		return false, fmt.Errorf("console: spawning session for %s: %w", room, err)
	}
	if err := h.terminal.SetOption(name, "remain-on-exit", "on"); err != nil {
		return false, fmt.Errorf("console: configuring session for %s: %w", room, err)
	}
	h.logger.Info("console session spawned",
		"room", room, "session", name, "work_dir", workDir)
	return false, nil
}

// Alive reports whether the room's console session exists.
func (h *Host) Alive(room ref.RoomID) bool {
	return h.terminal.HasSession(h.name(room))
}

// Send types text into the room's console, followed by Enter.
func (h *Host) Send(room ref.RoomID, text string) error {
	if err := h.terminal.SendKeys(h.name(room), text, "Enter"); err != nil {
		return fmt.Errorf("console: sending input to %s: %w", room, err)
	}
	return nil
}

// Interrupt delivers SIGINT to the pane process, as if the operator
// pressed Ctrl-C at the console.
func (h *Host) Interrupt(room ref.RoomID) error {
	if err := h.terminal.SignalPane(h.name(room), syscall.SIGINT); err != nil {
		return fmt.Errorf("console: interrupting %s: %w", room, err)
	}
	return nil
}

// Kill stops the room's watch and destroys its tmux session.
func (h *Host) Kill(room ref.RoomID) error {
	h.StopWatch(room)
	if err := h.terminal.KillSession(h.name(room)); err != nil {
		return fmt.Errorf("console: killing session for %s: %w", room, err)
	}
	h.logger.Info("console session killed", "room", room)
	return nil
}

// Watch starts snapshot polling for the room and returns the watch.
// Starting an already-watched room returns the running watch, so a
// second caller cannot double the poll traffic.
func (h *Host) Watch(room ref.RoomID) *Watch {
	h.mu.Lock()
	defer h.mu.Unlock()
	if w, ok := h.watches[room]; ok {
		return w
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watch{
		room:   room,
		events: make(chan Event, 8),
		cancel: cancel,
	}
	h.watches[room] = w
	go func() {
		h.poll(ctx, w)
		h.mu.Lock()
		if h.watches[room] == w {
			delete(h.watches, room)
		}
		h.mu.Unlock()
	}()
	return w
}

// StopWatch tears down the room's poll loop if one is running. The
// tmux session itself keeps running; consoles are meant to survive the
// daemon so a successor can reattach.
func (h *Host) StopWatch(room ref.RoomID) {
	h.mu.Lock()
	w, ok := h.watches[room]
	if ok {
		delete(h.watches, room)
	}
	h.mu.Unlock()
	if ok {
		w.Stop()
	}
}

// Shutdown stops every watch. Sessions stay alive for reattachment.
func (h *Host) Shutdown() {
	h.mu.Lock()
	watches := make([]*Watch, 0, len(h.watches))
	for _, w := range h.watches {
		watches = append(watches, w)
	}
	h.watches = make(map[ref.RoomID]*Watch)
	h.mu.Unlock()

	for _, w := range watches {
		w.Stop()
	}
}
