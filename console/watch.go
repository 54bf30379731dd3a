// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"sync"

	"github.com/switchboard-dev/switchboard/lib/ref"
	"github.com/switchboard-dev/switchboard/render"
)

// Event is one observation from a console watch: either a changed pane
// snapshot or the death of the pane process. Died is the watch's final
// event; the events channel closes after it.
type Event struct {
	// Snapshot is the cleaned pane content. Empty on a death event.
	Snapshot string

	// Died reports that the pane process exited.
	Died bool

	// ExitCode is the pane process's exit status, meaningful only
	// when Died is set. -1 when the session vanished before its exit
	// could be observed.
	ExitCode int
}

// Watch is one room's running poll loop.
type Watch struct {
	room   ref.RoomID
	events chan Event
	cancel context.CancelFunc
	once   sync.Once
}

// Events returns the watch's event stream. Closed when the watch
// stops, whether by [Host.StopWatch] or pane death.
func (w *Watch) Events() <-chan Event {
	return w.events
}

// Stop ends the poll loop. Safe to call more than once.
func (w *Watch) Stop() {
	w.once.Do(w.cancel)
}

func (w *Watch) deliver(ctx context.Context, event Event) {
	select {
	case w.events <- event:
	case <-ctx.Done():
	}
}

// poll snapshots the pane on every tick, emitting cleaned snapshots
// when they change and a final death event when the pane process
// exits. A dead pane ends the loop; there is nothing to retry against.
func (h *Host) poll(ctx context.Context, w *Watch) {
	defer close(w.events)
	name := h.name(w.room)
	ticker := h.clock.NewTicker(h.config.PollInterval)
	defer ticker.Stop()

	last := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		dead, exitCode, err := h.terminal.PaneStatus(name)
		if err != nil {
			if !h.terminal.HasSession(name) {
				h.logger.Warn("console session vanished",
					"room", w.room, "session", name)
				w.deliver(ctx, Event{Died: true, ExitCode: -1})
				return
			}
			h.logger.Warn("console status probe failed",
				"room", w.room, "error", err)
			continue
		}
		if dead {
			h.logger.Info("console pane exited",
				"room", w.room, "exit_code", exitCode)
			w.deliver(ctx, Event{Died: true, ExitCode: exitCode})
			return
		}

		raw, err := h.terminal.CapturePane(name, h.config.CaptureLines)
		if err != nil {
			h.logger.Warn("console capture failed",
				"room", w.room, "error", err)
			continue
		}
		cleaned := render.Clean(raw)
		if cleaned == last {
			continue
		}
		last = cleaned
		w.deliver(ctx, Event{Snapshot: cleaned})
	}
}
