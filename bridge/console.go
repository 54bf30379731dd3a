// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"

	"github.com/switchboard-dev/switchboard/lib/ref"
	"github.com/switchboard-dev/switchboard/lib/sessionlog"
	"github.com/switchboard-dev/switchboard/session"
)

// consoleSend types a message into the room's console pane, spawning
// or re-attaching the pane first. Re-attach covers panes that survived
// a daemon restart: the session is new in memory but the tmux session
// already exists.
func (c *controller) consoleSend(ctx context.Context, sender ref.UserID, text string) error {
	sess, created := c.bridge.registry.GetOrCreate(c.room)
	existed, err := c.bridge.consoles.Ensure(c.room, sess.WorkDir())
	if err != nil {
		return fmt.Errorf("bridge: starting console: %w", err)
	}
	switch {
	case !existed:
		c.bridge.notice(ctx, c.room, "console session started in "+sess.WorkDir())
	case created:
		c.bridge.notice(ctx, c.room, "re-attached to a running console session")
	}
	c.watchConsole(ctx)

	if err := c.bridge.consoles.Send(c.room, text); err != nil {
		if !c.bridge.consoles.Alive(c.room) {
			return &SessionDeadError{Room: c.room, Err: err}
		}
		return fmt.Errorf("bridge: sending to console: %w", err)
	}
	sess.Touch()
	c.bridge.record(sessionlog.Entry{
		Kind:    sessionlog.KindPrompt,
		Channel: c.room.String(),
		Sender:  sender.String(),
		Text:    text,
	})
	return nil
}

// watchConsole starts feeding pane snapshots into the work queue.
// Idempotent; the consumer goroutine lives until the watch stops.
func (c *controller) watchConsole(ctx context.Context) {
	if c.watching {
		return
	}
	c.watching = true
	watch := c.bridge.consoles.Watch(c.room)
	go func() {
		for event := range watch.Events() {
			select {
			case c.work <- consoleWork{event: event}:
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (c *controller) handleConsole(ctx context.Context, item consoleWork) {
	if !c.watching {
		return
	}
	if item.event.Died {
		c.watching = false
		c.bridge.registry.Remove(c.room)

		message := "console session vanished"
		if item.event.ExitCode >= 0 {
			message = fmt.Sprintf("console session ended (exit %d)", item.event.ExitCode)
		}
		c.bridge.notice(ctx, c.room, message)
		c.bridge.record(sessionlog.Entry{
			Kind:    sessionlog.KindTransition,
			Channel: c.room.String(),
			To:      session.StateClosed.String(),
			Text:    message,
		})
		c.logger.Info("console session died", "exit_code", item.event.ExitCode)
		return
	}
	if err := c.renderer.Replace(ctx, item.event.Snapshot); err != nil {
		c.logger.Warn("snapshot render failed", "error", err)
	}
}

func (c *controller) consoleInterrupt(ctx context.Context) error {
	if !c.bridge.consoles.Alive(c.room) {
		return validationf("no console session is running")
	}
	if err := c.bridge.consoles.Interrupt(c.room); err != nil {
		return fmt.Errorf("bridge: interrupting console: %w", err)
	}
	c.bridge.notice(ctx, c.room, "sent interrupt to the console")
	return nil
}

// consoleClose tears the pane down for real, unlike daemon shutdown
// which leaves consoles running.
func (c *controller) consoleClose(ctx context.Context) error {
	sess, _ := c.bridge.registry.Get(c.room)
	if sess == nil && !c.bridge.consoles.Alive(c.room) {
		return validationf("no console session to close")
	}
	c.watching = false
	if err := c.bridge.consoles.Kill(c.room); err != nil {
		c.logger.Warn("console kill failed", "error", err)
	}
	if sess != nil {
		sess.Close()
		c.bridge.registry.Remove(c.room)
	}
	c.bridge.record(sessionlog.Entry{
		Kind:    sessionlog.KindTransition,
		Channel: c.room.String(),
		To:      session.StateClosed.String(),
		Text:    "closed by operator",
	})
	c.bridge.notice(ctx, c.room, "console session closed")
	return nil
}
