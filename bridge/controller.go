// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/switchboard-dev/switchboard/agent"
	"github.com/switchboard-dev/switchboard/console"
	"github.com/switchboard-dev/switchboard/correlate"
	"github.com/switchboard-dev/switchboard/lib/ref"
	"github.com/switchboard-dev/switchboard/lib/sessionlog"
	"github.com/switchboard-dev/switchboard/render"
	"github.com/switchboard-dev/switchboard/session"
)

// workQueueSize bounds a controller's inbox. The driver blocks when it
// fills, which backpressures the agent's stdout pipe.
const workQueueSize = 256

// workItem is one unit handed to a controller. The concrete types are
// [messageWork], [agentWork], [queryEndWork], [interactionWork], and
// [consoleWork].
type workItem interface {
	isWork()
}

// messageWork is an inbound operator message.
type messageWork struct {
	sender ref.UserID
	text   string
}

// agentWork is one event from the active query's stream, tagged with
// the query token it belongs to.
type agentWork struct {
	token uint64
	event agent.Event
}

// queryEndWork reports that a query's event stream closed.
type queryEndWork struct {
	token uint64
}

// interactionWork carries a finished surface interaction back to the
// controller, which forwards it to the agent.
type interactionWork struct {
	token     uint64
	requestID string
	kind      correlate.Kind
	allow     bool
	feedback  string
	answers   map[string]string
}

// consoleWork is one event from the room's console watch.
type consoleWork struct {
	event console.Event
}

func (messageWork) isWork()     {}
func (agentWork) isWork()       {}
func (queryEndWork) isWork()    {}
func (interactionWork) isWork() {}
func (consoleWork) isWork()     {}

// interaction is the controller's record of an outstanding approval or
// question. Closing cancel tells its runner the agent withdrew the
// request.
type interaction struct {
	cancel chan struct{}
}

// controller owns one room: every session mutation, render, and agent
// write for that room happens on its run goroutine, so the room's
// ordering is the queue order. Only submit is called from outside.
type controller struct {
	bridge   *Bridge
	room     ref.RoomID
	logger   *slog.Logger
	renderer *render.Renderer
	work     chan workItem

	// Owned by the run goroutine.
	query        AgentQuery
	token        uint64
	interactions map[string]*interaction
	watching     bool
}

func newController(b *Bridge, room ref.RoomID) *controller {
	logger := b.logger.With("room", room)
	return &controller{
		bridge:       b,
		room:         room,
		logger:       logger,
		renderer:     render.New(b.surface, room, b.render, b.clock, logger),
		work:         make(chan workItem, workQueueSize),
		interactions: make(map[string]*interaction),
	}
}

func (c *controller) submit(ctx context.Context, item workItem) {
	select {
	case c.work <- item:
	case <-ctx.Done():
	}
}

func (c *controller) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-c.work:
			c.handle(ctx, item)
		}
	}
}

func (c *controller) handle(ctx context.Context, item workItem) {
	switch item := item.(type) {
	case messageWork:
		c.handleMessage(ctx, item)
	case agentWork:
		c.handleAgent(ctx, item)
	case queryEndWork:
		c.handleQueryEnd(ctx, item)
	case interactionWork:
		c.handleInteraction(item)
	case consoleWork:
		c.handleConsole(ctx, item)
	}
}

func (c *controller) handleMessage(ctx context.Context, msg messageWork) {
	command := parseCommand(msg.text)
	var err error
	switch command.kind {
	case commandPrompt:
		err = c.prompt(ctx, msg.sender, msg.text)
	case commandCd:
		err = c.setWorkDir(ctx, command.arg)
	case commandMode:
		err = c.setMode(ctx, command.arg)
	case commandAbort:
		err = c.abort(ctx)
	case commandClose:
		err = c.closeSession(ctx)
	case commandResume:
		err = c.resume(ctx, command.arg)
	case commandStatus:
		err = c.status(ctx)
	case commandHelp:
		c.bridge.notice(ctx, c.room, helpText)
	}
	if err != nil {
		c.reportError(ctx, err)
	}
}

// reportError surfaces a command failure. Validation messages go out
// verbatim; a dead session is cleaned up and announced once; everything
// else is logged and shown with an error prefix.
func (c *controller) reportError(ctx context.Context, err error) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		c.bridge.notice(ctx, c.room, validationErr.Message)
		return
	}
	var deadErr *SessionDeadError
	if errors.As(err, &deadErr) {
		c.watching = false
		if c.bridge.consoles != nil {
			c.bridge.consoles.StopWatch(c.room)
		}
		c.bridge.registry.Remove(c.room)
		c.logger.Warn("session dead", "error", deadErr.Err)
		c.bridge.record(sessionlog.Entry{
			Kind:    sessionlog.KindTransition,
			Channel: c.room.String(),
			To:      session.StateClosed.String(),
			Text:    "session vanished",
		})
		c.bridge.notice(ctx, c.room, "the session is gone; send another message to start a new one")
		return
	}
	c.logger.Error("command failed", "error", err)
	c.bridge.notice(ctx, c.room, "error: "+err.Error())
}

func (c *controller) prompt(ctx context.Context, sender ref.UserID, text string) error {
	if c.bridge.consoles != nil {
		return c.consoleSend(ctx, sender, text)
	}
	return c.startQuery(ctx, sender, text)
}

func (c *controller) setWorkDir(ctx context.Context, dir string) error {
	if dir == "" {
		return validationf("usage: cd <absolute-dir>")
	}
	if !filepath.IsAbs(dir) {
		return validationf("working directory must be an absolute path")
	}
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return validationf("directory %s does not exist", dir)
	case err != nil:
		return validationf("cannot use directory %s: %v", dir, err)
	case !info.IsDir():
		return validationf("%s is not a directory", dir)
	}

	sess, _ := c.bridge.registry.GetOrCreate(c.room)
	sess.SetWorkDir(dir)
	sess.Touch()
	c.bridge.notice(ctx, c.room, "working directory set to "+dir)
	return nil
}

func (c *controller) setMode(ctx context.Context, arg string) error {
	if c.bridge.consoles != nil {
		return validationf("permission mode is managed inside the console session")
	}
	if arg == "" {
		return validationf("usage: mode <default|accept-edits|bypass>")
	}
	mode, err := agent.ParsePermissionMode(arg)
	if err != nil {
		return validationf("unknown permission mode %q; valid modes: default, accept-edits, bypass", arg)
	}

	sess, _ := c.bridge.registry.GetOrCreate(c.room)
	sess.SetMode(mode)
	sess.Touch()
	c.bridge.notice(ctx, c.room, fmt.Sprintf("permission mode set to %s; applies from the next query", mode))
	return nil
}

func (c *controller) abort(ctx context.Context) error {
	if c.bridge.consoles != nil {
		return c.consoleInterrupt(ctx)
	}
	sess, _ := c.bridge.registry.Get(c.room)
	if sess == nil || !sess.Active() {
		return validationf("no query is running")
	}

	// Invalidate the token first so anything still in flight from the
	// old query is dropped, then release whoever is waiting on a
	// decision, then ask the process to stop.
	sess.Interrupt()
	cancelled := c.bridge.correlator.CancelAll(c.room, correlate.DenyWithFeedback("aborted by operator"))
	if c.query != nil {
		if err := c.query.Interrupt(); err != nil {
			c.logger.Debug("interrupt request failed", "error", err)
		}
	}
	c.clearInteractions()
	c.flushOutput(ctx)
	c.renderer.EndBlock()

	c.logger.Info("query aborted", "pending_cancelled", cancelled)
	c.bridge.record(sessionlog.Entry{
		Kind:    sessionlog.KindTransition,
		Channel: c.room.String(),
		From:    session.StateActive.String(),
		To:      session.StateAborted.String(),
		Text:    "aborted by operator",
	})
	c.bridge.notice(ctx, c.room, "query aborted; send a message to continue the conversation")
	return nil
}

func (c *controller) closeSession(ctx context.Context) error {
	if c.bridge.consoles != nil {
		return c.consoleClose(ctx)
	}
	sess, _ := c.bridge.registry.Get(c.room)
	if sess == nil {
		return validationf("no session to close")
	}

	from := sess.State()
	if sess.Active() {
		sess.Interrupt()
		c.bridge.correlator.CancelAll(c.room, correlate.DenyWithFeedback("session closed"))
		if c.query != nil {
			if err := c.query.Interrupt(); err != nil {
				c.logger.Debug("interrupt request failed", "error", err)
			}
		}
		c.clearInteractions()
		c.flushOutput(ctx)
		c.renderer.EndBlock()
	}
	sess.Close()
	c.bridge.registry.Remove(c.room)

	c.logger.Info("session closed")
	c.bridge.record(sessionlog.Entry{
		Kind:    sessionlog.KindTransition,
		Channel: c.room.String(),
		From:    from.String(),
		To:      session.StateClosed.String(),
	})
	c.bridge.notice(ctx, c.room, "session closed; the conversation is discarded")
	return nil
}

func (c *controller) resume(ctx context.Context, id string) error {
	if c.bridge.consoles != nil {
		return validationf("console sessions keep their own history; just send a message")
	}
	if id == "" {
		return validationf("usage: resume <conversation-id>")
	}
	sess, _ := c.bridge.registry.GetOrCreate(c.room)
	if sess.Active() {
		return validationf("a query is running; abort it before switching conversations")
	}
	sess.SetResumeID(id)
	sess.Touch()
	c.bridge.notice(ctx, c.room, "will resume conversation "+id+" on the next message")
	return nil
}

func (c *controller) status(ctx context.Context) error {
	sess, _ := c.bridge.registry.Get(c.room)
	if sess == nil {
		c.bridge.notice(ctx, c.room, "no session; send a message to start one")
		return nil
	}
	st := sess.Status()

	var b strings.Builder
	fmt.Fprintf(&b, "state: %s\n", st.State)
	fmt.Fprintf(&b, "workdir: %s\n", st.WorkDir)
	if c.bridge.consoles == nil {
		fmt.Fprintf(&b, "mode: %s\n", st.Mode)
	} else if c.bridge.consoles.Alive(c.room) {
		b.WriteString("console: running\n")
	} else {
		b.WriteString("console: stopped\n")
	}
	if st.Resumable {
		fmt.Fprintf(&b, "conversation: resumable (%s)\n", sess.ResumeID())
	} else {
		b.WriteString("conversation: none\n")
	}
	fmt.Fprintf(&b, "usage: %d input / %d output tokens (%d total)\n",
		st.Usage.InputTokens, st.Usage.OutputTokens, st.Usage.Total())
	fmt.Fprintf(&b, "last activity: %s", st.LastActivity.UTC().Format(time.RFC3339))

	c.bridge.notice(ctx, c.room, b.String())
	return nil
}

// clearInteractions tells every interaction runner its request is gone.
func (c *controller) clearInteractions() {
	for requestID, entry := range c.interactions {
		close(entry.cancel)
		delete(c.interactions, requestID)
	}
}
