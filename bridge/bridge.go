// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/switchboard-dev/switchboard/console"
	"github.com/switchboard-dev/switchboard/correlate"
	"github.com/switchboard-dev/switchboard/lib/allowlist"
	"github.com/switchboard-dev/switchboard/lib/clock"
	"github.com/switchboard-dev/switchboard/lib/ref"
	"github.com/switchboard-dev/switchboard/lib/sessionlog"
	"github.com/switchboard-dev/switchboard/messaging"
	"github.com/switchboard-dev/switchboard/render"
	"github.com/switchboard-dev/switchboard/session"
)

// Surface is the part of a chat session the bridge drives. A messaging
// session implements it.
type Surface interface {
	SendMessage(ctx context.Context, room ref.RoomID, content messaging.MessageContent) (ref.EventID, error)
	EditMessage(ctx context.Context, room ref.RoomID, target ref.EventID, content messaging.MessageContent) (ref.EventID, error)
	UploadMedia(ctx context.Context, contentType, filename string, body io.Reader) (string, error)
}

// Options configure a Bridge. Exactly one of Starter and Consoles must
// be set: Starter selects the headless variant, Consoles the console
// variant.
type Options struct {
	Surface Surface

	// Self is the daemon's own Matrix user, so its echoes are dropped.
	Self ref.UserID

	// Senders lists the users whose messages the bridge acts on.
	Senders []ref.UserID

	Starter  AgentStarter
	Consoles *console.Host

	Registry *session.Registry

	// Allowlist auto-approves matching tool uses. Nil sends every
	// approval to the surface.
	Allowlist *allowlist.List

	// Transcript records prompts, decisions, and usage. Nil disables.
	Transcript *sessionlog.Writer

	Render render.Config
	Clock  clock.Clock
	Logger *slog.Logger
}

// Bridge routes chat traffic to agent sessions and agent output back
// to chat. One Bridge serves every configured room; per-room state
// lives in a controller goroutine started on the room's first event.
type Bridge struct {
	surface    Surface
	starter    AgentStarter
	consoles   *console.Host
	registry   *session.Registry
	correlator *correlate.Correlator
	allow      *allowlist.List
	transcript *sessionlog.Writer
	render     render.Config
	clock      clock.Clock
	logger     *slog.Logger

	self    ref.UserID
	senders map[ref.UserID]bool

	mu          sync.Mutex
	controllers map[ref.RoomID]*controller
	prompts     map[ref.EventID]*promptEntry
	promptPosts map[string]ref.EventID
}

// New creates a Bridge. The correlator is internal: the Bridge is its
// own prompt poster.
func New(options Options) (*Bridge, error) {
	if options.Surface == nil {
		return nil, errors.New("bridge: surface is required")
	}
	if options.Registry == nil {
		return nil, errors.New("bridge: session registry is required")
	}
	if (options.Starter == nil) == (options.Consoles == nil) {
		return nil, errors.New("bridge: exactly one of Starter and Consoles must be set")
	}
	if len(options.Senders) == 0 {
		return nil, errors.New("bridge: at least one allowed sender is required")
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	// Console output is captured terminal text; agent output is
	// markdown. The variant decides for every room.
	options.Render.Terminal = options.Consoles != nil

	senders := make(map[ref.UserID]bool, len(options.Senders))
	for _, sender := range options.Senders {
		senders[sender] = true
	}

	b := &Bridge{
		surface:     options.Surface,
		starter:     options.Starter,
		consoles:    options.Consoles,
		registry:    options.Registry,
		allow:       options.Allowlist,
		transcript:  options.Transcript,
		render:      options.Render,
		clock:       options.Clock,
		logger:      options.Logger,
		self:        options.Self,
		senders:     senders,
		controllers: make(map[ref.RoomID]*controller),
		prompts:     make(map[ref.EventID]*promptEntry),
		promptPosts: make(map[string]ref.EventID),
	}
	b.correlator = correlate.New(b, options.Logger)
	return b, nil
}

// HandleEvent feeds one synced event into the bridge. Reactions and
// thread replies resolve pending interactions on the caller's
// goroutine; messages are handed to the room's controller. ctx should
// span the daemon's lifetime, since per-room goroutines inherit it.
func (b *Bridge) HandleEvent(ctx context.Context, roomEvent messaging.RoomEvent) {
	if roomEvent.Invite {
		b.logger.Debug("ignoring invite", "room", roomEvent.Room, "sender", roomEvent.Event.Sender)
		return
	}
	event := roomEvent.Event
	if event.Sender == b.self || !b.senders[event.Sender] {
		return
	}

	if reaction, ok := messaging.ReactionOf(event); ok {
		b.handleReaction(roomEvent.Room, event.Sender, reaction)
		return
	}

	text, ok := messaging.TextOf(event)
	if !ok || contentMsgType(event) == messaging.MsgTypeNotice {
		return
	}
	if root, ok := messaging.ThreadRootOf(event); ok {
		if b.handleReply(roomEvent.Room, event.Sender, root, text) {
			return
		}
	}

	b.controller(ctx, roomEvent.Room).submit(ctx, messageWork{sender: event.Sender, text: text})
}

// Shutdown stops every session. Console panes are left running so
// their conversations survive a daemon restart.
func (b *Bridge) Shutdown() {
	if b.consoles != nil {
		b.consoles.Shutdown()
	}
	b.registry.Shutdown()
}

// controller returns the room's controller, starting it on first use.
func (b *Bridge) controller(ctx context.Context, room ref.RoomID) *controller {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.controllers[room]; ok {
		return c
	}
	c := newController(b, room)
	b.controllers[room] = c
	go c.run(ctx)
	return c
}

func (b *Bridge) handleReaction(room ref.RoomID, sender ref.UserID, reaction messaging.Reaction) {
	b.mu.Lock()
	entry, ok := b.prompts[reaction.Target]
	b.mu.Unlock()
	if !ok {
		b.logger.Debug("reaction on unknown target",
			"room", room, "sender", sender, "target", reaction.Target, "key", reaction.Key)
		return
	}

	decision, ok := decisionForReaction(entry, reaction.Key)
	if !ok {
		return
	}
	b.resolveDecision(room, sender, entry, decision)
}

// handleReply consumes a thread reply when the thread root is a prompt
// message. Replies answer questions by option and deny approvals with
// the reply as feedback. Returns false when the root is not a prompt,
// so the message falls through to normal routing.
func (b *Bridge) handleReply(room ref.RoomID, sender ref.UserID, root ref.EventID, text string) bool {
	b.mu.Lock()
	entry, ok := b.prompts[root]
	b.mu.Unlock()
	if !ok {
		return false
	}

	var decision correlate.Decision
	switch entry.kind {
	case correlate.KindApproval:
		decision = correlate.DenyWithFeedback(text)
	case correlate.KindQuestion:
		option, matched := optionForReply(text, entry.options)
		if !matched {
			b.logger.Debug("reply matches no option",
				"room", room, "sender", sender, "request_id", entry.requestID)
			return true
		}
		decision = correlate.Answer(option)
	}
	b.resolveDecision(room, sender, entry, decision)
	return true
}

func (b *Bridge) resolveDecision(room ref.RoomID, sender ref.UserID, entry *promptEntry, decision correlate.Decision) {
	if !b.correlator.Resolve(entry.requestID, decision) {
		b.logger.Debug("late decision dropped",
			"room", room, "sender", sender,
			"error", &CorrelationError{RequestID: entry.requestID})
		return
	}
	logEntry := sessionlog.Entry{
		Kind:     sessionlog.KindApproval,
		Channel:  room.String(),
		Sender:   sender.String(),
		Decision: decision.Verdict.String(),
		Text:     decision.Feedback,
	}
	if entry.kind == correlate.KindQuestion {
		logEntry.Kind = sessionlog.KindQuestion
		logEntry.Text = decision.Option
	}
	b.record(logEntry)
}

func decisionForReaction(entry *promptEntry, key string) (correlate.Decision, bool) {
	// Clients disagree about the emoji variation selector on thumbs.
	trimmed := strings.TrimSuffix(key, "️")
	switch entry.kind {
	case correlate.KindApproval:
		switch trimmed {
		case "👍":
			return correlate.Allow(), true
		case "👎":
			return correlate.Deny(), true
		}
	case correlate.KindQuestion:
		if trimmed == "👎" {
			return correlate.Deny(), true
		}
		if option, ok := optionForReaction(key, entry.options); ok {
			return correlate.Answer(option), true
		}
	}
	return correlate.Decision{}, false
}

// record writes a transcript entry when transcript logging is enabled.
func (b *Bridge) record(entry sessionlog.Entry) {
	if b.transcript == nil {
		return
	}
	if err := b.transcript.Write(entry); err != nil {
		b.logger.Warn("transcript write failed", "kind", entry.Kind, "error", err)
	}
}

func contentMsgType(event messaging.Event) string {
	msgType, _ := event.Content["msgtype"].(string)
	return msgType
}
