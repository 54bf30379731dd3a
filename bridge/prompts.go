// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"

	"github.com/switchboard-dev/switchboard/correlate"
	"github.com/switchboard-dev/switchboard/lib/ref"
	"github.com/switchboard-dev/switchboard/messaging"
	"github.com/switchboard-dev/switchboard/render"
)

// promptEntry ties a posted prompt message to its pending interaction,
// so reactions and replies on that message can be turned back into
// decisions.
type promptEntry struct {
	requestID string
	room      ref.RoomID
	kind      correlate.Kind
	options   []string

	// body is the prompt markdown without the answer instructions,
	// kept for the outcome edit.
	body string
}

const (
	approvalInstructions = "React 👍 to allow or 👎 to deny, or reply in this thread to deny with feedback."
	questionInstructions = "React with an option number (👎 refuses), or reply in this thread with an option."
)

// PostPrompt publishes a pending interaction to its room. Implements
// [correlate.Poster]; a delivery failure makes the correlator resolve
// the interaction with its fallback, so the error here is terminal for
// the prompt.
func (b *Bridge) PostPrompt(ctx context.Context, room ref.RoomID, requestID string, prompt correlate.Prompt) error {
	instructions := approvalInstructions
	if prompt.Kind == correlate.KindQuestion {
		instructions = questionInstructions
	}
	content := markdownMessage(prompt.Text + "\n\n" + instructions)

	eventID, err := b.sendWithRetry(ctx, room, content)
	if err != nil {
		return &TransportError{Op: "send", Err: err}
	}

	b.mu.Lock()
	b.prompts[eventID] = &promptEntry{
		requestID: requestID,
		room:      room,
		kind:      prompt.Kind,
		options:   prompt.Options,
		body:      prompt.Text,
	}
	b.promptPosts[requestID] = eventID
	b.mu.Unlock()
	return nil
}

// finishPrompt retires a prompt message: the entry stops accepting
// reactions and the message is edited to show the outcome. Prompts
// that never reached the surface are skipped.
func (b *Bridge) finishPrompt(ctx context.Context, requestID, outcome string) {
	b.mu.Lock()
	eventID, ok := b.promptPosts[requestID]
	var entry *promptEntry
	if ok {
		entry = b.prompts[eventID]
		delete(b.promptPosts, requestID)
		delete(b.prompts, eventID)
	}
	b.mu.Unlock()
	if entry == nil {
		return
	}

	content := messaging.NewEdit(eventID, markdownMessage(entry.body+"\n\n"+outcome))
	if _, err := b.surface.EditMessage(ctx, entry.room, eventID, content); err != nil {
		b.logger.Warn("prompt outcome edit failed",
			"room", entry.room, "request_id", requestID, "error", err)
	}
}

// notice posts an m.notice to the room so other bots, including this
// daemon, never mistake it for operator input.
func (b *Bridge) notice(ctx context.Context, room ref.RoomID, text string) {
	if _, err := b.sendWithRetry(ctx, room, messaging.NewNotice(text)); err != nil {
		b.logger.Warn("notice send failed", "room", room, "error", err)
	}
}

// sendWithRetry sends a message, retrying once on transient transport
// failures.
func (b *Bridge) sendWithRetry(ctx context.Context, room ref.RoomID, content messaging.MessageContent) (ref.EventID, error) {
	eventID, err := b.surface.SendMessage(ctx, room, content)
	if err == nil || ctx.Err() != nil || messaging.IsAuthFailure(err) {
		return eventID, err
	}
	b.logger.Warn("send failed, retrying once", "room", room, "error", err)
	return b.surface.SendMessage(ctx, room, content)
}

func markdownMessage(body string) messaging.MessageContent {
	htmlBody, err := render.ToHTML(body)
	if err != nil {
		return messaging.NewTextMessage(body)
	}
	return messaging.NewHTMLMessage(body, htmlBody)
}
