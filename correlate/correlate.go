// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package correlate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/switchboard-dev/switchboard/lib/ref"
)

// Prompt is the outbound half of an interaction: what the channel is
// asked, and for questions, the options it may answer with.
type Prompt struct {
	Kind Kind

	// Text is the rendered request body, markdown.
	Text string

	// Options enumerates the valid answers for a question prompt.
	// Empty for approvals, which are always answered allow or deny.
	Options []string
}

// Poster delivers prompts to a channel's surface. The bridge posts
// Matrix messages; the console transport writes to its own pane.
type Poster interface {
	PostPrompt(ctx context.Context, room ref.RoomID, requestID string, prompt Prompt) error
}

type pending struct {
	room     ref.RoomID
	kind     Kind
	decision chan Decision
}

// Correlator matches asynchronous channel decisions to the agent
// requests blocked waiting on them. Requests are keyed by an opaque id
// carried through the surface round-trip; whoever parses the answering
// message calls [Correlator.Resolve] with that id.
type Correlator struct {
	poster Poster
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*pending
}

// New creates an empty Correlator delivering prompts through poster.
func New(poster Poster, logger *slog.Logger) *Correlator {
	return &Correlator{
		poster:  poster,
		logger:  logger,
		pending: make(map[string]*pending),
	}
}

// Request records a pending interaction for room and delivers its
// prompt. The returned channel yields exactly one Decision, whenever
// someone answers. There is no internal deadline: an unanswered
// request stays pending until [Correlator.Resolve] or
// [Correlator.CancelAll], so callers select on their own context
// alongside the channel.
//
// If the prompt cannot be delivered at all, nobody will ever answer
// it, so the request resolves immediately instead of suspending the
// query forever: questions take their first option, approvals deny.
func (c *Correlator) Request(ctx context.Context, room ref.RoomID, prompt Prompt) (string, <-chan Decision) {
	requestID := uuid.NewString()
	entry := &pending{
		room:     room,
		kind:     prompt.Kind,
		decision: make(chan Decision, 1),
	}

	c.mu.Lock()
	c.pending[requestID] = entry
	c.mu.Unlock()

	c.logger.Debug("interaction pending",
		"room", room, "request_id", requestID, "kind", prompt.Kind)

	if err := c.poster.PostPrompt(ctx, room, requestID, prompt); err != nil {
		c.logger.Warn("interaction prompt undeliverable, resolving with fallback",
			"room", room, "request_id", requestID, "kind", prompt.Kind, "error", err)
		c.Resolve(requestID, fallback(prompt))
	}
	return requestID, entry.decision
}

// Resolve completes a pending interaction and reports whether it was
// still outstanding. An unknown, expired, or already resolved id
// returns false with no other effect: late answers from the surface
// are expected, not errors.
func (c *Correlator) Resolve(requestID string, decision Decision) bool {
	c.mu.Lock()
	entry, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	// The buffered channel and the delete above make this the only
	// send that can ever happen for this entry.
	entry.decision <- decision
	c.logger.Debug("interaction resolved",
		"room", entry.room, "request_id", requestID, "verdict", decision.Verdict)
	return true
}

// CancelAll resolves every pending interaction for room with decision
// and reports how many were outstanding. Interactions of other rooms
// are untouched. Called on abort and close so a blocked query unwinds
// with a denial instead of leaking.
func (c *Correlator) CancelAll(room ref.RoomID, decision Decision) int {
	c.mu.Lock()
	var cancelled []*pending
	for id, entry := range c.pending {
		if entry.room == room {
			delete(c.pending, id)
			cancelled = append(cancelled, entry)
		}
	}
	c.mu.Unlock()

	for _, entry := range cancelled {
		entry.decision <- decision
	}
	if len(cancelled) > 0 {
		c.logger.Info("pending interactions cancelled",
			"room", room, "count", len(cancelled))
	}
	return len(cancelled)
}

// PendingCount reports the number of outstanding interactions for room.
func (c *Correlator) PendingCount(room ref.RoomID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, entry := range c.pending {
		if entry.room == room {
			count++
		}
	}
	return count
}

// fallback is the decision taken when a prompt never reached the
// channel. Questions pick the first enumerated option so the agent can
// proceed with a plausible default; approvals deny.
func fallback(prompt Prompt) Decision {
	if prompt.Kind == KindQuestion && len(prompt.Options) > 0 {
		return Answer(prompt.Options[0])
	}
	return Deny()
}
