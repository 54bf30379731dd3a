// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"

	"github.com/switchboard-dev/switchboard/agent"
	"github.com/switchboard-dev/switchboard/correlate"
	"github.com/switchboard-dev/switchboard/lib/ref"
	"github.com/switchboard-dev/switchboard/lib/sessionlog"
	"github.com/switchboard-dev/switchboard/render"
	"github.com/switchboard-dev/switchboard/session"
)

// startQuery launches a turn for the room. An active query is
// superseded: its pendings are denied and BeginQuery cancels its
// process before the new one starts.
func (c *controller) startQuery(ctx context.Context, sender ref.UserID, prompt string) error {
	sess, _ := c.bridge.registry.GetOrCreate(c.room)
	if sess.Active() {
		c.bridge.correlator.CancelAll(c.room, correlate.DenyWithFeedback("superseded by a new prompt"))
		c.clearInteractions()
		c.logger.Info("superseding active query")
	}
	c.flushOutput(ctx)
	c.renderer.EndBlock()

	queryCtx, cancel := context.WithCancel(ctx)
	token := sess.BeginQuery(cancel)
	options := agent.StartOptions{
		Prompt:   prompt,
		WorkDir:  sess.WorkDir(),
		ResumeID: sess.ResumeID(),
		Mode:     sess.Mode(),
	}

	query, err := c.bridge.starter.Start(queryCtx, options)
	if err != nil {
		sess.EndQuery(token, session.StateErrored)
		c.bridge.record(sessionlog.Entry{
			Kind:    sessionlog.KindError,
			Channel: c.room.String(),
			Error:   err.Error(),
		})
		return fmt.Errorf("bridge: starting query: %w", err)
	}
	c.query = query
	c.token = token
	sess.Touch()

	c.bridge.record(sessionlog.Entry{
		Kind:      sessionlog.KindPrompt,
		Channel:   c.room.String(),
		SessionID: options.ResumeID,
		Sender:    sender.String(),
		Text:      prompt,
	})
	c.logger.Info("query started",
		"token", token, "mode", options.Mode, "resuming", options.ResumeID != "")

	go c.drive(queryCtx, token, query)
	return nil
}

// drive forwards the query's events to the controller. Runs as a
// goroutine per query; on cancellation it drains the stream so the
// producer can close it.
func (c *controller) drive(ctx context.Context, token uint64, query AgentQuery) {
	for event := range query.Events() {
		select {
		case c.work <- agentWork{token: token, event: event}:
		case <-ctx.Done():
			for range query.Events() {
			}
			return
		}
	}
	select {
	case c.work <- queryEndWork{token: token}:
	case <-ctx.Done():
	}
}

func (c *controller) handleAgent(ctx context.Context, item agentWork) {
	sess, _ := c.bridge.registry.Get(c.room)
	if sess == nil || !sess.QueryActive(item.token) {
		c.logger.Debug("event for stale query dropped", "token", item.token)
		return
	}

	switch event := item.event.(type) {
	case agent.InitEvent:
		sess.SetResumeID(event.SessionID)
		sess.Touch()
		c.logger.Debug("conversation open",
			"conversation", event.SessionID, "model", event.Model)
	case agent.TextEvent:
		c.append(ctx, event.Text)
		c.bridge.record(sessionlog.Entry{
			Kind:      sessionlog.KindOutput,
			Channel:   c.room.String(),
			SessionID: sess.ResumeID(),
			Text:      event.Text,
		})
	case agent.ToolUseEvent:
		summary := toolSummary(event.Name, event.Input)
		c.append(ctx, "\n\n🔧 "+summary+"\n\n")
		c.bridge.record(sessionlog.Entry{
			Kind:      sessionlog.KindOutput,
			Channel:   c.room.String(),
			SessionID: sess.ResumeID(),
			Tool:      event.Name,
			Text:      summary,
		})
	case agent.ToolResultEvent:
		// Tool output feeds the agent, not the room; the room sees
		// the assistant's next text.
	case agent.ApprovalRequestEvent:
		c.beginApproval(ctx, item.token, sess, event)
	case agent.QuestionRequestEvent:
		c.beginQuestions(ctx, item.token, event)
	case agent.RequestCancelledEvent:
		c.withdrawInteraction(event.RequestID)
	case agent.ResultEvent:
		c.finishQuery(ctx, sess, item.token, event)
	case agent.ErrorEvent:
		c.failQuery(ctx, sess, item.token, event)
	}
}

// append publishes output. Render failures are logged and swallowed;
// they never abort the owning query.
func (c *controller) append(ctx context.Context, text string) {
	if err := c.renderer.Append(ctx, text); err != nil {
		c.logger.Warn("output render failed", "error", err)
	}
}

// flushOutput publishes whatever the edit pacer is still holding.
// Always paired with EndBlock so a block's tail reaches the room.
func (c *controller) flushOutput(ctx context.Context) {
	if err := c.renderer.Flush(ctx); err != nil {
		c.logger.Warn("output flush failed", "error", err)
	}
}

func (c *controller) beginApproval(ctx context.Context, token uint64, sess *session.Session, event agent.ApprovalRequestEvent) {
	if c.bridge.allow != nil && c.bridge.allow.Allows(event.ToolName, decodeInput(event.Input)) {
		if err := c.query.AllowTool(event.RequestID); err != nil {
			c.logger.Warn("auto-approval delivery failed",
				"tool", event.ToolName, "error", err)
			return
		}
		c.logger.Info("tool auto-approved", "tool", event.ToolName)
		c.bridge.record(sessionlog.Entry{
			Kind:      sessionlog.KindApproval,
			Channel:   c.room.String(),
			SessionID: sess.ResumeID(),
			Tool:      event.ToolName,
			Decision:  "auto",
		})
		return
	}
	go c.runApproval(ctx, token, event, c.registerInteraction(event.RequestID))
}

func (c *controller) beginQuestions(ctx context.Context, token uint64, event agent.QuestionRequestEvent) {
	go c.runQuestions(ctx, token, event, c.registerInteraction(event.RequestID))
}

func (c *controller) registerInteraction(requestID string) <-chan struct{} {
	if old, ok := c.interactions[requestID]; ok {
		close(old.cancel)
	}
	entry := &interaction{cancel: make(chan struct{})}
	c.interactions[requestID] = entry
	return entry.cancel
}

// withdrawInteraction handles the agent taking back a request it no
// longer wants answered.
func (c *controller) withdrawInteraction(requestID string) {
	entry, ok := c.interactions[requestID]
	if !ok {
		c.logger.Debug("cancellation for unknown request", "request_id", requestID)
		return
	}
	delete(c.interactions, requestID)
	close(entry.cancel)
	c.logger.Debug("request withdrawn", "request_id", requestID)
}

// runApproval owns one approval's surface round-trip. Runs as a
// goroutine so the controller stays responsive; several approvals can
// be pending at once when the agent calls tools in parallel.
func (c *controller) runApproval(ctx context.Context, token uint64, event agent.ApprovalRequestEvent, cancelled <-chan struct{}) {
	request := correlate.Prompt{
		Kind: correlate.KindApproval,
		Text: approvalBody(event.ToolName, event.Input),
	}
	correlateID, decisions := c.bridge.correlator.Request(ctx, c.room, request)

	decision, ok := awaitDecision(ctx, decisions, cancelled)
	if !ok {
		c.abandon(ctx, correlateID, sessionlog.KindApproval, event.ToolName)
		return
	}
	c.bridge.finishPrompt(ctx, correlateID, approvalOutcome(decision))
	c.submit(ctx, interactionWork{
		token:     token,
		requestID: event.RequestID,
		kind:      correlate.KindApproval,
		allow:     decision.Verdict == correlate.VerdictAllow,
		feedback:  decision.Feedback,
	})
}

// runQuestions asks each sub-question in order, one prompt at a time.
// A denied sub-question denies the whole request; otherwise the
// answers aggregate into a single response keyed by question text.
func (c *controller) runQuestions(ctx context.Context, token uint64, event agent.QuestionRequestEvent, cancelled <-chan struct{}) {
	answers := make(map[string]string, len(event.Questions))
	for _, question := range event.Questions {
		request := correlate.Prompt{
			Kind:    correlate.KindQuestion,
			Text:    questionBody(question),
			Options: optionLabels(question),
		}
		correlateID, decisions := c.bridge.correlator.Request(ctx, c.room, request)

		decision, ok := awaitDecision(ctx, decisions, cancelled)
		if !ok {
			c.abandon(ctx, correlateID, sessionlog.KindQuestion, "")
			return
		}
		if decision.Verdict != correlate.VerdictAllow {
			c.bridge.finishPrompt(ctx, correlateID, denyOutcome(decision))
			c.submit(ctx, interactionWork{
				token:     token,
				requestID: event.RequestID,
				kind:      correlate.KindQuestion,
				feedback:  decision.Feedback,
			})
			return
		}
		c.bridge.finishPrompt(ctx, correlateID, "✅ "+decision.Option)
		answers[question.Question] = decision.Option
	}
	c.submit(ctx, interactionWork{
		token:     token,
		requestID: event.RequestID,
		kind:      correlate.KindQuestion,
		allow:     true,
		answers:   answers,
	})
}

// awaitDecision waits for the surface to answer. A decision that raced
// the withdrawal wins; otherwise false means the request is gone and
// nobody answered.
func awaitDecision(ctx context.Context, decisions <-chan correlate.Decision, cancelled <-chan struct{}) (correlate.Decision, bool) {
	select {
	case decision := <-decisions:
		return decision, true
	case <-cancelled:
	case <-ctx.Done():
	}
	select {
	case decision := <-decisions:
		return decision, true
	default:
		return correlate.Decision{}, false
	}
}

// abandon retires an interaction nobody will answer: the pending entry
// is cleared and the prompt marked withdrawn.
func (c *controller) abandon(ctx context.Context, correlateID string, kind sessionlog.Kind, tool string) {
	c.bridge.correlator.Resolve(correlateID, correlate.Deny())
	c.bridge.finishPrompt(ctx, correlateID, withdrawnOutcome)
	c.bridge.record(sessionlog.Entry{
		Kind:     kind,
		Channel:  c.room.String(),
		Tool:     tool,
		Decision: "cancel",
	})
}

// handleInteraction forwards a finished interaction to the agent.
func (c *controller) handleInteraction(item interactionWork) {
	if _, ok := c.interactions[item.requestID]; !ok {
		c.logger.Debug("decision for withdrawn request dropped", "request_id", item.requestID)
		return
	}
	delete(c.interactions, item.requestID)

	sess, _ := c.bridge.registry.Get(c.room)
	if sess == nil || !sess.QueryActive(item.token) || c.query == nil {
		c.logger.Debug("decision for stale query dropped", "request_id", item.requestID)
		return
	}

	var err error
	switch {
	case item.allow && item.kind == correlate.KindQuestion:
		err = c.query.AnswerQuestions(item.requestID, item.answers)
	case item.allow:
		err = c.query.AllowTool(item.requestID)
	default:
		err = c.query.DenyTool(item.requestID, item.feedback)
	}
	if err != nil {
		c.logger.Warn("decision delivery failed", "request_id", item.requestID, "error", err)
	}
}

func (c *controller) finishQuery(ctx context.Context, sess *session.Session, token uint64, event agent.ResultEvent) {
	outcome := session.StateCompleted
	switch {
	case event.Interrupted:
		outcome = session.StateAborted
	case event.IsError:
		outcome = session.StateErrored
	}
	if event.SessionID != "" {
		sess.SetResumeID(event.SessionID)
	}
	sess.AddUsage(event.Usage)
	sess.EndQuery(token, outcome)
	c.flushOutput(ctx)
	c.renderer.EndBlock()
	c.query = nil
	c.token = 0
	c.clearInteractions()

	if event.IsError {
		message := event.Text
		if message == "" {
			message = "the agent reported an error"
		}
		c.bridge.notice(ctx, c.room, "agent error: "+render.Truncate(message, errorNoticeLimit))
		c.bridge.record(sessionlog.Entry{
			Kind:      sessionlog.KindError,
			Channel:   c.room.String(),
			SessionID: event.SessionID,
			Error:     message,
		})
	}
	c.bridge.record(sessionlog.Entry{
		Kind:      sessionlog.KindUsage,
		Channel:   c.room.String(),
		SessionID: event.SessionID,
		Usage: &sessionlog.Usage{
			InputTokens:  event.Usage.InputTokens,
			OutputTokens: event.Usage.OutputTokens,
			CostUSD:      event.CostUSD,
			Turns:        1,
		},
	})
	c.bridge.record(sessionlog.Entry{
		Kind:    sessionlog.KindTransition,
		Channel: c.room.String(),
		From:    session.StateActive.String(),
		To:      outcome.String(),
	})
	c.logger.Info("query finished",
		"outcome", outcome,
		"input_tokens", event.Usage.InputTokens,
		"output_tokens", event.Usage.OutputTokens,
		"cost_usd", event.CostUSD)
}

// failQuery ends the query on an abnormal process exit: cleanup, one
// notice, never a retry.
func (c *controller) failQuery(ctx context.Context, sess *session.Session, token uint64, event agent.ErrorEvent) {
	sess.EndQuery(token, session.StateErrored)
	c.flushOutput(ctx)
	c.renderer.EndBlock()
	c.query = nil
	c.token = 0
	c.clearInteractions()

	message := event.Message
	if message == "" {
		message = "the agent process exited unexpectedly"
	}
	c.bridge.notice(ctx, c.room, "agent error: "+render.Truncate(message, errorNoticeLimit))
	c.bridge.record(sessionlog.Entry{
		Kind:      sessionlog.KindError,
		Channel:   c.room.String(),
		SessionID: sess.ResumeID(),
		Error:     message,
	})
	c.bridge.record(sessionlog.Entry{
		Kind:    sessionlog.KindTransition,
		Channel: c.room.String(),
		From:    session.StateActive.String(),
		To:      session.StateErrored.String(),
	})
	c.logger.Warn("query failed", "error", message)
}

// handleQueryEnd covers the stream closing without a result line.
func (c *controller) handleQueryEnd(ctx context.Context, item queryEndWork) {
	if c.token == item.token {
		c.query = nil
		c.token = 0
	}
	sess, _ := c.bridge.registry.Get(c.room)
	if sess == nil || !sess.EndQuery(item.token, session.StateErrored) {
		return
	}
	c.flushOutput(ctx)
	c.renderer.EndBlock()
	c.clearInteractions()
	c.bridge.notice(ctx, c.room, "agent error: the agent exited without a result")
	c.bridge.record(sessionlog.Entry{
		Kind:    sessionlog.KindError,
		Channel: c.room.String(),
		Error:   "agent exited without a result",
	})
	c.logger.Warn("agent stream closed without a result", "token", item.token)
}

// errorNoticeLimit bounds the error text quoted in a notice.
const errorNoticeLimit = 600

const withdrawnOutcome = "⚠️ Withdrawn"

func approvalOutcome(decision correlate.Decision) string {
	if decision.Verdict == correlate.VerdictAllow {
		return "✅ Allowed"
	}
	return denyOutcome(decision)
}

func denyOutcome(decision correlate.Decision) string {
	if decision.Feedback != "" {
		return "❌ Denied: " + decision.Feedback
	}
	return "❌ Denied"
}

func optionLabels(question agent.Question) []string {
	labels := make([]string, len(question.Options))
	for i, option := range question.Options {
		labels[i] = option.Label
	}
	return labels
}
