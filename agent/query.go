// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Query is one in-flight turn with the agent CLI. Events arrive on
// [Query.Events]; the channel closes when the process exits. A query
// that emitted an [ApprovalRequestEvent] or [QuestionRequestEvent]
// stays blocked until the matching respond method answers it.
type Query struct {
	events  chan Event
	stdin   io.WriteCloser
	stdinMu sync.Mutex
	pending *pendingControls
	cancel  func()
	logger  *slog.Logger
}

// Events returns the query's event stream. Closed on process exit.
func (q *Query) Events() <-chan Event {
	return q.events
}

// AllowTool answers an approval request: the tool runs with its
// original input.
func (q *Query) AllowTool(requestID string) error {
	request, ok := q.pending.take(requestID)
	if !ok {
		return fmt.Errorf("agent: no pending control request %s", requestID)
	}
	return q.sendControlResponse(request, &permissionVerdict{
		Behavior:     "allow",
		ToolUseID:    request.Request.ToolUseID,
		UpdatedInput: request.Request.Input,
	})
}

// DenyTool answers an approval or question request with a refusal.
// message tells the agent why; the turn continues, leaving the agent
// to adjust. Stopping the turn outright is [Query.Interrupt].
func (q *Query) DenyTool(requestID, message string) error {
	request, ok := q.pending.take(requestID)
	if !ok {
		return fmt.Errorf("agent: no pending control request %s", requestID)
	}
	if message == "" {
		message = "denied"
	}
	return q.sendControlResponse(request, &permissionVerdict{
		Behavior:  "deny",
		Message:   message,
		ToolUseID: request.Request.ToolUseID,
	})
}

// AnswerQuestions answers a question request. answers maps each
// question's text to the chosen option label; the agent receives them
// as the question tool's updated input.
func (q *Query) AnswerQuestions(requestID string, answers map[string]string) error {
	request, ok := q.pending.take(requestID)
	if !ok {
		return fmt.Errorf("agent: no pending control request %s", requestID)
	}
	updatedInput, err := json.Marshal(map[string]any{"answers": answers})
	if err != nil {
		return fmt.Errorf("agent: encoding answers: %w", err)
	}
	return q.sendControlResponse(request, &permissionVerdict{
		Behavior:     "allow",
		ToolUseID:    request.Request.ToolUseID,
		UpdatedInput: updatedInput,
	})
}

// Interrupt asks the CLI to stop the current turn. The conversation
// survives; a later query resumes it. The turn acknowledges with a
// ResultEvent marked Interrupted.
func (q *Query) Interrupt() error {
	requestID, err := newControlID()
	if err != nil {
		return fmt.Errorf("agent: generating interrupt id: %w", err)
	}
	request := controlRequest{
		Type:      "control_request",
		RequestID: requestID,
		Request:   &controlRequestBody{Subtype: "interrupt"},
	}
	data, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("agent: encoding interrupt: %w", err)
	}
	q.logger.Debug("interrupting agent turn", "request_id", requestID)
	return q.writeLine(data)
}

// Close terminates the query's process. Safe to call more than once
// and while events are still being drained; the events channel closes
// once the process is gone.
func (q *Query) Close() {
	q.cancel()
}

func (q *Query) sendPrompt(prompt string) error {
	message := userMessage{
		Type: "user",
		Message: userMessageBody{
			Role:    "user",
			Content: []textBlock{{Type: "text", Text: prompt}},
		},
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("agent: encoding prompt: %w", err)
	}
	return q.writeLine(data)
}

func (q *Query) sendControlResponse(request *controlRequest, verdict *permissionVerdict) error {
	response := controlResponse{
		Type: "control_response",
		Response: controlResponseBody{
			Subtype:   "success",
			RequestID: request.RequestID,
			Response:  verdict,
		},
	}
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("agent: encoding control response: %w", err)
	}
	return q.writeLine(data)
}

func (q *Query) writeLine(data []byte) error {
	q.stdinMu.Lock()
	defer q.stdinMu.Unlock()
	if _, err := q.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("agent: writing to CLI stdin: %w", err)
	}
	return nil
}

// newControlID creates a random 16-byte hex string for outbound
// control requests.
func newControlID() (string, error) {
	var buffer [16]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer[:]), nil
}
