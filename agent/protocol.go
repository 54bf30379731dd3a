// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"encoding/json"
	"sync"
)

// Wire structures for the CLI's stream-json stdio protocol. Outbound
// messages are one JSON object per line on stdin; inbound events are
// one per line on stdout. Field casing follows the protocol: envelope
// fields are snake_case, but the permission verdict nested inside a
// control response uses camelCase.

type userMessage struct {
	Type    string          `json:"type"`
	Message userMessageBody `json:"message"`
}

type userMessageBody struct {
	Role    string      `json:"role"`
	Content []textBlock `json:"content"`
}

type textBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// streamLine is the envelope of every inbound stdout line. Message is
// deferred because its shape depends on Type.
type streamLine struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Model     string          `json:"model,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

type messageBody struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

type resultLine struct {
	Subtype   string   `json:"subtype"`
	SessionID string   `json:"session_id"`
	IsError   bool     `json:"is_error"`
	Result    string   `json:"result"`
	TotalCost float64  `json:"total_cost_usd"`
	Usage     Usage    `json:"usage"`
	Errors    []string `json:"errors"`
}

type controlRequest struct {
	Type      string              `json:"type"`
	RequestID string              `json:"request_id"`
	Request   *controlRequestBody `json:"request"`
}

type controlRequestBody struct {
	Subtype   string          `json:"subtype"`
	ToolName  string          `json:"tool_name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
}

type controlResponse struct {
	Type     string              `json:"type"`
	Response controlResponseBody `json:"response"`
}

type controlResponseBody struct {
	Subtype   string             `json:"subtype"`
	RequestID string             `json:"request_id"`
	Response  *permissionVerdict `json:"response,omitempty"`
}

type permissionVerdict struct {
	Behavior     string          `json:"behavior,omitempty"`
	Message      string          `json:"message,omitempty"`
	ToolUseID    string          `json:"toolUseID,omitempty"`
	UpdatedInput json.RawMessage `json:"updatedInput,omitempty"`
}

// pendingControls tracks inbound control requests that have not been
// answered yet, so the answer can echo the original tool_use_id and
// input. Each request is taken exactly once.
type pendingControls struct {
	mu   sync.Mutex
	byID map[string]*controlRequest
}

func newPendingControls() *pendingControls {
	return &pendingControls{byID: make(map[string]*controlRequest)}
}

func (p *pendingControls) put(request *controlRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID[request.RequestID] = request
}

func (p *pendingControls) take(requestID string) (*controlRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	request, ok := p.byID[requestID]
	if ok {
		delete(p.byID, requestID)
	}
	return request, ok
}
