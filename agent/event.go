// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import "encoding/json"

// Event is one message from a query's stream. The concrete types are
// [InitEvent], [TextEvent], [ToolUseEvent], [ToolResultEvent],
// [ApprovalRequestEvent], [QuestionRequestEvent],
// [RequestCancelledEvent], [ResultEvent], and [ErrorEvent].
type Event interface {
	isEvent()
}

// InitEvent opens the stream. SessionID identifies the conversation on
// disk; pass it as ResumeID to continue the conversation in a later
// query.
type InitEvent struct {
	SessionID string
	Model     string
}

// TextEvent carries a chunk of assistant prose.
type TextEvent struct {
	Text string
}

// ToolUseEvent reports that the assistant invoked a tool. The ID links
// it to the eventual [ToolResultEvent].
type ToolUseEvent struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResultEvent carries a tool's output back through the stream.
type ToolResultEvent struct {
	ToolUseID string
	Content   string
}

// ApprovalRequestEvent asks permission to run a tool. The turn stays
// blocked until [Query.AllowTool] or [Query.DenyTool] answers it.
type ApprovalRequestEvent struct {
	RequestID string
	ToolName  string
	ToolUseID string
	Input     json.RawMessage
}

// QuestionRequestEvent asks the operator to answer one or more
// multiple-choice questions. Answer with [Query.AnswerQuestions] or
// refuse with [Query.DenyTool].
type QuestionRequestEvent struct {
	RequestID string
	ToolUseID string
	Questions []Question
}

// RequestCancelledEvent withdraws an earlier approval or question
// request; the agent stopped waiting for the answer, usually because
// the turn was interrupted.
type RequestCancelledEvent struct {
	RequestID string
}

// ResultEvent ends a turn. SessionID repeats the conversation
// identifier; Usage covers this turn only.
type ResultEvent struct {
	SessionID   string
	IsError     bool
	Interrupted bool
	Text        string
	CostUSD     float64
	Usage       Usage
}

// ErrorEvent reports an abnormal process exit. The stream closes right
// after it.
type ErrorEvent struct {
	Message string
}

func (InitEvent) isEvent()             {}
func (TextEvent) isEvent()             {}
func (ToolUseEvent) isEvent()          {}
func (ToolResultEvent) isEvent()       {}
func (ApprovalRequestEvent) isEvent()  {}
func (QuestionRequestEvent) isEvent()  {}
func (RequestCancelledEvent) isEvent() {}
func (ResultEvent) isEvent()           {}
func (ErrorEvent) isEvent()            {}

// Question is one multiple-choice question from the agent's question
// tool. Question doubles as the answer key: responses map this text to
// the chosen option label.
type Question struct {
	Question    string           `json:"question"`
	Header      string           `json:"header"`
	Options     []QuestionOption `json:"options"`
	MultiSelect bool             `json:"multiSelect"`
}

// QuestionOption is one selectable answer.
type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Usage counts the tokens a turn consumed.
type Usage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadTokens     int64 `json:"cache_read_input_tokens"`
}

// Add accumulates delta into u.
func (u *Usage) Add(delta Usage) {
	u.InputTokens += delta.InputTokens
	u.OutputTokens += delta.OutputTokens
	u.CacheCreationTokens += delta.CacheCreationTokens
	u.CacheReadTokens += delta.CacheReadTokens
}

// Total is the sum across all counters.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheCreationTokens + u.CacheReadTokens
}

// IsZero reports whether no tokens were counted.
func (u Usage) IsZero() bool {
	return u == Usage{}
}
