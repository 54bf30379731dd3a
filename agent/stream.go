// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// parseLine turns one stdout line into zero or more events. Lines the
// bridge has no use for (echoed control responses, non-init system
// chatter) parse to nothing; malformed lines are logged and dropped
// rather than surfaced, so CLI noise never reaches a chat room.
func parseLine(line []byte, pending *pendingControls, logger *slog.Logger) []Event {
	if len(line) == 0 {
		return nil
	}

	var envelope streamLine
	if err := json.Unmarshal(line, &envelope); err != nil {
		logger.Warn("unparseable agent output line", "error", err, "length", len(line))
		return nil
	}

	switch envelope.Type {
	case "system":
		if envelope.Subtype == "init" {
			return []Event{InitEvent{
				SessionID: envelope.SessionID,
				Model:     envelope.Model,
			}}
		}
		return nil
	case "assistant":
		return parseAssistant(envelope.Message, logger)
	case "user":
		return parseUser(envelope.Message, logger)
	case "result":
		return []Event{parseResult(line)}
	case "control_request":
		return parseControlRequest(line, pending, logger)
	case "control_cancel_request":
		pending.take(envelope.RequestID)
		return []Event{RequestCancelledEvent{RequestID: envelope.RequestID}}
	case "control_response":
		// Echo of one of our own answers.
		return nil
	}
	logger.Debug("unknown agent event type", "type", envelope.Type)
	return nil
}

// parseAssistant splits an assistant message into text and tool-use
// events, preserving block order: text accumulated before a tool use
// is flushed ahead of it.
func parseAssistant(message json.RawMessage, logger *slog.Logger) []Event {
	if message == nil {
		return nil
	}
	var body messageBody
	if err := json.Unmarshal(message, &body); err != nil {
		logger.Warn("unparseable assistant message", "error", err)
		return nil
	}

	var events []Event
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			events = append(events, TextEvent{Text: text.String()})
			text.Reset()
		}
	}

	for _, block := range body.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use", "server_tool_use":
			flush()
			events = append(events, ToolUseEvent{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}
	flush()
	return events
}

// parseUser extracts tool results. Result content is either a JSON
// string or structured blocks; structured content passes through raw.
func parseUser(message json.RawMessage, logger *slog.Logger) []Event {
	if message == nil {
		return nil
	}
	var body messageBody
	if err := json.Unmarshal(message, &body); err != nil {
		logger.Warn("unparseable user message", "error", err)
		return nil
	}

	var events []Event
	for _, block := range body.Content {
		if block.Type != "tool_result" {
			continue
		}
		var content string
		if err := json.Unmarshal(block.Content, &content); err != nil {
			content = string(block.Content)
		}
		events = append(events, ToolResultEvent{
			ToolUseID: block.ToolUseID,
			Content:   content,
		})
	}
	return events
}

func parseResult(line []byte) Event {
	var result resultLine
	if err := json.Unmarshal(line, &result); err != nil {
		return ResultEvent{}
	}

	interrupted := false
	if result.Subtype == "error_during_execution" {
		for _, message := range result.Errors {
			if strings.Contains(message, "Request was aborted") {
				interrupted = true
				break
			}
		}
	}

	return ResultEvent{
		SessionID:   result.SessionID,
		IsError:     result.IsError,
		Interrupted: interrupted,
		Text:        result.Result,
		CostUSD:     result.TotalCost,
		Usage:       result.Usage,
	}
}

func parseControlRequest(line []byte, pending *pendingControls, logger *slog.Logger) []Event {
	var request controlRequest
	if err := json.Unmarshal(line, &request); err != nil {
		logger.Warn("unparseable control request", "error", err)
		return nil
	}
	if request.Request == nil {
		return nil
	}
	if request.Request.Subtype != "can_use_tool" {
		logger.Debug("ignoring control request", "subtype", request.Request.Subtype)
		return nil
	}

	// The question tool arrives as a regular can_use_tool request;
	// its answers ride back as updated input on the approval.
	if KindOfTool(request.Request.ToolName) == ToolAskQuestion {
		var input struct {
			Questions []Question `json:"questions"`
		}
		if err := json.Unmarshal(request.Request.Input, &input); err != nil {
			logger.Warn("unparseable question input", "error", err, "request_id", request.RequestID)
			return nil
		}
		pending.put(&request)
		return []Event{QuestionRequestEvent{
			RequestID: request.RequestID,
			ToolUseID: request.Request.ToolUseID,
			Questions: input.Questions,
		}}
	}

	pending.put(&request)
	return []Event{ApprovalRequestEvent{
		RequestID: request.RequestID,
		ToolName:  request.Request.ToolName,
		ToolUseID: request.Request.ToolUseID,
		Input:     request.Request.Input,
	}}
}
