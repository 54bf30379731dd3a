// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type stdinBuffer struct {
	bytes.Buffer
}

func (b *stdinBuffer) Close() error { return nil }

// newRespondQuery builds a Query whose stdin is an in-memory buffer,
// with one tracked approval request ready to answer.
func newRespondQuery(t *testing.T, requestLine string) (*Query, *stdinBuffer) {
	t.Helper()
	buffer := &stdinBuffer{}
	query := &Query{
		stdin:   buffer,
		pending: newPendingControls(),
		cancel:  func() {},
		logger:  testLogger(),
	}
	if requestLine != "" {
		if events := parseLine([]byte(requestLine), query.pending, query.logger); len(events) != 1 {
			t.Fatalf("seeding control request produced %d events", len(events))
		}
	}
	return query, buffer
}

func writtenLines(t *testing.T, buffer *stdinBuffer) []string {
	t.Helper()
	text := strings.TrimRight(buffer.String(), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func decodeControlResponse(t *testing.T, line string) controlResponse {
	t.Helper()
	var response controlResponse
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		t.Fatalf("decoding control response %q: %v", line, err)
	}
	if response.Type != "control_response" || response.Response.Subtype != "success" {
		t.Fatalf("unexpected envelope %q", line)
	}
	return response
}

const approvalLine = `{"type":"control_request","request_id":"req_20","request":{"subtype":"can_use_tool","tool_name":"Bash","input":{"command":"make lint"},"tool_use_id":"toolu_20"}}`

func TestAllowToolEchoesInput(t *testing.T) {
	t.Parallel()
	query, buffer := newRespondQuery(t, approvalLine)

	if err := query.AllowTool("req_20"); err != nil {
		t.Fatalf("AllowTool: %v", err)
	}

	lines := writtenLines(t, buffer)
	if len(lines) != 1 {
		t.Fatalf("wrote %d lines, want 1", len(lines))
	}
	response := decodeControlResponse(t, lines[0])
	if response.Response.RequestID != "req_20" {
		t.Errorf("RequestID = %q", response.Response.RequestID)
	}
	verdict := response.Response.Response
	if verdict.Behavior != "allow" || verdict.ToolUseID != "toolu_20" {
		t.Errorf("verdict = %+v", verdict)
	}
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(verdict.UpdatedInput, &input); err != nil || input.Command != "make lint" {
		t.Errorf("UpdatedInput = %s (err %v)", verdict.UpdatedInput, err)
	}

	// The verdict keys inside the response are camelCase, unlike the
	// rest of the protocol.
	if !strings.Contains(lines[0], `"toolUseID"`) || !strings.Contains(lines[0], `"updatedInput"`) {
		t.Errorf("verdict keys not camelCase in %q", lines[0])
	}
}

func TestDenyToolDefaultMessage(t *testing.T) {
	t.Parallel()
	query, buffer := newRespondQuery(t, approvalLine)

	if err := query.DenyTool("req_20", ""); err != nil {
		t.Fatalf("DenyTool: %v", err)
	}

	lines := writtenLines(t, buffer)
	verdict := decodeControlResponse(t, lines[0]).Response.Response
	if verdict.Behavior != "deny" || verdict.Message != "denied" {
		t.Errorf("verdict = %+v", verdict)
	}
	if strings.Contains(lines[0], "updatedInput") {
		t.Errorf("deny carries updated input: %q", lines[0])
	}
}

func TestDenyToolCarriesFeedback(t *testing.T) {
	t.Parallel()
	query, buffer := newRespondQuery(t, approvalLine)

	if err := query.DenyTool("req_20", "use the staging database instead"); err != nil {
		t.Fatalf("DenyTool: %v", err)
	}

	verdict := decodeControlResponse(t, writtenLines(t, buffer)[0]).Response.Response
	if verdict.Message != "use the staging database instead" {
		t.Errorf("Message = %q", verdict.Message)
	}
}

func TestAnswerQuestions(t *testing.T) {
	t.Parallel()
	questionLine := `{"type":"control_request","request_id":"req_21","request":{"subtype":"can_use_tool","tool_name":"AskUserQuestion","input":{"questions":[{"question":"Which storage backend?","options":[{"label":"postgres"},{"label":"sqlite"}]}]},"tool_use_id":"toolu_21"}}`
	query, buffer := newRespondQuery(t, questionLine)

	answers := map[string]string{"Which storage backend?": "postgres"}
	if err := query.AnswerQuestions("req_21", answers); err != nil {
		t.Fatalf("AnswerQuestions: %v", err)
	}

	verdict := decodeControlResponse(t, writtenLines(t, buffer)[0]).Response.Response
	if verdict.Behavior != "allow" || verdict.ToolUseID != "toolu_21" {
		t.Errorf("verdict = %+v", verdict)
	}
	var updated struct {
		Answers map[string]string `json:"answers"`
	}
	if err := json.Unmarshal(verdict.UpdatedInput, &updated); err != nil {
		t.Fatalf("decoding updated input: %v", err)
	}
	if updated.Answers["Which storage backend?"] != "postgres" {
		t.Errorf("answers = %v", updated.Answers)
	}
}

func TestRespondUnknownRequest(t *testing.T) {
	t.Parallel()
	query, buffer := newRespondQuery(t, "")

	if err := query.AllowTool("req_absent"); err == nil {
		t.Error("AllowTool on unknown request succeeded")
	}
	if err := query.DenyTool("req_absent", "no"); err == nil {
		t.Error("DenyTool on unknown request succeeded")
	}
	if lines := writtenLines(t, buffer); lines != nil {
		t.Errorf("unknown request wrote %v", lines)
	}
}

func TestRespondTwice(t *testing.T) {
	t.Parallel()
	query, buffer := newRespondQuery(t, approvalLine)

	if err := query.AllowTool("req_20"); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	if err := query.DenyTool("req_20", "changed my mind"); err == nil {
		t.Error("second answer to the same request succeeded")
	}
	if lines := writtenLines(t, buffer); len(lines) != 1 {
		t.Errorf("wrote %d lines, want 1", len(lines))
	}
}

func TestInterruptWritesControlRequest(t *testing.T) {
	t.Parallel()
	query, buffer := newRespondQuery(t, "")

	if err := query.Interrupt(); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}

	var request controlRequest
	if err := json.Unmarshal([]byte(writtenLines(t, buffer)[0]), &request); err != nil {
		t.Fatalf("decoding interrupt: %v", err)
	}
	if request.Type != "control_request" || request.Request.Subtype != "interrupt" {
		t.Errorf("interrupt = %+v", request)
	}
	if len(request.RequestID) != 32 {
		t.Errorf("RequestID = %q, want 16 random bytes hex encoded", request.RequestID)
	}
}

func TestSendPrompt(t *testing.T) {
	t.Parallel()
	query, buffer := newRespondQuery(t, "")

	if err := query.sendPrompt("run the linters"); err != nil {
		t.Fatalf("sendPrompt: %v", err)
	}

	var message userMessage
	if err := json.Unmarshal([]byte(writtenLines(t, buffer)[0]), &message); err != nil {
		t.Fatalf("decoding prompt: %v", err)
	}
	if message.Type != "user" || message.Message.Role != "user" {
		t.Errorf("envelope = %+v", message)
	}
	if len(message.Message.Content) != 1 || message.Message.Content[0].Text != "run the linters" {
		t.Errorf("content = %+v", message.Message.Content)
	}
}
