// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent drives the claude CLI in headless stream-json mode,
// one process per turn.
//
// [Runner.Start] launches the CLI with --print and the stdio
// permission prompt, sends the prompt as a stream-json user message,
// and returns a [Query]. The query's stdout becomes a channel of
// [Event] values: assistant text, tool activity, permission and
// question requests, and the closing result with token usage.
// Conversations persist on the CLI side; the [InitEvent] carries the
// session identifier a later query passes as ResumeID.
//
// Permission requests arrive as [ApprovalRequestEvent] and
// [QuestionRequestEvent] and block the turn until answered through
// [Query.AllowTool], [Query.DenyTool], or [Query.AnswerQuestions].
// There is no deadline on the agent side; an unanswered request waits
// indefinitely. [Query.Interrupt] stops the turn in place,
// [Query.Close] tears the process down.
package agent
