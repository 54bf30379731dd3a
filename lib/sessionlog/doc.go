// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessionlog records per-channel bridge activity as JSONL.
//
// Each channel gets one append-only log file holding one JSON object
// per line: prompts, rendered output, approval decisions, question
// answers, lifecycle transitions, usage counters, and errors. The log
// survives agent restarts; a single file spans every agent session the
// channel has hosted.
//
// This is an operator audit trail, not session persistence: nothing in
// the daemon reads the log back.
package sessionlog
