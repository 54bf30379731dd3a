// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package sessionlog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/switchboard-dev/switchboard/lib/clock"
)

// Kind labels a log entry.
type Kind string

// Entry kinds.
const (
	KindPrompt     Kind = "prompt"
	KindOutput     Kind = "output"
	KindApproval   Kind = "approval"
	KindQuestion   Kind = "question"
	KindTransition Kind = "transition"
	KindUsage      Kind = "usage"
	KindError      Kind = "error"
)

// Entry is one line of the session log. Fields beyond Time, Kind, and
// Channel are populated per kind.
type Entry struct {
	Time    time.Time `json:"time"`
	Kind    Kind      `json:"kind"`
	Channel string    `json:"channel"`

	// SessionID is the agent session active when the entry was
	// written, when one exists.
	SessionID string `json:"session_id,omitempty"`

	// Sender is the Matrix user behind a prompt, decision, or answer.
	Sender string `json:"sender,omitempty"`

	// Text carries the prompt, output fragment, question answer, or
	// transition reason.
	Text string `json:"text,omitempty"`

	// Tool and Decision describe an approval entry. Decision is
	// "allow", "deny", "auto", or "cancel".
	Tool     string `json:"tool,omitempty"`
	Decision string `json:"decision,omitempty"`

	// From and To describe a lifecycle transition.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// Usage carries the counters from a completed agent turn.
	Usage *Usage `json:"usage,omitempty"`

	// Error holds the message of an error entry.
	Error string `json:"error,omitempty"`
}

// Usage holds the counters an agent turn reports on completion.
type Usage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	Turns        int64   `json:"turns"`
}

// Writer appends entries to a channel's log file. Safe for concurrent
// use.
type Writer struct {
	file    *os.File
	encoder *json.Encoder
	clk     clock.Clock
	mutex   sync.Mutex
	closed  bool

	// Aggregated counters, protected by mutex.
	opened        time.Time
	entryCount    int64
	promptCount   int64
	approvalCount int64
	deniedCount   int64
	errorCount    int64
	usage         Usage
}

// Open opens (or creates) the log file at path for appending.
func Open(path string, clk clock.Clock) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening session log %q: %w", path, err)
	}
	encoder := json.NewEncoder(file)
	// One compact JSON object per line, prompts and output verbatim.
	encoder.SetEscapeHTML(false)
	return &Writer{
		file:    file,
		encoder: encoder,
		clk:     clk,
		opened:  clk.Now(),
	}, nil
}

// Write appends one entry and updates the summary counters. A zero
// Time is stamped with the current time in UTC.
func (w *Writer) Write(entry Entry) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return fmt.Errorf("session log is closed")
	}
	if entry.Time.IsZero() {
		entry.Time = w.clk.Now().UTC()
	}

	if err := w.encoder.Encode(entry); err != nil {
		return fmt.Errorf("encoding session log entry: %w", err)
	}
	// Sync per entry so the trail survives a daemon crash. Sessions
	// produce at most tens of entries per second, so the cost is
	// negligible.
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("syncing session log: %w", err)
	}

	w.entryCount++
	switch entry.Kind {
	case KindPrompt:
		w.promptCount++
	case KindApproval:
		w.approvalCount++
		if entry.Decision == "deny" {
			w.deniedCount++
		}
	case KindError:
		w.errorCount++
	case KindUsage:
		if entry.Usage != nil {
			w.usage.InputTokens += entry.Usage.InputTokens
			w.usage.OutputTokens += entry.Usage.OutputTokens
			w.usage.CostUSD += entry.Usage.CostUSD
			w.usage.Turns += entry.Usage.Turns
		}
	}
	return nil
}

// Close closes the underlying file. Idempotent.
func (w *Writer) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// Summary aggregates everything written through this Writer. Counters
// reset when the daemon restarts, not when the agent session rolls
// over.
type Summary struct {
	EntryCount    int64         `json:"entry_count"`
	PromptCount   int64         `json:"prompt_count"`
	ApprovalCount int64         `json:"approval_count"`
	DeniedCount   int64         `json:"denied_count"`
	ErrorCount    int64         `json:"error_count"`
	Usage         Usage         `json:"usage"`
	Uptime        time.Duration `json:"uptime"`
}

// Summary returns the aggregated counters so far.
func (w *Writer) Summary() Summary {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return Summary{
		EntryCount:    w.entryCount,
		PromptCount:   w.promptCount,
		ApprovalCount: w.approvalCount,
		DeniedCount:   w.deniedCount,
		ErrorCount:    w.errorCount,
		Usage:         w.usage,
		Uptime:        w.clk.Now().Sub(w.opened),
	}
}
