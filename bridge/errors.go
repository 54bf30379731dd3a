// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"fmt"

	"github.com/switchboard-dev/switchboard/lib/ref"
)

// TransportError wraps a chat-surface failure that survived its one
// retry. The owning query keeps running; the render target is reset so
// the next publish starts a fresh message.
type TransportError struct {
	// Op names the surface call that failed ("send", "edit", "upload").
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bridge: surface %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SessionDeadError means the agent process or console behind a session
// is gone. Fatal to that session: the bridge cleans up and notifies the
// channel once, and never retries.
type SessionDeadError struct {
	Room ref.RoomID
	Err  error
}

func (e *SessionDeadError) Error() string {
	return fmt.Sprintf("bridge: session for %s is dead: %v", e.Room, e.Err)
}

func (e *SessionDeadError) Unwrap() error { return e.Err }

// CorrelationError marks a decision that arrived for an interaction the
// bridge no longer holds: a reaction on a stale prompt, a second answer
// to a resolved question. Logged and swallowed, never user-visible.
type CorrelationError struct {
	RequestID string
}

func (e *CorrelationError) Error() string {
	return fmt.Sprintf("bridge: no pending interaction %q", e.RequestID)
}

// ValidationError rejects operator input before any state changes. Its
// Message is shown on the surface verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "bridge: " + e.Message
}

func validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is operator input rejected by
// validation, whose message can go to the surface as-is.
func IsValidation(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// IsSessionDead reports whether err marks its session unrecoverable.
func IsSessionDead(err error) bool {
	var deadErr *SessionDeadError
	return errors.As(err, &deadErr)
}
