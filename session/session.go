// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/switchboard-dev/switchboard/agent"
	"github.com/switchboard-dev/switchboard/lib/clock"
	"github.com/switchboard-dev/switchboard/lib/ref"
)

// State is where a session sits in its lifecycle. A session leaves
// StateActive for one of the resumable states when its query ends, and
// re-enters StateActive on the next query. StateClosed is terminal.
type State int

const (
	// StateIdle is a created session that has not run a query yet.
	StateIdle State = iota
	// StateActive means a query is in flight.
	StateActive
	// StateCompleted means the last query finished normally.
	StateCompleted
	// StateAborted means the last query was interrupted.
	StateAborted
	// StateErrored means the last query failed.
	StateErrored
	// StateClosed means the session was discarded. It never becomes
	// active again.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateErrored:
		return "errored"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StateIdle
	case "active":
		*s = StateActive
	case "completed":
		*s = StateCompleted
	case "aborted":
		*s = StateAborted
	case "errored":
		*s = StateErrored
	case "closed":
		*s = StateClosed
	default:
		return fmt.Errorf("session: unknown state %q", text)
	}
	return nil
}

// Session is one channel's conversation with the agent. All methods
// are safe for concurrent use; the registry shares sessions across the
// controller loop and the status API.
type Session struct {
	room  ref.RoomID
	clock clock.Clock

	mu           sync.Mutex
	state        State
	resumeID     string
	workDir      string
	mode         agent.PermissionMode
	usage        agent.Usage
	lastActivity time.Time

	// queryToken is the last token issued; activeToken is the token of
	// the in-flight query, zero when none. Tokens only grow, so a
	// finished or cancelled query can never be mistaken for a later
	// one.
	queryToken  uint64
	activeToken uint64
	cancel      context.CancelFunc
}

func newSession(room ref.RoomID, workDir string, mode agent.PermissionMode, clk clock.Clock) *Session {
	return &Session{
		room:         room,
		clock:        clk,
		workDir:      workDir,
		mode:         mode,
		lastActivity: clk.Now(),
	}
}

// Room returns the channel this session belongs to.
func (s *Session) Room() ref.RoomID { return s.room }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether a query is in flight.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeToken != 0
}

// ResumeID returns the agent's conversation identifier, empty until
// the first query announces one.
func (s *Session) ResumeID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeID
}

// SetResumeID records the conversation identifier announced by the
// agent, so the next query continues the same conversation.
func (s *Session) SetResumeID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumeID = id
}

// WorkDir returns the directory the next query starts in.
func (s *Session) WorkDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workDir
}

// SetWorkDir changes the directory for subsequent queries. A query
// already in flight is unaffected.
func (s *Session) SetWorkDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workDir = dir
}

// Mode returns the permission mode the next query starts with.
func (s *Session) Mode() agent.PermissionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode changes the permission mode for subsequent queries.
func (s *Session) SetMode(mode agent.PermissionMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// Usage returns the cumulative token usage across all queries.
func (s *Session) Usage() agent.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// AddUsage folds one query's token usage into the session total.
func (s *Session) AddUsage(delta agent.Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage.Add(delta)
}

// LastActivity returns when the session last saw traffic.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Touch bumps the last-activity timestamp.
func (s *Session) Touch() {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
}

// BeginQuery marks a new query active and returns its token. If a
// query is already in flight its cancellation is signalled first; the
// new query does not wait for the old one to unwind, it simply takes
// over the active token so the old query's remaining events are
// dropped as stale.
func (s *Session) BeginQuery(cancel context.CancelFunc) uint64 {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.queryToken++
	s.activeToken = s.queryToken
	s.cancel = cancel
	s.state = StateActive
	s.lastActivity = now
	return s.queryToken
}

// QueryActive reports whether token still identifies the in-flight
// query. Events carrying a stale token must be dropped.
func (s *Session) QueryActive(token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return token != 0 && token == s.activeToken
}

// EndQuery marks the query with the given token finished, moving the
// session to outcome (StateCompleted, StateAborted, or StateErrored).
// The registered cancellation fires so the query's context is
// released; the process behind it has already exited. A stale token is
// ignored and EndQuery returns false: a superseded or interrupted
// query cannot overwrite the state its successor set.
func (s *Session) EndQuery(token uint64, outcome State) bool {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == 0 || token != s.activeToken {
		return false
	}
	s.activeToken = 0
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.state = outcome
	s.lastActivity = now
	return true
}

// Interrupt stops the in-flight query: the active token is invalidated
// immediately so trailing events are dropped, the cancellation signal
// fires, and the session moves to StateAborted. The conversation
// identifier and usage counters survive so the next message resumes
// the same conversation. Returns false when no query was active.
func (s *Session) Interrupt() bool {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeToken == 0 {
		return false
	}
	s.activeToken = 0
	s.state = StateAborted
	s.lastActivity = now
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return true
}

// Close discards the session: any in-flight query is cancelled and the
// conversation identifier is dropped, so nothing can resume it. Safe
// to call on any state, any number of times.
func (s *Session) Close() {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeToken = 0
	s.resumeID = ""
	s.state = StateClosed
	s.lastActivity = now
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Status is a point-in-time snapshot of one session for the status
// API and the status command.
type Status struct {
	Room         ref.RoomID           `json:"room"`
	State        State                `json:"state"`
	WorkDir      string               `json:"work_dir"`
	Mode         agent.PermissionMode `json:"mode"`
	Resumable    bool                 `json:"resumable"`
	Usage        agent.Usage          `json:"usage"`
	LastActivity time.Time            `json:"last_activity"`
}

// Status snapshots the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Room:         s.room,
		State:        s.state,
		WorkDir:      s.workDir,
		Mode:         s.mode,
		Resumable:    s.resumeID != "",
		Usage:        s.usage,
		LastActivity: s.lastActivity,
	}
}
