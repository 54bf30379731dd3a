// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/switchboard-dev/switchboard/agent"
	"github.com/switchboard-dev/switchboard/lib/clock"
	"github.com/switchboard-dev/switchboard/lib/ref"
)

// Defaults seed every newly created session.
type Defaults struct {
	// WorkDir is the starting working directory.
	WorkDir string
	// Mode is the starting permission mode.
	Mode agent.PermissionMode
}

// Registry is the single source of truth for which channels have a
// session. It holds no business logic: lifecycle decisions belong to
// the controller, the registry only guarantees one session per channel
// and serialized creation.
type Registry struct {
	defaults Defaults
	clock    clock.Clock
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[ref.RoomID]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry(defaults Defaults, clk clock.Clock, logger *slog.Logger) *Registry {
	return &Registry{
		defaults: defaults,
		clock:    clk,
		logger:   logger,
		sessions: make(map[ref.RoomID]*Session),
	}
}

// GetOrCreate returns the channel's session, creating it with the
// registry defaults if none exists. created reports which happened.
// Two concurrent first messages for a channel get the same session.
func (r *Registry) GetOrCreate(room ref.RoomID) (s *Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[room]; ok {
		return existing, false
	}
	s = newSession(room, r.defaults.WorkDir, r.defaults.Mode, r.clock)
	r.sessions[room] = s
	r.logger.Debug("session created",
		"room", room,
		"work_dir", s.WorkDir(),
		"mode", s.Mode())
	return s, true
}

// Get returns the channel's session if one exists.
func (r *Registry) Get(room ref.RoomID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[room]
	return s, ok
}

// Remove deletes the channel's entry. Absence is not an error. The
// session itself is not closed; callers that want its in-flight query
// cancelled close it first.
func (r *Registry) Remove(room ref.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, room)
}

// Replace closes the channel's existing session, if any, and installs
// a fresh one with the registry defaults. The swap is atomic: no
// window exists where the channel has no session.
func (r *Registry) Replace(room ref.RoomID) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[room]; ok {
		old.Close()
	}
	s := newSession(room, r.defaults.WorkDir, r.defaults.Mode, r.clock)
	r.sessions[room] = s
	r.logger.Debug("session replaced", "room", room)
	return s
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns a status for every registered session, ordered by
// room so the output is stable.
func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	statuses := make([]Status, 0, len(sessions))
	for _, s := range sessions {
		statuses = append(statuses, s.Status())
	}
	slices.SortFunc(statuses, func(a, b Status) int {
		return strings.Compare(a.Room.String(), b.Room.String())
	})
	return statuses
}

// Shutdown closes every session and empties the registry. In-flight
// queries get their cancellation signal; Shutdown does not wait for
// them to unwind.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[ref.RoomID]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	if len(sessions) > 0 {
		r.logger.Info("sessions shut down", "count", len(sessions))
	}
}
