// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package statusapi serves the daemon's admin status endpoint on a
// Unix socket. The wire format is JSON over HTTP with two routes:
// GET /v1/status for daemon-level information and GET /v1/sessions
// for the live session list. The socket is local-only diagnostics for
// the attach helper and the console TUI; it never mutates state.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/switchboard-dev/switchboard/session"
)

// StatusResponse is the wire format for GET /v1/status.
// ConsoleSocket is the tmux server socket consoles run on, present
// only for the console variant; the attach helper needs it to reach
// the right tmux server without reading the daemon's config.
// SessionLog is the path of the daemon's session log file, which the
// console TUI reads for its transcript pane.
type StatusResponse struct {
	Version       string    `json:"version"`
	Variant       string    `json:"variant"`
	StartedAt     time.Time `json:"started_at"`
	Sessions      int       `json:"sessions"`
	ConsoleSocket string    `json:"console_socket,omitempty"`
	SessionLog    string    `json:"session_log,omitempty"`
}

// SessionEntry is one session as served by GET /v1/sessions. The
// console fields are populated only by the console variant of the
// daemon; ConsoleName is the tmux session the attach helper targets.
type SessionEntry struct {
	session.Status
	ConsoleRunning bool   `json:"console_running,omitempty"`
	ConsoleName    string `json:"console_name,omitempty"`
}

// Source supplies the live session list. The daemon implements it
// over its registry, enriched with pane state in the console variant.
type Source interface {
	Snapshot() []SessionEntry
}

// Config configures a Server.
type Config struct {
	// SocketPath is the Unix socket to listen on. Required.
	SocketPath string

	// Source supplies the session list. Required.
	Source Source

	// Variant names the transport this daemon runs, "headless" or
	// "console".
	Variant string

	// ConsoleSocket is the tmux server socket of the console variant.
	// Leave empty for headless.
	ConsoleSocket string

	// SessionLog is the path of the daemon's session log file.
	SessionLog string

	// Version is the daemon build version served in /v1/status.
	Version string

	// StartedAt is when the daemon booted.
	StartedAt time.Time

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// Server serves the status API on a Unix socket. Create with
// NewServer, then call Serve.
type Server struct {
	socketPath    string
	source        Source
	variant       string
	consoleSocket string
	sessionLog    string
	version       string
	startedAt     time.Time
	logger        *slog.Logger

	// ready is closed after the listener is bound and the server is
	// accepting connections.
	ready chan struct{}
}

// NewServer creates a server that will listen on the configured
// socket path. Call Serve to start accepting connections.
func NewServer(config Config) *Server {
	if config.SocketPath == "" {
		panic("statusapi.Server: SocketPath is required")
	}
	if config.Source == nil {
		panic("statusapi.Server: Source is required")
	}
	if config.Logger == nil {
		panic("statusapi.Server: Logger is required")
	}
	return &Server{
		socketPath:    config.SocketPath,
		source:        config.Source,
		variant:       config.Variant,
		consoleSocket: config.ConsoleSocket,
		sessionLog:    config.SessionLog,
		version:       config.Version,
		startedAt:     config.StartedAt,
		logger:        config.Logger,
		ready:         make(chan struct{}),
	}
}

// Ready returns a channel that is closed once the server is bound and
// accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// shutdownTimeout bounds graceful shutdown. Status requests are
// sub-millisecond map snapshots, so in-flight work drains instantly.
const shutdownTimeout = 10 * time.Second

// Serve starts accepting connections and blocks until ctx is
// cancelled, then performs graceful shutdown. Any stale socket file
// at the configured path is removed before listening, and the socket
// file is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer os.Remove(s.socketPath)

	// Owner and group only: the socket reports workdirs and room ids.
	if err := os.Chmod(s.socketPath, 0o660); err != nil {
		listener.Close()
		return fmt.Errorf("setting socket mode: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/sessions", s.handleSessions)

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	s.logger.Info("status api listening", "path", s.socketPath)
	close(s.ready)

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status api shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, StatusResponse{
		Version:       s.version,
		Variant:       s.variant,
		StartedAt:     s.startedAt,
		Sessions:      len(s.source.Snapshot()),
		ConsoleSocket: s.consoleSocket,
		SessionLog:    s.sessionLog,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	entries := s.source.Snapshot()
	if entries == nil {
		entries = []SessionEntry{}
	}
	s.writeJSON(w, entries)
}

// writeJSON encodes value as JSON into w, setting the Content-Type
// header. Encoding failures mean the client disconnected; they are
// logged, not returned.
func (s *Server) writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		s.logger.Warn("writing JSON response", "error", err)
	}
}
