// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package tmux provides a typed interface to a dedicated tmux server.
// Switchboard's console transport runs agent CLIs inside its own tmux
// server (distinct from any personal tmux the operator runs), one
// session per chat channel. All operations target a specific server
// socket; there is no default server, and the user's ~/.tmux.conf is
// never loaded unless explicitly requested.
//
// The central type is [Server]. Every tmux command goes through it,
// which injects the -S flag automatically, making it structurally
// impossible to target the wrong server or forget the socket.
package tmux

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Server represents a tmux server identified by its Unix socket path.
type Server struct {
	socketPath string
	configFile string // passed as "-f <path>" on new-session; empty = tmux default
}

// NewServer returns a Server that targets the given socket path.
//
// configFile controls which configuration file tmux loads when the
// server starts (which happens on the first new-session call). Pass
// "/dev/null" to prevent loading the user's ~/.tmux.conf; switchboard's
// production server and all tests do. An empty configFile falls back to
// tmux's default resolution, which is almost never wanted here.
func NewServer(socketPath, configFile string) *Server {
	return &Server{
		socketPath: socketPath,
		configFile: configFile,
	}
}

// SocketPath returns the Unix socket path that identifies this server.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// NewSession creates a detached tmux session on this server, running
// in workDir. If command is non-empty, the session runs that command
// instead of the default shell.
//
// The -f flag (config file) is passed on new-session because this
// command may start the server. Subsequent commands don't re-read the
// config, so only new-session needs it.
func (s *Server) NewSession(sessionName, workDir string, command ...string) error {
	var args []string
	if s.configFile != "" {
		args = append(args, "-f", s.configFile)
	}
	args = append(args, "-S", s.socketPath, "new-session", "-d", "-s", sessionName)
	if workDir != "" {
		args = append(args, "-c", workDir)
	}
	args = append(args, command...)

	cmd := exec.Command("tmux", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tmux new-session %q: %w (%s)",
			sessionName, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// HasSession reports whether a session with the given name exists on
// this server. Returns false if the server is not running.
func (s *Server) HasSession(sessionName string) bool {
	cmd := exec.Command("tmux", "-S", s.socketPath, "has-session", "-t", sessionName)
	return cmd.Run() == nil
}

// ListSessions returns the names of all sessions on this server. An
// empty slice (not an error) is returned when the server is not
// running, since "no server" and "no sessions" mean the same thing to
// callers enumerating attach targets.
func (s *Server) ListSessions() ([]string, error) {
	output, err := s.Run("list-sessions", "-F", "#{session_name}")
	if err != nil {
		// "no server running" when the server exited; "error connecting"
		// when the socket file never existed.
		if strings.Contains(err.Error(), "no server running") ||
			strings.Contains(err.Error(), "error connecting") {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// KillSession terminates a specific session. Returns nil if the
// session was already gone or the server was not running; both are
// normal conditions during cleanup, not errors.
func (s *Server) KillSession(sessionName string) error {
	cmd := exec.Command("tmux", "-S", s.socketPath, "kill-session", "-t", sessionName)
	output, err := cmd.CombinedOutput()
	if err != nil {
		outputString := strings.TrimSpace(string(output))
		if strings.Contains(outputString, "can't find session") ||
			strings.Contains(outputString, "no server running") {
			return nil
		}
		return fmt.Errorf("tmux kill-session %q: %w (%s)",
			sessionName, err, outputString)
	}
	return nil
}

// KillServer terminates the entire tmux server, stopping all sessions.
// Returns nil if the server was already stopped.
func (s *Server) KillServer() error {
	cmd := exec.Command("tmux", "-S", s.socketPath, "kill-server")
	output, err := cmd.CombinedOutput()
	if err != nil {
		outputString := strings.TrimSpace(string(output))
		// "server exited unexpectedly" appears when the socket file
		// lingers briefly after the server process has exited.
		if strings.Contains(outputString, "no server running") ||
			strings.Contains(outputString, "server exited unexpectedly") {
			return nil
		}
		return fmt.Errorf("tmux kill-server: %w (%s)", err, outputString)
	}
	return nil
}

// SendKeys delivers keystrokes to the named session's active pane.
// Each element is passed through as a separate send-keys argument, so
// callers can mix literal text with key names ("Enter", "C-c"):
//
//	server.SendKeys(session, "explain this failure", "Enter")
func (s *Server) SendKeys(sessionName string, keys ...string) error {
	if len(keys) == 0 {
		return fmt.Errorf("tmux send-keys %q: no keys given", sessionName)
	}
	args := append([]string{"send-keys", "-t", sessionName}, keys...)
	if _, err := s.Run(args...); err != nil {
		return err
	}
	return nil
}

// SetOption sets a tmux option. If sessionName is empty, the option is
// set globally (-g) and applies to all sessions on this server.
func (s *Server) SetOption(sessionName, key, value string) error {
	var args []string
	if sessionName == "" {
		args = []string{"set-option", "-g", key, value}
	} else {
		args = []string{"set-option", "-t", sessionName, key, value}
	}
	if _, err := s.Run(args...); err != nil {
		return fmt.Errorf("tmux set-option %q=%q (session %q): %w",
			key, value, sessionName, err)
	}
	return nil
}

// Run executes an arbitrary tmux subcommand on this server and returns
// the combined output. This is the escape hatch for commands without a
// dedicated method. The -S flag is automatically prepended; callers
// provide only the subcommand and its arguments.
func (s *Server) Run(args ...string) (string, error) {
	fullArgs := append([]string{"-S", s.socketPath}, args...)
	cmd := exec.Command("tmux", fullArgs...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("tmux %s: %w (%s)",
			strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// Command returns an *exec.Cmd for a tmux subcommand without running
// it. The caller gets full control over Stdin, Stdout, and Stderr
// before starting the process. Used by switchboard-attach, which hands
// its terminal to "tmux attach". The -S flag is prepended as with Run.
func (s *Server) Command(args ...string) *exec.Cmd {
	fullArgs := append([]string{"-S", s.socketPath}, args...)
	return exec.Command("tmux", fullArgs...)
}

// CapturePane captures the full scrollback and visible content of the
// named session's active pane. The output includes terminal control
// sequences if the process emitted them; the render cleaning pass
// strips those. maxLines limits the output to the last N lines; pass 0
// for no limit.
func (s *Server) CapturePane(sessionName string, maxLines int) (string, error) {
	output, err := s.Run("capture-pane", "-t", sessionName, "-p", "-S", "-", "-E", "-")
	if err != nil {
		return "", err
	}
	if maxLines <= 0 {
		return output, nil
	}
	return tailString(output, maxLines), nil
}

// paneStatusRetryDelay is the delay between retries when tmux reports
// dead=1 but hasn't yet populated the exit status fields.
const paneStatusRetryDelay = 50 * time.Millisecond

// paneStatusMaxRetries bounds the re-queries when pane_dead=1 but both
// pane_dead_status and pane_dead_signal are still empty. Tmux 3.4+ has
// a race window between setting pane_dead and recording the exit
// status; 5 × 50ms covers it well inside the console poll interval.
const paneStatusMaxRetries = 5

// PaneStatus reports whether the pane's command has exited and, if so,
// its exit code. This requires remain-on-exit on the session (the
// console transport always sets it): when the command exits, the pane
// stays alive with #{pane_dead} set to 1.
//
// Signal deaths follow the shell convention, 128 + signal number.
// Returns dead=false while the pane process is still running; exitCode
// is only meaningful when dead=true.
func (s *Server) PaneStatus(sessionName string) (dead bool, exitCode int, err error) {
	for attempt := 0; ; attempt++ {
		output, queryErr := s.Run("display-message", "-t", sessionName, "-p",
			"#{pane_dead} #{pane_dead_status} #{pane_dead_signal}")
		if queryErr != nil {
			return false, 0, queryErr
		}

		// Three space-separated values; empty values collapse:
		//   "0"     running
		//   "1 42"  exit 42
		//   "1  15" killed by SIGTERM (empty status, signal 15)
		//   "1"     status not yet populated (race window)
		trimmed := strings.TrimRight(output, "\n")
		parts := strings.SplitN(trimmed, " ", 3)
		if len(parts) == 0 || parts[0] == "" {
			return false, 0, fmt.Errorf("empty pane status output")
		}

		deadValue, parseErr := strconv.Atoi(parts[0])
		if parseErr != nil {
			return false, 0, fmt.Errorf("parsing pane_dead %q: %w", parts[0], parseErr)
		}
		if deadValue == 0 {
			return false, 0, nil
		}

		hasStatus := len(parts) >= 2 && parts[1] != ""
		hasSignal := len(parts) >= 3 && parts[2] != ""

		if hasSignal {
			signalNumber, parseErr := strconv.Atoi(parts[2])
			if parseErr != nil {
				return true, -1, fmt.Errorf("parsing pane_dead_signal %q: %w", parts[2], parseErr)
			}
			return true, 128 + signalNumber, nil
		}
		if hasStatus {
			status, parseErr := strconv.Atoi(parts[1])
			if parseErr != nil {
				return true, -1, fmt.Errorf("parsing pane_dead_status %q: %w", parts[1], parseErr)
			}
			return true, status, nil
		}

		if attempt >= paneStatusMaxRetries {
			return true, 0, nil
		}
		time.Sleep(paneStatusRetryDelay)
	}
}

// SignalPane sends a signal to the process running in the named
// session's active pane. The pane must be alive. Uses #{pane_pid} to
// discover the process ID, then signals it directly.
//
// This is how the console transport interrupts an agent: SIGINT to the
// CLI in the pane, exactly as if the operator pressed Ctrl-C there.
func (s *Server) SignalPane(sessionName string, signal syscall.Signal) error {
	output, err := s.Run("display-message", "-t", sessionName, "-p", "#{pane_pid}")
	if err != nil {
		return fmt.Errorf("getting pane PID: %w", err)
	}

	pid, parseErr := strconv.Atoi(strings.TrimSpace(output))
	if parseErr != nil {
		return fmt.Errorf("parsing pane PID %q: %w", strings.TrimSpace(output), parseErr)
	}
	if err := syscall.Kill(pid, signal); err != nil {
		return fmt.Errorf("signaling PID %d with %v: %w", pid, signal, err)
	}
	return nil
}

// tailString returns the last n lines of s, matching tail -n
// semantics: a trailing newline terminates the last line rather than
// starting a new one. If s has n or fewer lines, it is returned
// unchanged.
func tailString(s string, n int) string {
	if len(s) == 0 {
		return s
	}

	searchFrom := len(s) - 1
	if s[searchFrom] == '\n' {
		searchFrom--
	}

	count := 0
	for i := searchFrom; i >= 0; i-- {
		if s[i] == '\n' {
			count++
			if count == n {
				return s[i+1:]
			}
		}
	}
	return s
}
