// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultBinary is the agent CLI executable name.
	DefaultBinary = "claude"

	// maxLineBytes bounds one stdout line. Tool results can carry
	// whole files.
	maxLineBytes = 1 << 20

	// exitGrace is how long a cancelled process gets to flush its
	// conversation state before escalation to SIGKILL.
	exitGrace = 5 * time.Second

	// stderrGrace bounds the wait for the stderr drain after stdout
	// closes.
	stderrGrace = 5 * time.Second
)

// Runner launches queries against the agent CLI.
type Runner struct {
	binary    string
	extraArgs []string
	logger    *slog.Logger
}

// NewRunner creates a Runner for the given executable. An empty binary
// selects [DefaultBinary]; extraArgs are appended to every invocation.
func NewRunner(binary string, extraArgs []string, logger *slog.Logger) *Runner {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Runner{binary: binary, extraArgs: extraArgs, logger: logger}
}

// StartOptions configures one query.
type StartOptions struct {
	// Prompt is the user message that starts the turn.
	Prompt string

	// WorkDir is the directory the CLI runs in. Must exist.
	WorkDir string

	// ResumeID continues an existing conversation when set.
	ResumeID string

	// Mode gates tool use for this turn.
	Mode PermissionMode
}

// Start launches the CLI and sends the prompt. Events stream on the
// returned query's channel until the turn completes or ctx is
// cancelled; cancellation interrupts the process, escalating to a kill
// if it lingers.
func (r *Runner) Start(ctx context.Context, options StartOptions) (*Query, error) {
	procCtx, cancel := context.WithCancel(ctx)

	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
		"--permission-prompt-tool", "stdio",
		"--permission-mode", options.Mode.CLIValue(),
	}
	if options.ResumeID != "" {
		args = append(args, "--resume", options.ResumeID)
	}
	args = append(args, r.extraArgs...)

	cmd := exec.CommandContext(procCtx, r.binary, args...)
	cmd.Dir = options.WorkDir
	// SIGINT first so the CLI can flush conversation state for later
	// resumption; WaitDelay escalates to SIGKILL if it lingers.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = exitGrace

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("agent: creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("agent: creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("agent: creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("agent: starting %s: %w", r.binary, err)
	}

	r.logger.Debug("agent process started",
		"binary", r.binary,
		"pid", cmd.Process.Pid,
		"workdir", options.WorkDir,
		"mode", options.Mode,
		"resuming", options.ResumeID != "")

	query := &Query{
		events:  make(chan Event, 64),
		stdin:   stdin,
		pending: newPendingControls(),
		cancel:  cancel,
		logger:  r.logger,
	}

	go query.pump(procCtx, cmd, stdout, stderr)

	if err := query.sendPrompt(options.Prompt); err != nil {
		query.Close()
		return nil, fmt.Errorf("agent: sending prompt: %w", err)
	}
	return query, nil
}

// pump streams stdout lines into events, then reaps the process. Runs
// as a goroutine for the lifetime of the query.
func (q *Query) pump(ctx context.Context, cmd *exec.Cmd, stdout, stderr io.Reader) {
	defer close(q.events)
	defer q.cancel()

	stderrDone := collectStderr(stderr)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
scan:
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		for _, event := range parseLine(line, q.pending, q.logger) {
			select {
			case q.events <- event:
			case <-ctx.Done():
				break scan
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		q.logger.Warn("agent stdout read failed", "error", err)
	}

	// The CLI writes its crash output to stderr; hold briefly for the
	// drain so the error event can carry it.
	var stderrTail string
	select {
	case stderrTail = <-stderrDone:
	case <-time.After(stderrGrace):
	}

	// Close our end of stdin before Wait so a process blocked reading
	// it exits instead of deadlocking the reap.
	q.stdinMu.Lock()
	q.stdin.Close()
	q.stdinMu.Unlock()

	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		message := strings.TrimSpace(stderrTail)
		if message == "" {
			message = err.Error()
		}
		select {
		case q.events <- ErrorEvent{Message: message}:
		case <-ctx.Done():
		}
	}
	q.logger.Debug("agent process exited", "pid", cmd.Process.Pid)
}

// collectStderr drains stderr in the background and delivers the
// accumulated text once the pipe closes.
func collectStderr(stderr io.Reader) <-chan string {
	done := make(chan string, 1)
	go func() {
		var tail strings.Builder
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			tail.WriteString(scanner.Text())
			tail.WriteByte('\n')
		}
		done <- tail.String()
	}()
	return done
}
