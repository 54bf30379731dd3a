// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Switchboard is the bridge daemon. It connects one Matrix account to
// the Claude Code CLI and serves every configured room from a single
// process: each room gets its own independent agent session, driven by
// ordinary chat messages, 👍/👎 reactions on approval prompts, and the
// small in-room command language (cd, mode, abort, status, close).
//
// On startup the daemon:
//  1. Loads the YAML config (--config, or $SWITCHBOARD_CONFIG).
//  2. Unseals the Matrix access token and validates the session.
//  3. Resolves and joins the configured channels.
//  4. Starts the agent backend: the headless stream-json runner, or
//     the tmux console host for the legacy variant.
//  5. Serves the local status API and enters the sync loop.
//
// SIGINT/SIGTERM stop the sync loop and shut the bridge down. Console
// tmux sessions are left running for later re-attach.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/switchboard-dev/switchboard/agent"
	"github.com/switchboard-dev/switchboard/bridge"
	"github.com/switchboard-dev/switchboard/console"
	"github.com/switchboard-dev/switchboard/lib/allowlist"
	"github.com/switchboard-dev/switchboard/lib/clock"
	"github.com/switchboard-dev/switchboard/lib/config"
	"github.com/switchboard-dev/switchboard/lib/credfile"
	"github.com/switchboard-dev/switchboard/lib/process"
	"github.com/switchboard-dev/switchboard/lib/ref"
	"github.com/switchboard-dev/switchboard/lib/sessionlog"
	"github.com/switchboard-dev/switchboard/lib/statusapi"
	"github.com/switchboard-dev/switchboard/lib/tmux"
	"github.com/switchboard-dev/switchboard/lib/version"
	"github.com/switchboard-dev/switchboard/messaging"
	"github.com/switchboard-dev/switchboard/render"
	"github.com/switchboard-dev/switchboard/session"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath string
		logLevel   string
		logFormat  string
	)

	flagSet := pflag.NewFlagSet("switchboard", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (default: $SWITCHBOARD_CONFIG)")
	flagSet.StringVar(&logLevel, "log-level", "", "override the configured log level (debug|info|warn|error)")
	flagSet.StringVar(&logFormat, "log-format", "", "override the configured log format (text|json)")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match the other
	// switchboard binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("switchboard")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Daemon.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Daemon.LogFormat = logFormat
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Daemon)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logger.Info("switchboard starting", "version", version.Info(), "mode", cfg.Agent.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	startedAt := clk.Now()

	token, err := credfile.LoadToken(cfg.Homeserver.TokenFile, cfg.Homeserver.PassphraseEnv)
	if err != nil {
		return fmt.Errorf("loading access token: %w", err)
	}
	defer token.Close()

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Homeserver.URL,
		Logger:        logger.With("component", "messaging"),
	})
	if err != nil {
		return fmt.Errorf("creating matrix client: %w", err)
	}
	userID, err := ref.ParseUserID(cfg.Homeserver.UserID)
	if err != nil {
		return fmt.Errorf("config homeserver.user_id: %w", err)
	}
	chatSession := client.SessionFromToken(userID, token)
	defer chatSession.Close()

	whoami, err := chatSession.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("validating matrix session: %w", err)
	}
	if whoami != userID {
		return fmt.Errorf("access token belongs to %s, config says %s", whoami, userID)
	}
	logger.Info("matrix session valid", "user_id", userID)

	rooms, err := resolveRooms(ctx, chatSession, cfg.Rooms.Channels)
	if err != nil {
		return err
	}
	senders, err := parseSenders(cfg.Rooms.AllowedSenders)
	if err != nil {
		return err
	}

	var allow *allowlist.List
	if cfg.Agent.AllowlistFile != "" {
		list, stopWatch, err := allowlist.Watch(cfg.Agent.AllowlistFile, logger.With("component", "allowlist"))
		if err != nil {
			return fmt.Errorf("loading allowlist: %w", err)
		}
		defer stopWatch()
		allow = list
		logger.Info("allowlist loaded", "rules", list.Len(), "path", cfg.Agent.AllowlistFile)
	}

	sessionLogPath := filepath.Join(cfg.Daemon.LogDir, "sessions.jsonl")
	transcript, err := sessionlog.Open(sessionLogPath, clk)
	if err != nil {
		return fmt.Errorf("opening session log: %w", err)
	}
	defer transcript.Close()

	registry := session.NewRegistry(session.Defaults{WorkDir: cfg.Agent.WorkDirRoot}, clk, logger.With("component", "session"))

	var (
		starter  bridge.AgentStarter
		consoles *console.Host
	)
	switch cfg.Agent.Mode {
	case config.ModeHeadless:
		runner := agent.NewRunner(cfg.Agent.Binary, cfg.Agent.ExtraArgs, logger.With("component", "agent"))
		starter = bridge.NewRunnerStarter(runner)
	case config.ModeConsole:
		terminal := tmux.NewServer(cfg.Console.SocketPath, "/dev/null")
		command := append([]string{cfg.Agent.Binary}, cfg.Agent.ExtraArgs...)
		consoles = console.NewHost(terminal, console.Config{
			Command:       command,
			SessionPrefix: cfg.Console.SessionPrefix,
			PollInterval:  cfg.Console.Poll(),
			CaptureLines:  cfg.Console.CaptureLines,
		}, clk, logger.With("component", "console"))
	default:
		return fmt.Errorf("unknown agent mode %q", cfg.Agent.Mode)
	}

	br, err := bridge.New(bridge.Options{
		Surface:    chatSession,
		Self:       userID,
		Senders:    senders,
		Starter:    starter,
		Consoles:   consoles,
		Registry:   registry,
		Allowlist:  allow,
		Transcript: transcript,
		Render: render.Config{
			RotationInterval: cfg.Render.Rotation(),
			UpdateInterval:   cfg.Render.Update(),
			HardLimitChars:   cfg.Render.HardLimitChars,
			PreviewChars:     cfg.Render.PreviewChars,
		},
		Clock:  clk,
		Logger: logger.With("component", "bridge"),
	})
	if err != nil {
		return err
	}
	defer br.Shutdown()

	consoleSocket := ""
	if consoles != nil {
		consoleSocket = cfg.Console.SocketPath
	}
	statusServer := statusapi.NewServer(statusapi.Config{
		SocketPath: cfg.Daemon.StatusSocket,
		Source: &statusSource{
			registry: registry,
			consoles: consoles,
			prefix:   cfg.Console.SessionPrefix,
		},
		Variant:       cfg.Agent.Mode,
		ConsoleSocket: consoleSocket,
		SessionLog:    sessionLogPath,
		Version:       version.Info(),
		StartedAt:     startedAt,
		Logger:        logger.With("component", "statusapi"),
	})
	statusErrs := make(chan error, 1)
	go func() { statusErrs <- statusServer.Serve(ctx) }()
	select {
	case <-statusServer.Ready():
	case err := <-statusErrs:
		return fmt.Errorf("status api: %w", err)
	case <-ctx.Done():
		return nil
	}
	go func() {
		if err := <-statusErrs; err != nil {
			logger.Error("status api stopped", "error", err)
		}
	}()

	stream, err := messaging.OpenStream(ctx, chatSession, messaging.StreamConfig{
		Rooms:  rooms,
		Logger: logger.With("component", "stream"),
	})
	if err != nil {
		return fmt.Errorf("opening sync stream: %w", err)
	}
	logger.Info("bridging", "rooms", len(rooms), "senders", len(senders))

	for {
		roomEvent, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down", "position", stream.Position())
				return nil
			}
			return fmt.Errorf("sync stream: %w", err)
		}
		br.HandleEvent(ctx, roomEvent)
	}
}

// loadConfig reads the explicit path when given, otherwise falls back
// to $SWITCHBOARD_CONFIG.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newLogger(cfg config.DaemonConfig) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}

	options := &slog.HandlerOptions{Level: level}
	switch cfg.LogFormat {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, options)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, options)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
}

// resolveRooms turns the configured channel list into room IDs,
// resolving aliases and joining each room. Joining an already-joined
// room is a no-op on the homeserver.
func resolveRooms(ctx context.Context, chatSession *messaging.DirectSession, channels []string) ([]ref.RoomID, error) {
	rooms := make([]ref.RoomID, 0, len(channels))
	for _, channel := range channels {
		var room ref.RoomID
		switch {
		case strings.HasPrefix(channel, "#"):
			alias, err := ref.ParseRoomAlias(channel)
			if err != nil {
				return nil, fmt.Errorf("config rooms.channels: %w", err)
			}
			resolved, err := chatSession.ResolveAlias(ctx, alias)
			if err != nil {
				return nil, fmt.Errorf("resolving %s: %w", channel, err)
			}
			room = resolved
		default:
			parsed, err := ref.ParseRoomID(channel)
			if err != nil {
				return nil, fmt.Errorf("config rooms.channels: %w", err)
			}
			room = parsed
		}
		if _, err := chatSession.JoinRoom(ctx, room); err != nil {
			return nil, fmt.Errorf("joining %s: %w", channel, err)
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func parseSenders(raw []string) ([]ref.UserID, error) {
	senders := make([]ref.UserID, 0, len(raw))
	for _, entry := range raw {
		userID, err := ref.ParseUserID(entry)
		if err != nil {
			return nil, fmt.Errorf("config rooms.allowed_senders: %w", err)
		}
		senders = append(senders, userID)
	}
	return senders, nil
}

// statusSource feeds the status API from live daemon state. Console
// fields are only populated for the console variant.
type statusSource struct {
	registry *session.Registry
	consoles *console.Host
	prefix   string
}

func (s *statusSource) Snapshot() []statusapi.SessionEntry {
	statuses := s.registry.Snapshot()
	entries := make([]statusapi.SessionEntry, 0, len(statuses))
	for _, status := range statuses {
		entry := statusapi.SessionEntry{Status: status}
		if s.consoles != nil {
			entry.ConsoleRunning = s.consoles.Alive(status.Room)
			entry.ConsoleName = console.SessionName(s.prefix, status.Room)
		}
		entries = append(entries, entry)
	}
	return entries
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Switchboard bridges Matrix rooms to Claude Code sessions.

Each configured room gets an independent agent session. Messages from
allowed senders become prompts; tool-use approvals arrive as in-room
prompts answered with 👍/👎 reactions or replies; cd, mode, abort,
status, and close manage the session.

USAGE
    switchboard [flags]

The config file is YAML; see the homeserver, rooms, agent, render,
console, and daemon sections. The path comes from --config or the
SWITCHBOARD_CONFIG environment variable.

FLAGS
`)
	flagSet.PrintDefaults()
}
