// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the switchboard daemon.
type Config struct {
	// Homeserver configures the Matrix connection.
	Homeserver HomeserverConfig `yaml:"homeserver"`

	// Rooms configures which rooms are served and who may drive them.
	Rooms RoomsConfig `yaml:"rooms"`

	// Agent configures the agent process behind each session.
	Agent AgentConfig `yaml:"agent"`

	// Render configures output pacing and size limits.
	Render RenderConfig `yaml:"render"`

	// Console configures the tmux-hosted legacy transport.
	Console ConsoleConfig `yaml:"console"`

	// Daemon configures process-level concerns (sockets, logs).
	Daemon DaemonConfig `yaml:"daemon"`
}

// HomeserverConfig configures the Matrix connection.
type HomeserverConfig struct {
	// URL is the homeserver base URL (e.g. https://matrix.example.org).
	URL string `yaml:"url"`

	// UserID is the full Matrix user ID the daemon acts as.
	UserID string `yaml:"user_id"`

	// TokenFile is the path to the access token. A plain file must be
	// mode 0600; a file ending in .age is treated as a sealed
	// credential file and decrypted with the passphrase from
	// PassphraseEnv (see switchboard-credentials).
	TokenFile string `yaml:"token_file"`

	// PassphraseEnv names the environment variable holding the
	// passphrase for a sealed token file. Default: SWITCHBOARD_PASSPHRASE.
	PassphraseEnv string `yaml:"passphrase_env"`
}

// RoomsConfig configures room membership and the sender allow-list.
type RoomsConfig struct {
	// Channels lists the rooms to bridge, by alias (#x:server) or ID
	// (!x:server). Aliases are resolved once at startup. Empty means
	// every room the daemon account has joined.
	Channels []string `yaml:"channels"`

	// AllowedSenders lists the Matrix user IDs permitted to drive
	// sessions. Events from other senders are ignored. Must not be
	// empty: an open bridge would hand shell access to anyone the
	// homeserver lets into a room.
	AllowedSenders []string `yaml:"allowed_senders"`
}

// AgentConfig configures the agent process.
type AgentConfig struct {
	// Mode selects the transport: "headless" (stream-json stdio
	// control protocol) or "console" (tmux-hosted CLI, snapshot
	// polling). Default: headless.
	Mode string `yaml:"mode"`

	// Binary is the agent CLI executable. Default: claude.
	Binary string `yaml:"binary"`

	// ExtraArgs are appended to the generated argument list.
	ExtraArgs []string `yaml:"extra_args"`

	// WorkDirRoot is the default working directory for new sessions.
	// Each session may change its own directory with the cd command;
	// targets must exist at the time of the command.
	WorkDirRoot string `yaml:"workdir_root"`

	// AllowlistFile is the JSONC file of auto-approve rules. Empty
	// disables auto-approval entirely (every tool use asks).
	AllowlistFile string `yaml:"allowlist_file"`
}

// RenderConfig configures output pacing and size limits.
type RenderConfig struct {
	// RotationInterval is how old a chat message may grow before
	// output rotates to a fresh message. Duration string. Default: 60s.
	RotationInterval string `yaml:"rotation_interval"`

	// UpdateInterval is the minimum spacing between edits to the
	// current output message. Duration string. Default: 1s.
	UpdateInterval string `yaml:"update_interval"`

	// HardLimitChars is the message size at which output moves to a
	// file upload instead. Default: 3000.
	HardLimitChars int `yaml:"hard_limit_chars"`

	// PreviewChars is the length of the on-surface preview that
	// accompanies a file upload. Default: 400.
	PreviewChars int `yaml:"preview_chars"`
}

// ConsoleConfig configures the tmux-hosted transport.
type ConsoleConfig struct {
	// SocketPath is the dedicated tmux server socket.
	SocketPath string `yaml:"socket_path"`

	// SessionPrefix is prepended to the channel-derived name of each
	// tmux session. Default: swb-.
	SessionPrefix string `yaml:"session_prefix"`

	// PollInterval is the pane snapshot polling cadence. Duration
	// string. Default: 2s.
	PollInterval string `yaml:"poll_interval"`

	// CaptureLines bounds each pane snapshot. Default: 120.
	CaptureLines int `yaml:"capture_lines"`
}

// DaemonConfig configures process-level concerns.
type DaemonConfig struct {
	// Root is the base directory for switchboard runtime data.
	Root string `yaml:"root"`

	// StatusSocket is the Unix socket for the admin status API.
	StatusSocket string `yaml:"status_socket"`

	// LogDir is where the session JSONL log is written.
	// Empty disables session logging.
	LogDir string `yaml:"log_dir"`

	// LogLevel is debug, info, warn, or error. Default: info.
	LogLevel string `yaml:"log_level"`

	// LogFormat is text or json. Default: text.
	LogFormat string `yaml:"log_format"`
}

// Agent transport modes.
const (
	ModeHeadless = "headless"
	ModeConsole  = "console"
)

// Default returns the default configuration. Defaults exist to give
// every field a sensible value before the file is merged in; the
// config file itself is still required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "state", "switchboard")

	return &Config{
		Homeserver: HomeserverConfig{
			PassphraseEnv: "SWITCHBOARD_PASSPHRASE",
		},
		Agent: AgentConfig{
			Mode:        ModeHeadless,
			Binary:      "claude",
			WorkDirRoot: homeDir,
		},
		Render: RenderConfig{
			RotationInterval: "60s",
			UpdateInterval:   "1s",
			HardLimitChars:   3000,
			PreviewChars:     400,
		},
		Console: ConsoleConfig{
			SocketPath:    filepath.Join(defaultRoot, "tmux.sock"),
			SessionPrefix: "swb-",
			PollInterval:  "2s",
			CaptureLines:  120,
		},
		Daemon: DaemonConfig{
			Root:         defaultRoot,
			StatusSocket: filepath.Join(defaultRoot, "status.sock"),
			LogDir:       filepath.Join(defaultRoot, "log"),
			LogLevel:     "info",
			LogFormat:    "text",
		},
	}
}

// Load loads configuration from the SWITCHBOARD_CONFIG environment
// variable. There are no fallbacks: if the variable is not set, this
// fails with instructions.
func Load() (*Config, error) {
	configPath := os.Getenv("SWITCHBOARD_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("SWITCHBOARD_CONFIG environment variable not set; " +
			"set it to the path of your switchboard.yaml, or use the --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merges it
// over the defaults, expands path variables, and validates.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s:\n%w", path, err)
	}
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in the
// path-valued fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"SWITCHBOARD_ROOT": c.Daemon.Root,
		"HOME":             os.Getenv("HOME"),
	}

	c.Daemon.Root = expandVars(c.Daemon.Root, vars)
	vars["SWITCHBOARD_ROOT"] = c.Daemon.Root // dependent paths see the expanded root

	c.Daemon.StatusSocket = expandVars(c.Daemon.StatusSocket, vars)
	c.Daemon.LogDir = expandVars(c.Daemon.LogDir, vars)
	c.Homeserver.TokenFile = expandVars(c.Homeserver.TokenFile, vars)
	c.Agent.WorkDirRoot = expandVars(c.Agent.WorkDirRoot, vars)
	c.Agent.AllowlistFile = expandVars(c.Agent.AllowlistFile, vars)
	c.Console.SocketPath = expandVars(c.Console.SocketPath, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, checking the
// provided vars first and the process environment second.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration, collecting every failure rather
// than stopping at the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Homeserver.URL == "" {
		errs = append(errs, fmt.Errorf("homeserver.url is required"))
	}
	if c.Homeserver.UserID == "" {
		errs = append(errs, fmt.Errorf("homeserver.user_id is required"))
	}
	if c.Homeserver.TokenFile == "" {
		errs = append(errs, fmt.Errorf("homeserver.token_file is required"))
	}

	if len(c.Rooms.AllowedSenders) == 0 {
		errs = append(errs, fmt.Errorf("rooms.allowed_senders must list at least one user ID"))
	}

	if c.Agent.Mode != ModeHeadless && c.Agent.Mode != ModeConsole {
		errs = append(errs, fmt.Errorf("agent.mode must be %q or %q, got %q",
			ModeHeadless, ModeConsole, c.Agent.Mode))
	}
	if c.Agent.Binary == "" {
		errs = append(errs, fmt.Errorf("agent.binary is required"))
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"render.rotation_interval", c.Render.RotationInterval},
		{"render.update_interval", c.Render.UpdateInterval},
		{"console.poll_interval", c.Console.PollInterval},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field.name, err))
		}
	}

	if c.Render.HardLimitChars <= 0 {
		errs = append(errs, fmt.Errorf("render.hard_limit_chars must be positive"))
	}
	if c.Render.PreviewChars <= 0 || c.Render.PreviewChars >= c.Render.HardLimitChars {
		errs = append(errs, fmt.Errorf("render.preview_chars must be positive and below render.hard_limit_chars"))
	}
	if c.Console.CaptureLines <= 0 {
		errs = append(errs, fmt.Errorf("console.capture_lines must be positive"))
	}

	switch c.Daemon.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("daemon.log_level must be debug, info, warn, or error"))
	}
	switch c.Daemon.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("daemon.log_format must be text or json"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Rotation returns the parsed rotation interval. Call after Validate.
func (c *RenderConfig) Rotation() time.Duration {
	d, _ := time.ParseDuration(c.RotationInterval)
	return d
}

// Update returns the parsed update interval. Call after Validate.
func (c *RenderConfig) Update() time.Duration {
	d, _ := time.ParseDuration(c.UpdateInterval)
	return d
}

// Poll returns the parsed poll interval. Call after Validate.
func (c *ConsoleConfig) Poll() time.Duration {
	d, _ := time.ParseDuration(c.PollInterval)
	return d
}

// EnsurePaths creates the runtime directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Daemon.Root,
		c.Daemon.LogDir,
		filepath.Dir(c.Daemon.StatusSocket),
		filepath.Dir(c.Console.SocketPath),
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
