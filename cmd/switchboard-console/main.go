// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// switchboard-console is the live dashboard for a running daemon. It
// polls the status socket for the session table and tails the session
// log for the selected channel's transcript.
package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/switchboard-dev/switchboard/lib/config"
	"github.com/switchboard-dev/switchboard/lib/consoleui"
	"github.com/switchboard-dev/switchboard/lib/process"
	"github.com/switchboard-dev/switchboard/lib/statusapi"
	"github.com/switchboard-dev/switchboard/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		socketPath string
		configPath string
		logPath    string
		interval   time.Duration
	)
	flagSet := pflag.NewFlagSet("switchboard-console", pflag.ContinueOnError)
	flagSet.StringVar(&socketPath, "socket", "", "daemon status socket (default: from config)")
	flagSet.StringVar(&configPath, "config", "", "daemon config file to read the socket path from")
	flagSet.StringVar(&logPath, "log", "", "session log file (default: the path the daemon reports)")
	flagSet.DurationVar(&interval, "interval", 2*time.Second, "status poll interval")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("switchboard-console")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
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

	socket, err := statusSocket(socketPath, configPath)
	if err != nil {
		return err
	}

	model := consoleui.NewModel(consoleui.Config{
		Source:       statusapi.NewClient(socket),
		PollInterval: interval,
		SessionLog:   logPath,
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseAllMotion())
	_, err = program.Run()
	return err
}

// statusSocket resolves the daemon's status socket path: the --socket
// flag, then --config, then $SWITCHBOARD_CONFIG, then the built-in
// default.
func statusSocket(socketPath, configPath string) (string, error) {
	if socketPath != "" {
		return socketPath, nil
	}
	if configPath != "" {
		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return "", err
		}
		return cfg.Daemon.StatusSocket, nil
	}
	if os.Getenv("SWITCHBOARD_CONFIG") != "" {
		cfg, err := config.Load()
		if err != nil {
			return "", err
		}
		return cfg.Daemon.StatusSocket, nil
	}
	return config.Default().Daemon.StatusSocket, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Switchboard dashboard: live session table and transcript.

Polls the daemon's status socket for the session list and reads the
session log for the selected channel's transcript. Both live on the
daemon's host, so run this where the daemon runs.

Keys: Tab switches panes, / filters the table, f pins the transcript
to its tail, r forces a refresh, q quits.

Usage:
  switchboard-console [flags]

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
