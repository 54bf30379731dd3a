// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// switchboard-attach attaches the current terminal to a channel's
// console tmux session.
//
// With one live console it attaches straight away. With several, an
// optional query argument narrows them by fuzzy match over the room
// ID and tmux session name; anything still ambiguous falls back to a
// numbered prompt. Detach with the usual tmux binding (Ctrl-b d); the
// daemon keeps bridging the pane to the room either way.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/switchboard-dev/switchboard/lib/config"
	"github.com/switchboard-dev/switchboard/lib/fuzzy"
	"github.com/switchboard-dev/switchboard/lib/process"
	"github.com/switchboard-dev/switchboard/lib/statusapi"
	"github.com/switchboard-dev/switchboard/lib/tmux"
	"github.com/switchboard-dev/switchboard/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

// statusTimeout bounds the two status API round-trips. The attach
// itself blocks for as long as the user stays attached.
const statusTimeout = 5 * time.Second

func run() error {
	var (
		socketPath string
		configPath string
	)

	flagSet := pflag.NewFlagSet("switchboard-attach", pflag.ContinueOnError)
	flagSet.StringVar(&socketPath, "socket", "", "daemon status socket (default: from config)")
	flagSet.StringVar(&configPath, "config", "", "daemon config file, used to locate the status socket")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("switchboard-attach")
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

	args := flagSet.Args()
	if len(args) > 1 {
		return fmt.Errorf("at most one query argument, got %d", len(args))
	}
	query := ""
	if len(args) == 1 {
		query = args[0]
	}

	socket, err := statusSocket(socketPath, configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	client := statusapi.NewClient(socket)
	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("reaching the daemon at %s: %w (is switchboard running?)", socket, err)
	}
	if status.Variant != config.ModeConsole {
		return fmt.Errorf("the daemon runs the %s variant; there are no console sessions to attach", status.Variant)
	}

	entries, err := client.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	var candidates []statusapi.SessionEntry
	for _, entry := range entries {
		if entry.ConsoleRunning {
			candidates = append(candidates, entry)
		}
	}
	if len(candidates) == 0 {
		return errors.New("no console sessions are running; send a message in a bridged room to start one")
	}

	selected, err := pick(candidates, query)
	if err != nil {
		return err
	}
	return attach(status.ConsoleSocket, selected.ConsoleName)
}

// pick narrows the candidates to one: by fuzzy query when given, by
// numbered prompt when the query leaves more than one, directly when
// only one console is live.
func pick(candidates []statusapi.SessionEntry, query string) (statusapi.SessionEntry, error) {
	if query != "" {
		matched := rank(candidates, query)
		if len(matched) == 0 {
			return statusapi.SessionEntry{}, fmt.Errorf("nothing matches %q; running consoles:\n%s", query, describe(candidates))
		}
		candidates = matched
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	return choose(candidates)
}

// rank orders the candidates by fuzzy match quality against query,
// dropping non-matches. Ties keep the daemon's ordering.
func rank(candidates []statusapi.SessionEntry, query string) []statusapi.SessionEntry {
	type scored struct {
		entry statusapi.SessionEntry
		score int
	}
	pattern := []rune(query)
	slab := fuzzy.NewSlab()
	var matches []scored
	for _, entry := range candidates {
		label := entry.Room.String() + " " + entry.ConsoleName
		result := fuzzy.Match(label, pattern, slab)
		if result.Score > 0 {
			matches = append(matches, scored{entry: entry, score: result.Score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	ranked := make([]statusapi.SessionEntry, len(matches))
	for i, match := range matches {
		ranked[i] = match.entry
	}
	return ranked
}

func choose(candidates []statusapi.SessionEntry) (statusapi.SessionEntry, error) {
	fmt.Fprintln(os.Stderr, "Several console sessions are running:")
	fmt.Fprint(os.Stderr, describe(candidates))
	fmt.Fprint(os.Stderr, "Attach to which? ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return statusapi.SessionEntry{}, fmt.Errorf("reading selection: %w", err)
		}
		return statusapi.SessionEntry{}, errors.New("no selection")
	}
	index, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil || index < 1 || index > len(candidates) {
		return statusapi.SessionEntry{}, fmt.Errorf("selection must be a number between 1 and %d", len(candidates))
	}
	return candidates[index-1], nil
}

func describe(candidates []statusapi.SessionEntry) string {
	var b strings.Builder
	for i, entry := range candidates {
		fmt.Fprintf(&b, "  %d. %s (%s, %s)\n", i+1, entry.Room, entry.ConsoleName, entry.State)
	}
	return b.String()
}

// attach replaces this terminal with tmux until the user detaches.
// Console panes live on the daemon's dedicated tmux server, never the
// operator's personal one.
func attach(consoleSocket, sessionName string) error {
	server := tmux.NewServer(consoleSocket, "/dev/null")
	cmd := server.Command("attach", "-t", sessionName)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// statusSocket resolves where the daemon listens: the explicit flag,
// then the config file (explicit path or $SWITCHBOARD_CONFIG), then
// the default-config location.
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
	fmt.Fprintf(os.Stderr, `Attach this terminal to a switchboard console tmux session.

USAGE
    switchboard-attach [flags] [query]

The optional query fuzzily matches room IDs and tmux session names.
One match attaches immediately; several fall back to a numbered
prompt. Only the console variant of the daemon hosts tmux sessions.

FLAGS
`)
	flagSet.PrintDefaults()
}
