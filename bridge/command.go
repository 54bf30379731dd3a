// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import "strings"

// commandKind routes an inbound message. Everything that is not a
// recognized command is a prompt for the agent.
type commandKind int

const (
	commandPrompt commandKind = iota
	commandCd
	commandMode
	commandAbort
	commandClose
	commandResume
	commandStatus
	commandHelp
)

type command struct {
	kind commandKind

	// arg is the remainder after the keyword for cd, mode, and
	// resume. Empty when the keyword stood alone; handlers turn that
	// into a usage error.
	arg string
}

// parseCommand routes text by its leading keyword. Bare keywords like
// "status" are commands; the same word leading a longer sentence is
// treated as prose and becomes a prompt, so "status of the build?"
// still reaches the agent.
func parseCommand(text string) command {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return command{kind: commandPrompt}
	}
	keyword := strings.ToLower(fields[0])

	switch keyword {
	case "abort", "close", "status", "help":
		if len(fields) == 1 {
			return command{kind: bareCommands[keyword]}
		}
		return command{kind: commandPrompt}
	case "cd", "mode", "resume":
		arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), fields[0]))
		return command{kind: argCommands[keyword], arg: arg}
	}
	return command{kind: commandPrompt}
}

var bareCommands = map[string]commandKind{
	"abort":  commandAbort,
	"close":  commandClose,
	"status": commandStatus,
	"help":   commandHelp,
}

var argCommands = map[string]commandKind{
	"cd":     commandCd,
	"mode":   commandMode,
	"resume": commandResume,
}

const helpText = `Commands:
  cd <dir>       set the working directory (absolute path)
  mode <name>    set the permission mode: default, accept-edits, bypass
  resume <id>    continue a recorded conversation on the next message
  status         show session state, mode, and usage
  abort          interrupt the running query, keep the conversation
  close          end the session and discard the conversation
  help           this text
Anything else is sent to the agent as a prompt.`
