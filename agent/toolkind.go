// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package agent

// ToolKind classifies the CLI's built-in tools so display code can
// dispatch on a closed set instead of comparing name strings.
type ToolKind int

const (
	// ToolUnknown covers tools outside the built-in set, including
	// MCP-served tools.
	ToolUnknown ToolKind = iota
	ToolBash
	ToolRead
	ToolWrite
	ToolEdit
	ToolGlob
	ToolGrep
	ToolWebFetch
	ToolWebSearch
	ToolTask
	ToolTodoWrite
	ToolAskQuestion
)

var toolKindNames = map[string]ToolKind{
	"Bash":            ToolBash,
	"Read":            ToolRead,
	"Write":           ToolWrite,
	"Edit":            ToolEdit,
	"MultiEdit":       ToolEdit,
	"NotebookEdit":    ToolEdit,
	"Glob":            ToolGlob,
	"Grep":            ToolGrep,
	"WebFetch":        ToolWebFetch,
	"WebSearch":       ToolWebSearch,
	"Task":            ToolTask,
	"TodoWrite":       ToolTodoWrite,
	"AskUserQuestion": ToolAskQuestion,
}

// KindOfTool maps a wire tool name to its kind.
func KindOfTool(name string) ToolKind {
	return toolKindNames[name]
}

func (k ToolKind) String() string {
	switch k {
	case ToolBash:
		return "bash"
	case ToolRead:
		return "read"
	case ToolWrite:
		return "write"
	case ToolEdit:
		return "edit"
	case ToolGlob:
		return "glob"
	case ToolGrep:
		return "grep"
	case ToolWebFetch:
		return "web-fetch"
	case ToolWebSearch:
		return "web-search"
	case ToolTask:
		return "task"
	case ToolTodoWrite:
		return "todo"
	case ToolAskQuestion:
		return "question"
	}
	return "unknown"
}
