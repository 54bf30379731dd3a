// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/switchboard-dev/switchboard/session"
)

// Theme defines the dashboard's color palette. All colors use lipgloss
// ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Selected table row.
	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// Session lifecycle states.
	StateIdle      lipgloss.Color
	StateActive    lipgloss.Color
	StateCompleted lipgloss.Color
	StateAborted   lipgloss.Color
	StateErrored   lipgloss.Color
	StateClosed    lipgloss.Color

	// UI chrome.
	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color
	ErrorText        lipgloss.Color

	// Transcript entry accents.
	PromptSender   lipgloss.Color
	ApprovalAllow  lipgloss.Color
	ApprovalDeny   lipgloss.Color
	TranscriptMeta lipgloss.Color
}

// StateColor returns the color for a session lifecycle state. Unknown
// values return FaintText.
func (theme Theme) StateColor(state session.State) lipgloss.Color {
	switch state {
	case session.StateIdle:
		return theme.StateIdle
	case session.StateActive:
		return theme.StateActive
	case session.StateCompleted:
		return theme.StateCompleted
	case session.StateAborted:
		return theme.StateAborted
	case session.StateErrored:
		return theme.StateErrored
	case session.StateClosed:
		return theme.StateClosed
	default:
		return theme.FaintText
	}
}

// DefaultTheme is the built-in dark-terminal color scheme. Designed
// for 256-color terminals with a dark background, the common case for
// the tmux sessions this dashboard tends to live next to.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	StateIdle:      lipgloss.Color("245"), // gray
	StateActive:    lipgloss.Color("220"), // amber
	StateCompleted: lipgloss.Color("114"), // green
	StateAborted:   lipgloss.Color("208"), // orange
	StateErrored:   lipgloss.Color("196"), // red
	StateClosed:    lipgloss.Color("240"), // dim gray

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),
	ErrorText:        lipgloss.Color("196"),

	PromptSender:   lipgloss.Color("75"),  // blue
	ApprovalAllow:  lipgloss.Color("114"), // green
	ApprovalDeny:   lipgloss.Color("196"), // red
	TranscriptMeta: lipgloss.Color("245"), // gray
}
