// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import "fmt"

// PermissionMode controls how the CLI gates tool use for a query.
type PermissionMode int

const (
	// ModeDefault asks for approval of anything not pre-authorized.
	ModeDefault PermissionMode = iota
	// ModeAcceptEdits auto-approves edits under the working directory.
	ModeAcceptEdits
	// ModeBypass skips permission prompts entirely.
	ModeBypass
)

// String returns the operator-facing form, as used by the mode command
// and the status output.
func (m PermissionMode) String() string {
	switch m {
	case ModeAcceptEdits:
		return "accept-edits"
	case ModeBypass:
		return "bypass"
	}
	return "default"
}

// MarshalText implements encoding.TextMarshaler.
func (m PermissionMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *PermissionMode) UnmarshalText(text []byte) error {
	mode, err := ParsePermissionMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// CLIValue returns the value the claude CLI expects for
// --permission-mode.
func (m PermissionMode) CLIValue() string {
	switch m {
	case ModeAcceptEdits:
		return "acceptEdits"
	case ModeBypass:
		return "bypassPermissions"
	}
	return "default"
}

// ParsePermissionMode reads the operator-facing form.
func ParsePermissionMode(s string) (PermissionMode, error) {
	switch s {
	case "default", "":
		return ModeDefault, nil
	case "accept-edits", "acceptedits":
		return ModeAcceptEdits, nil
	case "bypass":
		return ModeBypass, nil
	}
	return ModeDefault, fmt.Errorf("agent: unknown permission mode %q (want default, accept-edits, or bypass)", s)
}
