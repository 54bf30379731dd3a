// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package console hosts agents inside tmux panes, the transport that
// predates the headless stream protocol.
//
// Each room gets one tmux session under a canonical hashed name.
// Inbound messages are typed into the pane; output is observed by
// polling capture-pane, cleaning the snapshot, and emitting it when it
// changes. The agent's own terminal interface handles approvals and
// questions, so this transport carries no structured correlation;
// operators who want to act on a prompt attach to the pane.
//
// Consoles deliberately outlive the daemon. [Host.Ensure] reattaches
// to a surviving session instead of spawning a duplicate, and
// [Host.Shutdown] stops the poll loops but leaves the panes running.
package console
