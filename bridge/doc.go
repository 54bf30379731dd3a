// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge connects chat rooms to agent sessions.
//
// A [Bridge] consumes the homeserver sync stream and gives every room
// its own controller goroutine. The controller owns all of the room's
// state transitions: it parses operator commands (cd, mode, abort,
// close, resume, status, help), launches agent queries for everything
// else, renders the agent's output back into the room, and carries
// tool approvals and questions through their surface round-trip.
//
// Two variants share the surface behavior. The headless variant runs
// one agent process per query over the stream-JSON protocol and is the
// fully structured path: approvals arrive as control requests and are
// answered by reacting to or replying to prompt messages, or silently
// through the configured allow-list. The console variant drives a
// long-lived CLI inside a tmux pane, forwarding messages as keystrokes
// and publishing cleaned pane snapshots; approvals happen inside the
// pane's own UI.
//
// Every query carries a token issued by its session. Events, stream
// closures, and surface decisions are all tagged with it, and the
// controller drops anything whose token no longer matches, so an
// aborted or superseded query cannot touch the state of its successor.
package bridge
