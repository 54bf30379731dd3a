// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package session tracks one agent conversation per Matrix room.
//
// A [Session] records the conversation's resumable identifier, working
// directory, permission mode, and cumulative token usage, and enforces
// the single-flight rule: at most one query runs per room, and
// starting a new one cancels its predecessor. Each query holds a
// monotonic token; events from a query whose token is no longer active
// are stale and must be dropped.
//
// The [Registry] maps rooms to sessions with serialized creation. It
// carries no lifecycle policy of its own; interrupting, closing, and
// replacing sessions are controller decisions.
package session
