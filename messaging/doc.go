// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the Matrix client-server API for the bridge
// daemon.
//
// [Client] is an unauthenticated Matrix client holding the homeserver
// URL and HTTP transport. It produces authenticated [DirectSession]
// values, either by password login (the switchboard-credentials setup
// path) or from a stored access token (the daemon's normal path). The
// access token lives in mmap-backed [secret.Buffer] memory, locked
// against swap and excluded from core dumps; callers must Close the
// session to release it.
//
// [DirectSession] covers the operations the bridge performs: sending
// messages (plain, HTML-formatted, and file attachments), editing them
// in place via m.replace relations, redacting them, uploading media,
// joining rooms, resolving aliases, and incremental /sync. [Session] is
// the interface the rest of the daemon consumes, so tests can stand in
// a fake homeserver without HTTP.
//
// [Stream] turns /sync long-polling into a pull iterator of room
// events: call Next in a loop and get back messages, reactions, and
// invites in arrival order, with transient sync failures retried
// internally.
//
// API errors are returned as [*MatrixError] with the Matrix error code
// (M_FORBIDDEN, M_NOT_FOUND, ...) and HTTP status. Request URLs are
// built by string concatenation rather than url.URL to avoid
// double-encoding path segments such as room IDs.
package messaging
