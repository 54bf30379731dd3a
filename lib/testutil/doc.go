// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for switchboard packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so that
// individual tests do not need direct time.After calls. [RequireNoReceive]
// is the inverse: it asserts that a channel stays silent for a short
// window, for "this must not produce an external request" style checks.
//
// [SocketDir] creates a short temporary directory in /tmp suitable for
// Unix domain sockets. Unix socket paths are limited to 108 bytes
// (sun_path in sockaddr_un), and test runners can place TEST_TMPDIR at
// deeply nested paths that exceed the limit, making t.TempDir()
// unsuitable for socket files.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation. Use it instead of time.Now() when tests need unique
// transaction IDs, request IDs, or message bodies.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no switchboard-internal dependencies.
package testutil
