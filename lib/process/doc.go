// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for switchboard
// binaries. It centralizes the one legitimate raw I/O pattern that
// exists before the structured logger: fatal error reporting to stderr
// from main() when run() fails before or during logger setup.
//
// All other output in the daemon goes through log/slog; all other
// output in the CLI binaries goes through their own rendering paths.
package process
