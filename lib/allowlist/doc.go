// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package allowlist decides which agent tool calls are approved without
// asking the operator.
//
// Rules live in a JSONC file (JSON plus // comments, /* block comments */,
// and trailing commas). Each rule names a tool and optionally restricts
// the inputs it covers: a command prefix list for shell-style tools, a
// directory list for file-path tools. A tool call is auto-approved when
// any rule matches; everything else falls through to an interactive
// prompt in the channel.
//
// [Watch] keeps a running daemon in sync with edits to the rules file.
// A reload that fails to parse keeps the previous rules, so a stray
// comma in an editor never downgrades a live bridge to prompting on
// every call (or worse).
package allowlist
