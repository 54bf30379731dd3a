// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package consoleui implements the terminal dashboard for a running
// daemon. Built on bubbletea (Elm architecture), it shows the live
// session table over the status API and a transcript pane fed by the
// daemon's session log.
//
// The [Source] interface decouples the model from the transport:
// production code passes a [statusapi.Client], tests substitute a
// fake. The transcript pane reads the session log file directly, so
// the dashboard must run on the daemon's host, same as the status
// socket itself.
//
// Data flow:
//
//	[status socket]   [sessions.jsonl]
//	        |              |
//	    (Source)      (ReadTranscript)
//	        |              |
//	        +--> [Model] <-+   bubbletea event loop
//	               |
//	        [terminal output]
package consoleui
