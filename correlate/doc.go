// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package correlate matches human decisions arriving from a chat
// surface with the in-flight agent requests blocked waiting on them.
//
// When the agent needs a tool-use approval or a multiple-choice
// answer, the bridge calls [Correlator.Request]: the prompt goes out
// through a [Poster], a [Decision] channel comes back, and the query
// suspends on it. The request id travels with the prompt, so whoever
// parses the answering message hands it to [Correlator.Resolve].
// [Correlator.CancelAll] unblocks everything a channel is waiting on
// when its session is aborted or closed.
//
// Decisions deny by default. A prompt that cannot be delivered
// resolves immediately rather than suspending the query forever;
// questions fall back to their first option.
package correlate
