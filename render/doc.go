// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package render turns accumulated agent output into bounded Matrix
// messages.
//
// Output for a channel arrives as a stream of text deltas and is
// grouped into blocks. A block maps to one chat message that is edited
// in place as text accumulates. [Decide] picks the surface action for
// each publish: edit the current target, start a new message (no
// target yet, or the target aged past the rotation interval), or move
// the block to an uploaded file with a short on-surface preview once
// it outgrows the hard limit. [Renderer] executes those actions
// against a [Surface] and owns the per-channel block state.
//
// Terminal snapshots from the console variant pass through [Clean]
// first: ANSI sequences are stripped, banner/status/tip lines are
// dropped, and long rule lines are shortened. Clean is pure and
// idempotent. [DefuseFences] makes arbitrary text safe to embed in a
// fenced code block.
package render
