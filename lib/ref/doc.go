// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable Matrix identifier
// values: [UserID], [RoomID], [RoomAlias], and [EventID].
//
// Raw identifier strings arrive from configuration files and Matrix
// API responses; they are parsed into these types at the boundary and
// never constructed ad hoc elsewhere. All constructors validate their
// input. Once constructed, a ref is immutable and its String form is
// the canonical Matrix identifier (@user:server, !room:server,
// #alias:server, $event).
//
// JSON marshaling uses the canonical form via encoding.TextMarshaler.
package ref
