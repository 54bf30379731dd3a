// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// RoomAlias is a validated Matrix room alias (e.g., "#dev:example.org").
//
// Room aliases are human-readable names that resolve to opaque RoomIDs.
// They appear in switchboard configuration (operators list rooms by
// alias or by ID) and are resolved once at startup.
//
// RoomAlias is an immutable value type. The zero value is not valid;
// use IsZero to check.
type RoomAlias struct {
	alias string
}

// ParseRoomAlias validates and wraps a raw Matrix room alias string.
func ParseRoomAlias(raw string) (RoomAlias, error) {
	_, _, err := parsePrefixedID(raw, '#', "room alias")
	if err != nil {
		return RoomAlias{}, err
	}
	return RoomAlias{alias: raw}, nil
}

// MustParseRoomAlias is like ParseRoomAlias but panics on error. Use
// in tests and static initialization where the input is known-valid.
func MustParseRoomAlias(raw string) RoomAlias {
	a, err := ParseRoomAlias(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseRoomAlias(%q): %v", raw, err))
	}
	return a
}

// String returns the full room alias string.
func (a RoomAlias) String() string { return a.alias }

// IsZero reports whether the RoomAlias is the zero value.
func (a RoomAlias) IsZero() bool { return a.alias == "" }

// Localpart returns the alias localpart without the '#' prefix or
// ':server' suffix.
func (a RoomAlias) Localpart() string {
	if a.alias == "" {
		return ""
	}
	localpart, _, _ := parsePrefixedID(a.alias, '#', "room alias")
	return localpart
}
