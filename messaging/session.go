// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"io"

	"github.com/switchboard-dev/switchboard/lib/ref"
)

// Session is the interface for an authenticated Matrix session.
//
// DirectSession implements this interface with direct homeserver calls.
// Tests substitute fakes so the bridge and renderer can be exercised
// without a homeserver.
type Session interface {
	// UserID returns the fully-qualified Matrix user ID.
	UserID() ref.UserID

	// Close releases session resources, including the access token memory.
	Close() error

	// WhoAmI validates the access token and returns the user ID.
	WhoAmI(ctx context.Context) (ref.UserID, error)

	// ResolveAlias resolves a room alias to a room ID.
	ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error)

	// JoinRoom joins a room by ID.
	JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error)

	// JoinedRooms returns the list of room IDs the user has joined.
	JoinedRooms(ctx context.Context) ([]ref.RoomID, error)

	// SendMessage sends an m.room.message event to a room.
	SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error)

	// SendEvent sends an event of any type to a room.
	SendEvent(ctx context.Context, roomID ref.RoomID, eventType string, content any) (ref.EventID, error)

	// EditMessage replaces the content of a previously sent message.
	EditMessage(ctx context.Context, roomID ref.RoomID, target ref.EventID, replacement MessageContent) (ref.EventID, error)

	// RedactEvent removes a previously sent event.
	RedactEvent(ctx context.Context, roomID ref.RoomID, target ref.EventID, reason string) (ref.EventID, error)

	// UploadMedia uploads content to the media repository and returns
	// the MXC URI.
	UploadMedia(ctx context.Context, contentType, filename string, body io.Reader) (string, error)

	// Sync performs an incremental sync with the homeserver.
	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)
}

var _ Session = (*DirectSession)(nil)
