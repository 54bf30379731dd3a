// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/switchboard-dev/switchboard/lib/ref"
)

const (
	// maxSyncRetries is the number of consecutive sync failures tolerated
	// before the stream gives up and surfaces the error.
	maxSyncRetries = 5

	// longPollTimeout is the server-side long-poll window in milliseconds.
	longPollTimeout = 30000

	// retryTimeout is the wait between failed sync attempts in milliseconds.
	retryTimeout = 1000
)

// StreamConfig configures an event stream.
type StreamConfig struct {
	// Rooms scopes the stream to these room IDs. Empty streams every
	// joined room.
	Rooms []ref.RoomID

	// TimelineTypes lists the event types delivered from room timelines.
	// Empty defaults to m.room.message and m.reaction.
	TimelineTypes []string

	// TimelineLimit caps the events returned per room per sync.
	// Zero uses 50.
	TimelineLimit int

	// Logger receives sync retry warnings. nil uses slog.Default().
	Logger *slog.Logger
}

// RoomEvent is a single event delivered by a Stream, tagged with the
// room it arrived in.
type RoomEvent struct {
	Room ref.RoomID

	// Invite marks membership events from rooms the user has been
	// invited to but has not joined. The event's state_key names the
	// invitee and Sender names the inviter.
	Invite bool

	Event Event
}

// Syncer is the part of a session the stream needs. DirectSession
// implements it; tests substitute scripted fakes.
type Syncer interface {
	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)
}

// Stream delivers room events in arrival order by long-polling /sync.
//
// A Stream is not safe for concurrent use. Run one goroutine that calls
// Next in a loop and fans events out from there.
type Stream struct {
	session Syncer
	filter  string
	logger  *slog.Logger

	since   string
	pending []RoomEvent
}

// OpenStream performs an initial sync to establish the current position
// and returns a stream that delivers events arriving after that point.
// Events from before the initial sync are discarded so that a restarted
// daemon does not replay commands it already handled.
func OpenStream(ctx context.Context, session Syncer, config StreamConfig) (*Stream, error) {
	filter, err := buildInlineFilter(config)
	if err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	response, err := session.Sync(ctx, SyncOptions{
		Timeout:    0,
		SetTimeout: true,
		Filter:     filter,
	})
	if err != nil {
		return nil, fmt.Errorf("messaging: initial sync failed: %w", err)
	}

	return &Stream{
		session: session,
		filter:  filter,
		logger:  logger,
		since:   response.NextBatch,
	}, nil
}

// Next blocks until an event arrives or ctx is cancelled. Consecutive
// sync failures are retried with a backoff; after maxSyncRetries the
// error from the final attempt is returned.
func (s *Stream) Next(ctx context.Context) (RoomEvent, error) {
	for {
		if len(s.pending) > 0 {
			event := s.pending[0]
			s.pending = s.pending[1:]
			return event, nil
		}
		if err := s.poll(ctx); err != nil {
			return RoomEvent{}, err
		}
	}
}

// Position returns the sync token the stream has processed up to.
func (s *Stream) Position() string {
	return s.since
}

// poll runs one long-poll cycle, appending any delivered events to the
// pending queue. Failed attempts close idle connections so the retry
// opens a fresh TCP connection.
func (s *Stream) poll(ctx context.Context) error {
	var lastErr error
	for attempt := range maxSyncRetries {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		response, err := s.session.Sync(ctx, SyncOptions{
			Since:      s.since,
			Timeout:    longPollTimeout,
			SetTimeout: true,
			Filter:     s.filter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			s.logger.Warn("sync failed, retrying",
				"attempt", attempt+1,
				"max_attempts", maxSyncRetries,
				"error", err)
			if closer, ok := s.session.(interface{ CloseIdleConnections() }); ok {
				closer.CloseIdleConnections()
			}
			if attempt+1 < maxSyncRetries {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(retryTimeout * time.Millisecond):
				}
			}
			continue
		}

		s.since = response.NextBatch
		s.collect(response)
		return nil
	}
	return fmt.Errorf("messaging: sync failed after %d attempts: %w", maxSyncRetries, lastErr)
}

// collect appends the response's events to the pending queue. Rooms are
// visited in sorted order so delivery is deterministic; within a room,
// timeline order is preserved.
func (s *Stream) collect(response *SyncResponse) {
	joined := make([]ref.RoomID, 0, len(response.Rooms.Join))
	for roomID := range response.Rooms.Join {
		joined = append(joined, roomID)
	}
	sort.Slice(joined, func(i, j int) bool { return joined[i].String() < joined[j].String() })
	for _, roomID := range joined {
		for _, event := range response.Rooms.Join[roomID].Timeline.Events {
			event.RoomID = roomID
			s.pending = append(s.pending, RoomEvent{Room: roomID, Event: event})
		}
	}

	invited := make([]ref.RoomID, 0, len(response.Rooms.Invite))
	for roomID := range response.Rooms.Invite {
		invited = append(invited, roomID)
	}
	sort.Slice(invited, func(i, j int) bool { return invited[i].String() < invited[j].String() })
	for _, roomID := range invited {
		for _, event := range response.Rooms.Invite[roomID].InviteState.Events {
			if event.Type != EventTypeMember {
				continue
			}
			event.RoomID = roomID
			s.pending = append(s.pending, RoomEvent{Room: roomID, Invite: true, Event: event})
		}
	}
}

// syncFilter is the inline filter definition passed to /sync. State,
// presence, ephemeral, and account data are excluded except for room
// membership, which carries invites.
type syncFilter struct {
	Room        roomFilter  `json:"room"`
	Presence    typesFilter `json:"presence"`
	AccountData typesFilter `json:"account_data"`
}

type roomFilter struct {
	Rooms       []string       `json:"rooms,omitempty"`
	Timeline    timelineFilter `json:"timeline"`
	State       typesFilter    `json:"state"`
	AccountData typesFilter    `json:"account_data"`
	Ephemeral   typesFilter    `json:"ephemeral"`
}

type timelineFilter struct {
	Types []string `json:"types"`
	Limit int      `json:"limit"`
}

type typesFilter struct {
	Types []string `json:"types"`
}

func buildInlineFilter(config StreamConfig) (string, error) {
	types := config.TimelineTypes
	if len(types) == 0 {
		types = []string{EventTypeMessage, EventTypeReaction}
	}
	limit := config.TimelineLimit
	if limit <= 0 {
		limit = 50
	}

	filter := syncFilter{
		Room: roomFilter{
			Timeline:    timelineFilter{Types: types, Limit: limit},
			State:       typesFilter{Types: []string{EventTypeMember}},
			AccountData: typesFilter{Types: []string{}},
			Ephemeral:   typesFilter{Types: []string{}},
		},
		Presence:    typesFilter{Types: []string{}},
		AccountData: typesFilter{Types: []string{}},
	}
	for _, room := range config.Rooms {
		filter.Room.Rooms = append(filter.Room.Rooms, room.String())
	}

	data, err := json.Marshal(filter)
	if err != nil {
		return "", fmt.Errorf("messaging: failed to build sync filter: %w", err)
	}
	return string(data), nil
}
