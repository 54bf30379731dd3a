// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/switchboard-dev/switchboard/lib/ref"
)

// newTestSession creates a Client and DirectSession pointing at a test
// server.
func newTestSession(t *testing.T, handler http.Handler) (*Client, *DirectSession) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session := client.SessionFromToken(ref.MustParseUserID("@test:local"), testBuffer(t, "test-token"))
	return client, session
}

func TestWhoAmI(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.URL.Path != "/_matrix/client/v3/account/whoami" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		writeJSON(writer, WhoAmIResponse{UserID: ref.MustParseUserID("@test:local"), DeviceID: "DEV1"})
	}))

	userID, err := session.WhoAmI(context.Background())
	if err != nil {
		t.Fatalf("WhoAmI failed: %v", err)
	}
	if userID.String() != "@test:local" {
		t.Errorf("unexpected user ID: %s", userID)
	}
}

func TestResolveAlias(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.URL.Path != "/_matrix/client/v3/directory/room/#infra:local" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		writeJSON(writer, ResolveAliasResponse{RoomID: ref.MustParseRoomID("!abc:local")})
	}))

	roomID, err := session.ResolveAlias(context.Background(), ref.MustParseRoomAlias("#infra:local"))
	if err != nil {
		t.Fatalf("ResolveAlias failed: %v", err)
	}
	if roomID.String() != "!abc:local" {
		t.Errorf("unexpected room ID: %s", roomID)
	}
}

func TestJoinRoom(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", request.Method)
		}
		if request.URL.Path != "/_matrix/client/v3/join/!abc:local" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		writeJSON(writer, map[string]string{"room_id": "!abc:local"})
	}))

	roomID, err := session.JoinRoom(context.Background(), ref.MustParseRoomID("!abc:local"))
	if err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	if roomID.String() != "!abc:local" {
		t.Errorf("unexpected room ID: %s", roomID)
	}
}

func TestJoinedRooms(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.URL.Path != "/_matrix/client/v3/joined_rooms" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		writeJSON(writer, map[string][]string{"joined_rooms": {"!abc:local", "!def:local"}})
	}))

	rooms, err := session.JoinedRooms(context.Background())
	if err != nil {
		t.Fatalf("JoinedRooms failed: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("unexpected room count: %d", len(rooms))
	}
	if rooms[0].String() != "!abc:local" || rooms[1].String() != "!def:local" {
		t.Errorf("unexpected rooms: %v", rooms)
	}
}

func TestSendMessage(t *testing.T) {
	var transactionIDs []string
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.Method != http.MethodPut {
			t.Errorf("unexpected method: %s", request.Method)
		}
		const prefix = "/_matrix/client/v3/rooms/!abc:local/send/m.room.message/"
		if !strings.HasPrefix(request.URL.Path, prefix) {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		transactionIDs = append(transactionIDs, strings.TrimPrefix(request.URL.Path, prefix))

		var body MessageContent
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if body.MsgType != MsgTypeText {
			t.Errorf("unexpected msgtype: %s", body.MsgType)
		}
		if body.Body != "hello" {
			t.Errorf("unexpected body: %q", body.Body)
		}

		writeJSON(writer, SendEventResponse{EventID: ref.MustParseEventID("$event1:local")})
	}))

	room := ref.MustParseRoomID("!abc:local")
	eventID, err := session.SendMessage(context.Background(), room, NewTextMessage("hello"))
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if eventID.String() != "$event1:local" {
		t.Errorf("unexpected event ID: %s", eventID)
	}

	// A second send must use a fresh transaction ID, or the homeserver
	// would deduplicate it.
	if _, err := session.SendMessage(context.Background(), room, NewTextMessage("hello")); err != nil {
		t.Fatalf("second SendMessage failed: %v", err)
	}
	if len(transactionIDs) != 2 {
		t.Fatalf("unexpected request count: %d", len(transactionIDs))
	}
	if transactionIDs[0] == transactionIDs[1] {
		t.Errorf("transaction ID reused: %q", transactionIDs[0])
	}
	for _, id := range transactionIDs {
		if !strings.HasPrefix(id, "swb-") {
			t.Errorf("unexpected transaction ID format: %q", id)
		}
	}
}

func TestEditMessage(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")

		var body map[string]any
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if body["body"] != "* updated text" {
			t.Errorf("unexpected fallback body: %v", body["body"])
		}
		newContent, ok := body["m.new_content"].(map[string]any)
		if !ok {
			t.Fatal("missing m.new_content")
		}
		if newContent["body"] != "updated text" {
			t.Errorf("unexpected replacement body: %v", newContent["body"])
		}
		relates, ok := body["m.relates_to"].(map[string]any)
		if !ok {
			t.Fatal("missing m.relates_to")
		}
		if relates["rel_type"] != "m.replace" {
			t.Errorf("unexpected rel_type: %v", relates["rel_type"])
		}
		if relates["event_id"] != "$original:local" {
			t.Errorf("unexpected relation target: %v", relates["event_id"])
		}

		writeJSON(writer, SendEventResponse{EventID: ref.MustParseEventID("$edit1:local")})
	}))

	eventID, err := session.EditMessage(context.Background(),
		ref.MustParseRoomID("!abc:local"),
		ref.MustParseEventID("$original:local"),
		NewTextMessage("updated text"))
	if err != nil {
		t.Fatalf("EditMessage failed: %v", err)
	}
	if eventID.String() != "$edit1:local" {
		t.Errorf("unexpected event ID: %s", eventID)
	}
}

func TestEditMessageZeroTarget(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("server should not be called")
	}))

	_, err := session.EditMessage(context.Background(),
		ref.MustParseRoomID("!abc:local"), ref.EventID{}, NewTextMessage("text"))
	if err == nil {
		t.Fatal("expected error for zero target")
	}
}

func TestEditMessageTargetMissing(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(writer).Encode(map[string]string{
			"errcode": "M_UNKNOWN",
			"error":   "Can't send relation to unknown event",
		})
	}))

	_, err := session.EditMessage(context.Background(),
		ref.MustParseRoomID("!abc:local"),
		ref.MustParseEventID("$gone:local"),
		NewTextMessage("updated text"))
	if err == nil {
		t.Fatal("expected error for missing target")
	}
	if !IsEditTargetMissing(err) {
		t.Errorf("expected edit-target-missing classification, got: %v", err)
	}
}

func TestRedactEvent(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.Method != http.MethodPut {
			t.Errorf("unexpected method: %s", request.Method)
		}
		const prefix = "/_matrix/client/v3/rooms/!abc:local/redact/$event1:local/"
		if !strings.HasPrefix(request.URL.Path, prefix) {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}

		var body map[string]any
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if body["reason"] != "rotated" {
			t.Errorf("unexpected reason: %v", body["reason"])
		}

		writeJSON(writer, SendEventResponse{EventID: ref.MustParseEventID("$redact1:local")})
	}))

	eventID, err := session.RedactEvent(context.Background(),
		ref.MustParseRoomID("!abc:local"), ref.MustParseEventID("$event1:local"), "rotated")
	if err != nil {
		t.Fatalf("RedactEvent failed: %v", err)
	}
	if eventID.String() != "$redact1:local" {
		t.Errorf("unexpected event ID: %s", eventID)
	}
}

func TestUploadMedia(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.URL.Path != "/_matrix/media/v3/upload" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		if got := request.URL.Query().Get("filename"); got != "output.md" {
			t.Errorf("unexpected filename: %q", got)
		}
		if got := request.Header.Get("Content-Type"); got != "text/markdown" {
			t.Errorf("unexpected content type: %q", got)
		}
		body, err := io.ReadAll(request.Body)
		if err != nil {
			t.Fatalf("failed to read body: %v", err)
		}
		if string(body) != "# Full output\n" {
			t.Errorf("unexpected body: %q", body)
		}
		writeJSON(writer, UploadResponse{ContentURI: "mxc://local/media1"})
	}))

	uri, err := session.UploadMedia(context.Background(),
		"text/markdown", "output.md", strings.NewReader("# Full output\n"))
	if err != nil {
		t.Fatalf("UploadMedia failed: %v", err)
	}
	if uri != "mxc://local/media1" {
		t.Errorf("unexpected content URI: %q", uri)
	}
}

func TestSync(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.URL.Path != "/_matrix/client/v3/sync" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		query := request.URL.Query()
		if query.Get("since") != "batch-1" {
			t.Errorf("unexpected since: %q", query.Get("since"))
		}
		if query.Get("timeout") != "30000" {
			t.Errorf("unexpected timeout: %q", query.Get("timeout"))
		}

		writeJSON(writer, map[string]any{
			"next_batch": "batch-2",
			"rooms": map[string]any{
				"join": map[string]any{
					"!abc:local": map[string]any{
						"timeline": map[string]any{
							"events": []map[string]any{
								{
									"event_id": "$msg1:local",
									"type":     "m.room.message",
									"sender":   "@alice:local",
									"content":  map[string]any{"msgtype": "m.text", "body": "ship it"},
								},
							},
						},
					},
				},
			},
		})
	}))

	response, err := session.Sync(context.Background(), SyncOptions{
		Since:      "batch-1",
		Timeout:    30000,
		SetTimeout: true,
	})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if response.NextBatch != "batch-2" {
		t.Errorf("unexpected next_batch: %q", response.NextBatch)
	}

	room := response.Rooms.Join[ref.MustParseRoomID("!abc:local")]
	if len(room.Timeline.Events) != 1 {
		t.Fatalf("unexpected event count: %d", len(room.Timeline.Events))
	}
	event := room.Timeline.Events[0]
	if event.Sender.String() != "@alice:local" {
		t.Errorf("unexpected sender: %s", event.Sender)
	}
	body, ok := TextOf(event)
	if !ok {
		t.Fatal("TextOf failed on message event")
	}
	if body != "ship it" {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestSessionClose(t *testing.T) {
	client, err := NewClient(ClientConfig{HomeserverURL: "http://localhost:8008"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session := client.SessionFromToken(ref.MustParseUserID("@test:local"), testBuffer(t, "token"))

	if err := session.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

// Test helpers.

func assertAuth(t *testing.T, request *http.Request, expectedToken string) {
	t.Helper()
	auth := request.Header.Get("Authorization")
	expected := "Bearer " + expectedToken
	if auth != expected {
		t.Errorf("unexpected auth header: got %q, want %q", auth, expected)
	}
}

func writeJSON(writer http.ResponseWriter, value any) {
	writer.Header().Set("Content-Type", "application/json")
	json.NewEncoder(writer).Encode(value)
}
