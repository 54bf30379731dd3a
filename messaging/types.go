// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/switchboard-dev/switchboard/lib/ref"
)

// Timeline event types the bridge handles.
const (
	EventTypeMessage  = "m.room.message"
	EventTypeReaction = "m.reaction"
	EventTypeMember   = "m.room.member"
)

// Message types within m.room.message events.
const (
	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"
	MsgTypeFile   = "m.file"
)

// FormatHTML is the only rich-text format Matrix defines.
const FormatHTML = "org.matrix.custom.html"

// MessageContent is the content body of an m.room.message event.
// Rendered agent output carries both a plain Body and an HTML
// FormattedBody; clients that cannot render HTML fall back to Body.
type MessageContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`

	// Filename, URL, and Info describe an m.file attachment. URL is
	// the mxc:// URI returned by UploadMedia.
	Filename string    `json:"filename,omitempty"`
	URL      string    `json:"url,omitempty"`
	Info     *FileInfo `json:"info,omitempty"`

	// NewContent carries the replacement content of an edit; RelatesTo
	// carries the m.replace relation pointing at the edited event.
	NewContent *MessageContent `json:"m.new_content,omitempty"`
	RelatesTo  *RelatesTo      `json:"m.relates_to,omitempty"`
}

// FileInfo describes an uploaded attachment.
type FileInfo struct {
	MimeType string `json:"mimetype,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// RelatesTo expresses relationships between events. Edits use RelType
// "m.replace"; reactions use "m.annotation" with Key holding the emoji;
// threaded replies use "m.thread" with EventID at the thread root.
type RelatesTo struct {
	RelType       string      `json:"rel_type,omitempty"`
	EventID       ref.EventID `json:"event_id,omitempty"`
	Key           string      `json:"key,omitempty"`
	IsFallingBack bool        `json:"is_falling_back,omitempty"`
	InReplyTo     *InReplyTo  `json:"m.in_reply_to,omitempty"`
}

// InReplyTo references the event being replied to.
type InReplyTo struct {
	EventID ref.EventID `json:"event_id"`
}

// NewTextMessage creates a plain text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{MsgType: MsgTypeText, Body: body}
}

// NewHTMLMessage creates a message with an HTML-formatted body and a
// plain-text fallback.
func NewHTMLMessage(body, html string) MessageContent {
	return MessageContent{
		MsgType:       MsgTypeText,
		Body:          body,
		Format:        FormatHTML,
		FormattedBody: html,
	}
}

// NewNotice creates an m.notice message. The daemon's own status and
// error reports are notices so that other bots ignore them.
func NewNotice(body string) MessageContent {
	return MessageContent{MsgType: MsgTypeNotice, Body: body}
}

// NewFileMessage creates an m.file message for previously uploaded
// media. Body is the fallback text shown by clients that cannot render
// attachments.
func NewFileMessage(body, filename, mxcURI string, info FileInfo) MessageContent {
	return MessageContent{
		MsgType:  MsgTypeFile,
		Body:     body,
		Filename: filename,
		URL:      mxcURI,
		Info:     &info,
	}
}

// NewThreadReply creates a message replying within the thread rooted at
// threadRootID.
func NewThreadReply(threadRootID ref.EventID, body string) MessageContent {
	return MessageContent{
		MsgType: MsgTypeText,
		Body:    body,
		RelatesTo: &RelatesTo{
			RelType:       "m.thread",
			EventID:       threadRootID,
			IsFallingBack: true,
			InReplyTo:     &InReplyTo{EventID: threadRootID},
		},
	}
}

// NewEdit wraps replacement content in an edit of the target event.
// The top-level body is the "* "-prefixed fallback rendered by clients
// that do not understand m.replace.
func NewEdit(target ref.EventID, replacement MessageContent) MessageContent {
	edit := replacement
	edit.Body = "* " + replacement.Body
	if replacement.FormattedBody != "" {
		edit.FormattedBody = "* " + replacement.FormattedBody
	}
	edit.NewContent = &replacement
	edit.RelatesTo = &RelatesTo{
		RelType: "m.replace",
		EventID: target,
	}
	return edit
}

// Event represents a Matrix event from the server.
type Event struct {
	EventID        ref.EventID    `json:"event_id"`
	Type           string         `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	RoomID         ref.RoomID     `json:"room_id,omitempty"`
	StateKey       *string        `json:"state_key,omitempty"`
}

// TextOf returns the body of an m.text or m.notice message event.
func TextOf(event Event) (string, bool) {
	if event.Type != EventTypeMessage {
		return "", false
	}
	msgType, _ := event.Content["msgtype"].(string)
	if msgType != MsgTypeText && msgType != MsgTypeNotice {
		return "", false
	}
	body, ok := event.Content["body"].(string)
	return body, ok
}

// Reaction is the decoded annotation of an m.reaction event.
type Reaction struct {
	// Target is the event the reaction was applied to.
	Target ref.EventID
	// Key is the reaction emoji.
	Key string
}

// ReactionOf decodes an m.reaction event. Returns false for other
// event types and for malformed relation content.
func ReactionOf(event Event) (Reaction, bool) {
	if event.Type != EventTypeReaction {
		return Reaction{}, false
	}
	relates, ok := event.Content["m.relates_to"].(map[string]any)
	if !ok {
		return Reaction{}, false
	}
	if relType, _ := relates["rel_type"].(string); relType != "m.annotation" {
		return Reaction{}, false
	}
	rawTarget, _ := relates["event_id"].(string)
	key, _ := relates["key"].(string)
	target, err := ref.ParseEventID(rawTarget)
	if err != nil || key == "" {
		return Reaction{}, false
	}
	return Reaction{Target: target, Key: key}, true
}

// ThreadRootOf returns the thread root of a threaded reply, or the
// in-reply-to target of a plain reply. Either form addresses a prompt.
func ThreadRootOf(event Event) (ref.EventID, bool) {
	relates, ok := event.Content["m.relates_to"].(map[string]any)
	if !ok {
		return ref.EventID{}, false
	}
	if relType, _ := relates["rel_type"].(string); relType == "m.thread" {
		if raw, _ := relates["event_id"].(string); raw != "" {
			if root, err := ref.ParseEventID(raw); err == nil {
				return root, true
			}
		}
	}
	if inReplyTo, ok := relates["m.in_reply_to"].(map[string]any); ok {
		if raw, _ := inReplyTo["event_id"].(string); raw != "" {
			if target, err := ref.ParseEventID(raw); err == nil {
				return target, true
			}
		}
	}
	return ref.EventID{}, false
}

// MembershipOf returns the membership value of an m.room.member event.
func MembershipOf(event Event) (string, bool) {
	if event.Type != EventTypeMember {
		return "", false
	}
	membership, ok := event.Content["membership"].(string)
	return membership, ok
}

// AuthResponse is returned by Login.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// SyncOptions controls the behavior of the /sync endpoint.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds; 0 for immediate return
	SetTimeout bool   // if true, send the timeout parameter (needed to distinguish "not set" from "0")
	Filter     string // filter ID or inline JSON filter
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection contains per-room sync data grouped by membership state.
// Map keys are room IDs; encoding/json uses ref.RoomID's TextUnmarshaler
// for automatic validation at deserialization.
type RoomsSection struct {
	Join   map[ref.RoomID]JoinedRoom  `json:"join,omitempty"`
	Invite map[ref.RoomID]InvitedRoom `json:"invite,omitempty"`
}

// JoinedRoom contains sync data for a room the user has joined.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// InvitedRoom contains sync data for a room the user was invited to.
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection contains state events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// SendEventResponse is returned by SendMessage, SendEvent, and RedactEvent.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// ResolveAliasResponse is returned by ResolveAlias.
type ResolveAliasResponse struct {
	RoomID  ref.RoomID `json:"room_id"`
	Servers []string   `json:"servers"`
}

// UploadResponse is returned by UploadMedia.
type UploadResponse struct {
	ContentURI string `json:"content_uri"`
}

// JoinedRoomsResponse is returned by JoinedRooms.
type JoinedRoomsResponse struct {
	JoinedRooms []ref.RoomID `json:"joined_rooms"`
}

// ServerVersionsResponse is returned by Client.ServerVersions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}
