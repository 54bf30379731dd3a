// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zeebo/blake3"

	"github.com/switchboard-dev/switchboard/lib/clock"
	"github.com/switchboard-dev/switchboard/lib/ref"
	"github.com/switchboard-dev/switchboard/messaging"
)

// Surface is the part of a chat session the renderer needs.
// messaging.DirectSession implements it.
type Surface interface {
	SendMessage(ctx context.Context, room ref.RoomID, content messaging.MessageContent) (ref.EventID, error)
	EditMessage(ctx context.Context, room ref.RoomID, target ref.EventID, content messaging.MessageContent) (ref.EventID, error)
	UploadMedia(ctx context.Context, contentType, filename string, body io.Reader) (string, error)
}

// Renderer publishes one channel's output stream to its room: in-place
// edits while the target message is fresh, a new message after
// rotation, and a file upload with an on-surface preview when the
// block outgrows the hard limit.
//
// A Renderer is not safe for concurrent use. The per-channel pump
// goroutine owns it.
type Renderer struct {
	surface Surface
	room    ref.RoomID
	config  Config
	clock   clock.Clock
	logger  *slog.Logger

	buffer strings.Builder
	state  State

	// lastPublish paces in-place edits; held marks buffered content
	// the surface has not seen yet.
	lastPublish time.Time
	held        bool

	// uploads maps block content hashes to media URIs so the same
	// overflow is never uploaded twice.
	uploads map[[32]byte]string
}

// New creates a renderer for one room.
func New(surface Surface, room ref.RoomID, config Config, clk clock.Clock, logger *slog.Logger) *Renderer {
	return &Renderer{
		surface: surface,
		room:    room,
		config:  config.withDefaults(),
		clock:   clk,
		logger:  logger,
		uploads: make(map[[32]byte]string),
	}
}

// Append adds delta to the current block and publishes it. Failed
// publishes keep the block buffered; a later append retries with the
// full content.
func (r *Renderer) Append(ctx context.Context, delta string) error {
	if delta == "" {
		return nil
	}
	now := r.clock.Now()

	// Rotation closes the block. Content already shown stays in the
	// old message; the new message starts from this delta.
	if r.state.Rotated(r.config, now) {
		r.buffer.Reset()
		r.state = State{}
	}

	r.buffer.WriteString(delta)
	r.held = true
	text := r.buffer.String()

	switch Decide(r.config, r.state, now, text) {
	case ActionUpdate:
		if r.config.UpdateInterval > 0 && now.Sub(r.lastPublish) < r.config.UpdateInterval {
			return nil
		}
		return r.update(ctx, text, now)
	case ActionCreateNew:
		return r.createNew(ctx, text, now)
	case ActionUpload:
		return r.upload(ctx, text)
	}
	return nil
}

// Replace swaps the block's content and publishes it. Console pane
// snapshots go through here: each capture is a whole-view replacement,
// not an appended delta. Rotation still applies, so a long-lived
// console stream moves to a fresh message once the target ages out.
// The capture poll already paces snapshots, so the edit pacer is not
// consulted.
func (r *Renderer) Replace(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	now := r.clock.Now()
	if r.state.Rotated(r.config, now) {
		r.state = State{}
	}
	r.buffer.Reset()
	r.buffer.WriteString(text)
	r.held = true

	switch Decide(r.config, r.state, now, text) {
	case ActionUpdate:
		return r.update(ctx, text, now)
	case ActionCreateNew:
		return r.createNew(ctx, text, now)
	case ActionUpload:
		return r.upload(ctx, text)
	}
	return nil
}

// Flush publishes any buffered content the edit pacer held back. Call
// it before [Renderer.EndBlock] so a block's final delta is not lost
// when the stream ends inside a pacing window. Size still wins: a
// held block past the hard limit goes to an upload.
func (r *Renderer) Flush(ctx context.Context) error {
	if !r.held || r.buffer.Len() == 0 {
		return nil
	}
	now := r.clock.Now()
	text := r.buffer.String()
	if utf8.RuneCountInString(text) >= r.config.HardLimitChars {
		return r.upload(ctx, text)
	}
	if r.state.Target.IsZero() {
		return r.createNew(ctx, text, now)
	}
	return r.update(ctx, text, now)
}

// EndBlock finishes the current output block. The next append posts a
// new message instead of editing the last one. Anything still held by
// the edit pacer is dropped; [Renderer.Flush] first if it matters.
func (r *Renderer) EndBlock() {
	r.buffer.Reset()
	r.state = State{}
	r.held = false
}

func (r *Renderer) update(ctx context.Context, text string, now time.Time) error {
	content := r.message(text)
	_, err := r.surface.EditMessage(ctx, r.room, r.state.Target, content)
	if err == nil {
		r.published(now)
		return nil
	}
	if messaging.IsEditTargetMissing(err) {
		r.logger.Debug("render target vanished, posting a new message",
			"room", r.room, "target", r.state.Target)
		r.state = State{}
		return r.createNew(ctx, text, now)
	}
	if retryable(ctx, err) {
		r.logger.Warn("output edit failed, retrying once", "room", r.room, "error", err)
		_, retryErr := r.surface.EditMessage(ctx, r.room, r.state.Target, content)
		if retryErr == nil {
			r.published(now)
			return nil
		}
		if messaging.IsEditTargetMissing(retryErr) {
			r.state = State{}
			return r.createNew(ctx, text, now)
		}
		err = retryErr
	}
	r.state = State{}
	return fmt.Errorf("render: updating output message: %w", err)
}

func (r *Renderer) createNew(ctx context.Context, text string, now time.Time) error {
	eventID, err := r.sendWithRetry(ctx, r.message(text))
	if err != nil {
		r.state = State{}
		return fmt.Errorf("render: posting output message: %w", err)
	}
	r.state = State{Target: eventID, CreatedAt: now}
	r.published(now)
	return nil
}

// published marks the buffered block as on the surface.
func (r *Renderer) published(now time.Time) {
	r.lastPublish = now
	r.held = false
}

func (r *Renderer) upload(ctx context.Context, text string) error {
	data := []byte(text)
	sum := blake3.Sum256(data)
	filename := r.uploadFilename(sum)

	uri, cached := r.uploads[sum]
	if !cached {
		uploaded, err := r.surface.UploadMedia(ctx, r.contentType(), filename, bytes.NewReader(data))
		if err != nil && retryable(ctx, err) {
			r.logger.Warn("media upload failed, retrying once", "room", r.room, "error", err)
			uploaded, err = r.surface.UploadMedia(ctx, r.contentType(), filename, bytes.NewReader(data))
		}
		if err != nil {
			return fmt.Errorf("render: uploading overflow output: %w", err)
		}
		uri = uploaded
		r.uploads[sum] = uri
	}

	attachment := messaging.NewFileMessage("full output: "+filename, filename, uri, messaging.FileInfo{
		MimeType: r.contentType(),
		Size:     int64(len(data)),
	})
	if _, err := r.sendWithRetry(ctx, attachment); err != nil {
		return fmt.Errorf("render: posting overflow attachment: %w", err)
	}

	marker := "full output uploaded as " + filename
	content := r.message(Truncate(text, r.config.PreviewChars))
	content.Body += "\n" + marker
	if content.FormattedBody != "" {
		content.FormattedBody += "<br/><em>" + html.EscapeString(marker) + "</em>"
	}
	if _, err := r.sendWithRetry(ctx, content); err != nil {
		return fmt.Errorf("render: posting overflow preview: %w", err)
	}

	// The uploaded file holds the whole block; the stream restarts.
	r.buffer.Reset()
	r.state = State{}
	r.published(r.clock.Now())
	return nil
}

// message builds the outbound content for a block. Terminal output is
// wrapped in a defused code fence; agent output is treated as
// markdown. Both carry an HTML formatted_body when conversion works.
func (r *Renderer) message(text string) messaging.MessageContent {
	display := text
	if r.config.Terminal {
		display = "```\n" + DefuseFences(text) + "\n```"
	}
	htmlBody, err := ToHTML(display)
	if err != nil {
		r.logger.Warn("markdown conversion failed, sending plain text", "error", err)
		return messaging.NewTextMessage(display)
	}
	return messaging.NewHTMLMessage(display, htmlBody)
}

func (r *Renderer) sendWithRetry(ctx context.Context, content messaging.MessageContent) (ref.EventID, error) {
	eventID, err := r.surface.SendMessage(ctx, r.room, content)
	if err == nil || !retryable(ctx, err) {
		return eventID, err
	}
	r.logger.Warn("output send failed, retrying once", "room", r.room, "error", err)
	return r.surface.SendMessage(ctx, r.room, content)
}

// retryable reports whether one immediate retry could plausibly help:
// transport blips qualify, cancelled contexts and dead tokens do not.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !messaging.IsAuthFailure(err)
}

func (r *Renderer) contentType() string {
	if r.config.Terminal {
		return "text/plain"
	}
	return "text/markdown"
}

func (r *Renderer) uploadFilename(sum [32]byte) string {
	extension := ".md"
	if r.config.Terminal {
		extension = ".txt"
	}
	return fmt.Sprintf("output-%x%s", sum[:4], extension)
}
