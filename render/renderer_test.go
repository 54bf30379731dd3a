// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/switchboard-dev/switchboard/lib/clock"
	"github.com/switchboard-dev/switchboard/lib/ref"
	"github.com/switchboard-dev/switchboard/messaging"
)

type surfaceCall struct {
	kind     string // "send", "edit", "upload"
	target   ref.EventID
	content  messaging.MessageContent
	filename string
	uploaded string
}

// fakeSurface records surface calls and plays back scripted errors.
type fakeSurface struct {
	calls      []surfaceCall
	sendErrs   []error
	editErrs   []error
	uploadErrs []error

	eventCounter int
	mediaCounter int
}

func (f *fakeSurface) nextErr(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

func (f *fakeSurface) SendMessage(ctx context.Context, room ref.RoomID, content messaging.MessageContent) (ref.EventID, error) {
	if err := f.nextErr(&f.sendErrs); err != nil {
		return ref.EventID{}, err
	}
	f.eventCounter++
	eventID := ref.MustParseEventID(fmt.Sprintf("$m%d:local", f.eventCounter))
	f.calls = append(f.calls, surfaceCall{kind: "send", content: content})
	return eventID, nil
}

func (f *fakeSurface) EditMessage(ctx context.Context, room ref.RoomID, target ref.EventID, content messaging.MessageContent) (ref.EventID, error) {
	if err := f.nextErr(&f.editErrs); err != nil {
		return ref.EventID{}, err
	}
	f.eventCounter++
	eventID := ref.MustParseEventID(fmt.Sprintf("$m%d:local", f.eventCounter))
	f.calls = append(f.calls, surfaceCall{kind: "edit", target: target, content: content})
	return eventID, nil
}

func (f *fakeSurface) UploadMedia(ctx context.Context, contentType, filename string, body io.Reader) (string, error) {
	if err := f.nextErr(&f.uploadErrs); err != nil {
		return "", err
	}
	data, readErr := io.ReadAll(body)
	if readErr != nil {
		return "", readErr
	}
	f.mediaCounter++
	uri := fmt.Sprintf("mxc://local/media%d", f.mediaCounter)
	f.calls = append(f.calls, surfaceCall{kind: "upload", filename: filename, uploaded: string(data)})
	return uri, nil
}

// kinds returns the call kinds in order, for compact assertions.
func (f *fakeSurface) kinds() []string {
	var kinds []string
	for _, call := range f.calls {
		kinds = append(kinds, call.kind)
	}
	return kinds
}

func testStart() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func newTestRenderer(config Config) (*Renderer, *fakeSurface, *clock.FakeClock) {
	surface := &fakeSurface{}
	fake := clock.Fake(testStart())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	renderer := New(surface, ref.MustParseRoomID("!room:local"), config, fake, logger)
	return renderer, surface, fake
}

func TestAppendCreatesThenUpdates(t *testing.T) {
	t.Parallel()
	renderer, surface, fake := newTestRenderer(Config{})
	ctx := context.Background()

	if err := renderer.Append(ctx, "Reading files"); err != nil {
		t.Fatalf("first Append failed: %v", err)
	}
	fake.Advance(5 * time.Second)
	if err := renderer.Append(ctx, "\nFound the bug"); err != nil {
		t.Fatalf("second Append failed: %v", err)
	}

	if got, want := surface.kinds(), []string{"send", "edit"}; !equalStrings(got, want) {
		t.Fatalf("unexpected calls: %v", got)
	}
	edit := surface.calls[1]
	if edit.target.String() != "$m1:local" {
		t.Errorf("edit targets %s, want the first message", edit.target)
	}
	if edit.content.Body != "Reading files\nFound the bug" {
		t.Errorf("unexpected accumulated body: %q", edit.content.Body)
	}
	if edit.content.FormattedBody == "" {
		t.Error("expected an HTML formatted body")
	}
}

func TestRotationStartsFreshBlock(t *testing.T) {
	t.Parallel()
	renderer, surface, fake := newTestRenderer(Config{RotationInterval: 60 * time.Second})
	ctx := context.Background()

	if err := renderer.Append(ctx, "first block"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	fake.Advance(61 * time.Second)
	if err := renderer.Append(ctx, "second block"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if got, want := surface.kinds(), []string{"send", "send"}; !equalStrings(got, want) {
		t.Fatalf("unexpected calls: %v", got)
	}
	// The rotated message starts over; it does not repeat the first
	// block's content.
	if body := surface.calls[1].content.Body; body != "second block" {
		t.Errorf("rotated message body: %q, want only the new content", body)
	}

	// The new message is now the edit target.
	fake.Advance(time.Second)
	if err := renderer.Append(ctx, " more"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	last := surface.calls[2]
	if last.kind != "edit" || last.target.String() != "$m2:local" {
		t.Errorf("expected edit of the rotated message, got %s of %s", last.kind, last.target)
	}
}

func TestOversizedBlockUploads(t *testing.T) {
	t.Parallel()
	renderer, surface, _ := newTestRenderer(Config{HardLimitChars: 3000, PreviewChars: 400})
	ctx := context.Background()

	text := strings.Repeat("x", 3100)
	if err := renderer.Append(ctx, text); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if got, want := surface.kinds(), []string{"upload", "send", "send"}; !equalStrings(got, want) {
		t.Fatalf("unexpected calls: %v", got)
	}

	upload := surface.calls[0]
	if upload.uploaded != text {
		t.Errorf("uploaded content differs from block (%d bytes)", len(upload.uploaded))
	}
	if !strings.HasPrefix(upload.filename, "output-") || !strings.HasSuffix(upload.filename, ".md") {
		t.Errorf("unexpected upload filename: %q", upload.filename)
	}

	attachment := surface.calls[1]
	if attachment.content.MsgType != messaging.MsgTypeFile {
		t.Errorf("unexpected attachment msgtype: %s", attachment.content.MsgType)
	}
	if attachment.content.URL != "mxc://local/media1" {
		t.Errorf("unexpected attachment URL: %q", attachment.content.URL)
	}

	preview := surface.calls[2]
	if !strings.Contains(preview.content.Body, "full output uploaded as "+upload.filename) {
		t.Errorf("preview is missing the upload marker: %q", preview.content.Body)
	}
	if !strings.Contains(preview.content.Body, "…") {
		t.Errorf("preview is missing the truncation marker: %q", preview.content.Body)
	}
	firstLine := strings.SplitN(preview.content.Body, "\n", 2)[0]
	if got := utf8.RuneCountInString(firstLine); got > 400 {
		t.Errorf("preview length %d exceeds the preview budget", got)
	}

	// The block ended with the upload: the next output starts fresh.
	if err := renderer.Append(ctx, "next turn"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	last := surface.calls[len(surface.calls)-1]
	if last.kind != "send" || last.content.Body != "next turn" {
		t.Errorf("block did not restart after upload: %s %q", last.kind, last.content.Body)
	}
}

func TestUploadDeduplicates(t *testing.T) {
	t.Parallel()
	renderer, surface, _ := newTestRenderer(Config{})
	ctx := context.Background()

	text := strings.Repeat("y", 3000)
	if err := renderer.Append(ctx, text); err != nil {
		t.Fatalf("first Append failed: %v", err)
	}
	if err := renderer.Append(ctx, text); err != nil {
		t.Fatalf("second Append failed: %v", err)
	}

	uploads := 0
	for _, call := range surface.calls {
		if call.kind == "upload" {
			uploads++
		}
	}
	if uploads != 1 {
		t.Errorf("identical content uploaded %d times, want 1", uploads)
	}
	// Both overflows still announce the attachment on the surface.
	if got, want := surface.kinds(), []string{"upload", "send", "send", "send", "send"}; !equalStrings(got, want) {
		t.Errorf("unexpected calls: %v", got)
	}
}

func TestEditTargetMissingFallsBack(t *testing.T) {
	t.Parallel()
	renderer, surface, fake := newTestRenderer(Config{})
	ctx := context.Background()

	if err := renderer.Append(ctx, "hello"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// The target was deleted out from under us.
	surface.editErrs = []error{&messaging.MatrixError{
		Code:       "M_NOT_FOUND",
		Message:    "Event not found.",
		StatusCode: http.StatusNotFound,
	}}
	fake.Advance(time.Second)
	if err := renderer.Append(ctx, " world"); err != nil {
		t.Fatalf("Append after vanished target failed: %v", err)
	}

	if got, want := surface.kinds(), []string{"send", "send"}; !equalStrings(got, want) {
		t.Fatalf("unexpected calls: %v", got)
	}
	if body := surface.calls[1].content.Body; body != "hello world" {
		t.Errorf("fallback message body: %q", body)
	}
}

func TestTransportErrorRetriesOnce(t *testing.T) {
	t.Parallel()
	renderer, surface, _ := newTestRenderer(Config{})
	ctx := context.Background()

	surface.sendErrs = []error{errors.New("connection refused")}
	if err := renderer.Append(ctx, "hello"); err != nil {
		t.Fatalf("Append should succeed on retry: %v", err)
	}
	if got, want := surface.kinds(), []string{"send"}; !equalStrings(got, want) {
		t.Fatalf("unexpected calls: %v", got)
	}
}

func TestTransportFailureResetsTarget(t *testing.T) {
	t.Parallel()
	renderer, surface, fake := newTestRenderer(Config{})
	ctx := context.Background()

	if err := renderer.Append(ctx, "hello"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// Both the edit and its retry fail: the error surfaces and the
	// target resets.
	surface.editErrs = []error{errors.New("boom"), errors.New("boom")}
	fake.Advance(time.Second)
	if err := renderer.Append(ctx, " world"); err == nil {
		t.Fatal("expected error after exhausted retry")
	}

	// The buffered content survives; the next append posts the whole
	// block as a fresh message.
	if err := renderer.Append(ctx, "!"); err != nil {
		t.Fatalf("Append after failure failed: %v", err)
	}
	last := surface.calls[len(surface.calls)-1]
	if last.kind != "send" {
		t.Errorf("expected a fresh message after target reset, got %s", last.kind)
	}
	if last.content.Body != "hello world!" {
		t.Errorf("unexpected recovered body: %q", last.content.Body)
	}
}

func TestTerminalModeFences(t *testing.T) {
	t.Parallel()
	renderer, surface, _ := newTestRenderer(Config{Terminal: true})
	ctx := context.Background()

	if err := renderer.Append(ctx, "$ cat notes.md\n```\ninner fence\n```"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	body := surface.calls[0].content.Body
	if !strings.HasPrefix(body, "```\n") || !strings.HasSuffix(body, "\n```") {
		t.Errorf("terminal output not fenced: %q", body)
	}
	// Only the outer fence pair survives; embedded fences are defused.
	if got := strings.Count(body, "```"); got != 2 {
		t.Errorf("found %d fence runs, want exactly the outer pair: %q", got, body)
	}
}

func TestEndBlock(t *testing.T) {
	t.Parallel()
	renderer, surface, _ := newTestRenderer(Config{})
	ctx := context.Background()

	if err := renderer.Append(ctx, "turn one"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	renderer.EndBlock()
	if err := renderer.Append(ctx, "turn two"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if got, want := surface.kinds(), []string{"send", "send"}; !equalStrings(got, want) {
		t.Fatalf("unexpected calls: %v", got)
	}
	if body := surface.calls[1].content.Body; body != "turn two" {
		t.Errorf("second block body: %q", body)
	}
}

func TestReplaceEditsInPlace(t *testing.T) {
	t.Parallel()
	renderer, surface, _ := newTestRenderer(Config{})
	ctx := context.Background()

	if err := renderer.Replace(ctx, "pane view one"); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if err := renderer.Replace(ctx, "pane view two"); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	if got, want := surface.kinds(), []string{"send", "edit"}; !equalStrings(got, want) {
		t.Fatalf("unexpected calls: %v", got)
	}
	if body := surface.calls[1].content.Body; body != "pane view two" {
		t.Errorf("edited body: %q, want the replacement alone", body)
	}
}

func TestReplaceRotates(t *testing.T) {
	t.Parallel()
	renderer, surface, clk := newTestRenderer(Config{RotationInterval: time.Minute})
	ctx := context.Background()

	if err := renderer.Replace(ctx, "early view"); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	clk.Advance(61 * time.Second)
	if err := renderer.Replace(ctx, "late view"); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	if got, want := surface.kinds(), []string{"send", "send"}; !equalStrings(got, want) {
		t.Fatalf("unexpected calls: %v", got)
	}
	if body := surface.calls[1].content.Body; body != "late view" {
		t.Errorf("post-rotation body: %q", body)
	}
}

func TestUpdatePacingHoldsEdits(t *testing.T) {
	t.Parallel()
	renderer, surface, clk := newTestRenderer(Config{UpdateInterval: time.Second})
	ctx := context.Background()

	if err := renderer.Append(ctx, "one"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	clk.Advance(300 * time.Millisecond)
	if err := renderer.Append(ctx, " two"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	clk.Advance(300 * time.Millisecond)
	if err := renderer.Append(ctx, " three"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if got, want := surface.kinds(), []string{"send"}; !equalStrings(got, want) {
		t.Fatalf("appends inside the window published: %v", got)
	}

	clk.Advance(500 * time.Millisecond)
	if err := renderer.Append(ctx, " four"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if got, want := surface.kinds(), []string{"send", "edit"}; !equalStrings(got, want) {
		t.Fatalf("unexpected calls: %v", got)
	}
	if body := surface.calls[1].content.Body; body != "one two three four" {
		t.Errorf("paced edit body: %q, want the full accumulation", body)
	}
}

func TestFlushPublishesHeldTail(t *testing.T) {
	t.Parallel()
	renderer, surface, clk := newTestRenderer(Config{UpdateInterval: time.Second})
	ctx := context.Background()

	if err := renderer.Append(ctx, "summary:"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	clk.Advance(200 * time.Millisecond)
	if err := renderer.Append(ctx, " it works"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := renderer.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if got, want := surface.kinds(), []string{"send", "edit"}; !equalStrings(got, want) {
		t.Fatalf("unexpected calls: %v", got)
	}
	if body := surface.calls[1].content.Body; body != "summary: it works" {
		t.Errorf("flushed body: %q", body)
	}

	// Nothing is held anymore; a second flush must not publish.
	if err := renderer.Flush(ctx); err != nil {
		t.Fatalf("second Flush failed: %v", err)
	}
	if got := len(surface.calls); got != 2 {
		t.Errorf("idle Flush published: %d calls", got)
	}
}

func TestFlushOnFreshRendererDoesNothing(t *testing.T) {
	t.Parallel()
	renderer, surface, _ := newTestRenderer(Config{UpdateInterval: time.Second})

	if err := renderer.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if got := len(surface.calls); got != 0 {
		t.Errorf("empty Flush published: %d calls", got)
	}
}

func TestEndBlockDropsHeldTail(t *testing.T) {
	t.Parallel()
	renderer, surface, clk := newTestRenderer(Config{UpdateInterval: time.Second})
	ctx := context.Background()

	if err := renderer.Append(ctx, "first"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	clk.Advance(100 * time.Millisecond)
	if err := renderer.Append(ctx, " held"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	renderer.EndBlock()
	if err := renderer.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if err := renderer.Append(ctx, "next block"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if got, want := surface.kinds(), []string{"send", "send"}; !equalStrings(got, want) {
		t.Fatalf("unexpected calls: %v", got)
	}
	if body := surface.calls[1].content.Body; body != "next block" {
		t.Errorf("post-EndBlock body: %q", body)
	}
}

func equalStrings(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
