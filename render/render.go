// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"time"
	"unicode/utf8"

	"github.com/switchboard-dev/switchboard/lib/ref"
)

// Action is the surface operation a render pass performs.
type Action int

const (
	// ActionUpdate edits the current target message in place.
	ActionUpdate Action = iota
	// ActionCreateNew posts a new message and makes it the target.
	ActionCreateNew
	// ActionUpload moves the block to an uploaded file with an
	// on-surface preview.
	ActionUpload
)

func (a Action) String() string {
	switch a {
	case ActionUpdate:
		return "update"
	case ActionCreateNew:
		return "create-new"
	case ActionUpload:
		return "upload"
	default:
		return "unknown"
	}
}

// Config bounds rendered output. The zero value is usable; unset
// fields take the defaults below.
type Config struct {
	// RotationInterval is how old a target message may grow before an
	// update is forced into a new message instead. Default 60s.
	RotationInterval time.Duration

	// UpdateInterval is the minimum spacing between in-place edits to
	// the target message. Appends landing inside the window stay
	// buffered until the next publish or an explicit [Renderer.Flush].
	// Zero disables pacing. New messages and uploads are never held.
	UpdateInterval time.Duration

	// HardLimitChars is the block size (in runes) at which output
	// moves to an uploaded file. Default 3000.
	HardLimitChars int

	// PreviewChars is the length of the on-surface preview posted
	// alongside an upload. Default 400.
	PreviewChars int

	// Terminal formats output as a fenced code block (console
	// snapshots) instead of rendering it as markdown.
	Terminal bool
}

func (c Config) withDefaults() Config {
	if c.RotationInterval <= 0 {
		c.RotationInterval = 60 * time.Second
	}
	if c.HardLimitChars <= 0 {
		c.HardLimitChars = 3000
	}
	if c.PreviewChars <= 0 || c.PreviewChars >= c.HardLimitChars {
		c.PreviewChars = 400
	}
	return c
}

// State is the mutable render state of one output block.
type State struct {
	// Target is the message currently being edited in place. Zero when
	// the block has not been posted yet.
	Target ref.EventID

	// CreatedAt is when Target was posted. Rotation is measured from
	// here, not from the last edit.
	CreatedAt time.Time
}

// Rotated reports whether the target exists but has aged past the
// rotation interval, forcing the next publish into a new message.
// config must already carry resolved defaults.
func (s State) Rotated(config Config, now time.Time) bool {
	return !s.Target.IsZero() && now.Sub(s.CreatedAt) > config.RotationInterval
}

// Decide picks the surface action for a block of accumulated text.
//
// Size wins over everything else: a block at or past the hard limit is
// uploaded whether or not a target exists. Below the limit, a missing
// or rotated target forces a new message and anything else is an
// in-place edit.
func Decide(config Config, state State, now time.Time, text string) Action {
	config = config.withDefaults()
	if utf8.RuneCountInString(text) >= config.HardLimitChars {
		return ActionUpload
	}
	if state.Target.IsZero() {
		return ActionCreateNew
	}
	if state.Rotated(config, now) {
		return ActionCreateNew
	}
	return ActionUpdate
}

// Truncate shortens text to at most limit runes. Anything cut is
// replaced by a trailing ellipsis so truncation is never silent.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	if limit == 1 {
		return "…"
	}
	return string(runes[:limit-1]) + "…"
}
