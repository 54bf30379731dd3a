// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package tmux

import "testing"

func TestTailString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{name: "empty", input: "", n: 3, want: ""},
		{name: "fewer lines than n", input: "a\nb\n", n: 5, want: "a\nb\n"},
		{name: "exact count", input: "a\nb\nc\n", n: 3, want: "a\nb\nc\n"},
		{name: "tails terminated lines", input: "a\nb\nc\nd\n", n: 2, want: "c\nd\n"},
		{name: "unterminated last line", input: "a\nb\nc", n: 2, want: "b\nc"},
		{name: "single line wanted", input: "a\nb\nc\n", n: 1, want: "c\n"},
		{name: "trailing empty line counts", input: "a\nb\n\n", n: 2, want: "b\n\n"},
		{name: "interior empty lines count", input: "a\n\nb\n", n: 2, want: "\nb\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tailString(tt.input, tt.n); got != tt.want {
				t.Errorf("tailString(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
			}
		})
	}
}
