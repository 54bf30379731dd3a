// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"strings"
	"testing"
)

func TestToHTML(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		markdown string
		contains []string
	}{
		{
			name:     "emphasis",
			markdown: "fixed the **parser** bug",
			contains: []string{"<p>", "<strong>parser</strong>"},
		},
		{
			name:     "fenced code",
			markdown: "```go\nreturn nil\n```",
			contains: []string{"<pre><code class=\"language-go\">return nil"},
		},
		{
			name:     "strikethrough",
			markdown: "~~old~~ new",
			contains: []string{"<del>old</del>"},
		},
		{
			name:     "list",
			markdown: "- one\n- two",
			contains: []string{"<ul>", "<li>one</li>"},
		},
		{
			name:     "raw html omitted",
			markdown: "a <script>alert(1)</script> tag",
			contains: []string{"<!-- raw HTML omitted -->"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			got, err := ToHTML(test.markdown)
			if err != nil {
				t.Fatalf("ToHTML failed: %v", err)
			}
			for _, want := range test.contains {
				if !strings.Contains(got, want) {
					t.Errorf("output missing %q:\n%s", want, got)
				}
			}
		})
	}
}

func TestToHTMLEmpty(t *testing.T) {
	t.Parallel()
	got, err := ToHTML("")
	if err != nil {
		t.Fatalf("ToHTML failed: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty output, got %q", got)
	}
}
