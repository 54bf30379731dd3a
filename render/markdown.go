// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"bytes"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// converterInstance is initialized once and reused. The converter
// configuration never changes and goldmark converters are safe to
// share across goroutines.
var (
	converterInstance goldmark.Markdown
	converterOnce     sync.Once
)

func getConverter() goldmark.Markdown {
	converterOnce.Do(func() {
		converterInstance = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
			),
		)
	})
	return converterInstance
}

// ToHTML renders markdown as the HTML fragment Matrix clients expect
// in formatted_body (org.matrix.custom.html).
func ToHTML(markdown string) (string, error) {
	if markdown == "" {
		return "", nil
	}
	var buffer bytes.Buffer
	if err := getConverter().Convert([]byte(markdown), &buffer); err != nil {
		return "", err
	}
	return strings.TrimSpace(buffer.String()), nil
}
