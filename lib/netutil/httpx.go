// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O helpers.
//
// Response body reads are bounded at [MaxResponseSize] so that a
// misbehaving server cannot exhaust memory. The helpers are for JSON
// API responses (Matrix client-server API, the daemon's status API),
// not for streaming bodies, which should be read incrementally.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON API response body reads: 256 MB. Real
// responses are orders of magnitude smaller; the limit only exists to
// stop a pathological response from exhausting system memory.
const MaxResponseSize int64 = 256 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize
// bytes. Use instead of io.ReadAll on HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a bounded response body and JSON-decodes it
// into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody reads an HTTP error response body for inclusion in an
// error message. Read errors are ignored; a partial body is still
// useful diagnostics.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	return string(data)
}
