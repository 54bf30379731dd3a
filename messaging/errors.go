// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// MatrixError represents a structured error response from the Matrix
// homeserver. Callers can use errors.As to extract the structured
// information:
//
//	var matrixErr *MatrixError
//	if errors.As(err, &matrixErr) {
//	    if matrixErr.Code == ErrCodeNotFound { ... }
//	}
type MatrixError struct {
	// Code is the Matrix error code (e.g., "M_FORBIDDEN", "M_UNKNOWN_TOKEN").
	Code string `json:"errcode"`
	// Message is the human-readable error description from the server.
	Message string `json:"error"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Standard Matrix error codes.
const (
	ErrCodeForbidden     = "M_FORBIDDEN"
	ErrCodeUnknownToken  = "M_UNKNOWN_TOKEN"
	ErrCodeNotFound      = "M_NOT_FOUND"
	ErrCodeLimitExceeded = "M_LIMIT_EXCEEDED"
	ErrCodeUnrecognized  = "M_UNRECOGNIZED"
	ErrCodeUnknown       = "M_UNKNOWN"
	ErrCodeTooLarge      = "M_TOO_LARGE"
)

// IsMatrixError checks whether err is a *MatrixError with the given error code.
func IsMatrixError(err error, code string) bool {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == code
	}
	return false
}

// IsEditTargetMissing reports whether an EditMessage failure means the
// target event no longer exists, so the caller should post a fresh
// message instead. Synapse rejects relations to unknown events with a
// 400 M_UNKNOWN mentioning the event; other homeservers use
// M_NOT_FOUND.
func IsEditTargetMissing(err error) bool {
	var matrixErr *MatrixError
	if !errors.As(err, &matrixErr) {
		return false
	}
	if matrixErr.Code == ErrCodeNotFound {
		return true
	}
	return matrixErr.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(matrixErr.Message), "unknown event")
}

// IsAuthFailure reports whether err means the access token is no
// longer valid. There is no recovering from this without operator
// intervention; the daemon shuts down rather than spinning on /sync.
func IsAuthFailure(err error) bool {
	return IsMatrixError(err, ErrCodeUnknownToken) || IsMatrixError(err, ErrCodeForbidden)
}
