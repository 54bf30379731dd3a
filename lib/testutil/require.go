// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import "time"

// failer is the subset of *testing.T these helpers need. Accepting the
// interface keeps the package importable from helper types that wrap a
// *testing.T.
type failer interface {
	Helper()
	Fatalf(format string, args ...any)
}

// receiveTimeout is the safety valve for RequireReceive and friends.
// Generous because CI machines stall; tests that pass locally in
// microseconds should not flake under load.
const receiveTimeout = 10 * time.Second

// quietWindow is how long RequireNoReceive watches a channel before
// declaring it silent.
const quietWindow = 50 * time.Millisecond

// RequireReceive waits for a value on channel and returns it, failing
// the test if nothing arrives within the safety-valve timeout. The
// description names the expected value in the failure message.
func RequireReceive[T any](t failer, channel <-chan T, description string) T {
	t.Helper()
	select {
	case value := <-channel:
		return value
	case <-time.After(receiveTimeout):
		t.Fatalf("timed out waiting to receive %s", description)
		panic("unreachable")
	}
}

// RequireSend sends value on channel, failing the test if the send does
// not complete within the safety-valve timeout (for example because the
// consumer goroutine exited early).
func RequireSend[T any](t failer, channel chan<- T, value T, description string) {
	t.Helper()
	select {
	case channel <- value:
	case <-time.After(receiveTimeout):
		t.Fatalf("timed out waiting to send %s", description)
	}
}

// RequireClosed waits for channel to be closed, failing the test if it
// still holds a value or stays open past the safety-valve timeout.
func RequireClosed[T any](t failer, channel <-chan T, description string) {
	t.Helper()
	select {
	case value, ok := <-channel:
		if ok {
			t.Fatalf("expected %s to be closed, received value %v", description, value)
		}
	case <-time.After(receiveTimeout):
		t.Fatalf("timed out waiting for %s to close", description)
	}
}

// RequireNoReceive asserts that channel delivers nothing for a short
// window. Use it to check that an operation did NOT produce a message,
// request, or event. The window is deliberately short: this helper
// proves a negative, so it costs wall-clock time on every call.
func RequireNoReceive[T any](t failer, channel <-chan T, description string) {
	t.Helper()
	select {
	case value := <-channel:
		t.Fatalf("expected no %s, received %v", description, value)
	case <-time.After(quietWindow):
	}
}
