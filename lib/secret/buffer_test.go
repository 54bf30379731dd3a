// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestNewFromBytesZerosSource(t *testing.T) {
	t.Parallel()

	source := []byte("syt_c3dpdGNoYm9hcmQ_token")
	buffer, err := NewFromBytes(append([]byte(nil), source...))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	copied := append([]byte(nil), source...)
	if _, err := NewFromBytes(copied); err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	if !bytes.Equal(copied, make([]byte, len(copied))) {
		t.Fatal("source slice was not zeroed")
	}
}

func TestBufferRoundTrip(t *testing.T) {
	t.Parallel()

	buffer, err := NewFromBytes([]byte("hunter2"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if got, want := buffer.String(), "hunter2"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if got, want := buffer.Len(), len("hunter2"); got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
}

func TestCloseIsIdempotentAndPoisons(t *testing.T) {
	t.Parallel()

	buffer, err := NewFromBytes([]byte("short-lived"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("Bytes() after Close did not panic")
		}
	}()
	buffer.Bytes()
}

func TestReadFromPathTrims(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  tok_value\n"), 0o600); err != nil {
		t.Fatalf("write token file: %v", err)
	}

	buffer, err := ReadFromPath(path)
	if err != nil {
		t.Fatalf("ReadFromPath: %v", err)
	}
	defer buffer.Close()

	if got, want := buffer.String(), "tok_value"; got != want {
		t.Fatalf("ReadFromPath value = %q, want %q", got, want)
	}
}

func TestReadFromPathRejectsEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(path, []byte(" \n "), 0o600); err != nil {
		t.Fatalf("write empty file: %v", err)
	}
	if _, err := ReadFromPath(path); err == nil {
		t.Fatal("expected error for whitespace-only secret")
	}
}
