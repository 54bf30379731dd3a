// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package credfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"

	"github.com/switchboard-dev/switchboard/lib/secret"
)

// Extension marks a token file as sealed.
const Extension = ".age"

// IsSealed reports whether path names a sealed token file.
func IsSealed(path string) bool {
	return strings.HasSuffix(path, Extension)
}

// Seal encrypts the plaintext with the passphrase and writes the result
// to path (mode 0600). The plaintext and passphrase buffers are
// borrowed, not closed.
func Seal(path string, plaintext, passphrase *secret.Buffer) error {
	recipient, err := age.NewScryptRecipient(passphrase.String())
	if err != nil {
		return fmt.Errorf("deriving key from passphrase: %w", err)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipient)
	if err != nil {
		return fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext.Bytes()); err != nil {
		return fmt.Errorf("encrypting token: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalizing age encryption: %w", err)
	}

	if err := os.WriteFile(path, ciphertext.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing sealed file: %w", err)
	}
	return nil
}

// Open decrypts the sealed file at path with the passphrase. Returns
// the plaintext in a secret.Buffer; the caller must Close it. The
// passphrase buffer is borrowed, not closed.
func Open(path string, passphrase *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.NewScryptIdentity(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("deriving key from passphrase: %w", err)
	}

	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting %s: %w", path, err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted token: %w", err)
	}

	trimmed := bytes.TrimSpace(plaintext)
	if len(trimmed) == 0 {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("sealed file %s holds an empty token", path)
	}

	// NewFromBytes zeros trimmed; zero the surrounding whitespace too.
	buffer, err := secret.NewFromBytes(trimmed)
	secret.Zero(plaintext)
	if err != nil {
		return nil, fmt.Errorf("protecting decrypted token: %w", err)
	}
	return buffer, nil
}

// LoadToken loads the access token from path. A plain file must be
// mode 0600 and is read directly; a sealed file is decrypted with the
// passphrase found in the environment variable named by passphraseEnv.
// The caller must Close the returned buffer.
func LoadToken(path, passphraseEnv string) (*secret.Buffer, error) {
	if !IsSealed(path) {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if mode := info.Mode().Perm(); mode&0o077 != 0 {
			return nil, fmt.Errorf("plaintext token file %s is mode %04o; chmod it to 0600 or seal it", path, mode)
		}
		return secret.ReadFromPath(path)
	}

	value := os.Getenv(passphraseEnv)
	if value == "" {
		return nil, fmt.Errorf("%s is sealed but %s is not set", path, passphraseEnv)
	}
	passphrase, err := secret.NewFromBytes([]byte(value))
	if err != nil {
		return nil, fmt.Errorf("protecting passphrase: %w", err)
	}
	defer passphrase.Close()

	return Open(path, passphrase)
}
