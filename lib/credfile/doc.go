// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package credfile reads and writes the daemon's Matrix access token.
//
// A token file is either plain (the bare token, mode 0600) or sealed: a
// passphrase-encrypted age file, recognized by its .age extension and
// produced by switchboard-credentials. Sealed files use age's scrypt
// recipient, so there is no keypair to manage; the daemon takes the
// passphrase from an environment variable at startup.
//
// Decrypted tokens are returned as [secret.Buffer] values (mmap-backed,
// locked against swap, zeroed on close).
package credfile
