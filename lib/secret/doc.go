// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive data, in
// this codebase the Matrix access token and the credential-file
// passphrase.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the
// memory is zeroed, unlocked, and unmapped. Because the memory lives
// outside the Go heap, the garbage collector cannot copy or relocate
// it, so secret material does not persist after release.
//
// [ReadFromPath] loads a secret from a file or stdin directly into a
// Buffer, trimming surrounding whitespace and zeroing intermediate
// copies.
package secret
