// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds the relay's two long-lived secrets, the bot
// account password and the Matrix access token, in memory that the Go
// runtime never manages.
//
// A [Buffer] is an anonymous mmap region locked into RAM (mlock) and
// excluded from core dumps (MADV_DONTDUMP). Close zeroes, unlocks, and
// unmaps it; any access afterwards panics.
//
// Constructors: [NewFromBytes] moves bytes into a buffer and zeroes
// the source; [NewFromString] copies a string that the caller already
// had to hold on the heap (configuration values, JSON fields);
// [ReadFromPath] reads a password file or stdin.
//
// Depends on golang.org/x/sys/unix.
package secret
