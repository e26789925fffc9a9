// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package statefile persists the relay's durable state: the Matrix
// credentials from the last password login and the id of the last
// event report delivered to the notification room.
//
// The file is a single JSON object:
//
//	{
//	  "homeserver": "https://matrix.example.org",
//	  "user_id": "@zazu:example.org",
//	  "device_id": "ABCDEFGHIJ",
//	  "access_token": "syt_...",
//	  "last_message_id": 42
//	}
//
// [Save] replaces the file atomically (temporary file, fsync, rename,
// directory fsync), so a crash leaves either the previous record or the
// new one on disk, never a mixture. The file holds a bearer token and
// is created with mode 0600.
//
// [Tracker] is the single in-memory copy used while the relay runs. A
// mutation is persisted first and applied in memory only after the
// save succeeds, so memory never runs ahead of disk.
//
// Errors are classified with sentinels: [ErrCorrupt] for an existing
// file that cannot be parsed, [ErrRead] for other read failures, and
// [ErrWrite] for failed saves. All three are fatal to the relay.
package statefile
