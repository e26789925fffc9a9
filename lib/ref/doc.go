// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated, immutable Matrix identifiers: user
// IDs (@localpart:server), room IDs (!opaque:server) and event IDs
// ($opaque).
//
// Identifiers are parsed once at the boundary where they enter the
// process (configuration, the state file, homeserver responses) and
// carried as value types afterwards, so a room ID can never be passed
// where a user ID is expected. All types implement
// encoding.TextMarshaler and encoding.TextUnmarshaler; the empty string
// round-trips as the zero value.
//
// Rows read from the Synapse database are not parsed into these types.
// They are rendered verbatim into notifications, and a malformed
// identifier in a report must not prevent the report from being
// delivered.
package ref
