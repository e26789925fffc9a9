// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventreport models a Synapse event report and renders it as
// the notification posted to the moderation room.
//
// [Format] is pure: the same [Report] always yields the same
// [Message]. The plain body follows a fixed template. The HTML body is
// rendered from an equivalent Markdown document with goldmark; every
// value taken from the report is escaped so it renders literally, and
// raw HTML is never passed through.
//
// A report whose stored event JSON is not an object, or has no
// "content" field, fails with [ErrMalformed]. A report whose event has
// been purged (no JSON at all) is not malformed; its content renders
// as a placeholder.
package eventreport
