// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay moves event reports from the database to the
// notification room.
//
// Each cycle reads every report newer than the persisted cursor,
// formats and delivers them in id order, and advances the cursor after
// each successful delivery. The cursor is saved before the next report
// is attempted, so a crash loses at most the one report in flight, and
// that report is sent again on restart (at-least-once delivery). A
// failed delivery ends the cycle with the cursor unchanged; later
// reports wait for it, so a transient failure never leaves a gap.
//
// Only authentication rejection and state file failures are fatal.
// Everything else is logged and retried on the next poll.
package relay
