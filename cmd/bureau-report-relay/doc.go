// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bureau-report-relay forwards Synapse event reports (the abuse
// reports users file against messages) to a Matrix room watched by
// moderators.
//
// The relay polls the homeserver's database for new rows in
// event_reports, formats each one as a notification naming the
// reporter, the reported user, the room and the reason, and posts it
// to the configured room. The id of the last delivered report and the
// relay's Matrix session are kept in a small JSON state file, so a
// restarted relay neither repeats old reports nor logs in again.
//
// Configuration is a YAML file named by --config or REPORT_RELAY_CONFIG;
// see lib/config for the keys. Logs are JSON on stderr.
//
// Modes:
//
//	bureau-report-relay --config relay.yaml          # poll forever
//	bureau-report-relay --config relay.yaml --once   # one cycle, then exit
//	bureau-report-relay --config relay.yaml --check  # verify database and homeserver
//
// The relay exits with status 1 when the homeserver rejects its
// password or the state file cannot be read or written. SIGINT and
// SIGTERM stop it between cycles; a cycle in progress always finishes
// so a delivered report is never left unrecorded.
package main
