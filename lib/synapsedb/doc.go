// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package synapsedb reads event reports from a Synapse homeserver's
// database.
//
// A [Source] returns every report with an id greater than a cursor, in
// ascending id order. Two implementations exist: [PostgresSource] for
// the usual production deployment and [SQLiteSource] for small
// homeservers and tests. Both open the database read-only, acquire a
// connection for a single fetch, and release it before returning, so
// nothing is held open across the relay's idle interval.
//
// By default reports are read from Synapse's own tables. The reported
// room's alias comes from room_aliases (the lexically smallest when a
// room has several, so a report is never duplicated), and the
// reported event's sender and JSON come from events and event_json.
// All three joins are outer joins: a report whose event has been
// purged is still returned, with an empty sender and nil content.
//
// Deployments that expose reports through a database view instead can
// configure its name; the view must provide the columns
//
//	id, received_ts, room_id, room_alias, sender, user_id, reason, event_content
//
// Every failure is wrapped with [ErrUnavailable]. Sources never retry;
// the relay tries again on its next poll.
package synapsedb
