// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package delivery posts formatted reports to the notification room.
//
// A [Deliverer] owns the relay's Matrix identity. Each [Deliverer.Deliver]
// call obtains a session, makes sure the account is in the room, sends
// one message and closes the session again, so no token is held in
// memory between polls.
//
// Sessions come from [Credentials]. With [CachedCredentials] the
// persisted access token is reused without contacting the homeserver.
// With [NoCredentials] the deliverer logs in with the configured
// password, writes the new token to its [CredentialStore], and switches
// to cached credentials for every later delivery. A cached token that
// the homeserver no longer recognises drops the deliverer back to
// NoCredentials, and the next delivery logs in again.
//
// Messages are sent under a transaction ID derived from the device,
// room and report id (see [TransactionID]). A report re-sent after a
// crash between sending and saving the cursor reuses the same ID, and
// the homeserver returns the original event instead of posting again,
// as long as the device has not changed.
//
// Errors wrap [ErrAuthFailed] when the homeserver rejects the password
// and [ErrSend] for everything the relay should retry on its next poll.
package delivery
