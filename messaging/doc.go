// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is the relay's Matrix client-server API client. It
// covers the endpoints a notification bot needs: password login,
// server versions, room join, whoami, and room message sends.
//
// [Client] is unauthenticated and holds the homeserver URL, the HTTP
// transport, and the retry policy. [Client.Login] and
// [Client.SessionFromToken] produce a [DirectSession] whose access
// token lives in a [secret.Buffer]; close the session to release it.
//
// Idempotent requests (join and send) are retried under [RetryPolicy]:
// transport failures, HTTP 429, and 5xx responses are retried with
// exponential backoff, and M_LIMIT_EXCEEDED responses wait the
// server's retry_after_ms. Any other 4xx fails immediately. Login is
// never retried because each successful attempt creates a device.
//
// Homeserver error responses are returned as *[MatrixError]; use
// errors.As or [IsMatrixError] to inspect them.
package messaging
