// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O helpers shared by the Matrix client.
//
// Response bodies are read through a fixed bound ([MaxResponseSize]) so
// a misbehaving homeserver cannot exhaust memory. [IsTransient]
// classifies transport errors that are worth retrying.
package netutil
