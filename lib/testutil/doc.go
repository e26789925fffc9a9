// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides helpers shared by the relay's package
// tests: bounded channel receives that fail instead of hanging, and a
// structured logger that writes through testing.TB so log output is
// attributed to the test that produced it.
package testutil
