// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the two time operations the relay depends
// on: reading the current time and waiting for a duration. The poll
// loop waits between cycles and the Matrix client backs off between
// send attempts; both take a [Clock] so tests can drive them with
// [Fake] instead of sleeping.
//
// Waits are expressed as channels ([Clock.After]) so callers can
// select on them together with a context:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-clk.After(interval):
//	}
package clock
