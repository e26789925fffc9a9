// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package statefile

import (
	"fmt"

	"github.com/bureau-foundation/reportbot/lib/ref"
)

// Credentials is the session produced by a password login.
type Credentials struct {
	HomeserverURL string
	UserID        ref.UserID
	DeviceID      string
	AccessToken   string
}

// Tracker owns the in-memory state and the path it is persisted to.
// Not safe for concurrent use; the relay runs a single goroutine.
type Tracker struct {
	path  string
	state State
}

// NewTracker returns a tracker for path, starting from initial. A nil
// initial (first run) starts from the zero State.
func NewTracker(path string, initial *State) *Tracker {
	tracker := &Tracker{path: path}
	if initial != nil {
		tracker.state = *initial
	}
	return tracker
}

// Path returns the state file path.
func (t *Tracker) Path() string { return t.path }

// State returns a copy of the current state.
func (t *Tracker) State() State { return t.state }

// Cursor returns the id of the last delivered report.
func (t *Tracker) Cursor() int64 { return t.state.LastReportID }

// Advance records id as delivered. id must be greater than the current
// cursor. The new cursor is saved before it becomes visible through
// Cursor; on error the tracker is unchanged.
func (t *Tracker) Advance(id int64) error {
	if id <= t.state.LastReportID {
		return fmt.Errorf("statefile: cursor cannot move from %d to %d", t.state.LastReportID, id)
	}
	next := t.state
	next.LastReportID = id
	if err := Save(t.path, next); err != nil {
		return err
	}
	t.state = next
	return nil
}

// StoreCredentials persists a fresh login, keeping the cursor. On
// error the tracker is unchanged.
func (t *Tracker) StoreCredentials(credentials Credentials) error {
	next := t.state
	next.HomeserverURL = credentials.HomeserverURL
	next.UserID = credentials.UserID
	next.DeviceID = credentials.DeviceID
	next.AccessToken = credentials.AccessToken
	if err := Save(t.path, next); err != nil {
		return err
	}
	t.state = next
	return nil
}
