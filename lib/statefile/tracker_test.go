// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package statefile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestTrackerAdvance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	tracker := NewTracker(path, nil)

	if tracker.Cursor() != 0 {
		t.Fatalf("initial Cursor() = %d, want 0", tracker.Cursor())
	}
	for _, id := range []int64{3, 4, 10} {
		if err := tracker.Advance(id); err != nil {
			t.Fatalf("Advance(%d): %v", id, err)
		}
		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if loaded.LastReportID != id {
			t.Errorf("persisted cursor = %d, want %d", loaded.LastReportID, id)
		}
	}
	if tracker.Cursor() != 10 {
		t.Errorf("Cursor() = %d, want 10", tracker.Cursor())
	}
}

func TestTrackerAdvanceRejectsNonIncreasing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	tracker := NewTracker(path, &State{LastReportID: 5})

	for _, id := range []int64{5, 4, 0} {
		if err := tracker.Advance(id); err == nil {
			t.Errorf("Advance(%d) from 5 succeeded", id)
		}
	}
	if tracker.Cursor() != 5 {
		t.Errorf("Cursor() = %d, want 5", tracker.Cursor())
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("rejected Advance wrote the state file")
	}
}

func TestTrackerFailedSaveLeavesMemoryUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent", "state.json")
	tracker := NewTracker(path, &State{LastReportID: 5})

	err := tracker.Advance(6)
	if !errors.Is(err, ErrWrite) {
		t.Fatalf("Advance error = %v, want ErrWrite", err)
	}
	if tracker.Cursor() != 5 {
		t.Errorf("Cursor() = %d after failed save, want 5", tracker.Cursor())
	}

	err = tracker.StoreCredentials(Credentials{AccessToken: "token", UserID: mustUserID(t, "@zazu:localhost")})
	if !errors.Is(err, ErrWrite) {
		t.Fatalf("StoreCredentials error = %v, want ErrWrite", err)
	}
	state := tracker.State()
	if state.HasCredentials() {
		t.Error("credentials visible after failed save")
	}
}

func TestTrackerStoreCredentialsKeepsCursor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	tracker := NewTracker(path, &State{LastReportID: 9})

	credentials := Credentials{
		HomeserverURL: "http://localhost:8008",
		UserID:        mustUserID(t, "@zazu:localhost"),
		DeviceID:      "DEVICE",
		AccessToken:   "syt_token",
	}
	if err := tracker.StoreCredentials(credentials); err != nil {
		t.Fatalf("StoreCredentials: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := State{
		HomeserverURL: credentials.HomeserverURL,
		UserID:        credentials.UserID,
		DeviceID:      credentials.DeviceID,
		AccessToken:   credentials.AccessToken,
		LastReportID:  9,
	}
	if *loaded != want {
		t.Errorf("persisted = %+v, want %+v", *loaded, want)
	}
	if tracker.State() != want {
		t.Errorf("in memory = %+v, want %+v", tracker.State(), want)
	}
}
