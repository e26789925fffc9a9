// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package statefile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/reportbot/lib/ref"
)

func mustUserID(t *testing.T, raw string) ref.UserID {
	t.Helper()
	userID, err := ref.ParseUserID(raw)
	if err != nil {
		t.Fatalf("ParseUserID(%q): %v", raw, err)
	}
	return userID
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	state := State{
		HomeserverURL: "http://localhost:8008",
		UserID:        mustUserID(t, "@zazu:localhost"),
		DeviceID:      "RELAYDEVICE",
		AccessToken:   "syt_secret_token",
		LastReportID:  42,
	}

	if err := Save(path, state); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load returned nil state for an existing file")
	}
	if *loaded != state {
		t.Errorf("Load = %+v, want %+v", *loaded, state)
	}
	if !loaded.HasCredentials() {
		t.Error("HasCredentials() = false for a full record")
	}
}

func TestSaveUsesExternalFieldNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := Save(path, State{
		HomeserverURL: "http://localhost:8008",
		UserID:        mustUserID(t, "@zazu:localhost"),
		DeviceID:      "DEV",
		AccessToken:   "token",
		LastReportID:  7,
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	for _, field := range []string{`"homeserver"`, `"user_id"`, `"device_id"`, `"access_token"`, `"last_message_id": 7`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("state file missing %s:\n%s", field, data)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	state, err := Load(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state != nil {
		t.Fatalf("Load = %+v, want nil for a missing file", state)
	}
	if state.HasCredentials() {
		t.Error("nil state reports credentials")
	}
}

func TestLoadCursorOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`{"last_message_id": 12}`), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	state, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.LastReportID != 12 {
		t.Errorf("LastReportID = %d, want 12", state.LastReportID)
	}
	if state.HasCredentials() {
		t.Error("cursor-only record reports credentials")
	}
}

func TestLoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "truncated", content: `{"last_message_id": `},
		{name: "not an object", content: `[1, 2, 3]`},
		{name: "wrong type", content: `{"last_message_id": "seven"}`},
		{name: "invalid user id", content: `{"user_id": "zazu", "last_message_id": 1}`},
		{name: "negative cursor", content: `{"last_message_id": -1}`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			if err := os.WriteFile(path, []byte(test.content), 0600); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			_, err := Load(path)
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("Load error = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestLoadUnreadable(t *testing.T) {
	// A directory at the state path cannot be read as a file.
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.Mkdir(path, 0700); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	_, err := Load(path)
	if !errors.Is(err, ErrRead) {
		t.Fatalf("Load error = %v, want ErrRead", err)
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := Save(path, State{LastReportID: 1, AccessToken: "old", UserID: mustUserID(t, "@a:b")}); err != nil {
		t.Fatalf("Save first: %v", err)
	}
	if err := Save(path, State{LastReportID: 2}); err != nil {
		t.Fatalf("Save second: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.LastReportID != 2 || loaded.AccessToken != "" {
		t.Errorf("Load = %+v, want only the second record", *loaded)
	}
}

func TestSaveFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := Save(path, State{LastReportID: 3}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if permissions := info.Mode().Perm(); permissions != 0600 {
		t.Errorf("permissions = %o, want 0600", permissions)
	}
}

func TestSaveNoTemporaryFileLeftBehind(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "state.json")
	if err := Save(path, State{LastReportID: 3}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temporary file still present: %v", err)
	}
	entries, err := os.ReadDir(directory)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1", len(entries))
	}
}

func TestSaveMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent", "state.json")
	err := Save(path, State{LastReportID: 1})
	if !errors.Is(err, ErrWrite) {
		t.Fatalf("Save error = %v, want ErrWrite", err)
	}
}
