// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package statefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/reportbot/lib/ref"
	"github.com/bureau-foundation/reportbot/lib/secret"
)

var (
	// ErrCorrupt means the state file exists but is not a valid record.
	// The relay refuses to start rather than resetting the cursor.
	ErrCorrupt = errors.New("state file corrupt")

	// ErrRead means the state file exists but could not be read.
	ErrRead = errors.New("state file unreadable")

	// ErrWrite means a save did not complete. The previous record is
	// still on disk.
	ErrWrite = errors.New("state file write failed")
)

// State is the durable record. The zero value is a valid first-run
// state: no credentials, cursor 0.
type State struct {
	HomeserverURL string     `json:"homeserver,omitempty"`
	UserID        ref.UserID `json:"user_id"`
	DeviceID      string     `json:"device_id,omitempty"`
	AccessToken   string     `json:"access_token,omitempty"`

	// LastReportID is the id of the last event report delivered. Only
	// reports with a strictly greater id are fetched.
	LastReportID int64 `json:"last_message_id"`
}

// HasCredentials reports whether the record carries a usable session.
func (s *State) HasCredentials() bool {
	return s != nil && s.AccessToken != "" && !s.UserID.IsZero()
}

// Load reads the state file at path. A missing file is a first run and
// returns (nil, nil).
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("statefile: %w: %w", ErrRead, err)
	}
	defer secret.Zero(data)

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("statefile: %w: parsing %s: %w", ErrCorrupt, path, err)
	}
	if state.LastReportID < 0 {
		return nil, fmt.Errorf("statefile: %w: %s has negative last_message_id %d", ErrCorrupt, path, state.LastReportID)
	}
	return &state, nil
}

// Save atomically replaces the state file at path with state. The
// parent directory must exist.
func Save(path string, state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("statefile: %w: marshaling: %w", ErrWrite, err)
	}
	data = append(data, '\n')
	defer secret.Zero(data)

	temporaryPath := path + ".tmp"
	if err := writeSynced(temporaryPath, data); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("statefile: %w: %w", ErrWrite, err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("statefile: %w: renaming into place: %w", ErrWrite, err)
	}

	// The rename is only durable once the directory entry is flushed.
	if directory, err := os.Open(filepath.Dir(path)); err == nil {
		directory.Sync()
		directory.Close()
	}
	return nil
}

// writeSynced writes data to a fresh 0600 file and fsyncs it before
// closing.
func writeSynced(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}
