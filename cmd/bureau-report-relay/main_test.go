// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/reportbot/lib/sqlitepool"
	"github.com/bureau-foundation/reportbot/lib/statefile"
)

func TestParseOptions(t *testing.T) {
	opts, _, err := parseOptions([]string{"--config", "relay.yaml", "--log-level", "debug", "--once"})
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if opts.configPath != "relay.yaml" || opts.logLevel != "debug" || !opts.once || opts.check {
		t.Errorf("unexpected options %+v", opts)
	}

	for _, args := range [][]string{
		{"--once", "--check"},
		{"extra"},
		{"--unknown"},
	} {
		if _, _, err := parseOptions(args); err == nil {
			t.Errorf("parseOptions(%q) succeeded", args)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var output strings.Builder
	logger, err := newLogger("warn", &output)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "report_id", 7)
	if strings.Contains(output.String(), "hidden") || !strings.Contains(output.String(), `"report_id":7`) {
		t.Errorf("unexpected log output %q", output.String())
	}

	if _, err := newLogger("verbose", &output); err == nil {
		t.Error("accepted unknown log level")
	}
}

func TestVersionAndHelp(t *testing.T) {
	var stdout, stderr strings.Builder
	if err := run(context.Background(), []string{"--version"}, &stdout, &stderr); err != nil {
		t.Fatalf("--version: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), binaryName+" ") {
		t.Errorf("--version printed %q", stdout.String())
	}

	stdout.Reset()
	if err := run(context.Background(), []string{"--help"}, &stdout, &stderr); err != nil {
		t.Fatalf("--help: %v", err)
	}
	for _, flag := range []string{"--config", "--log-level", "--once", "--check", "--version"} {
		if !strings.Contains(stdout.String(), flag) {
			t.Errorf("help does not mention %s:\n%s", flag, stdout.String())
		}
	}
}

// homeserver is a minimal fake homeserver for end-to-end runs.
type homeserver struct {
	mu       sync.Mutex
	logins   int
	messages []string
}

func (h *homeserver) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /_matrix/client/versions", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"versions":["v1.11"]}`)
	})
	mux.HandleFunc("POST /_matrix/client/v3/login", func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.logins++
		h.mu.Unlock()
		fmt.Fprint(w, `{"user_id":"@zazu:localhost","access_token":"token-1","device_id":"RELAYDEVICE"}`)
	})
	mux.HandleFunc("GET /_matrix/client/v3/account/whoami", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"user_id":"@zazu:localhost","device_id":"RELAYDEVICE"}`)
	})
	mux.HandleFunc("POST /_matrix/client/v3/join/{room}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"room_id":%q}`, r.PathValue("room"))
	})
	mux.HandleFunc("PUT /_matrix/client/v3/rooms/{room}/send/{type}/{txn}", func(w http.ResponseWriter, r *http.Request) {
		var content struct {
			Body string `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&content); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.mu.Lock()
		h.messages = append(h.messages, content.Body)
		count := len(h.messages)
		h.mu.Unlock()
		fmt.Fprintf(w, `{"event_id":"$sent%d"}`, count)
	})
	return mux
}

func writeSynapseDatabase(t *testing.T, path string) {
	t.Helper()
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path: path,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteTransient(conn, "PRAGMA journal_mode=DELETE", nil)
		},
	})
	if err != nil {
		t.Fatalf("sqlitepool.Open: %v", err)
	}
	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	err = sqlitex.ExecuteScript(conn, `
		CREATE TABLE event_reports (id BIGINT PRIMARY KEY, received_ts BIGINT NOT NULL, room_id TEXT NOT NULL,
			event_id TEXT NOT NULL, user_id TEXT NOT NULL, reason TEXT, content TEXT);
		CREATE TABLE room_aliases (room_alias TEXT NOT NULL, room_id TEXT NOT NULL, creator TEXT);
		CREATE TABLE events (event_id TEXT NOT NULL, room_id TEXT NOT NULL, type TEXT NOT NULL, sender TEXT);
		CREATE TABLE event_json (event_id TEXT NOT NULL, room_id TEXT NOT NULL, internal_metadata TEXT NOT NULL,
			json TEXT NOT NULL, format_version INTEGER);

		INSERT INTO room_aliases VALUES ('#lobby:localhost', '!lobby:localhost', NULL);
		INSERT INTO events VALUES ('$a', '!lobby:localhost', 'm.room.message', '@spammer:localhost');
		INSERT INTO events VALUES ('$b', '!dm:localhost', 'm.room.message', '@rude:localhost');
		INSERT INTO event_json VALUES ('$a', '!lobby:localhost', '{}', '{"content":{"body":"cheap pills"}}', 3);
		INSERT INTO event_json VALUES ('$b', '!dm:localhost', '{}', '{"content":{"body":"private"}}', 3);
		INSERT INTO event_reports VALUES (1, 1700000000000, '!lobby:localhost', '$a', '@mod:localhost', 'spam', NULL);
		INSERT INTO event_reports VALUES (2, 1700000001000, '!dm:localhost', '$b', '@victim:localhost', 'abuse', NULL);
	`, nil)
	if err != nil {
		t.Fatalf("creating fixture: %v", err)
	}
	pool.Put(conn)
	if err := pool.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func writeRelayConfig(t *testing.T, directory, homeserverURL string) string {
	t.Helper()
	content := fmt.Sprintf(`
matrix:
  homeserver: %s
  account: zazu
  password: hunter2
  room_id: "!reports:localhost"
  send_attempts: 1
database:
  driver: sqlite
  path: %s
relay:
  state_file: %s
`, homeserverURL, filepath.Join(directory, "homeserver.db"), filepath.Join(directory, "state.json"))
	path := filepath.Join(directory, "relay.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRunOnce(t *testing.T) {
	directory := t.TempDir()
	writeSynapseDatabase(t, filepath.Join(directory, "homeserver.db"))
	fake := &homeserver{}
	server := httptest.NewServer(fake.handler())
	defer server.Close()
	configPath := writeRelayConfig(t, directory, server.URL)

	var stdout, stderr strings.Builder
	if err := run(context.Background(), []string{"--config", configPath, "--once"}, &stdout, &stderr); err != nil {
		t.Fatalf("run --once: %v\n%s", err, stderr.String())
	}

	fake.mu.Lock()
	messages := append([]string(nil), fake.messages...)
	logins := fake.logins
	fake.mu.Unlock()

	if logins != 1 {
		t.Errorf("logins = %d, want 1", logins)
	}
	want := []string{
		"@mod:localhost has reported a message from @spammer:localhost in room #lobby:localhost.\n```\n{\n  \"body\": \"cheap pills\"\n}\n```\nReport: spam\n",
		"@victim:localhost has reported a message from @rude:localhost in a private room.\nReport: abuse\n",
	}
	if len(messages) != len(want) {
		t.Fatalf("sent %d messages, want %d: %q", len(messages), len(want), messages)
	}
	for index := range want {
		if messages[index] != want[index] {
			t.Errorf("message %d = %q, want %q", index, messages[index], want[index])
		}
	}

	state, err := statefile.Load(filepath.Join(directory, "state.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.LastReportID != 2 || state.AccessToken != "token-1" || state.DeviceID != "RELAYDEVICE" {
		t.Errorf("unexpected state: cursor %d device %q", state.LastReportID, state.DeviceID)
	}
	if strings.Contains(stderr.String(), "token-1") || strings.Contains(stderr.String(), "hunter2") {
		t.Error("credentials appear in the log output")
	}

	t.Run("second run resumes without login", func(t *testing.T) {
		stderr.Reset()
		if err := run(context.Background(), []string{"--config", configPath, "--once"}, &stdout, &stderr); err != nil {
			t.Fatalf("run --once: %v\n%s", err, stderr.String())
		}
		fake.mu.Lock()
		defer fake.mu.Unlock()
		if fake.logins != 1 || len(fake.messages) != 2 {
			t.Errorf("logins/messages = %d/%d after resume, want 1/2", fake.logins, len(fake.messages))
		}
	})

	t.Run("check", func(t *testing.T) {
		stderr.Reset()
		if err := run(context.Background(), []string{"--config", configPath, "--check"}, &stdout, &stderr); err != nil {
			t.Fatalf("run --check: %v\n%s", err, stderr.String())
		}
		if !strings.Contains(stderr.String(), "cached session valid") {
			t.Errorf("check did not verify the cached session:\n%s", stderr.String())
		}
	})
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "relay.yaml")
	if err := os.WriteFile(path, []byte("database:\n  driver: oracle\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	var stdout, stderr strings.Builder
	err := run(context.Background(), []string{"--config", path}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "database.driver") {
		t.Errorf("run = %v, want database.driver validation error", err)
	}
}

func TestRunCorruptStateIsFatal(t *testing.T) {
	directory := t.TempDir()
	writeSynapseDatabase(t, filepath.Join(directory, "homeserver.db"))
	server := httptest.NewServer((&homeserver{}).handler())
	defer server.Close()
	configPath := writeRelayConfig(t, directory, server.URL)
	if err := os.WriteFile(filepath.Join(directory, "state.json"), []byte("{not json"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var stdout, stderr strings.Builder
	err := run(context.Background(), []string{"--config", configPath, "--once"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "corrupt") {
		t.Errorf("run = %v, want state file corruption error", err)
	}
}
