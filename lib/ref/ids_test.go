// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseRoomID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "valid simple", input: "!abc123:example.org"},
		{name: "valid with port in server", input: "!opaque:localhost:8008"},
		{name: "empty string", input: "", wantErr: "empty room ID"},
		{name: "missing bang prefix", input: "abc123:example.org", wantErr: "must start with '!'"},
		{name: "alias instead of ID", input: "#room:example.org", wantErr: "must start with '!'"},
		{name: "missing server", input: "!abc123", wantErr: "missing ':server' suffix"},
		{name: "empty local part", input: "!:example.org", wantErr: "empty local part"},
		{name: "empty server name", input: "!abc123:", wantErr: "empty server name"},
		{name: "space in server", input: "!abc:exa mple.org", wantErr: "invalid character"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			roomID, err := ParseRoomID(test.input)
			if test.wantErr != "" {
				if err == nil {
					t.Fatalf("ParseRoomID(%q) succeeded, want error containing %q", test.input, test.wantErr)
				}
				if !strings.Contains(err.Error(), test.wantErr) {
					t.Fatalf("ParseRoomID(%q) error = %q, want error containing %q", test.input, err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRoomID(%q) unexpected error: %v", test.input, err)
			}
			if roomID.String() != test.input {
				t.Errorf("String() = %q, want %q", roomID.String(), test.input)
			}
			if roomID.IsZero() {
				t.Error("IsZero() = true for valid RoomID")
			}
		})
	}
}

func TestParseUserID(t *testing.T) {
	userID, err := ParseUserID("@reporting:localhost")
	if err != nil {
		t.Fatalf("ParseUserID: %v", err)
	}
	if userID.String() != "@reporting:localhost" {
		t.Errorf("String() = %q", userID.String())
	}

	for _, invalid := range []string{"", "zazu:localhost", "@zazu", "@:localhost", "!room:localhost"} {
		if _, err := ParseUserID(invalid); err == nil {
			t.Errorf("ParseUserID(%q) succeeded, want error", invalid)
		}
	}
}

func TestParseEventID(t *testing.T) {
	if _, err := ParseEventID("$Rqnc-F-dvnEYJTyHq_iKxU2bZ1CI92-kuZq3a5lr5Zg"); err != nil {
		t.Errorf("ParseEventID(v4 format): %v", err)
	}
	if _, err := ParseEventID("$"); err == nil {
		t.Error("ParseEventID accepted bare sigil")
	}
	if _, err := ParseEventID("abc"); err == nil {
		t.Error("ParseEventID accepted missing sigil")
	}
}

func TestTextRoundTrip(t *testing.T) {
	type record struct {
		User UserID `json:"user"`
		Room RoomID `json:"room"`
	}

	original := record{
		User: UserID{id: "@zazu:localhost"},
		Room: MustParseRoomID("!reports:localhost"),
	}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"user":"@zazu:localhost","room":"!reports:localhost"}` {
		t.Errorf("Marshal = %s", data)
	}

	var decoded record
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip = %+v, want %+v", decoded, original)
	}

	t.Run("empty decodes to zero", func(t *testing.T) {
		var empty record
		if err := json.Unmarshal([]byte(`{"user":"","room":""}`), &empty); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if !empty.User.IsZero() || !empty.Room.IsZero() {
			t.Errorf("expected zero values, got %+v", empty)
		}
	})

	t.Run("invalid rejected", func(t *testing.T) {
		var invalid record
		if err := json.Unmarshal([]byte(`{"user":"zazu"}`), &invalid); err == nil {
			t.Error("expected error for invalid user ID")
		}
	})
}
