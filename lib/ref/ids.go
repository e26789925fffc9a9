// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// UserID is a validated Matrix user ID (e.g., "@zazu:example.org").
// The zero value is not valid; use IsZero to check.
type UserID struct {
	id string
}

// ParseUserID validates and wraps a raw Matrix user ID string.
func ParseUserID(raw string) (UserID, error) {
	if _, _, err := parseSigilID(raw, '@', "user ID"); err != nil {
		return UserID{}, err
	}
	return UserID{id: raw}, nil
}

// String returns the full user ID.
func (u UserID) String() string { return u.id }

// IsZero reports whether the UserID is the zero value.
func (u UserID) IsZero() bool { return u.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (u UserID) MarshalText() ([]byte, error) { return []byte(u.id), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Empty input
// produces the zero value.
func (u *UserID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*u = UserID{}
		return nil
	}
	parsed, err := ParseUserID(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// RoomID is a validated Matrix room ID (e.g., "!abc123:example.org").
// Room IDs are opaque server-assigned identifiers; only the sigil and
// the ':server' suffix are checked.
type RoomID struct {
	id string
}

// ParseRoomID validates and wraps a raw Matrix room ID string.
func ParseRoomID(raw string) (RoomID, error) {
	if _, _, err := parseSigilID(raw, '!', "room ID"); err != nil {
		return RoomID{}, err
	}
	return RoomID{id: raw}, nil
}

// MustParseRoomID is like ParseRoomID but panics on error. Use in
// tests where the input is known-valid.
func MustParseRoomID(raw string) RoomID {
	roomID, err := ParseRoomID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseRoomID(%q): %v", raw, err))
	}
	return roomID
}

// String returns the full room ID.
func (r RoomID) String() string { return r.id }

// IsZero reports whether the RoomID is the zero value.
func (r RoomID) IsZero() bool { return r.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (r RoomID) MarshalText() ([]byte, error) { return []byte(r.id), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Empty input
// produces the zero value.
func (r *RoomID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*r = RoomID{}
		return nil
	}
	parsed, err := ParseRoomID(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// EventID is a Matrix event ID. Room versions 4 and later use
// "$base64hash" with no server suffix, so the only check is the '$'
// sigil followed by at least one character.
type EventID struct {
	id string
}

// ParseEventID validates and wraps a raw Matrix event ID string.
func ParseEventID(raw string) (EventID, error) {
	if raw == "" {
		return EventID{}, fmt.Errorf("empty event ID")
	}
	if raw[0] != '$' {
		return EventID{}, fmt.Errorf("event ID must start with '$': %q", raw)
	}
	if len(raw) < 2 {
		return EventID{}, fmt.Errorf("event ID has no content after '$': %q", raw)
	}
	return EventID{id: raw}, nil
}

// String returns the full event ID.
func (e EventID) String() string { return e.id }

// IsZero reports whether the EventID is the zero value.
func (e EventID) IsZero() bool { return e.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (e EventID) MarshalText() ([]byte, error) { return []byte(e.id), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Empty input
// produces the zero value.
func (e *EventID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*e = EventID{}
		return nil
	}
	parsed, err := ParseEventID(string(data))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// EventType identifies a Matrix event type such as "m.room.message".
// It is a named string for compile-time separation from state keys and
// transaction IDs; no validation is performed.
type EventType string

// String returns the event type string.
func (t EventType) String() string { return string(t) }

// parseSigilID checks a sigil-prefixed Matrix identifier and splits it
// into its local part and server name.
func parseSigilID(identifier string, sigil byte, kind string) (local, server string, err error) {
	if identifier == "" {
		return "", "", fmt.Errorf("empty %s", kind)
	}
	if identifier[0] != sigil {
		return "", "", fmt.Errorf("%s must start with '%c': %q", kind, sigil, identifier)
	}
	colonIndex := strings.IndexByte(identifier[1:], ':')
	if colonIndex < 0 {
		return "", "", fmt.Errorf("%s missing ':server' suffix: %q", kind, identifier)
	}
	if colonIndex == 0 {
		return "", "", fmt.Errorf("%s has empty local part: %q", kind, identifier)
	}
	local = identifier[1 : 1+colonIndex]
	server = identifier[1+colonIndex+1:]
	if server == "" {
		return "", "", fmt.Errorf("%s has empty server name: %q", kind, identifier)
	}
	for index := 0; index < len(server); index++ {
		if character := server[index]; character <= ' ' || character == '@' || character == '#' || character == '!' {
			return "", "", fmt.Errorf("%s server name %q: invalid character at position %d", kind, server, index)
		}
	}
	return local, server, nil
}
