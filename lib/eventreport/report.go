// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package eventreport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformed means the report's event JSON cannot be rendered.
var ErrMalformed = errors.New("malformed event report")

// UnavailableContent replaces the quoted event when the event row has
// been purged from the database.
const UnavailableContent = "[event content unavailable]"

// Report is one row of Synapse's event_reports table, joined with the
// reported room's alias and the reported event.
type Report struct {
	// ID is the event_reports primary key and the relay's cursor.
	ID int64

	// ReceivedTS is when the homeserver received the report, in
	// milliseconds since the Unix epoch.
	ReceivedTS int64

	RoomID string

	// RoomAlias is empty when the room has no alias. Such rooms are
	// treated as private and their content is not quoted.
	RoomAlias string

	// Sender is the author of the reported event. Empty when the
	// event has been purged.
	Sender string

	// ReportingUserID is the user who filed the report.
	ReportingUserID string

	// Reason is the reporter's free-text reason. NULL reads as empty.
	Reason string

	// EventContent is the full JSON of the reported event, or nil when
	// the event has been purged.
	EventContent json.RawMessage
}

// Private reports whether the report's room has no alias.
func (r Report) Private() bool { return r.RoomAlias == "" }

// Received returns ReceivedTS as a time.
func (r Report) Received() time.Time { return time.UnixMilli(r.ReceivedTS) }

// QuotedContent extracts the "content" field of the reported event for
// quoting. A JSON string is returned verbatim; any other value is
// re-indented with two spaces, keeping the stored key order.
func (r Report) QuotedContent() (string, error) {
	if len(r.EventContent) == 0 {
		return UnavailableContent, nil
	}

	var event map[string]json.RawMessage
	if err := json.Unmarshal(r.EventContent, &event); err != nil {
		return "", fmt.Errorf("eventreport: report %d: %w: event JSON is not an object: %w", r.ID, ErrMalformed, err)
	}
	content, ok := event["content"]
	if !ok {
		return "", fmt.Errorf("eventreport: report %d: %w: event JSON has no content field", r.ID, ErrMalformed)
	}

	content = bytes.TrimSpace(content)
	if len(content) > 0 && content[0] == '"' {
		var text string
		if err := json.Unmarshal(content, &text); err != nil {
			return "", fmt.Errorf("eventreport: report %d: %w: %w", r.ID, ErrMalformed, err)
		}
		return text, nil
	}

	var indented bytes.Buffer
	if err := json.Indent(&indented, content, "", "  "); err != nil {
		return "", fmt.Errorf("eventreport: report %d: %w: %w", r.ID, ErrMalformed, err)
	}
	return indented.String(), nil
}
