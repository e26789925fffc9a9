// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package synapsedb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/bureau-foundation/reportbot/lib/eventreport"
)

// ErrUnavailable means the database could not be reached or queried.
var ErrUnavailable = errors.New("report source unavailable")

// Source fetches event reports newer than a cursor.
type Source interface {
	// FetchSince returns all reports with id > cursor, ascending by id.
	FetchSince(ctx context.Context, cursor int64) ([]eventreport.Report, error)
}

// Dialect selects the SQL placeholder syntax.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	case DialectSQLite:
		return "sqlite"
	default:
		return fmt.Sprintf("Dialect(%d)", int(d))
	}
}

func (d Dialect) placeholder() string {
	if d == DialectPostgres {
		return "$1"
	}
	return "?"
}

// Columns are returned in this order by every query.
const baseQuery = `SELECT
	er.id,
	er.received_ts,
	er.room_id,
	ra.room_alias,
	ev.sender,
	er.user_id,
	er.reason,
	ej.json
FROM event_reports AS er
LEFT JOIN (
	SELECT room_id, MIN(room_alias) AS room_alias
	FROM room_aliases
	GROUP BY room_id
) AS ra ON ra.room_id = er.room_id
LEFT JOIN events AS ev ON ev.event_id = er.event_id
LEFT JOIN event_json AS ej ON ej.event_id = er.event_id
WHERE er.id > %s
ORDER BY er.id ASC`

const viewQuery = `SELECT id, received_ts, room_id, room_alias, sender, user_id, reason, event_content
FROM %s
WHERE id > %s
ORDER BY id ASC`

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// quoteViewName validates a view name of the form "name" or
// "schema.name" and returns it with each part double-quoted.
func quoteViewName(view string) (string, error) {
	parts := strings.Split(view, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("synapsedb: view name %q has more than one '.'", view)
	}
	quoted := make([]string, len(parts))
	for index, part := range parts {
		if !identifierPattern.MatchString(part) {
			return "", fmt.Errorf("synapsedb: view name %q: %q is not a plain identifier", view, part)
		}
		quoted[index] = `"` + part + `"`
	}
	return strings.Join(quoted, "."), nil
}

// Query returns the report query for dialect, reading from view when
// it is non-empty and from Synapse's tables otherwise. The single
// parameter is the cursor.
func Query(dialect Dialect, view string) (string, error) {
	if view == "" {
		return fmt.Sprintf(baseQuery, dialect.placeholder()), nil
	}
	quoted, err := quoteViewName(view)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(viewQuery, quoted, dialect.placeholder()), nil
}

// Check verifies that source can run its query, without returning any
// reports.
func Check(ctx context.Context, source Source) error {
	_, err := source.FetchSince(ctx, math.MaxInt64)
	return err
}

// checkOrder returns an error if reports are not strictly ascending
// and above cursor. Both sources order by id, so this only fails if
// a view's id column is not unique.
func checkOrder(reports []eventreport.Report, cursor int64) error {
	previous := cursor
	for _, report := range reports {
		if report.ID <= previous {
			return fmt.Errorf("synapsedb: %w: report id %d follows %d; ids must be unique and ascending",
				ErrUnavailable, report.ID, previous)
		}
		previous = report.ID
	}
	return nil
}
