// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package synapsedb

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/reportbot/lib/eventreport"
	"github.com/bureau-foundation/reportbot/lib/sqlitepool"
)

// SQLiteSource reads reports from a Synapse SQLite database file.
type SQLiteSource struct {
	path   string
	query  string
	logger *slog.Logger
}

// NewSQLiteSource returns a source for the database at path. view is
// optional. The file is not opened until the first fetch.
func NewSQLiteSource(path, view string, logger *slog.Logger) (*SQLiteSource, error) {
	if path == "" {
		return nil, fmt.Errorf("synapsedb: sqlite database path is required")
	}
	query, err := Query(DialectSQLite, view)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteSource{path: path, query: query, logger: logger}, nil
}

// FetchSince opens the database read-only, reads every report with
// id > cursor, and closes it.
func (s *SQLiteSource) FetchSince(ctx context.Context, cursor int64) ([]eventreport.Report, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     s.path,
		ReadOnly: true,
		PoolSize: 1,
		Logger:   s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("synapsedb: %w: %w", ErrUnavailable, err)
	}
	defer func() {
		if closeErr := pool.Close(); closeErr != nil {
			s.logger.Warn("closing synapse database", "path", s.path, "error", closeErr)
		}
	}()

	conn, err := pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("synapsedb: %w: %w", ErrUnavailable, err)
	}
	defer pool.Put(conn)

	var reports []eventreport.Report
	err = sqlitex.Execute(conn, s.query, &sqlitex.ExecOptions{
		Args: []any{cursor},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			reports = append(reports, scanSQLiteRow(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("synapsedb: %w: querying %s: %w", ErrUnavailable, s.path, err)
	}
	if err := checkOrder(reports, cursor); err != nil {
		return nil, err
	}
	return reports, nil
}

func scanSQLiteRow(stmt *sqlite.Stmt) eventreport.Report {
	report := eventreport.Report{
		ID:              stmt.ColumnInt64(0),
		ReceivedTS:      stmt.ColumnInt64(1),
		RoomID:          stmt.ColumnText(2),
		RoomAlias:       stmt.ColumnText(3),
		Sender:          stmt.ColumnText(4),
		ReportingUserID: stmt.ColumnText(5),
		Reason:          stmt.ColumnText(6),
	}
	if stmt.ColumnType(7) != sqlite.TypeNull {
		report.EventContent = []byte(stmt.ColumnText(7))
	}
	return report
}
