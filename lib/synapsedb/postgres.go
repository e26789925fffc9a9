// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package synapsedb

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bureau-foundation/reportbot/lib/eventreport"
	"github.com/bureau-foundation/reportbot/lib/secret"
)

// PostgresConfig identifies a Synapse PostgreSQL database.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string

	// Password may be nil for trust or peer authentication. The
	// source reads it on every connect but does not close it.
	Password *secret.Buffer

	// SSLMode is a libpq sslmode value (disable, prefer, require,
	// verify-ca, verify-full).
	SSLMode string

	// View optionally names a pre-joined reports view.
	View string

	// ConnectTimeout bounds connection setup. Zero means 10s.
	ConnectTimeout time.Duration
}

// PostgresSource reads reports from a Synapse PostgreSQL database,
// opening one connection per fetch.
type PostgresSource struct {
	config     PostgresConfig
	connString string
	query      string
	logger     *slog.Logger
}

// NewPostgresSource validates config and returns a source. No
// connection is made until the first fetch.
func NewPostgresSource(config PostgresConfig, logger *slog.Logger) (*PostgresSource, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("synapsedb: postgres host is required")
	}
	if config.Database == "" {
		return nil, fmt.Errorf("synapsedb: postgres database name is required")
	}
	if config.Port <= 0 || config.Port > 65535 {
		return nil, fmt.Errorf("synapsedb: postgres port %d out of range", config.Port)
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	query, err := Query(DialectPostgres, config.View)
	if err != nil {
		return nil, err
	}
	connString := buildConnString(config)
	if _, err := pgx.ParseConfig(connString); err != nil {
		return nil, fmt.Errorf("synapsedb: invalid postgres settings: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PostgresSource{config: config, connString: connString, query: query, logger: logger}, nil
}

// buildConnString renders the keyword/value connection string, without
// the password.
func buildConnString(config PostgresConfig) string {
	settings := []struct{ key, value string }{
		{"host", config.Host},
		{"port", strconv.Itoa(config.Port)},
		{"dbname", config.Database},
		{"user", config.User},
		{"sslmode", config.SSLMode},
		{"connect_timeout", strconv.Itoa(max(1, int(config.ConnectTimeout/time.Second)))},
		{"application_name", "bureau-report-relay"},
	}
	var builder strings.Builder
	for _, setting := range settings {
		if setting.value == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(setting.key)
		builder.WriteByte('=')
		builder.WriteString(quoteConnValue(setting.value))
	}
	return builder.String()
}

// quoteConnValue quotes a value for a libpq keyword/value string.
func quoteConnValue(value string) string {
	if value != "" && !strings.ContainsAny(value, " '\\\t\n") {
		return value
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value)
	return "'" + escaped + "'"
}

// FetchSince connects, reads every report with id > cursor inside a
// read-only transaction, and disconnects.
func (s *PostgresSource) FetchSince(ctx context.Context, cursor int64) ([]eventreport.Report, error) {
	connConfig, err := pgx.ParseConfig(s.connString)
	if err != nil {
		return nil, fmt.Errorf("synapsedb: %w: %w", ErrUnavailable, err)
	}
	if s.config.Password != nil {
		connConfig.Password = s.config.Password.String()
	}

	conn, err := pgx.ConnectConfig(ctx, connConfig)
	if err != nil {
		return nil, fmt.Errorf("synapsedb: %w: connecting to %s:%d: %w", ErrUnavailable, s.config.Host, s.config.Port, err)
	}
	defer func() {
		if closeErr := conn.Close(context.WithoutCancel(ctx)); closeErr != nil {
			s.logger.Warn("closing postgres connection", "error", closeErr)
		}
	}()

	transaction, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("synapsedb: %w: beginning read-only transaction: %w", ErrUnavailable, err)
	}
	// Nothing is written; ending the transaction by rollback is enough.
	defer transaction.Rollback(context.WithoutCancel(ctx))

	rows, err := transaction.Query(ctx, s.query, cursor)
	if err != nil {
		return nil, fmt.Errorf("synapsedb: %w: querying reports: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	var reports []eventreport.Report
	for rows.Next() {
		var (
			report                                    eventreport.Report
			roomID, alias, sender, user, reason, body pgtype.Text
		)
		if err := rows.Scan(&report.ID, &report.ReceivedTS, &roomID, &alias, &sender, &user, &reason, &body); err != nil {
			return nil, fmt.Errorf("synapsedb: %w: scanning report row: %w", ErrUnavailable, err)
		}
		report.RoomID = roomID.String
		report.RoomAlias = alias.String
		report.Sender = sender.String
		report.ReportingUserID = user.String
		report.Reason = reason.String
		if body.Valid {
			report.EventContent = []byte(body.String)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("synapsedb: %w: reading report rows: %w", ErrUnavailable, err)
	}
	if err := checkOrder(reports, cursor); err != nil {
		return nil, err
	}
	return reports, nil
}
