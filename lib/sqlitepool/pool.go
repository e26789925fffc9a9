// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Config holds the parameters for opening a pool.
type Config struct {
	// Path is the database file. In read-write mode the file is
	// created if missing; in read-only mode it must exist.
	Path string

	// ReadOnly opens every connection read-only and rejects writes.
	ReadOnly bool

	// PoolSize is the number of connections. Defaults to 1 in
	// read-only mode and 4 otherwise.
	PoolSize int

	// Logger receives open and close messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger

	// OnConnect runs once per connection after the pragmas. An error
	// discards the connection and is returned from Take.
	OnConnect func(conn *sqlite.Conn) error
}

// Pool is a fixed-size pool of SQLite connections.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

var (
	readWritePragmas = []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=OFF",
		"PRAGMA temp_store=MEMORY",
	}

	// Connection-local pragmas only; none of these write to the file.
	readOnlyPragmas = []string{
		"PRAGMA query_only=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
)

// Open creates a pool. Connections are opened lazily, so a missing or
// unreadable read-only database surfaces on the first Take. The caller
// must call Close.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	options := sqlitex.PoolOptions{PoolSize: cfg.PoolSize}
	pragmas := readWritePragmas
	if cfg.ReadOnly {
		options.Flags = sqlite.OpenReadOnly | sqlite.OpenURI
		pragmas = readOnlyPragmas
		if options.PoolSize <= 0 {
			options.PoolSize = 1
		}
	} else if options.PoolSize <= 0 {
		options.PoolSize = 4
	}
	options.PrepareConn = func(conn *sqlite.Conn) error {
		return prepareConnection(conn, pragmas, cfg.OnConnect)
	}

	inner, err := sqlitex.NewPool(cfg.Path, options)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	logger.Debug("sqlite pool opened",
		"path", cfg.Path,
		"read_only", cfg.ReadOnly,
		"pool_size", options.PoolSize,
	)
	return &Pool{inner: inner, logger: logger, path: cfg.Path}, nil
}

// Take borrows a connection, blocking until one is free or ctx is
// done. Return it with Put:
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take from %s: %w", p.path, err)
	}
	return conn, nil
}

// Put returns a connection to the pool. Safe to call with nil.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Close closes every connection, waiting for borrowed ones to be
// returned.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Debug("sqlite pool closed", "path", p.path)
	return nil
}

func prepareConnection(conn *sqlite.Conn, pragmas []string, onConnect func(*sqlite.Conn) error) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}
	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("sqlitepool: OnConnect: %w", err)
		}
	}
	return nil
}
