// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool wraps zombiezen.com/go/sqlite's sqlitex.Pool with
// the pragmas the relay needs in its two roles.
//
// In read-only mode ([Config.ReadOnly]) the database is opened with
// SQLITE_OPEN_READONLY and query_only=ON, and no pragma that writes to
// the file is issued. This is how the relay opens a Synapse SQLite
// database it does not own. The journal mode is whatever Synapse set.
//
// In read-write mode every connection gets WAL journaling,
// synchronous=NORMAL, and a busy timeout. Tests use this mode to build
// Synapse-shaped fixture databases.
//
// Callers [Pool.Take] a connection, run statements with sqlitex, and
// [Pool.Put] it back. Connections are not safe for concurrent use.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{Path: path, ReadOnly: true, PoolSize: 1})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
package sqlitepool
