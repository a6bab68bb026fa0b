// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package database

import (
	"context"
	"database/sql"
	"fmt"
)

// VerifyTables opens path read-only and checks that it is a readable DuckDB
// file containing every table in want. Used after a restore.
func VerifyTables(ctx context.Context, path string, want []string) error {
	conn, err := sql.Open("duckdb", path+"?access_mode=read_only")
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer closeQuietly(conn)

	if err := conn.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	for _, table := range want {
		var exists bool
		err := conn.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_schema = 'main' AND table_name = ?)",
			table).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("expected table %q not found in %s", table, path)
		}
		var n int64
		if err := conn.QueryRowContext(ctx, "SELECT count(*) FROM "+quoteIdent(table)).Scan(&n); err != nil {
			return fmt.Errorf("failed to read table %s: %w", table, err)
		}
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}
