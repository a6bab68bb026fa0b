// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

//go:build integration

package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T, lockTimeout time.Duration) *DB {
	t.Helper()
	db, err := Open(context.Background(), Options{
		Path:        filepath.Join(t.TempDir(), "test.duckdb"),
		Threads:     1,
		LockTimeout: lockTimeout,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestExecSchemaAndDo(t *testing.T) {
	db := openTestDB(t, time.Second)
	ctx := context.Background()

	err := db.ExecSchema(ctx, `
		CREATE TABLE IF NOT EXISTS kv (k VARCHAR PRIMARY KEY, v INTEGER);
		CREATE INDEX IF NOT EXISTS idx_kv_v ON kv(v);
	`)
	if err != nil {
		t.Fatalf("ExecSchema() error = %v", err)
	}

	err = db.Tx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO kv VALUES ('a', 1), ('b', 2)")
		return err
	})
	if err != nil {
		t.Fatalf("Tx() error = %v", err)
	}

	var total int
	err = db.Do(ctx, func(ctx context.Context, q Querier) error {
		return q.QueryRowContext(ctx, "SELECT SUM(v) FROM kv").Scan(&total)
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if total != 3 {
		t.Errorf("sum = %d, want 3", total)
	}
}

func TestTxRollsBackOnError(t *testing.T) {
	db := openTestDB(t, time.Second)
	ctx := context.Background()
	if err := db.ExecSchema(ctx, "CREATE TABLE kv (k VARCHAR PRIMARY KEY)"); err != nil {
		t.Fatalf("ExecSchema() error = %v", err)
	}

	boom := errors.New("boom")
	err := db.Tx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO kv VALUES ('a')"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Tx() error = %v, want boom", err)
	}

	var n int
	_ = db.Do(ctx, func(ctx context.Context, q Querier) error {
		return q.QueryRowContext(ctx, "SELECT count(*) FROM kv").Scan(&n)
	})
	if n != 0 {
		t.Errorf("rows after rollback = %d, want 0", n)
	}
}

func TestLockTimeoutReturnsBusy(t *testing.T) {
	db := openTestDB(t, 50*time.Millisecond)
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = db.Do(ctx, func(context.Context, Querier) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := db.Do(ctx, func(context.Context, Querier) error { return nil })
	close(release)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("Do() error = %v, want ErrBusy", err)
	}
	if !IsTransient(err) {
		t.Error("ErrBusy should be transient")
	}
}

func TestClosedDB(t *testing.T) {
	db := openTestDB(t, time.Second)
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	err := db.Do(context.Background(), func(context.Context, Querier) error { return nil })
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("Do() after Close error = %v, want ErrClosed", err)
	}
}

func TestSizeAndCheckpoint(t *testing.T) {
	db := openTestDB(t, time.Second)
	ctx := context.Background()
	if err := db.ExecSchema(ctx, "CREATE TABLE blobs (id INTEGER, b BLOB)"); err != nil {
		t.Fatalf("ExecSchema() error = %v", err)
	}
	if err := db.Checkpoint(ctx); err != nil {
		t.Fatalf("Checkpoint() error = %v", err)
	}
	info, err := db.Size(ctx)
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if f := info.Fragmentation(); f < 0 || f > 1 {
		t.Errorf("Fragmentation() = %v, want within [0,1]", f)
	}
}

func TestVerifyTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verify.duckdb")
	ctx := context.Background()
	db, err := Open(ctx, Options{Path: path, Threads: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := db.ExecSchema(ctx, "CREATE TABLE present (id INTEGER)"); err != nil {
		t.Fatalf("ExecSchema() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := VerifyTables(ctx, path, []string{"present"}); err != nil {
		t.Errorf("VerifyTables(present) error = %v", err)
	}
	if err := VerifyTables(ctx, path, []string{"present", "missing"}); err == nil {
		t.Error("VerifyTables(missing) should fail")
	}
}

func TestIsTransactionConflict(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("TransactionContext Error: Transaction conflict: cannot update"), true},
		{errors.New("Conflict on update!"), true},
		{errors.New("Catalog Error: table missing"), false},
	}
	for _, tt := range tests {
		if got := IsTransactionConflict(tt.err); got != tt.want {
			t.Errorf("IsTransactionConflict(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
