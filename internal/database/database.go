// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

// Package database owns the single DuckDB connection behind each Roomwise
// store. Every statement runs while holding the connection lock, and the lock
// wait is bounded: callers that cannot get the lock in time receive ErrBusy
// instead of hanging.
//
//	db, err := database.Open(database.Options{Path: path, LockTimeout: 5 * time.Second})
//	err = db.Do(ctx, func(ctx context.Context, q database.Querier) error {
//	    _, err := q.ExecContext(ctx, "DELETE FROM cache_entries WHERE expires_at <= ?", now)
//	    return err
//	})
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/roomwise/internal/logging"
)

// DefaultLockTimeout is used when Options.LockTimeout is zero.
const DefaultLockTimeout = 5 * time.Second

// Options configures Open.
type Options struct {
	// Path is the DuckDB file. The parent directory is created if missing.
	Path string

	// MaxMemory is passed to DuckDB as max_memory (e.g. "512MB"). Empty keeps DuckDB's default.
	MaxMemory string

	// Threads is DuckDB's worker thread count; 0 uses runtime.NumCPU.
	Threads int

	// LockTimeout bounds how long a caller waits for the connection lock.
	LockTimeout time.Duration
}

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is one DuckDB connection guarded by one lock.
type DB struct {
	conn        *sql.DB
	path        string
	lock        *semaphore.Weighted
	lockTimeout time.Duration
	closed      atomic.Bool
}

// Open opens (creating if needed) the DuckDB file at opts.Path.
// A file already locked by another process surfaces as ErrBusy.
func Open(ctx context.Context, opts Options) (*DB, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dir := filepath.Dir(opts.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d", opts.Path, threads)
	if opts.MaxMemory != "" {
		connStr += "&max_memory=" + opts.MaxMemory
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One physical connection; the semaphore serializes access to it.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.PingContext(ctx); err != nil {
		closeQuietly(conn)
		if isFileLocked(err) {
			return nil, fmt.Errorf("%w: %s is in use by another process: %v", ErrBusy, opts.Path, err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.Path, err)
	}

	lockTimeout := opts.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}

	logging.Debug().Str("path", opts.Path).Int("threads", threads).Msg("Opened DuckDB store")
	return &DB{
		conn:        conn,
		path:        opts.Path,
		lock:        semaphore.NewWeighted(1),
		lockTimeout: lockTimeout,
	}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// acquire takes the connection lock, giving up after lockTimeout.
func (db *DB) acquire(ctx context.Context) error {
	if db.closed.Load() {
		return ErrClosed
	}
	waitCtx, cancel := context.WithTimeout(ctx, db.lockTimeout)
	defer cancel()
	if err := db.lock.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: waited %v for %s", ErrBusy, db.lockTimeout, filepath.Base(db.path))
	}
	if db.closed.Load() {
		db.lock.Release(1)
		return ErrClosed
	}
	return nil
}

// Do runs fn while holding the connection lock. Rows opened inside fn must
// be closed before it returns.
func (db *DB) Do(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	if err := db.acquire(ctx); err != nil {
		return err
	}
	defer db.lock.Release(1)
	return fn(ctx, db.conn)
}

// Tx runs fn inside a transaction while holding the connection lock. A
// DuckDB transaction conflict is retried once before being returned.
func (db *DB) Tx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if err := db.acquire(ctx); err != nil {
		return err
	}
	defer db.lock.Release(1)

	err := db.runTx(ctx, fn)
	if IsTransactionConflict(err) {
		logging.Warn().Err(err).Str("db", filepath.Base(db.path)).Msg("Transaction conflict, retrying once")
		err = db.runTx(ctx, fn)
	}
	return err
}

func (db *DB) runTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logging.Warn().Err(rbErr).Msg("Rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ExecSchema executes a multi-statement DDL script one statement at a time.
func (db *DB) ExecSchema(ctx context.Context, ddl string) error {
	return db.Do(ctx, func(ctx context.Context, q Querier) error {
		for _, stmt := range strings.Split(ddl, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := q.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute schema statement: %w", err)
			}
		}
		return nil
	})
}

// Checkpoint flushes the WAL into the main file and releases free blocks.
func (db *DB) Checkpoint(ctx context.Context) error {
	return db.Do(ctx, func(ctx context.Context, q Querier) error {
		if _, err := q.ExecContext(ctx, "CHECKPOINT"); err != nil {
			return fmt.Errorf("checkpoint failed: %w", err)
		}
		return nil
	})
}

// SizeInfo is DuckDB's block accounting for the open database.
type SizeInfo struct {
	BlockSize   int64
	TotalBlocks int64
	UsedBlocks  int64
	FreeBlocks  int64
}

// Fragmentation is the share of allocated blocks that are free.
func (s SizeInfo) Fragmentation() float64 {
	if s.TotalBlocks <= 0 {
		return 0
	}
	return float64(s.FreeBlocks) / float64(s.TotalBlocks)
}

// Bytes is the on-disk size implied by the block count.
func (s SizeInfo) Bytes() int64 {
	return s.BlockSize * s.TotalBlocks
}

// Size reports block usage from pragma_database_size.
func (db *DB) Size(ctx context.Context) (SizeInfo, error) {
	var info SizeInfo
	err := db.Do(ctx, func(ctx context.Context, q Querier) error {
		return q.QueryRowContext(ctx, `
			SELECT block_size, total_blocks, used_blocks, free_blocks
			FROM pragma_database_size()
			WHERE database_name = current_database()`,
		).Scan(&info.BlockSize, &info.TotalBlocks, &info.UsedBlocks, &info.FreeBlocks)
	})
	if err != nil {
		return SizeInfo{}, fmt.Errorf("failed to read database size: %w", err)
	}
	return info, nil
}

// Ping checks that the connection is usable.
func (db *DB) Ping(ctx context.Context) error {
	return db.Do(ctx, func(ctx context.Context, _ Querier) error {
		return db.conn.PingContext(ctx)
	})
}

// Close waits for in-flight work and closes the connection. Later calls
// return ErrClosed.
func (db *DB) Close() error {
	if db.closed.Swap(true) {
		return nil
	}
	// Drain the current holder, if any, before closing underneath it.
	ctx, cancel := context.WithTimeout(context.Background(), db.lockTimeout)
	defer cancel()
	if err := db.lock.Acquire(ctx, 1); err == nil {
		defer db.lock.Release(1)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", db.path, err)
	}
	return nil
}
