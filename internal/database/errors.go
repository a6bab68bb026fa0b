// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package database

import (
	"errors"
	"io"
	"strings"

	"github.com/tomtom215/roomwise/internal/logging"
)

var (
	// ErrBusy means the connection lock (or the database file lock held by
	// another process) could not be obtained in time. It is retryable.
	ErrBusy = errors.New("storage busy")

	// ErrClosed is returned for work submitted after Close.
	ErrClosed = errors.New("storage closed")
)

// IsTransactionConflict reports whether err is a DuckDB write-write conflict.
func IsTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Transaction conflict") ||
		strings.Contains(msg, "Conflict on update")
}

// IsTransient reports whether err is worth one retry by the caller.
func IsTransient(err error) bool {
	return errors.Is(err, ErrBusy) || IsTransactionConflict(err)
}

func isFileLocked(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Could not set lock on file")
}

// CloseWithLog closes c and logs a failure instead of returning it.
func CloseWithLog(c io.Closer, resource string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logging.Warn().Str("type", resource).Err(err).Msg("Failed to close resource")
	}
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close() //nolint:errcheck // error path cleanup
	}
}
