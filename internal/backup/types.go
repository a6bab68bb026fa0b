// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package backup

import (
	"context"
	"errors"
	"io"
	"time"
)

// AppVersion is set at build time.
var AppVersion = "dev"

var (
	// ErrBackupNotFound is returned for an unknown or malformed backup id.
	ErrBackupNotFound = errors.New("backup not found")

	// ErrChecksumMismatch is returned when a backup file is missing or
	// does not match its manifest entry.
	ErrChecksumMismatch = errors.New("backup checksum mismatch")

	// ErrIntegrityCheck is returned when a restored store fails verification.
	ErrIntegrityCheck = errors.New("restored store failed integrity check")
)

const (
	manifestName = "manifest.json"
	filesDir     = "files"
	archiveName  = "data.tar.gz"
	snapshotsDir = "snapshots"
	stagingDir   = ".staging"
)

// Manifest describes one backup. It is written last.
type Manifest struct {
	ID         string         `json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	AppVersion string         `json:"app_version"`
	Compressed bool           `json:"compressed"`
	Files      []FileEntry    `json:"files"`
	Snapshots  []FileEntry    `json:"snapshots,omitempty"`
	TotalSize  int64          `json:"total_size"`
	Duration   time.Duration  `json:"duration"`
	Stores     []StoreSummary `json:"stores"`
}

// FileEntry is one file in a backup. Path is slash-separated and relative
// to the storage root (or the snapshots directory for snapshots).
type FileEntry struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	Checksum string    `json:"sha256"`
}

// StoreSummary records a metadata store captured by the backup.
type StoreSummary struct {
	Path   string   `json:"path"`
	Tables []string `json:"tables"`
}

// Info is a backup as listed by ListBackups.
type Info struct {
	Manifest
	Dir  string `json:"dir"`
	Size int64  `json:"size"`
}

// RestoreResult reports what Restore did.
type RestoreResult struct {
	BackupID          string        `json:"backup_id"`
	FilesRestored     int           `json:"files_restored"`
	SnapshotsRestored int           `json:"snapshots_restored"`
	StoresVerified    []string      `json:"stores_verified"`
	Duration          time.Duration `json:"duration"`
}

// Checkpointer flushes a store to its main file before it is copied.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// Store is a DuckDB metadata store inside the storage root.
type Store struct {
	// Path is relative to the storage root.
	Path string

	// Tables must exist after a restore.
	Tables []string

	// DB is checkpointed before the copy when non-nil.
	DB Checkpointer
}

// Snapshot is data that cannot be copied file by file while live and is
// streamed instead.
type Snapshot struct {
	Name string

	// Dir is the storage-root-relative directory the snapshot replaces.
	// It is skipped by the file walk.
	Dir string

	// Save writes the snapshot. Nil when only restoring.
	Save func(w io.Writer) error

	// Load replaces Dir with the snapshot contents.
	Load func(r io.Reader) error
}
