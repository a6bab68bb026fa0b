// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

// Package artifact persists embedding vectors and trained models.
//
// Payloads live in files under the embeddings and models directories;
// their metadata lives in DuckDB. Rows are soft-deleted by flipping status
// to inactive, and the file is removed at the same time. Writes propagate
// every failure. Reads treat a missing row, a missing file or a checksum
// mismatch as absent.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/roomwise/internal/database"
	"github.com/tomtom215/roomwise/internal/logging"
)

// Options locates artifact files.
type Options struct {
	EmbeddingsDir string
	ModelsDir     string
}

// Store saves and loads artifacts. It is safe for concurrent use.
type Store struct {
	db   *database.DB
	opts Options
	now  func() time.Time
	log  zerolog.Logger
}

// New creates the artifact schema and directories.
func New(ctx context.Context, db *database.DB, opts Options) (*Store, error) {
	if opts.EmbeddingsDir == "" || opts.ModelsDir == "" {
		return nil, fmt.Errorf("embeddings and models directories are required")
	}
	for _, c := range Categories {
		if err := os.MkdirAll(filepath.Join(opts.EmbeddingsDir, categorySpecs[c].dir), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create embeddings directory: %w", err)
		}
	}
	if err := os.MkdirAll(opts.ModelsDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}
	if err := db.ExecSchema(ctx, schema()); err != nil {
		return nil, fmt.Errorf("failed to create artifact schema: %w", err)
	}

	return &Store{
		db:   db,
		opts: opts,
		now:  func() time.Time { return time.Now().UTC() },
		log:  logging.WithComponent("artifact"),
	}, nil
}

// DB returns the metadata store.
func (s *Store) DB() *database.DB {
	return s.db
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// removeFile deletes path, ignoring a file that is already gone.
func (s *Store) removeFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn().Err(err).Str("path", path).Msg("Failed to remove artifact file")
	}
}
