// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/tomtom215/roomwise/internal/database"
	"github.com/tomtom215/roomwise/internal/logging"
)

// Restore verifies backup id against its manifest and copies it over the
// storage root, then checks every DuckDB store it contains. Nothing under
// the root is touched until every checksum has matched.
func (m *Manager) Restore(ctx context.Context, id string) (*RestoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	result, err := m.restore(ctx, id)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("backup_id", id).Msg("Restore failed")
		return nil, err
	}
	result.Duration = time.Since(start)
	m.log.Info().
		Str("backup_id", id).
		Int("files", result.FilesRestored).
		Int("snapshots", result.SnapshotsRestored).
		Strs("stores_verified", result.StoresVerified).
		Dur("duration", result.Duration).
		Msg("Restore completed")
	return result, nil
}

func (m *Manager) restore(ctx context.Context, id string) (*RestoreResult, error) {
	dir, err := m.backupDir(id)
	if err != nil {
		return nil, err
	}
	manifest, err := readManifest(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	source := filepath.Join(dir, filesDir)
	if manifest.Compressed {
		source = filepath.Join(dir, stagingDir)
		if err := os.RemoveAll(source); err != nil {
			return nil, err
		}
		defer os.RemoveAll(source) //nolint:errcheck // best effort cleanup
		if err := extractArchive(filepath.Join(dir, archiveName), source); err != nil {
			return nil, err
		}
	}

	if err := verifyEntries(source, manifest.Files); err != nil {
		return nil, err
	}
	if err := verifyEntries(filepath.Join(dir, snapshotsDir), manifest.Snapshots); err != nil {
		return nil, err
	}
	loaders := make(map[string]Snapshot, len(m.opts.Snapshots))
	for _, s := range m.opts.Snapshots {
		loaders[s.Name] = s
	}
	for _, s := range manifest.Snapshots {
		if l, ok := loaders[s.Path]; !ok || l.Load == nil {
			return nil, fmt.Errorf("no loader registered for snapshot %q", s.Path)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &RestoreResult{BackupID: id}

	// A WAL left from the live store would be replayed over the restored file.
	for _, s := range manifest.Stores {
		wal := filepath.Join(m.opts.Root, filepath.FromSlash(s.Path)) + ".wal"
		if err := os.Remove(wal); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove stale WAL %s: %w", wal, err)
		}
	}

	for _, f := range manifest.Files {
		rel := filepath.FromSlash(f.Path)
		if _, _, err := copyFile(filepath.Join(source, rel), filepath.Join(m.opts.Root, rel)); err != nil {
			return nil, fmt.Errorf("failed to restore %s: %w", f.Path, err)
		}
		result.FilesRestored++
	}

	for _, s := range manifest.Snapshots {
		if err := loadSnapshot(filepath.Join(dir, snapshotsDir, s.Path), loaders[s.Path]); err != nil {
			return nil, err
		}
		result.SnapshotsRestored++
	}

	for _, s := range manifest.Stores {
		path := filepath.Join(m.opts.Root, filepath.FromSlash(s.Path))
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := database.VerifyTables(ctx, path, s.Tables); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrIntegrityCheck, s.Path, err)
		}
		result.StoresVerified = append(result.StoresVerified, s.Path)
	}
	return result, nil
}

// verifyEntries checks that every entry exists under dir with the recorded
// size and checksum.
func verifyEntries(dir string, entries []FileEntry) error {
	for _, e := range entries {
		rel := filepath.FromSlash(e.Path)
		if !filepath.IsLocal(rel) {
			return fmt.Errorf("%w: manifest path %q escapes the backup", ErrChecksumMismatch, e.Path)
		}
		size, sum, err := hashFile(filepath.Join(dir, rel))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrChecksumMismatch, e.Path, err)
		}
		if size != e.Size || sum != e.Checksum {
			return fmt.Errorf("%w: %s", ErrChecksumMismatch, e.Path)
		}
	}
	return nil
}

func loadSnapshot(path string, snap Snapshot) error {
	f, err := os.Open(path) //nolint:gosec // path is inside a validated backup
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck // read-only

	if err := snap.Load(f); err != nil {
		return fmt.Errorf("failed to load snapshot %s: %w", snap.Name, err)
	}
	return nil
}
