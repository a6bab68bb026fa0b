// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// backupDir resolves a backup id to its directory.
func (m *Manager) backupDir(id string) (string, error) {
	if !idPattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrBackupNotFound, id)
	}
	return filepath.Join(m.opts.Dir, id), nil
}

// GetBackup returns one backup's manifest.
func (m *Manager) GetBackup(id string) (*Info, error) {
	dir, err := m.backupDir(id)
	if err != nil {
		return nil, err
	}
	return loadInfo(dir)
}

func loadInfo(dir string) (*Info, error) {
	manifest, err := readManifest(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, filepath.Base(dir))
	}
	if err != nil {
		return nil, err
	}
	return &Info{Manifest: *manifest, Dir: dir, Size: dirSize(dir)}, nil
}

// ListBackups returns complete backups, newest first. Directories without
// a manifest are incomplete and skipped.
func (m *Manager) ListBackups() ([]Info, error) {
	entries, err := os.ReadDir(m.opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var out []Info
	for _, e := range entries {
		if !e.IsDir() || !idPattern.MatchString(e.Name()) {
			continue
		}
		info, err := loadInfo(filepath.Join(m.opts.Dir, e.Name()))
		if err != nil {
			if !errors.Is(err, ErrBackupNotFound) {
				m.log.Warn().Err(err).Str("backup_id", e.Name()).Msg("Skipping unreadable backup")
			}
			continue
		}
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// DeleteBackup removes a backup directory.
func (m *Manager) DeleteBackup(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(id)
}

func (m *Manager) deleteLocked(id string) error {
	dir, err := m.backupDir(id)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete backup %s: %w", id, err)
	}
	return nil
}

func dirSize(dir string) int64 {
	var total int64
	filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error { //nolint:errcheck // size is best effort
		if err != nil {
			return nil
		}
		if info, err := d.Info(); err == nil && info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total
}
