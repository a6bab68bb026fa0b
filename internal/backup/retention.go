// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package backup

import (
	"fmt"
)

// Prune deletes all but the keep newest backups and returns how many were
// removed. Failures to delete one backup are logged and skipped.
func (m *Manager) Prune(keep int) (int, error) {
	if keep < 1 {
		return 0, fmt.Errorf("keep must be at least 1, got %d", keep)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	backups, err := m.ListBackups()
	if err != nil {
		return 0, err
	}
	if len(backups) <= keep {
		return 0, nil
	}

	var (
		deleted     int
		deletedSize int64
	)
	for _, b := range backups[keep:] {
		if err := m.deleteLocked(b.ID); err != nil {
			m.log.Warn().Err(err).Str("backup_id", b.ID).Msg("Failed to delete backup")
			continue
		}
		deleted++
		deletedSize += b.Size
	}

	if deleted > 0 {
		m.log.Info().
			Int("deleted_count", deleted).
			Float64("deleted_mb", float64(deletedSize)/(1024*1024)).
			Int("kept", keep).
			Msg("Backup retention applied")
	}
	return deleted, nil
}
