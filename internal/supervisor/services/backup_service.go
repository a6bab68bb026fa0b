// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package services

import (
	"context"
	"fmt"

	"github.com/tomtom215/roomwise/internal/backup"
	"github.com/tomtom215/roomwise/internal/config"
	"github.com/tomtom215/roomwise/internal/logging"
)

// BackupRunner matches backup.Manager.
type BackupRunner interface {
	CreateBackup(ctx context.Context) (*backup.Manifest, error)
	Prune(keep int) (int, error)
}

// BackupJob creates a backup and then prunes down to keep. keep < 1
// disables pruning.
func BackupJob(runner BackupRunner, keep int) Job {
	return func(ctx context.Context) error {
		manifest, err := runner.CreateBackup(ctx)
		if err != nil {
			return fmt.Errorf("scheduled backup: %w", err)
		}
		logging.Ctx(ctx).Info().
			Str("backup_id", manifest.ID).
			Int64("size", manifest.TotalSize).
			Msg("Scheduled backup created")

		if keep < 1 {
			return nil
		}
		if _, err := runner.Prune(keep); err != nil {
			return fmt.Errorf("prune backups: %w", err)
		}
		return nil
	}
}

// NewBackupService schedules BackupJob on cfg.Interval. The first backup
// waits one full interval.
func NewBackupService(runner BackupRunner, cfg config.BackupConfig) *PeriodicService {
	return NewPeriodicService("scheduled-backup", cfg.Interval, false, BackupJob(runner, cfg.Keep))
}
