// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/roomwise/internal/backup"
	"github.com/tomtom215/roomwise/internal/logging"
	"github.com/tomtom215/roomwise/internal/storage"
)

var (
	backupCompress bool
	backupPrune    bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up every store (run while serve is stopped)",
	RunE:  runBackup,
}

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List backups, newest first",
	RunE:  runListBackups,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-id>",
	Short: "Restore a backup over the storage root (run while serve is stopped)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

func init() {
	rootCmd.AddCommand(backupCmd, backupsCmd, restoreCmd)
	backupCmd.Flags().BoolVar(&backupCompress, "compress", false, "write a tar.gz archive (default from backup.compress)")
	backupCmd.Flags().BoolVar(&backupPrune, "prune", false, "delete backups beyond backup.keep afterwards")
}

func runBackup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if cmd.Flags().Changed("compress") {
		cfg.Backup.Compress = backupCompress
	}

	layer, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := layer.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing stores")
		}
	}()

	mgr, err := backup.NewManager(storage.BackupOptions(cfg, layer))
	if err != nil {
		return err
	}
	manifest, err := mgr.CreateBackup(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Backup %s: %d files, %d snapshots, %.2f MB, %s\n",
		manifest.ID, len(manifest.Files), len(manifest.Snapshots),
		float64(manifest.TotalSize)/(1024*1024), manifest.Duration.Round(time.Millisecond))

	if backupPrune && cfg.Backup.Keep > 0 {
		removed, err := mgr.Prune(cfg.Backup.Keep)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Pruned %d old backups (keeping %d)\n", removed, cfg.Backup.Keep)
	}
	return nil
}

func runListBackups(cmd *cobra.Command, args []string) error {
	mgr, err := backup.NewManager(storage.BackupOptions(cfg, nil))
	if err != nil {
		return err
	}
	list, err := mgr.ListBackups()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No backups in %s\n", mgr.Dir())
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tSIZE\tFILES\tCOMPRESSED")
	for _, b := range list {
		fmt.Fprintf(w, "%s\t%s\t%.2f MB\t%d\t%v\n",
			b.ID, b.CreatedAt.Local().Format(time.DateTime), float64(b.Size)/(1024*1024), len(b.Files), b.Compressed)
	}
	return w.Flush()
}

func runRestore(cmd *cobra.Command, args []string) error {
	mgr, err := backup.NewManager(storage.BackupOptions(cfg, nil))
	if err != nil {
		return err
	}
	result, err := mgr.Restore(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Restored %s: %d files, %d snapshots, %d stores verified (%s)\n",
		result.BackupID, result.FilesRestored, result.SnapshotsRestored, len(result.StoresVerified),
		result.Duration.Round(time.Millisecond))
	return nil
}
