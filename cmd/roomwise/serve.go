// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/roomwise/internal/analytics"
	"github.com/tomtom215/roomwise/internal/backup"
	"github.com/tomtom215/roomwise/internal/logging"
	"github.com/tomtom215/roomwise/internal/ops"
	"github.com/tomtom215/roomwise/internal/storage"
	"github.com/tomtom215/roomwise/internal/supervisor"
	"github.com/tomtom215/roomwise/internal/supervisor/services"
	"github.com/tomtom215/roomwise/internal/sweeper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background services until interrupted",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("version", Version).Msg("Starting Roomwise with supervisor tree")

	layer, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := layer.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing stores")
		}
	}()

	ingestor := analytics.NewIngestor(layer.Analytics, int(cfg.Analytics.IngestBuffer))
	defer func() {
		if err := ingestor.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing analytics ingestor")
		}
	}()
	sw := sweeper.New(layer.Cache, cfg.Cache.SweepInterval)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddMaintenanceService(services.NewSweeperService(sw))
	tree.AddMaintenanceService(services.NewRetentionService(layer.Artifacts, layer.Analytics, cfg.Retention))
	if cfg.Backup.Interval > 0 {
		mgr, err := backup.NewManager(storage.BackupOptions(cfg, layer))
		if err != nil {
			return err
		}
		tree.AddMaintenanceService(services.NewBackupService(mgr, cfg.Backup))
		logging.Info().Dur("interval", cfg.Backup.Interval).Str("dir", mgr.Dir()).Msg("Scheduled backups enabled")
	}

	tree.AddIngestService(services.NewIngestService(ingestor))

	if cfg.Metrics.Enabled {
		handler := ops.NewHandler(ops.Deps{
			Stores: layer,
			Cache:  layer.Cache,
			Ingest: ingestor,
			Sweeps: sw,
		})
		server := ops.NewServer(cfg.Metrics.Addr, handler)
		tree.AddOpsService(services.NewHTTPServerService(server, cfg.Supervisor.ShutdownTimeout))
		logging.Info().Str("addr", server.Addr).Msg("Ops endpoint enabled")
	}

	errCh := tree.ServeBackground(ctx)
	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown requested, waiting for services to stop")
		serveErr = <-errCh
	case serveErr = <-errCh:
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		logging.Error().Err(serveErr).Msg("Supervisor tree error")
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}
	logging.Info().Msg("Roomwise stopped")
	return nil
}
