// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

// Package setup prepares a fresh storage root: the directory layout, every
// metadata schema and, optionally, a handful of sample rows for smoke tests.
// Running it again against an existing root is safe.
package setup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tomtom215/roomwise/internal/analytics"
	"github.com/tomtom215/roomwise/internal/artifact"
	"github.com/tomtom215/roomwise/internal/cache"
	"github.com/tomtom215/roomwise/internal/config"
	"github.com/tomtom215/roomwise/internal/database"
	"github.com/tomtom215/roomwise/internal/logging"
	"github.com/tomtom215/roomwise/internal/storage"
)

// Options controls Run.
type Options struct {
	// Seed writes sample cache, artifact and analytics rows.
	Seed bool
}

// StoreReport names one verified metadata store.
type StoreReport struct {
	Path   string   `json:"path"`
	Tables []string `json:"tables"`
}

// SeedReport counts the sample rows written.
type SeedReport struct {
	CacheEntries int `json:"cache_entries"`
	Embeddings   int `json:"embeddings"`
	Models       int `json:"models"`
	Events       int `json:"events"`
}

// Report describes what Run prepared.
type Report struct {
	BasePath    string        `json:"base_path"`
	Directories []string      `json:"directories"`
	Stores      []StoreReport `json:"stores"`
	Seeded      *SeedReport   `json:"seeded,omitempty"`
	Duration    time.Duration `json:"duration"`
}

func layout(cfg *config.Config) []string {
	dirs := []string{
		cfg.Storage.BasePath,
		filepath.Dir(cfg.CacheDBPath()),
		cfg.OverflowPath(),
		cfg.EmbeddingsPath(),
		cfg.ModelsPath(),
		filepath.Dir(cfg.AnalyticsDBPath()),
		cfg.BackupPath(),
	}
	for _, c := range artifact.Categories {
		dirs = append(dirs, filepath.Join(cfg.EmbeddingsPath(), artifact.CategoryDir(c)))
	}
	return dirs
}

// Run creates the layout, opens every store so its schema is applied, seeds
// sample data when asked, and finally re-opens each store read-only to check
// that its tables exist.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	report := &Report{BasePath: cfg.Storage.BasePath}

	for _, dir := range layout(cfg) {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
		report.Directories = append(report.Directories, dir)
	}

	layer, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize stores: %w", err)
	}
	if opts.Seed {
		report.Seeded, err = seed(ctx, layer)
	}
	if cerr := layer.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	stores := []StoreReport{
		{Path: cfg.CacheDBPath(), Tables: cache.Tables},
		{Path: cfg.ArtifactDBPath(), Tables: artifact.Tables},
		{Path: cfg.AnalyticsDBPath(), Tables: analytics.Tables},
	}
	for _, s := range stores {
		if err := database.VerifyTables(ctx, s.Path, s.Tables); err != nil {
			return nil, fmt.Errorf("verify %s: %w", s.Path, err)
		}
	}
	report.Stores = stores
	report.Duration = time.Since(start)

	logging.Info().
		Str("base_path", cfg.Storage.BasePath).
		Bool("seeded", opts.Seed).
		Dur("duration", report.Duration).
		Msg("Storage setup complete")
	return report, nil
}
