// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

// Package storage opens every store described by the configuration and
// owns their lifetimes. One Layer is built per process and passed by
// pointer; nothing in the stores is global.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/tomtom215/roomwise/internal/analytics"
	"github.com/tomtom215/roomwise/internal/artifact"
	"github.com/tomtom215/roomwise/internal/backup"
	"github.com/tomtom215/roomwise/internal/cache"
	"github.com/tomtom215/roomwise/internal/config"
	"github.com/tomtom215/roomwise/internal/database"
	"github.com/tomtom215/roomwise/internal/logging"
)

// Overflow backends.
const (
	BackendBadger = "badger"
	BackendFile   = "file"
)

// Layer holds the open stores.
type Layer struct {
	cfg *config.Config

	CacheDB     *database.DB
	ArtifactDB  *database.DB
	AnalyticsDB *database.DB

	Cache     *cache.Store
	Artifacts *artifact.Store
	Analytics *analytics.Log

	// badger is nil with the file backend.
	badger *cache.BadgerTier
}

// Open opens all stores, creating directories and schemas as needed. On
// error everything opened so far is closed.
func Open(ctx context.Context, cfg *config.Config) (l *Layer, err error) {
	l = &Layer{cfg: cfg}
	defer func() {
		if err != nil {
			l.Close() //nolint:errcheck // already failing
			l = nil
		}
	}()

	dbOpts := func(path string) database.Options {
		return database.Options{
			Path:        path,
			MaxMemory:   cfg.Database.MaxMemory,
			Threads:     cfg.Database.Threads,
			LockTimeout: cfg.Database.LockTimeout,
		}
	}

	if l.CacheDB, err = database.Open(ctx, dbOpts(cfg.CacheDBPath())); err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	overflow, err := l.openOverflow()
	if err != nil {
		return nil, err
	}
	l.Cache, err = cache.New(ctx, l.CacheDB, cache.WithBreaker(overflow, cache.DefaultBreakerConfig()), cache.Options{
		InlineThreshold:        cfg.Cache.InlineThreshold(),
		DefaultTTL:             cfg.Cache.DefaultTTL,
		TTLByKind:              cfg.Cache.TTLByKind,
		FragmentationThreshold: cfg.Cache.FragmentationThreshold,
	})
	if err != nil {
		overflow.Close() //nolint:errcheck // already failing
		return nil, err
	}

	if l.ArtifactDB, err = database.Open(ctx, dbOpts(cfg.ArtifactDBPath())); err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	if l.Artifacts, err = artifact.New(ctx, l.ArtifactDB, artifact.Options{
		EmbeddingsDir: cfg.EmbeddingsPath(),
		ModelsDir:     cfg.ModelsPath(),
	}); err != nil {
		return nil, err
	}

	if l.AnalyticsDB, err = database.Open(ctx, dbOpts(cfg.AnalyticsDBPath())); err != nil {
		return nil, fmt.Errorf("open analytics store: %w", err)
	}
	if l.Analytics, err = analytics.New(ctx, l.AnalyticsDB); err != nil {
		return nil, err
	}

	logging.Info().
		Str("base_path", cfg.Storage.BasePath).
		Str("overflow_backend", l.Cache.OverflowName()).
		Int("inline_threshold", cfg.Cache.InlineThreshold()).
		Msg("Storage layer opened")
	return l, nil
}

func (l *Layer) openOverflow() (cache.OverflowTier, error) {
	switch l.cfg.Cache.OverflowBackend {
	case BackendBadger, "":
		bt, err := cache.OpenBadgerTier(l.cfg.OverflowPath(), l.cfg.Cache.BadgerGCRatio)
		if err != nil {
			return nil, err
		}
		l.badger = bt
		return bt, nil
	case BackendFile:
		return cache.OpenFileTier(l.cfg.OverflowPath())
	default:
		return nil, fmt.Errorf("unknown overflow backend %q", l.cfg.Cache.OverflowBackend)
	}
}

// Ping checks every metadata store.
func (l *Layer) Ping(ctx context.Context) error {
	for name, db := range map[string]*database.DB{
		"cache": l.CacheDB, "artifacts": l.ArtifactDB, "analytics": l.AnalyticsDB,
	} {
		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("%s store: %w", name, err)
		}
	}
	return nil
}

// Close closes every open store and returns the joined errors.
func (l *Layer) Close() error {
	var errs []error
	if l.Cache != nil {
		errs = append(errs, l.Cache.Close())
	}
	for _, db := range []*database.DB{l.CacheDB, l.ArtifactDB, l.AnalyticsDB} {
		if db != nil {
			errs = append(errs, db.Close())
		}
	}
	return errors.Join(errs...)
}

// BackupOptions describes the storage tree for backup.Manager. With a nil
// Layer the options only support listing and restore, which must run with
// the stores closed.
func BackupOptions(cfg *config.Config, l *Layer) backup.Options {
	rel := func(path string) string {
		r, err := filepath.Rel(cfg.Storage.BasePath, path)
		if err != nil {
			return path
		}
		return r
	}

	stores := []backup.Store{
		{Path: rel(cfg.CacheDBPath()), Tables: cache.Tables},
		{Path: rel(cfg.ArtifactDBPath()), Tables: artifact.Tables},
		{Path: rel(cfg.AnalyticsDBPath()), Tables: analytics.Tables},
	}
	if l != nil {
		stores[0].DB = l.CacheDB
		stores[1].DB = l.ArtifactDB
		stores[2].DB = l.AnalyticsDB
	}

	opts := backup.Options{
		Root:     cfg.Storage.BasePath,
		Dir:      cfg.BackupPath(),
		Compress: cfg.Backup.Compress,
		Stores:   stores,
	}

	if cfg.Cache.OverflowBackend == BackendBadger || cfg.Cache.OverflowBackend == "" {
		snap := backup.Snapshot{
			Name: "overflow.badger",
			Dir:  config.OverflowDir,
			Load: func(r io.Reader) error {
				return cache.LoadBadgerSnapshot(cfg.OverflowPath(), r)
			},
		}
		if l != nil && l.badger != nil {
			snap.Save = l.badger.Snapshot
		}
		opts.Snapshots = append(opts.Snapshots, snap)
	}
	return opts
}
