// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package storage

import (
	"testing"

	"github.com/tomtom215/roomwise/internal/config"
)

func TestBackupOptionsWithoutLayer(t *testing.T) {
	cfg := config.Default(t.TempDir())

	opts := BackupOptions(cfg, nil)
	if opts.Root != cfg.Storage.BasePath || opts.Dir != cfg.BackupPath() {
		t.Errorf("Root/Dir = %s / %s", opts.Root, opts.Dir)
	}

	want := map[string]bool{
		"cache/cache.duckdb":         true,
		"models/artifacts.duckdb":    true,
		"analytics/analytics.duckdb": true,
	}
	for _, s := range opts.Stores {
		if !want[s.Path] {
			t.Errorf("unexpected store path %q", s.Path)
		}
		if s.DB != nil {
			t.Errorf("store %s has a DB without a layer", s.Path)
		}
		if len(s.Tables) == 0 {
			t.Errorf("store %s lists no tables", s.Path)
		}
	}

	if len(opts.Snapshots) != 1 || opts.Snapshots[0].Dir != config.OverflowDir {
		t.Fatalf("Snapshots = %+v", opts.Snapshots)
	}
	if opts.Snapshots[0].Save != nil || opts.Snapshots[0].Load == nil {
		t.Error("offline snapshot should only load")
	}

	cfg.Cache.OverflowBackend = BackendFile
	if opts := BackupOptions(cfg, nil); len(opts.Snapshots) != 0 {
		t.Errorf("file backend Snapshots = %+v, want none", opts.Snapshots)
	}
}
