// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/roomwise/internal/logging"
	"github.com/tomtom215/roomwise/internal/metrics"
)

var idPattern = regexp.MustCompile(`^backup-\d{8}-\d{6}-[0-9a-f]{8}$`)

// Options configures a Manager.
type Options struct {
	// Root is the storage root being backed up.
	Root string

	// Dir holds the backups. It is skipped when it lies under Root.
	Dir string

	// Compress writes data.tar.gz instead of plain copies.
	Compress bool

	Stores    []Store
	Snapshots []Snapshot

	// Exclude lists Root-relative paths the walk skips.
	Exclude []string
}

// Manager creates, lists, prunes and restores backups. Operations are
// serialized.
type Manager struct {
	opts Options
	mu   sync.Mutex
	now  func() time.Time
	log  zerolog.Logger
}

// NewManager creates the backup directory if needed.
func NewManager(opts Options) (*Manager, error) {
	if opts.Root == "" || opts.Dir == "" {
		return nil, fmt.Errorf("backup root and directory are required")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, err
	}
	opts.Root, opts.Dir = root, dir

	if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &Manager{
		opts: opts,
		now:  func() time.Time { return time.Now().UTC() },
		log:  logging.WithComponent("backup"),
	}, nil
}

// Dir returns the backup directory.
func (m *Manager) Dir() string {
	return m.opts.Dir
}

func (m *Manager) newID(at time.Time) string {
	return "backup-" + at.Format("20060102-150405") + "-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// CreateBackup writes a new backup of the storage root.
func (m *Manager) CreateBackup(ctx context.Context) (*Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	manifest, err := m.createBackup(ctx)
	metrics.RecordBackup(err)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Backup failed")
		return nil, err
	}
	m.log.Info().
		Str("backup_id", manifest.ID).
		Int("files", len(manifest.Files)).
		Int("snapshots", len(manifest.Snapshots)).
		Int64("total_size", manifest.TotalSize).
		Bool("compressed", manifest.Compressed).
		Dur("duration", manifest.Duration).
		Msg("Backup completed")
	return manifest, nil
}

func (m *Manager) createBackup(ctx context.Context) (manifest *Manifest, err error) {
	start := time.Now()
	createdAt := m.now()
	manifest = &Manifest{
		ID:         m.newID(createdAt),
		CreatedAt:  createdAt,
		AppVersion: AppVersion,
		Compressed: m.opts.Compress,
		Files:      []FileEntry{},
	}
	dir := filepath.Join(m.opts.Dir, manifest.ID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(dir) //nolint:errcheck // best effort cleanup of a partial backup
		}
	}()

	for _, s := range m.opts.Stores {
		manifest.Stores = append(manifest.Stores, StoreSummary{Path: filepath.ToSlash(s.Path), Tables: s.Tables})
		if s.DB == nil {
			continue
		}
		// A failed checkpoint leaves recent writes in the WAL, which is copied too.
		if err := s.DB.Checkpoint(ctx); err != nil {
			m.log.Warn().Err(err).Str("store", s.Path).Msg("Checkpoint failed, backup includes the WAL")
		}
	}

	files, err := m.collectFiles()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if m.opts.Compress {
		manifest.Files, err = writeArchive(ctx, m.opts.Root, files, filepath.Join(dir, archiveName))
	} else {
		manifest.Files, err = copyTree(ctx, m.opts.Root, files, filepath.Join(dir, filesDir))
	}
	if err != nil {
		return nil, err
	}

	for _, snap := range m.opts.Snapshots {
		if snap.Save == nil {
			continue
		}
		entry, err := writeSnapshot(filepath.Join(dir, snapshotsDir), snap)
		if err != nil {
			return nil, err
		}
		manifest.Snapshots = append(manifest.Snapshots, entry)
	}

	for _, f := range manifest.Files {
		manifest.TotalSize += f.Size
	}
	for _, f := range manifest.Snapshots {
		manifest.TotalSize += f.Size
	}
	manifest.Duration = time.Since(start)

	if err := writeManifest(dir, manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// collectFiles lists Root-relative paths of every regular file to back up.
func (m *Manager) collectFiles() ([]string, error) {
	skip := map[string]bool{}
	for _, p := range m.opts.Exclude {
		skip[filepath.Clean(p)] = true
	}
	for _, s := range m.opts.Snapshots {
		skip[filepath.Clean(s.Dir)] = true
	}
	if rel, err := filepath.Rel(m.opts.Root, m.opts.Dir); err == nil && filepath.IsLocal(rel) {
		skip[rel] = true
	}

	var files []string
	err := filepath.WalkDir(m.opts.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(m.opts.Root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if skip[rel] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate storage files: %w", err)
	}
	return files, nil
}

func writeManifest(dir string, manifest *Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	tmp := filepath.Join(dir, manifestName+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return os.Rename(tmp, filepath.Join(dir, manifestName))
}

func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName)) //nolint:gosec // dir is built from a validated id
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &manifest, nil
}
