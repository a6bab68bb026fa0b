// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	return string(b)
}

// newTestManager builds a storage root with a few files and a backup
// directory nested inside it.
func newTestManager(t *testing.T, compress bool, snaps ...Snapshot) (*Manager, string, *testClock) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "models", "room_similarity", "m1.gob.gz"), "model-bytes")
	writeFile(t, filepath.Join(root, "embeddings", "rooms", "LT1_abc.vec"), "vector-bytes")
	writeFile(t, filepath.Join(root, "cache", "overflow", "ab", "ab01.bin"), "payload")
	writeFile(t, filepath.Join(root, "embeddings", "rooms", "partial.tmp"), "ignored")

	m, err := NewManager(Options{
		Root:      root,
		Dir:       filepath.Join(root, "backups"),
		Compress:  compress,
		Snapshots: snaps,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	clock := &testClock{t: time.Date(2026, 3, 18, 10, 15, 0, 0, time.UTC)}
	m.now = clock.now
	return m, root, clock
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "compressed"
		}
		t.Run(name, func(t *testing.T) {
			m, root, _ := newTestManager(t, compress)
			ctx := context.Background()

			manifest, err := m.CreateBackup(ctx)
			if err != nil {
				t.Fatalf("CreateBackup() error = %v", err)
			}
			if len(manifest.Files) != 3 {
				t.Errorf("manifest has %d files, want 3: %+v", len(manifest.Files), manifest.Files)
			}
			if manifest.Compressed != compress || manifest.TotalSize == 0 {
				t.Errorf("manifest = %+v", manifest)
			}
			if !idPattern.MatchString(manifest.ID) {
				t.Errorf("ID %q does not match the id pattern", manifest.ID)
			}

			model := filepath.Join(root, "models", "room_similarity", "m1.gob.gz")
			writeFile(t, model, "changed")
			if err := os.Remove(filepath.Join(root, "embeddings", "rooms", "LT1_abc.vec")); err != nil {
				t.Fatal(err)
			}

			result, err := m.Restore(ctx, manifest.ID)
			if err != nil {
				t.Fatalf("Restore() error = %v", err)
			}
			if result.FilesRestored != 3 {
				t.Errorf("FilesRestored = %d, want 3", result.FilesRestored)
			}
			if got := readFile(t, model); got != "model-bytes" {
				t.Errorf("model = %q after restore", got)
			}
			if got := readFile(t, filepath.Join(root, "embeddings", "rooms", "LT1_abc.vec")); got != "vector-bytes" {
				t.Errorf("embedding = %q after restore", got)
			}
			if _, err := os.Stat(filepath.Join(m.Dir(), manifest.ID, stagingDir)); !os.IsNotExist(err) {
				t.Error("staging directory left behind")
			}
		})
	}
}

func TestRestoreRejectsTamperedBackup(t *testing.T) {
	m, root, _ := newTestManager(t, false)
	ctx := context.Background()

	manifest, err := m.CreateBackup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(m.Dir(), manifest.ID, filesDir, "models", "room_similarity", "m1.gob.gz"), "evil")

	model := filepath.Join(root, "models", "room_similarity", "m1.gob.gz")
	writeFile(t, model, "live")

	if _, err := m.Restore(ctx, manifest.ID); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("Restore() error = %v, want ErrChecksumMismatch", err)
	}
	if got := readFile(t, model); got != "live" {
		t.Errorf("live file changed to %q by a failed restore", got)
	}
}

func TestRestoreUnknownBackup(t *testing.T) {
	m, _, _ := newTestManager(t, false)
	ctx := context.Background()

	for _, id := range []string{"backup-20260101-000000-deadbeef", "../../etc", ""} {
		if _, err := m.Restore(ctx, id); !errors.Is(err, ErrBackupNotFound) {
			t.Errorf("Restore(%q) error = %v, want ErrBackupNotFound", id, err)
		}
	}
}

func TestSnapshotsAreStreamedAndLoaded(t *testing.T) {
	var loaded bytes.Buffer
	snap := Snapshot{
		Name: "overflow.badger",
		Dir:  filepath.Join("cache", "overflow"),
		Save: func(w io.Writer) error {
			_, err := io.WriteString(w, "badger-stream")
			return err
		},
		Load: func(r io.Reader) error {
			_, err := io.Copy(&loaded, r)
			return err
		},
	}
	m, _, _ := newTestManager(t, true, snap)
	ctx := context.Background()

	manifest, err := m.CreateBackup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range manifest.Files {
		if f.Path == "cache/overflow/ab/ab01.bin" {
			t.Error("snapshot directory was also copied file by file")
		}
	}
	if len(manifest.Snapshots) != 1 || manifest.Snapshots[0].Size != int64(len("badger-stream")) {
		t.Fatalf("Snapshots = %+v", manifest.Snapshots)
	}

	result, err := m.Restore(ctx, manifest.ID)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.SnapshotsRestored != 1 || loaded.String() != "badger-stream" {
		t.Errorf("loaded %q, result %+v", loaded.String(), result)
	}
}

func TestListAndPrune(t *testing.T) {
	m, _, clock := newTestManager(t, false)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		manifest, err := m.CreateBackup(ctx)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, manifest.ID)
		clock.t = clock.t.Add(time.Hour)
	}
	// An interrupted backup has no manifest.
	if err := os.MkdirAll(filepath.Join(m.Dir(), "backup-20260318-230000-00000000"), 0o750); err != nil {
		t.Fatal(err)
	}

	list, err := m.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(list) != 3 || list[0].ID != ids[2] || list[2].ID != ids[0] {
		t.Fatalf("ListBackups() = %v, want newest first", list)
	}
	if list[0].Size == 0 {
		t.Error("Size = 0")
	}

	removed, err := m.Prune(2)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Prune() removed %d, want 1", removed)
	}
	if _, err := m.GetBackup(ids[0]); !errors.Is(err, ErrBackupNotFound) {
		t.Errorf("GetBackup(oldest) error = %v, want ErrBackupNotFound", err)
	}
	if _, err := m.GetBackup(ids[2]); err != nil {
		t.Errorf("GetBackup(newest) error = %v", err)
	}

	if _, err := m.Prune(0); err == nil {
		t.Error("Prune(0) succeeded, want error")
	}
	if err := m.DeleteBackup(ids[1]); err != nil {
		t.Errorf("DeleteBackup() error = %v", err)
	}
	if err := m.DeleteBackup(ids[1]); !errors.Is(err, ErrBackupNotFound) {
		t.Errorf("second DeleteBackup() error = %v", err)
	}
}
