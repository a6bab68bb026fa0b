// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

//go:build integration

package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/roomwise/internal/database"
	"github.com/tomtom215/roomwise/internal/validation"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, err := database.Open(ctx, database.Options{
		Path:        filepath.Join(dir, "artifacts.duckdb"),
		Threads:     1,
		LockTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := New(ctx, db, Options{
		EmbeddingsDir: filepath.Join(dir, "embeddings"),
		ModelsDir:     filepath.Join(dir, "models"),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	clock := &testClock{t: time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)}
	store.now = clock.now
	return store, clock
}

func TestEmbeddingLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.SaveEmbedding(ctx, EmbeddingRequest{
		Category: CategoryRoom, EntityID: "LT1", Vector: []float32{0.1, 0.2, 0.3}, Version: "v1",
	})
	if err != nil {
		t.Fatalf("SaveEmbedding() error = %v", err)
	}

	second, err := store.SaveEmbedding(ctx, EmbeddingRequest{
		Category: CategoryRoom, EntityID: "LT1", Vector: []float32{0.4, 0.5, 0.6, 0.7}, Version: "v2",
	})
	if err != nil {
		t.Fatalf("SaveEmbedding() error = %v", err)
	}
	if _, err := os.Stat(first.FilePath); !os.IsNotExist(err) {
		t.Errorf("superseded file %s still exists", first.FilePath)
	}

	got, found, err := store.LoadEmbedding(ctx, CategoryRoom, "LT1")
	if err != nil || !found {
		t.Fatalf("LoadEmbedding() = (%v, %v)", found, err)
	}
	if got.Dimensions != 4 || got.Version != "v2" || got.ContentHash != second.ContentHash {
		t.Errorf("LoadEmbedding() = %+v", got)
	}

	if err := store.DeleteEmbedding(ctx, CategoryRoom, "LT1"); err != nil {
		t.Fatalf("DeleteEmbedding() error = %v", err)
	}
	if _, found, _ := store.LoadEmbedding(ctx, CategoryRoom, "LT1"); found {
		t.Error("LoadEmbedding() found a deleted embedding")
	}
	if err := store.DeleteEmbedding(ctx, CategoryRoom, "LT1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteEmbedding() error = %v, want ErrNotFound", err)
	}
}

func TestLoadEmbeddingMissingFileIsAbsent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	emb, err := store.SaveEmbedding(ctx, EmbeddingRequest{Category: CategoryUser, EntityID: "u-1", Vector: []float32{1, 2}})
	if err != nil {
		t.Fatalf("SaveEmbedding() error = %v", err)
	}
	if err := os.Remove(emb.FilePath); err != nil {
		t.Fatal(err)
	}

	got, found, err := store.LoadEmbedding(ctx, CategoryUser, "u-1")
	if err != nil || found || got != nil {
		t.Errorf("LoadEmbedding() = (%v, %v, %v), want absent", got, found, err)
	}
	if _, found, _ := store.LoadEmbedding(ctx, CategoryUser, "never-saved"); found {
		t.Error("LoadEmbedding() found an unknown entity")
	}
}

func TestLoadAllAndCleanupEmbeddings(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"b-1", "b-2"} {
		if _, err := store.SaveEmbedding(ctx, EmbeddingRequest{Category: CategoryBooking, EntityID: id, Vector: []float32{1}}); err != nil {
			t.Fatalf("SaveEmbedding() error = %v", err)
		}
	}
	clock.advance(40 * 24 * time.Hour)
	if _, err := store.SaveEmbedding(ctx, EmbeddingRequest{Category: CategoryBooking, EntityID: "b-3", Vector: []float32{2}}); err != nil {
		t.Fatalf("SaveEmbedding() error = %v", err)
	}

	all, err := store.LoadAllEmbeddings(ctx, CategoryBooking)
	if err != nil {
		t.Fatalf("LoadAllEmbeddings() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("LoadAllEmbeddings() returned %d, want 3", len(all))
	}

	removed, err := store.CleanupEmbeddings(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupEmbeddings() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	all, _ = store.LoadAllEmbeddings(ctx, CategoryBooking)
	if _, ok := all["b-3"]; !ok || len(all) != 1 {
		t.Errorf("remaining = %v, want only b-3", all)
	}
}

func TestEmbeddingValidation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  EmbeddingRequest
	}{
		{"empty id", EmbeddingRequest{Category: CategoryRoom, Vector: []float32{1}}},
		{"path in id", EmbeddingRequest{Category: CategoryRoom, EntityID: "../x", Vector: []float32{1}}},
		{"empty vector", EmbeddingRequest{Category: CategoryRoom, EntityID: "LT1"}},
		{"unknown category", EmbeddingRequest{Category: "desk", EntityID: "LT1", Vector: []float32{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.SaveEmbedding(ctx, tt.req); !errors.Is(err, validation.ErrValidation) {
				t.Errorf("SaveEmbedding() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestModelValidationKeepsFilesUnderModelsDir(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ModelRequest
	}{
		{"parent dir type", ModelRequest{Type: "..", Version: "v1", Model: "weights"}},
		{"current dir type", ModelRequest{Type: ".", Version: "v1", Model: "weights"}},
		{"parent dir version", ModelRequest{Type: "room_similarity", Version: "..", Model: "weights"}},
		{"separator in type", ModelRequest{Type: "a/b", Version: "v1", Model: "weights"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.SaveModel(ctx, tt.req); !errors.Is(err, validation.ErrValidation) {
				t.Errorf("SaveModel() error = %v, want ErrValidation", err)
			}
		})
	}

	parent := filepath.Dir(store.opts.ModelsDir)
	matches, err := filepath.Glob(filepath.Join(parent, "*.gob.gz"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("model files written outside ModelsDir: %v", matches)
	}
}

func TestLatestModelInvariant(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i, version := range []string{"v1", "v2", "v3"} {
		id, err := store.SaveModel(ctx, ModelRequest{
			Type:            "room_similarity",
			Version:         version,
			Model:           map[string]float64{"bias": float64(i)},
			Hyperparameters: map[string]interface{}{"k": 10 + i},
			Metrics:         map[string]float64{"precision": 0.8},
		})
		if err != nil {
			t.Fatalf("SaveModel(%s) error = %v", version, err)
		}
		ids = append(ids, id)
		clock.advance(time.Minute)
	}

	latest, found, err := store.LoadLatestModel(ctx, "room_similarity")
	if err != nil || !found {
		t.Fatalf("LoadLatestModel() = (%v, %v)", found, err)
	}
	if latest.Info.ID != ids[2] || latest.Info.Version != "v3" {
		t.Errorf("latest = %s (%s), want %s", latest.Info.ID, latest.Info.Version, ids[2])
	}
	if m, ok := latest.Value.(map[string]float64); !ok || m["bias"] != 2 {
		t.Errorf("latest value = %#v", latest.Value)
	}
	if latest.Info.Hyperparameters["k"] != float64(12) {
		t.Errorf("hyperparameters = %v", latest.Info.Hyperparameters)
	}

	infos, err := store.ListModels(ctx, "room_similarity", false)
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	flagged := 0
	for _, info := range infos {
		if info.IsLatest {
			flagged++
		}
	}
	if len(infos) != 3 || flagged != 1 {
		t.Errorf("ListModels() = %d models with %d latest, want 3 with 1", len(infos), flagged)
	}

	// Deleting the latest moves the flag to v2.
	if err := store.DeleteModel(ctx, ids[2]); err != nil {
		t.Fatalf("DeleteModel() error = %v", err)
	}
	latest, found, _ = store.LoadLatestModel(ctx, "room_similarity")
	if !found || latest.Info.ID != ids[1] {
		t.Errorf("latest after delete = %v", latest)
	}
	if _, found, _ := store.LoadModel(ctx, ids[2]); found {
		t.Error("LoadModel() found a deleted model")
	}
}

func TestSaveModelSameVersionSupersedes(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	first, err := store.SaveModel(ctx, ModelRequest{Type: "demand", Version: "v1", Model: []float32{1}})
	if err != nil {
		t.Fatalf("SaveModel() error = %v", err)
	}
	clock.advance(time.Second)
	second, err := store.SaveModel(ctx, ModelRequest{Type: "demand", Version: "v1", Model: []float32{2}})
	if err != nil {
		t.Fatalf("SaveModel() error = %v", err)
	}

	if _, found, _ := store.LoadModel(ctx, first); found {
		t.Error("superseded model still loads")
	}
	latest, found, _ := store.LoadLatestModel(ctx, "demand")
	if !found || latest.Info.ID != second {
		t.Errorf("latest = %v, want %s", latest, second)
	}
}

func TestCleanupKeepsLatestN(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for _, version := range []string{"v1", "v2", "v3", "v4", "v5"} {
		id, err := store.SaveModel(ctx, ModelRequest{Type: "availability", Version: version, Model: version})
		if err != nil {
			t.Fatalf("SaveModel() error = %v", err)
		}
		ids = append(ids, id)
		clock.advance(time.Hour)
	}
	clock.advance(100 * 24 * time.Hour)

	removed, err := store.CleanupOldModels(ctx, 90*24*time.Hour, 3)
	if err != nil {
		t.Fatalf("CleanupOldModels() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	infos, _ := store.ListModels(ctx, "availability", false)
	if len(infos) != 3 {
		t.Fatalf("remaining = %d, want 3", len(infos))
	}
	for i, info := range infos {
		if info.ID != ids[4-i] {
			t.Errorf("remaining[%d] = %s, want %s", i, info.ID, ids[4-i])
		}
	}
	latest, found, _ := store.LoadLatestModel(ctx, "availability")
	if !found || latest.Info.ID != ids[4] {
		t.Errorf("latest = %v, want %s", latest, ids[4])
	}
}

func TestLoadModelUnknownFormatIsAbsent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.SaveModel(ctx, ModelRequest{Type: "legacy", Version: "v1", Model: "weights"})
	if err != nil {
		t.Fatalf("SaveModel() error = %v", err)
	}
	err = store.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
		_, err := q.ExecContext(ctx, "UPDATE model_metadata SET format = 'pickle' WHERE model_id = ?", id)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, found, err := store.LoadModel(ctx, id); found || err != nil {
		t.Errorf("LoadModel() = (%v, %v), want absent", found, err)
	}
}
