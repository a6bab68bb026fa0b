// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/roomwise/internal/analytics"
	"github.com/tomtom215/roomwise/internal/backup"
	"github.com/tomtom215/roomwise/internal/config"
)

type fakeSweeper struct {
	startErr error
	started  chan struct{}
	stops    atomic.Int32
}

func (f *fakeSweeper) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	close(f.started)
	return nil
}

func (f *fakeSweeper) Stop() { f.stops.Add(1) }

func TestSweeperService(t *testing.T) {
	t.Run("stops the sweeper on cancel", func(t *testing.T) {
		sw := &fakeSweeper{started: make(chan struct{})}
		svc := NewSweeperService(sw)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()

		<-sw.started
		cancel()
		if err := <-errCh; !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v", err)
		}
		if sw.stops.Load() != 1 {
			t.Errorf("Stop called %d times, want 1", sw.stops.Load())
		}
	})

	t.Run("start failure is returned", func(t *testing.T) {
		sw := &fakeSweeper{startErr: errors.New("sweep interval must be positive")}
		if err := NewSweeperService(sw).Serve(context.Background()); !errors.Is(err, sw.startErr) {
			t.Errorf("Serve() error = %v", err)
		}
	})
}

func TestPeriodicService(t *testing.T) {
	t.Run("runs on start and on every tick", func(t *testing.T) {
		var runs atomic.Int32
		ran := make(chan struct{}, 10)
		svc := NewPeriodicService("test-job", 20*time.Millisecond, true, func(context.Context) error {
			runs.Add(1)
			ran <- struct{}{}
			if runs.Load() == 1 {
				return errors.New("first run fails")
			}
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()

		for i := 0; i < 3; i++ {
			select {
			case <-ran:
			case <-time.After(2 * time.Second):
				t.Fatalf("only %d runs", runs.Load())
			}
		}
		cancel()
		if err := <-errCh; !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v", err)
		}
	})

	t.Run("rejects a non-positive interval", func(t *testing.T) {
		svc := NewPeriodicService("test-job", 0, false, func(context.Context) error { return nil })
		if err := svc.Serve(context.Background()); err == nil {
			t.Error("Serve() succeeded with a zero interval")
		}
	})
}

type fakeCleaner struct {
	mu           sync.Mutex
	embeddingAge time.Duration
	modelAge     time.Duration
	keepLatest   int
	days         int
	modelErr     error
}

func (f *fakeCleaner) CleanupEmbeddings(_ context.Context, maxAge time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeddingAge = maxAge
	return 2, nil
}

func (f *fakeCleaner) CleanupOldModels(_ context.Context, maxAge time.Duration, keep int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modelAge, f.keepLatest = maxAge, keep
	return 0, f.modelErr
}

func (f *fakeCleaner) CleanupOldData(_ context.Context, days int) (*analytics.CleanupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.days = days
	return &analytics.CleanupResult{}, nil
}

func TestRetentionJob(t *testing.T) {
	cfg := config.RetentionConfig{EmbeddingDays: 30, ModelDays: 90, ModelKeepLatest: 3, AnalyticsDays: 365}

	f := &fakeCleaner{modelErr: errors.New("disk full")}
	err := RetentionJob(f, f, cfg)(context.Background())
	if !errors.Is(err, f.modelErr) {
		t.Errorf("error = %v, want the model error", err)
	}
	// A failing step does not skip the following ones.
	if f.embeddingAge != 30*24*time.Hour || f.modelAge != 90*24*time.Hour || f.keepLatest != 3 || f.days != 365 {
		t.Errorf("cleaner = %+v", f)
	}

	f = &fakeCleaner{}
	if err := RetentionJob(f, f, config.RetentionConfig{AnalyticsDays: 7})(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.embeddingAge != 0 || f.modelAge != 0 || f.days != 7 {
		t.Errorf("disabled windows were applied: %+v", f)
	}
}

type fakeBackups struct {
	createErr error
	created   int
	prunedTo  int
}

func (f *fakeBackups) CreateBackup(context.Context) (*backup.Manifest, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &backup.Manifest{ID: "backup-20260318-101500-0a1b2c3d", TotalSize: 42}, nil
}

func (f *fakeBackups) Prune(keep int) (int, error) {
	f.prunedTo = keep
	return 0, nil
}

func TestBackupJob(t *testing.T) {
	f := &fakeBackups{}
	if err := BackupJob(f, 7)(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.created != 1 || f.prunedTo != 7 {
		t.Errorf("created=%d prunedTo=%d", f.created, f.prunedTo)
	}

	f = &fakeBackups{}
	if err := BackupJob(f, 0)(context.Background()); err != nil || f.prunedTo != 0 {
		t.Errorf("keep 0 pruned to %d, err %v", f.prunedTo, err)
	}

	f = &fakeBackups{createErr: errors.New("no space left")}
	if err := BackupJob(f, 7)(context.Background()); !errors.Is(err, f.createErr) {
		t.Errorf("error = %v", err)
	}
	if f.prunedTo != 0 {
		t.Error("pruned after a failed backup")
	}

	if svc := NewBackupService(f, config.BackupConfig{Interval: time.Hour, Keep: 7}); svc.String() != "scheduled-backup" || svc.runOnStart {
		t.Errorf("svc = %+v", svc)
	}
}

type fakeConsumer struct{ served atomic.Bool }

func (f *fakeConsumer) Serve(ctx context.Context) error {
	f.served.Store(true)
	<-ctx.Done()
	return ctx.Err()
}

func TestIngestService(t *testing.T) {
	c := &fakeConsumer{}
	svc := NewIngestService(c)
	if svc.String() != "analytics-ingest" {
		t.Errorf("String() = %q", svc.String())
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) || !c.served.Load() {
		t.Errorf("Serve() error = %v served=%v", err, c.served.Load())
	}
}
