// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/roomwise/internal/cache"
)

type fakeTarget struct {
	evictCalls   atomic.Int32
	reclaimCalls atomic.Int32
	evictErr     error
	deleted      []string
}

func (f *fakeTarget) EvictExpired(context.Context) (cache.EvictionResult, error) {
	f.evictCalls.Add(1)
	return cache.EvictionResult{Deleted: f.deleted}, f.evictErr
}

func (f *fakeTarget) Reclaim(context.Context) (cache.ReclaimResult, error) {
	f.reclaimCalls.Add(1)
	return cache.ReclaimResult{Fragmentation: 0.1}, nil
}

func TestRunNow(t *testing.T) {
	target := &fakeTarget{deleted: []string{"a", "b"}}
	s := New(target, time.Hour)

	res := s.RunNow(context.Background())
	if res.Err != nil {
		t.Fatalf("RunNow() error = %v", res.Err)
	}
	if res.Evicted != 2 {
		t.Errorf("Evicted = %d, want 2", res.Evicted)
	}
	if s.LastResult().Evicted != 2 {
		t.Errorf("LastResult().Evicted = %d, want 2", s.LastResult().Evicted)
	}
}

func TestRunNowReclaimsAfterEvictionFailure(t *testing.T) {
	target := &fakeTarget{evictErr: errors.New("database is busy")}
	s := New(target, time.Hour)

	res := s.RunNow(context.Background())
	if res.Err == nil {
		t.Fatal("RunNow() error = nil, want eviction error")
	}
	if target.reclaimCalls.Load() != 1 {
		t.Errorf("Reclaim calls = %d, want 1", target.reclaimCalls.Load())
	}
}

func TestStartStop(t *testing.T) {
	target := &fakeTarget{}
	s := New(target, 10*time.Millisecond)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if !s.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}

	deadline := time.Now().Add(2 * time.Second)
	for target.evictCalls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if target.evictCalls.Load() < 2 {
		t.Fatalf("evict calls = %d, want at least 2", target.evictCalls.Load())
	}

	s.Stop()
	s.Stop()
	if s.IsRunning() {
		t.Fatal("IsRunning() = true after Stop")
	}

	calls := target.evictCalls.Load()
	time.Sleep(30 * time.Millisecond)
	if target.evictCalls.Load() != calls {
		t.Error("sweeper kept running after Stop")
	}
}

func TestStartRejectsZeroInterval(t *testing.T) {
	if err := New(&fakeTarget{}, 0).Start(context.Background()); err == nil {
		t.Fatal("Start() with zero interval succeeded")
	}
}
