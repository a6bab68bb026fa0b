// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

// Package sweeper runs the periodic cache expiry and space reclamation pass.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/roomwise/internal/cache"
	"github.com/tomtom215/roomwise/internal/logging"
	"github.com/tomtom215/roomwise/internal/metrics"
)

// Target is the part of the cache store the sweeper drives.
type Target interface {
	EvictExpired(ctx context.Context) (cache.EvictionResult, error)
	Reclaim(ctx context.Context) (cache.ReclaimResult, error)
}

// Result summarizes one pass.
type Result struct {
	StartedAt time.Time
	Duration  time.Duration
	Evicted   int
	Reclaim   cache.ReclaimResult
	Err       error
}

// Sweeper evicts expired cache entries on a fixed interval. A failed pass
// is logged and the next tick tries again.
type Sweeper struct {
	target   Target
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	last    Result

	// runMu keeps RunNow and the ticker from overlapping.
	runMu sync.Mutex
}

// New returns a stopped Sweeper.
func New(target Target, interval time.Duration) *Sweeper {
	return &Sweeper{target: target, interval: interval}
}

// Start launches the sweep loop. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %v", s.interval)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()

	logging.Info().Dur("interval", s.interval).Msg("Cache sweeper started")
	return nil
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	logging.Info().Msg("Cache sweeper stopped")
}

// IsRunning reports whether the loop is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastResult returns the most recent pass.
func (s *Sweeper) LastResult() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.RunNow(s.ctx)
		}
	}
}

// RunNow performs one pass synchronously.
func (s *Sweeper) RunNow(ctx context.Context) Result {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx)
	res := Result{StartedAt: time.Now()}

	evicted, err := s.target.EvictExpired(ctx)
	res.Evicted = len(evicted.Deleted)
	if err != nil {
		res.Err = err
		log.Error().Err(err).Int("evicted", res.Evicted).Msg("Cache expiry sweep failed")
	}

	// Reclaim runs even after a failed eviction; it has its own failure modes.
	reclaim, err := s.target.Reclaim(ctx)
	res.Reclaim = reclaim
	if err != nil {
		if res.Err == nil {
			res.Err = err
		}
		log.Error().Err(err).Msg("Cache space reclamation failed")
	}

	res.Duration = time.Since(res.StartedAt)
	metrics.RecordSweep(res.Duration, res.Evicted, res.Err)

	if res.Evicted > 0 || res.Reclaim.Checkpointed {
		log.Info().
			Int("evicted", res.Evicted).
			Int("payload_errors", evicted.PayloadErrors).
			Float64("fragmentation", reclaim.Fragmentation).
			Bool("checkpointed", reclaim.Checkpointed).
			Dur("duration", res.Duration).
			Msg("Cache sweep completed")
	}

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	return res
}
