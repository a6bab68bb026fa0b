// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/roomwise/internal/logging"
)

// Job is one run of a periodic maintenance task.
type Job func(ctx context.Context) error

// PeriodicService runs a Job on a fixed interval. A failed run is logged
// and retried on the next tick; only a bad interval ends Serve.
type PeriodicService struct {
	name       string
	interval   time.Duration
	job        Job
	runOnStart bool
}

// NewPeriodicService returns a service that runs job every interval. With
// runOnStart the first run happens immediately.
func NewPeriodicService(name string, interval time.Duration, runOnStart bool, job Job) *PeriodicService {
	return &PeriodicService{name: name, interval: interval, job: job, runOnStart: runOnStart}
}

// Serve implements suture.Service.
func (p *PeriodicService) Serve(ctx context.Context) error {
	if p.interval <= 0 {
		return fmt.Errorf("%s: interval must be positive, got %v", p.name, p.interval)
	}

	logging.Info().Str("service", p.name).Dur("interval", p.interval).Msg("Periodic job scheduled")
	if p.runOnStart {
		p.runOnce(ctx)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *PeriodicService) runOnce(ctx context.Context) {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	start := time.Now()
	if err := p.job(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.Ctx(ctx).Error().Err(err).Str("service", p.name).Msg("Periodic job failed")
		return
	}
	logging.Ctx(ctx).Debug().Str("service", p.name).Dur("duration", time.Since(start)).Msg("Periodic job finished")
}

func (p *PeriodicService) String() string {
	return p.name
}
