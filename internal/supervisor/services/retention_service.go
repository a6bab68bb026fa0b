// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/roomwise/internal/analytics"
	"github.com/tomtom215/roomwise/internal/config"
	"github.com/tomtom215/roomwise/internal/logging"
)

// ArtifactCleaner matches the retention methods of artifact.Store.
type ArtifactCleaner interface {
	CleanupEmbeddings(ctx context.Context, maxAge time.Duration) (int, error)
	CleanupOldModels(ctx context.Context, maxAge time.Duration, keepLatest int) (int, error)
}

// AnalyticsCleaner matches analytics.Log.
type AnalyticsCleaner interface {
	CleanupOldData(ctx context.Context, days int) (*analytics.CleanupResult, error)
}

const day = 24 * time.Hour

// RetentionJob applies the configured retention windows. A window of zero
// days disables that step. Every step runs even if an earlier one fails.
func RetentionJob(artifacts ArtifactCleaner, events AnalyticsCleaner, cfg config.RetentionConfig) Job {
	return func(ctx context.Context) error {
		log := logging.Ctx(ctx)
		var errs []error

		if cfg.EmbeddingDays > 0 {
			n, err := artifacts.CleanupEmbeddings(ctx, time.Duration(cfg.EmbeddingDays)*day)
			if err != nil {
				errs = append(errs, fmt.Errorf("embeddings: %w", err))
			} else if n > 0 {
				log.Info().Int("removed", n).Msg("Expired embeddings removed")
			}
		}

		if cfg.ModelDays > 0 {
			n, err := artifacts.CleanupOldModels(ctx, time.Duration(cfg.ModelDays)*day, cfg.ModelKeepLatest)
			if err != nil {
				errs = append(errs, fmt.Errorf("models: %w", err))
			} else if n > 0 {
				log.Info().Int("removed", n).Msg("Old models removed")
			}
		}

		if cfg.AnalyticsDays > 0 {
			if _, err := events.CleanupOldData(ctx, cfg.AnalyticsDays); err != nil {
				errs = append(errs, fmt.Errorf("analytics: %w", err))
			}
		}
		return errors.Join(errs...)
	}
}

// NewRetentionService schedules RetentionJob on cfg.Interval, starting
// with an immediate pass.
func NewRetentionService(artifacts ArtifactCleaner, events AnalyticsCleaner, cfg config.RetentionConfig) *PeriodicService {
	return NewPeriodicService("retention-cleanup", cfg.Interval, true, RetentionJob(artifacts, events, cfg))
}
