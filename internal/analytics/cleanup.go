// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/roomwise/internal/metrics"
	"github.com/tomtom215/roomwise/internal/validation"
)

// CleanupOldData deletes raw events that occurred more than days ago and
// aggregate rows older than twice that, then checkpoints the store.
// Stored user patterns follow the aggregate window.
func (l *Log) CleanupOldData(ctx context.Context, days int) (*CleanupResult, error) {
	if days <= 0 {
		return nil, invalid(validation.Newf("days", "must be positive, got %d", days))
	}
	start := time.Now()
	defer metrics.RecordDBOperation("analytics", "cleanup", start)

	now := l.now()
	rawCutoff := now.AddDate(0, 0, -days)
	aggCutoff := dayOf(now.AddDate(0, 0, -2*days))

	res := &CleanupResult{}
	err := l.db.Tx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		deletes := []struct {
			table string
			query string
			arg   time.Time
			into  *int64
		}{
			{"booking_events", "DELETE FROM booking_events WHERE occurred_at < ?", rawCutoff, &res.BookingEvents},
			{"recommendation_events", "DELETE FROM recommendation_events WHERE occurred_at < ?", rawCutoff, &res.RecommendationEvents},
			{"daily_aggregates", "DELETE FROM daily_aggregates WHERE day < ?", aggCutoff, &res.AggregateRows},
			{"hourly_room_utilization", "DELETE FROM hourly_room_utilization WHERE day < ?", aggCutoff, &res.AggregateRows},
			{"recommendation_performance", "DELETE FROM recommendation_performance WHERE day < ?", aggCutoff, &res.AggregateRows},
			{"user_patterns", "DELETE FROM user_patterns WHERE analyzed_at < ?", aggCutoff, &res.UserPatterns},
		}
		for _, d := range deletes {
			r, err := tx.ExecContext(ctx, d.query, d.arg)
			if err != nil {
				return fmt.Errorf("purge %s: %w", d.table, err)
			}
			n, err := r.RowsAffected()
			if err != nil {
				return err
			}
			*d.into += n
			if n > 0 {
				metrics.AnalyticsRowsPurged.WithLabelValues(d.table).Add(float64(n))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("analytics cleanup: %w", err)
	}

	if err := l.db.Checkpoint(ctx); err != nil {
		l.log.Warn().Err(err).Msg("Checkpoint after analytics cleanup failed")
	} else {
		res.Checkpointed = true
	}

	l.log.Info().
		Int("retention_days", days).
		Int64("booking_events", res.BookingEvents).
		Int64("recommendation_events", res.RecommendationEvents).
		Int64("aggregate_rows", res.AggregateRows).
		Int64("user_patterns", res.UserPatterns).
		Msg("Analytics retention completed")
	return res, nil
}
