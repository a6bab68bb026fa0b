// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package cache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tomtom215/roomwise/internal/database"
)

// GetStats summarizes current entries by tier and the last seven days of
// request counters.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	now := s.now()
	since := dayOf(now).AddDate(0, 0, -6)

	stats := &Stats{
		Tiers:           make(map[Tier]TierStats),
		OverflowBackend: s.overflow.Name(),
		BreakerOpen:     breakerOpen(s.overflow),
	}

	err := s.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
		rs, err := q.QueryContext(ctx, `
			SELECT storage_tier,
			       COUNT(*) FILTER (WHERE expires_at > ?),
			       COUNT(*) FILTER (WHERE expires_at <= ?),
			       CAST(COALESCE(SUM(size_bytes), 0) AS BIGINT)
			FROM cache_entries
			GROUP BY storage_tier`, now, now)
		if err != nil {
			return err
		}
		defer rs.Close()
		for rs.Next() {
			var (
				tier            string
				active, expired int64
				bytes           int64
			)
			if err := rs.Scan(&tier, &active, &expired, &bytes); err != nil {
				return err
			}
			stats.ActiveEntries += active
			stats.ExpiredEntries += expired
			stats.TotalBytes += bytes
			stats.Tiers[Tier(tier)] = TierStats{Entries: active + expired, Bytes: bytes}
		}
		if err := rs.Err(); err != nil {
			return err
		}

		var requests, hits, misses, evictions sql.NullInt64
		if err := q.QueryRowContext(ctx, `
			SELECT CAST(SUM(total_requests) AS BIGINT), CAST(SUM(hits) AS BIGINT),
			       CAST(SUM(misses) AS BIGINT), CAST(SUM(evictions) AS BIGINT)
			FROM cache_stats WHERE day >= ?`, since,
		).Scan(&requests, &hits, &misses, &evictions); err != nil {
			return err
		}
		stats.Requests7d = requests.Int64
		stats.Hits7d = hits.Int64
		stats.Misses7d = misses.Int64
		stats.Evictions7d = evictions.Int64
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read cache stats: %w", err)
	}

	if stats.Requests7d > 0 {
		stats.HitRate7d = float64(stats.Hits7d) / float64(stats.Requests7d)
	}
	if size, err := s.overflow.Size(); err == nil {
		stats.OverflowBytes = size
	}
	return stats, nil
}

// DailyStats returns the per-day counters for the last days days, newest first.
func (s *Store) DailyStats(ctx context.Context, days int) ([]DailyStats, error) {
	if days <= 0 {
		days = 7
	}
	since := dayOf(s.now()).AddDate(0, 0, -(days - 1))

	var out []DailyStats
	err := s.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
		rs, err := q.QueryContext(ctx, `
			SELECT day, total_requests, hits, misses, evictions, storage_bytes
			FROM cache_stats WHERE day >= ? ORDER BY day DESC`, since)
		if err != nil {
			return err
		}
		defer rs.Close()
		for rs.Next() {
			var d DailyStats
			if err := rs.Scan(&d.Day, &d.TotalRequests, &d.Hits, &d.Misses, &d.Evictions, &d.StorageBytes); err != nil {
				return err
			}
			out = append(out, d)
		}
		return rs.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read daily cache stats: %w", err)
	}
	return out, nil
}
