// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/roomwise/internal/database"
	"github.com/tomtom215/roomwise/internal/logging"
	"github.com/tomtom215/roomwise/internal/metrics"
	"github.com/tomtom215/roomwise/internal/validation"
)

const evictBatchSize = 500

// deletedRow is a cache row removed by a DELETE ... RETURNING.
type deletedRow struct {
	key string
	ref sql.NullString
}

// EvictExpired deletes every entry whose expiry is at or before now,
// together with its overflow payload, and adds the count to today's
// eviction counter. A payload that cannot be deleted is counted in
// PayloadErrors but does not keep its row alive.
//
// Rows are deleted first, one batch per lock hold, and only the payloads
// named by the rows actually deleted are removed afterwards. A Put racing
// the sweep writes its bytes under a fresh ref, so it can never lose them.
func (s *Store) EvictExpired(ctx context.Context) (EvictionResult, error) {
	start := time.Now()
	defer metrics.RecordDBOperation("cache", "evict", start)

	now := s.now()
	var result EvictionResult
	for {
		rows, err := s.deleteExpiredBatch(ctx, now)
		for _, row := range rows {
			result.Deleted = append(result.Deleted, row.key)
			if row.ref.Valid {
				if err := s.overflow.Delete(ctx, row.ref.String); err != nil && !errors.Is(err, ErrPayloadNotFound) {
					result.PayloadErrors++
					logging.Ctx(ctx).Warn().Err(err).Str("cache_key", row.key).Msg("Failed to delete expired overflow payload")
				}
			}
		}
		if err != nil {
			s.addEvictions(ctx, now, len(result.Deleted))
			return result, fmt.Errorf("failed to delete expired entries: %w", err)
		}
		if len(rows) < evictBatchSize {
			break
		}
	}

	if len(result.Deleted) == 0 {
		return result, nil
	}
	s.addEvictions(ctx, now, len(result.Deleted))
	logging.Ctx(ctx).Info().Int("evicted", len(result.Deleted)).Int("payload_errors", result.PayloadErrors).
		Msg("Expired cache entries evicted")
	return result, nil
}

// deleteExpiredBatch removes up to evictBatchSize expired rows in one statement.
func (s *Store) deleteExpiredBatch(ctx context.Context, now time.Time) ([]deletedRow, error) {
	return s.deleteReturning(ctx, fmt.Sprintf(`
		DELETE FROM cache_entries
		WHERE cache_key IN (SELECT cache_key FROM cache_entries WHERE expires_at <= ? LIMIT %d)
		  AND expires_at <= ?
		RETURNING cache_key, payload_ref`, evictBatchSize),
		now, now)
}

func (s *Store) deleteReturning(ctx context.Context, query string, args ...interface{}) ([]deletedRow, error) {
	var out []deletedRow
	err := s.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
		rs, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rs.Close()
		for rs.Next() {
			var row deletedRow
			if err := rs.Scan(&row.key, &row.ref); err != nil {
				return err
			}
			out = append(out, row)
		}
		return rs.Err()
	})
	return out, err
}

func (s *Store) addEvictions(ctx context.Context, now time.Time, n int) {
	if n == 0 {
		return
	}
	err := s.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO cache_stats (day, evictions) VALUES (?, ?)
			ON CONFLICT (day) DO UPDATE SET evictions = cache_stats.evictions + excluded.evictions`,
			dayOf(now), int64(n))
		return err
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int("evicted", n).Msg("Failed to record evictions")
	}
}

// InvalidateTenant removes every entry owned by tenant and returns how many
// rows were deleted. Shared entries (no tenant) are not touched.
func (s *Store) InvalidateTenant(ctx context.Context, tenant string) (int, error) {
	if err := validation.Struct(&struct {
		Tenant string `validate:"identifier"`
	}{tenant}); err != nil {
		return 0, err
	}

	rows, err := s.deleteReturning(ctx,
		"DELETE FROM cache_entries WHERE tenant_id = ? RETURNING cache_key, payload_ref", tenant)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate tenant %s: %w", tenant, err)
	}
	for _, row := range rows {
		if row.ref.Valid {
			s.deletePayload(ctx, row.ref.String)
		}
	}

	removed := len(rows)
	metrics.CacheInvalidations.Add(float64(removed))
	logging.Ctx(ctx).Info().Str("tenant", tenant).Int("removed", removed).Msg("Tenant cache invalidated")
	return removed, nil
}

// Reclaim checkpoints the metadata store when its free-block share exceeds
// the fragmentation threshold, compacts the overflow tier, and records the
// resulting footprint in today's stats row.
func (s *Store) Reclaim(ctx context.Context) (ReclaimResult, error) {
	var result ReclaimResult

	info, err := s.db.Size(ctx)
	if err != nil {
		return result, err
	}
	result.Fragmentation = info.Fragmentation()
	metrics.StoreFragmentation.WithLabelValues("cache").Set(result.Fragmentation)

	if result.Fragmentation > s.opts.FragmentationThreshold {
		if err := s.db.Checkpoint(ctx); err != nil {
			return result, err
		}
		result.Checkpointed = true
		metrics.SpaceReclaims.WithLabelValues("cache").Inc()
		logging.Ctx(ctx).Info().Float64("fragmentation", result.Fragmentation).Msg("Cache store checkpointed")
	}

	if err := s.overflow.Reclaim(ctx); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("backend", s.overflow.Name()).Msg("Overflow reclaim failed")
	} else {
		result.OverflowGC = true
		metrics.SpaceReclaims.WithLabelValues("overflow").Inc()
	}

	var payloadBytes sql.NullInt64
	err = s.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
		if err := q.QueryRowContext(ctx,
			"SELECT CAST(SUM(size_bytes) AS BIGINT) FROM cache_entries").Scan(&payloadBytes); err != nil {
			return err
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO cache_stats (day, storage_bytes) VALUES (?, ?)
			ON CONFLICT (day) DO UPDATE SET storage_bytes = excluded.storage_bytes`,
			dayOf(s.now()), payloadBytes.Int64)
		return err
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to record cache storage size")
	}
	return result, nil
}
