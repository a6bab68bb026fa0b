// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

// Package cache is the tiered recommendation cache.
//
// Each entry is one row in the DuckDB cache_entries table. Payloads at or
// below the inline threshold live in that row; larger payloads go to an
// OverflowTier and the row records which tier holds them. Reads never fail
// loudly: a missing row, an expired row, a missing payload or a payload that
// will not decode are all reported as a miss and counted in the daily stats.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/roomwise/internal/codec"
	"github.com/tomtom215/roomwise/internal/database"
	"github.com/tomtom215/roomwise/internal/logging"
	"github.com/tomtom215/roomwise/internal/metrics"
	"github.com/tomtom215/roomwise/internal/validation"
)

// Options configures a Store.
type Options struct {
	// InlineThreshold is the largest compressed payload, in bytes, kept inline.
	InlineThreshold int

	// DefaultTTL applies to kinds without an entry in TTLByKind.
	DefaultTTL time.Duration
	TTLByKind  map[string]time.Duration

	// FragmentationThreshold triggers a CHECKPOINT during Reclaim when the
	// share of free blocks exceeds it.
	FragmentationThreshold float64
}

// Store is the tiered cache. It is safe for concurrent use.
type Store struct {
	db       *database.DB
	overflow OverflowTier
	opts     Options
	kinds    map[Kind]bool
	now      func() time.Time
	log      zerolog.Logger
}

// New creates the cache schema if needed and returns a Store. The Store
// takes ownership of overflow and closes it in Close; db is owned by the caller.
func New(ctx context.Context, db *database.DB, overflow OverflowTier, opts Options) (*Store, error) {
	if opts.InlineThreshold <= 0 {
		return nil, fmt.Errorf("inline threshold must be positive, got %d", opts.InlineThreshold)
	}
	if err := db.ExecSchema(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	kinds := make(map[Kind]bool, len(KnownKinds)+len(opts.TTLByKind))
	for _, k := range KnownKinds {
		kinds[k] = true
	}
	for k := range opts.TTLByKind {
		kinds[Kind(k)] = true
	}

	return &Store{
		db:       db,
		overflow: overflow,
		opts:     opts,
		kinds:    kinds,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logging.WithComponent("cache"),
	}, nil
}

// DB returns the metadata store.
func (s *Store) DB() *database.DB {
	return s.db
}

// OverflowName returns the overflow backend name.
func (s *Store) OverflowName() string {
	return s.overflow.Name()
}

// Close closes the overflow tier.
func (s *Store) Close() error {
	return s.overflow.Close()
}

func (s *Store) validateKind(kind Kind) error {
	if kind == "" {
		return validation.Newf("Kind", "is required")
	}
	if !s.kinds[kind] {
		return validation.Newf("Kind", "%q is not a known request kind", kind)
	}
	return nil
}

func (s *Store) ttlFor(kind Kind) time.Duration {
	if ttl, ok := s.opts.TTLByKind[string(kind)]; ok {
		return ttl
	}
	return s.opts.DefaultTTL
}

// Put compresses and stores req.Value and returns its key. Validation
// failures wrap validation.ErrValidation; storage failures are logged and
// returned so the caller can ignore them.
func (s *Store) Put(ctx context.Context, req PutRequest) (string, error) {
	if err := validation.Struct(&req); err != nil {
		return "", err
	}
	if err := s.validateKind(req.Kind); err != nil {
		return "", err
	}
	ttl := s.ttlFor(req.Kind)
	if req.TTL != nil {
		ttl = *req.TTL
	}
	if ttl < 0 {
		return "", validation.Newf("TTL", "must not be negative, got %v", ttl)
	}

	key, err := Key(req.Tenant, req.Kind, req.Params)
	if err != nil {
		return "", err
	}

	start := time.Now()
	defer metrics.RecordDBOperation("cache", "put", start)

	payload, ratio, err := codec.Compress(req.Value)
	if err != nil {
		return "", validation.Newf("Value", "cannot be encoded: %v", err)
	}

	tier := TierInline
	if len(payload) > s.opts.InlineThreshold {
		tier = TierOverflow
	}

	if err := s.write(ctx, key, req, tier, payload, ratio, ttl); err != nil {
		metrics.CachePutErrors.WithLabelValues(string(req.Kind)).Inc()
		logging.Ctx(ctx).Error().Err(err).Str("cache_key", key).Str("kind", string(req.Kind)).
			Msg("Cache write failed")
		return "", err
	}

	metrics.RecordCachePut(string(req.Kind), string(tier), len(payload), ratio)
	s.log.Debug().Str("cache_key", key).Str("tier", string(tier)).Int("size", len(payload)).
		Float64("ratio", ratio).Msg("Cache entry stored")
	return key, nil
}

func (s *Store) write(ctx context.Context, key string, req PutRequest, tier Tier, payload []byte, ratio float64, ttl time.Duration) error {
	// Overflow payload goes first: a row must never point at bytes that were
	// not written.
	var ref sql.NullString
	if tier == TierOverflow {
		ref = sql.NullString{String: newPayloadRef(key), Valid: true}
		if err := s.overflow.Put(ctx, ref.String, payload, ttl); err != nil {
			return fmt.Errorf("failed to write overflow payload: %w", err)
		}
	}

	var inline interface{}
	if tier == TierInline {
		inline = payload
	}
	created := s.now()
	expires := created.Add(ttl)

	var previous sql.NullString
	err := s.db.Tx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"SELECT payload_ref FROM cache_entries WHERE cache_key = ?", key).Scan(&previous)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read existing entry: %w", err)
		}

		// hit_count is carried over on rewrite so it never decreases.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cache_entries (
				cache_key, tenant_id, request_kind, created_at, expires_at,
				hit_count, size_bytes, compression_ratio, storage_tier, last_accessed, payload, payload_ref
			) VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, NULL, ?, ?)
			ON CONFLICT (cache_key) DO UPDATE SET
				tenant_id = excluded.tenant_id,
				request_kind = excluded.request_kind,
				created_at = excluded.created_at,
				expires_at = excluded.expires_at,
				size_bytes = excluded.size_bytes,
				compression_ratio = excluded.compression_ratio,
				storage_tier = excluded.storage_tier,
				payload = excluded.payload,
				payload_ref = excluded.payload_ref`,
			key, nullString(req.Tenant), string(req.Kind), created, expires,
			int64(len(payload)), ratio, string(tier), inline, ref,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert cache entry: %w", err)
		}
		return nil
	})
	if err != nil {
		if ref.Valid {
			s.deletePayload(ctx, ref.String)
		}
		return err
	}

	// The replaced write's bytes are unreachable once the row moved on.
	if previous.Valid && previous.String != ref.String {
		s.deletePayload(ctx, previous.String)
	}
	return nil
}

// Get returns the cached value for (tenant, kind, params). found is false on
// a miss, including every storage or decoding failure. err is non-nil only
// for invalid input.
func (s *Store) Get(ctx context.Context, tenant string, kind Kind, params interface{}) (value interface{}, found bool, err error) {
	if tenant != "" {
		if err := validation.Struct(&struct {
			Tenant string `validate:"identifier"`
		}{tenant}); err != nil {
			return nil, false, err
		}
	}
	if err := s.validateKind(kind); err != nil {
		return nil, false, err
	}
	key, err := Key(tenant, kind, params)
	if err != nil {
		return nil, false, err
	}

	start := time.Now()
	defer metrics.RecordDBOperation("cache", "get", start)

	value, found = s.load(ctx, key)
	s.recordLookup(ctx, key, kind, found)
	return value, found, nil
}

// GetAs is Get with the value asserted to T. A stored value of another
// type is reported as a miss.
func GetAs[T any](ctx context.Context, s *Store, tenant string, kind Kind, params interface{}) (T, bool, error) {
	var zero T
	v, found, err := s.Get(ctx, tenant, kind, params)
	if err != nil || !found {
		return zero, false, err
	}
	typed, ok := v.(T)
	if !ok {
		s.log.Warn().Str("kind", string(kind)).Str("stored", fmt.Sprintf("%T", v)).
			Str("wanted", fmt.Sprintf("%T", zero)).Msg("Cached value has unexpected type")
		return zero, false, nil
	}
	return typed, true, nil
}

func (s *Store) load(ctx context.Context, key string) (interface{}, bool) {
	now := s.now()

	var (
		created time.Time
		expires time.Time
		tier    string
		payload []byte
		ref     sql.NullString
		exists  bool
	)
	err := s.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
		err := q.QueryRowContext(ctx,
			"SELECT created_at, expires_at, storage_tier, payload, payload_ref FROM cache_entries WHERE cache_key = ?", key,
		).Scan(&created, &expires, &tier, &payload, &ref)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		exists = err == nil
		return err
	})
	if err != nil {
		s.degraded(ctx, key, "storage_error", err)
		return nil, false
	}
	if !exists || !now.Before(expires) {
		return nil, false
	}

	if Tier(tier) == TierOverflow {
		if !ref.Valid {
			s.degraded(ctx, key, "missing_payload", errors.New("overflow entry has no payload ref"))
			s.dropEntry(ctx, key, created, ref)
			return nil, false
		}
		payload, err = s.overflow.Get(ctx, ref.String)
		if errors.Is(err, ErrPayloadNotFound) {
			s.degraded(ctx, key, "missing_payload", err)
			s.dropEntry(ctx, key, created, ref)
			return nil, false
		}
		if err != nil {
			s.degraded(ctx, key, "overflow_error", err)
			return nil, false
		}
	} else if payload == nil {
		s.degraded(ctx, key, "missing_payload", errors.New("inline payload is NULL"))
		s.dropEntry(ctx, key, created, ref)
		return nil, false
	}

	value, err := codec.Decompress(payload)
	if err != nil {
		s.degraded(ctx, key, "corrupt_payload", err)
		s.dropEntry(ctx, key, created, ref)
		return nil, false
	}
	return value, true
}

// dropEntry deletes a row whose payload is gone or unreadable. The row is
// matched on the write that was read, so a concurrent rewrite survives.
// Overflow failures other than not-found never drop rows: the backend may
// only be unavailable.
func (s *Store) dropEntry(ctx context.Context, key string, created time.Time, ref sql.NullString) {
	var removed int64
	err := s.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
		res, err := q.ExecContext(ctx,
			"DELETE FROM cache_entries WHERE cache_key = ? AND created_at = ? AND payload_ref IS NOT DISTINCT FROM ?",
			key, created, ref)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("cache_key", key).Msg("Failed to drop unreadable cache entry")
		return
	}
	if removed > 0 && ref.Valid {
		s.deletePayload(ctx, ref.String)
	}
}

func (s *Store) degraded(ctx context.Context, key, reason string, err error) {
	metrics.CacheDegradedReads.WithLabelValues(reason).Inc()
	logging.Ctx(ctx).Warn().Err(err).Str("cache_key", key).Str("reason", reason).
		Msg("Cache read degraded to miss")
}

// recordLookup bumps the entry's hit counter on a hit and the day's request
// counters on every lookup. Both happen in one transaction.
func (s *Store) recordLookup(ctx context.Context, key string, kind Kind, hit bool) {
	metrics.RecordCacheLookup(string(kind), hit)

	now := s.now()
	var hits, misses int64 = 0, 1
	if hit {
		hits, misses = 1, 0
	}

	err := s.db.Tx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if hit {
			if _, err := tx.ExecContext(ctx,
				"UPDATE cache_entries SET hit_count = hit_count + 1, last_accessed = ? WHERE cache_key = ?",
				now, key); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cache_stats (day, total_requests, hits, misses)
			VALUES (?, 1, ?, ?)
			ON CONFLICT (day) DO UPDATE SET
				total_requests = cache_stats.total_requests + 1,
				hits = cache_stats.hits + excluded.hits,
				misses = cache_stats.misses + excluded.misses`,
			dayOf(now), hits, misses)
		return err
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("cache_key", key).Msg("Failed to record cache lookup")
	}
}

// Lookup returns the metadata row for key without touching counters.
func (s *Store) Lookup(ctx context.Context, key string) (*Entry, bool, error) {
	var (
		e        Entry
		tenant   sql.NullString
		kind     string
		tier     string
		accessed sql.NullTime
		ref      sql.NullString
		found    bool
	)
	err := s.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
		err := q.QueryRowContext(ctx, `
			SELECT cache_key, tenant_id, request_kind, created_at, expires_at,
			       hit_count, size_bytes, compression_ratio, storage_tier, last_accessed, payload_ref
			FROM cache_entries WHERE cache_key = ?`, key,
		).Scan(&e.Key, &tenant, &kind, &e.CreatedAt, &e.ExpiresAt,
			&e.HitCount, &e.SizeBytes, &e.CompressionRatio, &tier, &accessed, &ref)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up cache entry: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	e.Tenant = tenant.String
	e.Kind = Kind(kind)
	e.Tier = Tier(tier)
	if accessed.Valid {
		e.LastAccessed = accessed.Time
	}
	e.PayloadRef = ref.String
	return &e, true, nil
}

func (s *Store) deletePayload(ctx context.Context, ref string) {
	if err := s.overflow.Delete(ctx, ref); err != nil && !errors.Is(err, ErrPayloadNotFound) {
		logging.Ctx(ctx).Warn().Err(err).Str("payload_ref", ref).Msg("Failed to delete overflow payload")
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
