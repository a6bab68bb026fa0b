// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package cache

// payload_ref names the overflow object of the current write; inline rows
// leave it NULL. Only primary keys are indexed. DuckDB rejects ON CONFLICT updates of
// indexed columns, and zone maps already prune expires_at scans.
const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key         VARCHAR PRIMARY KEY,
	tenant_id         VARCHAR,
	request_kind      VARCHAR NOT NULL,
	created_at        TIMESTAMP NOT NULL,
	expires_at        TIMESTAMP NOT NULL,
	hit_count         BIGINT NOT NULL DEFAULT 0,
	size_bytes        BIGINT NOT NULL,
	compression_ratio DOUBLE NOT NULL,
	storage_tier      VARCHAR NOT NULL,
	last_accessed     TIMESTAMP,
	payload           BLOB,
	payload_ref       VARCHAR
);

CREATE TABLE IF NOT EXISTS cache_stats (
	day            DATE PRIMARY KEY,
	total_requests BIGINT NOT NULL DEFAULT 0,
	hits           BIGINT NOT NULL DEFAULT 0,
	misses         BIGINT NOT NULL DEFAULT 0,
	evictions      BIGINT NOT NULL DEFAULT 0,
	storage_bytes  BIGINT NOT NULL DEFAULT 0
);
`

// Tables lists the tables a restored cache store must contain.
var Tables = []string{"cache_entries", "cache_stats"}
