// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package cache

import (
	"time"
)

// Kind names the kind of recommendation request a cached value answers.
type Kind string

const (
	KindSimilarRooms        Kind = "similar_rooms"
	KindAlternativeTimes    Kind = "alternative_times"
	KindUserRecommendations Kind = "user_recommendations"
	KindRoomAvailability    Kind = "room_availability"
)

// KnownKinds lists the built-in kinds. Kinds configured with a TTL are
// accepted as well.
var KnownKinds = []Kind{
	KindSimilarRooms,
	KindAlternativeTimes,
	KindUserRecommendations,
	KindRoomAvailability,
}

// Tier is where a payload is stored.
type Tier string

const (
	TierInline   Tier = "inline"
	TierOverflow Tier = "overflow"
)

// PutRequest describes one cache write.
type PutRequest struct {
	// Tenant owns the entry. Empty means shared across tenants.
	Tenant string `validate:"omitempty,identifier"`

	Kind Kind `validate:"required"`

	// Params identify the request. Maps are serialized with sorted keys,
	// so parameter order never changes the key.
	Params interface{}

	// Value is the result to cache. It must be encodable by the codec.
	Value interface{}

	// TTL overrides the per-kind default when non-nil. Zero is allowed and
	// produces an already expired entry.
	TTL *time.Duration
}

// Entry is the metadata row for a cached value.
type Entry struct {
	Key              string
	Tenant           string
	Kind             Kind
	CreatedAt        time.Time
	ExpiresAt        time.Time
	HitCount         int64
	SizeBytes        int64
	CompressionRatio float64
	Tier             Tier
	LastAccessed     time.Time

	// PayloadRef is the overflow object name, empty for inline entries.
	PayloadRef string
}

// TierStats counts entries and bytes held by one tier.
type TierStats struct {
	Entries int64 `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// Stats is the result of GetStats.
type Stats struct {
	ActiveEntries  int64              `json:"active_entries"`
	ExpiredEntries int64              `json:"expired_entries"`
	TotalBytes     int64              `json:"total_bytes"`
	Tiers          map[Tier]TierStats `json:"tiers"`

	// Rolling 7-day window from the daily counters, today included.
	Requests7d  int64   `json:"requests_7d"`
	Hits7d      int64   `json:"hits_7d"`
	Misses7d    int64   `json:"misses_7d"`
	Evictions7d int64   `json:"evictions_7d"`
	HitRate7d   float64 `json:"hit_rate_7d"`

	OverflowBackend string `json:"overflow_backend"`
	OverflowBytes   int64  `json:"overflow_bytes"`
	BreakerOpen     bool   `json:"breaker_open"`
}

// DailyStats is one row of the per-day counters.
type DailyStats struct {
	Day           time.Time `json:"day"`
	TotalRequests int64     `json:"total_requests"`
	Hits          int64     `json:"hits"`
	Misses        int64     `json:"misses"`
	Evictions     int64     `json:"evictions"`
	StorageBytes  int64     `json:"storage_bytes"`
}

// EvictionResult reports one expiry sweep.
type EvictionResult struct {
	Deleted       []string
	PayloadErrors int
}

// ReclaimResult reports one space reclamation pass.
type ReclaimResult struct {
	Fragmentation float64
	Checkpointed  bool
	OverflowGC    bool
}
