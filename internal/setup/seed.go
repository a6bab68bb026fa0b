// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/roomwise/internal/analytics"
	"github.com/tomtom215/roomwise/internal/artifact"
	"github.com/tomtom215/roomwise/internal/cache"
	"github.com/tomtom215/roomwise/internal/storage"
)

// SeedTenant owns every sample cache entry.
const SeedTenant = "demo"

// SeedModelType is the model type written by seed.
const SeedModelType = "room_similarity"

var seedRooms = []struct {
	id     string
	vector []float32
}{
	{"LT1", []float32{0.9, 0.1, 0.3, 0.0}},
	{"LT2", []float32{0.8, 0.2, 0.4, 0.1}},
	{"BOARD", []float32{0.1, 0.9, 0.0, 0.7}},
}

// seed writes a small, fixed sample. Events use fixed ids, so seeding twice
// replaces them rather than doubling the aggregates.
func seed(ctx context.Context, l *storage.Layer) (*SeedReport, error) {
	r := &SeedReport{}

	for _, room := range seedRooms {
		if _, err := l.Artifacts.SaveEmbedding(ctx, artifact.EmbeddingRequest{
			Category: artifact.CategoryRoom,
			EntityID: room.id,
			Vector:   room.vector,
			Version:  "seed",
		}); err != nil {
			return nil, fmt.Errorf("seed embedding %s: %w", room.id, err)
		}
		r.Embeddings++
	}

	if _, found, err := l.Artifacts.LoadLatestModel(ctx, SeedModelType); err != nil {
		return nil, err
	} else if !found {
		if _, err := l.Artifacts.SaveModel(ctx, artifact.ModelRequest{
			Type:            SeedModelType,
			Version:         "seed",
			Model:           map[string]float64{"LT1:LT2": 0.97, "LT1:BOARD": 0.31},
			Hyperparameters: map[string]interface{}{"metric": "cosine"},
		}); err != nil {
			return nil, fmt.Errorf("seed model: %w", err)
		}
		r.Models++
	}

	if _, err := l.Cache.Put(ctx, cache.PutRequest{
		Tenant: SeedTenant,
		Kind:   "similar_rooms",
		Params: map[string]interface{}{"room": "LT1", "limit": 2},
		Value:  []string{"LT2", "BOARD"},
	}); err != nil {
		return nil, fmt.Errorf("seed cache entry: %w", err)
	}
	r.CacheEntries++

	start := time.Now().UTC().Truncate(time.Hour).Add(24 * time.Hour)
	if err := l.Analytics.LogBookingEvent(ctx, analytics.BookingEvent{
		EventID:   "seed-booking-1",
		UserID:    "demo-user",
		RoomID:    "LT1",
		Type:      analytics.BookingCreated,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	}); err != nil {
		return nil, fmt.Errorf("seed booking event: %w", err)
	}
	r.Events++

	if err := l.Analytics.LogRecommendationEvent(ctx, analytics.RecommendationEvent{
		EventID:            "seed-recommendation-1",
		UserID:             "demo-user",
		RecommendationType: SeedModelType,
		Items:              []string{"LT2", "BOARD"},
		Accepted:           true,
		AcceptedItem:       "LT2",
		ResponseTimeMS:     12,
	}); err != nil {
		return nil, fmt.Errorf("seed recommendation event: %w", err)
	}
	r.Events++

	return r, nil
}
