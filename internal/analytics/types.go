// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package analytics

import (
	"errors"
	"time"
)

// ErrInvalidEvent wraps every rejected event. Such errors also match
// validation.ErrValidation.
var ErrInvalidEvent = errors.New("invalid analytics event")

// BookingEventType is the booking lifecycle step an event records.
type BookingEventType string

const (
	BookingCreated   BookingEventType = "created"
	BookingCancelled BookingEventType = "cancelled"
	BookingModified  BookingEventType = "modified"
)

// BookingEvent records one booking lifecycle step. All times are UTC.
type BookingEvent struct {
	EventID   string           `json:"event_id" validate:"identifier"`
	UserID    string           `json:"user_id" validate:"identifier"`
	RoomID    string           `json:"room_id" validate:"identifier"`
	Type      BookingEventType `json:"event_type" validate:"required,oneof=created cancelled modified"`
	StartTime time.Time        `json:"start_time" validate:"required"`
	EndTime   time.Time        `json:"end_time" validate:"required,gtfield=StartTime"`

	// DurationMinutes defaults to EndTime - StartTime.
	DurationMinutes int `json:"duration_minutes" validate:"gte=0"`

	Metadata map[string]interface{} `json:"metadata,omitempty" validate:"-"`

	// OccurredAt defaults to the time the event is logged.
	OccurredAt time.Time `json:"occurred_at"`
}

// RecommendationEvent records one set of suggestions served to a user.
type RecommendationEvent struct {
	EventID            string   `json:"event_id" validate:"identifier"`
	UserID             string   `json:"user_id" validate:"identifier"`
	RecommendationType string   `json:"recommendation_type" validate:"identifier"`
	Items              []string `json:"items" validate:"dive,required"`
	Accepted           bool     `json:"accepted"`
	AcceptedItem       string   `json:"accepted_item,omitempty"`
	ResponseTimeMS     float64  `json:"response_time_ms" validate:"gte=0"`

	OccurredAt time.Time `json:"occurred_at"`
}

// UserPattern is the stored result of AnalyzeUserBehavior.
type UserPattern struct {
	UserID string `json:"user_id"`

	// PreferredPartOfDay is the most frequent bucket, or "" with no bookings.
	PreferredPartOfDay string           `json:"preferred_part_of_day"`
	PartOfDayCounts    map[string]int64 `json:"part_of_day_counts"`

	// PreferredRooms is ordered by booking count, most booked first.
	PreferredRooms []RoomCount `json:"preferred_rooms"`

	AvgLeadTimeHours     float64 `json:"avg_lead_time_hours"`
	CancellationRate     float64 `json:"cancellation_rate"`
	ModificationRate     float64 `json:"modification_rate"`
	RecommendationAccept float64 `json:"recommendation_acceptance_rate"`
	TotalBookings        int64   `json:"total_bookings"`

	// PatternConfidence grows linearly with bookings and is 1.0 from 10 on.
	PatternConfidence float64   `json:"pattern_confidence"`
	AnalyzedAt        time.Time `json:"analyzed_at"`
}

// RoomCount is one entry of a room preference ranking.
type RoomCount struct {
	RoomID   string `json:"room_id"`
	Bookings int64  `json:"bookings"`
}

// RoomUtilization summarizes one room over a report range.
type RoomUtilization struct {
	RoomID           string    `json:"room_id"`
	Bookings         int64     `json:"bookings"`
	BookedMinutes    int64     `json:"booked_minutes"`
	DaysWithBookings int64     `json:"days_with_bookings"`
	PeakHour         int       `json:"peak_hour"`
	Hourly           [24]int64 `json:"hourly"`
}

// RoomUtilizationReport is the result of Log.RoomUtilizationReport.
type RoomUtilizationReport struct {
	From  time.Time         `json:"from"`
	To    time.Time         `json:"to"`
	Rooms []RoomUtilization `json:"rooms"`
}

// RecommendationPerformance summarizes one recommendation type.
type RecommendationPerformance struct {
	RecommendationType string  `json:"recommendation_type"`
	Requests           int64   `json:"requests"`
	Acceptances        int64   `json:"acceptances"`
	AcceptanceRate     float64 `json:"acceptance_rate"`
	AvgResponseTimeMS  float64 `json:"avg_response_time_ms"`
}

// RecommendationPerformanceReport is the result of
// Log.RecommendationPerformanceReport.
type RecommendationPerformanceReport struct {
	From    time.Time                   `json:"from"`
	To      time.Time                   `json:"to"`
	Types   []RecommendationPerformance `json:"types"`
	Overall RecommendationPerformance   `json:"overall"`
}

// DailySummary is one row of daily_aggregates.
type DailySummary struct {
	Day                     time.Time `json:"day"`
	TotalBookings           int64     `json:"total_bookings"`
	Cancellations           int64     `json:"cancellations"`
	Modifications           int64     `json:"modifications"`
	TotalDurationMinutes    int64     `json:"total_duration_minutes"`
	RecommendationsServed   int64     `json:"recommendations_served"`
	RecommendationsAccepted int64     `json:"recommendations_accepted"`
}

// CleanupResult reports what CleanupOldData removed.
type CleanupResult struct {
	BookingEvents        int64 `json:"booking_events"`
	RecommendationEvents int64 `json:"recommendation_events"`
	AggregateRows        int64 `json:"aggregate_rows"`
	UserPatterns         int64 `json:"user_patterns"`
	Checkpointed         bool  `json:"checkpointed"`
}
