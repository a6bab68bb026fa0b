// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

// Package analytics records booking and recommendation events and keeps
// daily, hourly and per-type aggregates up to date incrementally.
//
// Logging an event upserts it by event id. If a row with that id already
// exists, its contribution to every aggregate is retracted before the new
// contribution is applied, all in one transaction, so each committed event
// is counted exactly once however often it is resubmitted.
//
// Aggregate keys:
//   - daily_aggregates: booking date for booking events, serve date for
//     recommendation events
//   - hourly_room_utilization: room, booking date, hour of start time;
//     only "created" events are counted
//   - recommendation_performance: recommendation type, serve date
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/roomwise/internal/database"
	"github.com/tomtom215/roomwise/internal/logging"
	"github.com/tomtom215/roomwise/internal/metrics"
	"github.com/tomtom215/roomwise/internal/validation"
)

// ErrEventNotFound is returned by MarkRecommendationAccepted for an unknown event id.
var ErrEventNotFound = errors.New("analytics event not found")

// Log is the analytics event log. It is safe for concurrent use.
type Log struct {
	db  *database.DB
	now func() time.Time
	log zerolog.Logger
}

// New creates the analytics schema if needed.
func New(ctx context.Context, db *database.DB) (*Log, error) {
	if err := db.ExecSchema(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create analytics schema: %w", err)
	}
	return &Log{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
		log: logging.WithComponent("analytics"),
	}, nil
}

// DB returns the analytics store.
func (l *Log) DB() *database.DB {
	return l.db
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// bookingContribution is what one booking event adds to the aggregates.
type bookingContribution struct {
	roomID    string
	day       time.Time
	hour      int
	eventType BookingEventType
	minutes   int64
}

func (c bookingContribution) counts() (created, cancelled, modified, minutes int64) {
	switch c.eventType {
	case BookingCreated:
		return 1, 0, 0, c.minutes
	case BookingCancelled:
		return 0, 1, 0, 0
	case BookingModified:
		return 0, 0, 1, 0
	}
	return 0, 0, 0, 0
}

// LogBookingEvent upserts a booking event and updates the daily and hourly
// aggregates it affects.
func (l *Log) LogBookingEvent(ctx context.Context, e BookingEvent) error {
	start := time.Now()
	defer metrics.RecordDBOperation("analytics", "log_booking", start)

	err := l.logBookingEvent(ctx, e)
	metrics.RecordAnalyticsEvent("booking_"+string(e.Type), err)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("event_id", e.EventID).Str("event_type", string(e.Type)).
			Msg("Failed to log booking event")
	}
	return err
}

func (l *Log) logBookingEvent(ctx context.Context, e BookingEvent) error {
	if err := validation.Struct(&e); err != nil {
		return invalid(err)
	}
	e.StartTime = e.StartTime.UTC()
	e.EndTime = e.EndTime.UTC()
	if e.DurationMinutes == 0 {
		e.DurationMinutes = int(e.EndTime.Sub(e.StartTime).Minutes())
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = l.now()
	}
	var metadata interface{}
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return invalid(validation.Newf("Metadata", "must be JSON-serializable: %v", err))
		}
		metadata = string(b)
	}

	next := bookingContribution{
		roomID:    e.RoomID,
		day:       dayOf(e.StartTime),
		hour:      e.StartTime.Hour(),
		eventType: e.Type,
		minutes:   int64(e.DurationMinutes),
	}

	return l.db.Tx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var (
			prev      bookingContribution
			prevType  string
			prevStart time.Time
			prevMins  int64
		)
		err := tx.QueryRowContext(ctx,
			"SELECT room_id, event_type, start_time, duration_minutes FROM booking_events WHERE event_id = ?",
			e.EventID).Scan(&prev.roomID, &prevType, &prevStart, &prevMins)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read existing booking event: %w", err)
		default:
			prev.eventType = BookingEventType(prevType)
			prev.day = dayOf(prevStart)
			prev.hour = prevStart.UTC().Hour()
			prev.minutes = prevMins
			if err := retractBooking(ctx, tx, prev); err != nil {
				return fmt.Errorf("retract previous booking event: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO booking_events (event_id, user_id, room_id, event_type, booking_date,
			                            start_time, end_time, duration_minutes, metadata, occurred_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (event_id) DO UPDATE SET
				user_id = excluded.user_id,
				room_id = excluded.room_id,
				event_type = excluded.event_type,
				booking_date = excluded.booking_date,
				start_time = excluded.start_time,
				end_time = excluded.end_time,
				duration_minutes = excluded.duration_minutes,
				metadata = excluded.metadata,
				occurred_at = excluded.occurred_at`,
			e.EventID, e.UserID, e.RoomID, string(e.Type), next.day,
			e.StartTime, e.EndTime, e.DurationMinutes, metadata, e.OccurredAt.UTC()); err != nil {
			return fmt.Errorf("upsert booking event: %w", err)
		}

		if err := applyBooking(ctx, tx, next); err != nil {
			return fmt.Errorf("update booking aggregates: %w", err)
		}
		return nil
	})
}

func applyBooking(ctx context.Context, tx *sql.Tx, c bookingContribution) error {
	created, cancelled, modified, minutes := c.counts()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO daily_aggregates (day, total_bookings, cancellations, modifications, total_duration_minutes)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (day) DO UPDATE SET
			total_bookings = daily_aggregates.total_bookings + excluded.total_bookings,
			cancellations = daily_aggregates.cancellations + excluded.cancellations,
			modifications = daily_aggregates.modifications + excluded.modifications,
			total_duration_minutes = daily_aggregates.total_duration_minutes + excluded.total_duration_minutes`,
		c.day, created, cancelled, modified, minutes); err != nil {
		return err
	}
	if created == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO hourly_room_utilization (room_id, day, hour, booking_count, booked_minutes)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (room_id, day, hour) DO UPDATE SET
			booking_count = hourly_room_utilization.booking_count + 1,
			booked_minutes = hourly_room_utilization.booked_minutes + excluded.booked_minutes`,
		c.roomID, c.day, c.hour, minutes)
	return err
}

// retractBooking subtracts c. Rows already removed by retention are left alone.
func retractBooking(ctx context.Context, tx *sql.Tx, c bookingContribution) error {
	created, cancelled, modified, minutes := c.counts()
	if _, err := tx.ExecContext(ctx, `
		UPDATE daily_aggregates SET
			total_bookings = GREATEST(total_bookings - ?, 0),
			cancellations = GREATEST(cancellations - ?, 0),
			modifications = GREATEST(modifications - ?, 0),
			total_duration_minutes = GREATEST(total_duration_minutes - ?, 0)
		WHERE day = ?`,
		created, cancelled, modified, minutes, c.day); err != nil {
		return err
	}
	if created == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE hourly_room_utilization SET
			booking_count = GREATEST(booking_count - 1, 0),
			booked_minutes = GREATEST(booked_minutes - ?, 0)
		WHERE room_id = ? AND day = ? AND hour = ?`,
		minutes, c.roomID, c.day, c.hour)
	return err
}

// LogRecommendationEvent upserts a recommendation event and updates the
// daily totals and the per-type performance row for its day.
func (l *Log) LogRecommendationEvent(ctx context.Context, e RecommendationEvent) error {
	start := time.Now()
	defer metrics.RecordDBOperation("analytics", "log_recommendation", start)

	err := l.logRecommendationEvent(ctx, e)
	metrics.RecordAnalyticsEvent("recommendation", err)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("event_id", e.EventID).
			Str("recommendation_type", e.RecommendationType).Msg("Failed to log recommendation event")
	}
	return err
}

type recommendationContribution struct {
	recType  string
	day      time.Time
	accepted bool
	response float64
}

func (c recommendationContribution) acceptances() int64 {
	if c.accepted {
		return 1
	}
	return 0
}

func (l *Log) logRecommendationEvent(ctx context.Context, e RecommendationEvent) error {
	if err := validation.Struct(&e); err != nil {
		return invalid(err)
	}
	if e.Accepted && e.AcceptedItem != "" && len(e.Items) > 0 && !contains(e.Items, e.AcceptedItem) {
		return invalid(validation.Newf("AcceptedItem", "%q was not among the offered items", e.AcceptedItem))
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = l.now()
	}
	items, err := json.Marshal(e.Items)
	if err != nil {
		return invalid(validation.Newf("Items", "must be JSON-serializable: %v", err))
	}
	var acceptedItem interface{}
	if e.Accepted && e.AcceptedItem != "" {
		acceptedItem = e.AcceptedItem
	}

	next := recommendationContribution{
		recType:  e.RecommendationType,
		day:      dayOf(e.OccurredAt),
		accepted: e.Accepted,
		response: e.ResponseTimeMS,
	}

	return l.db.Tx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var (
			prev         recommendationContribution
			prevOccurred time.Time
		)
		err := tx.QueryRowContext(ctx,
			"SELECT recommendation_type, occurred_at, accepted, response_time_ms FROM recommendation_events WHERE event_id = ?",
			e.EventID).Scan(&prev.recType, &prevOccurred, &prev.accepted, &prev.response)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read existing recommendation event: %w", err)
		default:
			prev.day = dayOf(prevOccurred)
			if err := retractRecommendation(ctx, tx, prev); err != nil {
				return fmt.Errorf("retract previous recommendation event: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO recommendation_events (event_id, user_id, recommendation_type, items, accepted,
			                                   accepted_item, response_time_ms, occurred_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (event_id) DO UPDATE SET
				user_id = excluded.user_id,
				recommendation_type = excluded.recommendation_type,
				items = excluded.items,
				accepted = excluded.accepted,
				accepted_item = excluded.accepted_item,
				response_time_ms = excluded.response_time_ms,
				occurred_at = excluded.occurred_at`,
			e.EventID, e.UserID, e.RecommendationType, string(items), e.Accepted,
			acceptedItem, e.ResponseTimeMS, e.OccurredAt.UTC()); err != nil {
			return fmt.Errorf("upsert recommendation event: %w", err)
		}

		if err := applyRecommendation(ctx, tx, next); err != nil {
			return fmt.Errorf("update recommendation aggregates: %w", err)
		}
		return nil
	})
}

// applyRecommendation folds one event into the running figures:
// acceptance_rate = acceptances / requests, and the average response time
// moves as new_avg = (old_avg*(n-1) + v) / n.
func applyRecommendation(ctx context.Context, tx *sql.Tx, c recommendationContribution) error {
	accepted := c.acceptances()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO recommendation_performance
			(recommendation_type, day, requests, acceptances, acceptance_rate, avg_response_time_ms)
		VALUES (?, ?, 1, ?, CAST(? AS DOUBLE), ?)
		ON CONFLICT (recommendation_type, day) DO UPDATE SET
			requests = recommendation_performance.requests + 1,
			acceptances = recommendation_performance.acceptances + excluded.acceptances,
			acceptance_rate = CAST(recommendation_performance.acceptances + excluded.acceptances AS DOUBLE)
				/ (recommendation_performance.requests + 1),
			avg_response_time_ms = (recommendation_performance.avg_response_time_ms * recommendation_performance.requests
				+ excluded.avg_response_time_ms) / (recommendation_performance.requests + 1)`,
		c.recType, c.day, accepted, accepted, c.response); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO daily_aggregates (day, recommendations_served, recommendations_accepted)
		VALUES (?, 1, ?)
		ON CONFLICT (day) DO UPDATE SET
			recommendations_served = daily_aggregates.recommendations_served + 1,
			recommendations_accepted = daily_aggregates.recommendations_accepted + excluded.recommendations_accepted`,
		c.day, accepted)
	return err
}

// retractRecommendation is the inverse of applyRecommendation.
func retractRecommendation(ctx context.Context, tx *sql.Tx, c recommendationContribution) error {
	accepted := c.acceptances()
	if _, err := tx.ExecContext(ctx, `
		UPDATE recommendation_performance SET
			requests = GREATEST(requests - 1, 0),
			acceptances = GREATEST(acceptances - ?, 0),
			acceptance_rate = CASE WHEN requests > 1
				THEN CAST(GREATEST(acceptances - ?, 0) AS DOUBLE) / (requests - 1) ELSE 0 END,
			avg_response_time_ms = CASE WHEN requests > 1
				THEN (avg_response_time_ms * requests - ?) / (requests - 1) ELSE 0 END
		WHERE recommendation_type = ? AND day = ?`,
		accepted, accepted, c.response, c.recType, c.day); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE daily_aggregates SET
			recommendations_served = GREATEST(recommendations_served - 1, 0),
			recommendations_accepted = GREATEST(recommendations_accepted - ?, 0)
		WHERE day = ?`,
		accepted, c.day)
	return err
}

// MarkRecommendationAccepted records that the user acted on a served
// recommendation. Marking an already accepted event only updates the item.
func (l *Log) MarkRecommendationAccepted(ctx context.Context, eventID, itemID string) error {
	if eventID == "" {
		return invalid(validation.Newf("EventID", "is required"))
	}

	err := l.db.Tx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var (
			c        recommendationContribution
			occurred time.Time
			rawItems string
		)
		err := tx.QueryRowContext(ctx,
			"SELECT recommendation_type, occurred_at, accepted, items FROM recommendation_events WHERE event_id = ?",
			eventID).Scan(&c.recType, &occurred, &c.accepted, &rawItems)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
		}
		if err != nil {
			return err
		}
		c.day = dayOf(occurred)

		var items []string
		if err := json.Unmarshal([]byte(rawItems), &items); err != nil {
			return fmt.Errorf("decode offered items: %w", err)
		}
		if itemID != "" && len(items) > 0 && !contains(items, itemID) {
			return invalid(validation.Newf("ItemID", "%q was not among the offered items", itemID))
		}

		var item interface{}
		if itemID != "" {
			item = itemID
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE recommendation_events SET accepted = true, accepted_item = ? WHERE event_id = ?",
			item, eventID); err != nil {
			return err
		}
		if c.accepted {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE recommendation_performance SET
				acceptances = acceptances + 1,
				acceptance_rate = CAST(acceptances + 1 AS DOUBLE) / GREATEST(requests, 1)
			WHERE recommendation_type = ? AND day = ?`,
			c.recType, c.day); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE daily_aggregates SET recommendations_accepted = recommendations_accepted + 1 WHERE day = ?",
			c.day)
		return err
	})
	metrics.RecordAnalyticsEvent("recommendation_accepted", err)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("event_id", eventID).Msg("Failed to mark recommendation accepted")
	}
	return err
}

func contains(items []string, want string) bool {
	for _, it := range items {
		if it == want {
			return true
		}
	}
	return false
}
