// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/roomwise/internal/database"
	"github.com/tomtom215/roomwise/internal/metrics"
	"github.com/tomtom215/roomwise/internal/validation"
)

const (
	// BehaviorWindow is how far back AnalyzeUserBehavior looks.
	BehaviorWindow = 90 * 24 * time.Hour

	// confidentBookings is the booking count at which PatternConfidence reaches 1.0.
	confidentBookings = 10

	maxPreferredRooms = 5
)

// Parts of day, by UTC start hour.
const (
	PartMorning     = "morning"      // 06:00-09:59
	PartLateMorning = "late_morning" // 10:00-11:59
	PartLunch       = "lunch"        // 12:00-13:59
	PartAfternoon   = "afternoon"    // 14:00-16:59
	PartEvening     = "evening"      // 17:00-20:59
	PartOther       = "other"
)

// partOfDay buckets an hour of day.
func partOfDay(hour int) string {
	switch {
	case hour >= 6 && hour < 10:
		return PartMorning
	case hour >= 10 && hour < 12:
		return PartLateMorning
	case hour >= 12 && hour < 14:
		return PartLunch
	case hour >= 14 && hour < 17:
		return PartAfternoon
	case hour >= 17 && hour < 21:
		return PartEvening
	default:
		return PartOther
	}
}

// AnalyzeUserBehavior derives a booking pattern from the user's events
// logged within BehaviorWindow, stores it in user_patterns and returns it.
// A user without events gets an empty pattern with zero confidence.
func (l *Log) AnalyzeUserBehavior(ctx context.Context, userID string) (*UserPattern, error) {
	start := time.Now()
	defer metrics.RecordDBOperation("analytics", "analyze_user", start)

	if err := validation.GetValidator().Var(userID, "identifier"); err != nil {
		return nil, invalid(validation.Newf("UserID", "must be a non-empty identifier"))
	}

	now := l.now()
	since := now.Add(-BehaviorWindow)
	p := &UserPattern{
		UserID:          userID,
		PartOfDayCounts: make(map[string]int64),
		PreferredRooms:  []RoomCount{},
		AnalyzedAt:      now,
	}

	err := l.db.Tx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := collectBookings(ctx, tx, userID, since, p); err != nil {
			return err
		}
		if err := collectAcceptance(ctx, tx, userID, since, p); err != nil {
			return err
		}
		return storePattern(ctx, tx, p)
	})
	if err != nil {
		return nil, fmt.Errorf("analyze user %s: %w", userID, err)
	}

	l.log.Debug().Str("user_id", userID).Int64("bookings", p.TotalBookings).
		Float64("confidence", p.PatternConfidence).Msg("User behavior analyzed")
	return p, nil
}

func collectBookings(ctx context.Context, q database.Querier, userID string, since time.Time, p *UserPattern) error {
	rows, err := q.QueryContext(ctx, `
		SELECT room_id, event_type, start_time, occurred_at
		FROM booking_events
		WHERE user_id = ? AND occurred_at >= ?`, userID, since)
	if err != nil {
		return fmt.Errorf("query booking events: %w", err)
	}
	defer rows.Close()

	var (
		created, cancelled, modified int64
		leadHours                    float64
		rooms                        = make(map[string]int64)
	)
	for rows.Next() {
		var (
			roomID, eventType string
			startTime, at     time.Time
		)
		if err := rows.Scan(&roomID, &eventType, &startTime, &at); err != nil {
			return err
		}
		switch BookingEventType(eventType) {
		case BookingCreated:
			created++
			p.PartOfDayCounts[partOfDay(startTime.UTC().Hour())]++
			rooms[roomID]++
			leadHours += startTime.Sub(at).Hours()
		case BookingCancelled:
			cancelled++
		case BookingModified:
			modified++
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	p.TotalBookings = created
	if created > 0 {
		p.AvgLeadTimeHours = leadHours / float64(created)
		p.CancellationRate = float64(cancelled) / float64(created)
		p.ModificationRate = float64(modified) / float64(created)
	}
	p.PatternConfidence = float64(created) / confidentBookings
	if p.PatternConfidence > 1 {
		p.PatternConfidence = 1
	}

	var best int64
	for _, part := range []string{PartMorning, PartLateMorning, PartLunch, PartAfternoon, PartEvening, PartOther} {
		if n := p.PartOfDayCounts[part]; n > best {
			best, p.PreferredPartOfDay = n, part
		}
	}

	for id, n := range rooms {
		p.PreferredRooms = append(p.PreferredRooms, RoomCount{RoomID: id, Bookings: n})
	}
	sort.Slice(p.PreferredRooms, func(i, j int) bool {
		a, b := p.PreferredRooms[i], p.PreferredRooms[j]
		if a.Bookings != b.Bookings {
			return a.Bookings > b.Bookings
		}
		return a.RoomID < b.RoomID
	})
	if len(p.PreferredRooms) > maxPreferredRooms {
		p.PreferredRooms = p.PreferredRooms[:maxPreferredRooms]
	}
	return nil
}

func collectAcceptance(ctx context.Context, q database.Querier, userID string, since time.Time, p *UserPattern) error {
	var served, accepted int64
	err := q.QueryRowContext(ctx, `
		SELECT CAST(count(*) AS BIGINT), CAST(count(*) FILTER (WHERE accepted) AS BIGINT)
		FROM recommendation_events
		WHERE user_id = ? AND occurred_at >= ?`, userID, since).Scan(&served, &accepted)
	if err != nil {
		return fmt.Errorf("query recommendation events: %w", err)
	}
	if served > 0 {
		p.RecommendationAccept = float64(accepted) / float64(served)
	}
	return nil
}

func storePattern(ctx context.Context, q database.Querier, p *UserPattern) error {
	counts, err := json.Marshal(p.PartOfDayCounts)
	if err != nil {
		return err
	}
	rooms, err := json.Marshal(p.PreferredRooms)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO user_patterns (user_id, preferred_part_of_day, part_of_day_counts, preferred_rooms,
		                           avg_lead_time_hours, cancellation_rate, modification_rate,
		                           recommendation_acceptance_rate, total_bookings, pattern_confidence, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			preferred_part_of_day = excluded.preferred_part_of_day,
			part_of_day_counts = excluded.part_of_day_counts,
			preferred_rooms = excluded.preferred_rooms,
			avg_lead_time_hours = excluded.avg_lead_time_hours,
			cancellation_rate = excluded.cancellation_rate,
			modification_rate = excluded.modification_rate,
			recommendation_acceptance_rate = excluded.recommendation_acceptance_rate,
			total_bookings = excluded.total_bookings,
			pattern_confidence = excluded.pattern_confidence,
			analyzed_at = excluded.analyzed_at`,
		p.UserID, p.PreferredPartOfDay, string(counts), string(rooms),
		p.AvgLeadTimeHours, p.CancellationRate, p.ModificationRate,
		p.RecommendationAccept, p.TotalBookings, p.PatternConfidence, p.AnalyzedAt)
	if err != nil {
		return fmt.Errorf("store user pattern: %w", err)
	}
	return nil
}

// UserPattern returns the last stored analysis for userID.
func (l *Log) UserPattern(ctx context.Context, userID string) (*UserPattern, bool, error) {
	var (
		p             UserPattern
		counts, rooms string
	)
	err := l.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
		return q.QueryRowContext(ctx, `
			SELECT user_id, preferred_part_of_day, part_of_day_counts, preferred_rooms,
			       avg_lead_time_hours, cancellation_rate, modification_rate,
			       recommendation_acceptance_rate, total_bookings, pattern_confidence, analyzed_at
			FROM user_patterns WHERE user_id = ?`, userID).Scan(
			&p.UserID, &p.PreferredPartOfDay, &counts, &rooms,
			&p.AvgLeadTimeHours, &p.CancellationRate, &p.ModificationRate,
			&p.RecommendationAccept, &p.TotalBookings, &p.PatternConfidence, &p.AnalyzedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load user pattern: %w", err)
	}
	if err := json.Unmarshal([]byte(counts), &p.PartOfDayCounts); err != nil {
		return nil, false, fmt.Errorf("decode part of day counts: %w", err)
	}
	if err := json.Unmarshal([]byte(rooms), &p.PreferredRooms); err != nil {
		return nil, false, fmt.Errorf("decode preferred rooms: %w", err)
	}
	p.AnalyzedAt = p.AnalyzedAt.UTC()
	return &p, true, nil
}
