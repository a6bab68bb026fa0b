// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/roomwise/internal/database"
	"github.com/tomtom215/roomwise/internal/validation"
)

// dateRange normalizes an inclusive report range to whole UTC days.
func dateRange(from, to time.Time) (time.Time, time.Time, error) {
	from, to = dayOf(from), dayOf(to)
	if to.Before(from) {
		return from, to, invalid(validation.Newf("To", "must not be before From"))
	}
	return from, to, nil
}

// RoomUtilizationReport summarizes hourly utilization for every room, or
// only roomID when it is non-empty, over the days from..to inclusive.
// Rooms are ordered by booking count, most booked first.
func (l *Log) RoomUtilizationReport(ctx context.Context, from, to time.Time, roomID string) (*RoomUtilizationReport, error) {
	from, to, err := dateRange(from, to)
	if err != nil {
		return nil, err
	}

	rooms := make(map[string]*RoomUtilization)
	room := func(id string) *RoomUtilization {
		r, ok := rooms[id]
		if !ok {
			r = &RoomUtilization{RoomID: id}
			rooms[id] = r
		}
		return r
	}

	filter, args := "", []interface{}{from, to}
	if roomID != "" {
		filter = " AND room_id = ?"
		args = append(args, roomID)
	}

	err = l.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT room_id, hour, CAST(SUM(booking_count) AS BIGINT), CAST(SUM(booked_minutes) AS BIGINT)
			FROM hourly_room_utilization
			WHERE day BETWEEN ? AND ?`+filter+`
			GROUP BY room_id, hour`, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				id             string
				hour           int
				count, minutes int64
			)
			if err := rows.Scan(&id, &hour, &count, &minutes); err != nil {
				return err
			}
			if hour < 0 || hour > 23 {
				continue
			}
			r := room(id)
			r.Hourly[hour] += count
			r.Bookings += count
			r.BookedMinutes += minutes
		}
		if err := rows.Err(); err != nil {
			return err
		}

		days, err := q.QueryContext(ctx, `
			SELECT room_id, CAST(count(DISTINCT day) AS BIGINT)
			FROM hourly_room_utilization
			WHERE booking_count > 0 AND day BETWEEN ? AND ?`+filter+`
			GROUP BY room_id`, args...)
		if err != nil {
			return err
		}
		defer days.Close()
		for days.Next() {
			var (
				id string
				n  int64
			)
			if err := days.Scan(&id, &n); err != nil {
				return err
			}
			room(id).DaysWithBookings = n
		}
		return days.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("room utilization report: %w", err)
	}

	report := &RoomUtilizationReport{From: from, To: to, Rooms: make([]RoomUtilization, 0, len(rooms))}
	for _, r := range rooms {
		for h, n := range r.Hourly {
			if n > r.Hourly[r.PeakHour] {
				r.PeakHour = h
			}
		}
		report.Rooms = append(report.Rooms, *r)
	}
	sort.Slice(report.Rooms, func(i, j int) bool {
		a, b := report.Rooms[i], report.Rooms[j]
		if a.Bookings != b.Bookings {
			return a.Bookings > b.Bookings
		}
		return a.RoomID < b.RoomID
	})
	return report, nil
}

// RecommendationPerformanceReport summarizes each recommendation type over
// the days from..to inclusive. Average response times are weighted by the
// number of requests on each day.
func (l *Log) RecommendationPerformanceReport(ctx context.Context, from, to time.Time) (*RecommendationPerformanceReport, error) {
	from, to, err := dateRange(from, to)
	if err != nil {
		return nil, err
	}

	report := &RecommendationPerformanceReport{
		From:    from,
		To:      to,
		Types:   []RecommendationPerformance{},
		Overall: RecommendationPerformance{RecommendationType: "all"},
	}
	var weighted float64

	err = l.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT recommendation_type,
			       CAST(SUM(requests) AS BIGINT),
			       CAST(SUM(acceptances) AS BIGINT),
			       SUM(avg_response_time_ms * requests)
			FROM recommendation_performance
			WHERE day BETWEEN ? AND ?
			GROUP BY recommendation_type
			ORDER BY recommendation_type`, from, to)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				p     RecommendationPerformance
				total float64
			)
			if err := rows.Scan(&p.RecommendationType, &p.Requests, &p.Acceptances, &total); err != nil {
				return err
			}
			if p.Requests > 0 {
				p.AcceptanceRate = float64(p.Acceptances) / float64(p.Requests)
				p.AvgResponseTimeMS = total / float64(p.Requests)
			}
			report.Types = append(report.Types, p)
			report.Overall.Requests += p.Requests
			report.Overall.Acceptances += p.Acceptances
			weighted += total
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("recommendation performance report: %w", err)
	}

	if o := &report.Overall; o.Requests > 0 {
		o.AcceptanceRate = float64(o.Acceptances) / float64(o.Requests)
		o.AvgResponseTimeMS = weighted / float64(o.Requests)
	}
	return report, nil
}

// DailySummaries returns daily_aggregates rows for from..to, oldest first.
func (l *Log) DailySummaries(ctx context.Context, from, to time.Time) ([]DailySummary, error) {
	from, to, err := dateRange(from, to)
	if err != nil {
		return nil, err
	}

	var out []DailySummary
	err = l.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT day, total_bookings, cancellations, modifications, total_duration_minutes,
			       recommendations_served, recommendations_accepted
			FROM daily_aggregates
			WHERE day BETWEEN ? AND ?
			ORDER BY day`, from, to)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var s DailySummary
			if err := rows.Scan(&s.Day, &s.TotalBookings, &s.Cancellations, &s.Modifications,
				&s.TotalDurationMinutes, &s.RecommendationsServed, &s.RecommendationsAccepted); err != nil {
				return err
			}
			s.Day = s.Day.UTC()
			out = append(out, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("daily summaries: %w", err)
	}
	return out, nil
}
