// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package analytics

const schema = `
CREATE TABLE IF NOT EXISTS booking_events (
	event_id         VARCHAR PRIMARY KEY,
	user_id          VARCHAR NOT NULL,
	room_id          VARCHAR NOT NULL,
	event_type       VARCHAR NOT NULL,
	booking_date     DATE NOT NULL,
	start_time       TIMESTAMP NOT NULL,
	end_time         TIMESTAMP NOT NULL,
	duration_minutes INTEGER NOT NULL,
	metadata         VARCHAR,
	occurred_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS recommendation_events (
	event_id            VARCHAR PRIMARY KEY,
	user_id             VARCHAR NOT NULL,
	recommendation_type VARCHAR NOT NULL,
	items               VARCHAR NOT NULL,
	accepted            BOOLEAN NOT NULL DEFAULT false,
	accepted_item       VARCHAR,
	response_time_ms    DOUBLE NOT NULL,
	occurred_at         TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_aggregates (
	day                      DATE PRIMARY KEY,
	total_bookings           BIGINT NOT NULL DEFAULT 0,
	cancellations            BIGINT NOT NULL DEFAULT 0,
	modifications            BIGINT NOT NULL DEFAULT 0,
	total_duration_minutes   BIGINT NOT NULL DEFAULT 0,
	recommendations_served   BIGINT NOT NULL DEFAULT 0,
	recommendations_accepted BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS hourly_room_utilization (
	room_id        VARCHAR NOT NULL,
	day            DATE NOT NULL,
	hour           INTEGER NOT NULL,
	booking_count  BIGINT NOT NULL DEFAULT 0,
	booked_minutes BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (room_id, day, hour)
);

CREATE TABLE IF NOT EXISTS recommendation_performance (
	recommendation_type  VARCHAR NOT NULL,
	day                  DATE NOT NULL,
	requests             BIGINT NOT NULL DEFAULT 0,
	acceptances          BIGINT NOT NULL DEFAULT 0,
	acceptance_rate      DOUBLE NOT NULL DEFAULT 0,
	avg_response_time_ms DOUBLE NOT NULL DEFAULT 0,
	PRIMARY KEY (recommendation_type, day)
);

CREATE TABLE IF NOT EXISTS user_patterns (
	user_id                        VARCHAR PRIMARY KEY,
	preferred_part_of_day          VARCHAR NOT NULL,
	part_of_day_counts             VARCHAR NOT NULL,
	preferred_rooms                VARCHAR NOT NULL,
	avg_lead_time_hours            DOUBLE NOT NULL,
	cancellation_rate              DOUBLE NOT NULL,
	modification_rate              DOUBLE NOT NULL,
	recommendation_acceptance_rate DOUBLE NOT NULL,
	total_bookings                 BIGINT NOT NULL,
	pattern_confidence             DOUBLE NOT NULL,
	analyzed_at                    TIMESTAMP NOT NULL
);
`

// Tables lists the tables a restored analytics store must contain.
var Tables = []string{
	"booking_events", "recommendation_events", "daily_aggregates",
	"hourly_room_utilization", "recommendation_performance", "user_patterns",
}
