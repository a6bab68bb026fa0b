// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package analytics

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

func TestIngestorRejectsPublishBeforeServe(t *testing.T) {
	ing := NewIngestor(nil, 8)
	defer ing.Close()

	if err := ing.PublishBooking(BookingEvent{EventID: "e-1"}); !errors.Is(err, ErrIngestNotRunning) {
		t.Errorf("PublishBooking() error = %v, want ErrIngestNotRunning", err)
	}
	if ing.Running() {
		t.Error("Running() = true before Serve")
	}
}

func TestIngestorAcksUndecodableMessages(t *testing.T) {
	ing := NewIngestor(nil, 8)
	defer ing.Close()

	for _, payload := range []string{`not json`, `{"kind":"desk"}`, `{"kind":"booking"}`} {
		msg := message.NewMessage(watermill.NewUUID(), []byte(payload))
		ing.handle(t.Context(), msg)
		select {
		case <-msg.Acked():
		default:
			t.Errorf("message %q was not acked", payload)
		}
	}
	if s := ing.Stats(); s.Received != 3 || s.Failed != 3 || s.Processed != 0 {
		t.Errorf("Stats() = %+v, want 3 received, 3 failed", s)
	}
}
