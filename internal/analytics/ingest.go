// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/roomwise/internal/logging"
	"github.com/tomtom215/roomwise/internal/metrics"
)

// IngestTopic is the in-process topic analytics events are published on.
const IngestTopic = "analytics.events"

// ErrIngestNotRunning is returned by Publish* before Serve has subscribed.
// The in-process pub/sub drops messages that have no subscriber.
var ErrIngestNotRunning = errors.New("analytics ingestor is not running")

type envelopeKind string

const (
	kindBooking        envelopeKind = "booking"
	kindRecommendation envelopeKind = "recommendation"
	kindAcceptance     envelopeKind = "acceptance"
)

// envelope is the wire form of one queued analytics write.
type envelope struct {
	Kind           envelopeKind         `json:"kind"`
	Booking        *BookingEvent        `json:"booking,omitempty"`
	Recommendation *RecommendationEvent `json:"recommendation,omitempty"`
	Acceptance     *acceptance          `json:"acceptance,omitempty"`
}

type acceptance struct {
	EventID string `json:"event_id"`
	ItemID  string `json:"item_id,omitempty"`
}

// MessageSource delivers published messages to the consumer.
type MessageSource interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	Close() error
}

// IngestStats holds consumer counters.
type IngestStats struct {
	Received  int64 `json:"received"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Ingestor moves analytics writes off the caller's path. Booking flows
// publish and return immediately; Serve applies each event to the Log.
// A failed write is logged and acknowledged, never retried, so analytics
// trouble cannot back up into bookings. Delivery order across messages is
// not guaranteed; an acceptance that overtakes its recommendation fails
// with ErrEventNotFound.
type Ingestor struct {
	log       *Log
	publisher message.Publisher
	source    MessageSource

	running   atomic.Bool
	received  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
}

// NewIngestor creates an ingestor over an in-process channel with room for
// buffer undelivered messages.
func NewIngestor(l *Log, buffer int) *Ingestor {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(buffer),
	}, watermill.NewSlogLogger(logging.NewSlogLogger()))
	return &Ingestor{log: l, publisher: pubsub, source: pubsub}
}

// PublishBooking queues a booking event.
func (i *Ingestor) PublishBooking(e BookingEvent) error {
	return i.publish(envelope{Kind: kindBooking, Booking: &e})
}

// PublishRecommendation queues a recommendation event.
func (i *Ingestor) PublishRecommendation(e RecommendationEvent) error {
	return i.publish(envelope{Kind: kindRecommendation, Recommendation: &e})
}

// PublishAcceptance queues a MarkRecommendationAccepted call.
func (i *Ingestor) PublishAcceptance(eventID, itemID string) error {
	return i.publish(envelope{Kind: kindAcceptance, Acceptance: &acceptance{EventID: eventID, ItemID: itemID}})
}

func (i *Ingestor) publish(env envelope) error {
	if !i.running.Load() {
		return ErrIngestNotRunning
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", env.Kind, err)
	}
	if err := i.publisher.Publish(IngestTopic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		return fmt.Errorf("publish %s event: %w", env.Kind, err)
	}
	metrics.AnalyticsIngestQueued.Inc()
	return nil
}

// Serve subscribes and applies events until ctx is cancelled.
func (i *Ingestor) Serve(ctx context.Context) error {
	messages, err := i.source.Subscribe(ctx, IngestTopic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", IngestTopic, err)
	}
	i.running.Store(true)
	defer i.running.Store(false)

	logging.Info().Str("topic", IngestTopic).Msg("Analytics ingestor started")
	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Analytics ingestor stopped")
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			i.handle(ctx, msg)
		}
	}
}

// handle always acks; a nack would redeliver the message forever.
func (i *Ingestor) handle(ctx context.Context, msg *message.Message) {
	defer msg.Ack()
	i.received.Add(1)

	ctx = logging.ContextWithCorrelationID(ctx, msg.UUID)
	if err := i.apply(ctx, msg.Payload); err != nil {
		i.failed.Add(1)
		logging.Ctx(ctx).Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropped analytics event")
		return
	}
	i.processed.Add(1)
}

func (i *Ingestor) apply(ctx context.Context, payload []byte) error {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	switch {
	case env.Kind == kindBooking && env.Booking != nil:
		return i.log.LogBookingEvent(ctx, *env.Booking)
	case env.Kind == kindRecommendation && env.Recommendation != nil:
		return i.log.LogRecommendationEvent(ctx, *env.Recommendation)
	case env.Kind == kindAcceptance && env.Acceptance != nil:
		return i.log.MarkRecommendationAccepted(ctx, env.Acceptance.EventID, env.Acceptance.ItemID)
	}
	return fmt.Errorf("unknown envelope kind %q", env.Kind)
}

// Running reports whether Serve is subscribed.
func (i *Ingestor) Running() bool {
	return i.running.Load()
}

// Stats returns a snapshot of the consumer counters.
func (i *Ingestor) Stats() IngestStats {
	return IngestStats{
		Received:  i.received.Load(),
		Processed: i.processed.Load(),
		Failed:    i.failed.Load(),
	}
}

// Close releases the underlying pub/sub.
func (i *Ingestor) Close() error {
	return i.source.Close()
}
