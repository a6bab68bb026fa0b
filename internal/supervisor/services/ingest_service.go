// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package services

import "context"

// Consumer matches analytics.Ingestor.
type Consumer interface {
	Serve(ctx context.Context) error
}

// IngestService supervises the analytics event consumer. The consumer
// already blocks on ctx, so the wrapper only names it for suture logs.
type IngestService struct {
	consumer Consumer
	name     string
}

// NewIngestService wraps an analytics consumer.
func NewIngestService(consumer Consumer) *IngestService {
	return &IngestService{consumer: consumer, name: "analytics-ingest"}
}

// Serve implements suture.Service.
func (s *IngestService) Serve(ctx context.Context) error {
	return s.consumer.Serve(ctx)
}

func (s *IngestService) String() string {
	return s.name
}
