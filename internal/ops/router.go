// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

// Package ops serves the operator endpoint: Prometheus metrics, liveness
// and readiness checks, and a JSON view of cache and ingest counters.
package ops

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/roomwise/internal/analytics"
	"github.com/tomtom215/roomwise/internal/cache"
	"github.com/tomtom215/roomwise/internal/logging"
	"github.com/tomtom215/roomwise/internal/sweeper"
)

// Pinger reports store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheStatter matches cache.Store.
type CacheStatter interface {
	GetStats(ctx context.Context) (*cache.Stats, error)
}

// IngestStatter matches analytics.Ingestor.
type IngestStatter interface {
	Running() bool
	Stats() analytics.IngestStats
}

// SweepStatter matches sweeper.Sweeper.
type SweepStatter interface {
	IsRunning() bool
	LastResult() sweeper.Result
}

// Deps are the components the endpoint reports on. Ingest and Sweeps may
// be nil when those services are not running in this process.
type Deps struct {
	Stores Pinger
	Cache  CacheStatter
	Ingest IngestStatter
	Sweeps SweepStatter
}

// Handler serves the ops routes.
type Handler struct {
	deps      Deps
	startTime time.Time
}

// NewHandler returns a Handler whose uptime starts now.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps, startTime: time.Now()}
}

// correlationFromRequestID reuses chi's request ID as the log correlation ID.
func correlationFromRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chimiddleware.GetReqID(r.Context())
		if id == "" {
			id = logging.GenerateCorrelationID()
		}
		next.ServeHTTP(w, r.WithContext(logging.ContextWithCorrelationID(r.Context(), id)))
	})
}

// Router builds the chi route tree.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(correlationFromRequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestMetrics)

	r.Route("/healthz", func(r chi.Router) {
		r.Get("/live", h.Live)
		r.Get("/ready", h.Ready)
	})
	r.Get("/stats", h.Stats)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// NewServer returns an *http.Server for the ops endpoint.
func NewServer(addr string, h *Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}
