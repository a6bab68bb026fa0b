// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package ops

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"github.com/tomtom215/roomwise/internal/analytics"
	"github.com/tomtom215/roomwise/internal/cache"
	"github.com/tomtom215/roomwise/internal/logging"
)

// Response is the envelope for every JSON body.
type Response struct {
	Status    string      `json:"status"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SweepView is sweeper.Result with the error flattened to text.
type SweepView struct {
	Running    bool      `json:"running"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Evicted    int       `json:"evicted"`
	Error      string    `json:"error,omitempty"`
}

// IngestView reports the analytics consumer.
type IngestView struct {
	Running bool `json:"running"`
	analytics.IngestStats
}

// StatsView is the /stats body.
type StatsView struct {
	Cache  *cache.Stats `json:"cache"`
	Sweep  *SweepView   `json:"sweep,omitempty"`
	Ingest *IngestView  `json:"ingest,omitempty"`
	Uptime float64      `json:"uptime_seconds"`
}

func respondJSON(w http.ResponseWriter, status int, resp *Response) {
	resp.Timestamp = time.Now().UTC()
	data, err := json.Marshal(resp)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("ETag", strconv.FormatUint(xxhash.Sum64(data), 16))
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// Live reports that the process is up.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &Response{
		Status: "alive",
		Data:   map[string]interface{}{"uptime_seconds": time.Since(h.startTime).Seconds()},
	})
}

// Ready returns 503 until every store answers a ping.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Stores.Ping(r.Context()); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Readiness check failed")
		respondJSON(w, http.StatusServiceUnavailable, &Response{Status: "not_ready", Error: err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, &Response{Status: "ready"})
}

// Stats returns cache, sweeper and ingest counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	cs, err := h.deps.Cache.GetStats(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Cache stats failed")
		respondJSON(w, http.StatusInternalServerError, &Response{Status: "error", Error: "cache stats unavailable"})
		return
	}

	view := StatsView{Cache: cs, Uptime: time.Since(h.startTime).Seconds()}
	if h.deps.Sweeps != nil {
		last := h.deps.Sweeps.LastResult()
		view.Sweep = &SweepView{
			Running:    h.deps.Sweeps.IsRunning(),
			StartedAt:  last.StartedAt,
			DurationMS: last.Duration.Milliseconds(),
			Evicted:    last.Evicted,
		}
		if last.Err != nil {
			view.Sweep.Error = last.Err.Error()
		}
	}
	if h.deps.Ingest != nil {
		view.Ingest = &IngestView{Running: h.deps.Ingest.Running(), IngestStats: h.deps.Ingest.Stats()}
	}
	respondJSON(w, http.StatusOK, &Response{Status: "success", Data: view})
}
