// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

// Package metrics declares the Prometheus instruments shared by Roomwise
// stores and services, plus small Record helpers so callers do not build
// label sets by hand.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwise_cache_requests_total",
			Help: "Cache lookups by request kind and result (hit, miss)",
		},
		[]string{"kind", "result"},
	)

	CachePuts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwise_cache_puts_total",
			Help: "Cache writes by request kind and storage tier",
		},
		[]string{"kind", "tier"},
	)

	CachePutErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwise_cache_put_errors_total",
			Help: "Cache writes that failed",
		},
		[]string{"kind"},
	)

	CacheDegradedReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwise_cache_degraded_reads_total",
			Help: "Reads turned into misses because the payload was missing or unreadable",
		},
		[]string{"reason"},
	)

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomwise_cache_evictions_total",
		Help: "Expired cache entries removed by the sweeper",
	})

	CacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomwise_cache_invalidations_total",
		Help: "Cache entries removed by tenant invalidation",
	})

	CachePayloadBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomwise_cache_payload_bytes",
			Help:    "Compressed payload size per write",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10), // 256B .. 64MiB
		},
		[]string{"tier"},
	)

	CacheCompressionRatio = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "roomwise_cache_compression_ratio",
		Help:    "Compressed / serialized size per write",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 1.5, 2},
	})

	OverflowBreakerOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roomwise_cache_overflow_breaker_open",
		Help: "1 when the overflow tier circuit breaker is open",
	})

	// Sweeper
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "roomwise_sweep_duration_seconds",
		Help:    "Duration of expiry sweeps",
		Buckets: prometheus.DefBuckets,
	})

	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwise_sweep_runs_total",
			Help: "Sweeps by result (ok, error)",
		},
		[]string{"result"},
	)

	SpaceReclaims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwise_space_reclaims_total",
			Help: "Space reclamation passes by store",
		},
		[]string{"store"},
	)

	StoreFragmentation = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "roomwise_store_fragmentation_ratio",
			Help: "Free blocks / total blocks per DuckDB store",
		},
		[]string{"store"},
	)

	// Artifacts
	ArtifactSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwise_artifact_saves_total",
			Help: "Artifact saves by type (embedding, model) and result",
		},
		[]string{"artifact", "result"},
	)

	ArtifactLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwise_artifact_loads_total",
			Help: "Artifact loads by type and result (found, absent)",
		},
		[]string{"artifact", "result"},
	)

	ArtifactsRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwise_artifacts_removed_total",
			Help: "Artifacts soft-deleted by retention cleanup",
		},
		[]string{"artifact"},
	)

	// Analytics
	AnalyticsEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwise_analytics_events_total",
			Help: "Logged analytics events by type (booking, recommendation) and result",
		},
		[]string{"event", "result"},
	)

	AnalyticsIngestQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomwise_analytics_ingest_queued_total",
		Help: "Events published to the async ingestion topic",
	})

	AnalyticsRowsPurged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwise_analytics_rows_purged_total",
			Help: "Rows removed by analytics retention by table",
		},
		[]string{"table"},
	)

	// Storage
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomwise_db_operation_duration_seconds",
			Help:    "Duration of store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "operation"},
	)

	// Ops endpoint
	OpsRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomwise_ops_request_duration_seconds",
			Help:    "Ops endpoint requests by method, route pattern and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	Backups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwise_backups_total",
			Help: "Backups by result",
		},
		[]string{"result"},
	)
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheRequests.WithLabelValues(kind, result).Inc()
}

// RecordCachePut records a successful write.
func RecordCachePut(kind, tier string, size int, ratio float64) {
	CachePuts.WithLabelValues(kind, tier).Inc()
	CachePayloadBytes.WithLabelValues(tier).Observe(float64(size))
	CacheCompressionRatio.Observe(ratio)
}

// RecordSweep records one sweeper pass.
func RecordSweep(duration time.Duration, evicted int, err error) {
	SweepDuration.Observe(duration.Seconds())
	SweepRuns.WithLabelValues(resultLabel(err)).Inc()
	CacheEvictions.Add(float64(evicted))
}

// RecordArtifactSave records an embedding or model save.
func RecordArtifactSave(artifact string, err error) {
	ArtifactSaves.WithLabelValues(artifact, resultLabel(err)).Inc()
}

// RecordArtifactLoad records an embedding or model load.
func RecordArtifactLoad(artifact string, found bool) {
	result := "absent"
	if found {
		result = "found"
	}
	ArtifactLoads.WithLabelValues(artifact, result).Inc()
}

// RecordAnalyticsEvent records a logged booking or recommendation event.
func RecordAnalyticsEvent(event string, err error) {
	AnalyticsEvents.WithLabelValues(event, resultLabel(err)).Inc()
}

// RecordDBOperation observes the duration of a store operation.
func RecordDBOperation(store, operation string, start time.Time) {
	DBOperationDuration.WithLabelValues(store, operation).Observe(time.Since(start).Seconds())
}

// RecordBackup records a backup run.
func RecordBackup(err error) {
	Backups.WithLabelValues(resultLabel(err)).Inc()
}

// RecordOpsRequest observes one ops endpoint request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func RecordOpsRequest(method, route string, status int, duration time.Duration) {
	OpsRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}
