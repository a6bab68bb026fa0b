// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists config file locations in priority order.
var DefaultConfigPaths = []string{
	"roomwise.yaml",
	"roomwise.yml",
	"/etc/roomwise/config.yaml",
	"/etc/roomwise/config.yml",
}

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			BasePath: "/data/roomwise",
		},
		Database: DatabaseConfig{
			MaxMemory:   "512MB",
			Threads:     0,
			LockTimeout: 5 * time.Second,
		},
		Cache: CacheConfig{
			MemoryBudgetBytes:       64 << 20,
			InlineThresholdFraction: 0.01, // 640KiB with the default budget
			DefaultTTL:              6 * time.Hour,
			TTLByKind: map[string]time.Duration{
				"similar_rooms":        24 * time.Hour,
				"alternative_times":    time.Hour,
				"user_recommendations": 6 * time.Hour,
				"room_availability":    15 * time.Minute,
			},
			OverflowBackend:        "badger",
			SweepInterval:          time.Hour,
			FragmentationThreshold: 0.3,
			BadgerGCRatio:          0.5,
		},
		Retention: RetentionConfig{
			EmbeddingDays:   30,
			ModelDays:       90,
			ModelKeepLatest: 3,
			AnalyticsDays:   365,
			Interval:        24 * time.Hour,
		},
		Analytics: AnalyticsConfig{
			IngestBuffer: 1024,
		},
		Backup: BackupConfig{
			Dir:      "",
			Compress: true,
			Keep:     7,
			Interval: 0,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "json",
			Caller:    false,
			Timestamp: true,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9464",
		},
	}
}

// LoadWithKoanf loads configuration in three layers:
//
//  1. Defaults from defaultConfig
//  2. Optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment variables listed in envMappings
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Default returns a validated copy of the built-in defaults rooted at basePath.
// Tests and the setup command use it when no file is supplied.
func Default(basePath string) *Config {
	cfg := defaultConfig()
	if basePath != "" {
		cfg.Storage.BasePath = basePath
	}
	return cfg
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var envMappings = map[string]string{
	"roomwise_base_path": "storage.base_path",

	"duckdb_max_memory":   "database.max_memory",
	"duckdb_threads":      "database.threads",
	"duckdb_lock_timeout": "database.lock_timeout",

	"cache_memory_budget_bytes":       "cache.memory_budget_bytes",
	"cache_inline_threshold_fraction": "cache.inline_threshold_fraction",
	"cache_default_ttl":               "cache.default_ttl",
	"cache_overflow_backend":          "cache.overflow_backend",
	"cache_sweep_interval":            "cache.sweep_interval",
	"cache_fragmentation_threshold":   "cache.fragmentation_threshold",
	"cache_badger_gc_ratio":           "cache.badger_gc_ratio",

	"retention_embedding_days":    "retention.embedding_days",
	"retention_model_days":        "retention.model_days",
	"retention_model_keep_latest": "retention.model_keep_latest",
	"retention_analytics_days":    "retention.analytics_days",
	"retention_interval":          "retention.interval",

	"analytics_ingest_buffer": "analytics.ingest_buffer",

	"backup_dir":      "backup.dir",
	"backup_compress": "backup.compress",
	"backup_keep":     "backup.keep",
	"backup_interval": "backup.interval",

	"log_level":     "logging.level",
	"log_format":    "logging.format",
	"log_caller":    "logging.caller",
	"log_timestamp": "logging.timestamp",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",

	"metrics_enabled": "metrics.enabled",
	"metrics_addr":    "metrics.addr",
}

// cacheTTLEnvPrefix lets CACHE_TTL_<KIND>=30m set cache.ttl_by_kind.<kind>.
const cacheTTLEnvPrefix = "cache_ttl_"

// envTransformFunc maps environment variable names to koanf paths.
// Unknown variables map to "" and are skipped.
//
//   - LOG_LEVEL -> logging.level
//   - CACHE_TTL_SIMILAR_ROOMS -> cache.ttl_by_kind.similar_rooms
func envTransformFunc(key string) string {
	key = strings.ToLower(key)
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	if kind, ok := strings.CutPrefix(key, cacheTTLEnvPrefix); ok && kind != "" {
		return "cache.ttl_by_kind." + kind
	}
	return ""
}
