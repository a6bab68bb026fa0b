// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

// Package config loads Roomwise configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"path/filepath"
	"time"
)

// Config is the complete runtime configuration.
type Config struct {
	Storage    StorageConfig    `koanf:"storage"`
	Database   DatabaseConfig   `koanf:"database"`
	Cache      CacheConfig      `koanf:"cache"`
	Retention  RetentionConfig  `koanf:"retention"`
	Analytics  AnalyticsConfig  `koanf:"analytics"`
	Backup     BackupConfig     `koanf:"backup"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

// StorageConfig holds the on-disk root. Every store lives under BasePath.
type StorageConfig struct {
	BasePath string `koanf:"base_path"`
}

// DatabaseConfig holds settings shared by every DuckDB-backed store.
type DatabaseConfig struct {
	MaxMemory   string        `koanf:"max_memory"`
	Threads     int           `koanf:"threads"`      // 0 = use NumCPU
	LockTimeout time.Duration `koanf:"lock_timeout"` // bounded wait before ErrBusy
}

// CacheConfig holds the tiered cache settings.
type CacheConfig struct {
	// MemoryBudgetBytes is the in-store budget the inline threshold is a fraction of.
	MemoryBudgetBytes int64 `koanf:"memory_budget_bytes"`

	// InlineThresholdFraction of MemoryBudgetBytes above which payloads overflow.
	InlineThresholdFraction float64 `koanf:"inline_threshold_fraction"`

	DefaultTTL time.Duration            `koanf:"default_ttl"`
	TTLByKind  map[string]time.Duration `koanf:"ttl_by_kind"`

	// OverflowBackend is "badger" or "file".
	OverflowBackend string `koanf:"overflow_backend"`

	SweepInterval          time.Duration `koanf:"sweep_interval"`
	FragmentationThreshold float64       `koanf:"fragmentation_threshold"`
	BadgerGCRatio          float64       `koanf:"badger_gc_ratio"`
}

// InlineThreshold returns the payload size in bytes above which entries
// are written to the overflow tier.
func (c CacheConfig) InlineThreshold() int {
	return int(float64(c.MemoryBudgetBytes) * c.InlineThresholdFraction)
}

// RetentionConfig holds artifact and analytics retention windows.
type RetentionConfig struct {
	EmbeddingDays   int           `koanf:"embedding_days"`
	ModelDays       int           `koanf:"model_days"`
	ModelKeepLatest int           `koanf:"model_keep_latest"`
	AnalyticsDays   int           `koanf:"analytics_days"`
	Interval        time.Duration `koanf:"interval"`
}

// AnalyticsConfig holds the async ingestion settings.
type AnalyticsConfig struct {
	IngestBuffer int64 `koanf:"ingest_buffer"`
}

// BackupConfig holds backup settings. Interval 0 disables scheduled backups.
type BackupConfig struct {
	Dir      string        `koanf:"dir"`
	Compress bool          `koanf:"compress"`
	Keep     int           `koanf:"keep"`
	Interval time.Duration `koanf:"interval"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`

	Caller    bool `koanf:"caller"`
	Timestamp bool `koanf:"timestamp"`
}

// SupervisorConfig tunes the suture tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig controls the ops HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// Directory layout under Storage.BasePath.
const (
	CacheDir      = "cache"
	OverflowDir   = "cache/overflow"
	EmbeddingsDir = "embeddings"
	ModelsDir     = "models"
	AnalyticsDir  = "analytics"
	BackupsDir    = "backups"
)

// CacheDBPath returns the path of the cache metadata store.
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.Storage.BasePath, CacheDir, "cache.duckdb")
}

// OverflowPath returns the overflow tier root.
func (c *Config) OverflowPath() string {
	return filepath.Join(c.Storage.BasePath, OverflowDir)
}

// ArtifactDBPath returns the path of the embeddings/models metadata store.
func (c *Config) ArtifactDBPath() string {
	return filepath.Join(c.Storage.BasePath, ModelsDir, "artifacts.duckdb")
}

// EmbeddingsPath returns the embeddings root directory.
func (c *Config) EmbeddingsPath() string {
	return filepath.Join(c.Storage.BasePath, EmbeddingsDir)
}

// ModelsPath returns the model files directory.
func (c *Config) ModelsPath() string {
	return filepath.Join(c.Storage.BasePath, ModelsDir)
}

// AnalyticsDBPath returns the path of the analytics store.
func (c *Config) AnalyticsDBPath() string {
	return filepath.Join(c.Storage.BasePath, AnalyticsDir, "analytics.duckdb")
}

// BackupPath returns Backup.Dir, defaulting to a directory under BasePath.
func (c *Config) BackupPath() string {
	if c.Backup.Dir != "" {
		return c.Backup.Dir
	}
	return filepath.Join(c.Storage.BasePath, BackupsDir)
}
