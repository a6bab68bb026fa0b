// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package config

import (
	"fmt"
	"time"
)

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

var validOverflowBackends = map[string]bool{
	"badger": true,
	"file":   true,
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	if err := c.validateBackup(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateStorage() error {
	if c.Storage.BasePath == "" {
		return fmt.Errorf("ROOMWISE_BASE_PATH is required")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must be >= 0, got %d", c.Database.Threads)
	}
	if c.Database.LockTimeout <= 0 {
		return fmt.Errorf("DUCKDB_LOCK_TIMEOUT must be positive, got %v", c.Database.LockTimeout)
	}
	return nil
}

func (c *Config) validateCache() error {
	cc := c.Cache
	if cc.MemoryBudgetBytes <= 0 {
		return fmt.Errorf("CACHE_MEMORY_BUDGET_BYTES must be positive, got %d", cc.MemoryBudgetBytes)
	}
	if cc.InlineThresholdFraction <= 0 || cc.InlineThresholdFraction > 1 {
		return fmt.Errorf("CACHE_INLINE_THRESHOLD_FRACTION must be in (0, 1], got %v", cc.InlineThresholdFraction)
	}
	if cc.DefaultTTL < 0 {
		return fmt.Errorf("CACHE_DEFAULT_TTL must not be negative, got %v", cc.DefaultTTL)
	}
	for kind, ttl := range cc.TTLByKind {
		if ttl < 0 {
			return fmt.Errorf("cache TTL for kind %q must not be negative, got %v", kind, ttl)
		}
	}
	if !validOverflowBackends[cc.OverflowBackend] {
		return fmt.Errorf("CACHE_OVERFLOW_BACKEND must be one of: badger, file")
	}
	if cc.SweepInterval < time.Second {
		return fmt.Errorf("CACHE_SWEEP_INTERVAL must be at least 1s, got %v", cc.SweepInterval)
	}
	if cc.FragmentationThreshold <= 0 || cc.FragmentationThreshold >= 1 {
		return fmt.Errorf("CACHE_FRAGMENTATION_THRESHOLD must be in (0, 1), got %v", cc.FragmentationThreshold)
	}
	if cc.BadgerGCRatio <= 0 || cc.BadgerGCRatio >= 1 {
		return fmt.Errorf("CACHE_BADGER_GC_RATIO must be in (0, 1), got %v", cc.BadgerGCRatio)
	}
	return nil
}

func (c *Config) validateRetention() error {
	r := c.Retention
	if r.EmbeddingDays < 1 || r.ModelDays < 1 || r.AnalyticsDays < 1 {
		return fmt.Errorf("retention windows must be at least 1 day")
	}
	if r.ModelKeepLatest < 0 {
		return fmt.Errorf("RETENTION_MODEL_KEEP_LATEST must be >= 0, got %d", r.ModelKeepLatest)
	}
	if r.Interval < time.Minute {
		return fmt.Errorf("RETENTION_INTERVAL must be at least 1m, got %v", r.Interval)
	}
	return nil
}

func (c *Config) validateBackup() error {
	if c.Backup.Keep < 0 {
		return fmt.Errorf("BACKUP_KEEP must be >= 0, got %d", c.Backup.Keep)
	}
	if c.Backup.Interval != 0 && c.Backup.Interval < time.Minute {
		return fmt.Errorf("BACKUP_INTERVAL must be 0 (disabled) or at least 1m, got %v", c.Backup.Interval)
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("METRICS_ADDR is required when METRICS_ENABLED=true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logLevelValid(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

func logLevelValid(level string) bool {
	switch level {
	case "trace", "debug", "info", "warn", "error":
		return true
	}
	return false
}
