// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdirTemp moves into an empty directory so DefaultConfigPaths never match.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(orig); err != nil {
			t.Errorf("Failed to restore working directory: %v", err)
		}
	})
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Cache.OverflowBackend != "badger" {
		t.Errorf("Cache.OverflowBackend = %q, want badger", cfg.Cache.OverflowBackend)
	}
	if cfg.Cache.SweepInterval != time.Hour {
		t.Errorf("Cache.SweepInterval = %v, want 1h", cfg.Cache.SweepInterval)
	}
	if cfg.Retention.ModelKeepLatest != 3 {
		t.Errorf("Retention.ModelKeepLatest = %d, want 3", cfg.Retention.ModelKeepLatest)
	}
	if cfg.Cache.TTLByKind["similar_rooms"] != 24*time.Hour {
		t.Errorf("similar_rooms TTL = %v, want 24h", cfg.Cache.TTLByKind["similar_rooms"])
	}
	if got := cfg.Cache.InlineThreshold(); got != 671088 {
		t.Errorf("InlineThreshold() = %d, want 671088", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"LOG_LEVEL", "logging.level"},
		{"ROOMWISE_BASE_PATH", "storage.base_path"},
		{"CACHE_OVERFLOW_BACKEND", "cache.overflow_backend"},
		{"CACHE_TTL_SIMILAR_ROOMS", "cache.ttl_by_kind.similar_rooms"},
		{"CACHE_TTL_", ""},
		{"RETENTION_MODEL_KEEP_LATEST", "retention.model_keep_latest"},
		{"HOME", ""},
		{"PATH", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := envTransformFunc(tt.input); result != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFindConfigFile(t *testing.T) {
	dir := chdirTemp(t)

	t.Run("no config file exists", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "")
		if result := findConfigFile(); result != "" {
			t.Errorf("findConfigFile() = %q, want empty string", result)
		}
	})

	t.Run("roomwise.yaml exists", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "")
		path := filepath.Join(dir, "roomwise.yaml")
		if err := os.WriteFile(path, []byte("storage: {}\n"), 0o600); err != nil {
			t.Fatalf("Failed to create config file: %v", err)
		}
		defer os.Remove(path)

		if result := findConfigFile(); result != "roomwise.yaml" {
			t.Errorf("findConfigFile() = %q, want roomwise.yaml", result)
		}
	})

	t.Run("CONFIG_PATH takes precedence", func(t *testing.T) {
		custom := filepath.Join(dir, "custom.yaml")
		if err := os.WriteFile(custom, []byte("storage: {}\n"), 0o600); err != nil {
			t.Fatalf("Failed to create config file: %v", err)
		}
		t.Setenv(ConfigPathEnvVar, custom)

		if result := findConfigFile(); result != custom {
			t.Errorf("findConfigFile() = %q, want %q", result, custom)
		}
	})
}

func TestLoadWithKoanfEnvVars(t *testing.T) {
	chdirTemp(t)
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("ROOMWISE_BASE_PATH", "/srv/roomwise")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CACHE_OVERFLOW_BACKEND", "file")
	t.Setenv("CACHE_TTL_ALTERNATIVE_TIMES", "30m")
	t.Setenv("RETENTION_ANALYTICS_DAYS", "180")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Storage.BasePath != "/srv/roomwise" {
		t.Errorf("Storage.BasePath = %q, want /srv/roomwise", cfg.Storage.BasePath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Cache.OverflowBackend != "file" {
		t.Errorf("Cache.OverflowBackend = %q, want file", cfg.Cache.OverflowBackend)
	}
	if got := cfg.Cache.TTLByKind["alternative_times"]; got != 30*time.Minute {
		t.Errorf("alternative_times TTL = %v, want 30m", got)
	}
	if got := cfg.Cache.TTLByKind["similar_rooms"]; got != 24*time.Hour {
		t.Errorf("similar_rooms TTL = %v, want 24h (default)", got)
	}
	if cfg.Retention.AnalyticsDays != 180 {
		t.Errorf("Retention.AnalyticsDays = %d, want 180", cfg.Retention.AnalyticsDays)
	}
	if cfg.AnalyticsDBPath() != filepath.Join("/srv/roomwise", "analytics", "analytics.duckdb") {
		t.Errorf("AnalyticsDBPath() = %q", cfg.AnalyticsDBPath())
	}
}

func TestLoadWithKoanfConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	content := `
storage:
  base_path: /var/lib/roomwise
cache:
  memory_budget_bytes: 1048576
  inline_threshold_fraction: 0.5
  sweep_interval: 10m
retention:
  model_keep_latest: 5
`
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("RETENTION_MODEL_KEEP_LATEST", "2")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Storage.BasePath != "/var/lib/roomwise" {
		t.Errorf("Storage.BasePath = %q", cfg.Storage.BasePath)
	}
	if cfg.Cache.InlineThreshold() != 524288 {
		t.Errorf("InlineThreshold() = %d, want 524288", cfg.Cache.InlineThreshold())
	}
	if cfg.Cache.SweepInterval != 10*time.Minute {
		t.Errorf("SweepInterval = %v, want 10m", cfg.Cache.SweepInterval)
	}
	// env beats file
	if cfg.Retention.ModelKeepLatest != 2 {
		t.Errorf("ModelKeepLatest = %d, want 2", cfg.Retention.ModelKeepLatest)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty base path", func(c *Config) { c.Storage.BasePath = "" }, "ROOMWISE_BASE_PATH"},
		{"bad backend", func(c *Config) { c.Cache.OverflowBackend = "s3" }, "CACHE_OVERFLOW_BACKEND"},
		{"negative kind ttl", func(c *Config) { c.Cache.TTLByKind["x"] = -time.Second }, "must not be negative"},
		{"fraction above one", func(c *Config) { c.Cache.InlineThresholdFraction = 1.5 }, "CACHE_INLINE_THRESHOLD_FRACTION"},
		{"zero lock timeout", func(c *Config) { c.Database.LockTimeout = 0 }, "DUCKDB_LOCK_TIMEOUT"},
		{"short sweep", func(c *Config) { c.Cache.SweepInterval = time.Millisecond }, "CACHE_SWEEP_INTERVAL"},
		{"zero retention", func(c *Config) { c.Retention.AnalyticsDays = 0 }, "retention windows"},
		{"short backup interval", func(c *Config) { c.Backup.Interval = time.Second }, "BACKUP_INTERVAL"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
		{"metrics without addr", func(c *Config) { c.Metrics.Addr = "" }, "METRICS_ADDR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("/tmp/roomwise")
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
