// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

// Command roomwise runs and administers the Roomwise storage core.
//
//	roomwise setup [--seed]     create the storage layout and schemas
//	roomwise serve              run sweeper, retention, ingestion and the ops endpoint
//	roomwise backup [--compress] [--prune]
//	roomwise backups            list backups, newest first
//	roomwise restore <id>       restore a backup (stores must be closed)
//	roomwise stats              print cache and recommendation statistics
//
// Configuration comes from defaults, an optional YAML file (--config or
// CONFIG_PATH) and the environment. A .env file in the working directory
// is loaded first when present.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tomtom215/roomwise/internal/config"
	"github.com/tomtom215/roomwise/internal/logging"
)

// Version is set through -ldflags at build time.
var Version = "dev"

var (
	cfg *config.Config

	configPath string
	basePath   string
)

var rootCmd = &cobra.Command{
	Use:           "roomwise",
	Short:         "Roomwise storage core",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (overrides CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&basePath, "base-path", "", "storage root (overrides storage.base_path)")
}

func loadConfig() error {
	// A missing .env is normal.
	_ = godotenv.Load()

	if configPath != "" {
		if err := os.Setenv(config.ConfigPathEnvVar, configPath); err != nil {
			return err
		}
	}

	loaded, err := config.LoadWithKoanf()
	if err != nil {
		return err
	}
	if basePath != "" {
		loaded.Storage.BasePath = basePath
	}

	logging.Init(logging.Config{
		Level:     loaded.Logging.Level,
		Format:    loaded.Logging.Format,
		Caller:    loaded.Logging.Caller,
		Timestamp: loaded.Logging.Timestamp,
	})
	cfg = loaded
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
