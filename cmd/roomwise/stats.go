// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package main

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/roomwise/internal/analytics"
	"github.com/tomtom215/roomwise/internal/artifact"
	"github.com/tomtom215/roomwise/internal/cache"
	"github.com/tomtom215/roomwise/internal/logging"
	"github.com/tomtom215/roomwise/internal/storage"
)

var statsDays int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache, model and recommendation statistics as JSON",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().IntVar(&statsDays, "days", 7, "recommendation report window in days")
}

type statsOutput struct {
	Cache          *cache.Stats                               `json:"cache"`
	Models         []artifact.ModelInfo                       `json:"models"`
	Recommendation *analytics.RecommendationPerformanceReport `json:"recommendation"`
}

func runStats(cmd *cobra.Command, args []string) error {
	if statsDays < 1 {
		return fmt.Errorf("--days must be at least 1, got %d", statsDays)
	}
	ctx := cmd.Context()

	layer, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := layer.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing stores")
		}
	}()

	var out statsOutput
	if out.Cache, err = layer.Cache.GetStats(ctx); err != nil {
		return err
	}
	if out.Models, err = layer.Artifacts.ListModels(ctx, "", false); err != nil {
		return err
	}
	to := time.Now().UTC()
	if out.Recommendation, err = layer.Analytics.RecommendationPerformanceReport(ctx, to.AddDate(0, 0, -(statsDays-1)), to); err != nil {
		return err
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
