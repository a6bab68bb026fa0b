// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/roomwise/internal/setup"
)

var setupSeed bool

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the storage layout and initialize every store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := setup.Run(cmd.Context(), cfg, setup.Options{Seed: setupSeed})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Storage ready at %s (%s)\n", report.BasePath, report.Duration.Round(time.Millisecond))
		for _, s := range report.Stores {
			fmt.Fprintf(out, "  %s: %d tables\n", s.Path, len(s.Tables))
		}
		if report.Seeded != nil {
			fmt.Fprintf(out, "Seeded %d cache entries, %d embeddings, %d models, %d events\n",
				report.Seeded.CacheEntries, report.Seeded.Embeddings, report.Seeded.Models, report.Seeded.Events)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
	setupCmd.Flags().BoolVar(&setupSeed, "seed", false, "write sample rows for smoke testing")
}
