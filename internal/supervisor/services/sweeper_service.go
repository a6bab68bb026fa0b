// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package services

import (
	"context"
	"fmt"
)

// StartStopper matches the sweeper.Sweeper lifecycle.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
}

// SweeperService adapts the cache sweeper's Start/Stop lifecycle to
// suture's Serve. Stop blocks until an in-flight pass finishes.
//
// The sweeper owns its ticker; this wrapper only ties its lifetime to the
// maintenance layer, so a panic or failed start restarts the sweeper without
// touching ingestion or the ops endpoint.
//
// Example usage:
//
//	sw := sweeper.New(layer.Cache, cfg.Cache.SweepInterval)
//	tree.AddMaintenanceService(services.NewSweeperService(sw))
type SweeperService struct {
	sweeper StartStopper
	name    string
}

// NewSweeperService wraps a sweeper.
func NewSweeperService(sweeper StartStopper) *SweeperService {
	return &SweeperService{sweeper: sweeper, name: "cache-sweeper"}
}

// Serve implements suture.Service.
//
// This method:
//  1. Starts the sweeper loop
//  2. Blocks until ctx is canceled
//  3. Stops the sweeper and waits for the current pass
func (s *SweeperService) Serve(ctx context.Context) error {
	if err := s.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("cache sweeper start failed: %w", err)
	}
	<-ctx.Done()
	s.sweeper.Stop()
	return ctx.Err()
}

// String implements fmt.Stringer for suture's event log.
func (s *SweeperService) String() string {
	return s.name
}
