// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPServer is the part of *http.Server the service drives.
//
// Keeping it an interface lets tests substitute a fake server that never
// binds a port.
//
// Satisfied by *http.Server from net/http:
//   - ListenAndServe() error
//   - Shutdown(ctx context.Context) error
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService runs the ops endpoint (metrics, health checks, stats)
// under supervision.
//
// The wrapper bridges the blocking ListenAndServe call and suture's
// context-driven Serve:
//
//  1. ListenAndServe runs in its own goroutine
//  2. Serve waits for ctx cancellation or a server error
//  3. On cancellation the server gets shutdownTimeout to drain
//
// A bind failure (port already taken) returns an error, so suture restarts
// the service with backoff inside the ops layer while the maintenance and
// ingest layers keep running.
//
// Example usage:
//
//	server := ops.NewServer(cfg.Metrics.Addr, ops.NewHandler(deps))
//	svc := services.NewHTTPServerService(server, cfg.Supervisor.ShutdownTimeout)
//	tree.AddOpsService(svc)
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
	name            string
}

// NewHTTPServerService creates the service wrapper.
//
// shutdownTimeout bounds how long in-flight scrapes and health checks may run
// after shutdown begins. A non-positive value means 10 seconds.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		name:            "http-server",
	}
}

// Serve implements suture.Service.
//
// It returns ctx.Err() after a graceful shutdown, or a wrapped error when
// the server fails to start or shut down. http.ErrServerClosed is expected
// during shutdown and is not reported.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	// ListenAndServe blocks until the server stops.
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		// Bind failure or crash.
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		// Closed by someone other than this service.
		return nil

	case <-ctx.Done():
		// ctx is already canceled; shutdown gets its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}

		// Wait for the ListenAndServe goroutine to exit.
		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer. Suture uses it to name the service in
// its event log.
func (h *HTTPServerService) String() string {
	return h.name
}
