// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

/*
Package services provides suture.Service wrappers for Roomwise components.

Each wrapper translates a component lifecycle into suture's context-aware
Serve and names the service through fmt.Stringer:

  - HTTPServerService: ListenAndServe with graceful Shutdown
  - SweeperService: sweeper.Sweeper Start/Stop
  - PeriodicService: a ticker-driven Job, used for retention cleanup
    (NewRetentionService) and scheduled backups (NewBackupService)
  - IngestService: the analytics event consumer

Returning an error from Serve asks the supervisor to restart the service
after its backoff. Returning ctx.Err() after cancellation is a clean stop.
*/
package services
