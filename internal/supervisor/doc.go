// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

/*
Package supervisor runs the long-lived Roomwise background work under a
suture v4 supervision tree.

# Tree Layout

	roomwise (root)
	├── maintenance-layer
	│   ├── cache-sweeper
	│   ├── retention-cleanup
	│   └── scheduled-backup (when backup.interval > 0)
	├── ingest-layer
	│   └── analytics-ingest
	└── ops-layer
	    └── http-server (when metrics.enabled)

Each layer is its own supervisor, so restart backoff in one layer does not
stall the others. Supervisor events are logged through sutureslog into the
zerolog-backed slog handler from the logging package.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(),
		supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		return err
	}
	tree.AddMaintenanceService(services.NewSweeperService(sw))
	tree.AddIngestService(services.NewIngestService(ingestor))
	tree.AddOpsService(services.NewHTTPServerService(srv, cfg.Supervisor.ShutdownTimeout))
	return tree.Serve(ctx)

Wrappers for the individual components live in the services subpackage.
*/
package supervisor
