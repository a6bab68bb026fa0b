// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

/*
Package backup copies the storage tree into timestamped backup directories
and restores it.

Layout:

	<backup dir>/
	└── backup-20260318-101500-1a2b3c4d/
	    ├── manifest.json      (files, sizes, SHA-256 checksums, timestamp)
	    ├── files/...          (plain copies, when not compressed)
	    ├── data.tar.gz        (the same tree, when compressed)
	    └── snapshots/<name>   (streamed snapshots, e.g. the Badger overflow tier)

Creation:
 1. Checkpoint every registered DuckDB store
 2. Walk the storage root, skipping the backup directory and excluded paths
 3. Copy or archive each file, hashing it on the way
 4. Stream each registered snapshot
 5. Write manifest.json last; a directory without one is not a backup

Restore:
 1. Extract archives into a staging directory
 2. Verify every file against the manifest before touching live data
 3. Remove stale DuckDB WAL files, then copy files into place
 4. Load snapshots
 5. Open each DuckDB store read-only and check its tables

Restore must run while the stores are closed.
*/
package backup
