// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package artifact

import "fmt"

const embeddingTableDDL = `
CREATE TABLE IF NOT EXISTS %s (
	entity_id    VARCHAR PRIMARY KEY,
	content_hash VARCHAR NOT NULL,
	dimensions   INTEGER NOT NULL,
	file_path    VARCHAR NOT NULL,
	size_bytes   BIGINT NOT NULL,
	version      VARCHAR NOT NULL DEFAULT '',
	status       VARCHAR NOT NULL DEFAULT 'active',
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);
`

const modelDDL = `
CREATE TABLE IF NOT EXISTS model_metadata (
	model_id        VARCHAR PRIMARY KEY,
	model_type      VARCHAR NOT NULL,
	version         VARCHAR NOT NULL,
	file_path       VARCHAR NOT NULL,
	size_bytes      BIGINT NOT NULL,
	checksum        VARCHAR NOT NULL,
	format          VARCHAR NOT NULL,
	hyperparameters VARCHAR,
	metrics         VARCHAR,
	status          VARCHAR NOT NULL DEFAULT 'active',
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS model_versions (
	model_type VARCHAR NOT NULL,
	version    VARCHAR NOT NULL,
	model_id   VARCHAR NOT NULL,
	is_latest  BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (model_type, version)
);
`

func schema() string {
	ddl := ""
	for _, c := range Categories {
		ddl += fmt.Sprintf(embeddingTableDDL, categorySpecs[c].table)
	}
	return ddl + modelDDL
}

// Tables lists the tables a restored artifact store must contain.
var Tables = []string{
	"room_embeddings", "user_embeddings", "booking_embeddings",
	"model_metadata", "model_versions",
}
