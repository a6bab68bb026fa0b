// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package artifact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tomtom215/roomwise/internal/database"
	"github.com/tomtom215/roomwise/internal/logging"
	"github.com/tomtom215/roomwise/internal/metrics"
	"github.com/tomtom215/roomwise/internal/validation"
)

func specFor(c Category) (categorySpec, error) {
	spec, ok := categorySpecs[c]
	if !ok {
		return categorySpec{}, validation.Newf("Category", "%q is not an embedding category", c)
	}
	return spec, nil
}

// SaveEmbedding writes the vector file and upserts its metadata row. A
// previous file for the same entity is removed once the new row commits.
func (s *Store) SaveEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	start := time.Now()
	defer metrics.RecordDBOperation("artifact", "save_embedding", start)

	emb, err := s.saveEmbedding(ctx, req)
	metrics.RecordArtifactSave("embedding", err)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("category", string(req.Category)).
			Str("entity_id", req.EntityID).Msg("Failed to save embedding")
	}
	return emb, err
}

func (s *Store) saveEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := validation.Struct(&req); err != nil {
		return nil, err
	}
	spec, err := specFor(req.Category)
	if err != nil {
		return nil, err
	}

	encoded := encodeVector(req.Vector)
	hash := vectorHash(encoded)
	path := filepath.Join(s.opts.EmbeddingsDir, spec.dir, fmt.Sprintf("%s_%s.vec", req.EntityID, hash))

	if err := writeFileAtomic(path, encoded); err != nil {
		return nil, fmt.Errorf("failed to write embedding file: %w", err)
	}

	now := s.now()
	emb := &Embedding{
		Category:    req.Category,
		EntityID:    req.EntityID,
		Vector:      req.Vector,
		Dimensions:  len(req.Vector),
		ContentHash: hash,
		Version:     req.Version,
		FilePath:    path,
		SizeBytes:   int64(len(encoded)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var previous sql.NullString
	//nolint:gosec // table name comes from categorySpecs
	err = s.db.Tx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf("SELECT file_path FROM %s WHERE entity_id = ?", spec.table), req.EntityID,
		).Scan(&previous)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (entity_id, content_hash, dimensions, file_path, size_bytes, version, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (entity_id) DO UPDATE SET
				content_hash = excluded.content_hash,
				dimensions = excluded.dimensions,
				file_path = excluded.file_path,
				size_bytes = excluded.size_bytes,
				version = excluded.version,
				status = excluded.status,
				updated_at = excluded.updated_at`, spec.table),
			req.EntityID, hash, emb.Dimensions, path, emb.SizeBytes, req.Version, string(StatusActive), now, now)
		return err
	})
	if err != nil {
		// Keep the old file if the row still points at it.
		if !previous.Valid || previous.String != path {
			s.removeFile(path)
		}
		return nil, fmt.Errorf("failed to record embedding metadata: %w", err)
	}

	if previous.Valid && previous.String != path {
		s.removeFile(previous.String)
	}
	s.log.Debug().Str("category", string(req.Category)).Str("entity_id", req.EntityID).
		Str("hash", hash).Int("dims", emb.Dimensions).Msg("Embedding saved")
	return emb, nil
}

type embeddingRow struct {
	entityID string
	hash     string
	dims     int
	path     string
	size     int64
	version  string
	created  time.Time
	updated  time.Time
}

func (r *embeddingRow) scan(sc interface{ Scan(...any) error }) error {
	return sc.Scan(&r.entityID, &r.hash, &r.dims, &r.path, &r.size, &r.version, &r.created, &r.updated)
}

const embeddingColumns = "entity_id, content_hash, dimensions, file_path, size_bytes, version, created_at, updated_at"

// readEmbedding loads the file behind row and checks it against the stored
// hash and dimension count.
func (s *Store) readEmbedding(c Category, row embeddingRow) (*Embedding, error) {
	//nolint:gosec // path comes from our own metadata row
	buf, err := os.ReadFile(row.path)
	if err != nil {
		return nil, err
	}
	vec, err := decodeVector(buf)
	if err != nil {
		return nil, err
	}
	if len(vec) != row.dims {
		return nil, fmt.Errorf("dimension mismatch: file has %d, row has %d", len(vec), row.dims)
	}
	if got := vectorHash(buf); got != row.hash {
		return nil, fmt.Errorf("content hash mismatch: file %s, row %s", got, row.hash)
	}
	return &Embedding{
		Category:    c,
		EntityID:    row.entityID,
		Vector:      vec,
		Dimensions:  row.dims,
		ContentHash: row.hash,
		Version:     row.version,
		FilePath:    row.path,
		SizeBytes:   row.size,
		CreatedAt:   row.created,
		UpdatedAt:   row.updated,
	}, nil
}

// LoadEmbedding returns the active embedding for an entity. found is false
// when there is no active row or its file is missing or damaged.
func (s *Store) LoadEmbedding(ctx context.Context, c Category, entityID string) (*Embedding, bool, error) {
	spec, err := specFor(c)
	if err != nil {
		return nil, false, err
	}
	if entityID == "" {
		return nil, false, validation.Newf("EntityID", "is required")
	}

	var (
		row   embeddingRow
		found bool
	)
	err = s.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
		//nolint:gosec // table name comes from categorySpecs
		err := row.scan(q.QueryRowContext(ctx,
			fmt.Sprintf("SELECT %s FROM %s WHERE entity_id = ? AND status = ?", embeddingColumns, spec.table),
			entityID, string(StatusActive)))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("entity_id", entityID).Msg("Embedding lookup failed")
		metrics.RecordArtifactLoad("embedding", false)
		return nil, false, nil
	}
	if !found {
		metrics.RecordArtifactLoad("embedding", false)
		return nil, false, nil
	}

	emb, err := s.readEmbedding(c, row)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("entity_id", entityID).Str("path", row.path).
			Msg("Embedding file unreadable, treating as absent")
		metrics.RecordArtifactLoad("embedding", false)
		return nil, false, nil
	}
	metrics.RecordArtifactLoad("embedding", true)
	return emb, true, nil
}

// LoadAllEmbeddings returns every readable active embedding in a category,
// keyed by entity id. Unreadable files are skipped and logged.
func (s *Store) LoadAllEmbeddings(ctx context.Context, c Category) (map[string]*Embedding, error) {
	spec, err := specFor(c)
	if err != nil {
		return nil, err
	}

	var rows []embeddingRow
	err = s.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
		//nolint:gosec // table name comes from categorySpecs
		rs, err := q.QueryContext(ctx,
			fmt.Sprintf("SELECT %s FROM %s WHERE status = ? ORDER BY entity_id", embeddingColumns, spec.table),
			string(StatusActive))
		if err != nil {
			return err
		}
		defer rs.Close()
		for rs.Next() {
			var r embeddingRow
			if err := r.scan(rs); err != nil {
				return err
			}
			rows = append(rows, r)
		}
		return rs.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s embeddings: %w", c, err)
	}

	out := make(map[string]*Embedding, len(rows))
	for _, r := range rows {
		emb, err := s.readEmbedding(c, r)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("entity_id", r.entityID).Msg("Skipping unreadable embedding")
			continue
		}
		out[r.entityID] = emb
	}
	return out, nil
}

// DeleteEmbedding soft-deletes an entity's embedding and removes its file.
// It returns ErrNotFound if there is no active embedding.
func (s *Store) DeleteEmbedding(ctx context.Context, c Category, entityID string) error {
	spec, err := specFor(c)
	if err != nil {
		return err
	}

	var path sql.NullString
	//nolint:gosec // table name comes from categorySpecs
	err = s.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
		err := q.QueryRowContext(ctx, fmt.Sprintf(
			"UPDATE %s SET status = ?, updated_at = ? WHERE entity_id = ? AND status = ? RETURNING file_path", spec.table),
			string(StatusInactive), s.now(), entityID, string(StatusActive)).Scan(&path)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	if !path.Valid {
		return fmt.Errorf("%w: %s embedding %s", ErrNotFound, c, entityID)
	}
	s.removeFile(path.String)
	metrics.ArtifactsRemoved.WithLabelValues("embedding").Inc()
	return nil
}

// CleanupEmbeddings soft-deletes every active embedding not updated within
// maxAge and removes its file. It returns the number removed.
func (s *Store) CleanupEmbeddings(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, validation.Newf("maxAge", "must be positive, got %v", maxAge)
	}
	now := s.now()
	cutoff := now.Add(-maxAge)

	removed := 0
	for _, c := range Categories {
		spec := categorySpecs[c]
		var paths []string
		//nolint:gosec // table name comes from categorySpecs
		err := s.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
			rs, err := q.QueryContext(ctx, fmt.Sprintf(
				"UPDATE %s SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ? RETURNING file_path", spec.table),
				string(StatusInactive), now, string(StatusActive), cutoff)
			if err != nil {
				return err
			}
			defer rs.Close()
			for rs.Next() {
				var p string
				if err := rs.Scan(&p); err != nil {
					return err
				}
				paths = append(paths, p)
			}
			return rs.Err()
		})
		if err != nil {
			return removed, fmt.Errorf("failed to clean up %s embeddings: %w", c, err)
		}
		for _, p := range paths {
			s.removeFile(p)
		}
		removed += len(paths)
	}

	if removed > 0 {
		metrics.ArtifactsRemoved.WithLabelValues("embedding").Add(float64(removed))
		logging.Ctx(ctx).Info().Int("removed", removed).Dur("max_age", maxAge).Msg("Old embeddings cleaned up")
	}
	return removed, nil
}
