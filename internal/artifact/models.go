// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package artifact

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/roomwise/internal/codec"
	"github.com/tomtom215/roomwise/internal/database"
	"github.com/tomtom215/roomwise/internal/logging"
	"github.com/tomtom215/roomwise/internal/metrics"
	"github.com/tomtom215/roomwise/internal/validation"
)

const modelIDTimeFormat = "20060102T150405.000000"

// SaveModel encodes req.Model, writes it under the models directory and
// marks it as the latest version of its type. It returns the generated
// model id, built from type, version and save time.
func (s *Store) SaveModel(ctx context.Context, req ModelRequest) (string, error) {
	start := time.Now()
	defer metrics.RecordDBOperation("artifact", "save_model", start)

	id, err := s.saveModel(ctx, req)
	metrics.RecordArtifactSave("model", err)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("model_type", req.Type).Str("version", req.Version).
			Msg("Failed to save model")
	}
	return id, err
}

func (s *Store) saveModel(ctx context.Context, req ModelRequest) (string, error) {
	if err := validation.Struct(&req); err != nil {
		return "", err
	}

	payload, _, err := codec.Compress(req.Model)
	if err != nil {
		return "", validation.Newf("Model", "cannot be encoded: %v", err)
	}
	hyper, err := marshalOptional(req.Hyperparameters)
	if err != nil {
		return "", validation.Newf("Hyperparameters", "must be JSON-serializable: %v", err)
	}
	perf, err := marshalOptional(req.Metrics)
	if err != nil {
		return "", validation.Newf("Metrics", "must be JSON-serializable: %v", err)
	}

	now := s.now()
	id := fmt.Sprintf("%s_%s_%s", req.Type, req.Version, now.Format(modelIDTimeFormat))
	path := filepath.Join(s.opts.ModelsDir, req.Type, id+".gob.gz")
	sum := sha256.Sum256(payload)
	checksum := hex.EncodeToString(sum[:])

	if err := writeFileAtomic(path, payload); err != nil {
		return "", fmt.Errorf("failed to write model file: %w", err)
	}

	var replaced sql.NullString
	err = s.db.Tx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO model_metadata (model_id, model_type, version, file_path, size_bytes, checksum,
			                            format, hyperparameters, metrics, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, req.Type, req.Version, path, int64(len(payload)), checksum,
			ModelFormat, hyper, perf, string(StatusActive), now, now); err != nil {
			return fmt.Errorf("insert model metadata: %w", err)
		}

		// Re-saving a version supersedes the model that held it.
		err := tx.QueryRowContext(ctx,
			"SELECT model_id FROM model_versions WHERE model_type = ? AND version = ?",
			req.Type, req.Version).Scan(&replaced)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read version index: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO model_versions (model_type, version, model_id, is_latest, created_at)
			VALUES (?, ?, ?, true, ?)
			ON CONFLICT (model_type, version) DO UPDATE SET
				model_id = excluded.model_id,
				is_latest = true,
				created_at = excluded.created_at`,
			req.Type, req.Version, id, now); err != nil {
			return fmt.Errorf("update version index: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE model_versions SET is_latest = false WHERE model_type = ? AND version <> ? AND is_latest",
			req.Type, req.Version); err != nil {
			return fmt.Errorf("clear previous latest: %w", err)
		}

		if replaced.Valid && replaced.String != id {
			if _, err := tx.ExecContext(ctx,
				"UPDATE model_metadata SET status = ?, updated_at = ? WHERE model_id = ?",
				string(StatusInactive), now, replaced.String); err != nil {
				return fmt.Errorf("retire superseded model: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.removeFile(path)
		return "", err
	}

	if replaced.Valid && replaced.String != id {
		if old, ok := s.modelPath(ctx, replaced.String); ok {
			s.removeFile(old)
		}
	}

	s.log.Info().Str("model_id", id).Str("model_type", req.Type).Str("version", req.Version).
		Int("size", len(payload)).Msg("Model saved")
	return id, nil
}

func marshalOptional(v interface{}) (interface{}, error) {
	switch m := v.(type) {
	case map[string]interface{}:
		if len(m) == 0 {
			return nil, nil
		}
	case map[string]float64:
		if len(m) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *Store) modelPath(ctx context.Context, id string) (string, bool) {
	var path string
	err := s.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
		return q.QueryRowContext(ctx, "SELECT file_path FROM model_metadata WHERE model_id = ?", id).Scan(&path)
	})
	return path, err == nil
}

const modelColumns = `
	m.model_id, m.model_type, m.version, m.file_path, m.size_bytes, m.checksum, m.format,
	m.hyperparameters, m.metrics, m.status, COALESCE(v.is_latest AND v.model_id = m.model_id, false), m.created_at`

const modelFrom = `
	FROM model_metadata m
	LEFT JOIN model_versions v ON v.model_type = m.model_type AND v.version = m.version`

func scanModelInfo(sc interface{ Scan(...any) error }) (ModelInfo, error) {
	var (
		info        ModelInfo
		status      string
		hyper, perf sql.NullString
	)
	err := sc.Scan(&info.ID, &info.Type, &info.Version, &info.FilePath, &info.SizeBytes, &info.Checksum,
		&info.Format, &hyper, &perf, &status, &info.IsLatest, &info.CreatedAt)
	if err != nil {
		return info, err
	}
	info.Status = Status(status)
	if hyper.Valid {
		if err := json.Unmarshal([]byte(hyper.String), &info.Hyperparameters); err != nil {
			return info, fmt.Errorf("decode hyperparameters of %s: %w", info.ID, err)
		}
	}
	if perf.Valid {
		if err := json.Unmarshal([]byte(perf.String), &info.Metrics); err != nil {
			return info, fmt.Errorf("decode metrics of %s: %w", info.ID, err)
		}
	}
	return info, nil
}

// LoadModel returns an active model by id. found is false for an unknown
// or inactive id, a missing or damaged file, or an unknown format.
func (s *Store) LoadModel(ctx context.Context, id string) (*Model, bool, error) {
	if id == "" {
		return nil, false, validation.Newf("ModelID", "is required")
	}
	return s.loadOne(ctx, "WHERE m.model_id = ? AND m.status = ?", id, string(StatusActive))
}

// LoadLatestModel returns the model flagged latest for modelType. Ties
// between flagged rows go to the most recently created.
func (s *Store) LoadLatestModel(ctx context.Context, modelType string) (*Model, bool, error) {
	if modelType == "" {
		return nil, false, validation.Newf("ModelType", "is required")
	}
	return s.loadOne(ctx,
		"WHERE m.model_type = ? AND m.status = ? AND v.is_latest AND v.model_id = m.model_id ORDER BY m.created_at DESC LIMIT 1",
		modelType, string(StatusActive))
}

func (s *Store) loadOne(ctx context.Context, where string, args ...any) (*Model, bool, error) {
	var (
		info  ModelInfo
		found bool
	)
	err := s.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
		var err error
		info, err = scanModelInfo(q.QueryRowContext(ctx, "SELECT "+modelColumns+modelFrom+" "+where, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Model lookup failed")
		metrics.RecordArtifactLoad("model", false)
		return nil, false, nil
	}
	if !found {
		metrics.RecordArtifactLoad("model", false)
		return nil, false, nil
	}

	value, err := s.readModel(info)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("model_id", info.ID).Str("path", info.FilePath).
			Msg("Model file unreadable, treating as absent")
		metrics.RecordArtifactLoad("model", false)
		return nil, false, nil
	}
	metrics.RecordArtifactLoad("model", true)
	return &Model{Info: info, Value: value}, true, nil
}

func (s *Store) readModel(info ModelInfo) (interface{}, error) {
	if info.Format != ModelFormat {
		return nil, fmt.Errorf("unsupported model format %q", info.Format)
	}
	//nolint:gosec // path comes from our own metadata row
	payload, err := os.ReadFile(info.FilePath)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(payload)
	if hex.EncodeToString(sum[:]) != info.Checksum {
		return nil, fmt.Errorf("checksum mismatch for %s", info.ID)
	}
	return codec.Decompress(payload)
}

// ListModels returns model metadata, newest first. An empty modelType
// lists every type. Inactive models are included only if withInactive.
func (s *Store) ListModels(ctx context.Context, modelType string, withInactive bool) ([]ModelInfo, error) {
	query := "SELECT " + modelColumns + modelFrom + " WHERE (? = '' OR m.model_type = ?)"
	args := []any{modelType, modelType}
	if !withInactive {
		query += " AND m.status = ?"
		args = append(args, string(StatusActive))
	}
	query += " ORDER BY m.model_type, m.created_at DESC"

	var out []ModelInfo
	err := s.db.Do(ctx, func(ctx context.Context, q database.Querier) error {
		rs, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rs.Close()
		for rs.Next() {
			info, err := scanModelInfo(rs)
			if err != nil {
				return err
			}
			out = append(out, info)
		}
		return rs.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return out, nil
}

// DeleteModel soft-deletes a model and removes its file. If it was the
// latest of its type, the newest remaining active model takes the flag.
func (s *Store) DeleteModel(ctx context.Context, id string) error {
	var (
		path      sql.NullString
		modelType string
	)
	err := s.db.Tx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"UPDATE model_metadata SET status = ?, updated_at = ? WHERE model_id = ? AND status = ? RETURNING file_path, model_type",
			string(StatusInactive), s.now(), id, string(StatusActive)).Scan(&path, &modelType)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		return repointLatest(ctx, tx, modelType)
	})
	if err != nil {
		return fmt.Errorf("failed to delete model %s: %w", id, err)
	}
	if !path.Valid {
		return fmt.Errorf("%w: model %s", ErrNotFound, id)
	}
	s.removeFile(path.String)
	metrics.ArtifactsRemoved.WithLabelValues("model").Inc()
	return nil
}

// repointLatest makes sure modelType has exactly one latest flag, on its
// newest active model, if the current flag points at an inactive one.
func repointLatest(ctx context.Context, tx *sql.Tx, modelType string) error {
	var healthy int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM model_versions v
		JOIN model_metadata m ON m.model_id = v.model_id
		WHERE v.model_type = ? AND v.is_latest AND m.status = ?`,
		modelType, string(StatusActive)).Scan(&healthy); err != nil {
		return err
	}
	if healthy == 1 {
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE model_versions SET is_latest = false WHERE model_type = ? AND is_latest", modelType); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE model_versions SET is_latest = true
		WHERE model_type = ? AND model_id = (
			SELECT m.model_id FROM model_metadata m
			JOIN model_versions v ON v.model_id = m.model_id
			WHERE m.model_type = ? AND m.status = ?
			ORDER BY m.created_at DESC LIMIT 1
		)`, modelType, modelType, string(StatusActive))
	return err
}

// CleanupOldModels keeps the keepLatest most recently created active
// models of each type regardless of age, and soft-deletes the rest if they
// are older than maxAge. It returns the number removed.
func (s *Store) CleanupOldModels(ctx context.Context, maxAge time.Duration, keepLatest int) (int, error) {
	if maxAge <= 0 {
		return 0, validation.Newf("maxAge", "must be positive, got %v", maxAge)
	}
	if keepLatest < 0 {
		return 0, validation.Newf("keepLatest", "must not be negative, got %d", keepLatest)
	}
	now := s.now()
	cutoff := now.Add(-maxAge)

	var paths []string
	err := s.db.Tx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rs, err := tx.QueryContext(ctx, `
			UPDATE model_metadata SET status = ?, updated_at = ?
			WHERE model_id IN (
				SELECT model_id FROM (
					SELECT model_id, created_at,
					       ROW_NUMBER() OVER (PARTITION BY model_type ORDER BY created_at DESC) AS rn
					FROM model_metadata WHERE status = ?
				) WHERE rn > ? AND created_at < ?
			)
			RETURNING file_path, model_type`,
			string(StatusInactive), now, string(StatusActive), keepLatest, cutoff)
		if err != nil {
			return err
		}
		types := make(map[string]bool)
		for rs.Next() {
			var p, t string
			if err := rs.Scan(&p, &t); err != nil {
				rs.Close()
				return err
			}
			paths = append(paths, p)
			types[t] = true
		}
		if err := rs.Close(); err != nil {
			return err
		}
		if err := rs.Err(); err != nil {
			return err
		}
		for t := range types {
			if err := repointLatest(ctx, tx, t); err != nil {
				return fmt.Errorf("repoint latest %s: %w", t, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clean up models: %w", err)
	}

	for _, p := range paths {
		s.removeFile(p)
	}
	if len(paths) > 0 {
		metrics.ArtifactsRemoved.WithLabelValues("model").Add(float64(len(paths)))
		logging.Ctx(ctx).Info().Int("removed", len(paths)).Int("keep_latest", keepLatest).
			Dur("max_age", maxAge).Msg("Old models cleaned up")
	}
	return len(paths), nil
}
