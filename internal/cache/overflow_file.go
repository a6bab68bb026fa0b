// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/tomtom215/roomwise/internal/codec"
	"github.com/tomtom215/roomwise/internal/logging"
)

const (
	payloadExt     = ".bin"
	tempSuffix     = ".tmp"
	checksumSize   = 8
	staleTempAfter = time.Hour
)

// overflowRefPattern matches a cache key with an optional write suffix.
var overflowRefPattern = regexp.MustCompile(`^[0-9a-f]{64}(-[0-9a-f]{16})?$`)

// FileTier stores each overflow payload as its own file under root,
// sharded by the first two hex characters of the key. Every file starts
// with an 8-byte xxhash of the payload that follows it.
type FileTier struct {
	root string
}

// OpenFileTier creates root if needed.
func OpenFileTier(root string) (*FileTier, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create overflow directory %s: %w", root, err)
	}
	logging.Info().Str("path", root).Msg("Overflow tier opened (file)")
	return &FileTier{root: root}, nil
}

func (f *FileTier) Name() string { return "file" }

func (f *FileTier) path(key string) (string, error) {
	if !overflowRefPattern.MatchString(key) {
		return "", fmt.Errorf("invalid overflow key %q", key)
	}
	return filepath.Join(f.root, key[:2], key+payloadExt), nil
}

func (f *FileTier) Put(ctx context.Context, key string, payload []byte, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create shard directory: %w", err)
	}

	buf := make([]byte, checksumSize+len(payload))
	binary.LittleEndian.PutUint64(buf, xxhash.Sum64(payload))
	copy(buf[checksumSize:], payload)

	// Concurrent writers of one key each get their own temp file.
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("create overflow temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write overflow payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write overflow payload: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("commit overflow payload: %w", err)
	}
	return nil
}

func (f *FileTier) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := f.path(key)
	if err != nil {
		return nil, err
	}
	//nolint:gosec // path is built from a validated hex key
	buf, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrPayloadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read overflow payload: %w", err)
	}
	if len(buf) < checksumSize {
		return nil, fmt.Errorf("%w: overflow file %s is truncated", codec.ErrCorruptPayload, filepath.Base(path))
	}
	payload := buf[checksumSize:]
	if binary.LittleEndian.Uint64(buf) != xxhash.Sum64(payload) {
		return nil, fmt.Errorf("%w: checksum mismatch in %s", codec.ErrCorruptPayload, filepath.Base(path))
	}
	return payload, nil
}

func (f *FileTier) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete overflow payload: %w", err)
	}
	return nil
}

// Reclaim removes abandoned temp files and empty shard directories.
func (f *FileTier) Reclaim(ctx context.Context) error {
	shards, err := os.ReadDir(f.root)
	if err != nil {
		return fmt.Errorf("list overflow shards: %w", err)
	}
	cutoff := time.Now().Add(-staleTempAfter)

	for _, shard := range shards {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !shard.IsDir() {
			continue
		}
		dir := filepath.Join(f.root, shard.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			logging.Warn().Err(err).Str("dir", dir).Msg("Failed to list overflow shard")
			continue
		}
		remaining := len(files)
		for _, file := range files {
			if !strings.HasSuffix(file.Name(), tempSuffix) {
				continue
			}
			info, err := file.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, file.Name())); err == nil {
				remaining--
			}
		}
		if remaining == 0 {
			_ = os.Remove(dir)
		}
	}
	return nil
}

func (f *FileTier) Size() (int64, error) {
	var total int64
	err := filepath.WalkDir(f.root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("measure overflow directory: %w", err)
	}
	return total, nil
}

func (f *FileTier) Close() error { return nil }
