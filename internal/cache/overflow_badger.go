// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/tomtom215/roomwise/internal/logging"
)

const badgerKeyPrefix = "payload:"

// orphanGrace keeps a payload around a little longer than its entry so the
// sweeper, not Badger, decides when it goes.
const orphanGrace = time.Hour

// BadgerTier stores overflow payloads in an embedded BadgerDB.
type BadgerTier struct {
	db      *badger.DB
	gcRatio float64

	mu     sync.RWMutex
	closed bool
}

// OpenBadgerTier opens (creating if needed) a BadgerDB at path.
func OpenBadgerTier(path string, gcRatio float64) (*BadgerTier, error) {
	opts := badger.DefaultOptions(path)
	opts.Compression = options.Snappy
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB overflow tier: %w", err)
	}
	if gcRatio <= 0 || gcRatio >= 1 {
		gcRatio = 0.5
	}

	logging.Info().Str("path", path).Msg("Overflow tier opened (badger)")
	return &BadgerTier{db: db, gcRatio: gcRatio}, nil
}

func (b *BadgerTier) Name() string { return "badger" }

func (b *BadgerTier) checkOpen() error {
	if b.closed {
		return fmt.Errorf("badger overflow tier is closed")
	}
	return nil
}

func (b *BadgerTier) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(badgerKeyPrefix+key), payload).WithTTL(ttl + orphanGrace)
		return txn.SetEntry(e)
	})
}

func (b *BadgerTier) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var payload []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + key))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrPayloadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read overflow payload: %w", err)
	}
	return payload, nil
}

func (b *BadgerTier) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(badgerKeyPrefix + key))
	})
}

// Reclaim runs value log GC until Badger reports nothing left to rewrite.
func (b *BadgerTier) Reclaim(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen(); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := b.db.RunValueLogGC(b.gcRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run value log GC: %w", err)
		}
	}
}

func (b *BadgerTier) Size() (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	lsm, vlog := b.db.Size()
	return lsm + vlog, nil
}

// Snapshot streams every live payload to w in Badger's backup format.
func (b *BadgerTier) Snapshot(w io.Writer) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen(); err != nil {
		return err
	}
	if _, err := b.db.Backup(w, 0); err != nil {
		return fmt.Errorf("snapshot overflow tier: %w", err)
	}
	return nil
}

// LoadBadgerSnapshot replaces the BadgerDB at path with the contents of a
// Snapshot stream. The tier at path must not be open.
func LoadBadgerSnapshot(path string, r io.Reader) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("clear overflow tier: %w", err)
	}
	opts := badger.DefaultOptions(path)
	opts.Compression = options.Snappy
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open BadgerDB for restore: %w", err)
	}
	if err := db.Load(r, 256); err != nil {
		db.Close() //nolint:errcheck // already failing
		return fmt.Errorf("load overflow snapshot: %w", err)
	}
	return db.Close()
}

func (b *BadgerTier) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}
