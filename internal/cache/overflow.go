// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/roomwise/internal/logging"
	"github.com/tomtom215/roomwise/internal/metrics"
)

// ErrPayloadNotFound is returned by an OverflowTier for an unknown key.
var ErrPayloadNotFound = errors.New("overflow payload not found")

// OverflowTier stores payloads too large to keep inline with their metadata.
// Implementations must be safe for concurrent use.
type OverflowTier interface {
	// Name identifies the backend ("badger", "file").
	Name() string

	// Put stores payload under key. ttl is the entry's TTL; backends may
	// use it to drop payloads orphaned by a crash.
	Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error

	// Get returns ErrPayloadNotFound when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Reclaim compacts backend storage.
	Reclaim(ctx context.Context) error

	// Size reports bytes used on disk.
	Size() (int64, error)

	Close() error
}

// newPayloadRef names the overflow object for one write of key. Every write
// gets a fresh ref, so removing the bytes of an older write never touches
// those of a newer one.
func newPayloadRef(key string) string {
	return key + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// BreakerConfig tunes the overflow circuit breaker.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultBreakerConfig opens after 5 consecutive failures and retries after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// breakerTier routes every call through a circuit breaker so a failing
// backend turns into fast put errors and cache misses.
type breakerTier struct {
	OverflowTier
	cb *gobreaker.CircuitBreaker[[]byte]
}

// WithBreaker wraps inner in a circuit breaker.
func WithBreaker(inner OverflowTier, cfg BreakerConfig) OverflowTier {
	settings := gobreaker.Settings{
		Name:        "overflow-" + inner.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrPayloadNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Overflow tier circuit breaker changed state")
			if to == gobreaker.StateOpen {
				metrics.OverflowBreakerOpen.Set(1)
			} else {
				metrics.OverflowBreakerOpen.Set(0)
			}
		},
	}
	return &breakerTier{
		OverflowTier: inner,
		cb:           gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

func (b *breakerTier) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, b.OverflowTier.Put(ctx, key, payload, ttl)
	})
	return wrapBreakerErr(err)
}

func (b *breakerTier) Get(ctx context.Context, key string) ([]byte, error) {
	payload, err := b.cb.Execute(func() ([]byte, error) {
		return b.OverflowTier.Get(ctx, key)
	})
	return payload, wrapBreakerErr(err)
}

func (b *breakerTier) Delete(ctx context.Context, key string) error {
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, b.OverflowTier.Delete(ctx, key)
	})
	return wrapBreakerErr(err)
}

// Open reports whether the breaker is currently rejecting calls.
func (b *breakerTier) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

func wrapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("overflow tier unavailable: %w", err)
	}
	return err
}

// breakerOpen reports the breaker state of t, or false if t has no breaker.
func breakerOpen(t OverflowTier) bool {
	if o, ok := t.(interface{ Open() bool }); ok {
		return o.Open()
	}
	return false
}
