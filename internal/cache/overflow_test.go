// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package cache

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/roomwise/internal/codec"
)

var testKey = strings.Repeat("ab", 32)

func openTiers(t *testing.T) map[string]OverflowTier {
	t.Helper()
	bt, err := OpenBadgerTier(filepath.Join(t.TempDir(), "badger"), 0.5)
	if err != nil {
		t.Fatalf("OpenBadgerTier() error = %v", err)
	}
	ft, err := OpenFileTier(filepath.Join(t.TempDir(), "files"))
	if err != nil {
		t.Fatalf("OpenFileTier() error = %v", err)
	}
	t.Cleanup(func() {
		bt.Close()
		ft.Close()
	})
	return map[string]OverflowTier{"badger": bt, "file": ft}
}

func TestOverflowTiers(t *testing.T) {
	ctx := context.Background()
	payload := bytes.Repeat([]byte("roomwise"), 4096)

	for name, tier := range openTiers(t) {
		t.Run(name, func(t *testing.T) {
			if tier.Name() != name {
				t.Errorf("Name() = %q, want %q", tier.Name(), name)
			}

			if _, err := tier.Get(ctx, testKey); !errors.Is(err, ErrPayloadNotFound) {
				t.Fatalf("Get() on empty tier error = %v, want ErrPayloadNotFound", err)
			}

			if err := tier.Put(ctx, testKey, payload, time.Hour); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			got, err := tier.Get(ctx, testKey)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("Get() returned %d bytes, want %d", len(got), len(payload))
			}

			if err := tier.Delete(ctx, testKey); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if err := tier.Delete(ctx, testKey); err != nil {
				t.Errorf("second Delete() error = %v, want nil", err)
			}
			if _, err := tier.Get(ctx, testKey); !errors.Is(err, ErrPayloadNotFound) {
				t.Errorf("Get() after Delete error = %v, want ErrPayloadNotFound", err)
			}

			if err := tier.Reclaim(ctx); err != nil {
				t.Errorf("Reclaim() error = %v", err)
			}
			if _, err := tier.Size(); err != nil {
				t.Errorf("Size() error = %v", err)
			}
		})
	}
}

func TestFileTierDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	ft, err := OpenFileTier(root)
	if err != nil {
		t.Fatalf("OpenFileTier() error = %v", err)
	}
	if err := ft.Put(ctx, testKey, []byte("payload bytes"), time.Hour); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	path := filepath.Join(root, testKey[:2], testKey+payloadExt)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := ft.Get(ctx, testKey); !errors.Is(err, codec.ErrCorruptPayload) {
		t.Errorf("Get() error = %v, want ErrCorruptPayload", err)
	}
}

func TestFileTierRejectsBadKeys(t *testing.T) {
	ft, err := OpenFileTier(t.TempDir())
	if err != nil {
		t.Fatalf("OpenFileTier() error = %v", err)
	}
	for _, key := range []string{"", "../../etc/passwd", strings.Repeat("zz", 32), testKey[:10], testKey + "-0123", testKey + "-" + strings.Repeat("g", 16)} {
		if err := ft.Put(context.Background(), key, []byte("x"), time.Hour); err == nil {
			t.Errorf("Put(%q) succeeded, want error", key)
		}
	}
}

func TestFileTierConcurrentPutsOfOneKey(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	ft, err := OpenFileTier(root)
	if err != nil {
		t.Fatalf("OpenFileTier() error = %v", err)
	}
	ref := testKey + "-" + strings.Repeat("0f", 8)

	const writers = 16
	payloads := make([][]byte, writers)
	for i := range payloads {
		payloads[i] = bytes.Repeat([]byte{byte('a' + i)}, 64*1024)
	}

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(p []byte) {
			defer wg.Done()
			errs <- ft.Put(ctx, ref, p, time.Hour)
		}(payloads[i])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Put() error = %v", err)
		}
	}

	got, err := ft.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	whole := false
	for _, p := range payloads {
		if bytes.Equal(got, p) {
			whole = true
			break
		}
	}
	if !whole {
		t.Error("Get() returned bytes that match none of the written payloads")
	}

	leftovers, err := filepath.Glob(filepath.Join(root, testKey[:2], "*"+tempSuffix))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestFileTierReclaimRemovesStaleTemp(t *testing.T) {
	root := t.TempDir()
	ft, err := OpenFileTier(root)
	if err != nil {
		t.Fatalf("OpenFileTier() error = %v", err)
	}
	shard := filepath.Join(root, "cd")
	if err := os.MkdirAll(shard, 0o750); err != nil {
		t.Fatal(err)
	}
	tmp := filepath.Join(shard, strings.Repeat("cd", 32)+payloadExt+tempSuffix)
	if err := os.WriteFile(tmp, []byte("partial"), 0o600); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * staleTempAfter)
	if err := os.Chtimes(tmp, old, old); err != nil {
		t.Fatal(err)
	}

	if err := ft.Reclaim(context.Background()); err != nil {
		t.Fatalf("Reclaim() error = %v", err)
	}
	if _, err := os.Stat(shard); !os.IsNotExist(err) {
		t.Errorf("empty shard directory still present: %v", err)
	}
}

type failingTier struct {
	FileTier
	calls int
}

func (f *failingTier) Get(context.Context, string) ([]byte, error) {
	f.calls++
	return nil, errors.New("disk on fire")
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	inner := &failingTier{}
	tier := WithBreaker(inner, BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 3})

	for i := 0; i < 3; i++ {
		if _, err := tier.Get(context.Background(), testKey); err == nil {
			t.Fatalf("Get() #%d succeeded, want error", i)
		}
	}
	if !breakerOpen(tier) {
		t.Fatal("breaker should be open after 3 failures")
	}

	_, err := tier.Get(context.Background(), testKey)
	if err == nil || !strings.Contains(err.Error(), "unavailable") {
		t.Errorf("Get() with open breaker error = %v, want unavailable", err)
	}
	if inner.calls != 3 {
		t.Errorf("inner calls = %d, want 3", inner.calls)
	}
}

func TestBreakerIgnoresNotFound(t *testing.T) {
	ft, err := OpenFileTier(t.TempDir())
	if err != nil {
		t.Fatalf("OpenFileTier() error = %v", err)
	}
	tier := WithBreaker(ft, BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 1})
	for i := 0; i < 5; i++ {
		if _, err := tier.Get(context.Background(), testKey); !errors.Is(err, ErrPayloadNotFound) {
			t.Fatalf("Get() error = %v, want ErrPayloadNotFound", err)
		}
	}
	if breakerOpen(tier) {
		t.Error("breaker opened on not-found results")
	}
}

func TestBadgerSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "badger")
	bt, err := OpenBadgerTier(src, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte("overflowed payload")
	if err := bt.Put(ctx, testKey, payload, time.Hour); err != nil {
		t.Fatal(err)
	}

	var snap bytes.Buffer
	if err := bt.Snapshot(&snap); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	bt.Close()

	dst := filepath.Join(t.TempDir(), "restored")
	if err := LoadBadgerSnapshot(dst, &snap); err != nil {
		t.Fatalf("LoadBadgerSnapshot() error = %v", err)
	}
	restored, err := OpenBadgerTier(dst, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	defer restored.Close()

	got, err := restored.Get(ctx, testKey)
	if err != nil || !bytes.Equal(got, payload) {
		t.Errorf("Get() after restore = (%q, %v)", got, err)
	}
}
