package valkey_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/MahdiBaghbani/teamverify-go/internal/platform/cache"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/cache/valkey"
)

func newCache(t *testing.T, s *miniredis.Miniredis, lockWait time.Duration) *valkey.Cache {
	t.Helper()
	c, err := valkey.New(&valkey.Config{
		Addr:        s.Addr(),
		DialTimeout: time.Second,
		LockWait:    lockWait,
	}, nil)
	if err != nil {
		t.Fatalf("failed to create valkey cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_FailFastUnreachable(t *testing.T) {
	_, err := valkey.New(&valkey.Config{
		Addr:        "localhost:59999",
		DialTimeout: 100 * time.Millisecond,
	}, nil)
	if err == nil {
		t.Fatal("expected error when connecting to an unreachable server")
	}
}

func TestDefaultConfig(t *testing.T) {
	var cfg valkey.Config
	cfg.ApplyDefaults()

	if cfg.Addr != "localhost:6379" {
		t.Errorf("expected default addr localhost:6379, got %s", cfg.Addr)
	}
	if cfg.KeyPrefix != "teamverify:" {
		t.Errorf("expected default key prefix, got %q", cfg.KeyPrefix)
	}
	if cfg.LockWait <= 0 || cfg.LockRetryMax <= 0 {
		t.Errorf("expected positive lock timings, got %v / %v", cfg.LockWait, cfg.LockRetryMax)
	}
}

func TestIncrement_WindowAndCount(t *testing.T) {
	s := miniredis.RunT(t)
	c := newCache(t, s, time.Second)
	ctx := context.Background()

	ttl := 30 * time.Second
	now := time.Now()

	for i := int64(1); i <= 3; i++ {
		count, resetAt, err := c.Increment(ctx, "ip:1.2.3.4", 1, ttl)
		if err != nil {
			t.Fatalf("Increment %d failed: %v", i, err)
		}
		if count != i {
			t.Errorf("expected count %d, got %d", i, count)
		}
		expected := now.Add(ttl)
		if resetAt.Before(expected.Add(-2*time.Second)) || resetAt.After(expected.Add(2*time.Second)) {
			t.Errorf("resetAt %v not within 2s of %v", resetAt, expected)
		}
	}

	if !s.Exists("teamverify:ip:1.2.3.4") {
		t.Error("expected prefixed key in server")
	}

	s.FastForward(31 * time.Second)
	count, _, err := c.Increment(ctx, "ip:1.2.3.4", 1, ttl)
	if err != nil {
		t.Fatalf("Increment after window failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected fresh window, got %d", count)
	}
}

func TestAcquire_ExclusiveAndReleasable(t *testing.T) {
	s := miniredis.RunT(t)
	c := newCache(t, s, 50*time.Millisecond)
	ctx := context.Background()

	release, err := c.Acquire(ctx, "team:1", 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if _, err := c.Acquire(ctx, "team:1", 10*time.Second); !errors.Is(err, cache.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout while held, got %v", err)
	}

	release()
	release()

	again, err := c.Acquire(ctx, "team:1", 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	again()
}

func TestAcquire_TTLExpiry(t *testing.T) {
	s := miniredis.RunT(t)
	c := newCache(t, s, 50*time.Millisecond)
	ctx := context.Background()

	stale, err := c.Acquire(ctx, "team:2", time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	s.FastForward(2 * time.Second)

	fresh, err := c.Acquire(ctx, "team:2", 10*time.Second)
	if err != nil {
		t.Fatalf("expected lock to be free after ttl: %v", err)
	}

	// The stale holder must not release the new owner's lock.
	stale()
	if !s.Exists("teamverify:lock:team:2") {
		t.Error("stale release removed a lock it no longer owned")
	}
	fresh()
	if s.Exists("teamverify:lock:team:2") {
		t.Error("owner release should delete the key")
	}
}

func TestAcquire_Contention(t *testing.T) {
	s := miniredis.RunT(t)
	c := newCache(t, s, 5*time.Second)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		counter int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := c.Acquire(ctx, "team:3", 10*time.Second)
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			mu.Lock()
			v := counter
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			counter = v + 1
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if counter != 10 {
		t.Errorf("lost updates under lock: counter = %d, want 10", counter)
	}
}

func TestRegisteredDriver(t *testing.T) {
	s := miniredis.RunT(t)
	store, err := cache.New("valkey", map[string]any{
		"addr":         s.Addr(),
		"dial_timeout": "1s",
	}, nil)
	if err != nil {
		t.Fatalf("cache.New(valkey) failed: %v", err)
	}
	store.Close()
}
