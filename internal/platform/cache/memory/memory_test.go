package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MahdiBaghbani/teamverify-go/internal/platform/cache"
)

func TestIncrement_FixedWindow(t *testing.T) {
	c := New(0)
	defer c.Close()
	ctx := context.Background()

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	n, resetAt, err := c.Increment(ctx, "k", 1, time.Minute)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if n != 1 || !resetAt.Equal(clock.Add(time.Minute)) {
		t.Fatalf("got (%d, %v), want (1, %v)", n, resetAt, clock.Add(time.Minute))
	}

	clock = clock.Add(30 * time.Second)
	n, resetAt2, _ := c.Increment(ctx, "k", 2, time.Minute)
	if n != 3 {
		t.Errorf("expected 3 after second increment, got %d", n)
	}
	if !resetAt2.Equal(resetAt) {
		t.Errorf("window must not move: %v != %v", resetAt2, resetAt)
	}

	clock = clock.Add(31 * time.Second)
	n, _, _ = c.Increment(ctx, "k", 1, time.Minute)
	if n != 1 {
		t.Errorf("expected a fresh window after expiry, got %d", n)
	}
}

func TestDeleteExpired(t *testing.T) {
	c := New(0)
	defer c.Close()

	clock := time.Now()
	c.now = func() time.Time { return clock }
	c.Increment(context.Background(), "gone", 1, time.Second)

	clock = clock.Add(2 * time.Second)
	c.deleteExpired()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.counters["gone"]; ok {
		t.Error("expired counter should be removed")
	}
}

func TestAcquire_SerializesSameKey(t *testing.T) {
	c := New(0)
	defer c.Close()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := c.Acquire(ctx, "team:1", time.Second)
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("expected at most one holder, saw %d", maxSeen)
	}
	c.lmu.Lock()
	defer c.lmu.Unlock()
	if len(c.locks) != 0 {
		t.Errorf("lock table should be empty after all releases, has %d", len(c.locks))
	}
}

func TestAcquire_DifferentKeysDoNotBlock(t *testing.T) {
	c := New(0)
	defer c.Close()
	ctx := context.Background()

	r1, err := c.Acquire(ctx, "a", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer r1()

	ctx2, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	r2, err := c.Acquire(ctx2, "b", time.Second)
	if err != nil {
		t.Fatalf("unrelated key should not block: %v", err)
	}
	r2()
}

func TestAcquire_ContextCancelled(t *testing.T) {
	c := New(0)
	defer c.Close()

	release, err := c.Acquire(context.Background(), "k", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Acquire(ctx, "k", time.Second); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	c := New(0)
	defer c.Close()

	release, _ := c.Acquire(context.Background(), "k", time.Second)
	release()
	release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	again, err := c.Acquire(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("lock should be free after release: %v", err)
	}
	again()
}

func TestRegisteredDriver(t *testing.T) {
	s, err := cache.New("memory", map[string]any{"cleanup_interval": "0s"}, nil)
	if err != nil {
		t.Fatalf("cache.New(memory) failed: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*Cache); !ok {
		t.Errorf("expected *memory.Cache, got %T", s)
	}
}
