// Package memory provides an in-process cache driver.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	svccfg "github.com/MahdiBaghbani/teamverify-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/cache"
)

func init() {
	cache.RegisterDriver("memory", func(conf map[string]any, _ *slog.Logger) (cache.Store, error) {
		var c Config
		if err := svccfg.Decode(conf, &c); err != nil {
			return nil, err
		}
		return New(c.CleanupInterval), nil
	})
}

// Config is the [cache.drivers.memory] table.
type Config struct {
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.CleanupInterval == 0 {
		c.CleanupInterval = time.Minute
	}
}

type counter struct {
	value     int64
	expiresAt time.Time
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// Cache is the in-process driver. Locks are plain per-key mutexes.
type Cache struct {
	mu       sync.Mutex
	counters map[string]*counter

	lmu   sync.Mutex
	locks map[string]*keyLock

	now       func() time.Time
	stopClean chan struct{}
	closeOnce sync.Once
}

// New creates a memory cache. cleanupInterval <= 0 disables the sweeper goroutine.
func New(cleanupInterval time.Duration) *Cache {
	c := &Cache{
		counters:  make(map[string]*counter),
		locks:     make(map[string]*keyLock),
		now:       time.Now,
		stopClean: make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.cleanupLoop(cleanupInterval)
	}
	return c
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stopClean:
			return
		}
	}
}

func (c *Cache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, v := range c.counters {
		if now.After(v.expiresAt) {
			delete(c.counters, k)
		}
	}
}

// Increment implements cache.Counter.
func (c *Cache) Increment(_ context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	ctr, ok := c.counters[key]
	if !ok || now.After(ctr.expiresAt) {
		ctr = &counter{expiresAt: now.Add(ttl)}
		c.counters[key] = ctr
	}
	ctr.value += delta
	return ctr.value, ctr.expiresAt, nil
}

// Acquire implements cache.Locker. ttl is ignored.
func (c *Cache) Acquire(ctx context.Context, key string, _ time.Duration) (cache.Release, error) {
	c.lmu.Lock()
	l, ok := c.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		c.locks[key] = l
	}
	l.refs++
	c.lmu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		c.unref(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			c.unref(key, l)
		})
	}, nil
}

func (c *Cache) unref(key string, l *keyLock) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(c.locks, key)
	}
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() { close(c.stopClean) })
	return nil
}

var _ cache.Store = (*Cache)(nil)
