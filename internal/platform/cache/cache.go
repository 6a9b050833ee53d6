// Package cache provides counters and keyed locks shared by request handlers.
//
// Two drivers exist: "memory" for a single process and "valkey" for
// deployments where several instances must agree on counters and locks.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a lock could not be acquired in time.
var ErrLockTimeout = errors.New("lock acquire timed out")

// Counter provides fixed-window counters for rate limiting.
type Counter interface {
	// Increment adds delta to key. The first increment of a window sets its
	// expiry to now+ttl; later increments keep that expiry. It returns the
	// new value and the instant the window resets.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error)
}

// Release gives up a held lock. Calling it more than once is a no-op.
type Release func()

// Locker provides mutual exclusion keyed by string.
type Locker interface {
	// Acquire blocks until the lock for key is held, ctx is done, or the
	// driver gives up with ErrLockTimeout. ttl bounds how long a crashed
	// holder can keep the lock; drivers confined to one process may ignore it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// Store is what a cache driver provides.
type Store interface {
	Counter
	Locker
	Close() error
}

// Factory builds a driver from its raw [cache.drivers.<name>] table.
type Factory func(conf map[string]any, log *slog.Logger) (Store, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// RegisterDriver registers a driver factory. Called from driver init().
func RegisterDriver(name string, f Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = f
}

// New builds the named driver.
func New(name string, conf map[string]any, log *slog.Logger) (Store, error) {
	driversMu.RLock()
	f, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown cache driver %q (available: %v)", name, Drivers())
	}
	return f(conf, log)
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
