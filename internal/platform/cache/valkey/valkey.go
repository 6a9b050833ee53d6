// Package valkey provides a cache driver backed by Valkey (or Redis).
//
// Counters use INCRBY with a window expiry set on first increment. Locks use
// SET NX PX with a random owner token and are released with a
// compare-and-delete script, so a holder whose ttl lapsed cannot release a
// lock that someone else now owns.
package valkey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	svccfg "github.com/MahdiBaghbani/teamverify-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/cache"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/logutil"
)

func init() {
	cache.RegisterDriver("valkey", func(conf map[string]any, log *slog.Logger) (cache.Store, error) {
		var c Config
		if err := svccfg.Decode(conf, &c); err != nil {
			return nil, err
		}
		return New(&c, log)
	})
}

// Config is the [cache.drivers.valkey] table.
type Config struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	KeyPrefix   string        `mapstructure:"key_prefix"`

	// LockWait bounds how long Acquire retries before ErrLockTimeout.
	LockWait time.Duration `mapstructure:"lock_wait"`
	// LockRetryMax caps the backoff interval between acquire attempts.
	LockRetryMax time.Duration `mapstructure:"lock_retry_max"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "teamverify:"
	}
	if c.LockWait == 0 {
		c.LockWait = 5 * time.Second
	}
	if c.LockRetryMax == 0 {
		c.LockRetryMax = 200 * time.Millisecond
	}
}

var (
	incrScript = valkey.NewLuaScript(`
local v = redis.call('INCRBY', KEYS[1], ARGV[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
return {v, ttl}
`)

	acquireScript = valkey.NewLuaScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
  return 1
end
return 0
`)

	releaseScript = valkey.NewLuaScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)
)

var errBusy = errors.New("lock busy")

// Cache is the Valkey driver.
type Cache struct {
	client valkey.Client
	cfg    Config
	log    *slog.Logger
}

// New connects to Valkey and fails fast when the server is unreachable.
func New(cfg *Config, log *slog.Logger) (*Cache, error) {
	c := *cfg
	c.ApplyDefaults()

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{c.Addr},
		Password:     c.Password,
		SelectDB:     c.DB,
		Dialer:       net.Dialer{Timeout: c.DialTimeout},
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect valkey %s: %w", c.Addr, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.DialTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping valkey %s: %w", c.Addr, err)
	}

	return &Cache{client: client, cfg: c, log: logutil.NoopIfNil(log)}, nil
}

func (c *Cache) key(k string) string { return c.cfg.KeyPrefix + k }

// Increment implements cache.Counter.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	ms := ttl.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	vals, err := incrScript.Exec(ctx, c.client,
		[]string{c.key(key)},
		[]string{strconv.FormatInt(delta, 10), strconv.FormatInt(ms, 10)},
	).ToArray()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("valkey increment: %w", err)
	}
	if len(vals) != 2 {
		return 0, time.Time{}, fmt.Errorf("valkey increment: unexpected reply length %d", len(vals))
	}
	count, err := vals[0].AsInt64()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("valkey increment: %w", err)
	}
	remaining, err := vals[1].AsInt64()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("valkey increment: %w", err)
	}
	return count, time.Now().Add(time.Duration(remaining) * time.Millisecond), nil
}

// Acquire implements cache.Locker.
func (c *Cache) Acquire(ctx context.Context, key string, ttl time.Duration) (cache.Release, error) {
	k := c.key("lock:" + key)
	owner := uuid.NewString()
	ms := strconv.FormatInt(max(ttl.Milliseconds(), 1), 10)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = c.cfg.LockRetryMax

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		n, err := acquireScript.Exec(ctx, c.client, []string{k}, []string{owner, ms}).AsInt64()
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if n == 0 {
			return struct{}{}, errBusy
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(c.cfg.LockWait))
	if err != nil {
		if errors.Is(err, errBusy) {
			return nil, fmt.Errorf("%w: %s", cache.ErrLockTimeout, key)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("valkey acquire %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
			defer cancel()
			if err := releaseScript.Exec(rctx, c.client, []string{k}, []string{owner}).Error(); err != nil {
				c.log.Warn("valkey lock release failed", "key", key, "error", err)
			}
		})
	}, nil
}

// Close closes the client.
func (c *Cache) Close() error {
	c.client.Close()
	return nil
}

var _ cache.Store = (*Cache)(nil)
