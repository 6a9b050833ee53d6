// Package ratelimit provides a per-client fixed-window rate limiting
// middleware on top of cache.Counter.
package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/api"
	svccfg "github.com/MahdiBaghbani/teamverify-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/cache"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/http/middleware"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/logutil"
)

// Config is the [http.interceptors.ratelimit] table.
type Config struct {
	RequestsPerWindow int64 `mapstructure:"requests_per_window"`
	WindowSeconds     int   `mapstructure:"window_seconds"`
}

// ApplyDefaults sets reasonable defaults for unconfigured fields.
func (c *Config) ApplyDefaults() {
	if c.RequestsPerWindow == 0 {
		c.RequestsPerWindow = 30
	}
	if c.WindowSeconds == 0 {
		c.WindowSeconds = 60
	}
}

// Limiter counts requests per client IP and scope.
type Limiter struct {
	counter cache.Counter
	keyFunc func(*http.Request) string
	limit   int64
	window  time.Duration
	log     *slog.Logger
	now     func() time.Time
}

// New decodes conf and builds a Limiter.
func New(counter cache.Counter, conf map[string]any, log *slog.Logger) (*Limiter, error) {
	var c Config
	if err := svccfg.Decode(conf, &c); err != nil {
		return nil, err
	}
	return NewWithConfig(counter, c, log), nil
}

// NewWithConfig builds a Limiter from a typed config.
func NewWithConfig(counter cache.Counter, c Config, log *slog.Logger) *Limiter {
	c.ApplyDefaults()
	return &Limiter{
		counter: counter,
		keyFunc: middleware.ClientIP,
		limit:   c.RequestsPerWindow,
		window:  time.Duration(c.WindowSeconds) * time.Second,
		log:     logutil.NoopIfNil(log),
		now:     time.Now,
	}
}

// Scope returns middleware counting under "ratelimit:<scope>:<client>".
// Counter failures let the request through.
func (l *Limiter) Scope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ratelimit:" + scope + ":" + l.keyFunc(r)
			count, resetAt, err := l.counter.Increment(r.Context(), key, 1, l.window)
			if err != nil {
				l.log.Warn("rate limit check failed", "scope", scope, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if count > l.limit {
				retryAfter := int(resetAt.Sub(l.now()).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				api.WriteErrorDetail(w, http.StatusTooManyRequests, api.ErrorDetail{
					ReasonCode:        api.ReasonRateLimited,
					Message:           "too many requests",
					RetryAfterSeconds: retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WithKeyFunc returns a copy of l keyed by fn instead of the client IP.
func (l *Limiter) WithKeyFunc(fn func(*http.Request) string) *Limiter {
	c := *l
	c.keyFunc = fn
	return &c
}
