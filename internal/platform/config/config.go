// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: strict or dev.
	Mode string `toml:"mode"`

	// PublicOrigin is the scheme + host (+ port) invitation links point at.
	// Example: "https://teams.example.org"
	PublicOrigin string `toml:"public_origin"`

	// ListenAddr is the address to listen on. Example: ":8080"
	ListenAddr string `toml:"listen_addr"`

	Server  ServerConfig  `toml:"server"`
	Store   StoreConfig   `toml:"store"`
	Cache   CacheConfig   `toml:"cache"`
	Notify  NotifyConfig  `toml:"notify"`
	Teams   TeamsConfig   `toml:"teams"`
	Events  EventsConfig  `toml:"events"`
	Sweeper SweeperConfig `toml:"sweeper"`
	Logging LoggingConfig `toml:"logging"`
	HTTP    HTTPConfig    `toml:"http"`
}

// ServerConfig holds server-level settings.
type ServerConfig struct {
	// TrustForwardedHeaders takes client addresses from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustForwardedHeaders bool `toml:"trust_forwarded_headers"`

	// SessionTTLSeconds is the lifetime of a login session. Default 86400.
	SessionTTLSeconds int `toml:"session_ttl_seconds"`

	// Users are created at startup if missing.
	Users []UserConfig `toml:"users"`
}

// UserConfig is a [[server.users]] entry.
type UserConfig struct {
	Username    string `toml:"username"`
	Email       string `toml:"email"`
	DisplayName string `toml:"display_name"`
	Password    string `toml:"password"`
}

// StoreConfig selects the persistence driver.
type StoreConfig struct {
	// Driver is memory or sqlite.
	Driver  string `toml:"driver"`
	DataDir string `toml:"data_dir"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is memory or valkey.
	Driver string `toml:"driver"`

	// Drivers holds per-driver tables, e.g. [cache.drivers.valkey].
	Drivers map[string]map[string]any `toml:"drivers"`
}

// NotifyConfig selects the notification dispatcher.
type NotifyConfig struct {
	// Driver is log, memory or sendgrid.
	Driver string `toml:"driver"`

	// Async dispatches in the background so requests never wait on delivery.
	Async bool `toml:"async"`

	Drivers map[string]map[string]any `toml:"drivers"`
}

// TeamsConfig holds the verification flow limits.
type TeamsConfig struct {
	InviteExpirySeconds   int `toml:"invite_expiry_seconds"`
	OTPWindowSeconds      int `toml:"otp_window_seconds"`
	ResendCooldownSeconds int `toml:"resend_cooldown_seconds"`
	MaxAttempts           int `toml:"max_attempts"`
	OTPDigits             int `toml:"otp_digits"`
	LockTTLSeconds        int `toml:"lock_ttl_seconds"`

	// CodeHashCost is the bcrypt cost for stored codes. 0 selects the default.
	CodeHashCost int `toml:"code_hash_cost"`

	// InvitePath is appended to public_origin to build invitation links.
	InvitePath string `toml:"invite_path"`
}

// InviteWindow returns invite_expiry_seconds as a duration.
func (t TeamsConfig) InviteWindow() time.Duration {
	return time.Duration(t.InviteExpirySeconds) * time.Second
}

// OTPWindow returns otp_window_seconds as a duration.
func (t TeamsConfig) OTPWindow() time.Duration {
	return time.Duration(t.OTPWindowSeconds) * time.Second
}

// ResendCooldown returns resend_cooldown_seconds as a duration.
func (t TeamsConfig) ResendCooldown() time.Duration {
	return time.Duration(t.ResendCooldownSeconds) * time.Second
}

// LockTTL returns lock_ttl_seconds as a duration.
func (t TeamsConfig) LockTTL() time.Duration {
	return time.Duration(t.LockTTLSeconds) * time.Second
}

// EventsConfig locates the event catalog.
type EventsConfig struct {
	// CatalogPath is a TOML file with [[events]] tables. Empty starts with
	// no events.
	CatalogPath string `toml:"catalog_path"`
}

// SweeperConfig controls the background expiry job.
type SweeperConfig struct {
	Enabled bool `toml:"enabled"`
	// Schedule is a cron spec; descriptors such as "@every 5m" are accepted.
	Schedule  string `toml:"schedule"`
	BatchSize int    `toml:"batch_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level"`

	// AllowSensitive lets the log notification driver print one-time codes.
	AllowSensitive bool `toml:"allow_sensitive"`
}

// HTTPConfig holds raw interceptor tables, decoded by their owners.
type HTTPConfig struct {
	// Interceptors maps names to raw tables, e.g. [http.interceptors.ratelimit].
	Interceptors map[string]map[string]any `toml:"interceptors"`
}

// SessionTTL returns session_ttl_seconds as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Server.SessionTTLSeconds) * time.Second
}

// InviteBaseURL is the prefix invitation tokens are appended to.
func (c *Config) InviteBaseURL() string {
	return strings.TrimRight(c.PublicOrigin, "/") + c.Teams.InvitePath
}

// CacheDriverConfig returns the table for the selected cache driver.
func (c *Config) CacheDriverConfig() map[string]any {
	return c.Cache.Drivers[c.Cache.Driver]
}

// NotifyDriverConfig returns the table for the selected notify driver. The
// log driver inherits logging.allow_sensitive unless it sets its own.
func (c *Config) NotifyDriverConfig() map[string]any {
	conf := make(map[string]any)
	for k, v := range c.Notify.Drivers[c.Notify.Driver] {
		conf[k] = v
	}
	if c.Notify.Driver == "log" {
		if _, ok := conf["allow_sensitive"]; !ok {
			conf["allow_sensitive"] = c.Logging.AllowSensitive
		}
	}
	return conf
}

// secretKeys are masked in driver tables by Redacted.
var secretKeys = map[string]bool{"password": true, "api_key": true}

// Redacted returns a string representation of the config with secrets redacted.
func (c *Config) Redacted() string {
	var sb strings.Builder
	sb.WriteString("Config{\n")
	fmt.Fprintf(&sb, "  Mode: %q,\n", c.Mode)
	fmt.Fprintf(&sb, "  PublicOrigin: %q,\n", c.PublicOrigin)
	fmt.Fprintf(&sb, "  ListenAddr: %q,\n", c.ListenAddr)
	sb.WriteString("  Server: {\n")
	fmt.Fprintf(&sb, "    TrustForwardedHeaders: %v,\n", c.Server.TrustForwardedHeaders)
	fmt.Fprintf(&sb, "    SessionTTLSeconds: %d,\n", c.Server.SessionTTLSeconds)
	names := make([]string, 0, len(c.Server.Users))
	for _, u := range c.Server.Users {
		names = append(names, u.Username)
	}
	fmt.Fprintf(&sb, "    Users: %v (passwords [REDACTED]),\n", names)
	sb.WriteString("  },\n")
	fmt.Fprintf(&sb, "  Store: {Driver: %q, DataDir: %q},\n", c.Store.Driver, c.Store.DataDir)
	fmt.Fprintf(&sb, "  Cache: {Driver: %q, Drivers: %s},\n", c.Cache.Driver, redactTables(c.Cache.Drivers))
	fmt.Fprintf(&sb, "  Notify: {Driver: %q, Async: %v, Drivers: %s},\n", c.Notify.Driver, c.Notify.Async, redactTables(c.Notify.Drivers))
	fmt.Fprintf(&sb, "  Teams: %+v,\n", c.Teams)
	fmt.Fprintf(&sb, "  Events: {CatalogPath: %q},\n", c.Events.CatalogPath)
	fmt.Fprintf(&sb, "  Sweeper: {Enabled: %v, Schedule: %q, BatchSize: %d},\n", c.Sweeper.Enabled, c.Sweeper.Schedule, c.Sweeper.BatchSize)
	fmt.Fprintf(&sb, "  Logging: {Level: %q, AllowSensitive: %v},\n", c.Logging.Level, c.Logging.AllowSensitive)
	fmt.Fprintf(&sb, "  HTTP: {Interceptors: %s},\n", redactTables(c.HTTP.Interceptors))
	sb.WriteString("}")
	return sb.String()
}

func redactTables(tables map[string]map[string]any) string {
	names := make([]string, 0, len(tables))
	for n := range tables {
		names = append(names, n)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("{")
	for i, n := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		keys := make([]string, 0, len(tables[n]))
		for k := range tables[n] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(&sb, "%s: {", n)
		for j, k := range keys {
			if j > 0 {
				sb.WriteString(", ")
			}
			if secretKeys[k] {
				fmt.Fprintf(&sb, "%s: [REDACTED]", k)
			} else {
				fmt.Fprintf(&sb, "%s: %v", k, tables[n][k])
			}
		}
		sb.WriteString("}")
	}
	sb.WriteString("}")
	return sb.String()
}
