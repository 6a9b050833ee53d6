package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/MahdiBaghbani/teamverify-go/internal/platform/logutil"
)

// Mode represents the server operating mode.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeDev    Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return ModeStrict, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of strict, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the --mode flag value (overrides the file's mode).
	ModeFlag string

	FlagOverrides FlagOverrides

	// Environ replaces the process environment for the env overlay. Nil
	// reads os.Environ.
	Environ map[string]string

	// Logger receives warnings such as undecoded keys. Nil uses slog.Default().
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override everything else.
// Nil or empty values are ignored.
type FlagOverrides struct {
	ListenAddr   *string
	PublicOrigin *string
	StoreDriver  *string
	DataDir      *string
	LogLevel     *string
}

// Load loads configuration with the following precedence:
//  1. Effective mode: --mode flag > mode in config file > strict
//  2. Mode preset defaults
//  3. TOML config file values
//  4. TEAMVERIFY_* environment variables
//  5. CLI flags
//  6. Validation
//
// Unknown TOML keys produce a warning but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var data string
	var probe struct {
		Mode string `toml:"mode"`
	}
	if opts.ConfigPath != "" {
		raw, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		data = string(raw)
		if _, err := toml.Decode(data, &probe); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
	}

	modeStr := probe.Mode
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}
	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)

	// Decoding onto the preset only overwrites keys present in the file.
	if opts.ConfigPath != "" {
		md, err := toml.Decode(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}
	cfg.Mode = string(mode)

	if err := overlayEnv(cfg, opts.Environ); err != nil {
		return nil, err
	}
	overlayFlags(cfg, opts.FlagOverrides)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return StrictConfig()
}

// StrictConfig is the production preset. public_origin must be configured.
func StrictConfig() *Config {
	return &Config{
		Mode:       string(ModeStrict),
		ListenAddr: ":8080",
		Server: ServerConfig{
			SessionTTLSeconds: 86400,
		},
		Store:  StoreConfig{Driver: "sqlite", DataDir: "data"},
		Cache:  CacheConfig{Driver: "memory"},
		Notify: NotifyConfig{Driver: "log"},
		Teams: TeamsConfig{
			InviteExpirySeconds:   72 * 3600,
			OTPWindowSeconds:      600,
			ResendCooldownSeconds: 60,
			MaxAttempts:           5,
			OTPDigits:             6,
			LockTTLSeconds:        10,
			InvitePath:            "/invite/",
		},
		Sweeper: SweeperConfig{Enabled: true, Schedule: "@every 5m", BatchSize: 100},
		Logging: LoggingConfig{Level: "info"},
	}
}

// DevConfig runs fully in memory, logs at debug and prints one-time codes.
func DevConfig() *Config {
	cfg := StrictConfig()
	cfg.Mode = string(ModeDev)
	cfg.ListenAddr = "127.0.0.1:8080"
	cfg.PublicOrigin = "http://localhost:8080"
	cfg.Store = StoreConfig{Driver: "memory"}
	cfg.Logging = LoggingConfig{Level: "debug", AllowSensitive: true}
	return cfg
}

func overlayFlags(cfg *Config, f FlagOverrides) {
	set := func(dst *string, v *string) {
		if v != nil && *v != "" {
			*dst = *v
		}
	}
	set(&cfg.ListenAddr, f.ListenAddr)
	set(&cfg.PublicOrigin, f.PublicOrigin)
	set(&cfg.Store.Driver, f.StoreDriver)
	set(&cfg.Store.DataDir, f.DataDir)
	set(&cfg.Logging.Level, f.LogLevel)
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q: must be one of %s", field, value, strings.Join(allowed, ", "))
}

func validate(cfg *Config) error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.ListenAddr == "" {
		add(errors.New("listen_addr is required"))
	}
	add(validatePublicOrigin(cfg.PublicOrigin))

	add(oneOf("store.driver", cfg.Store.Driver, "memory", "sqlite"))
	if cfg.Store.Driver == "sqlite" && cfg.Store.DataDir == "" {
		add(errors.New("store.data_dir is required for the sqlite driver"))
	}
	add(oneOf("cache.driver", cfg.Cache.Driver, "memory", "valkey"))
	add(oneOf("notify.driver", cfg.Notify.Driver, "log", "memory", "sendgrid"))
	if _, err := logutil.ParseLevel(cfg.Logging.Level); err != nil {
		add(err)
	}

	t := cfg.Teams
	for _, f := range []struct {
		key string
		v   int
	}{
		{"teams.invite_expiry_seconds", t.InviteExpirySeconds},
		{"teams.otp_window_seconds", t.OTPWindowSeconds},
		{"teams.resend_cooldown_seconds", t.ResendCooldownSeconds},
		{"teams.max_attempts", t.MaxAttempts},
		{"teams.lock_ttl_seconds", t.LockTTLSeconds},
		{"server.session_ttl_seconds", cfg.Server.SessionTTLSeconds},
	} {
		if f.v <= 0 {
			add(fmt.Errorf("%s must be positive, got %d", f.key, f.v))
		}
	}
	if t.OTPDigits < 4 || t.OTPDigits > 10 {
		add(fmt.Errorf("teams.otp_digits must be between 4 and 10, got %d", t.OTPDigits))
	}
	if t.CodeHashCost < 0 {
		add(fmt.Errorf("teams.code_hash_cost must not be negative, got %d", t.CodeHashCost))
	}

	if cfg.Sweeper.Enabled {
		if cfg.Sweeper.Schedule == "" {
			add(errors.New("sweeper.schedule is required when the sweeper is enabled"))
		}
		if cfg.Sweeper.BatchSize <= 0 {
			add(fmt.Errorf("sweeper.batch_size must be positive, got %d", cfg.Sweeper.BatchSize))
		}
	}

	for i, u := range cfg.Server.Users {
		if u.Username == "" || u.Password == "" {
			add(fmt.Errorf("server.users[%d]: username and password are required", i))
		}
	}

	return errors.Join(errs...)
}

func validatePublicOrigin(origin string) error {
	if origin == "" {
		return errors.New("public_origin is required")
	}
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid public_origin %q: %w", origin, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid public_origin %q: scheme must be http or https", origin)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid public_origin %q: host is required", origin)
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid public_origin %q: must not contain a path, query or fragment", origin)
	}
	return nil
}
