package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "TEAMVERIFY_"

// envOverlay lists the variables that override the file. Empty values
// leave the file's setting alone.
type envOverlay struct {
	ListenAddr            string `env:"LISTEN_ADDR"`
	PublicOrigin          string `env:"PUBLIC_ORIGIN"`
	DataDir               string `env:"DATA_DIR"`
	LogLevel              string `env:"LOG_LEVEL"`
	TrustForwardedHeaders *bool  `env:"TRUST_FORWARDED_HEADERS"`
	SendgridAPIKey        string `env:"SENDGRID_API_KEY"`
	ValkeyAddr            string `env:"VALKEY_ADDR"`
	ValkeyPassword        string `env:"VALKEY_PASSWORD"`
}

func overlayEnv(cfg *Config, environ map[string]string) error {
	var o envOverlay
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return fmt.Errorf("environment: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.ListenAddr, o.ListenAddr)
	set(&cfg.PublicOrigin, o.PublicOrigin)
	set(&cfg.Store.DataDir, o.DataDir)
	set(&cfg.Logging.Level, o.LogLevel)
	if o.TrustForwardedHeaders != nil {
		cfg.Server.TrustForwardedHeaders = *o.TrustForwardedHeaders
	}

	if o.SendgridAPIKey != "" {
		driverTable(&cfg.Notify.Drivers, "sendgrid")["api_key"] = o.SendgridAPIKey
	}
	if o.ValkeyAddr != "" {
		driverTable(&cfg.Cache.Drivers, "valkey")["addr"] = o.ValkeyAddr
	}
	if o.ValkeyPassword != "" {
		driverTable(&cfg.Cache.Drivers, "valkey")["password"] = o.ValkeyPassword
	}
	return nil
}

func driverTable(tables *map[string]map[string]any, name string) map[string]any {
	if *tables == nil {
		*tables = make(map[string]map[string]any)
	}
	if (*tables)[name] == nil {
		(*tables)[name] = make(map[string]any)
	}
	return (*tables)[name]
}
