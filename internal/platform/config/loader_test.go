package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func ptr(s string) *string { return &s }

func TestLoad_DevPresetWithoutFile(t *testing.T) {
	cfg, err := Load(LoaderOptions{ModeFlag: "dev", Environ: map[string]string{}, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "dev" || cfg.Store.Driver != "memory" || cfg.Logging.Level != "debug" {
		t.Errorf("unexpected dev preset: %+v", cfg)
	}
	if !cfg.Logging.AllowSensitive {
		t.Error("dev preset should allow sensitive logging")
	}
	if got := cfg.InviteBaseURL(); got != "http://localhost:8080/invite/" {
		t.Errorf("InviteBaseURL = %q", got)
	}
}

func TestLoad_StrictRequiresPublicOrigin(t *testing.T) {
	_, err := Load(LoaderOptions{Environ: map[string]string{}, Logger: quietLogger()})
	if err == nil || !strings.Contains(err.Error(), "public_origin is required") {
		t.Fatalf("expected public_origin error, got %v", err)
	}
}

func TestLoad_FileOverlaysPreset(t *testing.T) {
	path := writeConfig(t, `
mode = "strict"
public_origin = "https://teams.example.org"

[server]
trust_forwarded_headers = true

[[server.users]]
username = "alice"
email = "alice@example.org"
password = "pw"

[store]
driver = "sqlite"
data_dir = "/var/lib/teamverify"

[cache]
driver = "valkey"
[cache.drivers.valkey]
addr = "valkey:6379"
password = "hunter2"

[notify]
driver = "sendgrid"
async = true
[notify.drivers.sendgrid]
from_email = "noreply@example.org"

[teams]
max_attempts = 3
otp_window_seconds = 300

[http.interceptors.ratelimit]
requests_per_window = 10

[unknown_section]
key = 1
`)
	cfg, err := Load(LoaderOptions{ConfigPath: path, Environ: map[string]string{}, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.Server.TrustForwardedHeaders || len(cfg.Server.Users) != 1 || cfg.Server.Users[0].Username != "alice" {
		t.Errorf("server: %+v", cfg.Server)
	}
	if cfg.Store.DataDir != "/var/lib/teamverify" {
		t.Errorf("store: %+v", cfg.Store)
	}
	if cfg.CacheDriverConfig()["addr"] != "valkey:6379" {
		t.Errorf("cache driver table: %v", cfg.CacheDriverConfig())
	}
	if !cfg.Notify.Async || cfg.NotifyDriverConfig()["from_email"] != "noreply@example.org" {
		t.Errorf("notify: %+v", cfg.Notify)
	}
	// Untouched keys keep the preset values.
	if cfg.Teams.MaxAttempts != 3 || cfg.Teams.OTPWindowSeconds != 300 || cfg.Teams.ResendCooldownSeconds != 60 {
		t.Errorf("teams: %+v", cfg.Teams)
	}
	if cfg.Teams.OTPWindow().Minutes() != 5 {
		t.Errorf("OTPWindow = %v", cfg.Teams.OTPWindow())
	}
	if cfg.HTTP.Interceptors["ratelimit"]["requests_per_window"] != int64(10) {
		t.Errorf("interceptors: %v", cfg.HTTP.Interceptors)
	}
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, `
mode = "dev"
listen_addr = ":7000"
[logging]
level = "warn"
`)
	cfg, err := Load(LoaderOptions{
		ConfigPath: path,
		Environ: map[string]string{
			"TEAMVERIFY_LISTEN_ADDR":      ":7100",
			"TEAMVERIFY_LOG_LEVEL":        "error",
			"TEAMVERIFY_SENDGRID_API_KEY": "SG.secret",
			"TEAMVERIFY_VALKEY_ADDR":      "cache:6379",
		},
		FlagOverrides: FlagOverrides{ListenAddr: ptr(":7200"), LogLevel: ptr("")},
		Logger:        quietLogger(),
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7200" {
		t.Errorf("flag should win: %q", cfg.ListenAddr)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("env should beat file when the flag is empty: %q", cfg.Logging.Level)
	}
	if cfg.Notify.Drivers["sendgrid"]["api_key"] != "SG.secret" || cfg.Cache.Drivers["valkey"]["addr"] != "cache:6379" {
		t.Errorf("env driver overlay: %v %v", cfg.Notify.Drivers, cfg.Cache.Drivers)
	}
}

func TestLoad_ModeFlagBeatsFile(t *testing.T) {
	path := writeConfig(t, `mode = "strict"`)
	cfg, err := Load(LoaderOptions{ConfigPath: path, ModeFlag: "dev", Environ: map[string]string{}, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "dev" {
		t.Errorf("mode = %q", cfg.Mode)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"bad mode", `mode = "interop"`, "invalid mode"},
		{"bad toml", `mode = `, "failed to parse"},
		{"bad store", "mode = \"dev\"\n[store]\ndriver = \"mongo\"", "store.driver"},
		{"sqlite without dir", "mode = \"dev\"\n[store]\ndriver = \"sqlite\"\ndata_dir = \"\"", "data_dir"},
		{"bad notify", "mode = \"dev\"\n[notify]\ndriver = \"smtp\"", "notify.driver"},
		{"bad level", "mode = \"dev\"\n[logging]\nlevel = \"trace\"", "invalid log level"},
		{"zero attempts", "mode = \"dev\"\n[teams]\nmax_attempts = -1", "teams.max_attempts"},
		{"digits", "mode = \"dev\"\n[teams]\notp_digits = 2", "otp_digits"},
		{"origin path", "mode = \"dev\"\npublic_origin = \"https://x.org/app\"", "must not contain a path"},
		{"origin scheme", "mode = \"dev\"\npublic_origin = \"ftp://x.org\"", "scheme"},
		{"user without password", "mode = \"dev\"\n[[server.users]]\nusername = \"a\"", "server.users[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(LoaderOptions{ConfigPath: writeConfig(t, tt.body), Environ: map[string]string{}, Logger: quietLogger()})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(LoaderOptions{ConfigPath: filepath.Join(t.TempDir(), "nope.toml"), Logger: quietLogger()})
	if err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestRedacted_HidesSecrets(t *testing.T) {
	cfg := DevConfig()
	cfg.Server.Users = []UserConfig{{Username: "alice", Password: "topsecret"}}
	cfg.Cache.Drivers = map[string]map[string]any{"valkey": {"addr": "v:6379", "password": "hunter2"}}
	cfg.Notify.Drivers = map[string]map[string]any{"sendgrid": {"api_key": "SG.key", "from_email": "a@b.c"}}

	out := cfg.Redacted()
	for _, secret := range []string{"topsecret", "hunter2", "SG.key"} {
		if strings.Contains(out, secret) {
			t.Errorf("Redacted leaks %q:\n%s", secret, out)
		}
	}
	for _, visible := range []string{"alice", "v:6379", "a@b.c"} {
		if !strings.Contains(out, visible) {
			t.Errorf("Redacted hides %q:\n%s", visible, out)
		}
	}
}

func TestNotifyDriverConfig_InheritsAllowSensitive(t *testing.T) {
	cfg := DevConfig()
	if cfg.NotifyDriverConfig()["allow_sensitive"] != true {
		t.Error("log driver should inherit logging.allow_sensitive")
	}
	cfg.Notify.Drivers = map[string]map[string]any{"log": {"allow_sensitive": false}}
	if cfg.NotifyDriverConfig()["allow_sensitive"] != false {
		t.Error("explicit driver setting should win")
	}
}
