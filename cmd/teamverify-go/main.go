// Package main is the entrypoint for the teamverify-go server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/events"
	"github.com/MahdiBaghbani/teamverify-go/internal/components/identity"
	"github.com/MahdiBaghbani/teamverify-go/internal/components/identity/authapi"
	"github.com/MahdiBaghbani/teamverify-go/internal/components/notify"
	"github.com/MahdiBaghbani/teamverify-go/internal/components/teams"
	"github.com/MahdiBaghbani/teamverify-go/internal/components/tokens"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/cache"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/config"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/http/ratelimit"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/http/server"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/sweeper"
	"github.com/MahdiBaghbani/teamverify-go/internal/store"

	// Register drivers
	_ "github.com/MahdiBaghbani/teamverify-go/internal/components/notify/sendgrid"
	_ "github.com/MahdiBaghbani/teamverify-go/internal/platform/cache/memory"
	_ "github.com/MahdiBaghbani/teamverify-go/internal/platform/cache/valkey"
	_ "github.com/MahdiBaghbani/teamverify-go/internal/store/memory"
	_ "github.com/MahdiBaghbani/teamverify-go/internal/store/sqlite"
)

const (
	shutdownTimeout = 15 * time.Second
	sweepTimeout    = time.Minute
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: strict or dev (overrides config)")
	envFile := flag.String("env-file", ".env", "Dotenv file loaded before the environment overlay; missing is fine")
	listenAddr := flag.String("listen-addr", "", "Listen address (overrides config)")
	publicOrigin := flag.String("public-origin", "", "Public origin used in invitation links (overrides config)")
	storeDriver := flag.String("store-driver", "", "Store driver: memory or sqlite (overrides config)")
	dataDir := flag.String("data-dir", "", "Data directory for the sqlite store (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := logutil.NewJSON(os.Stdout, slog.LevelInfo)

	if err := loadEnvFile(*envFile); err != nil {
		bootstrapLogger.Error("failed to load env file", "path", *envFile, "error", err)
		os.Exit(1)
	}

	// Precedence: mode preset -> TOML file -> environment -> CLI flags
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:   nonEmpty(listenAddr),
			PublicOrigin: nonEmpty(publicOrigin),
			StoreDriver:  nonEmpty(storeDriver),
			DataDir:      nonEmpty(dataDir),
			LogLevel:     nonEmpty(logLevel),
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level, err := logutil.ParseLevel(cfg.Logging.Level)
	if err != nil {
		bootstrapLogger.Warn("invalid logging level, using info", "level", cfg.Logging.Level)
		level = slog.LevelInfo
	}
	logger := logutil.NewJSON(os.Stdout, level)
	slog.SetDefault(logger)

	logger.Info("effective configuration", "config", cfg.Redacted())

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// nonEmpty drops unset string flags so they do not override the config.
func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	db, err := store.New(&store.DriverConfig{Driver: cfg.Store.Driver, DataDir: cfg.Store.DataDir})
	if err != nil {
		return err
	}
	if err := db.Init(ctx); err != nil {
		return fmt.Errorf("init %s store: %w", db.Name(), err)
	}
	defer db.Close()
	logger.Info("store ready", "driver", db.Name())

	// Cache backs rate limiting and the per-team locks
	cacheStore, err := cache.New(cfg.Cache.Driver, cfg.CacheDriverConfig(), logger)
	if err != nil {
		return fmt.Errorf("init %s cache: %w", cfg.Cache.Driver, err)
	}
	defer cacheStore.Close()

	// Notifications
	dispatcher, err := notify.New(cfg.Notify.Driver, cfg.NotifyDriverConfig(), logger)
	if err != nil {
		return fmt.Errorf("init %s notifier: %w", cfg.Notify.Driver, err)
	}
	var async *notify.Async
	if cfg.Notify.Async {
		async = notify.NewAsync(dispatcher, logger)
		dispatcher = async
	}

	// Events
	var directory events.Directory
	if cfg.Events.CatalogPath != "" {
		catalog, err := events.LoadCatalog(cfg.Events.CatalogPath)
		if err != nil {
			return fmt.Errorf("load event catalog: %w", err)
		}
		directory = catalog
	} else {
		logger.Warn("no event catalog configured, every event lookup will fail")
		directory = events.NewMemoryDirectory()
	}

	// Identity
	partyRepo := identity.NewMemoryPartyRepo()
	sessionRepo := identity.NewMemorySessionRepo()
	userAuth := identity.NewUserAuth(identity.DefaultArgon2)

	seeded := make([]identity.SeededUser, 0, len(cfg.Server.Users))
	for _, u := range cfg.Server.Users {
		seeded = append(seeded, identity.SeededUser{
			Username:    u.Username,
			Email:       u.Email,
			DisplayName: u.DisplayName,
			Password:    u.Password,
		})
	}
	if _, err := identity.NewBootstrap(partyRepo, userAuth, logger).Run(ctx, seeded); err != nil {
		return fmt.Errorf("seed users: %w", err)
	}

	// Teams
	hasher, err := tokens.NewBcrypt(cfg.Teams.CodeHashCost)
	if err != nil {
		return err
	}
	teamSvc, err := teams.NewService(teams.Config{
		InviteWindow:   cfg.Teams.InviteWindow(),
		OTPWindow:      cfg.Teams.OTPWindow(),
		ResendCooldown: cfg.Teams.ResendCooldown(),
		MaxAttempts:    cfg.Teams.MaxAttempts,
		CodeDigits:     cfg.Teams.OTPDigits,
		LockTTL:        cfg.Teams.LockTTL(),
		InviteBaseURL:  cfg.InviteBaseURL(),
	}, teams.Deps{
		Repo:     db.Teams(),
		Events:   directory,
		Locker:   cacheStore,
		Tokens:   tokens.NewRandom(),
		Hasher:   hasher,
		Notifier: dispatcher,
		Log:      logger,
	})
	if err != nil {
		return err
	}

	limiter, err := ratelimit.New(cacheStore, cfg.HTTP.Interceptors["ratelimit"], logger)
	if err != nil {
		return fmt.Errorf("init rate limiter: %w", err)
	}
	teamHandler := teams.NewHandler(teamSvc, limiter, logger)

	authSvc := authapi.New(authapi.Config{
		SessionTTL:   cfg.SessionTTL(),
		SecureCookie: strings.HasPrefix(cfg.PublicOrigin, "https://"),
	}, partyRepo, sessionRepo, userAuth)

	srv, err := server.New(server.Options{
		ListenAddr:            cfg.ListenAddr,
		TrustForwardedHeaders: cfg.Server.TrustForwardedHeaders,
		SessionRepo:           sessionRepo,
		PartyRepo:             partyRepo,
		Health:                db.Ping,
	}, logger, authSvc, teamHandler.Teams(), teamHandler.Invites())
	if err != nil {
		return err
	}

	// Background expiry
	sched := sweeper.New(logger)
	if cfg.Sweeper.Enabled {
		err := sched.Add("teams", cfg.Sweeper.Schedule, sweepTimeout, func(ctx context.Context) error {
			stats, err := teamSvc.Sweep(ctx, cfg.Sweeper.BatchSize)
			if stats.TeamsExpired > 0 || stats.InvitesExpired > 0 {
				logger.Info("expired stale registrations",
					"teams", stats.TeamsExpired, "invites", stats.InvitesExpired)
			}
			return err
		})
		if err != nil {
			return err
		}
		err = sched.Add("sessions", cfg.Sweeper.Schedule, sweepTimeout, func(ctx context.Context) error {
			n, err := sessionRepo.DeleteExpired(ctx)
			if n > 0 {
				logger.Debug("deleted expired sessions", "count", n)
			}
			return err
		})
		if err != nil {
			return err
		}
		sched.Start()
		logger.Info("sweeper started", "schedule", cfg.Sweeper.Schedule, "batch_size", cfg.Sweeper.BatchSize)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received", "mode", cfg.Mode)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if cfg.Sweeper.Enabled {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Warn("sweeper did not stop cleanly", "error", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if async != nil {
		async.Wait()
	}

	logger.Info("server stopped")
	return nil
}
