package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/vbonduro/shopscan/internal/auth"
	"github.com/vbonduro/shopscan/internal/config"
	"github.com/vbonduro/shopscan/internal/db"
	"github.com/vbonduro/shopscan/internal/decode"
	"github.com/vbonduro/shopscan/internal/logging"
	"github.com/vbonduro/shopscan/internal/lookup"
	"github.com/vbonduro/shopscan/internal/service"
	"github.com/vbonduro/shopscan/internal/session"
	"github.com/vbonduro/shopscan/internal/shutdown"
	"github.com/vbonduro/shopscan/internal/snapshot/local"
	"github.com/vbonduro/shopscan/internal/store"
	"github.com/vbonduro/shopscan/internal/web"
)

func main() {
	cfg := config.Load()

	logger, cleanup, err := logging.New("shopscan", cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	err = run(cfg, logger)
	if err != nil {
		logger.Error("shopscan stopped", "error", err)
	}
	cleanup()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	secret, err := jwtSecret(cfg, logger)
	if err != nil {
		return err
	}

	itemStore := store.NewItemStore(database)
	shopStore := store.NewShopStore(database)
	userStore := store.NewUserStore(database)
	tokenStore := store.NewTokenStore(database)

	shopService := service.NewShopService(itemStore, shopStore, logger)
	authProvider := auth.NewProvider(userStore, tokenStore, shopService, secret, logger)

	snapshotPath := cfg.SnapshotPath
	if cfg.TestMode {
		snapshotPath = filepath.Join(os.TempDir(), "shopscan-snapshots")
	}
	snapshots, err := local.NewLocalSnapshotStore(snapshotPath, logger)
	if err != nil {
		return err
	}

	sessions, err := session.NewManager(itemStore, snapshots, session.Config{
		CameraBackend: cfg.CameraBackend,
		CameraDevice:  cfg.CameraDevice,
		CameraTimeout: cfg.CameraTimeout,
		Decode: decode.Options{
			Kind:         cfg.DecodeStrategy,
			CropFraction: cfg.DecodeCropFraction,
			MaxDimension: cfg.DecodeMaxDimension,
		},
		Debounce:    cfg.ScanDebounce,
		Lookup:      lookup.Config{Timeout: cfg.LookupTimeout, Ceiling: cfg.LookupCeiling},
		IdleTimeout: cfg.SessionIdleTimeout,
	}, logger)
	if err != nil {
		return err
	}
	logger.Info("scanner configured",
		"camera_backend", cfg.CameraBackend,
		"decode_strategy", cfg.DecodeStrategy,
		"lookup_timeout", cfg.LookupTimeout,
	)

	server := web.NewServer(shopService, authProvider, sessions, cfg.LookupTimeout, logger)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx, cfg.ListenAddr) })
	g.Go(func() error { return sessions.Run(ctx) })
	return g.Wait()
}

func openDatabase(cfg *config.Config) (*sqlx.DB, error) {
	if cfg.TestMode {
		return db.OpenForTesting()
	}
	return db.Open(cfg.DBPath)
}

// jwtSecret returns the configured signing secret. Test mode falls back to a
// random per-process secret.
func jwtSecret(cfg *config.Config, logger *slog.Logger) (string, error) {
	if cfg.JWTSecret != "" {
		return cfg.JWTSecret, nil
	}
	if !cfg.TestMode {
		return "", errors.New("JWT_SECRET is required")
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	logger.Warn("JWT_SECRET not set; using an ephemeral secret")
	return hex.EncodeToString(buf), nil
}
