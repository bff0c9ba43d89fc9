package walletd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"walletledger/config"
	"walletledger/gateway/middleware"
	"walletledger/observability/logging"
	telemetry "walletledger/observability/otel"
	"walletledger/storage"
)

// Main initialises and runs the wallet ledger daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/walletd/config.yaml", "path to walletd configuration")
	flag.Parse()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := strings.TrimSpace(os.Getenv("WALLET_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service:    "walletd",
		Env:        env,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}
	telemetryCfg, err := telemetry.ApplyEnv(cfg.Telemetry.exporterConfig(env, cfg.Storage.Backend, loc))
	if err != nil {
		return fmt.Errorf("telemetry config: %w", err)
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()
	catalog, err := config.LoadPlans(cfg.PlansPath)
	if err != nil {
		return fmt.Errorf("load plans: %w", err)
	}
	store, err := openStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	ledger := NewLedger(store, catalog, Policy{AdminRole: cfg.Auth.AdminRole},
		WithLocation(loc),
		WithLogger(logger),
		WithMetrics(NewMetrics()),
		WithRetries(cfg.Ledger.MaxRetries, cfg.Ledger.RetryBackoff.Duration),
		WithWalletRules(cfg.Wallet.MinWithdrawal.Decimal, cfg.Wallet.DailyBonus.Decimal),
		WithDefaultSettings(cfg.Settings),
		WithReportDir(cfg.Reports.Dir),
	)
	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		RoleClaim:  cfg.Auth.RoleClaim,
		ClockSkew:  cfg.Auth.ClockSkew.Duration,
	}, logger)
	server := NewServer(ServerConfig{
		Ledger:        ledger,
		Authenticator: auth,
		RateLimit: middleware.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		CORS:   middleware.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins},
		Logger: logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("walletd listening",
			slog.String("addr", cfg.ListenAddress),
			slog.String("storage", cfg.Storage.Backend),
			slog.String("timezone", loc.String()))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func openStore(cfg StorageConfig) (*storage.Store, error) {
	var (
		backend storage.Backend
		err     error
	)
	if cfg.Backend == BackendLevelDB || cfg.Backend == BackendBolt {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	switch cfg.Backend {
	case BackendMemory:
		return storage.NewMemory(), nil
	case BackendLevelDB:
		backend, err = storage.NewLevelDB(cfg.Path)
	case BackendBolt:
		backend, err = storage.NewBolt(cfg.Path, nil)
	case BackendSQLite:
		backend, err = storage.OpenSQLite(cfg.DSN)
	case BackendPostgres:
		backend, err = storage.OpenPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return storage.New(backend), nil
}
