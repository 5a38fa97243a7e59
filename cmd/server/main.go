package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tirepos/backend/internal/cache"
	"tirepos/backend/internal/config"
	"tirepos/backend/internal/events"
	"tirepos/backend/internal/httpapi"
	"tirepos/backend/internal/invoice"
	"tirepos/backend/internal/metrics"
	"tirepos/backend/internal/seed"
	"tirepos/backend/internal/service"
	"tirepos/backend/internal/store"
	"tirepos/backend/internal/store/memory"
	pgstore "tirepos/backend/internal/store/postgres"
)

const (
	Version = "0.1.0"
	appName = "tirepos"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	serve := func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return run(config.Load())
	}

	cmd := &cobra.Command{
		Use:          appName,
		Short:        "Tire retail POS and back-office API",
		SilenceUsage: true,
		RunE:         serve,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before reading the environment")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  serve,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "seed-check <file>",
		Short: "Validate a seed data file without starting the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := seed.LoadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seed ok: %d users, %d stores, %d products, %d sales\n",
				len(data.Users), len(data.Stores), len(data.Products), len(data.Sales))
			return nil
		},
	})

	return cmd
}

func run(cfg config.Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}
	if err := weakPassword(cfg.DefaultResetPassword); err != nil {
		logger.Warn("default reset password is weak; owners should change it after a reset", "reason", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 3)
	defer func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Warn("close error", "error", err)
			}
		}
	}()

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	scopeCache := cache.ScopeCache(cache.NoopScopeCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisScopeCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop scope cache", "error", err)
			_ = redisCache.Close()
		} else {
			scopeCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("scope cache: redis", "addr", cfg.RedisAddr)
		}
	} else {
		logger.Info("scope cache: noop")
	}

	publisher := events.Publisher(events.NoopPublisher{})
	if cfg.NATSURL != "" {
		natsPublisher, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			logger.Warn("nats unavailable, events disabled", "error", err)
		} else {
			publisher = natsPublisher
			closers = append(closers, natsPublisher.Close)
			logger.Info("events: nats", "url", cfg.NATSURL)
		}
	} else {
		logger.Info("events: noop")
	}

	m := metrics.New()
	svc := service.New(repo, service.Options{
		Logger:               logger,
		ScopeCache:           scopeCache,
		ScopeCacheTTL:        cfg.ScopeCacheTTL(),
		Events:               publisher,
		Metrics:              m,
		Invoices:             invoice.NewSimulatedSubmitter(cfg.InvoiceDelay()),
		LowStockThreshold:    cfg.LowStockThreshold,
		DefaultResetPassword: cfg.DefaultResetPassword,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo, logger)
	api := httpapi.New(svc, auth, m, logger, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("tirepos backend listening", "addr", cfg.Address(), "version", Version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

// openRepository returns postgres when DATABASE_URL is set and the in-memory
// store otherwise. A configured but unreachable database is fatal.
func openRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Repository, func() error, error) {
	data, err := loadSeed(cfg.SeedFile)
	if err != nil {
		return nil, nil, err
	}

	if cfg.DatabaseURL == "" {
		repo, err := memory.NewFromSeed(data)
		if err != nil {
			return nil, nil, fmt.Errorf("seed in-memory store: %w", err)
		}
		repo.LogState(logger)
		logger.Info("repository: in-memory")
		return repo, nil, nil
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	seeded, err := pg.Bootstrap(ctx, data)
	if err != nil {
		_ = pg.Close()
		return nil, nil, fmt.Errorf("bootstrap: %w", err)
	}
	logger.Info("repository: postgres", "seeded", seeded)
	return pg, pg.Close, nil
}

func loadSeed(path string) (*seed.Data, error) {
	if path == "" {
		return seed.Default()
	}
	data, err := seed.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load seed file %s: %w", path, err)
	}
	return data, nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AccessTokenTTLMinutes > 24*60 {
		return fmt.Errorf("ACCESS_TOKEN_TTL_MINUTES must not exceed one day")
	}
	if cfg.DefaultResetPassword == "" {
		return fmt.Errorf("DEFAULT_RESET_PASSWORD must not be empty")
	}
	return nil
}

// weakPassword reports numeric passwords that are all one digit,
// sequential, or on a short list of common choices.
func weakPassword(pw string) error {
	known := map[string]bool{
		"1234": true, "0000": true, "1111": true, "123456": true, "654321": true,
		"000000": true, "111111": true, "121212": true, "112233": true, "123123": true,
	}
	if known[pw] {
		return fmt.Errorf("common password")
	}
	if len(pw) < 6 {
		return fmt.Errorf("shorter than 6 characters")
	}

	allSame := true
	for i := 1; i < len(pw); i++ {
		if pw[i] != pw[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-character password")
	}

	ascending, descending := true, true
	for i := 1; i < len(pw); i++ {
		diff := int(pw[i]) - int(pw[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential password")
	}
	return nil
}
