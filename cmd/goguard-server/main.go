// Command goguard-server runs the admin security API: login with optional
// email two-factor, device tracking, incident recording and reporting.
//
// Configuration is read from a YAML file (-config, GOGUARD_CONFIG or the
// default search paths) and overridden by GOGUARD_* environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/fieldcrypt"
	"github.com/MrEthical07/goGuard/internal/config"
	"github.com/MrEthical07/goGuard/internal/httpapi"
	"github.com/MrEthical07/goGuard/internal/logging"
	"github.com/MrEthical07/goGuard/internal/memstore"
	goguardprom "github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/MrEthical07/goGuard/notify"
	"github.com/MrEthical07/goGuard/store/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "goguard-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	builder := goGuard.New().
		WithConfig(cfg.Guard).
		WithStore(store).
		WithRedis(rdb).
		WithNotifier(newNotifier(cfg, logger)).
		WithLogger(logger)
	if cfg.Guard.Audit.Enabled {
		builder = builder.WithAuditSink(goGuard.NewZerologAuditSink(logger.With().Str("component", "audit").Logger()))
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	if err := bootstrapAdmin(ctx, engine, cfg.Bootstrap, logger); err != nil {
		return err
	}

	var metrics http.Handler
	if cfg.Guard.Metrics.Enabled && cfg.Server.MetricsPath != "" {
		metrics = goguardprom.Handler(goguardprom.NewCollector(engine))
	}

	handler := httpapi.NewRouter(httpapi.Options{
		Engine:           engine,
		Prefix:           cfg.Server.APIPrefix,
		CORSOrigins:      cfg.Server.CORSOrigins,
		LoginPerHour:     cfg.Server.LoginPerHour,
		TrustForwardedIP: cfg.Server.TrustForwardedIP,
		Gate: middleware.GateConfig{
			PathPrefix:     cfg.Gate.PathPrefix,
			AllowedIPs:     cfg.Gate.AllowedIPs,
			AccessPassword: cfg.Gate.AccessPassword,
			PublicPaths:    cfg.Gate.PublicPaths,
			TTL:            cfg.Gate.TTL,
			SecureCookie:   cfg.Gate.SecureCookie,
		},
		Monitor:           cfg.Monitor.Enabled,
		SensitivePrefixes: cfg.Monitor.SensitivePrefixes,
		Metrics:           metrics,
		MetricsPath:       cfg.Server.MetricsPath,
		Logger:            logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("store", cfg.Store.Driver).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (goGuard.Store, func(), error) {
	if cfg.Store.Driver != "postgres" {
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		return memstore.New(), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	pool, err := postgres.Connect(connectCtx, cfg.Store.DSN, cfg.Store.MaxConns)
	if err != nil {
		return nil, nil, err
	}

	var opts []postgres.Option
	if secret := cfg.Guard.Encryption.Secret; secret != "" {
		enc, err := fieldcrypt.New(secret, nil)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("field encryption: %w", err)
		}
		opts = append(opts, postgres.WithEncryptor(enc))
	}
	store := postgres.New(pool, opts...)
	if cfg.Store.Migrate {
		if err := store.Migrate(connectCtx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info().Msg("database schema applied")
	}
	return store, pool.Close, nil
}

func newNotifier(cfg *config.Config, logger zerolog.Logger) goGuard.Notifier {
	if cfg.SMTP.Host == "" {
		logger.Warn().Msg("smtp not configured; notifications are logged only")
		return notify.LogSender{Logger: logger.With().Str("component", "notify").Logger()}
	}
	sender, err := notify.NewSMTPSender(cfg.SMTP)
	if err != nil {
		logger.Error().Err(err).Msg("smtp sender disabled")
		return notify.LogSender{Logger: logger.With().Str("component", "notify").Logger()}
	}
	return notify.NewBreakerSender(sender, notify.BreakerConfig{
		Name:                "smtp",
		ConsecutiveFailures: cfg.Breaker.Failures,
		Timeout:             cfg.Breaker.Timeout,
	}, logger)
}

func bootstrapAdmin(ctx context.Context, engine *goGuard.Engine, cfg config.BootstrapConfig, logger zerolog.Logger) error {
	if cfg.AdminUsername == "" {
		return nil
	}
	acct, err := engine.CreateAccount(ctx, goGuard.CreateAccountRequest{
		Username: cfg.AdminUsername,
		Password: cfg.AdminPassword,
		Email:    cfg.AdminEmail,
		Role:     goGuard.RoleAdmin,
	})
	switch {
	case errors.Is(err, goGuard.ErrAccountExists):
		return nil
	case err != nil:
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	logger.Info().Str("account_id", acct.ID).Str("username", acct.Username).Msg("bootstrap administrator created")
	return nil
}
