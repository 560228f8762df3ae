package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davidleathers/number-provisioning-backend/internal/api/rest"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/number"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/cache"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/carrier"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/config"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/repository"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/telemetry"
	"github.com/davidleathers/number-provisioning-backend/internal/metrics"
	"github.com/davidleathers/number-provisioning-backend/internal/service/compliance"
	"github.com/davidleathers/number-provisioning-backend/internal/service/provisioning"
	"github.com/davidleathers/number-provisioning-backend/internal/service/reconciler"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	meterProvider, err := setupMetrics(cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown", "error", err)
		}
	}()

	registry, err := metrics.NewRegistry("number-provisioning-backend")
	if err != nil {
		return err
	}

	pool, err := repository.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	eventCache, err := cache.NewEventCache(cfg.Redis, 24*time.Hour, logger)
	if err != nil {
		return err
	}
	defer eventCache.Close()

	numbers := repository.NewNumberRepository(pool)
	groups := repository.NewRequirementGroupRepository(pool)

	resolver := carrier.NewResolver(
		carrier.TwilioConfig{
			AccountSID:   cfg.Carriers.Twilio.AccountSID,
			AuthToken:    cfg.Carriers.Twilio.AuthToken,
			BaseURL:      cfg.Carriers.Twilio.BaseURL,
			Timeout:      cfg.Carriers.Twilio.Timeout,
			RateLimitRPS: cfg.Carriers.Twilio.RateLimitRPS,
		},
		carrier.TelnyxConfig{
			APIKey:       cfg.Carriers.Telnyx.APIKey,
			BaseURL:      cfg.Carriers.Telnyx.BaseURL,
			Timeout:      cfg.Carriers.Telnyx.Timeout,
			RateLimitRPS: cfg.Carriers.Telnyx.RateLimitRPS,
		},
	)

	primary, err := number.ParseProvider(cfg.Carriers.Primary)
	if err != nil {
		return err
	}

	complianceSvc := compliance.NewService(groups, resolver, registry, logger)
	provisioningSvc := provisioning.NewService(numbers, groups, resolver, registry, provisioning.Config{
		PrimaryProvider: primary,
	}, logger)
	verifier := carrier.NewHMACVerifier(cfg.Webhook.SigningSecret, cfg.Webhook.Tolerance)
	reconcilerSvc := reconciler.NewService(complianceSvc, numbers, verifier, eventCache, registry, logger)

	handler := rest.NewHandler(rest.Services{
		Provisioning: provisioningSvc,
		Compliance:   complianceSvc,
		Webhooks:     reconcilerSvc,
	}, rest.NewHealthChecker(map[string]rest.Pinger{
		"postgres": pool,
		"redis":    eventCache,
	}), logger)

	server := rest.NewServer(cfg.Server, handler, logger)
	logger.Info("starting number provisioning service",
		"version", cfg.Version, "environment", cfg.Environment, "primary_provider", primary.String())
	return server.Run(ctx)
}
