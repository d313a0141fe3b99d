package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"isawan/internal/archive"
	"isawan/internal/config"
	"isawan/internal/database"
	"isawan/internal/handler"
	"isawan/internal/metrics"
	"isawan/internal/middleware"
	"isawan/internal/payment"
	"isawan/internal/repository"
	"isawan/internal/router"
	"isawan/internal/service"
	"isawan/internal/tracing"

	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := config.NewLogger(cfg.Logger, "isawan")
	logger.Info().Msg("starting isawan order service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("failed to flush traces")
		}
	}()

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	archiver, err := archive.New(ctx, cfg.Archive, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize webhook archive: %w", err)
	}

	m := metrics.New()
	orderRepo := repository.NewOrderRepository(pool, logger)
	processor := payment.NewClient(cfg.PayMongo, logger)

	orderService := service.NewOrderService(orderRepo, processor, cfg.Checkout, m, logger)
	reconciler := service.NewReconciliationService(orderRepo, processor, archiver, service.ReconcileOptions{
		WebhookSecret:      cfg.PayMongo.WebhookSecret,
		SignatureTolerance: cfg.PayMongo.WebhookTolerance,
		MinAge:             cfg.Reconcile.MinAge,
		BatchSize:          cfg.Reconcile.BatchSize,
	}, m, logger)

	if cfg.PayMongo.WebhookSecret == "" {
		logger.Warn().Msg("PAYMONGO_WEBHOOK_SECRET not set, webhook signatures are not verified")
	}

	mux := router.New(router.Handlers{
		Order:   handler.NewOrderHandler(orderService, logger),
		Payment: handler.NewPaymentHandler(reconciler, logger),
		Health:  handler.NewHealthHandler(pool, logger),
	}, router.Options{
		APIKey:    cfg.Auth.APIKey,
		RateLimit: middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		Metrics:   m,
	}, logger)

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Msg("HTTP server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return service.NewSweeper(reconciler, cfg.Reconcile.Interval, logger).Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown signal received, starting graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("server shutdown completed")
		return nil
	})

	return g.Wait()
}
