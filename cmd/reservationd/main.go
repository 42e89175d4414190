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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	billingapp "github.com/argsms/rangepool/internal/billing/app"
	billingpg "github.com/argsms/rangepool/internal/billing/repository/postgres"
	catalogapp "github.com/argsms/rangepool/internal/catalog/app"
	catalogpg "github.com/argsms/rangepool/internal/catalog/repository/postgres"
	"github.com/argsms/rangepool/internal/clock"
	identityapp "github.com/argsms/rangepool/internal/identity/app"
	identitypg "github.com/argsms/rangepool/internal/identity/repository/postgres"
	"github.com/argsms/rangepool/internal/platform/config"
	"github.com/argsms/rangepool/internal/platform/database"
	"github.com/argsms/rangepool/internal/platform/logger"
	"github.com/argsms/rangepool/internal/platform/messagebroker"
	pricingapp "github.com/argsms/rangepool/internal/pricing/app"
	pricingpg "github.com/argsms/rangepool/internal/pricing/repository/postgres"
	reservationapp "github.com/argsms/rangepool/internal/reservation/app"
	reservationpg "github.com/argsms/rangepool/internal/reservation/repository/postgres"
	transporthttp "github.com/argsms/rangepool/internal/transport/http"
	"github.com/argsms/rangepool/migrations"
)

const (
	serviceName     = "reservationd"
	shutdownTimeout = 15 * time.Second
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("reservation daemon starting",
		"http_port", cfg.HTTPPort,
		"metrics_port", cfg.MetricsPort,
		"log_level", cfg.LogLevel,
	)

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN, appLogger)
	if err != nil {
		appLogger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := migrations.Apply(mainCtx, dbPool); err != nil {
		appLogger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}
	appLogger.Info("database schema up to date")

	// The NATS connection is optional: with no URL configured the engine runs
	// without event publishing.
	var publisher reservationapp.EventPublisher
	if cfg.NATSUrl != "" {
		natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger)
		if err != nil {
			appLogger.Error("failed to connect to NATS", "url", cfg.NATSUrl, "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = natsClient
	} else {
		appLogger.Info("NATS URL not configured, hold lifecycle events disabled")
	}

	holdRepo := reservationpg.NewPgHoldRepository(dbPool, appLogger)
	catalogRepo := catalogpg.NewPgCatalogRepository(dbPool, appLogger)
	priceRuleRepo := pricingpg.NewPgPriceRuleRepository(dbPool, appLogger)
	transactionRepo := billingpg.NewPgTransactionRepository(dbPool, appLogger)
	userRepo := identitypg.NewPgUserRepository(dbPool, appLogger)

	identityService := identityapp.NewIdentityService(userRepo, appLogger)
	ledgerService := billingapp.NewLedgerService(transactionRepo, appLogger)
	catalogService := catalogapp.NewCatalogService(catalogRepo, appLogger)
	resolver := pricingapp.NewResolver(priceRuleRepo, cfg.DefaultUnitPrice, appLogger)

	engine := reservationapp.NewEngine(
		dbPool,
		holdRepo,
		catalogService,
		resolver,
		ledgerService,
		userRepo,
		publisher,
		clock.NewSystem(),
		reservationapp.EngineConfig{
			HoldInitialTTL:      cfg.HoldInitialTTL,
			HoldRetryTTL:        cfg.HoldRetryTTL,
			AllocationBatchSize: cfg.AllocationBatchSize,
			SweepBatchSize:      cfg.SweepBatchSize,
		},
		appLogger,
	)
	sweeper := reservationapp.NewSweeper(engine, clock.NewSystem(), cfg.SweepInterval, appLogger)

	router := transporthttp.NewRouter(transporthttp.RouterDeps{
		Engine:         engine,
		Identity:       identityService,
		Ledger:         ledgerService,
		Resolver:       resolver,
		Catalog:        catalogService,
		AdminJWTSecret: cfg.AdminJWTSecret,
		Logger:         appLogger,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server failed", "error", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		appLogger.Info("metrics server starting", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("metrics server failed", "error", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := sweeper.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)

	g.Go(func() error {
		select {
		case sig := <-stopSignal:
			appLogger.Info("received termination signal", "signal", sig.String())
			mainCancel()
		case <-groupCtx.Done():
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("initiating graceful shutdown")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		var shutdownErrs error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrs = errors.Join(shutdownErrs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrs = errors.Join(shutdownErrs, fmt.Errorf("metrics shutdown: %w", err))
		}
		return shutdownErrs
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("reservation daemon stopped")
}
