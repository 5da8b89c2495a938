package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"investsim/internal/api"
	"investsim/internal/clock"
	"investsim/internal/config"
	"investsim/internal/ledger"
	"investsim/internal/projection"
	"investsim/internal/reconcile"
	"investsim/internal/repository"
	"investsim/internal/repository/badger"
	"investsim/internal/repository/memory"
	"investsim/internal/repository/signed"
	"investsim/internal/service"
	"investsim/pkg/crypto"
	"investsim/pkg/currency"
	"investsim/pkg/metrics"
)

const (
	appName = "investsim"
)

func main() {
	configPath := flag.String("config", "investsim.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath, os.Getenv("INVESTSIM_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info("Starting application",
		slog.String("name", appName),
		slog.String("storage", cfg.Storage.Backend))

	if err := run(cfg, logger); err != nil {
		logger.Error("Application failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Application shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()
	clk := clock.NewReal()

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	catalog, err := memory.NewPlanCatalog(cfg.Plans)
	if err != nil {
		return fmt.Errorf("failed to build plan catalog: %w", err)
	}
	converter, err := currency.NewConverter(cfg.Currency.Rates)
	if err != nil {
		return fmt.Errorf("failed to build currency converter: %w", err)
	}

	metricsCollector := metrics.NewMetricsCollector(logger)
	notificationService := service.NewNotificationService(
		nil,
		&service.LogPushService{Logger: logger},
		service.Recipients{DeviceID: "local-device"},
		2,
		logger,
	)

	l := ledger.New(ledger.Config{
		InitialBalance: cfg.Ledger.InitialBalance,
		MaxDeposit:     cfg.Ledger.MaxDeposit,
		WriteBuffer:    cfg.Ledger.WriteBuffer,
	}, catalog, store, clk, logger,
		ledger.WithRecorder(metricsCollector),
		ledger.WithNotifier(notificationService))
	l.Load(ctx)

	job := reconcile.NewJob(l, catalog, clk, reconcile.Config{
		MinInterval:   cfg.Reconcile.GetMinInterval(),
		DustThreshold: cfg.Reconcile.DustThreshold,
	}, logger, metricsCollector)
	if cfg.Reconcile.RunOnStart {
		// A failed sweep leaves the ledger untouched and is retried on the
		// next start; the app keeps running.
		if _, err := job.Run(ctx); err != nil {
			logger.Error("Startup reconciliation failed", slog.String("error", err.Error()))
		}
	}

	apiHandler := api.NewAPIHandler(l, catalog, converter, metricsCollector, clk, logger,
		api.WithFixedRates(projection.FixedRateTable{
			DailyRate: cfg.FixedRate.DailyRate,
			Days:      cfg.FixedRate.Days,
		}),
		api.WithReconciler(job),
		api.WithRateLimit(cfg.API.RateLimit, cfg.API.Burst))

	metricsServer := metricsCollector.StartMetricsServer(cfg.Server.MetricsAddr)
	httpServer := startHTTPServer(cfg.Server.Addr, apiHandler, logger)

	waitForShutdown(logger, cfg.Server.GetShutdownTimeout(), httpServer, metricsServer, metricsCollector, l, notificationService)
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// openStore returns the signed key-value store and a func that releases it.
func openStore(cfg *config.Config, logger *slog.Logger) (repository.KeyValueStore, func(), error) {
	signer := crypto.NewSigner(cfg.Signing.Secret, logger)

	switch cfg.Storage.Backend {
	case "badger":
		kv, err := badger.Open(cfg.Storage.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := kv.Close(); err != nil {
				logger.Error("Store close failed", slog.String("error", err.Error()))
			}
		}
		return signed.NewStore(kv, signer), closeFn, nil
	default:
		logger.Warn("Using in-memory storage, state is lost on exit")
		return signed.NewStore(memory.NewKVStore(), signer), func() {}, nil
	}
}

func startHTTPServer(addr string, apiHandler *api.APIHandler, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:         addr,
		Handler:      apiHandler.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(
	logger *slog.Logger,
	timeout time.Duration,
	httpServer *http.Server,
	metricsServer *http.Server,
	metricsCollector *metrics.MetricsCollector,
	l *ledger.Ledger,
	notificationService *service.NotificationService,
) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	// Pending ledger writes must land before the store is closed.
	if err := l.Close(ctx); err != nil {
		logger.Error("Ledger close failed", slog.String("error", err.Error()))
	}

	if err := notificationService.Shutdown(ctx); err != nil {
		logger.Error("Notification service shutdown failed", slog.String("error", err.Error()))
	}

	if err := metricsCollector.Shutdown(ctx, metricsServer); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}
}
