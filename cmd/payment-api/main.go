package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/josh-kwaku/settlement/internal/callback"
	"github.com/josh-kwaku/settlement/internal/config"
	"github.com/josh-kwaku/settlement/internal/handler"
	"github.com/josh-kwaku/settlement/internal/logging"
	"github.com/josh-kwaku/settlement/internal/metrics"
	"github.com/josh-kwaku/settlement/internal/middleware"
	"github.com/josh-kwaku/settlement/internal/migration"
	"github.com/josh-kwaku/settlement/internal/outbox"
	"github.com/josh-kwaku/settlement/internal/repository"
	"github.com/josh-kwaku/settlement/internal/service/payment"
)

const serviceName = "payment-api"

func main() {
	cfg, err := config.LoadPayment()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init(serviceName, cfg.LogLevel, cfg.AppEnv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := migration.Run(db); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg, serviceName)

	providers, err := buildRegistry(cfg)
	if err != nil {
		slog.Error("failed to build provider registry", "error", err)
		os.Exit(1)
	}

	notifier := callback.NewNotifier(cfg.OrderBaseURL, cfg.OrderSecret, cfg.CallbackTimeout)
	outboxRepo := repository.NewOutboxRepository(db)

	payments := payment.NewService(
		repository.NewPaymentRepository(db),
		outboxRepo,
		providers,
		notifier,
		db,
		m,
		cfg,
	)

	checks := map[string]handler.Check{"postgres": db.PingContext}
	publisher, closeSinks, err := buildPublisher(ctx, cfg, notifier, checks)
	if err != nil {
		slog.Error("failed to build outbox publisher", "error", err)
		os.Exit(1)
	}
	defer closeSinks()

	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, m, logger, outbox.Config{
		Interval:    cfg.OutboxPollInterval,
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
		BaseBackoff: cfg.OutboxBaseBackoff,
	})
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Start(ctx)
	}()

	paymentHandler := handler.NewPaymentHandler(payments)
	webhookHandler := handler.NewWebhookHandler(payments)
	healthHandler := handler.NewHealthHandler(serviceName, checks)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	mux.HandleFunc("POST /api/payments", paymentHandler.Create)
	mux.HandleFunc("GET /api/payments/{id}", paymentHandler.Get)
	mux.HandleFunc("POST /api/payments/webhook/{provider}", webhookHandler.Receive)
	if cfg.AllowSimulation {
		mux.HandleFunc("POST /api/payments/simulate/{id}", paymentHandler.Simulate)
		slog.Warn("payment simulation endpoint enabled")
	}

	h := middleware.Chain(mux,
		middleware.Tracing,
		middleware.Logging,
		middleware.Recovery,
		middleware.Metrics(m),
	)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr, "providers", providers.Names())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	cancel()
	select {
	case <-dispatcherDone:
	case <-shutdownCtx.Done():
		slog.Warn("outbox dispatcher did not stop in time")
	}
	slog.Info("server stopped")
}
