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
	"github.com/josh-kwaku/settlement/internal/repository"
	"github.com/josh-kwaku/settlement/internal/service/order"
)

const (
	serviceName = "order-api"

	idempotencyCleanupInterval = time.Hour
)

func main() {
	cfg, err := config.LoadOrder()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init(serviceName, cfg.LogLevel, cfg.AppEnv)

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

	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET not set, bearer tokens are ignored")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg, serviceName)

	orders := order.NewService(
		repository.NewCartRepository(db),
		repository.NewOrderRepository(db),
		callback.NewVerifier(cfg.PaymentSecret, cfg.CallbackMaxSkew),
		db,
		m,
	)

	idempotencyRepo := repository.NewIdempotencyRepository(db)
	go cleanIdempotencyCache(ctx, idempotencyRepo)

	orderHandler := handler.NewOrderHandler(orders)
	healthHandler := handler.NewHealthHandler(serviceName, map[string]handler.Check{
		"postgres": db.PingContext,
	})
	idempotent := middleware.Idempotency(idempotencyRepo)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	mux.HandleFunc("POST /api/orders/payment/callback", orderHandler.PaymentCallback)
	mux.Handle("POST /api/orders/checkout", idempotent(http.HandlerFunc(orderHandler.Checkout)))
	mux.HandleFunc("GET /api/orders/{orderNo}", orderHandler.Get)
	mux.HandleFunc("POST /api/carts/items", orderHandler.AddCartItem)

	h := middleware.Chain(mux,
		middleware.Tracing,
		middleware.Auth(cfg.JWTSecret),
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
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

type expiredCleaner interface {
	CleanExpired(ctx context.Context) (int64, error)
}

func cleanIdempotencyCache(ctx context.Context, repo expiredCleaner) {
	ticker := time.NewTicker(idempotencyCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.CleanExpired(ctx)
			if err != nil {
				slog.Error("idempotency cache cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("idempotency cache cleaned", "deleted", n)
			}
		}
	}
}
