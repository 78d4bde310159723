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

	env "github.com/caarlos0/env/v11"

	"github.com/josh-kwaku/settlement/internal/logging"
)

type mockConfig struct {
	Port        int           `env:"PORT" envDefault:"8081"`
	PublicURL   string        `env:"MOCK_PUBLIC_URL" envDefault:"http://localhost:8081"`
	Secret      string        `env:"SANDBOX_PROVIDER_SECRET,required"`
	SettleDelay time.Duration `env:"MOCK_SETTLE_DELAY" envDefault:"2s"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string        `env:"APP_ENV" envDefault:"development"`
}

func main() {
	cfg, err := env.ParseAs[mockConfig]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("mock-provider", cfg.LogLevel, cfg.AppEnv)

	gw := newGateway(cfg.PublicURL, cfg.Secret, cfg.SettleDelay)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           gw.routes(),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("mock provider started", "addr", addr, "settle_delay", cfg.SettleDelay)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	gw.wait()
	slog.Info("mock provider stopped")
}
