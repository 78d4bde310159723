package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/josh-kwaku/settlement/internal/callback"
	"github.com/josh-kwaku/settlement/internal/config"
	"github.com/josh-kwaku/settlement/internal/handler"
	"github.com/josh-kwaku/settlement/internal/outbox"
	"github.com/josh-kwaku/settlement/internal/provider"
)

// Sandbox gateways served by the mock provider.
var sandboxGateways = []string{"vnpay", "momo"}

// fakeEnabled reports whether the in-process fake provider may take payments.
func fakeEnabled(cfg *config.Payment) bool {
	return cfg.AllowSimulation || cfg.AppEnv == "development"
}

func buildRegistry(cfg *config.Payment) (*provider.Registry, error) {
	var providers []provider.Provider
	if fakeEnabled(cfg) {
		if cfg.SandboxSecret == "" {
			slog.Warn("fake provider registered without SANDBOX_PROVIDER_SECRET, its webhooks will be rejected")
		}
		providers = append(providers,
			provider.NewFake(cfg.SandboxSecret, strings.TrimRight(cfg.SandboxBaseURL, "/")+"/pay"))
	}
	for _, name := range sandboxGateways {
		providers = append(providers, provider.NewSandbox(
			name, cfg.SandboxBaseURL, cfg.WebhookBaseURL, cfg.SandboxSecret, cfg.ProviderTimeout,
		))
	}
	if cfg.StripeSecretKey != "" {
		providers = append(providers, provider.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret))
	}

	reg, err := provider.NewRegistry(providers...)
	if err != nil {
		return nil, fmt.Errorf("buildRegistry: %w", err)
	}
	return reg, nil
}

// buildPublisher assembles the outbox sinks named in config. Sinks that hold
// a connection add a readiness check and are closed by the returned func.
func buildPublisher(ctx context.Context, cfg *config.Payment, notifier *callback.Notifier, checks map[string]handler.Check) (outbox.Publisher, func(), error) {
	var (
		sinks   outbox.Multi
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	for _, name := range cfg.OutboxSinks {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
			continue
		case "callback":
			sinks = append(sinks, outbox.NewCallbackPublisher(notifier))
		case "log":
			sinks = append(sinks, outbox.LogPublisher{})
		case "sns":
			p, err := outbox.NewSNSPublisher(ctx, cfg.SNSTopicARN)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("buildPublisher: %w", err)
			}
			sinks = append(sinks, p)
		case "redis":
			p, client, err := outbox.NewRedisPublisher(cfg.RedisURL, cfg.RedisStream)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("buildPublisher: %w", err)
			}
			checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
			closers = append(closers, func() {
				if err := client.Close(); err != nil {
					slog.Error("failed to close redis client", "error", err)
				}
			})
			sinks = append(sinks, p)
		default:
			closeAll()
			return nil, nil, fmt.Errorf("buildPublisher: unknown outbox sink %q", name)
		}
		slog.Info("outbox sink enabled", "sink", sinks[len(sinks)-1].Name())
	}

	if len(sinks) == 0 {
		slog.Warn("no outbox sinks configured, messages will only be logged")
		return outbox.LogPublisher{}, closeAll, nil
	}
	if len(sinks) == 1 {
		return sinks[0], closeAll, nil
	}
	return sinks, closeAll, nil
}
