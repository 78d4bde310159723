package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Common struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

type Payment struct {
	Common

	// Shared with the order service as INTEGRATIONS_PAYMENT_SECRET.
	OrderSecret     string        `env:"INTEGRATIONS_ORDER_SECRET,required"`
	OrderBaseURL    string        `env:"INTEGRATIONS_ORDER_BASE_URL" envDefault:"http://order-api:8080"`
	CallbackTimeout time.Duration `env:"CALLBACK_TIMEOUT" envDefault:"5s"`

	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
	AllowSimulation bool          `env:"PAYMENT_ALLOW_SIMULATION" envDefault:"false"`

	SandboxBaseURL      string `env:"SANDBOX_PROVIDER_URL" envDefault:"http://mock-provider:8081"`
	SandboxSecret       string `env:"SANDBOX_PROVIDER_SECRET"`
	WebhookBaseURL      string `env:"WEBHOOK_BASE_URL" envDefault:"http://payment-api:8080/api/payments/webhook"`
	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`

	OutboxSinks        []string      `env:"OUTBOX_SINKS" envSeparator:"," envDefault:"callback"`
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"20"`
	OutboxMaxAttempts  int           `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"10"`
	OutboxBaseBackoff  time.Duration `env:"OUTBOX_BASE_BACKOFF" envDefault:"5s"`
	SNSTopicARN        string        `env:"OUTBOX_SNS_TOPIC_ARN"`
	RedisURL           string        `env:"OUTBOX_REDIS_URL"`
	RedisStream        string        `env:"OUTBOX_REDIS_STREAM" envDefault:"payments.events"`
}

type Order struct {
	Common

	// Shared with the payment service as INTEGRATIONS_ORDER_SECRET.
	PaymentSecret   string        `env:"INTEGRATIONS_PAYMENT_SECRET,required"`
	CallbackMaxSkew time.Duration `env:"CALLBACK_MAX_SKEW" envDefault:"5m"`
	JWTSecret       string        `env:"JWT_SECRET"`
}

func LoadPayment() (*Payment, error) {
	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("config.LoadPayment: %w", err)
	}
	cfg, err := env.ParseAs[Payment]()
	if err != nil {
		return nil, fmt.Errorf("config.LoadPayment: %w", err)
	}
	return &cfg, nil
}

func LoadOrder() (*Order, error) {
	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("config.LoadOrder: %w", err)
	}
	cfg, err := env.ParseAs[Order]()
	if err != nil {
		return nil, fmt.Errorf("config.LoadOrder: %w", err)
	}
	return &cfg, nil
}

// A missing .env file is normal outside local development.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}
