package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/text/language"

	"github.com/dmitrymomot/subscription-api/pkg/config"
	"github.com/dmitrymomot/subscription-api/pkg/jwt"
	"github.com/dmitrymomot/subscription-api/pkg/logger"
	"github.com/dmitrymomot/subscription-api/svc/subscription"
)

const (
	driverMemory   = "memory"
	driverMongo    = "mongo"
	driverPostgres = "postgres"
	driverRedis    = "redis"

	gatewayStripe  = "stripe"
	gatewayPaddle  = "paddle"
	gatewaySandbox = "sandbox"
)

type appConfig struct {
	Env           string        `env:"APP_ENV" envDefault:"development"`
	Name          string        `env:"APP_NAME" envDefault:"subscription-api"`
	StorageDriver string        `env:"STORAGE_DRIVER" envDefault:"memory"`
	Gateway       string        `env:"GATEWAY" envDefault:"sandbox"`
	LedgerDriver  string        `env:"LEDGER_DRIVER" envDefault:"memory"`
	LedgerTTL     time.Duration `env:"LEDGER_TTL" envDefault:"72h"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`
	JWTIssuer string        `env:"JWT_ISSUER"`

	SuccessURL string `env:"CHECKOUT_SUCCESS_URL" envDefault:"http://localhost:8080/subscription/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL  string `env:"CHECKOUT_CANCEL_URL" envDefault:"http://localhost:8080/plans"`
	PlansFile  string `env:"PLANS_FILE"`

	Languages []string `env:"APP_LANGUAGES" envDefault:"en-US,de,fr,es"`

	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"subscription_api"`
	BreakerEnabled   bool   `env:"GATEWAY_BREAKER_ENABLED" envDefault:"true"`
}

func loadAppConfig() (appConfig, error) {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return cfg, err
	}
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	cfg.Gateway = strings.ToLower(cfg.Gateway)
	cfg.LedgerDriver = strings.ToLower(cfg.LedgerDriver)

	switch cfg.StorageDriver {
	case driverMemory, driverMongo, driverPostgres:
	default:
		return cfg, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	switch cfg.Gateway {
	case gatewayStripe, gatewayPaddle, gatewaySandbox:
	default:
		return cfg, fmt.Errorf("unsupported GATEWAY %q", cfg.Gateway)
	}
	switch cfg.LedgerDriver {
	case driverMemory, driverRedis:
	default:
		return cfg, fmt.Errorf("unsupported LEDGER_DRIVER %q", cfg.LedgerDriver)
	}
	if _, err := languageTags(cfg.Languages); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// languageTags parses the configured display languages. The first one is
// the fallback for unmatched Accept-Language headers.
func languageTags(names []string) ([]language.Tag, error) {
	tags := make([]language.Tag, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		tag, err := language.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("invalid APP_LANGUAGES entry %q: %w", name, err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func newLogger(cfg appConfig) *slog.Logger {
	return logger.New(
		logger.WithEnvironment(cfg.Env, cfg.Name),
		logger.WithContextExtractors(requestIDFromContext, userIDFromContext),
	)
}

func requestIDFromContext(ctx context.Context) (slog.Attr, bool) {
	id := middleware.GetReqID(ctx)
	if id == "" {
		return slog.Attr{}, false
	}
	return slog.String("request_id", id), true
}

func userIDFromContext(ctx context.Context) (slog.Attr, bool) {
	id := jwt.UserIDFromContext(ctx)
	if id == "" {
		return slog.Attr{}, false
	}
	return logger.UserID(id), true
}

func plansSource(cfg appConfig) subscription.PlansSource {
	if cfg.PlansFile != "" {
		return subscription.NewYAMLSource(cfg.PlansFile)
	}
	return subscription.NewInMemSource(subscription.DefaultPlans()...)
}
