package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/subscription-api/handler"
	"github.com/dmitrymomot/subscription-api/migrations"
	"github.com/dmitrymomot/subscription-api/modules/account"
	"github.com/dmitrymomot/subscription-api/modules/billing"
	"github.com/dmitrymomot/subscription-api/pkg/config"
	"github.com/dmitrymomot/subscription-api/pkg/httpserver"
	"github.com/dmitrymomot/subscription-api/pkg/jwt"
	"github.com/dmitrymomot/subscription-api/pkg/logger"
	"github.com/dmitrymomot/subscription-api/pkg/mongo"
	"github.com/dmitrymomot/subscription-api/pkg/pg"
	"github.com/dmitrymomot/subscription-api/pkg/redis"
	"github.com/dmitrymomot/subscription-api/svc/auth"
	"github.com/dmitrymomot/subscription-api/svc/subscription"
	"github.com/dmitrymomot/subscription-api/svc/subscription/storage"
)

// app holds the wired dependencies of the serve command.
type app struct {
	cfg     appConfig
	log     *slog.Logger
	handler http.Handler
	checks  []httpserver.Check
	closers []httpserver.Hook
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg appConfig, log *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.close(context.WithoutCancel(ctx))
		}
	}()

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	tokens, err := jwt.New(cfg.JWTSecret, cfg.JWTTTL, jwt.WithIssuer(cfg.JWTIssuer))
	if err != nil {
		return nil, err
	}

	subs, users, err := a.buildStores(ctx)
	if err != nil {
		return nil, err
	}

	ledger, err := a.buildLedger(ctx)
	if err != nil {
		return nil, err
	}

	gateway, signatureHeader, sandbox, err := buildGateway(cfg, log)
	if err != nil {
		return nil, err
	}

	catalog, err := subscription.NewCatalog(ctx, plansSource(cfg))
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := subscription.NewMetrics(reg, cfg.MetricsNamespace)
	if err != nil {
		return nil, err
	}
	if breaker, ok := gateway.(*subscription.BreakerGateway); ok {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: cfg.MetricsNamespace,
			Name:      "gateway_breaker_state",
			Help:      "Payment gateway circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}, func() float64 { return float64(breaker.State()) }))
	}

	languages, err := languageTags(cfg.Languages)
	if err != nil {
		return nil, err
	}

	engine := subscription.NewEngine(subs, gateway, catalog,
		subscription.WithLogger(log),
		subscription.WithObserver(metrics),
		subscription.WithEventLedger(ledger),
		subscription.WithRedirectURLs(cfg.SuccessURL, cfg.CancelURL),
	)

	unauthorized := func(w http.ResponseWriter, r *http.Request, err error) {
		log.DebugContext(r.Context(), "unauthorized request", logger.Error(err))
		handler.DefaultErrorHandler(w, r, handler.ErrUnauthorized)
	}

	billingModule := billing.New(engine, gateway, signatureHeader, jwt.Middleware(tokens, unauthorized),
		billing.WithLogger(log),
		billing.WithLanguages(languages...),
	)
	accountModule := account.New(auth.NewService(users, auth.WithLogger(log)), tokens, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(log, a.checks...))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Group(billingModule.Routes)
	r.Group(accountModule.Routes)
	if sandbox != nil {
		r.Get("/sandbox/checkout/{sessionID}", sandboxCheckout(engine, sandbox, log))
	}

	a.handler = r
	return a, nil
}

func (a *app) buildStores(ctx context.Context) (subscription.Store, auth.Storage, error) {
	switch a.cfg.StorageDriver {
	case driverMongo:
		var mcfg mongo.Config
		if err := config.Load(&mcfg); err != nil {
			return nil, nil, err
		}
		client, err := mongo.Connect(ctx, mcfg)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, client.Disconnect)
		a.checks = append(a.checks, mongo.Healthcheck(client))

		db := client.Database(mcfg.Database)
		subs := storage.NewMongoStore(db, storage.DefaultCollection)
		if err := subs.EnsureIndexes(ctx); err != nil {
			return nil, nil, err
		}
		users := auth.NewMongoStorage(db, "users")
		if err := users.EnsureIndexes(ctx); err != nil {
			return nil, nil, err
		}
		a.log.InfoContext(ctx, "using mongo storage", slog.String("database", mcfg.Database))
		return subs, users, nil

	case driverPostgres:
		var pcfg pg.Config
		if err := config.Load(&pcfg); err != nil {
			return nil, nil, err
		}
		pool, err := pg.Connect(ctx, pcfg)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { pool.Close(); return nil })
		a.checks = append(a.checks, pg.Healthcheck(pool))

		if err := pg.Migrate(ctx, pool, migrations.FS, pcfg.MigrationsTable, pg.Up, a.log); err != nil {
			return nil, nil, err
		}
		a.log.InfoContext(ctx, "using postgres storage")
		return storage.NewPostgresStore(pool), auth.NewPostgresStorage(pool), nil
	}

	a.log.WarnContext(ctx, "using in-memory storage, data is lost on restart")
	return subscription.NewMemoryStore(), auth.NewMemoryStorage(), nil
}

func (a *app) buildLedger(ctx context.Context) (subscription.EventLedger, error) {
	if a.cfg.LedgerDriver != driverRedis {
		return subscription.NewMemoryLedger(a.cfg.LedgerTTL), nil
	}

	var rcfg redis.Config
	if err := config.Load(&rcfg); err != nil {
		return nil, err
	}
	client, err := redis.Connect(ctx, rcfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	a.checks = append(a.checks, redis.Healthcheck(client))
	return storage.NewRedisLedger(client, storage.DefaultLedgerPrefix, a.cfg.LedgerTTL), nil
}

func buildGateway(cfg appConfig, log *slog.Logger) (subscription.Gateway, string, *subscription.SandboxGateway, error) {
	var (
		gw      subscription.Gateway
		header  string
		sandbox *subscription.SandboxGateway
	)
	switch cfg.Gateway {
	case gatewayStripe:
		var scfg subscription.StripeConfig
		if err := config.Load(&scfg); err != nil {
			return nil, "", nil, err
		}
		g, err := subscription.NewStripeGateway(scfg)
		if err != nil {
			return nil, "", nil, fmt.Errorf("stripe gateway: %w", err)
		}
		gw, header = g, subscription.StripeSignatureHeader

	case gatewayPaddle:
		var pcfg subscription.PaddleConfig
		if err := config.Load(&pcfg); err != nil {
			return nil, "", nil, err
		}
		g, err := subscription.NewPaddleGateway(pcfg)
		if err != nil {
			return nil, "", nil, fmt.Errorf("paddle gateway: %w", err)
		}
		gw, header = g, subscription.PaddleSignatureHeader

	default:
		var scfg subscription.SandboxConfig
		if err := config.Load(&scfg); err != nil {
			return nil, "", nil, err
		}
		g, err := subscription.NewSandboxGateway(scfg)
		if err != nil {
			return nil, "", nil, fmt.Errorf("sandbox gateway: %w", err)
		}
		gw, header, sandbox = g, subscription.SandboxSignatureHeader, g
		log.Warn("using sandbox payment gateway, no real charges are made")
	}

	if cfg.BreakerEnabled {
		var bcfg subscription.BreakerConfig
		if err := config.Load(&bcfg); err != nil {
			return nil, "", nil, err
		}
		gw = subscription.NewBreakerGateway(gw, bcfg, log)
	}
	return gw, header, sandbox, nil
}
