// Package app builds the object graph shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"prepaid-subscription/internal/config"
	"prepaid-subscription/internal/domain/model"
	"prepaid-subscription/internal/domain/ports/adapter"
	"prepaid-subscription/internal/infra/billing"
	"prepaid-subscription/internal/infra/db/migrations"
	pg "prepaid-subscription/internal/infra/db/postgres"
	"prepaid-subscription/internal/infra/events"
	red "prepaid-subscription/internal/infra/redis"
	"prepaid-subscription/internal/infra/sched"
	"prepaid-subscription/internal/infra/worker"
	"prepaid-subscription/internal/usecase"
)

// App holds the wired use cases and the infrastructure they run on.
type App struct {
	Cfg *config.Config
	Log *zerolog.Logger

	Pool    *pgxpool.Pool
	Workers *worker.Pool

	Gateway   adapter.BillingGateway  // nil without billing.secret_key
	Verifier  adapter.WebhookVerifier // nil without billing.webhook_secret
	Publisher adapter.EventPublisher
	Locker    adapter.Locker // nil without redis
	Limiter   *red.RateLimiter

	Codes        usecase.CodeUseCase
	Purchases    usecase.PurchaseUseCase
	Redemption   usecase.RedemptionUseCase
	Revocation   usecase.RevocationUseCase
	Entitlements usecase.EntitlementUseCase
	Reconciler   usecase.ReconcilerUseCase

	Scheduler *sched.Scheduler

	closers []func() error
}

// New connects to every configured backend and wires the use cases.
// Optional backends (redis, billing, AMQP) are skipped when unconfigured.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	// ---- Postgres ----
	if cfg.Database.AutoMigrate {
		if err := migrations.Up(cfg.Database.URL); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("database migrations applied")
	}
	pool, err := pg.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	// ---- Redis (optional) ----
	var seen adapter.SeenEventStore
	if strings.TrimSpace(cfg.Redis.URL) != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		seen = red.NewSeenEvents(rc)
		a.Locker = red.NewLocker(rc)
		a.Limiter = red.NewRateLimiter(rc)
	} else {
		logger.Warn().Msg("redis not configured: using in-process dedupe only, no job locks or attempt limits")
	}

	// ---- Billing (optional) ----
	if cfg.Billing.SecretKey != "" {
		gw, err := billing.NewStripeGateway(cfg.Billing, logger)
		if err != nil {
			return nil, fmt.Errorf("billing gateway: %w", err)
		}
		a.Gateway = gw
	}
	if cfg.Billing.WebhookSecret != "" {
		v, err := billing.NewWebhookVerifier(cfg.Billing.WebhookSecret)
		if err != nil {
			return nil, fmt.Errorf("webhook verifier: %w", err)
		}
		a.Verifier = v
	}

	// ---- Events ----
	if cfg.Events.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, logger)
		if err != nil {
			return nil, fmt.Errorf("amqp: %w", err)
		}
		a.Publisher = pub
	} else {
		a.Publisher = events.NewNoopPublisher(logger)
	}
	a.closers = append(a.closers, a.Publisher.Close)

	a.Workers = worker.NewPool(cfg.Workers.Size, 30*time.Second, logger)
	a.Workers.Start(ctx)
	notifier := usecase.NewNotifier(a.Publisher, func(task func(ctx context.Context) error) error {
		return a.Workers.Submit(task)
	}, logger)

	// ---- Repositories ----
	codeRepo := pg.NewCodeRepo(pool)
	purchaseRepo := pg.NewPurchaseRepo(pool)
	entRepo := pg.NewEntitlementRepo(pool)
	txRepo := pg.NewTransactionRepo(pool)
	eventRepo := pg.NewBillingEventRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Use cases ----
	plans, err := configuredPlans(cfg.Codes.Plans)
	if err != nil {
		return nil, err
	}
	catalog := usecase.NewPlanCatalog(plans, a.Gateway)

	a.Codes = usecase.NewCodeUseCase(codeRepo, usecase.NewCodeGenerator(nil), cfg.Codes.RedemptionWindow, logger)
	a.Purchases = usecase.NewPurchaseUseCase(purchaseRepo, codeRepo, a.Codes, txRepo, a.Gateway, catalog, tm, notifier, cfg.Codes.MaxBatch, logger)
	a.Redemption = usecase.NewRedemptionUseCase(codeRepo, entRepo, txRepo, catalog, tm, notifier, cfg.Runtime.Dev, logger)
	a.Revocation = usecase.NewRevocationUseCase(codeRepo, entRepo, txRepo, tm, notifier, logger)
	a.Entitlements = usecase.NewEntitlementUseCase(entRepo, txRepo, a.Gateway, notifier, logger)
	a.Reconciler = usecase.NewReconcilerUseCase(usecase.ReconcilerDeps{
		Purchases:    a.Purchases,
		PurchaseRepo: purchaseRepo,
		Entitlements: entRepo,
		Transactions: txRepo,
		Events:       eventRepo,
		Seen:         seen,
		SeenTTL:      cfg.Reconciler.SeenTTL,
		CacheSize:    cfg.Reconciler.SeenCacheSize,
		Notifier:     notifier,
	}, logger)

	// ---- Scheduled jobs ----
	sc := cfg.Scheduler
	a.Scheduler = sched.NewScheduler(a.Locker, sc.LockTTL, logger)
	for _, j := range []sched.Job{
		sched.RecoveryJob(sc.RecoveryCron, sc.RecoveryGrace, a.Purchases),
		sched.ExpiryJob(sc.ExpiryCron, a.Codes),
		sched.LapseJob(sc.LapseCron, a.Entitlements),
	} {
		if err := a.Scheduler.Add(j); err != nil {
			return nil, err
		}
	}

	ok = true
	return a, nil
}

// Close releases every backend in reverse order of acquisition.
func (a *App) Close() error {
	if a.Workers != nil {
		a.Workers.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func configuredPlans(in []config.PlanConfig) ([]*model.Plan, error) {
	out := make([]*model.Plan, 0, len(in))
	for _, pc := range in {
		p, err := model.NewPlan(pc.PriceID, pc.ProductID, pc.Name, pc.UnitAmount, pc.Currency)
		if err != nil {
			return nil, fmt.Errorf("codes.plans[%s]: %w", pc.PriceID, err)
		}
		p.Description = pc.Description
		out = append(out, p)
	}
	return out, nil
}
