package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/config"
	"github.com/Dhoini/fitness-billing-service/internal/http/handlers"
	"github.com/Dhoini/fitness-billing-service/internal/kafka"
	"github.com/Dhoini/fitness-billing-service/internal/metrics"
	"github.com/Dhoini/fitness-billing-service/internal/middleware"
	"github.com/Dhoini/fitness-billing-service/internal/notify"
	"github.com/Dhoini/fitness-billing-service/internal/repository"
	"github.com/Dhoini/fitness-billing-service/internal/repository/postgres"
	"github.com/Dhoini/fitness-billing-service/internal/services"
	"github.com/Dhoini/fitness-billing-service/internal/stripe"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	runtimeMetricsInterval = 15 * time.Second
	rateLimitVisitorTTL    = 3 * time.Minute
)

// App представляет собой контейнер для всех компонентов приложения
type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry

	WebhookHandler      *handlers.WebhookHandler
	SubscriptionHandler *handlers.SubscriptionHandler
	OfferHandler        *handlers.OfferHandler
	PricingHandler      *handlers.PricingHandler
	TrainerHandler      *handlers.TrainerHandler
	PaymentHandler      *handlers.PaymentHandler
	HealthHandler       *handlers.HealthHandler

	AuthMiddleware   *middleware.JWTMiddleware
	LoggerMiddleware gin.HandlerFunc
	RateLimiter      *middleware.RateLimiter
	HTTPMetrics      *metrics.HTTPMetrics

	waiters []func()
	closers []func() error
}

// NewApp поднимает инфраструктуру (Postgres, Redis, Kafka, Stripe) и собирает сервисы и обработчики.
func NewApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *App, err error) {
	a := &App{
		Config:   cfg,
		Logger:   log,
		Registry: prometheus.NewRegistry(),
	}
	// при ошибке закрываем то, что уже успели открыть
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	billingMetrics := metrics.NewBillingMetrics(a.Registry, log)
	runtimeMetrics := metrics.NewRuntimeMetrics(a.Registry, log)
	a.closers = append(a.closers, func() error { runtimeMetrics.Stop(); return nil })

	pool, err := postgres.NewConnection(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	db := postgres.NewSQLX(pool)
	if cfg.Database.MigrateOnStart {
		if err = postgres.RunMigrations(db, log); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	redisClient, err := repository.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, redisClient.Close)
	cache := repository.NewRedisCacheRepository(redisClient, cfg.Redis.KeyPrefix, cfg.Redis.OfferTTL, log)

	repos := services.Repositories{
		Subscribers:   repository.NewPostgresSubscriberRepository(db, log),
		Trainers:      repository.NewPostgresTrainerRepository(db, log),
		Offers:        repository.NewCachedOfferRepository(repository.NewPostgresOfferRepository(db, log), cache, log),
		Subscriptions: repository.NewPostgresSubscriptionRepository(db, log),
		Payments:      repository.NewPostgresPaymentRepository(db, log),
		Rules:         repository.NewPostgresPricingRuleRepository(db, log),
		Webhooks:      repository.NewPostgresWebhookEventRepository(db, log),
		Tx:            repository.NewTransactor(db),
	}
	dedup := repository.NewEventDeduplicator(cache, cfg.Redis.DedupTTL, log)

	var publisher services.EventPublisher
	if cfg.Kafka.Enabled {
		if terr := kafka.EnsureKafkaTopics(ctx, cfg.Kafka, log); terr != nil {
			log.Warnw("Failed to ensure kafka topics", "error", terr)
		}
		kafkaPublisher, kerr := kafka.NewPublisherFromConfig(cfg.Kafka, log)
		if kerr != nil {
			return nil, fmt.Errorf("init kafka publisher: %w", kerr)
		}
		a.closers = append(a.closers, kafkaPublisher.Close)
		publisher = kafkaPublisher
		log.Infow("Kafka publisher initialized", "brokers", cfg.Kafka.Brokers)
	} else {
		log.Infow("Kafka disabled, lifecycle events will not be published")
	}

	gateway := stripe.NewStripeClient(cfg.Stripe, billingMetrics, log)
	notifier := notify.New(cfg.SMTP, log)

	subscriptionService := services.NewSubscriptionService(cfg, repos, gateway, notifier, publisher, billingMetrics, log)
	webhookService := services.NewWebhookService(repos, dedup, gateway, subscriptionService, notifier, publisher, billingMetrics, log)
	offerService := services.NewOfferService(repos, gateway, cfg.Stripe, log)
	pricingService := services.NewPricingService(repos, billingMetrics, log)
	trainerService := services.NewTrainerService(repos, gateway, cfg.App, log)
	paymentService := services.NewPaymentService(cfg, repos, gateway, log)
	a.waiters = append(a.waiters, subscriptionService.Wait, webhookService.Wait)
	runtimeMetrics.WatchBackground("subscriptions", subscriptionService.PendingTasks)
	runtimeMetrics.WatchBackground("webhooks", webhookService.PendingTasks)
	runtimeMetrics.Run(ctx, runtimeMetricsInterval)

	a.WebhookHandler = handlers.NewWebhookHandler(webhookService, log)
	a.SubscriptionHandler = handlers.NewSubscriptionHandler(subscriptionService, log)
	a.OfferHandler = handlers.NewOfferHandler(offerService, log)
	a.PricingHandler = handlers.NewPricingHandler(pricingService, log)
	a.TrainerHandler = handlers.NewTrainerHandler(trainerService, log)
	a.PaymentHandler = handlers.NewPaymentHandler(paymentService, log)
	a.HealthHandler = handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"postgres": pool.Ping,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	})

	a.AuthMiddleware = middleware.NewJWTMiddleware(cfg.Auth, log, nil)
	a.LoggerMiddleware = middleware.RequestLogger(log)
	a.RateLimiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, rateLimitVisitorTTL)
	a.HTTPMetrics = metrics.NewHTTPMetrics(a.Registry)

	return a, nil
}

// Wait дожидается фоновых задач сервисов (события, письма, возвраты).
func (a *App) Wait() {
	for _, wait := range a.waiters {
		wait()
	}
}

// Close освобождает ресурсы в обратном порядке.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// StartRateLimitCleanup периодически удаляет неактивных посетителей лимитера.
func (a *App) StartRateLimitCleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := a.RateLimiter.Cleanup(now); removed > 0 {
				a.Logger.Debugw("Rate limiter visitors evicted", "count", removed)
			}
		}
	}
}
