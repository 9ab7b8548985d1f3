package app

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/api/rest"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/api/rest/handlers"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/config"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/integration/stripe"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/integration/telegram"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/metrics"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/notify"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/repository"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/service"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/workers"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

// App wires repositories, integrations, services, handlers and workers into
// a runnable unit.
type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Registry *prometheus.Registry
	Router   *gin.Engine

	ExpiryWorker   *workers.ExpiryWorker
	ReminderWorker *workers.ReminderWorker

	producer    notify.EventProducer
	redisClient *redis.Client
}

// NewApp builds the full dependency graph. Kafka, Redis and Telegram are
// optional; when disabled or unreachable the matching no-op implementation
// takes their place and the rest of the service keeps working.
func NewApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, log *logger.Logger) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewSubscriptionMetrics(registry, log)

	packRepo := repository.NewPostgresPackRepository(pool, log)
	subscriptionRepo := repository.NewPostgresSubscriptionRepository(pool, log)
	transactionRepo := repository.NewPostgresTransactionRepository(pool, log)
	webhookRepo := repository.NewPostgresWebhookEventRepository(pool, log)
	userRepo := repository.NewPostgresUserRepository(pool, log)

	provider := stripe.NewProvider(cfg.Stripe.APIKey, log)
	verifier := stripe.NewWebhookVerifier(cfg.Stripe.WebhookSecret, log)

	var messenger telegram.Messenger = telegram.NoopMessenger{}
	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.Telegram.Enabled {
		tg, err := telegram.NewMessenger(cfg.Telegram.BotToken, telegram.GroupConfig{
			CommunityChatID: cfg.Telegram.CommunityChatID,
			VIPChatIDs:      cfg.Telegram.VIPChatIDs,
			DefaultLanguage: cfg.Telegram.DefaultLanguage,
		}, log)
		if err != nil {
			return nil, err
		}
		messenger = tg
		notifier = notify.NewTelegramNotifier(tg, cfg.Telegram.AdminChatID, log)
	}

	var producer notify.EventProducer = notify.NoopEventProducer{}
	if cfg.Kafka.Enabled {
		sync, err := notify.NewSyncProducer(cfg.Kafka.Brokers, log)
		if err != nil {
			log.Errorw("Failed to initialize Kafka producer, continuing without event publishing", "error", err)
		} else {
			producer = notify.NewKafkaEventProducer(sync, log)
		}
	}

	var locker workers.Locker = workers.NoopLocker{}
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warnw("Redis unreachable, sweeps run without leader lock", "error", err)
			redisClient = nil
		} else {
			locker = workers.NewRedisLocker(redisClient, log)
		}
	}

	subscriptionService := service.NewSubscriptionService(
		subscriptionRepo, transactionRepo, packRepo, userRepo,
		provider, messenger, notifier, producer, m,
		service.CheckoutConfig{
			SuccessURL: cfg.Checkout.SuccessURL,
			CancelURL:  cfg.Checkout.CancelURL,
		},
		log,
	)
	packService := service.NewPackService(packRepo, log)
	entitlementService := service.NewEntitlementService(subscriptionRepo, packRepo, log)
	webhookService := service.NewWebhookService(
		webhookRepo, subscriptionRepo, transactionRepo, packRepo, userRepo,
		subscriptionService, provider, messenger, notifier, producer, m, log,
	)

	router := rest.SetupRouter(rest.RouterDeps{
		Packs:         handlers.NewPackHandler(packService, log),
		Subscriptions: handlers.NewSubscriptionHandler(subscriptionService, log),
		Entitlements:  handlers.NewEntitlementHandler(entitlementService, log),
		Webhooks:      handlers.NewWebhookHandler(verifier, webhookService, log),
		Registry:      registry,
		Log:           log,
	})

	return &App{
		Config:   cfg,
		Log:      log,
		Registry: registry,
		Router:   router,
		ExpiryWorker: workers.NewExpiryWorker(
			subscriptionRepo, packRepo, subscriptionService, producer, m, locker, log,
		),
		ReminderWorker: workers.NewReminderWorker(
			subscriptionRepo, packRepo, userRepo, notifier, locker, log,
		),
		producer:    producer,
		redisClient: redisClient,
	}, nil
}

// Close releases the app's external connections.
func (a *App) Close() {
	if err := a.producer.Close(); err != nil {
		a.Log.Errorw("Error closing event producer", "error", err)
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.Log.Errorw("Error closing Redis client", "error", err)
		}
	}
}
