package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/roastery/internal/auth"
	"github.com/utafrali/roastery/internal/config"
	"github.com/utafrali/roastery/internal/event"
	"github.com/utafrali/roastery/internal/gateway/flow"
	handler "github.com/utafrali/roastery/internal/handler/http"
	"github.com/utafrali/roastery/internal/repository/postgres"
	redisrepo "github.com/utafrali/roastery/internal/repository/redis"
	"github.com/utafrali/roastery/internal/service"
	"github.com/utafrali/roastery/migrations"
	"github.com/utafrali/roastery/pkg/database"
	"github.com/utafrali/roastery/pkg/health"
	"github.com/utafrali/roastery/pkg/httpclient"
	pkgkafka "github.com/utafrali/roastery/pkg/kafka"
	"github.com/utafrali/roastery/pkg/middleware"
	"github.com/utafrali/roastery/pkg/retry"
	"github.com/utafrali/roastery/pkg/tracing"
)

const (
	salesConsumerGroup  = "storefront-analytics"
	salesIdempotencyKey = "storefront:sales:processed"
	salesIdempotencyTTL = 24 * time.Hour
)

// cleanupStack runs teardown functions in reverse registration order.
type cleanupStack []func()

func (c *cleanupStack) push(f func()) {
	*c = append(*c, f)
}

func (c cleanupStack) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	salesConsumer  *pkgkafka.Consumer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Undo what was set up so far when a later step fails.
	var cleanups cleanupStack
	cleanups.push(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutdownCancel()
		if err := tracerShutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", slog.Any("error", err))
		}
	})

	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		cleanups.run()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	cleanups.push(pool.Close)
	logger.Info("connected to PostgreSQL",
		slog.String("host", pgCfg.Host),
		slog.Int("port", pgCfg.Port),
		slog.String("database", pgCfg.DBName),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, config.ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.Any("error", err))
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		cleanups.run()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.DBSlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(cfg.DBSlowQueryThreshold, logger)
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		cleanups.run()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))

	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	dlq := pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Repositories
	users := postgres.NewUserRepository(pool)
	products := postgres.NewProductRepository(pool)
	orders := postgres.NewOrderRepository(pool)
	analyticsRepo := postgres.NewAnalyticsRepository(pool)
	carts := redisrepo.NewCartStore(redisClient, cfg.CartTTL, logger)
	dedupe := redisrepo.NewCheckoutDedupeStore(redisClient)
	events := event.NewProducer(producer, logger)

	// Payment gateway
	breakerCfg := cfg.GatewayBreaker()
	gatewayHTTP := httpclient.NewCircuitBreakerClient(httpclient.New(cfg.GatewayHTTP()), breakerCfg, logger)
	gateway := flow.NewClient(gatewayHTTP, flow.Config{
		APIKey:    cfg.FlowAPIKey,
		SecretKey: cfg.FlowSecretKey,
		Endpoint:  cfg.FlowEndpoint,
		Currency:  cfg.FlowCurrency,
	}, logger)
	logger.Info("payment gateway client initialized",
		slog.String("endpoint", cfg.FlowEndpoint.String()),
		slog.String("breaker", breakerCfg.Name),
	)

	jwt := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessTokenExpiry)

	// Services
	authService := service.NewAuthService(users, jwt, retry.Config{
		Attempts: cfg.ProfileFetchAttempts,
		Delay:    cfg.ProfileFetchDelay,
	}, service.PasswordResetConfig{
		Store:    redisrepo.NewPasswordResetStore(redisClient),
		Notifier: events,
		TTL:      cfg.PasswordResetTTL,
	}, logger)
	analyticsService := service.NewAnalyticsService(analyticsRepo, logger)
	svcs := handler.Services{
		Auth:     authService,
		Catalog:  service.NewCatalogService(products),
		Cart:     service.NewCartService(carts, products, events, logger),
		Payments: service.NewPaymentResultService(gateway, orders, events, logger),
		Checkout: service.NewCheckoutService(carts, orders, dedupe, gateway, authService, events, service.CheckoutConfig{
			ShippingCost:    cfg.ShippingCost,
			Currency:        cfg.FlowCurrency,
			ConfirmationURL: cfg.ConfirmationURL(),
			ReturnURL:       cfg.ReturnURL(),
			IdempotencyTTL:  cfg.CheckoutIdempotencyTTL,
		}, logger),
		Orders:    service.NewOrderService(orders),
		Analytics: analyticsService,
	}

	// Sales ledger fed by paid orders.
	salesHandler := pkgkafka.IdempotentHandler(
		pkgkafka.NewRedisIdempotencyStore(redisClient, salesIdempotencyKey, salesIdempotencyTTL),
		analyticsService.HandleOrderPaid,
		logger,
	)
	salesConsumer := pkgkafka.NewConsumer(
		pkgkafka.DefaultConsumerConfig(cfg.KafkaBrokers, salesConsumerGroup, event.TopicOrderPaid),
		salesHandler,
		dlq,
		logger,
	)

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("payment_gateway", func(context.Context) error {
		if gatewayHTTP.State() == gobreaker.StateOpen {
			return httpclient.ErrCircuitOpen
		}
		return nil
	})

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins

	router := handler.NewRouter(svcs, handler.RouterConfig{
		Tokens:         jwt.Validator(),
		Health:         healthHandler,
		RequestTimeout: cfg.HTTPRequestTimeout,
		CORS:           cors,
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		dlq:            dlq,
		salesConsumer:  salesConsumer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and the sales consumer, and blocks until the
// context is canceled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.salesConsumer.Start(consumerCtx); err != nil && consumerCtx.Err() == nil {
			errCh <- fmt.Errorf("sales consumer: %w", err)
		}
	}()

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("component failed", slog.Any("error", runErr))
	}

	stopConsumer()
	wg.Wait()

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown stops components in order: HTTP server, consumer, tracer,
// Kafka writers, Redis, then the PostgreSQL pool.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down storefront")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
	}

	if err := a.salesConsumer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("sales consumer close: %w", err))
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}

	if err := a.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("kafka producer close: %w", err))
	}
	if err := a.dlq.Close(); err != nil {
		errs = append(errs, fmt.Errorf("kafka dlq close: %w", err))
	}

	if err := a.redis.Close(); err != nil {
		errs = append(errs, fmt.Errorf("redis close: %w", err))
	}

	a.pool.Close()

	a.logger.Info("storefront stopped")
	return errors.Join(errs...)
}
