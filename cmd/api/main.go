package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lahm-market/api/internal/handlers"
	"github.com/lahm-market/api/internal/platform/auth"
	"github.com/lahm-market/api/internal/platform/config"
	"github.com/lahm-market/api/internal/platform/idempotency"
	"github.com/lahm-market/api/internal/platform/observability"
	"github.com/lahm-market/api/internal/repositories"
	"github.com/lahm-market/api/internal/repositories/postgres"
	"github.com/lahm-market/api/internal/repositories/redisstore"
	"github.com/lahm-market/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	provider, err := postgres.Connect(ctx, cfg.Postgres.DSN, int32(cfg.Postgres.MaxConns))
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer provider.Close()

	if err := postgres.EnsureSchema(ctx, provider); err != nil {
		logger.Fatal("failed to ensure database schema", zap.Error(err))
	}

	redisClient := redisstore.New(cfg.Redis.Addr, cfg.Redis.Password)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close error", zap.Error(err))
		}
	}()

	orderRepo, err := postgres.NewOrderRepository(provider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	stockRepo, err := postgres.NewStockRepository(provider)
	if err != nil {
		logger.Fatal("failed to initialise stock repository", zap.Error(err))
	}
	deliveryRepo, err := postgres.NewDeliveryRepository(provider)
	if err != nil {
		logger.Fatal("failed to initialise delivery repository", zap.Error(err))
	}
	notificationRepo, err := postgres.NewNotificationRepository(provider)
	if err != nil {
		logger.Fatal("failed to initialise notification repository", zap.Error(err))
	}
	counterRepo, err := postgres.NewCounterRepository(provider)
	if err != nil {
		logger.Fatal("failed to initialise counter repository", zap.Error(err))
	}
	directoryRepo, err := postgres.NewDirectoryRepository(provider)
	if err != nil {
		logger.Fatal("failed to initialise directory repository", zap.Error(err))
	}
	sessionStore, err := redisstore.NewSessionStore(redisClient)
	if err != nil {
		logger.Fatal("failed to initialise session store", zap.Error(err))
	}

	svcLogger := serviceLogger(logger.Named("services"))

	notificationService, err := services.NewNotificationService(services.NotificationServiceDeps{
		Notifications: notificationRepo,
		Logger:        svcLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise notification service", zap.Error(err))
	}

	stockService, err := services.NewStockService(services.StockServiceDeps{
		Stock:      stockRepo,
		UnitOfWork: provider,
		Logger:     svcLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise stock service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:       orderRepo,
		Stock:        stockService,
		Catalog:      directoryRepo,
		Counters:     counterRepo,
		Notifier:     notificationService,
		UnitOfWork:   provider,
		NumberPrefix: cfg.Orders.NumberPrefix,
		StaffInboxID: cfg.Notifications.SharedAdminID,
		Logger:       svcLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	deliveryService, err := services.NewDeliveryService(services.DeliveryServiceDeps{
		Deliveries:   deliveryRepo,
		Orders:       orderService,
		Users:        directoryRepo,
		Customers:    directoryRepo,
		Notifier:     notificationService,
		UnitOfWork:   provider,
		StaffInboxID: cfg.Notifications.SharedAdminID,
		Logger:       svcLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise delivery service", zap.Error(err))
	}

	resolver, err := services.NewActorResolver(services.ActorResolverDeps{
		Sessions:      sessionStore,
		Users:         directoryRepo,
		SharedAdminID: cfg.Notifications.SharedAdminID,
		Logger:        svcLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise actor resolver", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(resolver)

	healthRepo, err := repositories.NewProbeHealthRepository([]repositories.DependencyProbe{
		{Name: "postgres", Check: provider.Pool().Ping},
		{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}},
	})
	if err != nil {
		logger.Fatal("failed to initialise health probes", zap.Error(err))
	}
	systemService, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Build: services.BuildInfo{
			Version:     os.Getenv("APP_VERSION"),
			CommitSHA:   os.Getenv("COMMIT_SHA"),
			Environment: cfg.Environment,
			StartedAt:   startedAt,
		},
	})
	if err != nil {
		logger.Fatal("failed to initialise system service", zap.Error(err))
	}

	idempotencyStore, err := idempotency.NewRedisStore(redisClient)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService, deliveryService)
	adminHandlers := handlers.NewAdminHandlers(authenticator, orderService, stockService, deliveryService)
	deliveryHandlers := handlers.NewDeliveryHandlers(authenticator, deliveryService)
	notificationHandlers := handlers.NewNotificationHandlers(authenticator, notificationService)
	healthHandlers := handlers.NewHealthHandlers(systemService)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(),
			observability.MetricsMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(promhttp.Handler()),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithOrderMiddlewares(idempotencyMiddleware),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithDeliveryRoutes(deliveryHandlers.Routes),
		handlers.WithNotificationRoutes(notificationHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("lahm market api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func serviceLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}
