package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"donation/internal/app"
	"donation/internal/cache"
	"donation/internal/config"
	"donation/internal/gateway"
	"donation/internal/gateway/easebuzz"
	"donation/internal/gateway/worldline"
	"donation/internal/handler"
	"donation/internal/metrics"
	internalRedis "donation/internal/redis"
	"donation/internal/repository/postgres"
	"donation/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", "error", err)
		} else {
			logger.Info("New Relic enabled", "app", cfg.NewRelic.AppName)
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	// Redis is optional; without it snapshots live in process memory and
	// verify locks and idempotency keys are disabled.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = app.NewRedisClient(ctx, cfg.Redis, nrApp)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		logger.Info("connected to Redis", "addr", cfg.Redis.Addr)
	}

	server, cleanup, err := wireServer(ctx, db, redisClient, nrApp, cfg, logger)
	if err != nil {
		log.Fatalf("failed to wire server: %v", err)
	}
	defer cleanup()

	// Start server in goroutine.
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port, "environment", cfg.Payment.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	logger.Info("server exited")
}

// wireServer wires all dependencies and returns the HTTP server together with
// a cleanup func for background workers.
func wireServer(
	ctx context.Context,
	db *sql.DB,
	redisClient *redis.Client,
	nrApp *newrelic.Application,
	cfg *config.Config,
	logger *slog.Logger,
) (*http.Server, func(), error) {
	cleanup := func() {}

	// Snapshot cache and verify locks.
	var sessions internalRedis.SessionStoreInterface
	var locks internalRedis.LockStoreInterface
	if redisClient != nil {
		sessions = internalRedis.NewSessionStore(redisClient, cfg.Payment.SessionTTL)
		locks = internalRedis.NewLockStore(redisClient)
	} else {
		memory := cache.NewMemorySessionStore(cfg.Payment.SessionTTL, time.Minute)
		sessions = memory
		cleanup = memory.Stop
	}

	// Initialize repositories.
	txnRepo := postgres.NewTransactionRepository(db)
	donationRepo := postgres.NewDonationRepository(db)
	gatewayRepo := postgres.NewGatewayRepository(db)

	m := metrics.New(nil)

	registrations := []gateway.Registration{
		worldline.Registration(),
		easebuzz.Registration(),
	}
	factory := gateway.NewFactory(gatewayRepo, gateway.Deps{
		HTTPClient: gateway.NewHTTPClient(cfg.Payment.GatewayTimeout),
		Logger:     logger,
		Observer:   m,
	}, registrations...)

	// Fail fast when an active gateway is missing a required secret.
	active, err := gatewayRepo.ListActive(ctx)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	codes := make([]string, 0, len(active))
	for _, g := range active {
		codes = append(codes, g.Code)
	}
	if err := factory.Preflight(ctx, cfg.Payment.Environment, codes); err != nil {
		cleanup()
		return nil, nil, err
	}
	logger.Info("gateways ready", "active", codes, "supported", factory.Codes())

	notificationService := service.NewNotificationService(logger)
	receiptService := service.NewReceiptService(notificationService)

	paymentService := service.NewPaymentService(service.PaymentDeps{
		Transactions: txnRepo,
		Donations:    donationRepo,
		Gateways:     gatewayRepo,
		Factory:      factory,
		Resolver:     gateway.NewResolver(registrations...),
		Sessions:     sessions,
		Locks:        locks,
		Metrics:      m,
		Logger:       logger,

		Notifications: notificationService,
		Receipts:      receiptService,
	}, service.PaymentConfig{
		Environment:      cfg.Payment.Environment,
		SurchargePercent: cfg.Payment.SurchargePercent,
		PublicBaseURL:    cfg.Payment.PublicBaseURL,
		WebBaseURL:       cfg.Payment.WebBaseURL,
		VerifyLockTTL:    cfg.Payment.VerifyLockTTL,
		VerifyTimeout:    2 * cfg.Payment.GatewayTimeout,
	})

	paymentHandler := handler.NewPaymentHandler(paymentService, logger)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		PaymentHandler: paymentHandler,
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
		AllowedOrigins: []string{cfg.Payment.WebBaseURL},
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, cleanup, nil
}
