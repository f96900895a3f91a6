package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
	"walletauth/apps/walletauth/internal/address"
	"walletauth/apps/walletauth/internal/api"
	"walletauth/apps/walletauth/internal/config"
	"walletauth/apps/walletauth/internal/event_publisher"
	"walletauth/apps/walletauth/internal/login_materializer"
	"walletauth/apps/walletauth/internal/registration"
	"walletauth/apps/walletauth/internal/repository"
	"walletauth/apps/walletauth/internal/session"
)

func main() {
	// Load configuration from environment variables
	cfg := config.NewConfig()

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting application with configuration",
		zap.String("redis_addr", cfg.RedisAddr),
		zap.String("kafka_broker", cfg.KafkaBroker),
		zap.String("kafka_topic", cfg.KafkaTopic),
		zap.String("bitcoin_network", cfg.BitcoinNetwork),
		zap.Duration("session_ttl", cfg.SessionTTL),
		zap.Int("api_port", cfg.APIPort),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	db, err := sql.Open("postgres", cfg.DbURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	err = db.PingContext(pingCtx)
	pingCancel()
	if err != nil {
		logger.Fatal("Failed to reach database", zap.Error(err))
	}

	// Apply schema migrations
	if err := repository.RunMigrations(db, logger); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	redisClient, err := session.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	bitcoinParams, err := address.BitcoinParams(cfg.BitcoinNetwork)
	if err != nil {
		logger.Fatal("Invalid bitcoin network", zap.Error(err))
	}

	registrationRepository := repository.NewRegistrationRepository(db, logger)
	outboxRepository := repository.NewOutboxRepository(db, logger, cfg.OutboxClaimLease)
	loginHistoryRepository := repository.NewLoginHistoryRepository(db, logger)
	userRepository := repository.NewUserRepository(db, logger)

	registrationService := registration.NewService(registrationRepository, address.NewNormalizer(bitcoinParams), logger)
	sessionManager := session.NewManager(session.NewRedisStore(redisClient), session.Options{
		CookieName: cfg.SessionCookieName,
		TTL:        cfg.SessionTTL,
		Secure:     cfg.SessionCookieSecure,
	}, logger)

	// Create event publisher
	eventPublisher, err := event_publisher.NewEventPublisher(cfg.KafkaBroker, cfg.KafkaTopic, cfg.OutboxBatchSize, cfg.OutboxPollInterval, logger, outboxRepository)
	if err != nil {
		logger.Fatal("Failed to create event publisher", zap.Error(err))
	}
	defer eventPublisher.Close()

	// Start event publisher in background
	go eventPublisher.StartPublishing(ctx)

	// Create login materializer
	materializer, err := login_materializer.NewLoginMaterializer(cfg.KafkaBroker, cfg.KafkaTopic, cfg.KafkaGroupID, logger, loginHistoryRepository)
	if err != nil {
		logger.Fatal("Failed to create login materializer", zap.Error(err))
	}
	defer materializer.Close()

	// Start login materializer in background
	go func() {
		if err := materializer.Start(ctx); err != nil {
			logger.Fatal("Login materializer failed", zap.Error(err))
		}
	}()

	// Create and start API server
	apiServer, err := api.NewServer(cfg.APIPort, api.Dependencies{
		Registrar: registrationService,
		Sessions:  sessionManager,
		Users:     userRepository,
		Logins:    loginHistoryRepository,
		HealthChecks: map[string]api.HealthCheck{
			"postgres": db.PingContext,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
		RegisterRateLimit: rate.Limit(cfg.RegisterRateLimit),
		RegisterRateBurst: cfg.RegisterRateBurst,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create API server", zap.Error(err))
	}
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	<-sigChan
	logger.Info("Received shutdown signal, starting graceful shutdown...")

	// Stop background workers
	cancel()

	// Create a context with timeout for shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown API server gracefully
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error shutting down API server", zap.Error(err))
	}

	logger.Info("Application shutdown complete")
}

func newLogger(level string) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)
	return zapConfig.Build()
}
