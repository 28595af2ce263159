package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dperhar/Karma-app-sub001/internal/cache"
	"github.com/dperhar/Karma-app-sub001/internal/config"
	"github.com/dperhar/Karma-app-sub001/internal/engine"
	"github.com/dperhar/Karma-app-sub001/internal/handlers"
	"github.com/dperhar/Karma-app-sub001/internal/health"
	"github.com/dperhar/Karma-app-sub001/internal/logger"
	"github.com/dperhar/Karma-app-sub001/internal/middleware"
	"github.com/dperhar/Karma-app-sub001/internal/platform"
	"github.com/dperhar/Karma-app-sub001/internal/pool"
	"github.com/dperhar/Karma-app-sub001/internal/repository"
	"github.com/dperhar/Karma-app-sub001/internal/retry"
	"github.com/dperhar/Karma-app-sub001/internal/service"
	"github.com/dperhar/Karma-app-sub001/internal/storage"
	"github.com/dperhar/Karma-app-sub001/internal/vault"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	defer zlog.Sync() //nolint:errcheck

	// Credential vault must unlock before anything else runs.
	credVault, err := vault.New(cfg.CredentialKey)
	if err != nil {
		zlog.Fatal("credential vault unavailable", zap.Error(err))
	}

	db, err := repository.InitDB(cfg)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}

	// Redis is best-effort; the backend runs without cached views.
	redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(); err != nil {
		zlog.Warn("redis connection failed, running without cache", zap.Error(err))
		redisCache = nil
	}
	syncCache := cache.NewSyncCache(redisCache)

	// Media archive is best-effort; messages sync without it.
	var mediaStore engine.MediaStore
	if s3cfg, err := storage.LoadS3ConfigFromEnv(); err != nil {
		zlog.Warn("media archive not configured", zap.Error(err))
	} else if archive, err := storage.NewMediaArchive(s3cfg); err != nil {
		zlog.Warn("failed to initialize media archive", zap.Error(err))
	} else {
		mediaStore = archive
		zlog.Info("media archive initialized", zap.String("bucket", s3cfg.Bucket))
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	connRepo := repository.NewConnectionRepository(db)
	convRepo := repository.NewConversationRepository(db)
	partRepo := repository.NewParticipantRepository(db)
	msgRepo := repository.NewMessageRepository(db)

	// Core wiring
	monitor := health.NewMonitor()
	factory := platform.NewGatewayFactory(cfg.GatewayURL)
	sessionPool := pool.New(pool.Config{
		MaxSessions:    cfg.PoolMaxSessions,
		IdleTTL:        cfg.PoolIdleTTL,
		AcquireTimeout: cfg.PoolAcquireTimeout,
		ProbeTimeout:   cfg.PoolProbeTimeout,
	}, credVault, connRepo, factory, monitor, zlog)
	defer sessionPool.DisconnectAll()

	retrier := retry.NewCoordinator(retry.Config{
		MaxAttempts:     cfg.RetryMaxAttempts,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
	}, monitor, zlog)

	syncEngine := engine.New(engine.Config{
		PageSize:    cfg.SyncPageSize,
		CallTimeout: cfg.SyncCallTimeout,
	}, sessionPool, retrier, convRepo, partRepo, msgRepo, mediaStore, monitor, zlog)

	// Initialize services
	accountService := service.NewAccountService(credVault, userRepo, connRepo, sessionPool, zlog)
	syncService := service.NewSyncService(syncEngine, convRepo, monitor, syncCache, zlog)

	// Initialize handlers
	accountHandler := handlers.NewAccountHandler(accountService)
	syncHandler := handlers.NewSyncHandler(syncService)
	healthHandler := handlers.NewHealthHandler(monitor)

	app := fiber.New(fiber.Config{
		AppName: "Karma Sync Backend",
	})

	// Middleware
	app.Use(requestid.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: os.Getenv("ALLOWED_ORIGINS"),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))

	// Protected routes
	api := app.Group("/api", middleware.AuthRequired())
	api.Post("/credentials", limiter.New(limiter.Config{
		Max:        10,
		Expiration: time.Minute,
	}), accountHandler.StoreCredential)
	api.Delete("/credentials", accountHandler.Logout)
	api.Get("/credentials", accountHandler.Status)
	api.Get("/users/me", accountHandler.Me)

	api.Post("/sync/dialogs", syncHandler.SyncDialogs)
	api.Post("/conversations/:id/sync/messages", syncHandler.SyncMessages)
	api.Post("/conversations/:id/sync/participants", syncHandler.SyncParticipants)
	api.Post("/conversations/:id/resync", syncHandler.Resync)
	api.Delete("/conversations/:id/sync", syncHandler.Reset)
	api.Get("/sync/overview", syncHandler.Overview)

	// Operational endpoints
	app.Get("/health", healthHandler.Live)
	app.Get("/health/connections", healthHandler.Connections)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Graceful shutdown: stop accepting requests, then tear the pool down.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		zlog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			zlog.Error("shutdown error", zap.Error(err))
		}
	}()

	zlog.Info("server starting", zap.String("port", cfg.ServerPort))
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		zlog.Fatal("failed to start server", zap.Error(err))
	}
}
