package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	webAdapter "pharmacy-retail/internal/adapters/web"
	"pharmacy-retail/internal/config"
	"pharmacy-retail/internal/core"
	"pharmacy-retail/internal/db"
	"pharmacy-retail/internal/idempotency"
	"pharmacy-retail/internal/logging"
	"pharmacy-retail/internal/telemetry"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:       cfg.OTelEndpoint,
		ServiceName:    cfg.OTelServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()
	if cfg.OTelEndpoint != "" {
		logger.Info("telemetry export enabled", zap.String("endpoint", cfg.OTelEndpoint))
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	store := db.NewStore(pool, cfg.DBLockTimeout)
	codes := core.NewCodeGenerator(cfg.CodeLength, cfg.CodeMaxAttempts)
	orderService := core.NewOrderService(store, codes, logger.Named("orders"))
	inventoryService := core.NewInventoryService(store)

	var idem idempotency.Store = idempotency.NewMemoryStore()
	if cfg.RedisURL != "" {
		redisStore, err := idempotency.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer redisStore.Close()
		idem = redisStore
	}

	handler := webAdapter.NewHandler(orderService, inventoryService, webAdapter.Config{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.Origins(),
		Logger:         logger,
		Idempotency:    idem,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	}()

	logger.Info("server starting", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server", zap.Error(err))
	}
	logger.Info("server stopped")
}
