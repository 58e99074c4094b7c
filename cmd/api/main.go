package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"fresh-market/internal/config"
	"fresh-market/internal/database"
	"fresh-market/internal/logger"
	"fresh-market/internal/server"
	"fresh-market/migrations"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *server.Server, logger *zap.Logger, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	logger.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	// In-flight requests get 30 seconds to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := apiServer.Close(); err != nil {
		logger.Error("Error closing server resources", zap.Error(err))
	}

	logger.Info("Server exiting")
	done <- true
}

// connectRedis returns nil when redis is disabled or unreachable; the
// server then falls back to in-process rate limiting and events.
func connectRedis(cfg config.RedisConfig, log *zap.Logger) *redis.Client {
	if !cfg.Enabled {
		log.Info("Redis disabled, using in-memory rate limiting and events")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unreachable, continuing without it", zap.String("addr", cfg.Addr()), zap.Error(err))
		_ = client.Close()
		return nil
	}

	log.Info("Connected to redis", zap.String("addr", cfg.Addr()))
	return client
}

func main() {
	migrateStatus := flag.Bool("migrate-status", false, "print migration status and exit")
	flag.Parse()

	cfg := config.Load()

	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		log = logger.NewWithDefaults()
		log.Warn("Falling back to default logger", zap.Error(err))
	}
	defer log.Sync()

	log.Info("Starting fresh market API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
	)

	dbService, err := database.New(cfg.Database, logger.Component(log, "database"))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	db := dbService.DB()

	if *migrateStatus {
		if err := database.GetMigrationStatus(db, migrations.FS, "."); err != nil {
			log.Fatal("Failed to read migration status", zap.Error(err))
		}
		_ = dbService.Close()
		return
	}

	if err := database.RunMigrations(db, migrations.FS, ".", log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	redisClient := connectRedis(cfg.Redis, log)

	srv, err := server.NewServer(cfg, log, dbService, redisClient)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	done := make(chan bool, 1)
	go gracefulShutdown(srv, log, done)

	log.Info("Server listening", zap.String("addr", srv.Addr))

	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal("HTTP server error", zap.Error(err))
	}

	<-done
	log.Info("Graceful shutdown complete")
}
