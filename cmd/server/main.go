package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Rrens/checkpoint-recovery/internal/api"
	"github.com/Rrens/checkpoint-recovery/internal/api/handler"
	"github.com/Rrens/checkpoint-recovery/internal/config"
	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/Rrens/checkpoint-recovery/internal/logger"
	"github.com/Rrens/checkpoint-recovery/internal/metrics"
	"github.com/Rrens/checkpoint-recovery/internal/repository/postgres"
	"github.com/Rrens/checkpoint-recovery/internal/repository/redis"
	"github.com/Rrens/checkpoint-recovery/internal/repository/sqlite"
	"github.com/Rrens/checkpoint-recovery/internal/service"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file - try multiple locations
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(p); err == nil {
			fmt.Printf("Loaded .env from: %s\n", p)
			break
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCloser, err := logger.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}
	defer logCloser.Close()

	if cfg.Metrics.Enabled {
		metrics.InitMetrics()
	}

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Msg("Starting PiPilot checkpoint server")

	ctx := context.Background()
	ready := map[string]handler.Pinger{}

	// The local database always backs stream records, and the pre-revert
	// fallback unless Redis is selected
	local, err := sqlite.Open(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local database")
	}
	defer local.Close()
	ready["sqlite"] = local

	var store domain.WorkspaceStore = local
	if cfg.Storage.Driver == "postgres" {
		if err := postgres.RunMigrations(cfg.Database.DSN(), cfg.Database.MigrationsPath); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}

		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		store = postgres.NewWorkspaceStore(db.Pool)
		ready["postgres"] = db
	}

	var redisClient *redis.Client
	if cfg.Checkpoint.FallbackDriver == "redis" || cfg.Security.RateLimit.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		ready["redis"] = redisClient
	}

	var fallback domain.KeyValueStore = sqlite.NewKVStore(local)
	if cfg.Checkpoint.FallbackDriver == "redis" {
		// Redis expires entries itself; the service still checks age on read
		fallback = redis.NewKVStore(redisClient, cfg.Checkpoint.PreRevertTTL)
	}

	checkpoints := service.NewCheckpointService(store, fallback, cfg.Checkpoint)
	streams := service.NewStreamRecoveryService(sqlite.NewStreamRepository(local), cfg.Streams)
	if err := streams.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize stream recovery")
	}

	sweeper, err := service.NewStreamSweeper(streams, cfg.Streams.CleanupSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule stream cleanup")
	}
	sweeper.Start()

	deps := api.Deps{
		Checkpoints: checkpoints,
		Streams:     streams,
		Ready:       ready,
	}
	if cfg.Security.RateLimit.Enabled {
		deps.Limiter = redis.NewRateLimiter(
			redisClient,
			cfg.Security.RateLimit.RequestsPerMinute,
			cfg.Security.RateLimit.Burst,
		)
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(cfg, deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	sweeper.Stop(shutdownCtx)

	// A pending progress write must reach storage before exit
	if err := streams.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to flush pending stream update")
	}

	log.Info().Msg("Server stopped")
}
