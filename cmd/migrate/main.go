package main

import (
	"flag"
	"os"

	"github.com/Rrens/checkpoint-recovery/internal/config"
	"github.com/Rrens/checkpoint-recovery/internal/logger"
	"github.com/Rrens/checkpoint-recovery/internal/repository/postgres"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	down := flag.Bool("down", false, "roll back instead of applying migrations")
	steps := flag.Int("steps", 1, "number of migrations to roll back with -down")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	closer, err := logger.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}
	defer closer.Close()

	log.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("source", cfg.Database.MigrationsPath).
		Msg("Connecting to database")

	if *down {
		err = postgres.RollbackMigrations(cfg.Database.DSN(), cfg.Database.MigrationsPath, *steps)
	} else {
		err = postgres.RunMigrations(cfg.Database.DSN(), cfg.Database.MigrationsPath)
	}
	if err != nil {
		log.Error().Err(err).Msg("Migration failed")
		os.Exit(1)
	}
}
