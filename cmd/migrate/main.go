package main

import (
	"flag"
	"log"

	"github.com/kursadbilgin/shiptrack/internal/config"
	"github.com/kursadbilgin/shiptrack/internal/infra/postgresql"
	"github.com/kursadbilgin/shiptrack/internal/infra/postgresql/migrations"
	"github.com/kursadbilgin/shiptrack/internal/observability"
	"go.uber.org/zap"
)

func main() {
	rollback := flag.Bool("rollback", false, "revert the most recent migration instead of applying pending ones")
	flag.Parse()

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if *rollback {
		if err := migrations.Rollback(db); err != nil {
			logger.Fatal("rollback failed", zap.Error(err))
		}
		logger.Info("rolled back last migration")
		return
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}
	logger.Info("database migrations applied", zap.String("version", migrations.LatestVersion()))
}
