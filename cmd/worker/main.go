package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/shiptrack/internal/app"
	"github.com/kursadbilgin/shiptrack/internal/config"
	"github.com/kursadbilgin/shiptrack/internal/infra/postgresql"
	"github.com/kursadbilgin/shiptrack/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/shiptrack/internal/infra/redis"
	"github.com/kursadbilgin/shiptrack/internal/observability"
	"github.com/kursadbilgin/shiptrack/internal/queue"
	"github.com/kursadbilgin/shiptrack/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}
	if err := migrations.CheckSchema(db); err != nil {
		logger.Fatal("database schema check failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(ctx, cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.ConsumerPrefetch, logger)

	metrics := observability.NewMetrics()

	engine, err := app.NewAutomationEngine(cfg, db, rdb, metrics, logger)
	if err != nil {
		logger.Fatal("automation engine initialization failed", zap.Error(err))
	}

	scheduler, err := service.NewScheduler(publisher, cfg.AutomationInterval, logger)
	if err != nil {
		logger.Fatal("scheduler initialization failed", zap.Error(err))
	}

	worker, err := service.NewRunWorker(engine, consumer, publisher, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("run worker initialization failed", zap.Error(err))
	}

	metricsServer := fiber.New(fiber.Config{DisableStartupMessage: true})
	metricsServer.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	metricsServer.Get("/livez", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	logger.Info("shiptrack worker started",
		zap.Duration("interval", cfg.AutomationInterval),
		zap.Int("concurrency", cfg.WorkerConcurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Start(gctx)
	})
	g.Go(func() error {
		return worker.Start(gctx)
	})
	g.Go(func() error {
		return metricsServer.Listen(fmt.Sprintf(":%d", cfg.WorkerMetricsPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		return metricsServer.Shutdown()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", zap.Error(err))
	}
	logger.Info("shiptrack worker stopped")
}
