package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/kursadbilgin/shiptrack/internal/app"
	"github.com/kursadbilgin/shiptrack/internal/config"
	"github.com/kursadbilgin/shiptrack/internal/handler"
	"github.com/kursadbilgin/shiptrack/internal/infra/postgresql"
	"github.com/kursadbilgin/shiptrack/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/shiptrack/internal/infra/redis"
	"github.com/kursadbilgin/shiptrack/internal/observability"
	"github.com/kursadbilgin/shiptrack/internal/repository"
	"github.com/kursadbilgin/shiptrack/internal/service"
	"github.com/kursadbilgin/shiptrack/internal/transport"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

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

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("invalid timezone", zap.Error(err))
	}

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	var schema migrations.SchemaState
	if err := schema.Ensure(db); err != nil {
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

	metrics := observability.NewMetrics()

	engine, err := app.NewAutomationEngine(cfg, db, rdb, metrics, logger)
	if err != nil {
		logger.Fatal("automation engine initialization failed", zap.Error(err))
	}

	shipmentRepo := repository.NewGormShipmentRepo(db)
	settingsRepo := repository.NewGormSettingsRepo(db)

	shipments, err := service.NewShipmentService(
		shipmentRepo,
		repository.NewGormAutomationRepo(db),
		repository.NewGormMessageHistoryRepo(db),
		settingsRepo,
		logger,
	)
	if err != nil {
		logger.Fatal("shipment service initialization failed", zap.Error(err))
	}

	orders, err := service.NewOrderService(shipments, service.OrderDefaults{
		SenderName:    cfg.StoreName,
		OriginAddress: cfg.StoreOriginAddress,
	}, logger)
	if err != nil {
		logger.Fatal("order service initialization failed", zap.Error(err))
	}

	settings, err := service.NewSettingsService(settingsRepo, logger)
	if err != nil {
		logger.Fatal("settings service initialization failed", zap.Error(err))
	}

	server := fiber.New(fiber.Config{
		AppName:               "shiptrack-api",
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	server.Use(recover.New())
	server.Use(transport.RequestContext())
	server.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(server, sqlDB, rdb, &schema)
	server.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterTrackingRoutes(server, shipments); err != nil {
		logger.Fatal("tracking routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterWebhookRoutes(server, orders); err != nil {
		logger.Fatal("webhook routes registration failed", zap.Error(err))
	}
	err = handler.RegisterAdminRoutes(server, handler.AdminDeps{
		Shipments:  shipments,
		Settings:   settings,
		Automation: engine,
		Token:      cfg.AdminToken,
		Location:   loc,
	})
	if err != nil {
		logger.Fatal("admin routes registration failed", zap.Error(err))
	}

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- server.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()
	logger.Info("shiptrack api started", zap.Int("port", cfg.APIPort))

	select {
	case err := <-listenErr:
		if err != nil {
			logger.Error("api server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down api")
		if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("api shutdown failed", zap.Error(err))
		}
	}
}
