// Package app assembles the automation engine from configuration for the api and worker binaries.
package app

import (
	"fmt"

	"github.com/kursadbilgin/shiptrack/internal/config"
	"github.com/kursadbilgin/shiptrack/internal/domain"
	infraredis "github.com/kursadbilgin/shiptrack/internal/infra/redis"
	"github.com/kursadbilgin/shiptrack/internal/observability"
	"github.com/kursadbilgin/shiptrack/internal/provider"
	"github.com/kursadbilgin/shiptrack/internal/repository"
	"github.com/kursadbilgin/shiptrack/internal/service"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewSenders builds a sender for every channel with credentials. Channels without credentials
// are left out of the registry and their notifications are recorded as skipped.
func NewSenders(cfg *config.Config, logger *zap.Logger) (provider.Registry, error) {
	registry := provider.Registry{}
	retry := provider.DefaultRetryConfig()

	if cfg.EmailEnabled() {
		email, err := provider.NewEmailSender(provider.EmailConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUsername,
			Password:    cfg.SMTPPassword,
			From:        cfg.SMTPFrom,
			ImplicitTLS: cfg.SMTPImplicitTLS,
		})
		if err != nil {
			return nil, fmt.Errorf("email sender: %w", err)
		}
		registry[domain.ChannelEmail] = provider.NewRetryingSender(email, retry)
	}

	if cfg.WhatsAppEnabled() {
		whatsapp, err := provider.NewWhatsAppSender(provider.WhatsAppConfig{
			BaseURL:     cfg.WhatsAppBaseURL,
			InstanceID:  cfg.WhatsAppInstanceID,
			Token:       cfg.WhatsAppToken,
			ClientToken: cfg.WhatsAppClientToken,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("whatsapp sender: %w", err)
		}
		registry[domain.ChannelWhatsApp] = provider.NewRetryingSender(whatsapp, retry)
	}

	if cfg.SMSEnabled() {
		sms, err := provider.NewSMSSender(provider.SMSConfig{
			BaseURL: cfg.SMSBaseURL,
			APIKey:  cfg.SMSAPIKey,
			Sender:  cfg.SMSSender,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("sms sender: %w", err)
		}
		registry[domain.ChannelSMS] = provider.NewRetryingSender(sms, retry)
	}

	for _, channel := range domain.Channels {
		if _, ok := registry.Sender(channel); !ok {
			logger.Warn("channel has no credentials, notifications will be skipped", zap.String("channel", channel.String()))
		}
	}
	return registry, nil
}

// NewAutomationEngine wires the engine to postgres, the redis rate limiter and run lock, and metrics.
func NewAutomationEngine(
	cfg *config.Config,
	db *gorm.DB,
	rdb *goredis.Client,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*service.AutomationEngine, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	senders, err := NewSenders(cfg, logger)
	if err != nil {
		return nil, err
	}

	limiter, err := infraredis.NewRedisRateLimiter(rdb, map[domain.Channel]int{
		domain.ChannelEmail:    cfg.RateLimitEmail,
		domain.ChannelWhatsApp: cfg.RateLimitWhatsApp,
		domain.ChannelSMS:      cfg.RateLimitSMS,
	})
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	lock, err := infraredis.NewRunLock(rdb, cfg.RunLockTTL)
	if err != nil {
		return nil, fmt.Errorf("run lock: %w", err)
	}

	engine, err := service.NewAutomationEngine(
		repository.NewGormShipmentRepo(db),
		repository.NewGormAutomationRepo(db),
		repository.NewGormMessageHistoryRepo(db),
		repository.NewGormSettingsRepo(db),
		senders,
		limiter,
		service.EngineConfig{
			BatchSize:       cfg.BatchSize,
			BatchBudget:     cfg.BatchBudget,
			SendTimeout:     cfg.SendTimeout,
			Location:        loc,
			TrackingBaseURL: cfg.TrackingBaseURL,
		},
		logger,
	)
	if err != nil {
		return nil, err
	}
	engine.SetMetrics(metrics)
	engine.SetRunLock(lock)

	return engine, nil
}
