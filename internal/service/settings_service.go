package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/shiptrack/internal/domain"
	"github.com/kursadbilgin/shiptrack/internal/repository"
	"go.uber.org/zap"
)

// SettingsService manages the automation policy and the message templates.
type SettingsService struct {
	settings repository.SettingsRepository
	logger   *zap.Logger
	now      func() time.Time
}

func NewSettingsService(settings repository.SettingsRepository, logger *zap.Logger) (*SettingsService, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings service requires a settings repository")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{settings: settings, logger: logger, now: time.Now}, nil
}

func (s *SettingsService) GetPolicy(ctx context.Context) (*domain.AutomationPolicy, error) {
	return s.settings.GetPolicy(ctx)
}

// UpdatePolicy replaces the policy. Invalid policies are rejected before they are stored.
func (s *SettingsService) UpdatePolicy(ctx context.Context, policy *domain.AutomationPolicy) (*domain.AutomationPolicy, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	policy.FinalStatus = strings.TrimSpace(policy.FinalStatus)
	policy.InitialStatus = strings.TrimSpace(policy.InitialStatus)
	for i := range policy.Steps {
		policy.Steps[i].Status = strings.TrimSpace(policy.Steps[i].Status)
		policy.Steps[i].NotifyAt = strings.TrimSpace(policy.Steps[i].NotifyAt)
	}
	policy.UpdatedAt = s.now().UTC()

	if err := s.settings.SavePolicy(ctx, policy); err != nil {
		return nil, err
	}

	s.logger.Info("automation policy updated",
		zap.Int("version", policy.Version),
		zap.Bool("enabled", policy.Enabled),
		zap.Int("steps", len(policy.Steps)),
	)
	return policy, nil
}

func (s *SettingsService) ListTemplates(ctx context.Context) ([]domain.MessageTemplate, error) {
	return s.settings.ListTemplates(ctx)
}

// UpdateTemplate stores a template under its (channel, status) name; the next batch renders with it.
func (s *SettingsService) UpdateTemplate(ctx context.Context, tmpl *domain.MessageTemplate) (*domain.MessageTemplate, error) {
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	tmpl.Status = strings.TrimSpace(tmpl.Status)
	tmpl.UpdatedAt = s.now().UTC()

	if err := s.settings.SaveTemplate(ctx, tmpl); err != nil {
		return nil, err
	}

	s.logger.Info("message template updated", zap.String("template", tmpl.Name()), zap.Int("version", tmpl.Version))
	return tmpl, nil
}
