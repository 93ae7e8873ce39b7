package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/shiptrack/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// automationSettingsKey is the primary key of the singleton policy row.
const automationSettingsKey = "automation"

type SettingsRepository interface {
	GetPolicy(ctx context.Context) (*domain.AutomationPolicy, error)
	SavePolicy(ctx context.Context, p *domain.AutomationPolicy) error
	RecordRun(ctx context.Context, at time.Time, success bool, updated int) error
	ListTemplates(ctx context.Context) ([]domain.MessageTemplate, error)
	SaveTemplate(ctx context.Context, t *domain.MessageTemplate) error
}

type GormSettingsRepo struct {
	db *gorm.DB
}

func NewGormSettingsRepo(db *gorm.DB) *GormSettingsRepo {
	return &GormSettingsRepo{db: db}
}

func (r *GormSettingsRepo) GetPolicy(ctx context.Context) (*domain.AutomationPolicy, error) {
	var model AutomationSettingsModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", automationSettingsKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return policyModelToDomain(&model), nil
}

// SavePolicy upserts the policy. Concurrent saves are last-write-wins; each save bumps Version.
// Run audit fields are owned by RecordRun and never overwritten here.
func (r *GormSettingsRepo) SavePolicy(ctx context.Context, p *domain.AutomationPolicy) error {
	model := policyModelFromDomain(automationSettingsKey, p)
	if model == nil {
		return domain.ErrValidation
	}
	model.Version = 1
	model.UpdatedAt = time.Now().UTC()

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"enabled":               model.Enabled,
			"steps":                 gorm.Expr("EXCLUDED.steps"),
			"final_status":          model.FinalStatus,
			"initial_status":        model.InitialStatus,
			"notifications_enabled": model.NotificationsEnabled,
			"version":               gorm.Expr("automation_settings.version + 1"),
			"updated_at":            model.UpdatedAt,
		}),
	}).Omit("last_run_at", "last_run_success", "last_run_updated").Create(model).Error
	if err != nil {
		return err
	}

	saved, err := r.GetPolicy(ctx)
	if err != nil {
		return err
	}
	*p = *saved
	return nil
}

// RecordRun stores the audit fields of the last automation run. It never touches the policy itself.
func (r *GormSettingsRepo) RecordRun(ctx context.Context, at time.Time, success bool, updated int) error {
	result := r.db.WithContext(ctx).
		Model(&AutomationSettingsModel{}).
		Where("id = ?", automationSettingsKey).
		UpdateColumns(map[string]any{
			"last_run_at":      at,
			"last_run_success": success,
			"last_run_updated": updated,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormSettingsRepo) ListTemplates(ctx context.Context) ([]domain.MessageTemplate, error) {
	var models []MessageTemplateModel
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	templates := make([]domain.MessageTemplate, 0, len(models))
	for i := range models {
		templates = append(templates, *templateModelToDomain(&models[i]))
	}
	return templates, nil
}

// SaveTemplate upserts a template by name and increments its version.
func (r *GormSettingsRepo) SaveTemplate(ctx context.Context, t *domain.MessageTemplate) error {
	model := templateModelFromDomain(t)
	if model == nil {
		return domain.ErrValidation
	}
	model.Version = 1
	model.UpdatedAt = time.Now().UTC()

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"subject":    model.Subject,
			"body":       model.Body,
			"version":    gorm.Expr("message_templates.version + 1"),
			"updated_at": model.UpdatedAt,
		}),
	}).Create(model).Error
	if err != nil {
		return err
	}

	var saved MessageTemplateModel
	if err := r.db.WithContext(ctx).First(&saved, "name = ?", model.Name).Error; err != nil {
		return err
	}
	*t = *templateModelToDomain(&saved)
	return nil
}
