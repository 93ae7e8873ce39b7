package repository

import (
	"context"

	"github.com/kursadbilgin/shiptrack/internal/domain"
	"gorm.io/gorm"
)

type MessageListParams struct {
	ShipmentID *string
	Channel    *domain.Channel
	Page       int
	PageSize   int
}

type MessageHistoryRepository interface {
	Create(ctx context.Context, entry *domain.MessageHistoryEntry) error
	List(ctx context.Context, params MessageListParams) ([]domain.MessageHistoryEntry, int64, error)
}

type GormMessageHistoryRepo struct {
	db *gorm.DB
}

func NewGormMessageHistoryRepo(db *gorm.DB) *GormMessageHistoryRepo {
	return &GormMessageHistoryRepo{db: db}
}

func (r *GormMessageHistoryRepo) Create(ctx context.Context, entry *domain.MessageHistoryEntry) error {
	model := messageModelFromDomain(entry)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if entry != nil {
		*entry = *messageModelToDomain(model)
	}
	return nil
}

func (r *GormMessageHistoryRepo) List(ctx context.Context, params MessageListParams) ([]domain.MessageHistoryEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&MessageHistoryModel{})

	if params.ShipmentID != nil {
		query = query.Where("shipment_id = ?", *params.ShipmentID)
	}
	if params.Channel != nil {
		query = query.Where("channel = ?", *params.Channel)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []MessageHistoryModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	entries := make([]domain.MessageHistoryEntry, 0, len(models))
	for i := range models {
		entries = append(entries, *messageModelToDomain(&models[i]))
	}
	return entries, total, nil
}
