package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/shiptrack/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AutomationRepository interface {
	ClaimStep(ctx context.Context, dispatch *domain.ScheduledDispatch, fromStatus string, entry *domain.StatusHistoryEntry) error
	CompleteDispatch(ctx context.Context, id string, sentAt time.Time, errMsg *string) error
	ListDispatches(ctx context.Context, shipmentID string) ([]domain.ScheduledDispatch, error)
	ClaimedStatuses(ctx context.Context, shipmentIDs []string) (map[string][]string, error)
}

type GormAutomationRepo struct {
	db *gorm.DB
}

func NewGormAutomationRepo(db *gorm.DB) *GormAutomationRepo {
	return &GormAutomationRepo{db: db}
}

// ClaimStep atomically claims (shipment, target status), moves the shipment from fromStatus to
// the target status and appends entry. It returns domain.ErrAlreadyClaimed when another run owns
// the pair and domain.ErrConflict when the shipment no longer has fromStatus. Nothing is written
// on error.
func (r *GormAutomationRepo) ClaimStep(ctx context.Context, dispatch *domain.ScheduledDispatch, fromStatus string, entry *domain.StatusHistoryEntry) error {
	model := dispatchModelFromDomain(dispatch)
	if model == nil {
		return domain.ErrValidation
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "shipment_id"}, {Name: "target_status"}},
			DoNothing: true,
		}).Create(model)
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return domain.ErrAlreadyClaimed
		}

		moved := tx.Model(&ShipmentModel{}).
			Where("id = ? AND status = ?", dispatch.ShipmentID, fromStatus).
			Updates(map[string]any{"status": dispatch.TargetStatus, "updated_at": model.CreatedAt})
		if moved.Error != nil {
			return moved.Error
		}
		if moved.RowsAffected == 0 {
			return domain.ErrConflict
		}

		if entry != nil {
			if err := tx.Create(historyModelFromDomain(entry)).Error; err != nil {
				return err
			}
		}

		*dispatch = *dispatchModelToDomain(model)
		return nil
	})
}

// CompleteDispatch marks a claimed dispatch as sent. A dispatch already sent is left untouched.
func (r *GormAutomationRepo) CompleteDispatch(ctx context.Context, id string, sentAt time.Time, errMsg *string) error {
	result := r.db.WithContext(ctx).
		Model(&ScheduledDispatchModel{}).
		Where("id = ? AND sent = ?", id, false).
		Updates(map[string]any{
			"sent":    true,
			"sent_at": sentAt,
			"error":   errMsg,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&ScheduledDispatchModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
	}
	return nil
}

func (r *GormAutomationRepo) ListDispatches(ctx context.Context, shipmentID string) ([]domain.ScheduledDispatch, error) {
	var models []ScheduledDispatchModel
	err := r.db.WithContext(ctx).
		Where("shipment_id = ?", shipmentID).
		Order("created_at ASC").
		Find(&models).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dispatches := make([]domain.ScheduledDispatch, 0, len(models))
	for i := range models {
		dispatches = append(dispatches, *dispatchModelToDomain(&models[i]))
	}
	return dispatches, nil
}

type claimedStatusRow struct {
	ShipmentID   string
	TargetStatus string
}

// ClaimedStatuses returns, per shipment, the target statuses that already have a dispatch.
func (r *GormAutomationRepo) ClaimedStatuses(ctx context.Context, shipmentIDs []string) (map[string][]string, error) {
	if len(shipmentIDs) == 0 {
		return map[string][]string{}, nil
	}

	var rows []claimedStatusRow
	err := r.db.WithContext(ctx).
		Model(&ScheduledDispatchModel{}).
		Select("shipment_id", "target_status").
		Where("shipment_id IN ?", shipmentIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string][]string, len(rows))
	for _, row := range rows {
		out[row.ShipmentID] = append(out[row.ShipmentID], row.TargetStatus)
	}
	return out, nil
}
