package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/shiptrack/internal/domain"
	"gorm.io/gorm"
)

type ShipmentListParams struct {
	Status   *string
	Search   string
	Page     int
	PageSize int
}

type ShipmentRepository interface {
	Create(ctx context.Context, s *domain.Shipment, initial *domain.StatusHistoryEntry) error
	GetByID(ctx context.Context, id string) (*domain.Shipment, error)
	GetByTrackingCode(ctx context.Context, code string) (*domain.Shipment, error)
	GetByExternalOrderID(ctx context.Context, externalOrderID string) (*domain.Shipment, error)
	List(ctx context.Context, params ShipmentListParams) ([]domain.Shipment, int64, error)
	ListActive(ctx context.Context, afterID string, limit int, finalStatus string) ([]domain.Shipment, error)
	UpdateStatus(ctx context.Context, id, status string, entry *domain.StatusHistoryEntry) (*domain.Shipment, error)
	UpdateDetails(ctx context.Context, s *domain.Shipment) error
	Delete(ctx context.Context, id string) error
	History(ctx context.Context, shipmentID string) ([]domain.StatusHistoryEntry, error)
	Purge(ctx context.Context) (int64, error)
}

type GormShipmentRepo struct {
	db *gorm.DB
}

func NewGormShipmentRepo(db *gorm.DB) *GormShipmentRepo {
	return &GormShipmentRepo{db: db}
}

// Create inserts the shipment and its initial history entry in one transaction.
// A duplicate tracking code or external order id yields domain.ErrConflict.
func (r *GormShipmentRepo) Create(ctx context.Context, s *domain.Shipment, initial *domain.StatusHistoryEntry) error {
	model := shipmentModelFromDomain(s)
	if model == nil {
		return fmt.Errorf("%w: shipment is required", domain.ErrValidation)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		if initial == nil {
			return nil
		}
		return tx.Create(historyModelFromDomain(initial)).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: shipment already exists", domain.ErrConflict)
	}
	if err != nil {
		return err
	}

	*s = *shipmentModelToDomain(model)
	return nil
}

func (r *GormShipmentRepo) GetByID(ctx context.Context, id string) (*domain.Shipment, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *GormShipmentRepo) GetByTrackingCode(ctx context.Context, code string) (*domain.Shipment, error) {
	return r.first(ctx, "tracking_code = ?", code)
}

func (r *GormShipmentRepo) GetByExternalOrderID(ctx context.Context, externalOrderID string) (*domain.Shipment, error) {
	return r.first(ctx, "external_order_id = ?", externalOrderID)
}

func (r *GormShipmentRepo) first(ctx context.Context, query string, args ...any) (*domain.Shipment, error) {
	var model ShipmentModel
	err := r.db.WithContext(ctx).Where(query, args...).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return shipmentModelToDomain(&model), nil
}

func (r *GormShipmentRepo) List(ctx context.Context, params ShipmentListParams) ([]domain.Shipment, int64, error) {
	query := r.db.WithContext(ctx).Model(&ShipmentModel{})

	if params.Status != nil {
		query = query.Where("LOWER(TRIM(status)) = LOWER(TRIM(?))", *params.Status)
	}
	if search := strings.TrimSpace(params.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(tracking_code) LIKE ? OR LOWER(recipient_name) LIKE ? OR LOWER(COALESCE(external_order_id, '')) LIKE ?",
			like, like, like,
		)
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

	var models []ShipmentModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	return shipmentsToDomain(models), total, nil
}

// ListActive returns up to limit shipments whose status differs from finalStatus,
// ordered by id and starting strictly after afterID.
func (r *GormShipmentRepo) ListActive(ctx context.Context, afterID string, limit int, finalStatus string) ([]domain.Shipment, error) {
	query := r.db.WithContext(ctx).
		Where("LOWER(TRIM(status)) <> LOWER(TRIM(?))", finalStatus)
	if afterID != "" {
		query = query.Where("id > ?", afterID)
	}

	var models []ShipmentModel
	if err := query.Order("id ASC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return shipmentsToDomain(models), nil
}

// UpdateStatus sets the status unconditionally and appends entry. Used by manual overrides.
func (r *GormShipmentRepo) UpdateStatus(ctx context.Context, id, status string, entry *domain.StatusHistoryEntry) (*domain.Shipment, error) {
	var model ShipmentModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if entry != nil {
			now = entry.CreatedAt
		}
		result := tx.Model(&ShipmentModel{}).
			Where("id = ?", id).
			Updates(map[string]any{"status": status, "updated_at": now})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		if entry != nil {
			if err := tx.Create(historyModelFromDomain(entry)).Error; err != nil {
				return err
			}
		}
		return tx.First(&model, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return shipmentModelToDomain(&model), nil
}

// UpdateDetails rewrites the descriptive fields. Status and tracking code are left untouched.
func (r *GormShipmentRepo) UpdateDetails(ctx context.Context, s *domain.Shipment) error {
	var model ShipmentModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&ShipmentModel{}).
			Where("id = ?", s.ID).
			Updates(map[string]any{
				"sender_name":         s.SenderName,
				"recipient_name":      s.RecipientName,
				"recipient_email":     s.RecipientEmail,
				"recipient_phone":     s.RecipientPhone,
				"origin_address":      s.OriginAddress,
				"destination_address": s.DestinationAddress,
				"product_name":        s.ProductName,
				"product_quantity":    s.ProductQuantity,
				"ship_date":           s.ShipDate,
				"updated_at":          s.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return tx.First(&model, "id = ?", s.ID).Error
	})
	if err != nil {
		return err
	}

	*s = *shipmentModelToDomain(&model)
	return nil
}

// Delete removes one shipment and every row that references it.
func (r *GormShipmentRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dependents := []any{&MessageHistoryModel{}, &ScheduledDispatchModel{}, &StatusHistoryModel{}}
		for _, model := range dependents {
			if err := tx.Where("shipment_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		result := tx.Where("id = ?", id).Delete(&ShipmentModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *GormShipmentRepo) History(ctx context.Context, shipmentID string) ([]domain.StatusHistoryEntry, error) {
	var models []StatusHistoryModel
	err := r.db.WithContext(ctx).
		Where("shipment_id = ?", shipmentID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entries := make([]domain.StatusHistoryEntry, 0, len(models))
	for i := range models {
		entries = append(entries, *historyModelToDomain(&models[i]))
	}
	return entries, nil
}

// Purge deletes every shipment together with its history, dispatch and message rows.
func (r *GormShipmentRepo) Purge(ctx context.Context) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dependents := []any{&MessageHistoryModel{}, &ScheduledDispatchModel{}, &StatusHistoryModel{}}
		for _, model := range dependents {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}
		result := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&ShipmentModel{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	return deleted, err
}

func shipmentsToDomain(models []ShipmentModel) []domain.Shipment {
	shipments := make([]domain.Shipment, 0, len(models))
	for i := range models {
		shipments = append(shipments, *shipmentModelToDomain(&models[i]))
	}
	return shipments
}
