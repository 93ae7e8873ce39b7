package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/shiptrack/internal/domain"
	"github.com/kursadbilgin/shiptrack/internal/repository"
	"go.uber.org/zap"
)

const (
	maxTrackingCodeAttempts = 5

	intakeNote   = "created"
	overrideNote = "manual override"
)

// ShipmentService owns shipment intake and the admin operations on shipments.
type ShipmentService struct {
	shipments  repository.ShipmentRepository
	dispatches repository.AutomationRepository
	messages   repository.MessageHistoryRepository
	settings   repository.SettingsRepository
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
	randIntn   func(n int) int
}

// TrackingEvent is one public status change.
type TrackingEvent struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

// TrackingView is what the public tracking page may show. Contact details are never exposed.
type TrackingView struct {
	TrackingCode       string          `json:"trackingCode"`
	Status             string          `json:"status"`
	RecipientName      string          `json:"recipientName"`
	OriginAddress      string          `json:"originAddress"`
	DestinationAddress string          `json:"destinationAddress"`
	ProductName        string          `json:"productName"`
	ShipDate           time.Time       `json:"shipDate"`
	UpdatedAt          time.Time       `json:"updatedAt"`
	History            []TrackingEvent `json:"history"`
}

func NewShipmentService(
	shipments repository.ShipmentRepository,
	dispatches repository.AutomationRepository,
	messages repository.MessageHistoryRepository,
	settings repository.SettingsRepository,
	logger *zap.Logger,
) (*ShipmentService, error) {
	if shipments == nil {
		return nil, fmt.Errorf("shipment service requires a shipment repository")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ShipmentService{
		shipments:  shipments,
		dispatches: dispatches,
		messages:   messages,
		settings:   settings,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
		randIntn:   rand.Intn,
	}, nil
}

// Create registers a shipment. A missing tracking code is generated and regenerated on
// collision; a missing status becomes the policy's initial status.
func (s *ShipmentService) Create(ctx context.Context, shipment *domain.Shipment) (*domain.Shipment, error) {
	if shipment == nil {
		return nil, fmt.Errorf("%w: shipment is required", domain.ErrValidation)
	}

	now := s.now().UTC()
	shipment.ID = s.newID()
	shipment.CreatedAt = now
	shipment.UpdatedAt = now
	if shipment.ShipDate.IsZero() {
		shipment.ShipDate = now
	}
	if strings.TrimSpace(shipment.Status) == "" {
		shipment.Status = s.initialStatus(ctx)
	}
	if shipment.ExternalOrderID != nil {
		trimmed := strings.TrimSpace(*shipment.ExternalOrderID)
		if trimmed == "" {
			shipment.ExternalOrderID = nil
		} else {
			shipment.ExternalOrderID = &trimmed
		}
	}

	generated := strings.TrimSpace(shipment.TrackingCode) == ""
	if !generated {
		shipment.TrackingCode = domain.NormalizeTrackingCode(shipment.TrackingCode)
	}

	note := intakeNote
	for attempt := 1; ; attempt++ {
		if generated {
			shipment.TrackingCode = domain.NewTrackingCode(now, s.randIntn)
		}
		if err := shipment.Validate(); err != nil {
			return nil, err
		}

		entry := &domain.StatusHistoryEntry{
			ID:         s.newID(),
			ShipmentID: shipment.ID,
			Status:     shipment.Status,
			Note:       &note,
			CreatedAt:  now,
		}
		err := s.shipments.Create(ctx, shipment, entry)
		if err == nil {
			return shipment, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}

		if shipment.ExternalOrderID != nil {
			if _, lookupErr := s.shipments.GetByExternalOrderID(ctx, *shipment.ExternalOrderID); lookupErr == nil {
				return nil, fmt.Errorf("%w: external order %q already has a shipment", domain.ErrConflict, *shipment.ExternalOrderID)
			}
		}
		if !generated {
			return nil, fmt.Errorf("%w: tracking code %q already exists", domain.ErrConflict, shipment.TrackingCode)
		}
		if attempt >= maxTrackingCodeAttempts {
			return nil, fmt.Errorf("%w: could not generate a unique tracking code after %d attempts", domain.ErrConflict, attempt)
		}
		s.logger.Debug("tracking code collision, regenerating", zap.String("trackingCode", shipment.TrackingCode))
	}
}

func (s *ShipmentService) initialStatus(ctx context.Context) string {
	if s.settings == nil {
		return domain.DefaultInitialStatus
	}
	policy, err := s.settings.GetPolicy(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("failed to load policy for initial status, using default", zap.Error(err))
		}
		return domain.DefaultInitialStatus
	}
	if status := strings.TrimSpace(policy.InitialStatus); status != "" {
		return status
	}
	return domain.DefaultInitialStatus
}

func (s *ShipmentService) Get(ctx context.Context, id string) (*domain.Shipment, error) {
	return s.shipments.GetByID(ctx, id)
}

// Track resolves a public tracking code.
func (s *ShipmentService) Track(ctx context.Context, code string) (*TrackingView, error) {
	code = domain.NormalizeTrackingCode(code)
	if !domain.IsTrackingCode(code) {
		return nil, fmt.Errorf("%w: invalid tracking code %q", domain.ErrValidation, code)
	}

	shipment, err := s.shipments.GetByTrackingCode(ctx, code)
	if err != nil {
		return nil, err
	}
	history, err := s.shipments.History(ctx, shipment.ID)
	if err != nil {
		return nil, fmt.Errorf("load status history: %w", err)
	}

	view := &TrackingView{
		TrackingCode:       shipment.TrackingCode,
		Status:             shipment.Status,
		RecipientName:      shipment.RecipientName,
		OriginAddress:      shipment.OriginAddress,
		DestinationAddress: shipment.DestinationAddress,
		ProductName:        shipment.ProductName,
		ShipDate:           shipment.ShipDate,
		UpdatedAt:          shipment.UpdatedAt,
		History:            make([]TrackingEvent, 0, len(history)),
	}
	for _, h := range history {
		view.History = append(view.History, TrackingEvent{Status: h.Status, At: h.CreatedAt})
	}
	return view, nil
}

func (s *ShipmentService) History(ctx context.Context, id string) ([]domain.StatusHistoryEntry, error) {
	if _, err := s.shipments.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.shipments.History(ctx, id)
}

func (s *ShipmentService) List(ctx context.Context, params repository.ShipmentListParams) ([]domain.Shipment, int64, error) {
	if params.Page < 0 || params.PageSize < 0 {
		return nil, 0, fmt.Errorf("%w: page and pageSize must be >= 0", domain.ErrValidation)
	}
	return s.shipments.List(ctx, params)
}

// Update rewrites the descriptive fields of a shipment. Status changes go through OverrideStatus.
func (s *ShipmentService) Update(ctx context.Context, shipment *domain.Shipment) (*domain.Shipment, error) {
	current, err := s.shipments.GetByID(ctx, shipment.ID)
	if err != nil {
		return nil, err
	}

	shipment.TrackingCode = current.TrackingCode
	shipment.Status = current.Status
	if shipment.ShipDate.IsZero() {
		shipment.ShipDate = current.ShipDate
	}
	shipment.UpdatedAt = s.now().UTC()
	if err := shipment.Validate(); err != nil {
		return nil, err
	}

	if err := s.shipments.UpdateDetails(ctx, shipment); err != nil {
		return nil, err
	}
	return shipment, nil
}

func (s *ShipmentService) Delete(ctx context.Context, id string) error {
	return s.shipments.Delete(ctx, id)
}

// OverrideStatus sets any status, including one outside the automation sequence, and
// appends a history entry. It sends no notification.
func (s *ShipmentService) OverrideStatus(ctx context.Context, id, status, note string) (*domain.Shipment, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, fmt.Errorf("%w: status is required", domain.ErrValidation)
	}
	note = strings.TrimSpace(note)
	if note == "" {
		note = overrideNote
	}

	entry := &domain.StatusHistoryEntry{
		ID:         s.newID(),
		ShipmentID: id,
		Status:     status,
		Note:       &note,
		CreatedAt:  s.now().UTC(),
	}
	updated, err := s.shipments.UpdateStatus(ctx, id, status, entry)
	if err != nil {
		return nil, err
	}

	s.logger.Info("shipment status overridden",
		zap.String("shipmentId", id),
		zap.String("status", status),
	)
	return updated, nil
}

// Purge deletes every shipment and its dependent rows.
func (s *ShipmentService) Purge(ctx context.Context) (int64, error) {
	deleted, err := s.shipments.Purge(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Warn("all shipments purged", zap.Int64("deleted", deleted))
	return deleted, nil
}

func (s *ShipmentService) Dispatches(ctx context.Context, shipmentID string) ([]domain.ScheduledDispatch, error) {
	if s.dispatches == nil {
		return nil, fmt.Errorf("dispatch repository is not configured")
	}
	if _, err := s.shipments.GetByID(ctx, shipmentID); err != nil {
		return nil, err
	}
	return s.dispatches.ListDispatches(ctx, shipmentID)
}

func (s *ShipmentService) Messages(ctx context.Context, params repository.MessageListParams) ([]domain.MessageHistoryEntry, int64, error) {
	if s.messages == nil {
		return nil, 0, fmt.Errorf("message history repository is not configured")
	}
	if params.Page < 0 || params.PageSize < 0 {
		return nil, 0, fmt.Errorf("%w: page and pageSize must be >= 0", domain.ErrValidation)
	}
	return s.messages.List(ctx, params)
}
