package repository

import (
	"time"

	"github.com/kursadbilgin/shiptrack/internal/domain"
)

// ShipmentModel is the persistence model for the shipments table.
type ShipmentModel struct {
	ID                 string  `gorm:"type:uuid;primaryKey"`
	TrackingCode       string  `gorm:"type:varchar(32);not null;uniqueIndex"`
	ExternalOrderID    *string `gorm:"type:varchar(128)"`
	SenderName         string  `gorm:"type:varchar(255)"`
	RecipientName      string  `gorm:"type:varchar(255);not null"`
	RecipientEmail     string  `gorm:"type:varchar(255)"`
	RecipientPhone     string  `gorm:"type:varchar(32)"`
	OriginAddress      string  `gorm:"type:text"`
	DestinationAddress string  `gorm:"type:text"`
	ProductName        string  `gorm:"type:varchar(255)"`
	ProductQuantity    int     `gorm:"not null;default:0"`
	ShipDate           time.Time `gorm:"type:timestamptz;not null"`
	Status             string    `gorm:"type:varchar(100);not null"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (ShipmentModel) TableName() string {
	return "shipments"
}

// StatusHistoryModel is the persistence model for status_history.
type StatusHistoryModel struct {
	ID         string  `gorm:"type:uuid;primaryKey"`
	ShipmentID string  `gorm:"type:uuid;not null"`
	Status     string  `gorm:"type:varchar(100);not null"`
	Note       *string `gorm:"type:text"`
	CreatedAt  time.Time
}

func (StatusHistoryModel) TableName() string {
	return "status_history"
}

// ScheduledDispatchModel is the persistence model for scheduled_dispatches.
type ScheduledDispatchModel struct {
	ID           string     `gorm:"type:uuid;primaryKey"`
	ShipmentID   string     `gorm:"type:uuid;not null"`
	TargetStatus string     `gorm:"type:varchar(100);not null"`
	ScheduledAt  time.Time  `gorm:"type:timestamptz;not null"`
	Sent         bool       `gorm:"not null;default:false"`
	SentAt       *time.Time `gorm:"type:timestamptz"`
	Error        *string    `gorm:"type:text"`
	CreatedAt    time.Time
}

func (ScheduledDispatchModel) TableName() string {
	return "scheduled_dispatches"
}

// MessageHistoryModel is the persistence model for message_history.
type MessageHistoryModel struct {
	ID                string                 `gorm:"type:uuid;primaryKey"`
	ShipmentID        *string                `gorm:"type:uuid"`
	Status            string                 `gorm:"type:varchar(100)"`
	Recipient         string                 `gorm:"type:varchar(255);not null"`
	Channel           domain.Channel         `gorm:"type:varchar(16);not null"`
	Message           string                 `gorm:"type:text;not null"`
	Outcome           domain.DispatchOutcome `gorm:"type:varchar(16);not null"`
	ExternalMessageID *string                `gorm:"type:varchar(255)"`
	Error             *string                `gorm:"type:text"`
	CreatedAt         time.Time
}

func (MessageHistoryModel) TableName() string {
	return "message_history"
}

// stepModel is the JSON shape of one automation step inside automation_settings.steps.
type stepModel struct {
	Status    string           `json:"status"`
	DayOffset int              `json:"dayOffset"`
	NotifyAt  string           `json:"notifyAt"`
	Channels  []domain.Channel `json:"channels"`
}

// AutomationSettingsModel holds the singleton automation policy row.
type AutomationSettingsModel struct {
	ID                   string      `gorm:"type:varchar(32);primaryKey"`
	Enabled              bool        `gorm:"not null;default:false"`
	Steps                []stepModel `gorm:"type:jsonb;serializer:json;not null"`
	FinalStatus          string      `gorm:"type:varchar(100);not null"`
	InitialStatus        string      `gorm:"type:varchar(100)"`
	NotificationsEnabled bool        `gorm:"not null;default:true"`
	Version              int         `gorm:"not null;default:1"`
	LastRunAt            *time.Time  `gorm:"type:timestamptz"`
	LastRunSuccess       *bool
	LastRunUpdated       int `gorm:"not null;default:0"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (AutomationSettingsModel) TableName() string {
	return "automation_settings"
}

// MessageTemplateModel stores one versioned template keyed by name.
type MessageTemplateModel struct {
	Name      string         `gorm:"type:varchar(160);primaryKey"`
	Channel   domain.Channel `gorm:"type:varchar(16);not null"`
	Status    string         `gorm:"type:varchar(100)"`
	Subject   string         `gorm:"type:varchar(255)"`
	Body      string         `gorm:"type:text;not null"`
	Version   int            `gorm:"not null;default:1"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (MessageTemplateModel) TableName() string {
	return "message_templates"
}

func shipmentModelFromDomain(s *domain.Shipment) *ShipmentModel {
	if s == nil {
		return nil
	}

	return &ShipmentModel{
		ID:                 s.ID,
		TrackingCode:       s.TrackingCode,
		ExternalOrderID:    s.ExternalOrderID,
		SenderName:         s.SenderName,
		RecipientName:      s.RecipientName,
		RecipientEmail:     s.RecipientEmail,
		RecipientPhone:     s.RecipientPhone,
		OriginAddress:      s.OriginAddress,
		DestinationAddress: s.DestinationAddress,
		ProductName:        s.ProductName,
		ProductQuantity:    s.ProductQuantity,
		ShipDate:           s.ShipDate,
		Status:             s.Status,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func shipmentModelToDomain(m *ShipmentModel) *domain.Shipment {
	if m == nil {
		return nil
	}

	return &domain.Shipment{
		ID:                 m.ID,
		TrackingCode:       m.TrackingCode,
		ExternalOrderID:    m.ExternalOrderID,
		SenderName:         m.SenderName,
		RecipientName:      m.RecipientName,
		RecipientEmail:     m.RecipientEmail,
		RecipientPhone:     m.RecipientPhone,
		OriginAddress:      m.OriginAddress,
		DestinationAddress: m.DestinationAddress,
		ProductName:        m.ProductName,
		ProductQuantity:    m.ProductQuantity,
		ShipDate:           m.ShipDate,
		Status:             m.Status,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func historyModelFromDomain(h *domain.StatusHistoryEntry) *StatusHistoryModel {
	if h == nil {
		return nil
	}

	return &StatusHistoryModel{
		ID:         h.ID,
		ShipmentID: h.ShipmentID,
		Status:     h.Status,
		Note:       h.Note,
		CreatedAt:  h.CreatedAt,
	}
}

func historyModelToDomain(m *StatusHistoryModel) *domain.StatusHistoryEntry {
	if m == nil {
		return nil
	}

	return &domain.StatusHistoryEntry{
		ID:         m.ID,
		ShipmentID: m.ShipmentID,
		Status:     m.Status,
		Note:       m.Note,
		CreatedAt:  m.CreatedAt,
	}
}

func dispatchModelFromDomain(d *domain.ScheduledDispatch) *ScheduledDispatchModel {
	if d == nil {
		return nil
	}

	return &ScheduledDispatchModel{
		ID:           d.ID,
		ShipmentID:   d.ShipmentID,
		TargetStatus: d.TargetStatus,
		ScheduledAt:  d.ScheduledAt,
		Sent:         d.Sent,
		SentAt:       d.SentAt,
		Error:        d.Error,
		CreatedAt:    d.CreatedAt,
	}
}

func dispatchModelToDomain(m *ScheduledDispatchModel) *domain.ScheduledDispatch {
	if m == nil {
		return nil
	}

	return &domain.ScheduledDispatch{
		ID:           m.ID,
		ShipmentID:   m.ShipmentID,
		TargetStatus: m.TargetStatus,
		ScheduledAt:  m.ScheduledAt,
		Sent:         m.Sent,
		SentAt:       m.SentAt,
		Error:        m.Error,
		CreatedAt:    m.CreatedAt,
	}
}

func messageModelFromDomain(e *domain.MessageHistoryEntry) *MessageHistoryModel {
	if e == nil {
		return nil
	}

	return &MessageHistoryModel{
		ID:                e.ID,
		ShipmentID:        e.ShipmentID,
		Status:            e.Status,
		Recipient:         e.Recipient,
		Channel:           e.Channel,
		Message:           e.Message,
		Outcome:           e.Outcome,
		ExternalMessageID: e.ExternalMessageID,
		Error:             e.Error,
		CreatedAt:         e.CreatedAt,
	}
}

func messageModelToDomain(m *MessageHistoryModel) *domain.MessageHistoryEntry {
	if m == nil {
		return nil
	}

	return &domain.MessageHistoryEntry{
		ID:                m.ID,
		ShipmentID:        m.ShipmentID,
		Status:            m.Status,
		Recipient:         m.Recipient,
		Channel:           m.Channel,
		Message:           m.Message,
		Outcome:           m.Outcome,
		ExternalMessageID: m.ExternalMessageID,
		Error:             m.Error,
		CreatedAt:         m.CreatedAt,
	}
}

func policyModelFromDomain(id string, p *domain.AutomationPolicy) *AutomationSettingsModel {
	if p == nil {
		return nil
	}

	steps := make([]stepModel, 0, len(p.Steps))
	for _, s := range p.Steps {
		steps = append(steps, stepModel{
			Status:    s.Status,
			DayOffset: s.DayOffset,
			NotifyAt:  s.NotifyAt,
			Channels:  s.Channels,
		})
	}

	return &AutomationSettingsModel{
		ID:                   id,
		Enabled:              p.Enabled,
		Steps:                steps,
		FinalStatus:          p.FinalStatus,
		InitialStatus:        p.InitialStatus,
		NotificationsEnabled: p.NotificationsEnabled,
		Version:              p.Version,
		LastRunAt:            p.LastRunAt,
		LastRunSuccess:       p.LastRunSuccess,
		LastRunUpdated:       p.LastRunUpdated,
		UpdatedAt:            p.UpdatedAt,
	}
}

func policyModelToDomain(m *AutomationSettingsModel) *domain.AutomationPolicy {
	if m == nil {
		return nil
	}

	steps := make([]domain.AutomationStep, 0, len(m.Steps))
	for _, s := range m.Steps {
		steps = append(steps, domain.AutomationStep{
			Status:    s.Status,
			DayOffset: s.DayOffset,
			NotifyAt:  s.NotifyAt,
			Channels:  s.Channels,
		})
	}

	return &domain.AutomationPolicy{
		Enabled:              m.Enabled,
		Steps:                steps,
		FinalStatus:          m.FinalStatus,
		InitialStatus:        m.InitialStatus,
		NotificationsEnabled: m.NotificationsEnabled,
		Version:              m.Version,
		LastRunAt:            m.LastRunAt,
		LastRunSuccess:       m.LastRunSuccess,
		LastRunUpdated:       m.LastRunUpdated,
		UpdatedAt:            m.UpdatedAt,
	}
}

func templateModelFromDomain(t *domain.MessageTemplate) *MessageTemplateModel {
	if t == nil {
		return nil
	}

	return &MessageTemplateModel{
		Name:      t.Name(),
		Channel:   t.Channel,
		Status:    t.Status,
		Subject:   t.Subject,
		Body:      t.Body,
		Version:   t.Version,
		UpdatedAt: t.UpdatedAt,
	}
}

func templateModelToDomain(m *MessageTemplateModel) *domain.MessageTemplate {
	if m == nil {
		return nil
	}

	return &domain.MessageTemplate{
		Channel:   m.Channel,
		Status:    m.Status,
		Subject:   m.Subject,
		Body:      m.Body,
		Version:   m.Version,
		UpdatedAt: m.UpdatedAt,
	}
}
