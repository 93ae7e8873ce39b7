package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/shiptrack/internal/domain"
)

const dateLayout = "2006-01-02"

type shipmentRequest struct {
	TrackingCode       string  `json:"trackingCode"`
	ExternalOrderID    *string `json:"externalOrderId"`
	SenderName         string  `json:"senderName"`
	RecipientName      string  `json:"recipientName"`
	RecipientEmail     string  `json:"recipientEmail"`
	RecipientPhone     string  `json:"recipientPhone"`
	OriginAddress      string  `json:"originAddress"`
	DestinationAddress string  `json:"destinationAddress"`
	ProductName        string  `json:"productName"`
	ProductQuantity    int     `json:"productQuantity"`
	// ShipDate accepts RFC3339 or YYYY-MM-DD.
	ShipDate string `json:"shipDate"`
	Status   string `json:"status"`
}

func (r shipmentRequest) toDomain(loc *time.Location) (*domain.Shipment, error) {
	shipDate, err := parseShipDate(r.ShipDate, loc)
	if err != nil {
		return nil, err
	}

	return &domain.Shipment{
		TrackingCode:       strings.TrimSpace(r.TrackingCode),
		ExternalOrderID:    r.ExternalOrderID,
		SenderName:         strings.TrimSpace(r.SenderName),
		RecipientName:      strings.TrimSpace(r.RecipientName),
		RecipientEmail:     strings.TrimSpace(r.RecipientEmail),
		RecipientPhone:     strings.TrimSpace(r.RecipientPhone),
		OriginAddress:      strings.TrimSpace(r.OriginAddress),
		DestinationAddress: strings.TrimSpace(r.DestinationAddress),
		ProductName:        strings.TrimSpace(r.ProductName),
		ProductQuantity:    r.ProductQuantity,
		ShipDate:           shipDate,
		Status:             strings.TrimSpace(r.Status),
	}, nil
}

func parseShipDate(value string, loc *time.Location) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, trimmed, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: shipDate must be RFC3339 or YYYY-MM-DD", domain.ErrValidation)
	}
	return t, nil
}

type shipmentResponse struct {
	ID                 string    `json:"id"`
	TrackingCode       string    `json:"trackingCode"`
	ExternalOrderID    *string   `json:"externalOrderId,omitempty"`
	SenderName         string    `json:"senderName"`
	RecipientName      string    `json:"recipientName"`
	RecipientEmail     string    `json:"recipientEmail"`
	RecipientPhone     string    `json:"recipientPhone"`
	OriginAddress      string    `json:"originAddress"`
	DestinationAddress string    `json:"destinationAddress"`
	ProductName        string    `json:"productName"`
	ProductQuantity    int       `json:"productQuantity"`
	ShipDate           time.Time `json:"shipDate"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func toShipmentResponse(s *domain.Shipment) shipmentResponse {
	if s == nil {
		return shipmentResponse{}
	}
	return shipmentResponse{
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

type historyResponse struct {
	Status    string    `json:"status"`
	Note      *string   `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type overrideStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type notifyRequest struct {
	Channels []string `json:"channels"`
}

type dispatchResponse struct {
	ID           string     `json:"id"`
	TargetStatus string     `json:"targetStatus"`
	ScheduledAt  time.Time  `json:"scheduledAt"`
	Sent         bool       `json:"sent"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type messageResponse struct {
	ID                string    `json:"id"`
	ShipmentID        *string   `json:"shipmentId,omitempty"`
	Status            string    `json:"status"`
	Recipient         string    `json:"recipient"`
	Channel           string    `json:"channel"`
	Message           string    `json:"message"`
	Outcome           string    `json:"outcome"`
	ExternalMessageID *string   `json:"externalMessageId,omitempty"`
	Error             *string   `json:"error,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

type stepPayload struct {
	Status    string   `json:"status"`
	DayOffset int      `json:"dayOffset"`
	NotifyAt  string   `json:"notifyAt"`
	Channels  []string `json:"channels"`
}

type policyRequest struct {
	Enabled              bool          `json:"enabled"`
	NotificationsEnabled *bool         `json:"notificationsEnabled"`
	FinalStatus          string        `json:"finalStatus"`
	InitialStatus        string        `json:"initialStatus"`
	Steps                []stepPayload `json:"steps"`
}

func (r policyRequest) toDomain() (*domain.AutomationPolicy, error) {
	policy := &domain.AutomationPolicy{
		Enabled:              r.Enabled,
		NotificationsEnabled: true,
		FinalStatus:          r.FinalStatus,
		InitialStatus:        r.InitialStatus,
		Steps:                make([]domain.AutomationStep, 0, len(r.Steps)),
	}
	if r.NotificationsEnabled != nil {
		policy.NotificationsEnabled = *r.NotificationsEnabled
	}

	for i, step := range r.Steps {
		channels := make([]domain.Channel, 0, len(step.Channels))
		for _, raw := range step.Channels {
			channel, err := domain.ParseChannelFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			channels = append(channels, channel)
		}
		policy.Steps = append(policy.Steps, domain.AutomationStep{
			Status:    step.Status,
			DayOffset: step.DayOffset,
			NotifyAt:  step.NotifyAt,
			Channels:  channels,
		})
	}
	return policy, nil
}

type policyResponse struct {
	Enabled              bool          `json:"enabled"`
	NotificationsEnabled bool          `json:"notificationsEnabled"`
	FinalStatus          string        `json:"finalStatus"`
	InitialStatus        string        `json:"initialStatus,omitempty"`
	Steps                []stepPayload `json:"steps"`
	Version              int           `json:"version"`
	LastRunAt            *time.Time    `json:"lastRunAt,omitempty"`
	LastRunSuccess       *bool         `json:"lastRunSuccess,omitempty"`
	LastRunUpdated       int           `json:"lastRunUpdated"`
	UpdatedAt            time.Time     `json:"updatedAt"`
}

func toPolicyResponse(p *domain.AutomationPolicy) policyResponse {
	steps := make([]stepPayload, 0, len(p.Steps))
	for _, step := range p.Steps {
		channels := make([]string, 0, len(step.Channels))
		for _, c := range step.Channels {
			channels = append(channels, c.String())
		}
		steps = append(steps, stepPayload{
			Status:    step.Status,
			DayOffset: step.DayOffset,
			NotifyAt:  step.NotifyAt,
			Channels:  channels,
		})
	}

	return policyResponse{
		Enabled:              p.Enabled,
		NotificationsEnabled: p.NotificationsEnabled,
		FinalStatus:          p.FinalStatus,
		InitialStatus:        p.InitialStatus,
		Steps:                steps,
		Version:              p.Version,
		LastRunAt:            p.LastRunAt,
		LastRunSuccess:       p.LastRunSuccess,
		LastRunUpdated:       p.LastRunUpdated,
		UpdatedAt:            p.UpdatedAt,
	}
}

type templateRequest struct {
	Channel string `json:"channel"`
	Status  string `json:"status"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type templateResponse struct {
	Name      string    `json:"name"`
	Channel   string    `json:"channel"`
	Status    string    `json:"status,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toTemplateResponse(t *domain.MessageTemplate) templateResponse {
	return templateResponse{
		Name:      t.Name(),
		Channel:   t.Channel.String(),
		Status:    t.Status,
		Subject:   t.Subject,
		Body:      t.Body,
		Version:   t.Version,
		UpdatedAt: t.UpdatedAt,
	}
}
