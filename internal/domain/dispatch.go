package domain

import "time"

// ScheduledDispatch claims one (shipment, target status) step. The pair is unique.
type ScheduledDispatch struct {
	ID           string
	ShipmentID   string
	TargetStatus string
	ScheduledAt  time.Time
	Sent         bool
	SentAt       *time.Time
	Error        *string
	CreatedAt    time.Time
}

// MessageHistoryEntry audits a single channel dispatch attempt.
type MessageHistoryEntry struct {
	ID                string
	ShipmentID        *string
	Status            string
	Recipient         string
	Channel           Channel
	Message           string
	Outcome           DispatchOutcome
	ExternalMessageID *string
	Error             *string
	CreatedAt         time.Time
}
