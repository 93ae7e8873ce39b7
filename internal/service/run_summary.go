package service

import (
	"time"

	"github.com/kursadbilgin/shiptrack/internal/domain"
)

// ItemOutcome is the result of processing one due shipment.
type ItemOutcome string

const (
	ItemAdvanced ItemOutcome = "ADVANCED"
	ItemSkipped  ItemOutcome = "SKIPPED"
	ItemFailed   ItemOutcome = "FAILED"
)

// ChannelResult is the outcome of one dispatch attempt on one channel.
type ChannelResult struct {
	Channel   domain.Channel         `json:"channel"`
	Recipient string                 `json:"recipient,omitempty"`
	Outcome   domain.DispatchOutcome `json:"outcome"`
	MessageID string                 `json:"messageId,omitempty"`
	Error     string                 `json:"error,omitempty"`
	// AuditError is set when the attempt could not be written to message history.
	AuditError string `json:"auditError,omitempty"`
}

// ItemResult reports what a batch did with one due shipment.
type ItemResult struct {
	ShipmentID   string          `json:"shipmentId"`
	TrackingCode string          `json:"trackingCode"`
	FromStatus   string          `json:"fromStatus"`
	ToStatus     string          `json:"toStatus"`
	Outcome      ItemOutcome     `json:"outcome"`
	DispatchID   string          `json:"dispatchId,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Error        string          `json:"error,omitempty"`
	Channels     []ChannelResult `json:"channels,omitempty"`
}

// RunSummary aggregates one automation batch.
type RunSummary struct {
	RunID         string       `json:"runId"`
	StartedAt     time.Time    `json:"startedAt"`
	FinishedAt    time.Time    `json:"finishedAt"`
	Scanned       int          `json:"scanned"`
	Due           int          `json:"due"`
	Advanced      int          `json:"advanced"`
	Skipped       int          `json:"skipped"`
	Failed        int          `json:"failed"`
	Remaining     int          `json:"remaining"`
	MoreRemaining bool         `json:"moreRemaining"`
	Disabled      bool         `json:"disabled,omitempty"`
	Locked        bool         `json:"locked,omitempty"`
	ConfigError   string       `json:"configError,omitempty"`
	Error         string       `json:"error,omitempty"`
	AuditError    string       `json:"auditError,omitempty"`
	Items         []ItemResult `json:"items"`
}

// Processed counts the due shipments the batch acted on.
func (s *RunSummary) Processed() int {
	return s.Advanced + s.Skipped + s.Failed
}

// attempted counts the items charged against the batch size. Claim skips wrote nothing and are
// not charged.
func (s *RunSummary) attempted() int {
	return s.Advanced + s.Failed
}

// Succeeded reports whether the batch ran without configuration, store or item failures.
// Channel failures do not make a batch unsuccessful; they live in the item results.
func (s *RunSummary) Succeeded() bool {
	return s.ConfigError == "" && s.Error == "" && s.Failed == 0
}

// Result is a short label used for metrics.
func (s *RunSummary) Result() string {
	switch {
	case s.Locked:
		return "locked"
	case s.Disabled:
		return "disabled"
	case s.ConfigError != "":
		return "config_error"
	case s.Error != "":
		return "error"
	case s.Failed > 0:
		return "partial"
	default:
		return "success"
	}
}

func (s *RunSummary) add(item ItemResult) {
	switch item.Outcome {
	case ItemAdvanced:
		s.Advanced++
	case ItemSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
	s.Items = append(s.Items, item)
}
