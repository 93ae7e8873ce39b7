package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultInitialStatus is assigned on intake when the policy names none.
const DefaultInitialStatus = "Pedido confirmado"

var trackingCodePattern = regexp.MustCompile(`^LOG-\d{8}-\d{4}$`)

// Shipment is a tracked parcel.
type Shipment struct {
	ID                 string
	TrackingCode       string
	ExternalOrderID    *string
	SenderName         string
	RecipientName      string
	RecipientEmail     string
	RecipientPhone     string
	OriginAddress      string
	DestinationAddress string
	ProductName        string
	ProductQuantity    int
	ShipDate           time.Time
	Status             string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (s *Shipment) Validate() error {
	if !IsTrackingCode(s.TrackingCode) {
		return fmt.Errorf("%w: invalid tracking code %q", ErrValidation, s.TrackingCode)
	}
	if strings.TrimSpace(s.RecipientName) == "" {
		return fmt.Errorf("%w: recipient name is required", ErrValidation)
	}
	if s.ShipDate.IsZero() {
		return fmt.Errorf("%w: ship date is required", ErrValidation)
	}
	if strings.TrimSpace(s.Status) == "" {
		return fmt.Errorf("%w: status is required", ErrValidation)
	}
	if s.ProductQuantity < 0 {
		return fmt.Errorf("%w: product quantity must be >= 0", ErrValidation)
	}
	return nil
}

// Contact returns the recipient address used by a channel.
func (s *Shipment) Contact(channel Channel) string {
	switch channel {
	case ChannelEmail:
		return strings.TrimSpace(s.RecipientEmail)
	case ChannelWhatsApp, ChannelSMS:
		return strings.TrimSpace(s.RecipientPhone)
	}
	return ""
}

// StatusHistoryEntry is an append-only record of one status transition.
type StatusHistoryEntry struct {
	ID         string
	ShipmentID string
	Status     string
	Note       *string
	CreatedAt  time.Time
}

// NewTrackingCode builds a LOG-YYYYMMDD-NNNN code. intn must return values in [0, n).
func NewTrackingCode(now time.Time, intn func(n int) int) string {
	return fmt.Sprintf("LOG-%s-%04d", now.Format("20060102"), intn(10000))
}

func IsTrackingCode(code string) bool {
	return trackingCodePattern.MatchString(code)
}

// NormalizeTrackingCode upper-cases and trims user input.
func NormalizeTrackingCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeStatus folds a status label to the key SameStatus compares by.
func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// SameStatus compares status labels ignoring case and surrounding spaces.
func SameStatus(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
