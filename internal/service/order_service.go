package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kursadbilgin/shiptrack/internal/domain"
	"go.uber.org/zap"
)

var paidStatuses = map[string]bool{
	"paid":      true,
	"approved":  true,
	"success":   true,
	"succeeded": true,
	"confirmed": true,
	"completed": true,
	"pago":      true,
	"aprovado":  true,
}

// OrderDefaults fills shipment fields an order payload never carries.
type OrderDefaults struct {
	SenderName    string
	OriginAddress string
}

// OrderResult reports what a webhook delivery did.
type OrderResult struct {
	Created  bool             `json:"created"`
	Ignored  bool             `json:"ignored,omitempty"`
	Reason   string           `json:"reason,omitempty"`
	Shipment *domain.Shipment `json:"-"`
}

// OrderService turns paid store orders into shipments.
type OrderService struct {
	shipments *ShipmentService
	defaults  OrderDefaults
	logger    *zap.Logger
}

func NewOrderService(shipments *ShipmentService, defaults OrderDefaults, logger *zap.Logger) (*OrderService, error) {
	if shipments == nil {
		return nil, fmt.Errorf("order service requires a shipment service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{shipments: shipments, defaults: defaults, logger: logger}, nil
}

// HandleOrderWebhook creates one shipment per paid order. Redelivered orders return the
// existing shipment; orders without a successful payment are ignored.
func (s *OrderService) HandleOrderWebhook(ctx context.Context, payload map[string]any) (*OrderResult, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty order payload", domain.ErrValidation)
	}

	orderID := firstString(payload, "id", "order_id", "orderId", "external_id")
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}
	logger := s.logger.With(zap.String("externalOrderId", orderID))

	payment := paymentStatus(payload)
	if !paidStatuses[payment] {
		logger.Info("order ignored, payment not successful", zap.String("paymentStatus", payment))
		return &OrderResult{Ignored: true, Reason: fmt.Sprintf("payment status %q is not successful", payment)}, nil
	}

	if existing, err := s.shipments.shipments.GetByExternalOrderID(ctx, orderID); err == nil {
		return &OrderResult{Shipment: existing, Reason: "order already has a shipment"}, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	shipment := shipmentFromOrder(payload, orderID, s.defaults)
	created, err := s.shipments.Create(ctx, shipment)
	if err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		existing, lookupErr := s.shipments.shipments.GetByExternalOrderID(ctx, orderID)
		if lookupErr != nil {
			return nil, err
		}
		return &OrderResult{Shipment: existing, Reason: "order already has a shipment"}, nil
	}

	logger.Info("shipment created from order", zap.String("trackingCode", created.TrackingCode))
	return &OrderResult{Created: true, Shipment: created}, nil
}

func shipmentFromOrder(payload map[string]any, orderID string, defaults OrderDefaults) *domain.Shipment {
	customer := firstMap(payload, "customer", "buyer", "client")
	if customer == nil {
		customer = map[string]any{}
	}

	name := firstString(customer, "name", "full_name", "fullName")
	if name == "" {
		first := firstString(customer, "first_name", "firstName")
		last := firstString(customer, "last_name", "lastName")
		name = strings.TrimSpace(first + " " + last)
	}
	if name == "" {
		name = firstString(payload, "customer_name", "customerName")
	}

	email := firstString(customer, "email")
	if email == "" {
		email = firstString(payload, "customer_email", "customerEmail", "email")
	}
	phone := firstString(customer, "phone", "mobile", "whatsapp")
	if phone == "" {
		phone = firstString(payload, "customer_phone", "customerPhone", "phone")
	}

	product, quantity := firstItem(payload)

	return &domain.Shipment{
		ExternalOrderID:    &orderID,
		SenderName:         defaults.SenderName,
		OriginAddress:      defaults.OriginAddress,
		RecipientName:      name,
		RecipientEmail:     email,
		RecipientPhone:     phone,
		DestinationAddress: shippingAddress(payload),
		ProductName:        product,
		ProductQuantity:    quantity,
	}
}

func paymentStatus(payload map[string]any) string {
	status := firstString(payload, "payment_status", "paymentStatus")
	if status == "" {
		if payment := firstMap(payload, "payment"); payment != nil {
			status = firstString(payment, "status")
		}
	}
	if status == "" {
		status = firstString(payload, "status")
	}
	return strings.ToLower(status)
}

func shippingAddress(payload map[string]any) string {
	for _, key := range []string{"shipping_address", "shippingAddress", "address"} {
		switch v := payload[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case map[string]any:
			parts := make([]string, 0, 6)
			for _, field := range []string{"street", "address1", "number", "complement", "neighborhood", "city", "state", "zip", "postal_code", "country"} {
				if value := firstString(v, field); value != "" {
					parts = append(parts, value)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, ", ")
			}
		}
	}
	return ""
}

func firstItem(payload map[string]any) (string, int) {
	for _, key := range []string{"items", "line_items", "products"} {
		items, ok := payload[key].([]any)
		if !ok || len(items) == 0 {
			continue
		}
		item, ok := items[0].(map[string]any)
		if !ok {
			continue
		}
		name := firstString(item, "name", "title", "product_name")
		quantity, _ := strconv.Atoi(firstString(item, "quantity", "qty"))
		return name, max(quantity, 0)
	}
	return "", 0
}

func firstMap(m map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if v, ok := m[key].(map[string]any); ok {
			return v
		}
	}
	return nil
}

// firstString returns the first key holding a non-empty scalar, formatted as a string.
// JSON numbers arrive as float64 and are printed without a fractional part when integral.
func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		case int64:
			return strconv.FormatInt(v, 10)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}
