package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/shiptrack/internal/service"
)

type OrderService interface {
	HandleOrderWebhook(ctx context.Context, payload map[string]any) (*service.OrderResult, error)
}

type WebhookHandler struct {
	service OrderService
}

type orderWebhookResponse struct {
	Created      bool   `json:"created"`
	Ignored      bool   `json:"ignored,omitempty"`
	Reason       string `json:"reason,omitempty"`
	ShipmentID   string `json:"shipmentId,omitempty"`
	TrackingCode string `json:"trackingCode,omitempty"`
}

func RegisterWebhookRoutes(router fiber.Router, svc OrderService) error {
	if svc == nil {
		return fmt.Errorf("order service is required")
	}
	h := &WebhookHandler{service: svc}

	router.Post("/v1/webhooks/orders", h.HandleOrder)
	return nil
}

// HandleOrder answers 201 for a new shipment, 200 for a redelivered order and 202 for an
// order that was accepted but ignored.
func (h *WebhookHandler) HandleOrder(c *fiber.Ctx) error {
	var payload map[string]any
	if err := c.BodyParser(&payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.HandleOrderWebhook(c.UserContext(), payload)
	if err != nil {
		return toHTTPError(err)
	}

	resp := orderWebhookResponse{Created: result.Created, Ignored: result.Ignored, Reason: result.Reason}
	if result.Shipment != nil {
		resp.ShipmentID = result.Shipment.ID
		resp.TrackingCode = result.Shipment.TrackingCode
	}

	status := fiber.StatusOK
	switch {
	case result.Created:
		status = fiber.StatusCreated
	case result.Ignored:
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(resp)
}
