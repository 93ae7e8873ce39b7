package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/shiptrack/internal/service"
)

type TrackingService interface {
	Track(ctx context.Context, code string) (*service.TrackingView, error)
}

type TrackingHandler struct {
	service TrackingService
}

func RegisterTrackingRoutes(router fiber.Router, svc TrackingService) error {
	if svc == nil {
		return fmt.Errorf("tracking service is required")
	}
	h := &TrackingHandler{service: svc}

	router.Get("/v1/tracking/:code", h.Track)
	return nil
}

func (h *TrackingHandler) Track(c *fiber.Ctx) error {
	view, err := h.service.Track(c.UserContext(), c.Params("code"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(view)
}
