package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/shiptrack/internal/domain"
	"github.com/kursadbilgin/shiptrack/internal/repository"
	"github.com/kursadbilgin/shiptrack/internal/service"
)

type ShipmentService interface {
	Create(ctx context.Context, s *domain.Shipment) (*domain.Shipment, error)
	Get(ctx context.Context, id string) (*domain.Shipment, error)
	Update(ctx context.Context, s *domain.Shipment) (*domain.Shipment, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, params repository.ShipmentListParams) ([]domain.Shipment, int64, error)
	History(ctx context.Context, id string) ([]domain.StatusHistoryEntry, error)
	OverrideStatus(ctx context.Context, id, status, note string) (*domain.Shipment, error)
	Purge(ctx context.Context) (int64, error)
	Dispatches(ctx context.Context, shipmentID string) ([]domain.ScheduledDispatch, error)
	Messages(ctx context.Context, params repository.MessageListParams) ([]domain.MessageHistoryEntry, int64, error)
}

type SettingsService interface {
	GetPolicy(ctx context.Context) (*domain.AutomationPolicy, error)
	UpdatePolicy(ctx context.Context, p *domain.AutomationPolicy) (*domain.AutomationPolicy, error)
	ListTemplates(ctx context.Context) ([]domain.MessageTemplate, error)
	UpdateTemplate(ctx context.Context, t *domain.MessageTemplate) (*domain.MessageTemplate, error)
}

type AutomationService interface {
	RunBatch(ctx context.Context) (service.RunSummary, error)
	Notify(ctx context.Context, shipmentID string, channels []domain.Channel) ([]service.ChannelResult, error)
}

type AdminDeps struct {
	Shipments  ShipmentService
	Settings   SettingsService
	Automation AutomationService
	Token      string
	// Location interprets date-only ship dates.
	Location *time.Location
}

type AdminHandler struct {
	shipments  ShipmentService
	settings   SettingsService
	automation AutomationService
	loc        *time.Location
}

func RegisterAdminRoutes(router fiber.Router, deps AdminDeps) error {
	if deps.Shipments == nil || deps.Settings == nil || deps.Automation == nil {
		return fmt.Errorf("admin routes require shipment, settings and automation services")
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	h := &AdminHandler{
		shipments:  deps.Shipments,
		settings:   deps.Settings,
		automation: deps.Automation,
		loc:        loc,
	}

	admin := router.Group("/v1/admin", AdminAuth(deps.Token))

	admin.Get("/shipments", h.ListShipments)
	admin.Post("/shipments", h.CreateShipment)
	admin.Delete("/shipments", h.PurgeShipments)
	admin.Get("/shipments/:id", h.GetShipment)
	admin.Put("/shipments/:id", h.UpdateShipment)
	admin.Delete("/shipments/:id", h.DeleteShipment)
	admin.Get("/shipments/:id/history", h.ShipmentHistory)
	admin.Post("/shipments/:id/status", h.OverrideStatus)
	admin.Post("/shipments/:id/notify", h.Notify)
	admin.Get("/shipments/:id/dispatches", h.ListDispatches)
	admin.Get("/messages", h.ListMessages)

	admin.Get("/automation/settings", h.GetPolicy)
	admin.Put("/automation/settings", h.UpdatePolicy)
	admin.Post("/automation/run", h.RunAutomation)
	admin.Get("/templates", h.ListTemplates)
	admin.Put("/templates", h.UpdateTemplate)

	return nil
}

func (h *AdminHandler) ListShipments(c *fiber.Ctx) error {
	page, pageSize, err := parsePage(c)
	if err != nil {
		return toHTTPError(err)
	}
	params := repository.ShipmentListParams{
		Search:   strings.TrimSpace(c.Query("search")),
		Page:     page,
		PageSize: pageSize,
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		params.Status = &status
	}

	shipments, total, err := h.shipments.List(c.UserContext(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]shipmentResponse, 0, len(shipments))
	for i := range shipments {
		data = append(data, toShipmentResponse(&shipments[i]))
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": data,
		"meta": listMeta{Page: page, PageSize: pageSize, Total: total},
	})
}

func (h *AdminHandler) CreateShipment(c *fiber.Ctx) error {
	var req shipmentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	shipment, err := req.toDomain(h.loc)
	if err != nil {
		return toHTTPError(err)
	}
	created, err := h.shipments.Create(c.UserContext(), shipment)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toShipmentResponse(created))
}

func (h *AdminHandler) GetShipment(c *fiber.Ctx) error {
	shipment, err := h.shipments.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toShipmentResponse(shipment))
}

func (h *AdminHandler) UpdateShipment(c *fiber.Ctx) error {
	var req shipmentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	shipment, err := req.toDomain(h.loc)
	if err != nil {
		return toHTTPError(err)
	}
	shipment.ID = c.Params("id")

	updated, err := h.shipments.Update(c.UserContext(), shipment)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toShipmentResponse(updated))
}

func (h *AdminHandler) DeleteShipment(c *fiber.Ctx) error {
	if err := h.shipments.Delete(c.UserContext(), c.Params("id")); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// PurgeShipments requires ?confirm=true.
func (h *AdminHandler) PurgeShipments(c *fiber.Ctx) error {
	if !c.QueryBool("confirm", false) {
		return fiber.NewError(fiber.StatusBadRequest, "purge requires confirm=true")
	}
	deleted, err := h.shipments.Purge(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"deleted": deleted})
}

func (h *AdminHandler) ShipmentHistory(c *fiber.Ctx) error {
	history, err := h.shipments.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]historyResponse, 0, len(history))
	for _, entry := range history {
		data = append(data, historyResponse{Status: entry.Status, Note: entry.Note, CreatedAt: entry.CreatedAt})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": data})
}

func (h *AdminHandler) OverrideStatus(c *fiber.Ctx) error {
	var req overrideStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updated, err := h.shipments.OverrideStatus(c.UserContext(), c.Params("id"), req.Status, req.Note)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toShipmentResponse(updated))
}

func (h *AdminHandler) Notify(c *fiber.Ctx) error {
	var req notifyRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	channels := make([]domain.Channel, 0, len(req.Channels))
	for _, raw := range req.Channels {
		channel, err := domain.ParseChannelFromString(raw)
		if err != nil {
			return toHTTPError(err)
		}
		channels = append(channels, channel)
	}

	results, err := h.automation.Notify(c.UserContext(), c.Params("id"), channels)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"channels": results})
}

func (h *AdminHandler) ListDispatches(c *fiber.Ctx) error {
	dispatches, err := h.shipments.Dispatches(c.UserContext(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]dispatchResponse, 0, len(dispatches))
	for _, d := range dispatches {
		data = append(data, dispatchResponse{
			ID:           d.ID,
			TargetStatus: d.TargetStatus,
			ScheduledAt:  d.ScheduledAt,
			Sent:         d.Sent,
			SentAt:       d.SentAt,
			Error:        d.Error,
			CreatedAt:    d.CreatedAt,
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": data})
}

func (h *AdminHandler) ListMessages(c *fiber.Ctx) error {
	page, pageSize, err := parsePage(c)
	if err != nil {
		return toHTTPError(err)
	}
	params := repository.MessageListParams{Page: page, PageSize: pageSize}
	if shipmentID := strings.TrimSpace(c.Query("shipmentId")); shipmentID != "" {
		params.ShipmentID = &shipmentID
	}
	if raw := strings.TrimSpace(c.Query("channel")); raw != "" {
		channel, err := domain.ParseChannelFromString(raw)
		if err != nil {
			return toHTTPError(err)
		}
		params.Channel = &channel
	}

	messages, total, err := h.shipments.Messages(c.UserContext(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		data = append(data, messageResponse{
			ID:                m.ID,
			ShipmentID:        m.ShipmentID,
			Status:            m.Status,
			Recipient:         m.Recipient,
			Channel:           m.Channel.String(),
			Message:           m.Message,
			Outcome:           m.Outcome.String(),
			ExternalMessageID: m.ExternalMessageID,
			Error:             m.Error,
			CreatedAt:         m.CreatedAt,
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": data,
		"meta": listMeta{Page: page, PageSize: pageSize, Total: total},
	})
}

func (h *AdminHandler) GetPolicy(c *fiber.Ctx) error {
	policy, err := h.settings.GetPolicy(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toPolicyResponse(policy))
}

func (h *AdminHandler) UpdatePolicy(c *fiber.Ctx) error {
	var req policyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	policy, err := req.toDomain()
	if err != nil {
		return toHTTPError(err)
	}
	saved, err := h.settings.UpdatePolicy(c.UserContext(), policy)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toPolicyResponse(saved))
}

// RunAutomation executes one batch inline and returns its summary.
func (h *AdminHandler) RunAutomation(c *fiber.Ctx) error {
	summary, err := h.automation.RunBatch(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(summary)
	}
	return c.Status(fiber.StatusOK).JSON(summary)
}

func (h *AdminHandler) ListTemplates(c *fiber.Ctx) error {
	templates, err := h.settings.ListTemplates(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]templateResponse, 0, len(templates))
	for i := range templates {
		data = append(data, toTemplateResponse(&templates[i]))
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": data})
}

func (h *AdminHandler) UpdateTemplate(c *fiber.Ctx) error {
	var req templateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	channel, err := domain.ParseChannelFromString(req.Channel)
	if err != nil {
		return toHTTPError(err)
	}
	saved, err := h.settings.UpdateTemplate(c.UserContext(), &domain.MessageTemplate{
		Channel: channel,
		Status:  req.Status,
		Subject: req.Subject,
		Body:    req.Body,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toTemplateResponse(saved))
}
