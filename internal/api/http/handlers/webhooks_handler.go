package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fluxdesk/conversation-service/internal/repository"
)

// WebhooksHandler serves operator webhook endpoints.
type WebhooksHandler struct {
	webhooks repository.WebhookRepository
	logs     repository.DeliveryLogRepository
}

// NewWebhooksHandler constructs handler.
func NewWebhooksHandler(webhooks repository.WebhookRepository, logs repository.DeliveryLogRepository) *WebhooksHandler {
	return &WebhooksHandler{webhooks: webhooks, logs: logs}
}

// Enable POST /webhooks/:id/enable re-activates a webhook and resets its failure counter.
func (h *WebhooksHandler) Enable(c *fiber.Ctx) error {
	principal, err := operatorPrincipal(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.webhooks.Enable(c.UserContext(), principal.TenantID, id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Logs GET /webhooks/:id/logs?limit=N.
func (h *WebhooksHandler) Logs(c *fiber.Ctx) error {
	principal, err := operatorPrincipal(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	if _, err := h.webhooks.GetByID(c.UserContext(), principal.TenantID, id); err != nil {
		return err
	}
	logs, err := h.logs.ListByWebhook(c.UserContext(), principal.TenantID, id, logLimit(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": logResponses(logs)})
}
