package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/fluxdesk/conversation-service/internal/delivery"
	"github.com/fluxdesk/conversation-service/internal/queue"
	apperrors "github.com/fluxdesk/conversation-service/pkg/util/errorutil"
)

// MessageRetrier re-queues a failed outbound message.
type MessageRetrier interface {
	RetryFailed(ctx context.Context, q queue.Queue, tenantID, messageID int64) error
}

// MessagesHandler serves operator message endpoints.
type MessagesHandler struct {
	retrier MessageRetrier
	queue   queue.Queue
}

// NewMessagesHandler constructs handler.
func NewMessagesHandler(retrier MessageRetrier, q queue.Queue) *MessagesHandler {
	return &MessagesHandler{retrier: retrier, queue: q}
}

// Retry POST /messages/:id/retry.
func (h *MessagesHandler) Retry(c *fiber.Ctx) error {
	principal, err := operatorPrincipal(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.retrier.RetryFailed(c.UserContext(), h.queue, principal.TenantID, id); err != nil {
		if errors.Is(err, delivery.ErrNotRetryable) {
			return apperrors.NewConflict(err.Error(), map[string]any{"message_id": id})
		}
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{"message_id": id, "status": "pending"}})
}
