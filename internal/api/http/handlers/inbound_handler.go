package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fluxdesk/conversation-service/internal/api/dto"
	"github.com/fluxdesk/conversation-service/internal/auth"
	"github.com/fluxdesk/conversation-service/internal/delivery"
	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/queue"
	apperrors "github.com/fluxdesk/conversation-service/pkg/util/errorutil"
)

// InboundHandler accepts provider webhooks and queues them for ingestion.
type InboundHandler struct {
	queue  queue.Queue
	logger *zap.Logger
	now    func() time.Time
}

// NewInboundHandler constructs handler.
func NewInboundHandler(q queue.Queue, logger *zap.Logger) *InboundHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InboundHandler{queue: q, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Email POST /inbound/email/:channelID.
func (h *InboundHandler) Email(c *fiber.Ctx) error {
	ch, err := h.channel(c, domain.ChannelKindEmail)
	if err != nil {
		return err
	}
	email, err := dto.ParseInboundEmail(c.Body())
	if err != nil {
		return err
	}
	return h.accept(c, ch, queue.JobInboundEmail, delivery.InboundEmailJob{ChannelID: ch.ID, Email: *email},
		zap.String("provider_message_id", email.ProviderMessageID()))
}

// Messaging POST /inbound/messaging/:channelID.
func (h *InboundHandler) Messaging(c *fiber.Ctx) error {
	ch, err := h.channel(c, domain.ChannelKindMessaging)
	if err != nil {
		return err
	}
	event, err := dto.ParseInboundMessaging(c.Body())
	if err != nil {
		return err
	}
	return h.accept(c, ch, queue.JobInboundMessaging, delivery.InboundMessagingJob{ChannelID: ch.ID, Event: *event},
		zap.String("provider_message_id", event.MessageID))
}

func (h *InboundHandler) channel(c *fiber.Ctx, kind domain.ChannelKind) (*domain.Channel, error) {
	ch, ok := auth.ChannelFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("invalid channel token")
	}
	if !ch.IsActive {
		return nil, apperrors.NewUnprocessable("channel is inactive", nil)
	}
	if ch.Kind != kind {
		return nil, apperrors.NewUnprocessable("channel does not accept this payload", map[string]any{"kind": ch.Kind})
	}
	return ch, nil
}

func (h *InboundHandler) accept(c *fiber.Ctx, ch *domain.Channel, kind queue.JobKind, payload any, field zap.Field) error {
	job, err := queue.NewJob(kind, ch.TenantID, payload)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := h.queue.Enqueue(c.UserContext(), job, h.now()); err != nil {
		return apperrors.NewInternalError(err)
	}
	h.logger.Info("inbound payload accepted",
		zap.Int64("tenant_id", ch.TenantID),
		zap.Int64("channel_id", ch.ID),
		zap.String("job_id", job.ID),
		field,
	)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": dto.AcceptedResponse{JobID: job.ID}})
}
