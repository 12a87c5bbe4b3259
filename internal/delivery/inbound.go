package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/queue"
	"github.com/fluxdesk/conversation-service/internal/repository"
)

// InboundEmailJob is the payload of a queue.JobInboundEmail job.
type InboundEmailJob struct {
	ChannelID int64               `json:"channel_id"`
	Email     domain.InboundEmail `json:"email"`
}

// InboundMessagingJob is the payload of a queue.JobInboundMessaging job.
type InboundMessagingJob struct {
	ChannelID int64                        `json:"channel_id"`
	Event     domain.InboundMessagingEvent `json:"event"`
}

// InboundProcessor ingests pushed provider payloads.
type InboundProcessor interface {
	ProcessEmail(ctx context.Context, channel *domain.Channel, email *domain.InboundEmail) error
	ProcessMessaging(ctx context.Context, channel *domain.Channel, event *domain.InboundMessagingEvent) error
}

// InboundHandler processes accepted inbound webhooks under the inbound retry policy.
type InboundHandler struct {
	store     repository.Store
	processor InboundProcessor
}

// NewInboundHandler creates an InboundHandler.
func NewInboundHandler(store repository.Store, processor InboundProcessor) *InboundHandler {
	return &InboundHandler{store: store, processor: processor}
}

// Handle dispatches on the job kind.
func (h *InboundHandler) Handle(ctx context.Context, job *queue.Job) Result {
	kind := domain.DeliveryKindInboundWebhook
	switch job.Kind {
	case queue.JobInboundEmail:
		var payload InboundEmailJob
		if err := job.Decode(&payload); err != nil {
			return Terminal(kind, err)
		}
		return h.run(ctx, job.TenantID, payload.ChannelID, func(ch *domain.Channel) error {
			return h.processor.ProcessEmail(ctx, ch, &payload.Email)
		})
	case queue.JobInboundMessaging:
		var payload InboundMessagingJob
		if err := job.Decode(&payload); err != nil {
			return Terminal(kind, err)
		}
		return h.run(ctx, job.TenantID, payload.ChannelID, func(ch *domain.Channel) error {
			return h.processor.ProcessMessaging(ctx, ch, &payload.Event)
		})
	default:
		return Terminal(kind, fmt.Errorf("unexpected job kind %q", job.Kind))
	}
}

func (h *InboundHandler) run(ctx context.Context, tenantID, channelID int64, fn func(*domain.Channel) error) Result {
	res := Result{Kind: domain.DeliveryKindInboundWebhook, ChannelID: &channelID}
	channel, err := h.store.Repos().Channels.Get(ctx, tenantID, channelID)
	if errors.Is(err, domain.ErrNotFound) {
		return fail(res, TerminalFailure, domain.NewConfigError("channel %d not found", channelID))
	}
	if err != nil {
		return fail(res, RetryableFailure, err)
	}
	if !channel.IsActive {
		return fail(res, TerminalFailure, domain.NewConfigError("channel %d is inactive", channelID))
	}
	if err := fn(channel); err != nil {
		if domain.IsConfigError(err) || errors.Is(err, domain.ErrInvalidPayload) {
			return fail(res, TerminalFailure, err)
		}
		return fail(res, RetryableFailure, err)
	}
	res.Outcome = Success
	return res
}
