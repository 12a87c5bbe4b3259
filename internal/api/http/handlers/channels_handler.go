package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/fluxdesk/conversation-service/internal/api/dto"
	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/repository"
	"github.com/fluxdesk/conversation-service/internal/syncer"
	apperrors "github.com/fluxdesk/conversation-service/pkg/util/errorutil"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// ChannelSyncer runs an on-demand sync of one channel.
type ChannelSyncer interface {
	SyncChannel(ctx context.Context, tenantID, channelID int64) (syncer.Report, error)
}

// ChannelsHandler serves operator channel endpoints.
type ChannelsHandler struct {
	syncer ChannelSyncer
	logs   repository.DeliveryLogRepository
}

// NewChannelsHandler constructs handler.
func NewChannelsHandler(s ChannelSyncer, logs repository.DeliveryLogRepository) *ChannelsHandler {
	return &ChannelsHandler{syncer: s, logs: logs}
}

// Sync POST /channels/:id/sync.
func (h *ChannelsHandler) Sync(c *fiber.Ctx) error {
	principal, err := operatorPrincipal(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	report, err := h.syncer.SyncChannel(c.UserContext(), principal.TenantID, id)
	if err != nil {
		if report.ChannelID == 0 {
			return err
		}
		return apperrors.NewDomainError("SYNC_FAILED", "channel sync failed", http.StatusBadGateway,
			map[string]any{"reason": err.Error(), "report": dto.SyncReportFrom(report)})
	}
	status := fiber.StatusOK
	if report.Skipped {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.SyncReportFrom(report)})
}

// Logs GET /channels/:id/logs?limit=N.
func (h *ChannelsHandler) Logs(c *fiber.Ctx) error {
	principal, err := operatorPrincipal(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	logs, err := h.logs.ListByChannel(c.UserContext(), principal.TenantID, id, logLimit(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": logResponses(logs)})
}

func logLimit(c *fiber.Ctx) int {
	limit := c.QueryInt("limit", defaultLogLimit)
	if limit <= 0 || limit > maxLogLimit {
		return defaultLogLimit
	}
	return limit
}

func logResponses(logs []domain.DeliveryLog) []dto.DeliveryLogResponse {
	items := make([]dto.DeliveryLogResponse, 0, len(logs))
	for i := range logs {
		items = append(items, dto.DeliveryLogFrom(&logs[i]))
	}
	return items
}
