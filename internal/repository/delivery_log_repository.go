package repository

import (
	"context"
	"strings"
	"time"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

// MaxResponseBodyLength bounds the stored response body of a delivery attempt.
const MaxResponseBodyLength = 1000

// DeliveryLogRepository appends and reads delivery attempt records.
type DeliveryLogRepository interface {
	Create(ctx context.Context, entry *domain.DeliveryLog) error
	ListByChannel(ctx context.Context, tenantID, channelID int64, limit int) ([]domain.DeliveryLog, error)
	ListByWebhook(ctx context.Context, tenantID, webhookID int64, limit int) ([]domain.DeliveryLog, error)
}

type deliveryLogRepository struct {
	db DBTX
}

// NewDeliveryLogRepository constructs repository.
func NewDeliveryLogRepository(db DBTX) DeliveryLogRepository {
	return &deliveryLogRepository{db: db}
}

// CleanText makes provider supplied text storable in a TEXT column: invalid
// UTF-8 becomes U+FFFD and NUL bytes are dropped.
func CleanText(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	return strings.ReplaceAll(s, "\x00", "")
}

// TruncateBody cleans s and cuts it to MaxResponseBodyLength bytes without
// splitting a UTF-8 sequence.
func TruncateBody(s string) string {
	s = CleanText(s)
	if len(s) <= MaxResponseBodyLength {
		return s
	}
	cut := MaxResponseBodyLength
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}

const deliveryLogColumns = `id, tenant_id, kind, status, attempt, channel_id, ticket_id, message_id, webhook_id,
        status_code, response_body, error, duration_ms, started_at, created_at`

func (r *deliveryLogRepository) Create(ctx context.Context, entry *domain.DeliveryLog) error {
	entry.ResponseBody = TruncateBody(entry.ResponseBody)
	entry.Error = CleanText(entry.Error)
	const query = `
        INSERT INTO delivery_logs (tenant_id, kind, status, attempt, channel_id, ticket_id, message_id, webhook_id,
            status_code, response_body, error, duration_ms, started_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		entry.TenantID,
		entry.Kind,
		entry.Status,
		entry.Attempt,
		entry.ChannelID,
		entry.TicketID,
		entry.MessageID,
		entry.WebhookID,
		entry.StatusCode,
		entry.ResponseBody,
		entry.Error,
		entry.Duration.Milliseconds(),
		entry.StartedAt,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *deliveryLogRepository) ListByChannel(ctx context.Context, tenantID, channelID int64, limit int) ([]domain.DeliveryLog, error) {
	query := `SELECT ` + deliveryLogColumns + ` FROM delivery_logs
        WHERE tenant_id=$1 AND channel_id=$2 ORDER BY created_at DESC, id DESC LIMIT $3`
	return r.list(ctx, query, tenantID, channelID, clampLimit(limit))
}

func (r *deliveryLogRepository) ListByWebhook(ctx context.Context, tenantID, webhookID int64, limit int) ([]domain.DeliveryLog, error) {
	query := `SELECT ` + deliveryLogColumns + ` FROM delivery_logs
        WHERE tenant_id=$1 AND webhook_id=$2 ORDER BY created_at DESC, id DESC LIMIT $3`
	return r.list(ctx, query, tenantID, webhookID, clampLimit(limit))
}

func (r *deliveryLogRepository) list(ctx context.Context, query string, args ...any) ([]domain.DeliveryLog, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DeliveryLog
	for rows.Next() {
		var entry domain.DeliveryLog
		var durationMS int64
		if err := rows.Scan(
			&entry.ID,
			&entry.TenantID,
			&entry.Kind,
			&entry.Status,
			&entry.Attempt,
			&entry.ChannelID,
			&entry.TicketID,
			&entry.MessageID,
			&entry.WebhookID,
			&entry.StatusCode,
			&entry.ResponseBody,
			&entry.Error,
			&durationMS,
			&entry.StartedAt,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		result = append(result, entry)
	}
	return result, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}
