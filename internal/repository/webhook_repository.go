package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

// WebhookRepository manages outbound webhook registrations and their failure state.
type WebhookRepository interface {
	ListActiveForEvent(ctx context.Context, tenantID int64, event string) ([]domain.Webhook, error)
	GetByID(ctx context.Context, tenantID, id int64) (*domain.Webhook, error)
	RecordSuccess(ctx context.Context, tenantID, id int64) error
	// RecordFailure increments the consecutive failure counter and disables the
	// webhook once it reaches its threshold. It returns the updated row.
	RecordFailure(ctx context.Context, tenantID, id int64, errText string) (*domain.Webhook, error)
	Enable(ctx context.Context, tenantID, id int64) error
}

type webhookRepository struct {
	db DBTX
}

// NewWebhookRepository constructs repository.
func NewWebhookRepository(db DBTX) WebhookRepository {
	return &webhookRepository{db: db}
}

const webhookColumns = `id, tenant_id, url, secret, format, events, is_active, failure_count, max_failures,
        last_error, disabled_at, created_at, updated_at`

func (r *webhookRepository) ListActiveForEvent(ctx context.Context, tenantID int64, event string) ([]domain.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks
        WHERE tenant_id=$1 AND is_active = TRUE AND ($2 = ANY(events) OR '*' = ANY(events))
        ORDER BY id`
	rows, err := r.db.Query(ctx, query, tenantID, event)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Webhook
	for rows.Next() {
		wh, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *wh)
	}
	return result, rows.Err()
}

func (r *webhookRepository) GetByID(ctx context.Context, tenantID, id int64) (*domain.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE tenant_id=$1 AND id=$2`
	wh, err := scanWebhook(r.db.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		return nil, notFound(err)
	}
	return wh, nil
}

func (r *webhookRepository) RecordSuccess(ctx context.Context, tenantID, id int64) error {
	cmd, err := r.db.Exec(ctx, `
        UPDATE webhooks SET failure_count=0, last_error=NULL, updated_at=NOW()
        WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *webhookRepository) RecordFailure(ctx context.Context, tenantID, id int64, errText string) (*domain.Webhook, error) {
	query := `
        UPDATE webhooks SET failure_count = failure_count + 1, last_error = $1,
            is_active = CASE WHEN failure_count + 1 >= max_failures THEN FALSE ELSE is_active END,
            disabled_at = CASE WHEN failure_count + 1 >= max_failures AND disabled_at IS NULL THEN NOW() ELSE disabled_at END,
            updated_at = NOW()
        WHERE tenant_id=$2 AND id=$3
        RETURNING ` + webhookColumns
	wh, err := scanWebhook(r.db.QueryRow(ctx, query, errText, tenantID, id))
	if err != nil {
		return nil, notFound(err)
	}
	return wh, nil
}

func (r *webhookRepository) Enable(ctx context.Context, tenantID, id int64) error {
	cmd, err := r.db.Exec(ctx, `
        UPDATE webhooks SET is_active=TRUE, failure_count=0, disabled_at=NULL, last_error=NULL, updated_at=NOW()
        WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanWebhook(row pgx.Row) (*domain.Webhook, error) {
	var wh domain.Webhook
	if err := row.Scan(
		&wh.ID,
		&wh.TenantID,
		&wh.URL,
		&wh.Secret,
		&wh.Format,
		&wh.Events,
		&wh.IsActive,
		&wh.FailureCount,
		&wh.MaxFailures,
		&wh.LastError,
		&wh.DisabledAt,
		&wh.CreatedAt,
		&wh.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &wh, nil
}
