package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

// RecipientRepository stores to/cc/bcc rows of inbound messages.
type RecipientRepository interface {
	CreateBatch(ctx context.Context, recipients []domain.MessageRecipient) error
	ListByMessage(ctx context.Context, tenantID, messageID int64) ([]domain.MessageRecipient, error)
}

type recipientRepository struct {
	db DBTX
}

// NewRecipientRepository constructs repository.
func NewRecipientRepository(db DBTX) RecipientRepository {
	return &recipientRepository{db: db}
}

func (r *recipientRepository) CreateBatch(ctx context.Context, recipients []domain.MessageRecipient) error {
	const query = `
        INSERT INTO message_recipients (tenant_id, message_id, type, email, name, contact_id)
        VALUES ($1,$2,$3,$4,$5,$6)`
	for _, rc := range recipients {
		if _, err := r.db.Exec(ctx, query, rc.TenantID, rc.MessageID, rc.Type, rc.Email, rc.Name, rc.ContactID); err != nil {
			return err
		}
	}
	return nil
}

func (r *recipientRepository) ListByMessage(ctx context.Context, tenantID, messageID int64) ([]domain.MessageRecipient, error) {
	const query = `
        SELECT id, tenant_id, message_id, type, email, name, contact_id
        FROM message_recipients WHERE tenant_id=$1 AND message_id=$2 ORDER BY id`
	rows, err := r.db.Query(ctx, query, tenantID, messageID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.MessageRecipient, error) {
		var rc domain.MessageRecipient
		err := row.Scan(&rc.ID, &rc.TenantID, &rc.MessageID, &rc.Type, &rc.Email, &rc.Name, &rc.ContactID)
		return rc, err
	})
}
