package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

// MessageRepository persists ticket messages.
type MessageRepository interface {
	// Create inserts the message; a repeated provider message id yields domain.ErrDuplicateMessage.
	Create(ctx context.Context, message *domain.Message) error
	GetByID(ctx context.Context, tenantID, id int64) (*domain.Message, error)
	GetByProviderMessageID(ctx context.Context, tenantID int64, providerMessageID string) (*domain.Message, error)
	UpdateBodyHTML(ctx context.Context, tenantID, id int64, bodyHTML string) error
	// UpdateDelivery writes the delivery status, error, provider id and sent_at fields only.
	UpdateDelivery(ctx context.Context, message *domain.Message) error
	ListByTicket(ctx context.Context, tenantID, ticketID int64) ([]domain.Message, error)
}

type messageRepository struct {
	db DBTX
}

// NewMessageRepository constructs repository.
func NewMessageRepository(db DBTX) MessageRepository {
	return &messageRepository{db: db}
}

const messageColumns = `id, tenant_id, ticket_id, contact_id, type, is_from_contact, is_auto_reply, body,
        body_html, raw_content, provider_message_id, delivery_status, delivery_error, sent_at, created_at`

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	const query = `
        INSERT INTO messages (tenant_id, ticket_id, contact_id, type, is_from_contact, is_auto_reply, body,
            body_html, raw_content, provider_message_id, delivery_status, delivery_error, sent_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id, created_at`
	err := r.db.QueryRow(ctx, query,
		message.TenantID,
		message.TicketID,
		message.ContactID,
		message.Type,
		message.IsFromContact,
		message.IsAutoReply,
		message.Body,
		message.BodyHTML,
		message.RawContent,
		message.ProviderMessageID,
		message.DeliveryStatus,
		message.DeliveryError,
		message.SentAt,
	).Scan(&message.ID, &message.CreatedAt)
	if name, ok := uniqueConstraint(err); ok && name == "uq_messages_provider_id" {
		return fmt.Errorf("%w: %v", domain.ErrDuplicateMessage, err)
	}
	return err
}

func (r *messageRepository) GetByID(ctx context.Context, tenantID, id int64) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE tenant_id=$1 AND id=$2`
	return r.fetchSingle(ctx, query, tenantID, id)
}

func (r *messageRepository) GetByProviderMessageID(ctx context.Context, tenantID int64, providerMessageID string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE tenant_id=$1 AND provider_message_id=$2`
	return r.fetchSingle(ctx, query, tenantID, providerMessageID)
}

func (r *messageRepository) UpdateBodyHTML(ctx context.Context, tenantID, id int64, bodyHTML string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE messages SET body_html=$1 WHERE tenant_id=$2 AND id=$3`, bodyHTML, tenantID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *messageRepository) UpdateDelivery(ctx context.Context, message *domain.Message) error {
	const query = `
        UPDATE messages SET delivery_status=$1, delivery_error=$2, provider_message_id=COALESCE($3, provider_message_id),
            sent_at=$4
        WHERE tenant_id=$5 AND id=$6`
	cmd, err := r.db.Exec(ctx, query,
		message.DeliveryStatus,
		message.DeliveryError,
		message.ProviderMessageID,
		message.SentAt,
		message.TenantID,
		message.ID,
	)
	if err != nil {
		if name, ok := uniqueConstraint(err); ok && name == "uq_messages_provider_id" {
			return fmt.Errorf("%w: %v", domain.ErrDuplicateMessage, err)
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *messageRepository) ListByTicket(ctx context.Context, tenantID, ticketID int64) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE tenant_id=$1 AND ticket_id=$2 ORDER BY created_at, id`
	rows, err := r.db.Query(ctx, query, tenantID, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *message)
	}
	return result, rows.Err()
}

func (r *messageRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Message, error) {
	message, err := scanMessage(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return message, nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var message domain.Message
	if err := row.Scan(
		&message.ID,
		&message.TenantID,
		&message.TicketID,
		&message.ContactID,
		&message.Type,
		&message.IsFromContact,
		&message.IsAutoReply,
		&message.Body,
		&message.BodyHTML,
		&message.RawContent,
		&message.ProviderMessageID,
		&message.DeliveryStatus,
		&message.DeliveryError,
		&message.SentAt,
		&message.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &message, nil
}
