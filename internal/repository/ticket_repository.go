package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, tenantID, id int64) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, tenantID int64, number string) (*domain.Ticket, error)
	// FindByProviderMessageIDs returns live tickets owning any of the given
	// provider message ids, most recently created first.
	FindByProviderMessageIDs(ctx context.Context, tenantID int64, ids []string) ([]domain.Ticket, error)
	FindByConversation(ctx context.Context, tenantID, channelID int64, conversationID string) (*domain.Ticket, error)
	// FindByEmailThread returns the most recent live ticket carrying the
	// provider email thread id on the channel.
	FindByEmailThread(ctx context.Context, tenantID, channelID int64, threadID string) (*domain.Ticket, error)
}

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `t.id, t.tenant_id, t.number, t.subject, t.status_id, t.priority_id, t.department_id,
        t.contact_id, t.folder_id, t.channel_type, t.channel_id, t.email_thread_id, t.email_thread_index,
        t.messaging_conversation_id, t.messaging_participant_id, t.created_at, t.updated_at,
        t.closed_at, t.resolved_at, t.first_response_at, t.deleted_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (tenant_id, number, subject, status_id, priority_id, department_id, contact_id,
            folder_id, channel_type, channel_id, email_thread_id, email_thread_index,
            messaging_conversation_id, messaging_participant_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		ticket.TenantID,
		ticket.Number,
		ticket.Subject,
		ticket.StatusID,
		ticket.PriorityID,
		ticket.DepartmentID,
		ticket.ContactID,
		ticket.FolderID,
		ticket.ChannelType,
		ticket.ChannelID,
		ticket.EmailThreadID,
		ticket.EmailThreadIndex,
		ticket.MessagingConversationID,
		ticket.MessagingParticipantID,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	if name, ok := uniqueConstraint(err); ok && name == "uq_tickets_conversation" {
		return fmt.Errorf("%w: %v", domain.ErrDuplicateTicket, err)
	}
	return err
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET subject=$1, status_id=$2, priority_id=$3, department_id=$4, folder_id=$5,
            email_thread_id=$6, email_thread_index=$7, messaging_conversation_id=$8,
            messaging_participant_id=$9, closed_at=$10, resolved_at=$11, first_response_at=$12,
            updated_at=NOW()
        WHERE tenant_id=$13 AND id=$14
        RETURNING updated_at`
	err := r.db.QueryRow(ctx, query,
		ticket.Subject,
		ticket.StatusID,
		ticket.PriorityID,
		ticket.DepartmentID,
		ticket.FolderID,
		ticket.EmailThreadID,
		ticket.EmailThreadIndex,
		ticket.MessagingConversationID,
		ticket.MessagingParticipantID,
		ticket.ClosedAt,
		ticket.ResolvedAt,
		ticket.FirstResponseAt,
		ticket.TenantID,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
	return notFound(err)
}

func (r *ticketRepository) GetByID(ctx context.Context, tenantID, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t WHERE t.tenant_id=$1 AND t.id=$2`
	return r.fetchSingle(ctx, query, tenantID, id)
}

func (r *ticketRepository) GetByNumber(ctx context.Context, tenantID int64, number string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t
        WHERE t.tenant_id=$1 AND t.number=$2 AND t.deleted_at IS NULL`
	return r.fetchSingle(ctx, query, tenantID, number)
}

func (r *ticketRepository) FindByProviderMessageIDs(ctx context.Context, tenantID int64, ids []string) ([]domain.Ticket, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT DISTINCT ` + ticketColumns + `
        FROM tickets t
        JOIN messages m ON m.ticket_id = t.id AND m.tenant_id = t.tenant_id
        WHERE t.tenant_id=$1 AND m.provider_message_id = ANY($2) AND t.deleted_at IS NULL
        ORDER BY t.created_at DESC, t.id DESC`
	rows, err := r.db.Query(ctx, query, tenantID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) FindByConversation(ctx context.Context, tenantID, channelID int64, conversationID string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t
        WHERE t.tenant_id=$1 AND t.channel_id=$2 AND t.messaging_conversation_id=$3 AND t.deleted_at IS NULL
        ORDER BY t.created_at DESC LIMIT 1`
	return r.fetchSingle(ctx, query, tenantID, channelID, conversationID)
}

func (r *ticketRepository) FindByEmailThread(ctx context.Context, tenantID, channelID int64, threadID string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t
        WHERE t.tenant_id=$1 AND t.channel_id=$2 AND t.email_thread_id=$3 AND t.deleted_at IS NULL
        ORDER BY t.created_at DESC, t.id DESC LIMIT 1`
	return r.fetchSingle(ctx, query, tenantID, channelID, threadID)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return ticket, nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.TenantID,
		&ticket.Number,
		&ticket.Subject,
		&ticket.StatusID,
		&ticket.PriorityID,
		&ticket.DepartmentID,
		&ticket.ContactID,
		&ticket.FolderID,
		&ticket.ChannelType,
		&ticket.ChannelID,
		&ticket.EmailThreadID,
		&ticket.EmailThreadIndex,
		&ticket.MessagingConversationID,
		&ticket.MessagingParticipantID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
		&ticket.ResolvedAt,
		&ticket.FirstResponseAt,
		&ticket.DeletedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
