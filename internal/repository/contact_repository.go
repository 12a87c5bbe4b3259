package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

// ContactRepository defines persistence access for contacts and their identifiers.
type ContactRepository interface {
	// Create inserts the contact with its first identifier. An identifier already
	// bound in the tenant yields domain.ErrDuplicateContact.
	Create(ctx context.Context, contact *domain.Contact, identifier domain.ContactIdentifier) error
	Update(ctx context.Context, contact *domain.Contact) error
	GetByID(ctx context.Context, tenantID, id int64) (*domain.Contact, error)
	FindByIdentifier(ctx context.Context, tenantID int64, identifierType domain.IdentifierType, value string) (*domain.Contact, error)
	FindByEmails(ctx context.Context, tenantID int64, emails []string) ([]domain.Contact, error)
	ListUnlinkedWithEmail(ctx context.Context, tenantID int64, limit int) ([]domain.Contact, error)
}

type contactRepository struct {
	db DBTX
}

// NewContactRepository returns a Postgres-backed implementation.
func NewContactRepository(db DBTX) ContactRepository {
	return &contactRepository{db: db}
}

const contactColumns = `c.id, c.tenant_id, c.name, c.email, c.is_placeholder_email, c.username, c.avatar_url,
        c.company_id, c.created_at, c.updated_at`

func (r *contactRepository) Create(ctx context.Context, contact *domain.Contact, identifier domain.ContactIdentifier) error {
	const insertContact = `
        INSERT INTO contacts (tenant_id, name, email, is_placeholder_email, username, avatar_url, company_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at, updated_at`
	if err := r.db.QueryRow(ctx, insertContact,
		contact.TenantID,
		contact.Name,
		contact.Email,
		contact.IsPlaceholderEmail,
		contact.Username,
		contact.AvatarURL,
		contact.CompanyID,
	).Scan(&contact.ID, &contact.CreatedAt, &contact.UpdatedAt); err != nil {
		return err
	}

	identifier.Value = domain.NormalizeIdentifier(identifier.Type, identifier.Value)
	const insertIdentifier = `
        INSERT INTO contact_identifiers (tenant_id, contact_id, type, value)
        VALUES ($1, $2, $3, $4)`
	if _, err := r.db.Exec(ctx, insertIdentifier, contact.TenantID, contact.ID, identifier.Type, identifier.Value); err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return fmt.Errorf("%w: %v", domain.ErrDuplicateContact, err)
		}
		return err
	}
	contact.Identifiers = append(contact.Identifiers, identifier)
	return nil
}

func (r *contactRepository) Update(ctx context.Context, contact *domain.Contact) error {
	const query = `
        UPDATE contacts SET name=$1, username=$2, avatar_url=$3, company_id=$4, updated_at=NOW()
        WHERE tenant_id=$5 AND id=$6`

	cmd, err := r.db.Exec(ctx, query,
		contact.Name,
		contact.Username,
		contact.AvatarURL,
		contact.CompanyID,
		contact.TenantID,
		contact.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *contactRepository) GetByID(ctx context.Context, tenantID, id int64) (*domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts c WHERE c.tenant_id=$1 AND c.id=$2`
	contact, err := scanContact(r.db.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		return nil, notFound(err)
	}
	return contact, nil
}

func (r *contactRepository) FindByIdentifier(ctx context.Context, tenantID int64, identifierType domain.IdentifierType, value string) (*domain.Contact, error) {
	value = domain.NormalizeIdentifier(identifierType, value)
	query := `SELECT ` + contactColumns + `
        FROM contacts c
        JOIN contact_identifiers i ON i.contact_id = c.id AND i.tenant_id = c.tenant_id
        WHERE c.tenant_id=$1 AND i.type=$2 AND i.value=$3`
	contact, err := scanContact(r.db.QueryRow(ctx, query, tenantID, identifierType, value))
	if err != nil {
		return nil, notFound(err)
	}
	contact.Identifiers = []domain.ContactIdentifier{{Type: identifierType, Value: value}}
	return contact, nil
}

func (r *contactRepository) FindByEmails(ctx context.Context, tenantID int64, emails []string) ([]domain.Contact, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	normalized := make([]string, 0, len(emails))
	for _, e := range emails {
		normalized = append(normalized, domain.NormalizeIdentifier(domain.IdentifierEmail, e))
	}
	query := `SELECT ` + contactColumns + `
        FROM contacts c
        JOIN contact_identifiers i ON i.contact_id = c.id AND i.tenant_id = c.tenant_id
        WHERE c.tenant_id=$1 AND i.type='email' AND i.value = ANY($2)`
	rows, err := r.db.Query(ctx, query, tenantID, normalized)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContacts(rows)
}

func (r *contactRepository) ListUnlinkedWithEmail(ctx context.Context, tenantID int64, limit int) ([]domain.Contact, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + contactColumns + `
        FROM contacts c
        WHERE c.tenant_id=$1 AND c.company_id IS NULL AND c.email IS NOT NULL AND c.email <> ''
              AND c.is_placeholder_email = FALSE
        ORDER BY c.id LIMIT $2`
	rows, err := r.db.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContacts(rows)
}

func scanContact(row pgx.Row) (*domain.Contact, error) {
	var contact domain.Contact
	if err := row.Scan(
		&contact.ID,
		&contact.TenantID,
		&contact.Name,
		&contact.Email,
		&contact.IsPlaceholderEmail,
		&contact.Username,
		&contact.AvatarURL,
		&contact.CompanyID,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &contact, nil
}

func scanContacts(rows pgx.Rows) ([]domain.Contact, error) {
	var result []domain.Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *contact)
	}
	return result, rows.Err()
}
