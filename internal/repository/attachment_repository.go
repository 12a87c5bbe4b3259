package repository

import (
	"context"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

// AttachmentRepository persists attachment metadata.
type AttachmentRepository interface {
	Create(ctx context.Context, attachment *domain.Attachment) error
	ListByMessage(ctx context.Context, tenantID, messageID int64) ([]domain.Attachment, error)
}

type attachmentRepository struct {
	db DBTX
}

// NewAttachmentRepository constructs repository.
func NewAttachmentRepository(db DBTX) AttachmentRepository {
	return &attachmentRepository{db: db}
}

func (r *attachmentRepository) Create(ctx context.Context, attachment *domain.Attachment) error {
	const query = `
        INSERT INTO attachments (tenant_id, message_id, filename, original_filename, mime_type, size, path,
            content_id, is_inline)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		attachment.TenantID,
		attachment.MessageID,
		attachment.Filename,
		attachment.OriginalFilename,
		attachment.MimeType,
		attachment.Size,
		attachment.Path,
		attachment.ContentID,
		attachment.IsInline,
	).Scan(&attachment.ID, &attachment.CreatedAt)
}

func (r *attachmentRepository) ListByMessage(ctx context.Context, tenantID, messageID int64) ([]domain.Attachment, error) {
	const query = `
        SELECT id, tenant_id, message_id, filename, original_filename, mime_type, size, path, content_id,
               is_inline, created_at
        FROM attachments WHERE tenant_id=$1 AND message_id=$2 ORDER BY id`
	rows, err := r.db.Query(ctx, query, tenantID, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Attachment
	for rows.Next() {
		var attachment domain.Attachment
		if err := rows.Scan(
			&attachment.ID,
			&attachment.TenantID,
			&attachment.MessageID,
			&attachment.Filename,
			&attachment.OriginalFilename,
			&attachment.MimeType,
			&attachment.Size,
			&attachment.Path,
			&attachment.ContentID,
			&attachment.IsInline,
			&attachment.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, attachment)
	}
	return result, rows.Err()
}
