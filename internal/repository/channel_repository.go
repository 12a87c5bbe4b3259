package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

// ChannelRepository manages channel configuration and sync state.
type ChannelRepository interface {
	// GetByID loads a channel without a tenant scope; inbound routes derive the tenant from it.
	GetByID(ctx context.Context, id int64) (*domain.Channel, error)
	Get(ctx context.Context, tenantID, id int64) (*domain.Channel, error)
	ListActivePull(ctx context.Context) ([]domain.Channel, error)
	// MarkSynced advances the watermark, clears the error and resets the failure counter.
	MarkSynced(ctx context.Context, tenantID, id int64, at time.Time) error
	// MarkSyncFailed records the error and increments the failure counter, leaving the watermark.
	MarkSyncFailed(ctx context.Context, tenantID, id int64, errText string) error
}

type channelRepository struct {
	db DBTX
}

// NewChannelRepository constructs repository.
func NewChannelRepository(db DBTX) ChannelRepository {
	return &channelRepository{db: db}
}

const channelColumns = `id, tenant_id, name, kind, channel_type, provider, address, is_active, credential_ref,
        inbound_token_hash, department_id, last_sync_at, last_sync_error, import_since, post_import_action,
        post_import_folder, auto_reply_enabled, auto_reply_template, auto_reply_delay_seconds,
        auto_reply_business_hours_only, failure_count, created_at, updated_at`

func (r *channelRepository) GetByID(ctx context.Context, id int64) (*domain.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *channelRepository) Get(ctx context.Context, tenantID, id int64) (*domain.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE tenant_id=$1 AND id=$2`
	return r.fetchSingle(ctx, query, tenantID, id)
}

func (r *channelRepository) ListActivePull(ctx context.Context) ([]domain.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels
        WHERE is_active = TRUE AND kind = 'email' AND provider = 'imap' ORDER BY tenant_id, id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ch)
	}
	return result, rows.Err()
}

func (r *channelRepository) MarkSynced(ctx context.Context, tenantID, id int64, at time.Time) error {
	const query = `
        UPDATE channels SET last_sync_at=$1, last_sync_error=NULL, failure_count=0, updated_at=NOW()
        WHERE tenant_id=$2 AND id=$3`
	return r.exec(ctx, query, at, tenantID, id)
}

func (r *channelRepository) MarkSyncFailed(ctx context.Context, tenantID, id int64, errText string) error {
	const query = `
        UPDATE channels SET last_sync_error=$1, failure_count=failure_count+1, updated_at=NOW()
        WHERE tenant_id=$2 AND id=$3`
	return r.exec(ctx, query, errText, tenantID, id)
}

func (r *channelRepository) exec(ctx context.Context, query string, args ...any) error {
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *channelRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Channel, error) {
	ch, err := scanChannel(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return ch, nil
}

func scanChannel(row pgx.Row) (*domain.Channel, error) {
	var ch domain.Channel
	if err := row.Scan(
		&ch.ID,
		&ch.TenantID,
		&ch.Name,
		&ch.Kind,
		&ch.Type,
		&ch.Provider,
		&ch.Address,
		&ch.IsActive,
		&ch.CredentialRef,
		&ch.InboundTokenHash,
		&ch.DepartmentID,
		&ch.LastSyncAt,
		&ch.LastSyncError,
		&ch.ImportSince,
		&ch.PostImportAction,
		&ch.PostImportFolder,
		&ch.AutoReply.Enabled,
		&ch.AutoReply.Template,
		&ch.AutoReply.DelaySeconds,
		&ch.AutoReply.BusinessHoursOnly,
		&ch.FailureCount,
		&ch.CreatedAt,
		&ch.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ch, nil
}
