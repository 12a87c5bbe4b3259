package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

// LookupRepository reads tenant reference data: statuses, priorities, departments, folders and settings.
type LookupRepository interface {
	DefaultStatus(ctx context.Context, tenantID int64) (*domain.TicketStatus, error)
	GetStatus(ctx context.Context, tenantID, id int64) (*domain.TicketStatus, error)
	ListPriorities(ctx context.Context, tenantID int64) ([]domain.Priority, error)
	GetDepartment(ctx context.Context, tenantID, id int64) (*domain.Department, error)
	DefaultDepartment(ctx context.Context, tenantID int64) (*domain.Department, error)
	GetFolder(ctx context.Context, tenantID, id int64) (*domain.Folder, error)
	// TenantSettings returns stored settings or defaults when none exist.
	TenantSettings(ctx context.Context, tenantID int64) (*domain.TenantSettings, error)
}

type lookupRepository struct {
	db DBTX
}

// NewLookupRepository builds the repository.
func NewLookupRepository(db DBTX) LookupRepository {
	return &lookupRepository{db: db}
}

func (r *lookupRepository) DefaultStatus(ctx context.Context, tenantID int64) (*domain.TicketStatus, error) {
	const query = `
        SELECT id, tenant_id, name, slug, is_default, is_closed, sort_order
        FROM ticket_statuses WHERE tenant_id=$1 AND is_closed = FALSE
        ORDER BY is_default DESC, sort_order, id LIMIT 1`
	return r.fetchStatus(ctx, query, tenantID)
}

func (r *lookupRepository) GetStatus(ctx context.Context, tenantID, id int64) (*domain.TicketStatus, error) {
	const query = `
        SELECT id, tenant_id, name, slug, is_default, is_closed, sort_order
        FROM ticket_statuses WHERE tenant_id=$1 AND id=$2`
	return r.fetchStatus(ctx, query, tenantID, id)
}

func (r *lookupRepository) fetchStatus(ctx context.Context, query string, args ...any) (*domain.TicketStatus, error) {
	var st domain.TicketStatus
	if err := r.db.QueryRow(ctx, query, args...).Scan(
		&st.ID, &st.TenantID, &st.Name, &st.Slug, &st.IsDefault, &st.IsClosed, &st.SortOrder,
	); err != nil {
		return nil, notFound(err)
	}
	return &st, nil
}

func (r *lookupRepository) ListPriorities(ctx context.Context, tenantID int64) ([]domain.Priority, error) {
	const query = `
        SELECT id, tenant_id, name, slug, sort_order
        FROM priorities WHERE tenant_id=$1 ORDER BY sort_order, id`
	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Priority
	for rows.Next() {
		var p domain.Priority
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Slug, &p.SortOrder); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *lookupRepository) GetDepartment(ctx context.Context, tenantID, id int64) (*domain.Department, error) {
	const query = `SELECT id, tenant_id, name, is_default FROM departments WHERE tenant_id=$1 AND id=$2`
	return r.fetchDepartment(ctx, query, tenantID, id)
}

func (r *lookupRepository) DefaultDepartment(ctx context.Context, tenantID int64) (*domain.Department, error) {
	const query = `
        SELECT id, tenant_id, name, is_default FROM departments
        WHERE tenant_id=$1 ORDER BY is_default DESC, id LIMIT 1`
	return r.fetchDepartment(ctx, query, tenantID)
}

func (r *lookupRepository) fetchDepartment(ctx context.Context, query string, args ...any) (*domain.Department, error) {
	var dept domain.Department
	if err := r.db.QueryRow(ctx, query, args...).Scan(&dept.ID, &dept.TenantID, &dept.Name, &dept.IsDefault); err != nil {
		return nil, notFound(err)
	}
	return &dept, nil
}

func (r *lookupRepository) GetFolder(ctx context.Context, tenantID, id int64) (*domain.Folder, error) {
	const query = `SELECT id, tenant_id, name, closed_only FROM folders WHERE tenant_id=$1 AND id=$2`
	var folder domain.Folder
	if err := r.db.QueryRow(ctx, query, tenantID, id).Scan(&folder.ID, &folder.TenantID, &folder.Name, &folder.ClosedOnly); err != nil {
		return nil, notFound(err)
	}
	return &folder, nil
}

func (r *lookupRepository) TenantSettings(ctx context.Context, tenantID int64) (*domain.TenantSettings, error) {
	const query = `
        SELECT organization_name, system_emails_enabled, timezone, business_start_hour, business_end_hour,
               business_workdays
        FROM tenant_settings WHERE tenant_id=$1`
	settings := DefaultTenantSettings(tenantID)
	var workdays []int32
	err := r.db.QueryRow(ctx, query, tenantID).Scan(
		&settings.OrganizationName,
		&settings.SystemEmailsEnabled,
		&settings.Timezone,
		&settings.BusinessHours.StartHour,
		&settings.BusinessHours.EndHour,
		&workdays,
	)
	if err != nil {
		if errors.Is(notFound(err), domain.ErrNotFound) {
			return settings, nil
		}
		return nil, err
	}
	settings.BusinessHours.Workdays = settings.BusinessHours.Workdays[:0]
	for _, d := range workdays {
		settings.BusinessHours.Workdays = append(settings.BusinessHours.Workdays, time.Weekday(d))
	}
	return settings, nil
}

// DefaultTenantSettings is used for tenants without a settings row.
func DefaultTenantSettings(tenantID int64) *domain.TenantSettings {
	return &domain.TenantSettings{
		TenantID:            tenantID,
		SystemEmailsEnabled: true,
		Timezone:            "UTC",
		BusinessHours: domain.BusinessHours{
			StartHour: 9,
			EndHour:   17,
			Workdays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		},
	}
}
