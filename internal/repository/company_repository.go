package repository

import (
	"context"
	"strings"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

// CompanyRepository reads companies for domain auto-linking.
type CompanyRepository interface {
	// FindByDomain matches the domain case-insensitively against registered domains.
	FindByDomain(ctx context.Context, tenantID int64, emailDomain string) (*domain.Company, error)
}

type companyRepository struct {
	db DBTX
}

// NewCompanyRepository constructs repository.
func NewCompanyRepository(db DBTX) CompanyRepository {
	return &companyRepository{db: db}
}

func (r *companyRepository) FindByDomain(ctx context.Context, tenantID int64, emailDomain string) (*domain.Company, error) {
	const query = `
        SELECT id, tenant_id, name, domains FROM companies
        WHERE tenant_id=$1 AND EXISTS (SELECT 1 FROM unnest(domains) d WHERE LOWER(d) = $2)
        ORDER BY id LIMIT 1`
	var company domain.Company
	if err := r.db.QueryRow(ctx, query, tenantID, strings.ToLower(strings.TrimSpace(emailDomain))).Scan(
		&company.ID, &company.TenantID, &company.Name, &company.Domains,
	); err != nil {
		return nil, notFound(err)
	}
	return &company, nil
}
