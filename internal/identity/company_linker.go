package identity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fluxdesk/conversation-service/internal/repository"
)

// CompanyLinker attaches contacts without a company to the company registered for their email domain.
type CompanyLinker struct {
	store  repository.Store
	logger *zap.Logger
}

// NewCompanyLinker creates a CompanyLinker.
func NewCompanyLinker(store repository.Store, logger *zap.Logger) *CompanyLinker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompanyLinker{store: store, logger: logger}
}

// LinkTenant processes up to limit unlinked contacts of a tenant and returns how
// many were linked. Running it again only touches contacts still unlinked.
func (l *CompanyLinker) LinkTenant(ctx context.Context, tenantID int64, limit int) (int, error) {
	repos := l.store.Repos()
	contacts, err := repos.Contacts.ListUnlinkedWithEmail(ctx, tenantID, limit)
	if err != nil {
		return 0, fmt.Errorf("list unlinked contacts: %w", err)
	}

	linked := 0
	for i := range contacts {
		contact := &contacts[i]
		company, err := findCompany(ctx, repos, tenantID, *contact.Email)
		if err != nil {
			return linked, err
		}
		if company == nil {
			continue
		}
		contact.CompanyID = &company.ID
		if err := repos.Contacts.Update(ctx, contact); err != nil {
			return linked, fmt.Errorf("link contact %d: %w", contact.ID, err)
		}
		linked++
	}
	l.logger.Info("company linking finished",
		zap.Int64("tenant_id", tenantID),
		zap.Int("scanned", len(contacts)),
		zap.Int("linked", linked),
	)
	return linked, nil
}
