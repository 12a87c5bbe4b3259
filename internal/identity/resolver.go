// Package identity maps channel identifiers to tenant contacts.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/repository"
)

// PlaceholderDomainSuffix is the reserved TLD used for synthetic contact emails.
const PlaceholderDomainSuffix = ".messaging.invalid"

// ErrEmptyIdentifier is returned when the provider sent no usable sender identifier.
var ErrEmptyIdentifier = errors.New("empty contact identifier")

// Profile carries the sender details a provider supplied alongside the identifier.
type Profile struct {
	Name      string
	Email     string
	Username  string
	AvatarURL string
	// Provider is set for messaging senders and drives the placeholder email.
	Provider domain.ChannelType
}

// Resolver finds or creates contacts.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a Resolver.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger}
}

// PlaceholderEmail returns the deterministic synthetic address for a messaging sender.
func PlaceholderEmail(provider domain.ChannelType, platformID string) string {
	p := strings.ToLower(string(provider))
	return fmt.Sprintf("%s-%s@%s%s", p, sanitizeLocalPart(platformID), p, PlaceholderDomainSuffix)
}

// IsPlaceholderEmail reports whether email was produced by PlaceholderEmail.
func IsPlaceholderEmail(email string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(email)), PlaceholderDomainSuffix)
}

func sanitizeLocalPart(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-', r == '+':
			return r
		default:
			return -1
		}
	}, id)
}

// Resolve returns the contact bound to (tenant, identifier type, value), creating
// it when absent. Existing contacts only get empty fields backfilled.
// A concurrent creation surfaces as domain.ErrDuplicateContact; callers retry
// their unit of work, after which the contact is found.
func (r *Resolver) Resolve(ctx context.Context, repos repository.Repositories, tenantID int64, idType domain.IdentifierType, value string, profile Profile) (*domain.Contact, error) {
	value = domain.NormalizeIdentifier(idType, value)
	if value == "" {
		return nil, ErrEmptyIdentifier
	}

	existing, err := repos.Contacts.FindByIdentifier(ctx, tenantID, idType, value)
	switch {
	case err == nil:
		return r.backfill(ctx, repos, existing, profile)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("find contact: %w", err)
	}

	contact := &domain.Contact{
		TenantID:  tenantID,
		Name:      strings.TrimSpace(profile.Name),
		Username:  strings.TrimSpace(profile.Username),
		AvatarURL: strings.TrimSpace(profile.AvatarURL),
	}
	if idType == domain.IdentifierEmail {
		contact.Email = &value
	} else {
		placeholder := PlaceholderEmail(profile.Provider, value)
		contact.Email = &placeholder
		contact.IsPlaceholderEmail = true
	}
	if contact.Name == "" {
		contact.Name = fallbackName(idType, value, contact.Username)
	}
	if !contact.IsPlaceholderEmail {
		company, err := findCompany(ctx, repos, tenantID, *contact.Email)
		if err != nil {
			return nil, err
		}
		if company != nil {
			contact.CompanyID = &company.ID
		}
	}

	if err := repos.Contacts.Create(ctx, contact, domain.ContactIdentifier{Type: idType, Value: value}); err != nil {
		if errors.Is(err, domain.ErrDuplicateContact) {
			return nil, err
		}
		return nil, fmt.Errorf("create contact: %w", err)
	}
	r.logger.Info("contact created",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("contact_id", contact.ID),
		zap.String("identifier_type", string(idType)),
	)
	return contact, nil
}

func (r *Resolver) backfill(ctx context.Context, repos repository.Repositories, contact *domain.Contact, profile Profile) (*domain.Contact, error) {
	changed := false
	fill := func(dst *string, v string) {
		if v = strings.TrimSpace(v); *dst == "" && v != "" {
			*dst = v
			changed = true
		}
	}
	fill(&contact.Name, profile.Name)
	fill(&contact.Username, profile.Username)
	fill(&contact.AvatarURL, profile.AvatarURL)

	if contact.CompanyID == nil && contact.HasDeliverableEmail() {
		company, err := findCompany(ctx, repos, contact.TenantID, *contact.Email)
		if err != nil {
			return nil, err
		}
		if company != nil {
			contact.CompanyID = &company.ID
			changed = true
		}
	}
	if !changed {
		return contact, nil
	}
	if err := repos.Contacts.Update(ctx, contact); err != nil {
		return nil, fmt.Errorf("update contact: %w", err)
	}
	return contact, nil
}

func findCompany(ctx context.Context, repos repository.Repositories, tenantID int64, email string) (*domain.Company, error) {
	d := domain.EmailDomain(email)
	if d == "" {
		return nil, nil
	}
	company, err := repos.Companies.FindByDomain(ctx, tenantID, d)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find company: %w", err)
	}
	return company, nil
}

func fallbackName(idType domain.IdentifierType, value, username string) string {
	if username != "" {
		return username
	}
	if idType == domain.IdentifierEmail {
		if at := strings.Index(value, "@"); at > 0 {
			return value[:at]
		}
	}
	return value
}
