package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/repository"
)

// AlreadyProcessed reports whether a provider message id was ingested for the
// tenant and returns the ticket it landed on. It runs inside the ingestion
// transaction; the unique (tenant, provider_message_id) index is the backstop
// for callers that race past it.
func AlreadyProcessed(ctx context.Context, repos repository.Repositories, tenantID int64, providerMessageID string) (*domain.Ticket, bool, error) {
	providerMessageID = strings.TrimSpace(providerMessageID)
	if providerMessageID == "" {
		return nil, false, nil
	}
	msg, err := repos.Messages.GetByProviderMessageID(ctx, tenantID, providerMessageID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup provider message: %w", err)
	}
	ticket, err := repos.Tickets.GetByID(ctx, tenantID, msg.TicketID)
	if err != nil {
		return nil, true, fmt.Errorf("load deduplicated ticket: %w", err)
	}
	return ticket, true, nil
}
