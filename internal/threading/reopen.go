package threading

import (
	"context"
	"errors"
	"fmt"

	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/repository"
)

// Reopen moves a ticket in a closed status back to the tenant default status,
// clears the resolution timestamps and takes it out of a closed-only folder.
// It reports whether the ticket changed. The caller persists the ticket.
func Reopen(ctx context.Context, repos repository.Repositories, ticket *domain.Ticket) (bool, error) {
	status, err := repos.Lookups.GetStatus(ctx, ticket.TenantID, ticket.StatusID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, fmt.Errorf("load status: %w", err)
	}
	if status == nil || !status.IsClosed {
		return false, nil
	}

	open, err := repos.Lookups.DefaultStatus(ctx, ticket.TenantID)
	if err != nil {
		return false, fmt.Errorf("load default status: %w", err)
	}
	ticket.StatusID = open.ID
	ticket.ClosedAt = nil
	ticket.ResolvedAt = nil

	if ticket.FolderID != nil {
		folder, err := repos.Lookups.GetFolder(ctx, ticket.TenantID, *ticket.FolderID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return false, fmt.Errorf("load folder: %w", err)
		}
		if folder != nil && folder.ClosedOnly {
			ticket.FolderID = nil
		}
	}
	return true, nil
}

// BackfillEmailThread sets empty email thread keys; existing values are never overwritten.
func BackfillEmailThread(ticket *domain.Ticket, threadID, threadIndex string) bool {
	changed := fillEmpty(&ticket.EmailThreadID, threadID)
	return fillEmpty(&ticket.EmailThreadIndex, threadIndex) || changed
}

// BackfillMessaging sets empty messaging thread keys; existing values are never overwritten.
func BackfillMessaging(ticket *domain.Ticket, conversationID, participantID string) bool {
	changed := fillEmpty(&ticket.MessagingConversationID, conversationID)
	return fillEmpty(&ticket.MessagingParticipantID, participantID) || changed
}

func fillEmpty(dst **string, v string) bool {
	if v == "" || (*dst != nil && **dst != "") {
		return false
	}
	*dst = &v
	return true
}
