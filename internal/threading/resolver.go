// Package threading decides which ticket an inbound message belongs to.
package threading

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/repository"
)

// Header names set on outbound mail so replies thread back deterministically.
const (
	HeaderTicketID        = "X-Ticket-ID"
	HeaderTicketReference = "X-Ticket-Reference"
)

// Strategy names the rule that matched a ticket.
type Strategy string

const (
	StrategyNone            Strategy = ""
	StrategyTicketID        Strategy = "ticket_id_header"
	StrategyTicketReference Strategy = "ticket_reference_header"
	StrategyReferences      Strategy = "references"
	StrategyEmailThread     Strategy = "email_thread"
	StrategyConversation    Strategy = "conversation"
)

// Match is the outcome of thread resolution. Ticket is nil when a new ticket is needed.
type Match struct {
	Ticket   *domain.Ticket
	Strategy Strategy
}

// Found reports whether an existing ticket matched.
func (m Match) Found() bool {
	return m.Ticket != nil
}

// Resolver implements the threading strategies.
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

// ResolveEmail tries the explicit ticket headers, then the In-Reply-To and
// References chain, then the provider thread key on the receiving channel.
// All lookups are scoped to tenantID.
func (r *Resolver) ResolveEmail(ctx context.Context, repos repository.Repositories, tenantID, channelID int64, email *domain.InboundEmail) (Match, error) {
	if raw := strings.TrimSpace(email.Header(HeaderTicketID)); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			ticket, err := repos.Tickets.GetByID(ctx, tenantID, id)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return Match{}, fmt.Errorf("lookup ticket by id: %w", err)
			}
			if err == nil && ticket.DeletedAt == nil {
				return Match{Ticket: ticket, Strategy: StrategyTicketID}, nil
			}
		}
	}

	if number := strings.TrimSpace(email.Header(HeaderTicketReference)); number != "" {
		ticket, err := repos.Tickets.GetByNumber(ctx, tenantID, number)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return Match{}, fmt.Errorf("lookup ticket by number: %w", err)
		}
		if err == nil {
			return Match{Ticket: ticket, Strategy: StrategyTicketReference}, nil
		}
	}

	if ids := ReferencedMessageIDs(email); len(ids) > 0 {
		tickets, err := repos.Tickets.FindByProviderMessageIDs(ctx, tenantID, ids)
		if err != nil {
			return Match{}, fmt.Errorf("lookup ticket by references: %w", err)
		}
		if len(tickets) > 0 {
			if len(tickets) > 1 {
				r.logger.Debug("references span several tickets, using most recent",
					zap.Int64("tenant_id", tenantID),
					zap.Int("candidates", len(tickets)),
				)
			}
			return Match{Ticket: &tickets[0], Strategy: StrategyReferences}, nil
		}
	}

	if key := strings.TrimSpace(email.ThreadKey()); key != "" {
		ticket, err := repos.Tickets.FindByEmailThread(ctx, tenantID, channelID, key)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return Match{}, fmt.Errorf("lookup ticket by email thread: %w", err)
		}
		if err == nil {
			return Match{Ticket: ticket, Strategy: StrategyEmailThread}, nil
		}
	}
	return Match{}, nil
}

// ResolveMessaging matches on the exact (tenant, channel, conversation) key.
func (r *Resolver) ResolveMessaging(ctx context.Context, repos repository.Repositories, tenantID, channelID int64, conversationID string) (Match, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return Match{}, nil
	}
	ticket, err := repos.Tickets.FindByConversation(ctx, tenantID, channelID, conversationID)
	if errors.Is(err, domain.ErrNotFound) {
		return Match{}, nil
	}
	if err != nil {
		return Match{}, fmt.Errorf("lookup ticket by conversation: %w", err)
	}
	return Match{Ticket: ticket, Strategy: StrategyConversation}, nil
}

// ReferencedMessageIDs collects the normalized In-Reply-To and References ids,
// falling back to raw headers when the structured fields are empty.
func ReferencedMessageIDs(email *domain.InboundEmail) []string {
	var raw []string
	inReplyTo := email.InReplyTo
	if inReplyTo == "" {
		inReplyTo = email.Header("In-Reply-To")
	}
	raw = append(raw, inReplyTo)
	if len(email.References) > 0 {
		raw = append(raw, email.References...)
	} else {
		raw = append(raw, email.Header("References"))
	}

	seen := make(map[string]bool)
	var ids []string
	for _, entry := range raw {
		for _, field := range strings.FieldsFunc(entry, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' || r == '\n' || r == '\r' }) {
			id := domain.NormalizeMessageID(field)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
