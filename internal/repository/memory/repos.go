package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/repository"
)

type ticketRepo struct{ h *handle }

func (r *ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	defer r.h.lock()()
	st := r.h.state()
	for _, t := range st.tickets {
		if t.TenantID != ticket.TenantID {
			continue
		}
		if t.Number == ticket.Number {
			return fmt.Errorf("ticket number %q already exists", ticket.Number)
		}
		if t.DeletedAt == nil && ticket.MessagingConversationID != nil && t.MessagingConversationID != nil &&
			t.ChannelID == ticket.ChannelID && *t.MessagingConversationID == *ticket.MessagingConversationID {
			return domain.ErrDuplicateTicket
		}
	}
	now := r.h.now()
	ticket.ID = st.nextID()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	st.tickets[ticket.ID] = *ticket
	return nil
}

func (r *ticketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	defer r.h.lock()()
	st := r.h.state()
	existing, ok := st.tickets[ticket.ID]
	if !ok || existing.TenantID != ticket.TenantID {
		return domain.ErrNotFound
	}
	ticket.UpdatedAt = r.h.now()
	ticket.CreatedAt = existing.CreatedAt
	st.tickets[ticket.ID] = *ticket
	return nil
}

func (r *ticketRepo) GetByID(_ context.Context, tenantID, id int64) (*domain.Ticket, error) {
	defer r.h.lock()()
	t, ok := r.h.state().tickets[id]
	if !ok || t.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (r *ticketRepo) GetByNumber(_ context.Context, tenantID int64, number string) (*domain.Ticket, error) {
	defer r.h.lock()()
	for _, t := range r.h.state().tickets {
		if t.TenantID == tenantID && t.Number == number && t.DeletedAt == nil {
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *ticketRepo) FindByProviderMessageIDs(_ context.Context, tenantID int64, ids []string) ([]domain.Ticket, error) {
	defer r.h.lock()()
	st := r.h.state()
	owners := map[int64]struct{}{}
	for _, m := range st.messages {
		if m.TenantID == tenantID && m.ProviderMessageID != nil && slices.Contains(ids, *m.ProviderMessageID) {
			owners[m.TicketID] = struct{}{}
		}
	}
	var out []domain.Ticket
	for id := range owners {
		t, ok := st.tickets[id]
		if ok && t.DeletedAt == nil {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b domain.Ticket) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
	return out, nil
}

func (r *ticketRepo) FindByConversation(_ context.Context, tenantID, channelID int64, conversationID string) (*domain.Ticket, error) {
	defer r.h.lock()()
	var found *domain.Ticket
	for _, t := range r.h.state().tickets {
		if t.TenantID != tenantID || t.ChannelID != channelID || t.DeletedAt != nil {
			continue
		}
		if t.MessagingConversationID == nil || *t.MessagingConversationID != conversationID {
			continue
		}
		if found == nil || t.ID > found.ID {
			found = ptr(t)
		}
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}
	return found, nil
}

func (r *ticketRepo) FindByEmailThread(_ context.Context, tenantID, channelID int64, threadID string) (*domain.Ticket, error) {
	defer r.h.lock()()
	var found *domain.Ticket
	for _, t := range r.h.state().tickets {
		if t.TenantID != tenantID || t.ChannelID != channelID || t.DeletedAt != nil {
			continue
		}
		if t.EmailThreadID == nil || *t.EmailThreadID != threadID {
			continue
		}
		if found == nil || t.CreatedAt.After(found.CreatedAt) || (t.CreatedAt.Equal(found.CreatedAt) && t.ID > found.ID) {
			found = ptr(t)
		}
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}
	return found, nil
}

type messageRepo struct{ h *handle }

func (r *messageRepo) Create(_ context.Context, message *domain.Message) error {
	defer r.h.lock()()
	st := r.h.state()
	if message.ProviderMessageID != nil {
		for _, m := range st.messages {
			if m.TenantID == message.TenantID && m.ProviderMessageID != nil && *m.ProviderMessageID == *message.ProviderMessageID {
				return domain.ErrDuplicateMessage
			}
		}
	}
	message.ID = st.nextID()
	message.CreatedAt = r.h.now()
	stored := *message
	stored.Attachments = nil
	st.messages[message.ID] = stored
	return nil
}

func (r *messageRepo) GetByID(_ context.Context, tenantID, id int64) (*domain.Message, error) {
	defer r.h.lock()()
	m, ok := r.h.state().messages[id]
	if !ok || m.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return &m, nil
}

func (r *messageRepo) GetByProviderMessageID(_ context.Context, tenantID int64, providerMessageID string) (*domain.Message, error) {
	defer r.h.lock()()
	for _, m := range r.h.state().messages {
		if m.TenantID == tenantID && m.ProviderMessageID != nil && *m.ProviderMessageID == providerMessageID {
			return &m, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *messageRepo) UpdateBodyHTML(_ context.Context, tenantID, id int64, bodyHTML string) error {
	defer r.h.lock()()
	st := r.h.state()
	m, ok := st.messages[id]
	if !ok || m.TenantID != tenantID {
		return domain.ErrNotFound
	}
	m.BodyHTML = bodyHTML
	st.messages[id] = m
	return nil
}

func (r *messageRepo) UpdateDelivery(_ context.Context, message *domain.Message) error {
	defer r.h.lock()()
	st := r.h.state()
	m, ok := st.messages[message.ID]
	if !ok || m.TenantID != message.TenantID {
		return domain.ErrNotFound
	}
	if message.ProviderMessageID != nil {
		for id, other := range st.messages {
			if id != m.ID && other.TenantID == m.TenantID && other.ProviderMessageID != nil &&
				*other.ProviderMessageID == *message.ProviderMessageID {
				return domain.ErrDuplicateMessage
			}
		}
		m.ProviderMessageID = message.ProviderMessageID
	}
	m.DeliveryStatus = message.DeliveryStatus
	m.DeliveryError = message.DeliveryError
	m.SentAt = message.SentAt
	st.messages[m.ID] = m
	return nil
}

func (r *messageRepo) ListByTicket(_ context.Context, tenantID, ticketID int64) ([]domain.Message, error) {
	defer r.h.lock()()
	return sortedValues(r.h.state().messages, func(m domain.Message) bool {
		return m.TenantID == tenantID && m.TicketID == ticketID
	}), nil
}

type attachmentRepo struct{ h *handle }

func (r *attachmentRepo) Create(_ context.Context, attachment *domain.Attachment) error {
	defer r.h.lock()()
	st := r.h.state()
	if m, ok := st.messages[attachment.MessageID]; !ok || m.TenantID != attachment.TenantID {
		return fmt.Errorf("attachment references unknown message %d", attachment.MessageID)
	}
	attachment.ID = st.nextID()
	attachment.CreatedAt = r.h.now()
	st.attachments[attachment.ID] = *attachment
	return nil
}

func (r *attachmentRepo) ListByMessage(_ context.Context, tenantID, messageID int64) ([]domain.Attachment, error) {
	defer r.h.lock()()
	return sortedValues(r.h.state().attachments, func(a domain.Attachment) bool {
		return a.TenantID == tenantID && a.MessageID == messageID
	}), nil
}

type recipientRepo struct{ h *handle }

func (r *recipientRepo) CreateBatch(_ context.Context, recipients []domain.MessageRecipient) error {
	defer r.h.lock()()
	st := r.h.state()
	for _, rc := range recipients {
		rc.ID = st.nextID()
		st.recipients[rc.ID] = rc
	}
	return nil
}

func (r *recipientRepo) ListByMessage(_ context.Context, tenantID, messageID int64) ([]domain.MessageRecipient, error) {
	defer r.h.lock()()
	return sortedValues(r.h.state().recipients, func(rc domain.MessageRecipient) bool {
		return rc.TenantID == tenantID && rc.MessageID == messageID
	}), nil
}

type contactRepo struct{ h *handle }

func (r *contactRepo) Create(_ context.Context, contact *domain.Contact, identifier domain.ContactIdentifier) error {
	defer r.h.lock()()
	st := r.h.state()
	identifier.Value = domain.NormalizeIdentifier(identifier.Type, identifier.Value)
	key := identKey{tenantID: contact.TenantID, typ: identifier.Type, value: identifier.Value}
	if _, exists := st.identifiers[key]; exists {
		return domain.ErrDuplicateContact
	}
	now := r.h.now()
	contact.ID = st.nextID()
	contact.CreatedAt = now
	contact.UpdatedAt = now
	contact.Identifiers = append(slices.Clone(contact.Identifiers), identifier)
	st.contacts[contact.ID] = *contact
	st.identifiers[key] = contact.ID
	return nil
}

func (r *contactRepo) Update(_ context.Context, contact *domain.Contact) error {
	defer r.h.lock()()
	st := r.h.state()
	existing, ok := st.contacts[contact.ID]
	if !ok || existing.TenantID != contact.TenantID {
		return domain.ErrNotFound
	}
	existing.Name = contact.Name
	existing.Username = contact.Username
	existing.AvatarURL = contact.AvatarURL
	existing.CompanyID = contact.CompanyID
	existing.UpdatedAt = r.h.now()
	st.contacts[contact.ID] = existing
	return nil
}

func (r *contactRepo) GetByID(_ context.Context, tenantID, id int64) (*domain.Contact, error) {
	defer r.h.lock()()
	c, ok := r.h.state().contacts[id]
	if !ok || c.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (r *contactRepo) FindByIdentifier(_ context.Context, tenantID int64, identifierType domain.IdentifierType, value string) (*domain.Contact, error) {
	defer r.h.lock()()
	st := r.h.state()
	key := identKey{tenantID: tenantID, typ: identifierType, value: domain.NormalizeIdentifier(identifierType, value)}
	id, ok := st.identifiers[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := st.contacts[id]
	return &c, nil
}

func (r *contactRepo) FindByEmails(_ context.Context, tenantID int64, emails []string) ([]domain.Contact, error) {
	defer r.h.lock()()
	st := r.h.state()
	var out []domain.Contact
	seen := map[int64]bool{}
	for _, e := range emails {
		key := identKey{tenantID: tenantID, typ: domain.IdentifierEmail, value: domain.NormalizeIdentifier(domain.IdentifierEmail, e)}
		if id, ok := st.identifiers[key]; ok && !seen[id] {
			seen[id] = true
			out = append(out, st.contacts[id])
		}
	}
	return out, nil
}

func (r *contactRepo) ListUnlinkedWithEmail(_ context.Context, tenantID int64, limit int) ([]domain.Contact, error) {
	defer r.h.lock()()
	out := sortedValues(r.h.state().contacts, func(c domain.Contact) bool {
		return c.TenantID == tenantID && c.CompanyID == nil && c.HasDeliverableEmail()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type companyRepo struct{ h *handle }

func (r *companyRepo) FindByDomain(_ context.Context, tenantID int64, emailDomain string) (*domain.Company, error) {
	defer r.h.lock()()
	emailDomain = strings.ToLower(strings.TrimSpace(emailDomain))
	for _, c := range sortedValues(r.h.state().companies, nil) {
		if c.TenantID != tenantID {
			continue
		}
		for _, d := range c.Domains {
			if strings.EqualFold(strings.TrimSpace(d), emailDomain) {
				return &c, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

type lookupRepo struct{ h *handle }

func (r *lookupRepo) DefaultStatus(_ context.Context, tenantID int64) (*domain.TicketStatus, error) {
	defer r.h.lock()()
	var best *domain.TicketStatus
	for _, s := range sortedValues(r.h.state().statuses, nil) {
		if s.TenantID != tenantID || s.IsClosed {
			continue
		}
		if best == nil || (s.IsDefault && !best.IsDefault) ||
			(s.IsDefault == best.IsDefault && s.SortOrder < best.SortOrder) {
			best = ptr(s)
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return best, nil
}

func (r *lookupRepo) GetStatus(_ context.Context, tenantID, id int64) (*domain.TicketStatus, error) {
	defer r.h.lock()()
	s, ok := r.h.state().statuses[id]
	if !ok || s.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (r *lookupRepo) ListPriorities(_ context.Context, tenantID int64) ([]domain.Priority, error) {
	defer r.h.lock()()
	out := sortedValues(r.h.state().priorities, func(p domain.Priority) bool { return p.TenantID == tenantID })
	slices.SortStableFunc(out, func(a, b domain.Priority) int { return a.SortOrder - b.SortOrder })
	return out, nil
}

func (r *lookupRepo) GetDepartment(_ context.Context, tenantID, id int64) (*domain.Department, error) {
	defer r.h.lock()()
	d, ok := r.h.state().departments[id]
	if !ok || d.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

func (r *lookupRepo) DefaultDepartment(_ context.Context, tenantID int64) (*domain.Department, error) {
	defer r.h.lock()()
	var best *domain.Department
	for _, d := range sortedValues(r.h.state().departments, nil) {
		if d.TenantID != tenantID {
			continue
		}
		if best == nil || (d.IsDefault && !best.IsDefault) {
			best = ptr(d)
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return best, nil
}

func (r *lookupRepo) GetFolder(_ context.Context, tenantID, id int64) (*domain.Folder, error) {
	defer r.h.lock()()
	f, ok := r.h.state().folders[id]
	if !ok || f.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return &f, nil
}

func (r *lookupRepo) TenantSettings(_ context.Context, tenantID int64) (*domain.TenantSettings, error) {
	defer r.h.lock()()
	if s, ok := r.h.state().settings[tenantID]; ok {
		return &s, nil
	}
	return repository.DefaultTenantSettings(tenantID), nil
}

type channelRepo struct{ h *handle }

func (r *channelRepo) GetByID(_ context.Context, id int64) (*domain.Channel, error) {
	defer r.h.lock()()
	ch, ok := r.h.state().channels[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &ch, nil
}

func (r *channelRepo) Get(_ context.Context, tenantID, id int64) (*domain.Channel, error) {
	defer r.h.lock()()
	ch, ok := r.h.state().channels[id]
	if !ok || ch.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return &ch, nil
}

func (r *channelRepo) ListActivePull(_ context.Context) ([]domain.Channel, error) {
	defer r.h.lock()()
	return sortedValues(r.h.state().channels, func(ch domain.Channel) bool {
		return ch.IsActive && ch.IsPullBased()
	}), nil
}

func (r *channelRepo) MarkSynced(_ context.Context, tenantID, id int64, at time.Time) error {
	return r.mutate(tenantID, id, func(ch *domain.Channel) {
		ch.LastSyncAt = ptr(at)
		ch.LastSyncError = nil
		ch.FailureCount = 0
	})
}

func (r *channelRepo) MarkSyncFailed(_ context.Context, tenantID, id int64, errText string) error {
	return r.mutate(tenantID, id, func(ch *domain.Channel) {
		ch.LastSyncError = ptr(errText)
		ch.FailureCount++
	})
}

func (r *channelRepo) mutate(tenantID, id int64, fn func(ch *domain.Channel)) error {
	defer r.h.lock()()
	st := r.h.state()
	ch, ok := st.channels[id]
	if !ok || ch.TenantID != tenantID {
		return domain.ErrNotFound
	}
	fn(&ch)
	ch.UpdatedAt = r.h.now()
	st.channels[id] = ch
	return nil
}

type webhookRepo struct{ h *handle }

func (r *webhookRepo) ListActiveForEvent(_ context.Context, tenantID int64, event string) ([]domain.Webhook, error) {
	defer r.h.lock()()
	return sortedValues(r.h.state().webhooks, func(w domain.Webhook) bool {
		return w.TenantID == tenantID && w.IsActive && w.Subscribes(event)
	}), nil
}

func (r *webhookRepo) GetByID(_ context.Context, tenantID, id int64) (*domain.Webhook, error) {
	defer r.h.lock()()
	w, ok := r.h.state().webhooks[id]
	if !ok || w.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return &w, nil
}

func (r *webhookRepo) RecordSuccess(_ context.Context, tenantID, id int64) error {
	_, err := r.mutate(tenantID, id, func(w *domain.Webhook) {
		w.FailureCount = 0
		w.LastError = nil
	})
	return err
}

func (r *webhookRepo) RecordFailure(_ context.Context, tenantID, id int64, errText string) (*domain.Webhook, error) {
	return r.mutate(tenantID, id, func(w *domain.Webhook) {
		w.FailureCount++
		w.LastError = ptr(errText)
		if w.FailureCount >= w.Threshold() {
			w.IsActive = false
			if w.DisabledAt == nil {
				w.DisabledAt = ptr(r.h.now())
			}
		}
	})
}

func (r *webhookRepo) Enable(_ context.Context, tenantID, id int64) error {
	_, err := r.mutate(tenantID, id, func(w *domain.Webhook) {
		w.IsActive = true
		w.FailureCount = 0
		w.DisabledAt = nil
		w.LastError = nil
	})
	return err
}

func (r *webhookRepo) mutate(tenantID, id int64, fn func(w *domain.Webhook)) (*domain.Webhook, error) {
	defer r.h.lock()()
	st := r.h.state()
	w, ok := st.webhooks[id]
	if !ok || w.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	fn(&w)
	w.UpdatedAt = r.h.now()
	st.webhooks[id] = w
	return &w, nil
}

type deliveryLogRepo struct{ h *handle }

func (r *deliveryLogRepo) Create(_ context.Context, entry *domain.DeliveryLog) error {
	defer r.h.lock()()
	st := r.h.state()
	entry.ResponseBody = repository.TruncateBody(entry.ResponseBody)
	entry.Error = repository.CleanText(entry.Error)
	entry.ID = st.nextID()
	entry.CreatedAt = r.h.now()
	st.logs = append(st.logs, *entry)
	return nil
}

func (r *deliveryLogRepo) ListByChannel(_ context.Context, tenantID, channelID int64, limit int) ([]domain.DeliveryLog, error) {
	return r.list(limit, func(l domain.DeliveryLog) bool {
		return l.TenantID == tenantID && l.ChannelID != nil && *l.ChannelID == channelID
	}), nil
}

func (r *deliveryLogRepo) ListByWebhook(_ context.Context, tenantID, webhookID int64, limit int) ([]domain.DeliveryLog, error) {
	return r.list(limit, func(l domain.DeliveryLog) bool {
		return l.TenantID == tenantID && l.WebhookID != nil && *l.WebhookID == webhookID
	}), nil
}

func (r *deliveryLogRepo) list(limit int, keep func(domain.DeliveryLog) bool) []domain.DeliveryLog {
	defer r.h.lock()()
	logs := r.h.state().logs
	var out []domain.DeliveryLog
	for i := len(logs) - 1; i >= 0; i-- {
		if keep(logs[i]) {
			out = append(out, logs[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}
