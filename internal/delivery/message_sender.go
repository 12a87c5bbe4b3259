package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fluxdesk/conversation-service/internal/content"
	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/events"
	"github.com/fluxdesk/conversation-service/internal/provider"
	"github.com/fluxdesk/conversation-service/internal/queue"
	"github.com/fluxdesk/conversation-service/internal/repository"
	"github.com/fluxdesk/conversation-service/internal/threading"
)

// SendMessageJob is the payload of a queue.JobSendMessage job.
type SendMessageJob struct {
	MessageID int64 `json:"message_id"`
}

// MessageSender delivers pending outbound messages through the channel provider.
type MessageSender struct {
	store      repository.Store
	providers  *provider.Registry
	dispatcher events.Dispatcher
	logger     *zap.Logger
	msgDomain  string
	now        func() time.Time
}

// MessageSenderDependencies bundles MessageSender collaborators.
type MessageSenderDependencies struct {
	Store      repository.Store
	Providers  *provider.Registry
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	// MessageIDDomain is the right-hand side of generated Message-IDs.
	MessageIDDomain string
	Now             func() time.Time
}

// NewMessageSender creates a MessageSender.
func NewMessageSender(deps MessageSenderDependencies) *MessageSender {
	s := &MessageSender{
		store:      deps.Store,
		providers:  deps.Providers,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		msgDomain:  deps.MessageIDDomain,
		now:        deps.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.msgDomain == "" {
		s.msgDomain = "conversation.local"
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// MessageIDFor derives a stable RFC 5322 Message-ID so retried sends reuse it.
func MessageIDFor(tenantID, messageID int64, domainName string) string {
	name := fmt.Sprintf("%d/%d", tenantID, messageID)
	return fmt.Sprintf("<%s@%s>", uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)), domainName)
}

func kindOf(m *domain.Message) domain.DeliveryKind {
	if m != nil && m.IsAutoReply {
		return domain.DeliveryKindAutoReply
	}
	return domain.DeliveryKindReply
}

// Handle sends the message. Messages already sent are acknowledged without a second send.
func (s *MessageSender) Handle(ctx context.Context, job *queue.Job) Result {
	var payload SendMessageJob
	if err := job.Decode(&payload); err != nil {
		return Terminal(domain.DeliveryKindReply, err)
	}
	repos := s.store.Repos()

	msg, err := repos.Messages.GetByID(ctx, job.TenantID, payload.MessageID)
	if err != nil {
		res := Terminal(domain.DeliveryKindReply, fmt.Errorf("load message %d: %w", payload.MessageID, err))
		if !errors.Is(err, domain.ErrNotFound) {
			res.Outcome = RetryableFailure
		}
		return res
	}
	kind := kindOf(msg)
	withIDs := func(r Result) Result {
		r.MessageID = &msg.ID
		r.TicketID = &msg.TicketID
		return r
	}
	if msg.DeliveryStatus == domain.DeliverySent {
		return withIDs(Succeeded(kind))
	}

	ticket, err := repos.Tickets.GetByID(ctx, job.TenantID, msg.TicketID)
	if err != nil {
		return withIDs(Terminal(kind, fmt.Errorf("load ticket %d: %w", msg.TicketID, err)))
	}
	channel, err := repos.Channels.Get(ctx, job.TenantID, ticket.ChannelID)
	if err != nil {
		return withIDs(Terminal(kind, domain.NewConfigError("ticket %d has no channel", ticket.ID)))
	}
	res := withIDs(Result{Kind: kind})
	res.ChannelID = &channel.ID
	if !channel.IsActive {
		return fail(res, TerminalFailure, domain.NewConfigError("channel %d is inactive", channel.ID))
	}
	sender, err := s.providers.Sender(channel.Provider)
	if err != nil {
		return fail(res, TerminalFailure, err)
	}
	headers, err := s.headers(ctx, repos, ticket, msg)
	if err != nil {
		return fail(res, TerminalFailure, err)
	}

	providerID, err := sender.SendMessage(ctx, channel, msg, ticket, headers)
	if err != nil {
		var perr *provider.Error
		if errors.As(err, &perr) {
			res.StatusCode = perr.StatusCode
		}
		if provider.IsTemporary(err) {
			return fail(res, RetryableFailure, err)
		}
		return fail(res, TerminalFailure, err)
	}

	sentAt := s.now()
	msg.DeliveryStatus = domain.DeliverySent
	msg.DeliveryError = nil
	msg.SentAt = &sentAt
	if providerID != "" {
		msg.ProviderMessageID = &providerID
	}
	if err := repos.Messages.UpdateDelivery(ctx, msg); err != nil {
		// the provider accepted it; a retry would send twice
		s.logger.Error("record sent message failed",
			zap.Int64("tenant_id", msg.TenantID),
			zap.Int64("message_id", msg.ID),
			zap.Error(err),
		)
	}
	if ticket.FirstResponseAt == nil && !msg.IsAutoReply {
		ticket.FirstResponseAt = &sentAt
		if err := repos.Tickets.Update(ctx, ticket); err != nil {
			s.logger.Warn("record first response failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	s.publish(ctx, events.EventMessageSent, ticket, msg)
	res.Outcome = Success
	return res
}

// Fail marks the message failed once no retry remains.
func (s *MessageSender) Fail(ctx context.Context, job *queue.Job, res Result) {
	if res.MessageID == nil {
		return
	}
	repos := s.store.Repos()
	msg, err := repos.Messages.GetByID(ctx, job.TenantID, *res.MessageID)
	if err != nil || msg.DeliveryStatus == domain.DeliverySent {
		return
	}
	reason := errText(res.Err)
	msg.DeliveryStatus = domain.DeliveryFailed
	msg.DeliveryError = &reason
	if err := repos.Messages.UpdateDelivery(ctx, msg); err != nil {
		s.logger.Error("mark message failed", zap.Int64("message_id", msg.ID), zap.Error(err))
		return
	}
	ticket, err := repos.Tickets.GetByID(ctx, job.TenantID, msg.TicketID)
	if err != nil {
		ticket = nil
	}
	s.publish(ctx, events.EventMessageFailed, ticket, msg)
}

// RetryFailed resets a failed message to pending and enqueues a fresh job for it.
func (s *MessageSender) RetryFailed(ctx context.Context, q queue.Queue, tenantID, messageID int64) error {
	repos := s.store.Repos()
	msg, err := repos.Messages.GetByID(ctx, tenantID, messageID)
	if err != nil {
		return err
	}
	if msg.DeliveryStatus != domain.DeliveryFailed {
		return fmt.Errorf("message %d is %s: %w", messageID, msg.DeliveryStatus, ErrNotRetryable)
	}
	msg.DeliveryStatus = domain.DeliveryPending
	msg.DeliveryError = nil
	if err := repos.Messages.UpdateDelivery(ctx, msg); err != nil {
		return err
	}
	job, err := queue.NewJob(queue.JobSendMessage, tenantID, SendMessageJob{MessageID: messageID})
	if err != nil {
		return err
	}
	return q.Enqueue(ctx, job, s.now())
}

// ErrNotRetryable is returned when a manual retry targets a message that has not failed.
var ErrNotRetryable = errors.New("message is not in a failed state")

func (s *MessageSender) headers(ctx context.Context, repos repository.Repositories, ticket *domain.Ticket, msg *domain.Message) (provider.OutboundHeaders, error) {
	h := provider.OutboundHeaders{
		MessageID: MessageIDFor(msg.TenantID, msg.ID, s.msgDomain),
		Subject:   "Re: " + content.NormalizeSubject(ticket.Subject),
		Extra: map[string]string{
			threading.HeaderTicketID:        strconv.FormatInt(ticket.ID, 10),
			threading.HeaderTicketReference: ticket.Number,
		},
	}
	if ticket.ChannelType.IsMessaging() {
		if ticket.MessagingParticipantID == nil || *ticket.MessagingParticipantID == "" {
			return h, domain.NewConfigError("ticket %d has no messaging participant", ticket.ID)
		}
		return h, nil
	}

	contact, err := repos.Contacts.GetByID(ctx, ticket.TenantID, ticket.ContactID)
	if err != nil {
		return h, domain.NewConfigError("ticket %d has no contact", ticket.ID)
	}
	if !contact.HasDeliverableEmail() {
		return h, domain.NewConfigError("contact %d has no deliverable email", contact.ID)
	}
	h.ToEmail = *contact.Email
	h.ToName = contact.Name

	history, err := repos.Messages.ListByTicket(ctx, ticket.TenantID, ticket.ID)
	if err != nil {
		return h, fmt.Errorf("load thread: %w", err)
	}
	for _, m := range history {
		if m.ID == msg.ID || m.ProviderMessageID == nil || *m.ProviderMessageID == "" {
			continue
		}
		ref := "<" + domain.NormalizeMessageID(*m.ProviderMessageID) + ">"
		h.References = append(h.References, ref)
		if m.IsFromContact || h.InReplyTo == "" {
			h.InReplyTo = ref
		}
	}
	return h, nil
}

func (s *MessageSender) publish(ctx context.Context, t events.EventType, ticket *domain.Ticket, msg *domain.Message) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		Type:     t,
		TenantID: msg.TenantID,
		TicketID: msg.TicketID,
		Payload:  events.NewMessagePayload(ticket, msg),
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event failed", zap.String("event_type", string(t)), zap.Error(err))
	}
}

func fail(res Result, outcome Outcome, err error) Result {
	res.Outcome = outcome
	res.Err = err
	return res
}
