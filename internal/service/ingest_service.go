package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fluxdesk/conversation-service/internal/content"
	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/events"
	"github.com/fluxdesk/conversation-service/internal/identity"
	"github.com/fluxdesk/conversation-service/internal/observability"
	"github.com/fluxdesk/conversation-service/internal/repository"
	"github.com/fluxdesk/conversation-service/internal/storage"
	"github.com/fluxdesk/conversation-service/internal/threading"
)

const messagingSubjectLength = 60

// Ingest outcomes reported to metrics.
const (
	OutcomeCreated   = "created"
	OutcomeAppended  = "appended"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// AutoReplier schedules the acknowledgement for a freshly created ticket.
type AutoReplier interface {
	MaybeSchedule(ctx context.Context, ticket *domain.Ticket, channel *domain.Channel, contact *domain.Contact, created bool) (*domain.Message, error)
}

// IngestResult describes what one inbound event did.
type IngestResult struct {
	Ticket  *domain.Ticket
	Message *domain.Message
	Contact *domain.Contact
	// Created is set when the event opened a new ticket.
	Created bool
	// Reopened is set when the event moved a closed ticket back to open.
	Reopened bool
	// Duplicate is set when the provider message id was already ingested;
	// nothing was written and no side effects ran.
	Duplicate bool
}

// Outcome names the result for metrics and logs.
func (r *IngestResult) Outcome() string {
	switch {
	case r == nil:
		return OutcomeFailed
	case r.Duplicate:
		return OutcomeDuplicate
	case r.Created:
		return OutcomeCreated
	default:
		return OutcomeAppended
	}
}

// Ingestor folds inbound email and messaging events into tickets.
type Ingestor struct {
	store      repository.Store
	storage    storage.Storage
	normalizer *content.Normalizer
	identity   *identity.Resolver
	threads    *threading.Resolver
	dispatcher events.Dispatcher
	autoReply  AutoReplier
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// IngestDependencies bundles collaborators for the ingestor.
type IngestDependencies struct {
	Store      repository.Store
	Storage    storage.Storage
	Normalizer *content.Normalizer
	Identity   *identity.Resolver
	Threads    *threading.Resolver
	Dispatcher events.Dispatcher
	AutoReply  AutoReplier
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewIngestor constructs the service.
func NewIngestor(deps IngestDependencies) *Ingestor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	normalizer := deps.Normalizer
	if normalizer == nil {
		var isInternal func(string) bool
		if deps.Storage != nil {
			isInternal = deps.Storage.IsInternalURL
		}
		normalizer = content.NewNormalizer(logger, isInternal)
	}
	resolver := deps.Identity
	if resolver == nil {
		resolver = identity.NewResolver(logger)
	}
	threads := deps.Threads
	if threads == nil {
		threads = threading.NewResolver(logger)
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Ingestor{
		store:      deps.Store,
		storage:    deps.Storage,
		normalizer: normalizer,
		identity:   resolver,
		threads:    threads,
		dispatcher: deps.Dispatcher,
		autoReply:  deps.AutoReply,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        now,
	}
}

// ProcessEmail satisfies delivery.InboundProcessor.
func (s *Ingestor) ProcessEmail(ctx context.Context, channel *domain.Channel, email *domain.InboundEmail) error {
	_, err := s.IngestEmail(ctx, channel, email)
	return err
}

// ProcessMessaging satisfies delivery.InboundProcessor.
func (s *Ingestor) ProcessMessaging(ctx context.Context, channel *domain.Channel, event *domain.InboundMessagingEvent) error {
	_, err := s.IngestMessaging(ctx, channel, event)
	return err
}

// BatchItem pairs a fetched email with its ingestion outcome.
type BatchItem struct {
	Email  *domain.InboundEmail
	Result *IngestResult
	Err    error
}

// IngestEmailBatch ingests emails one by one; a failing item is recorded and
// does not stop the rest.
func (s *Ingestor) IngestEmailBatch(ctx context.Context, channel *domain.Channel, emails []*domain.InboundEmail) []BatchItem {
	items := make([]BatchItem, 0, len(emails))
	for _, email := range emails {
		if ctx.Err() != nil {
			items = append(items, BatchItem{Email: email, Err: ctx.Err()})
			continue
		}
		res, err := s.IngestEmail(ctx, channel, email)
		items = append(items, BatchItem{Email: email, Result: res, Err: err})
	}
	return items
}

// IngestEmail ingests one inbound email. Replays of an already stored
// provider message id return the existing ticket with Duplicate set.
func (s *Ingestor) IngestEmail(ctx context.Context, channel *domain.Channel, email *domain.InboundEmail) (*IngestResult, error) {
	if err := checkChannel(channel); err != nil {
		return nil, err
	}
	if email == nil {
		return nil, fmt.Errorf("%w: empty email", domain.ErrInvalidPayload)
	}
	providerID := email.ProviderMessageID()
	logger := s.logger.With(
		zap.Int64("tenant_id", channel.TenantID),
		zap.Int64("channel_id", channel.ID),
		zap.String("provider_message_id", providerID),
	)
	if providerID == "" {
		return s.reject(channel, logger, fmt.Errorf("%w: missing message id", domain.ErrInvalidPayload))
	}
	if strings.TrimSpace(email.FromEmail) == "" {
		return s.reject(channel, logger, fmt.Errorf("%w: missing sender address", domain.ErrInvalidPayload))
	}

	isReply := email.IsReply()
	norm := s.normalizer.Normalize(content.Input{
		PlainBody:   email.BodyText,
		HTMLBody:    email.BodyHTML,
		Subject:     email.Subject,
		Importance:  email.Importance,
		Header:      email.Header,
		IsReply:     isReply,
		Attachments: email.Attachments,
	})

	res, err := s.runTx(ctx, logger, func(ctx context.Context, repos repository.Repositories, files *[]string) (*IngestResult, error) {
		return s.ingestEmailTx(ctx, repos, logger, channel, email, providerID, isReply, norm, files)
	})
	return s.finish(ctx, logger, channel, providerID, res, err)
}

func (s *Ingestor) ingestEmailTx(ctx context.Context, repos repository.Repositories, logger *zap.Logger, channel *domain.Channel, email *domain.InboundEmail, providerID string, isReply bool, norm content.Normalized, files *[]string) (*IngestResult, error) {
	tenantID := channel.TenantID
	if ticket, ok, err := AlreadyProcessed(ctx, repos, tenantID, providerID); err != nil {
		return nil, err
	} else if ok {
		return &IngestResult{Ticket: ticket, Duplicate: true}, nil
	}

	contact, err := s.identity.Resolve(ctx, repos, tenantID, domain.IdentifierEmail, email.FromEmail, identity.Profile{
		Name:  email.FromName,
		Email: email.FromEmail,
	})
	if err != nil {
		return nil, wrapIdentity(err)
	}
	res := &IngestResult{Contact: contact}

	match, err := s.threads.ResolveEmail(ctx, repos, tenantID, channel.ID, email)
	if err != nil {
		return nil, fmt.Errorf("resolve thread: %w", err)
	}
	if match.Found() {
		ticket := match.Ticket
		reopened, err := threading.Reopen(ctx, repos, ticket)
		if err != nil {
			return nil, err
		}
		threading.BackfillEmailThread(ticket, email.ThreadKey(), email.ThreadIndex)
		if err := repos.Tickets.Update(ctx, ticket); err != nil {
			return nil, fmt.Errorf("update ticket: %w", err)
		}
		res.Ticket, res.Reopened = ticket, reopened
		logger.Debug("email threaded", zap.Int64("ticket_id", ticket.ID), zap.String("strategy", string(match.Strategy)))
	} else {
		subject := content.NormalizeSubject(email.Subject)
		if subject == "" {
			subject = content.NoSubject
		}
		ticket, err := s.newTicket(ctx, repos, channel, contact, subject, norm.IsUrgent)
		if err != nil {
			return nil, err
		}
		threading.BackfillEmailThread(ticket, email.ThreadKey(), email.ThreadIndex)
		if err := repos.Tickets.Create(ctx, ticket); err != nil {
			return nil, fmt.Errorf("create ticket: %w", err)
		}
		res.Ticket, res.Created = ticket, true
	}

	raw := email.BodyHTML
	if strings.TrimSpace(raw) == "" {
		raw = email.BodyText
	}
	msg, err := s.createInboundMessage(ctx, repos, res.Ticket, contact, providerID, norm, raw, email.ReceivedAt)
	if err != nil {
		return nil, err
	}
	res.Message = msg

	cidURLs, err := s.storeAttachments(ctx, repos, res.Ticket, msg, norm.Attachments, files)
	if err != nil {
		return nil, err
	}
	if len(cidURLs) > 0 && strings.TrimSpace(email.BodyHTML) != "" {
		rendered := s.normalizer.RenderHTML(email.BodyHTML, isReply, cidURLs)
		if rendered != msg.BodyHTML {
			if err := repos.Messages.UpdateBodyHTML(ctx, tenantID, msg.ID, rendered); err != nil {
				return nil, fmt.Errorf("update message html: %w", err)
			}
			msg.BodyHTML = rendered
		}
	}

	if err := s.saveRecipients(ctx, repos, logger, msg, email); err != nil {
		return nil, err
	}
	return res, nil
}

// IngestMessaging ingests one social messaging event. The platform
// conversation id is the thread key; a missing one falls back to the sender.
func (s *Ingestor) IngestMessaging(ctx context.Context, channel *domain.Channel, event *domain.InboundMessagingEvent) (*IngestResult, error) {
	if err := checkChannel(channel); err != nil {
		return nil, err
	}
	if event == nil {
		return nil, fmt.Errorf("%w: empty event", domain.ErrInvalidPayload)
	}
	providerID := strings.TrimSpace(event.MessageID)
	senderID := strings.TrimSpace(event.SenderID)
	logger := s.logger.With(
		zap.Int64("tenant_id", channel.TenantID),
		zap.Int64("channel_id", channel.ID),
		zap.String("provider_message_id", providerID),
	)
	if providerID == "" {
		return s.reject(channel, logger, fmt.Errorf("%w: missing message id", domain.ErrInvalidPayload))
	}
	if senderID == "" {
		return s.reject(channel, logger, fmt.Errorf("%w: missing sender id", domain.ErrInvalidPayload))
	}
	conversationID := strings.TrimSpace(event.ConversationID)
	if conversationID == "" {
		conversationID = senderID
	}

	subject := messagingSubject(event.Text)
	norm := s.normalizer.Normalize(content.Input{
		PlainBody:   event.Text,
		Subject:     subject,
		Attachments: event.Attachments,
	})

	res, err := s.runTx(ctx, logger, func(ctx context.Context, repos repository.Repositories, files *[]string) (*IngestResult, error) {
		tenantID := channel.TenantID
		if ticket, ok, err := AlreadyProcessed(ctx, repos, tenantID, providerID); err != nil {
			return nil, err
		} else if ok {
			return &IngestResult{Ticket: ticket, Duplicate: true}, nil
		}

		contact, err := s.identity.Resolve(ctx, repos, tenantID, domain.IdentifierTypeFor(channel.Type), senderID, identity.Profile{
			Name:      event.SenderName,
			Username:  event.SenderUsername,
			AvatarURL: event.SenderAvatarURL,
			Provider:  channel.Type,
		})
		if err != nil {
			return nil, wrapIdentity(err)
		}
		res := &IngestResult{Contact: contact}

		match, err := s.threads.ResolveMessaging(ctx, repos, tenantID, channel.ID, conversationID)
		if err != nil {
			return nil, fmt.Errorf("resolve conversation: %w", err)
		}
		if match.Found() {
			ticket := match.Ticket
			reopened, err := threading.Reopen(ctx, repos, ticket)
			if err != nil {
				return nil, err
			}
			threading.BackfillMessaging(ticket, conversationID, senderID)
			if err := repos.Tickets.Update(ctx, ticket); err != nil {
				return nil, fmt.Errorf("update ticket: %w", err)
			}
			res.Ticket, res.Reopened = ticket, reopened
		} else {
			ticket, err := s.newTicket(ctx, repos, channel, contact, subject, norm.IsUrgent)
			if err != nil {
				return nil, err
			}
			threading.BackfillMessaging(ticket, conversationID, senderID)
			if err := repos.Tickets.Create(ctx, ticket); err != nil {
				return nil, fmt.Errorf("create ticket: %w", err)
			}
			res.Ticket, res.Created = ticket, true
		}

		msg, err := s.createInboundMessage(ctx, repos, res.Ticket, contact, providerID, norm, event.Text, event.Timestamp)
		if err != nil {
			return nil, err
		}
		res.Message = msg
		if _, err := s.storeAttachments(ctx, repos, res.Ticket, msg, norm.Attachments, files); err != nil {
			return nil, err
		}
		return res, nil
	})
	return s.finish(ctx, logger, channel, providerID, res, err)
}

// runTx runs one ingestion unit of work. A conflicting concurrent insert of the
// same conversation ticket or contact retries the whole unit once, after which
// the winner's row is found. Files stored by a rolled back attempt are removed.
func (s *Ingestor) runTx(ctx context.Context, logger *zap.Logger, fn func(ctx context.Context, repos repository.Repositories, files *[]string) (*IngestResult, error)) (*IngestResult, error) {
	for attempt := 1; ; attempt++ {
		var (
			files []string
			res   *IngestResult
		)
		err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			var txErr error
			res, txErr = fn(ctx, repos, &files)
			return txErr
		})
		if err == nil {
			return res, nil
		}
		s.removeFiles(ctx, logger, files)
		if attempt == 1 && (errors.Is(err, domain.ErrDuplicateTicket) || errors.Is(err, domain.ErrDuplicateContact)) {
			logger.Info("concurrent insert detected, retrying ingestion", zap.Error(err))
			continue
		}
		return nil, err
	}
}

// finish turns the transaction outcome into the caller result and runs the
// post-commit side effects.
func (s *Ingestor) finish(ctx context.Context, logger *zap.Logger, channel *domain.Channel, providerID string, res *IngestResult, err error) (*IngestResult, error) {
	if errors.Is(err, domain.ErrDuplicateMessage) {
		ticket, _, lookupErr := AlreadyProcessed(ctx, s.store.Repos(), channel.TenantID, providerID)
		if lookupErr != nil {
			err = fmt.Errorf("load duplicate: %w", lookupErr)
		} else {
			res, err = &IngestResult{Ticket: ticket, Duplicate: true}, nil
		}
	}
	if err != nil {
		s.metrics.RecordIngest(string(channel.Type), OutcomeFailed)
		logger.Error("ingestion failed", zap.Error(err))
		return nil, err
	}

	s.metrics.RecordIngest(string(channel.Type), res.Outcome())
	if res.Duplicate {
		logger.Info("message already processed", zap.Int64("ticket_id", res.Ticket.ID))
		return res, nil
	}
	logger.Info("message ingested",
		zap.Int64("ticket_id", res.Ticket.ID),
		zap.Int64("message_id", res.Message.ID),
		zap.Bool("created", res.Created),
		zap.Bool("reopened", res.Reopened),
	)

	if res.Created {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketCreated,
			TenantID: res.Ticket.TenantID,
			TicketID: res.Ticket.ID,
			Payload:  events.NewTicketPayload(res.Ticket),
		})
	}
	if res.Reopened {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketReopened,
			TenantID: res.Ticket.TenantID,
			TicketID: res.Ticket.ID,
			Payload:  events.NewTicketPayload(res.Ticket),
		})
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventMessageReceived,
		TenantID: res.Ticket.TenantID,
		TicketID: res.Ticket.ID,
		Payload:  events.NewMessagePayload(res.Ticket, res.Message),
	})

	if res.Created && s.autoReply != nil {
		if _, err := s.autoReply.MaybeSchedule(ctx, res.Ticket, channel, res.Contact, res.Created); err != nil {
			logger.Warn("auto-reply not scheduled", zap.Int64("ticket_id", res.Ticket.ID), zap.Error(err))
		}
	}
	return res, nil
}

func (s *Ingestor) reject(channel *domain.Channel, logger *zap.Logger, err error) (*IngestResult, error) {
	s.metrics.RecordIngest(string(channel.Type), OutcomeFailed)
	logger.Warn("inbound payload rejected", zap.Error(err))
	return nil, err
}

func (s *Ingestor) newTicket(ctx context.Context, repos repository.Repositories, channel *domain.Channel, contact *domain.Contact, subject string, urgent bool) (*domain.Ticket, error) {
	tenantID := channel.TenantID
	status, err := repos.Lookups.DefaultStatus(ctx, tenantID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewConfigError("tenant %d has no default ticket status", tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("load default status: %w", err)
	}
	departmentID, err := s.departmentFor(ctx, repos, channel)
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		TenantID:     tenantID,
		Number:       generateTicketKey(),
		Subject:      subject,
		StatusID:     status.ID,
		DepartmentID: departmentID,
		ContactID:    contact.ID,
		ChannelType:  channel.Type,
		ChannelID:    channel.ID,
	}
	if urgent {
		priorities, err := repos.Lookups.ListPriorities(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("load priorities: %w", err)
		}
		if p := content.SelectUrgentPriority(priorities); p != nil {
			id := p.ID
			ticket.PriorityID = &id
		}
	}
	return ticket, nil
}

func (s *Ingestor) departmentFor(ctx context.Context, repos repository.Repositories, channel *domain.Channel) (int64, error) {
	if channel.DepartmentID != nil {
		dept, err := repos.Lookups.GetDepartment(ctx, channel.TenantID, *channel.DepartmentID)
		switch {
		case err == nil:
			return dept.ID, nil
		case errors.Is(err, domain.ErrNotFound):
			s.logger.Warn("channel department missing, using tenant default",
				zap.Int64("channel_id", channel.ID),
				zap.Int64("department_id", *channel.DepartmentID),
			)
		default:
			return 0, fmt.Errorf("load department: %w", err)
		}
	}
	dept, err := repos.Lookups.DefaultDepartment(ctx, channel.TenantID)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, domain.NewConfigError("tenant %d has no department for channel %d", channel.TenantID, channel.ID)
	}
	if err != nil {
		return 0, fmt.Errorf("load default department: %w", err)
	}
	return dept.ID, nil
}

func (s *Ingestor) createInboundMessage(ctx context.Context, repos repository.Repositories, ticket *domain.Ticket, contact *domain.Contact, providerID string, norm content.Normalized, raw string, receivedAt time.Time) (*domain.Message, error) {
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	receivedAt = receivedAt.UTC()
	contactID := contact.ID
	pid := providerID
	msg := &domain.Message{
		TenantID:          ticket.TenantID,
		TicketID:          ticket.ID,
		ContactID:         &contactID,
		Type:              domain.MessageTypeReply,
		IsFromContact:     true,
		Body:              norm.PlainBody,
		BodyHTML:          norm.SanitizedHTML,
		RawContent:        raw,
		ProviderMessageID: &pid,
		DeliveryStatus:    domain.DeliverySent,
		SentAt:            &receivedAt,
	}
	if err := repos.Messages.Create(ctx, msg); err != nil {
		if errors.Is(err, domain.ErrDuplicateMessage) {
			return nil, err
		}
		return nil, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

// storeAttachments writes blobs and rows after the parent message exists and
// returns the public URL of every attachment that carries a Content-ID.
func (s *Ingestor) storeAttachments(ctx context.Context, repos repository.Repositories, ticket *domain.Ticket, msg *domain.Message, attachments []content.DecodedAttachment, files *[]string) (map[string]string, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	if s.storage == nil {
		return nil, domain.NewConfigError("attachment storage not configured")
	}
	cidURLs := map[string]string{}
	for _, att := range attachments {
		relPath := storage.AttachmentPath(ticket.TenantID, ticket.ID, att.Filename)
		if err := s.storage.Put(ctx, relPath, att.Data); err != nil {
			return nil, fmt.Errorf("store attachment %q: %w", att.Filename, err)
		}
		*files = append(*files, relPath)

		row := domain.Attachment{
			TenantID:         ticket.TenantID,
			MessageID:        msg.ID,
			Filename:         path.Base(relPath),
			OriginalFilename: att.Filename,
			MimeType:         att.ContentType,
			Size:             int64(len(att.Data)),
			Path:             relPath,
			IsInline:         att.IsInline,
		}
		if att.ContentID != "" {
			cid := att.ContentID
			row.ContentID = &cid
			cidURLs[cid] = s.storage.URL(relPath)
		}
		if err := repos.Attachments.Create(ctx, &row); err != nil {
			return nil, fmt.Errorf("create attachment: %w", err)
		}
		msg.Attachments = append(msg.Attachments, row)
	}
	return cidURLs, nil
}

// saveRecipients records to/cc/bcc rows. Contact lookup problems only cost the
// link, never the message.
func (s *Ingestor) saveRecipients(ctx context.Context, repos repository.Repositories, logger *zap.Logger, msg *domain.Message, email *domain.InboundEmail) error {
	groups := []struct {
		typ   domain.RecipientType
		addrs []domain.Address
	}{
		{domain.RecipientTo, email.To},
		{domain.RecipientCc, email.Cc},
		{domain.RecipientBcc, email.Bcc},
	}

	var (
		recipients []domain.MessageRecipient
		lookup     []string
	)
	for _, g := range groups {
		for _, addr := range g.addrs {
			address := domain.NormalizeIdentifier(domain.IdentifierEmail, addr.Email)
			if address == "" {
				continue
			}
			recipients = append(recipients, domain.MessageRecipient{
				TenantID:  msg.TenantID,
				MessageID: msg.ID,
				Type:      g.typ,
				Email:     address,
				Name:      strings.TrimSpace(addr.Name),
			})
			lookup = append(lookup, address)
		}
	}
	if len(recipients) == 0 {
		return nil
	}

	var contacts []domain.Contact
	err := repos.Savepoint(ctx, func(ctx context.Context, sp repository.Repositories) error {
		var err error
		contacts, err = sp.Contacts.FindByEmails(ctx, msg.TenantID, lookup)
		return err
	})
	if err != nil {
		logger.Warn("recipient contact lookup failed", zap.Error(err))
		contacts = nil
	}
	byEmail := make(map[string]int64, len(contacts))
	for _, c := range contacts {
		if c.Email != nil {
			byEmail[strings.ToLower(*c.Email)] = c.ID
		}
	}
	for i := range recipients {
		if id, ok := byEmail[recipients[i].Email]; ok {
			contactID := id
			recipients[i].ContactID = &contactID
		}
	}
	if err := repos.Recipients.CreateBatch(ctx, recipients); err != nil {
		return fmt.Errorf("create recipients: %w", err)
	}
	return nil
}

func (s *Ingestor) removeFiles(ctx context.Context, logger *zap.Logger, files []string) {
	for _, f := range files {
		if err := s.storage.Delete(context.WithoutCancel(ctx), f); err != nil {
			logger.Warn("orphaned attachment not removed", zap.String("path", f), zap.Error(err))
		}
	}
}

func (s *Ingestor) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.Int64("ticket_id", event.TicketID),
			zap.Error(err),
		)
	}
}

func checkChannel(channel *domain.Channel) error {
	if channel == nil {
		return domain.NewConfigError("channel not found")
	}
	if !channel.IsActive {
		return domain.NewConfigError("channel %d is inactive", channel.ID)
	}
	return nil
}

func wrapIdentity(err error) error {
	if errors.Is(err, identity.ErrEmptyIdentifier) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if errors.Is(err, domain.ErrDuplicateContact) {
		return err
	}
	return fmt.Errorf("resolve contact: %w", err)
}

// messagingSubject derives a ticket subject from the first line of a chat message.
func messagingSubject(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = content.CollapseWhitespace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > messagingSubjectLength {
			runes := []rune(line)
			line = strings.TrimSpace(string(runes[:messagingSubjectLength])) + "..."
		}
		return line
	}
	return content.NoSubject
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
