package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/rickar/cal/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github.com/fluxdesk/conversation-service/internal/delivery"
	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/queue"
	"github.com/fluxdesk/conversation-service/internal/repository"
)

// AutoReplyScheduler creates the acknowledgement message for new tickets and
// queues its delivery after the channel's configured delay.
type AutoReplyScheduler struct {
	store    repository.Store
	queue    queue.Queue
	markdown goldmark.Markdown
	logger   *zap.Logger
	now      func() time.Time
}

// AutoReplyDependencies bundles collaborators for the scheduler.
type AutoReplyDependencies struct {
	Store  repository.Store
	Queue  queue.Queue
	Logger *zap.Logger
	Now    func() time.Time
}

// NewAutoReplyScheduler constructs the scheduler.
func NewAutoReplyScheduler(deps AutoReplyDependencies) *AutoReplyScheduler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &AutoReplyScheduler{
		store:    deps.Store,
		queue:    deps.Queue,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger:   logger,
		now:      now,
	}
}

// MaybeSchedule creates a pending auto-reply when every condition holds and
// returns it; skipped tickets return a nil message and no error.
func (s *AutoReplyScheduler) MaybeSchedule(ctx context.Context, ticket *domain.Ticket, channel *domain.Channel, contact *domain.Contact, created bool) (*domain.Message, error) {
	logger := s.logger.With(zap.Int64("tenant_id", ticket.TenantID), zap.Int64("ticket_id", ticket.ID))
	cfg := channel.AutoReply
	if !created || !cfg.Enabled || strings.TrimSpace(cfg.Template) == "" {
		return nil, nil
	}
	if !hasRecipient(ticket, channel, contact) {
		logger.Debug("auto-reply skipped: no known recipient")
		return nil, nil
	}

	repos := s.store.Repos()
	settings, err := repos.Lookups.TenantSettings(ctx, ticket.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant settings: %w", err)
	}
	if channel.Kind == domain.ChannelKindEmail && !settings.SystemEmailsEnabled {
		logger.Debug("auto-reply skipped: system emails disabled")
		return nil, nil
	}
	now := s.now()
	if cfg.BusinessHoursOnly && !WithinBusinessHours(settings, now) {
		logger.Debug("auto-reply skipped: outside business hours")
		return nil, nil
	}

	body, err := RenderAutoReply(cfg.Template, autoReplyContext(ticket, channel, contact, settings))
	if err != nil {
		return nil, domain.NewConfigError("auto-reply template for channel %d: %v", channel.ID, err)
	}
	var htmlBody bytes.Buffer
	if err := s.markdown.Convert([]byte(body), &htmlBody); err != nil {
		return nil, fmt.Errorf("render auto-reply html: %w", err)
	}

	msg := &domain.Message{
		TenantID:       ticket.TenantID,
		TicketID:       ticket.ID,
		Type:           domain.MessageTypeReply,
		IsAutoReply:    true,
		Body:           body,
		BodyHTML:       strings.TrimSpace(htmlBody.String()),
		DeliveryStatus: domain.DeliveryPending,
	}
	if err := repos.Messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create auto-reply: %w", err)
	}

	job, err := queue.NewJob(queue.JobSendMessage, ticket.TenantID, delivery.SendMessageJob{MessageID: msg.ID})
	if err != nil {
		return nil, err
	}
	runAt := now.Add(cfg.Delay())
	if err := s.queue.Enqueue(ctx, job, runAt); err != nil {
		// Nothing would ever pick up a pending message without a job; a failed
		// one can be retried by an operator.
		reason := "enqueue auto-reply: " + err.Error()
		msg.DeliveryStatus = domain.DeliveryFailed
		msg.DeliveryError = &reason
		if markErr := repos.Messages.UpdateDelivery(ctx, msg); markErr != nil {
			logger.Error("mark auto-reply failed", zap.Int64("message_id", msg.ID), zap.Error(markErr))
		}
		return msg, fmt.Errorf("enqueue auto-reply: %w", err)
	}
	logger.Info("auto-reply scheduled", zap.Int64("message_id", msg.ID), zap.Time("run_at", runAt))
	return msg, nil
}

// RenderAutoReply renders a pongo2 template into plain text.
func RenderAutoReply(template string, vars pongo2.Context) (string, error) {
	tpl, err := pongo2.FromString("{% autoescape off %}" + template + "{% endautoescape %}")
	if err != nil {
		return "", err
	}
	out, err := tpl.Execute(vars)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func autoReplyContext(ticket *domain.Ticket, channel *domain.Channel, contact *domain.Contact, settings *domain.TenantSettings) pongo2.Context {
	vars := pongo2.Context{
		"contact_name":      "",
		"contact_email":     "",
		"ticket_number":     ticket.Number,
		"ticket_subject":    ticket.Subject,
		"organization_name": settings.OrganizationName,
		"channel_name":      channel.Name,
	}
	if contact != nil {
		vars["contact_name"] = contact.Name
		if contact.HasDeliverableEmail() {
			vars["contact_email"] = *contact.Email
		}
	}
	return vars
}

func hasRecipient(ticket *domain.Ticket, channel *domain.Channel, contact *domain.Contact) bool {
	if channel.Kind == domain.ChannelKindMessaging || ticket.ChannelType.IsMessaging() {
		return ticket.MessagingParticipantID != nil && *ticket.MessagingParticipantID != ""
	}
	return contact.HasDeliverableEmail()
}

// WithinBusinessHours reports whether at falls on a tenant workday between the
// start and end hour, evaluated in the tenant's timezone.
func WithinBusinessHours(settings *domain.TenantSettings, at time.Time) bool {
	hours := settings.BusinessHours
	if hours.EndHour <= hours.StartHour {
		hours = repository.DefaultTenantSettings(settings.TenantID).BusinessHours
	}
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil || settings.Timezone == "" {
		loc = time.UTC
	}

	c := cal.NewBusinessCalendar()
	for d := time.Sunday; d <= time.Saturday; d++ {
		c.SetWorkday(d, false)
	}
	for _, d := range hours.Workdays {
		c.SetWorkday(d, true)
	}
	c.SetWorkHours(time.Duration(hours.StartHour)*time.Hour, time.Duration(hours.EndHour)*time.Hour)
	return c.IsWorkTime(at.In(loc))
}
