package service

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/flosch/pongo2/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxdesk/conversation-service/internal/delivery"
	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/queue"
	"github.com/fluxdesk/conversation-service/internal/repository"
)

const ackTemplate = "Hi {{ contact_name }},\n\nWe received **{{ ticket_subject }}** as {{ ticket_number }} at {{ organization_name }} via {{ channel_name }}."

func (f *ingestFixture) enableAutoReply(delay int) {
	f.channel.AutoReply = domain.AutoReplyConfig{Enabled: true, Template: ackTemplate, DelaySeconds: delay}
	f.store.PutChannel(f.channel)
	f.store.SetTenantSettings(domain.TenantSettings{
		TenantID:            1,
		OrganizationName:    "Acme",
		SystemEmailsEnabled: true,
		Timezone:            "UTC",
		BusinessHours:       repository.DefaultTenantSettings(1).BusinessHours,
	})
}

func TestAutoReplyOnlyForNewTickets(t *testing.T) {
	f := newIngestFixture(t)
	f.enableAutoReply(60)
	ctx := context.Background()
	svc := f.ingestor(nil)

	first, err := svc.IngestEmail(ctx, &f.channel, firstEmail())
	require.NoError(t, err)

	jobs, due := f.queue.Pending()
	require.Len(t, jobs, 1)
	assert.Equal(t, f.now.Add(time.Minute), due[0])
	var payload delivery.SendMessageJob
	require.NoError(t, jobs[0].Decode(&payload))

	msg, err := f.store.Repos().Messages.GetByID(ctx, 1, payload.MessageID)
	require.NoError(t, err)
	assert.True(t, msg.IsAutoReply)
	assert.False(t, msg.IsFromContact)
	assert.Equal(t, domain.DeliveryPending, msg.DeliveryStatus)
	assert.Equal(t, first.Ticket.ID, msg.TicketID)
	assert.Contains(t, msg.Body, "Hi Alice,")
	assert.Contains(t, msg.Body, first.Ticket.Number)
	assert.Contains(t, msg.Body, "at Acme via Support")
	assert.Contains(t, msg.BodyHTML, "<strong>URGENT: printer on fire</strong>")

	_, err = svc.IngestEmail(ctx, &f.channel, replyEmail())
	require.NoError(t, err)
	jobs, _ = f.queue.Pending()
	assert.Len(t, jobs, 1, "replies to an existing ticket never trigger an auto-reply")

	_, err = svc.IngestEmail(ctx, &f.channel, firstEmail())
	require.NoError(t, err)
	jobs, _ = f.queue.Pending()
	assert.Len(t, jobs, 1, "replays never trigger an auto-reply")
}

func TestAutoReplyHonorsSystemEmailKillSwitch(t *testing.T) {
	f := newIngestFixture(t)
	f.enableAutoReply(0)
	f.store.SetTenantSettings(domain.TenantSettings{TenantID: 1, SystemEmailsEnabled: false, Timezone: "UTC"})

	_, err := f.ingestor(nil).IngestEmail(context.Background(), &f.channel, firstEmail())
	require.NoError(t, err)
	jobs, _ := f.queue.Pending()
	assert.Empty(t, jobs)
}

func TestAutoReplyForMessagingIgnoresEmailKillSwitch(t *testing.T) {
	f := newIngestFixture(t)
	f.store.SetTenantSettings(domain.TenantSettings{TenantID: 1, SystemEmailsEnabled: false, Timezone: "UTC"})
	channel := f.store.AddChannel(domain.Channel{TenantID: 1, Name: "WhatsApp", Kind: domain.ChannelKindMessaging,
		Type: domain.ChannelTypeWhatsApp, Provider: domain.ProviderWhatsApp, IsActive: true,
		AutoReply: domain.AutoReplyConfig{Enabled: true, Template: "Thanks {{ contact_name }}!"}})

	res, err := f.ingestor(nil).IngestMessaging(context.Background(), &channel, &domain.InboundMessagingEvent{
		MessageID: "wamid.1", SenderID: "31612345678", SenderName: "Dave", Text: "hello",
	})
	require.NoError(t, err)
	require.True(t, res.Created)

	jobs, due := f.queue.Pending()
	require.Len(t, jobs, 1)
	assert.Equal(t, f.now, due[0])
}

func TestAutoReplyRequiresRecipient(t *testing.T) {
	f := newIngestFixture(t)
	f.enableAutoReply(0)
	scheduler := NewAutoReplyScheduler(AutoReplyDependencies{Store: f.store, Queue: f.queue})

	placeholder := "instagram-1@instagram.messaging.invalid"
	contact := &domain.Contact{TenantID: 1, Name: "Eve", Email: &placeholder, IsPlaceholderEmail: true}
	ticket := &domain.Ticket{ID: 7, TenantID: 1, Number: "TCK-00000007", ChannelType: domain.ChannelTypeEmail}

	msg, err := scheduler.MaybeSchedule(context.Background(), ticket, &f.channel, contact, true)
	require.NoError(t, err)
	assert.Nil(t, msg)

	msg, err = scheduler.MaybeSchedule(context.Background(), ticket, &f.channel, nil, true)
	require.NoError(t, err)
	assert.Nil(t, msg)

	email := "frank@customer.test"
	msg, err = scheduler.MaybeSchedule(context.Background(), ticket, &f.channel, &domain.Contact{Email: &email}, false)
	require.NoError(t, err)
	assert.Nil(t, msg, "only newly created tickets are acknowledged")

	jobs, _ := f.queue.Pending()
	assert.Empty(t, jobs)
}

func TestAutoReplyBusinessHoursOnly(t *testing.T) {
	f := newIngestFixture(t)
	f.enableAutoReply(0)
	f.channel.AutoReply.BusinessHoursOnly = true
	f.store.PutChannel(f.channel)
	f.store.SetTenantSettings(domain.TenantSettings{TenantID: 1, SystemEmailsEnabled: true, Timezone: "UTC",
		BusinessHours: domain.BusinessHours{StartHour: 9, EndHour: 17, Workdays: []time.Weekday{time.Monday}}})

	_, err := f.ingestor(nil).IngestEmail(context.Background(), &f.channel, firstEmail())
	require.NoError(t, err)
	jobs, _ := f.queue.Pending()
	assert.Empty(t, jobs, "2024-05-01 is a Wednesday")
}

func TestWithinBusinessHours(t *testing.T) {
	amsterdam := &domain.TenantSettings{
		Timezone:      "Europe/Amsterdam",
		BusinessHours: domain.BusinessHours{StartHour: 9, EndHour: 17, Workdays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}},
	}
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"wednesday morning local", time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC), true},
		{"wednesday evening local", time.Date(2024, 5, 1, 16, 0, 0, 0, time.UTC), false},
		{"before opening local", time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC), false},
		{"saturday", time.Date(2024, 5, 4, 10, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, WithinBusinessHours(amsterdam, tc.at))
		})
	}

	utc := &domain.TenantSettings{Timezone: "Nowhere/Invalid", BusinessHours: amsterdam.BusinessHours}
	assert.False(t, WithinBusinessHours(utc, time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)))
	assert.True(t, WithinBusinessHours(utc, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
}

func TestRenderAutoReplyDoesNotEscapePlainText(t *testing.T) {
	out, err := RenderAutoReply("Dear {{ contact_name }}", pongo2.Context{"contact_name": "Tom & Jerry <tj@x>"})
	require.NoError(t, err)
	assert.Equal(t, "Dear Tom & Jerry <tj@x>", out)

	_, err = RenderAutoReply("{% if %}", nil)
	assert.Error(t, err)
}

type refusingQueue struct{ *queue.MemoryQueue }

func (refusingQueue) Enqueue(context.Context, queue.Job, time.Time) error {
	return errors.New("redis: connection refused")
}

func TestAutoReplyEnqueueFailureMarksMessageFailed(t *testing.T) {
	f := newIngestFixture(t)
	f.enableAutoReply(0)
	ctx := context.Background()
	res, err := f.ingestor(nil).IngestEmail(ctx, &f.channel, firstEmail())
	require.NoError(t, err)

	scheduler := NewAutoReplyScheduler(AutoReplyDependencies{
		Store: f.store,
		Queue: refusingQueue{queue.NewMemoryQueue()},
		Now:   func() time.Time { return f.now },
	})
	msg, err := scheduler.MaybeSchedule(ctx, res.Ticket, &f.channel, res.Contact, true)
	require.Error(t, err)
	require.NotNil(t, msg)

	stored, err := f.store.Repos().Messages.GetByID(ctx, 1, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryFailed, stored.DeliveryStatus, "an operator can retry it")
	require.NotNil(t, stored.DeliveryError)
	assert.Contains(t, *stored.DeliveryError, "connection refused")
}
