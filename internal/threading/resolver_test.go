package threading

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/repository/memory"
)

type fixture struct {
	store    *memory.Store
	defaults memory.Defaults
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	return &fixture{store: store, defaults: store.SeedDefaults(1)}
}

func (f *fixture) ticket(t *testing.T, tenantID int64, number string, providerIDs ...string) domain.Ticket {
	t.Helper()
	ctx := context.Background()
	repos := f.store.Repos()
	ticket := &domain.Ticket{TenantID: tenantID, Number: number, StatusID: f.defaults.OpenStatus.ID, ChannelID: 1}
	require.NoError(t, repos.Tickets.Create(ctx, ticket))
	for _, id := range providerIDs {
		pid := id
		require.NoError(t, repos.Messages.Create(ctx, &domain.Message{TenantID: tenantID, TicketID: ticket.ID, ProviderMessageID: &pid}))
	}
	return *ticket
}

func TestResolveEmailByTicketIDHeader(t *testing.T) {
	f := newFixture(t)
	target := f.ticket(t, 1, "TCK-AAAA0001")
	f.ticket(t, 1, "TCK-AAAA0002", "orig@example.com")

	email := &domain.InboundEmail{
		Headers:   map[string]string{"x-ticket-id": strconv.FormatInt(target.ID, 10)},
		InReplyTo: "<orig@example.com>",
	}
	m, err := NewResolver(nil).ResolveEmail(context.Background(), f.store.Repos(), 1, 1, email)
	require.NoError(t, err)
	require.True(t, m.Found())
	assert.Equal(t, target.ID, m.Ticket.ID)
	assert.Equal(t, StrategyTicketID, m.Strategy)
}

func TestResolveEmailByTicketReference(t *testing.T) {
	f := newFixture(t)
	target := f.ticket(t, 1, "TCK-BEEF0001")

	email := &domain.InboundEmail{Headers: map[string]string{"X-Ticket-ID": "not-a-number", "X-Ticket-Reference": "TCK-BEEF0001"}}
	m, err := NewResolver(nil).ResolveEmail(context.Background(), f.store.Repos(), 1, 1, email)
	require.NoError(t, err)
	require.True(t, m.Found())
	assert.Equal(t, target.ID, m.Ticket.ID)
	assert.Equal(t, StrategyTicketReference, m.Strategy)
}

func TestResolveEmailHeadersAreTenantScoped(t *testing.T) {
	f := newFixture(t)
	other := f.ticket(t, 2, "TCK-OTHER001")

	email := &domain.InboundEmail{Headers: map[string]string{
		"X-Ticket-ID":        strconv.FormatInt(other.ID, 10),
		"X-Ticket-Reference": "TCK-OTHER001",
	}}
	m, err := NewResolver(nil).ResolveEmail(context.Background(), f.store.Repos(), 1, 1, email)
	require.NoError(t, err)
	assert.False(t, m.Found())
}

func TestResolveEmailByReferencesPicksMostRecent(t *testing.T) {
	f := newFixture(t)
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f.store.Now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	older := f.ticket(t, 1, "TCK-00000001", "a@mail")
	newer := f.ticket(t, 1, "TCK-00000002", "b@mail")

	email := &domain.InboundEmail{References: []string{"<a@mail> <b@mail>"}}
	m, err := NewResolver(nil).ResolveEmail(context.Background(), f.store.Repos(), 1, 1, email)
	require.NoError(t, err)
	require.True(t, m.Found())
	assert.Equal(t, newer.ID, m.Ticket.ID)
	assert.NotEqual(t, older.ID, m.Ticket.ID)
	assert.Equal(t, StrategyReferences, m.Strategy)
}

func TestResolveEmailByThreadKey(t *testing.T) {
	f := newFixture(t)
	repos := f.store.Repos()
	ctx := context.Background()
	thread := "CONV-1"
	ticket := &domain.Ticket{TenantID: 1, Number: "TCK-00000001", StatusID: f.defaults.OpenStatus.ID, ChannelID: 1, EmailThreadID: &thread}
	require.NoError(t, repos.Tickets.Create(ctx, ticket))

	m, err := NewResolver(nil).ResolveEmail(ctx, repos, 1, 1, &domain.InboundEmail{InternetMessageID: "<new@mail>", ConversationID: "CONV-1"})
	require.NoError(t, err)
	require.True(t, m.Found())
	assert.Equal(t, ticket.ID, m.Ticket.ID)
	assert.Equal(t, StrategyEmailThread, m.Strategy)

	m, err = NewResolver(nil).ResolveEmail(ctx, repos, 1, 2, &domain.InboundEmail{ConversationID: "CONV-1"})
	require.NoError(t, err)
	assert.False(t, m.Found(), "thread keys are scoped to the channel")

	m, err = NewResolver(nil).ResolveEmail(ctx, repos, 2, 1, &domain.InboundEmail{ThreadID: "CONV-1"})
	require.NoError(t, err)
	assert.False(t, m.Found(), "thread keys are scoped to the tenant")
}

func TestResolveEmailReferencesWinOverThreadKey(t *testing.T) {
	f := newFixture(t)
	referenced := f.ticket(t, 1, "TCK-00000001", "a@mail")
	thread := "CONV-9"
	other := &domain.Ticket{TenantID: 1, Number: "TCK-00000002", StatusID: f.defaults.OpenStatus.ID, ChannelID: 1, EmailThreadID: &thread}
	require.NoError(t, f.store.Repos().Tickets.Create(context.Background(), other))

	m, err := NewResolver(nil).ResolveEmail(context.Background(), f.store.Repos(), 1, 1,
		&domain.InboundEmail{InReplyTo: "<a@mail>", ConversationID: "CONV-9"})
	require.NoError(t, err)
	require.True(t, m.Found())
	assert.Equal(t, referenced.ID, m.Ticket.ID)
	assert.Equal(t, StrategyReferences, m.Strategy)
}

func TestResolveEmailNoMatch(t *testing.T) {
	f := newFixture(t)
	f.ticket(t, 1, "TCK-00000001", "a@mail")

	m, err := NewResolver(nil).ResolveEmail(context.Background(), f.store.Repos(), 1, 1, &domain.InboundEmail{InReplyTo: "<unknown@mail>"})
	require.NoError(t, err)
	assert.False(t, m.Found())
	assert.Equal(t, StrategyNone, m.Strategy)
}

func TestResolveEmailIgnoresOtherTenantReferences(t *testing.T) {
	f := newFixture(t)
	f.ticket(t, 2, "TCK-00000009", "shared@mail")

	m, err := NewResolver(nil).ResolveEmail(context.Background(), f.store.Repos(), 1, 1, &domain.InboundEmail{InReplyTo: "shared@mail"})
	require.NoError(t, err)
	assert.False(t, m.Found())
}

func TestResolveMessaging(t *testing.T) {
	f := newFixture(t)
	conv := "conv-9"
	ticket := &domain.Ticket{TenantID: 1, Number: "TCK-00000003", ChannelID: 4, MessagingConversationID: &conv}
	require.NoError(t, f.store.Repos().Tickets.Create(context.Background(), ticket))

	r := NewResolver(nil)
	m, err := r.ResolveMessaging(context.Background(), f.store.Repos(), 1, 4, "conv-9")
	require.NoError(t, err)
	require.True(t, m.Found())
	assert.Equal(t, ticket.ID, m.Ticket.ID)

	m, err = r.ResolveMessaging(context.Background(), f.store.Repos(), 1, 5, "conv-9")
	require.NoError(t, err)
	assert.False(t, m.Found())

	m, err = r.ResolveMessaging(context.Background(), f.store.Repos(), 1, 4, "")
	require.NoError(t, err)
	assert.False(t, m.Found())
}

func TestReferencedMessageIDs(t *testing.T) {
	email := &domain.InboundEmail{
		InReplyTo:  "<c@mail>",
		References: []string{"<a@mail>", "<b@mail>\r\n <c@mail>"},
	}
	assert.Equal(t, []string{"c@mail", "a@mail", "b@mail"}, ReferencedMessageIDs(email))

	fromHeaders := &domain.InboundEmail{Headers: map[string]string{"In-Reply-To": "<x@mail>", "References": "<w@mail> <x@mail>"}}
	assert.Equal(t, []string{"x@mail", "w@mail"}, ReferencedMessageIDs(fromHeaders))
}

func TestReopenClosedTicket(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	folder := f.defaults.ClosedFolder.ID
	ticket := &domain.Ticket{
		TenantID:   1,
		StatusID:   f.defaults.ClosedStatus.ID,
		ClosedAt:   &now,
		ResolvedAt: &now,
		FolderID:   &folder,
	}

	changed, err := Reopen(context.Background(), f.store.Repos(), ticket)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, f.defaults.OpenStatus.ID, ticket.StatusID)
	assert.Nil(t, ticket.ClosedAt)
	assert.Nil(t, ticket.ResolvedAt)
	assert.Nil(t, ticket.FolderID)
}

func TestReopenKeepsRegularFolderAndOpenTickets(t *testing.T) {
	f := newFixture(t)
	inbox := f.store.AddFolder(domain.Folder{TenantID: 1, Name: "VIP"})
	now := time.Now()
	ticket := &domain.Ticket{TenantID: 1, StatusID: f.defaults.ClosedStatus.ID, ClosedAt: &now, FolderID: &inbox.ID}

	changed, err := Reopen(context.Background(), f.store.Repos(), ticket)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, ticket.FolderID)
	assert.Equal(t, inbox.ID, *ticket.FolderID)

	open := &domain.Ticket{TenantID: 1, StatusID: f.defaults.OpenStatus.ID}
	changed, err = Reopen(context.Background(), f.store.Repos(), open)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestBackfillIsFirstWriterWins(t *testing.T) {
	ticket := &domain.Ticket{}
	assert.True(t, BackfillEmailThread(ticket, "thread-1", ""))
	assert.False(t, BackfillEmailThread(ticket, "thread-2", ""))
	assert.Equal(t, "thread-1", *ticket.EmailThreadID)
	assert.Nil(t, ticket.EmailThreadIndex)

	assert.True(t, BackfillMessaging(ticket, "conv", "user-1"))
	assert.False(t, BackfillMessaging(ticket, "conv-2", "user-2"))
	assert.Equal(t, "user-1", *ticket.MessagingParticipantID)
}
